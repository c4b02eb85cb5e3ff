package cloud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

type fakeRegionAPI struct {
	region string
	err    error
}

func (f *fakeRegionAPI) GetRegion(context.Context, *imds.GetRegionInput, ...func(*imds.Options)) (*imds.GetRegionOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &imds.GetRegionOutput{Region: f.region}, nil
}

func TestDetectOnCloud(t *testing.T) {
	d := &Detector{api: &fakeRegionAPI{region: "eu-west-1"}, timeout: time.Second}

	facts := d.Detect(t.Context())
	if !facts.OnAWS {
		t.Fatal("expected on-cloud detection")
	}
	if facts.Region == nil || *facts.Region != "eu-west-1" {
		t.Errorf("region = %v, want eu-west-1", facts.Region)
	}
}

func TestDetectProbeFailureMeansOffCloud(t *testing.T) {
	d := &Detector{api: &fakeRegionAPI{err: errors.New("no metadata endpoint")}, timeout: time.Second}

	facts := d.Detect(t.Context())
	if facts.OnAWS {
		t.Error("a failed probe must report off-cloud")
	}
	if facts.Region != nil {
		t.Errorf("region = %v, want nil", facts.Region)
	}
}

func TestDetectEmptyRegionMeansOffCloud(t *testing.T) {
	d := &Detector{api: &fakeRegionAPI{region: ""}, timeout: time.Second}

	if facts := d.Detect(t.Context()); facts.OnAWS {
		t.Error("an empty region must report off-cloud")
	}
}
