// Package cloud detects managed-cloud hosting so the transaction plan can
// carry repository-infrastructure facts for cloud-specific package setup.
package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

// DefaultTimeout bounds the metadata probe. Off-cloud hosts have no
// metadata endpoint and the probe must fail fast rather than stall the
// pipeline.
const DefaultTimeout = 3 * time.Second

// regionAPI is the slice of the instance metadata client the detector
// uses; fakes implement it in tests.
type regionAPI interface {
	GetRegion(ctx context.Context, params *imds.GetRegionInput, optFns ...func(*imds.Options)) (*imds.GetRegionOutput, error)
}

// Facts is the detection result consumed by the plan builder.
type Facts struct {
	// OnAWS reports whether the host answered the instance metadata probe.
	OnAWS bool
	// Region is the detected region; nil when unknown or off-cloud.
	Region *string
}

// Detector probes the instance metadata service.
type Detector struct {
	api     regionAPI
	timeout time.Duration
}

// NewDetector builds a detector on the default AWS configuration chain.
func NewDetector(ctx context.Context) (*Detector, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Detector{
		api:     imds.NewFromConfig(cfg),
		timeout: DefaultTimeout,
	}, nil
}

// Detect probes the metadata service. A failed probe means the host is
// not on a managed cloud; probe errors are never surfaced because
// off-cloud is a normal answer, not a failure.
func (d *Detector) Detect(ctx context.Context) Facts {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.api.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil || out.Region == "" {
		return Facts{}
	}

	region := out.Region
	return Facts{OnAWS: true, Region: &region}
}
