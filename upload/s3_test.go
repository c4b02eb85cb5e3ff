package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	objects map[string][]byte
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[*in.Bucket+"/"+*in.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func TestParsePath(t *testing.T) {
	cases := []struct {
		in, bucket, prefix string
	}{
		{"support-bundles/ascent/run-1", "support-bundles", "ascent/run-1"},
		{"support-bundles", "support-bundles", ""},
		{"", "", ""},
	}
	for _, c := range cases {
		bucket, prefix := ParsePath(c.in)
		if bucket != c.bucket || prefix != c.prefix {
			t.Errorf("ParsePath(%q) = %q/%q, want %q/%q", c.in, bucket, prefix, c.bucket, c.prefix)
		}
	}
}

func TestUploadFile(t *testing.T) {
	local := filepath.Join(t.TempDir(), "plan-data.json")
	if err := os.WriteFile(local, []byte(`{"dnf_conf":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	api := &fakeS3{}
	u := &Uploader{api: api, bucket: "bundles", prefix: "run-7"}

	if err := u.UploadFile(t.Context(), local, "plan-data.json"); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if got := string(api.objects["bundles/run-7/plan-data.json"]); got != `{"dnf_conf":{}}` {
		t.Errorf("stored body = %q", got)
	}
}

func TestUploadFileMissingSource(t *testing.T) {
	u := &Uploader{api: &fakeS3{}, bucket: "bundles"}
	if err := u.UploadFile(t.Context(), filepath.Join(t.TempDir(), "absent"), "k"); err == nil {
		t.Fatal("missing local file must fail")
	}
}

func TestUploadTree(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "dnf-debugdata"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"plan-data.json":             "{}",
		"dnf-debugdata/solver.dump":  "dump",
		"dnf-debugdata/repos.txt":    "repos",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	api := &fakeS3{}
	u := &Uploader{api: api, bucket: "bundles", prefix: "run-7"}

	if err := u.UploadTree(t.Context(), root, "logs"); err != nil {
		t.Fatalf("UploadTree: %v", err)
	}

	var keys []string
	for k := range api.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{
		"bundles/run-7/logs/dnf-debugdata/repos.txt",
		"bundles/run-7/logs/dnf-debugdata/solver.dump",
		"bundles/run-7/logs/plan-data.json",
	}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestUploadTreeAbortsOnFailure(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	u := &Uploader{api: &fakeS3{err: errors.New("access denied")}, bucket: "bundles"}
	if err := u.UploadTree(t.Context(), root, ""); err == nil {
		t.Fatal("put failure must abort the walk")
	}
}
