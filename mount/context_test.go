package mount

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestHostContextCallCapturesOutput(t *testing.T) {
	c := NewHostContext("/")
	res, err := c.Call(context.Background(),
		[]string{"/bin/sh", "-c", "echo out; echo err 1>&2"}, CallOpts{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestHostContextCallNonZeroExit(t *testing.T) {
	c := NewHostContext("/")
	res, err := c.Call(context.Background(),
		[]string{"/bin/sh", "-c", "echo failing 1>&2; exit 3"}, CallOpts{})

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("err = %v, want *ExitError", err)
	}
	if exitErr.Result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", exitErr.Result.ExitCode)
	}
	if !strings.Contains(exitErr.Result.Stderr, "failing") {
		t.Errorf("stderr = %q", exitErr.Result.Stderr)
	}
	if res == nil || res.ExitCode != 3 {
		t.Error("result must be returned alongside the exit error")
	}
}

func TestHostContextCallLaunchFailure(t *testing.T) {
	c := NewHostContext("/")
	_, err := c.Call(context.Background(), []string{"/nonexistent/ascent-binary"}, CallOpts{})
	if err == nil {
		t.Fatal("launching a missing binary should fail")
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		t.Error("launch failure must not be an ExitError")
	}
}

func TestHostContextCallEnvOverride(t *testing.T) {
	c := NewHostContext("/")
	res, err := c.Call(context.Background(),
		[]string{"/bin/sh", "-c", "printf %s \"$ASCENT_TEST_VAR\""},
		CallOpts{Env: map[string]string{"ASCENT_TEST_VAR": "el9"}})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.Stdout != "el9" {
		t.Errorf("stdout = %q, want el9", res.Stdout)
	}
}

func TestHostContextFileOps(t *testing.T) {
	base := t.TempDir()
	c := NewHostContext(base)

	if err := c.MakeDirs("/var/lib/ascent"); err != nil {
		t.Fatalf("MakeDirs: %v", err)
	}
	if err := c.WriteFile("/var/lib/ascent/plan-data.json", []byte("{}\n")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := c.ReadFile("/var/lib/ascent/plan-data.json")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "{}\n" {
		t.Errorf("content = %q", data)
	}

	dst := filepath.Join(t.TempDir(), "archived.json")
	if err := c.CopyFrom("/var/lib/ascent/plan-data.json", dst); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("archived copy missing: %v", err)
	}
}

func TestNspawnContextArgv(t *testing.T) {
	c := NewNspawnContext("/var/lib/ascent/userspace", []BindMount{
		{Source: "/", Target: "/installroot"},
		{Source: "/dev", Target: "/installroot/dev"},
	})

	argv := c.argv([]string{"/usr/bin/dnf", "ascent-upgrade", "check", "/var/lib/ascent/plan-data.json"},
		map[string]string{"SYSTEMD_SECCOMP": "0"})

	want := []string{
		"systemd-nspawn", "--register=no", "--quiet", "-D", "/var/lib/ascent/userspace",
		"--bind", "/:/installroot",
		"--bind", "/dev:/installroot/dev",
		"--setenv", "SYSTEMD_SECCOMP=0",
		"/usr/bin/dnf", "ascent-upgrade", "check", "/var/lib/ascent/plan-data.json",
	}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v\nwant %v", argv, want)
	}
}

func TestNspawnContextFullPath(t *testing.T) {
	c := NewNspawnContext("/var/lib/ascent/userspace", nil)
	got := c.FullPath("/var/lib/ascent/plan-data.json")
	want := "/var/lib/ascent/userspace/var/lib/ascent/plan-data.json"
	if got != want {
		t.Errorf("FullPath = %q, want %q", got, want)
	}
}

func TestReadStorageInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fstab")
	content := `# /etc/fstab
/dev/vda2 / xfs defaults 0 0
/dev/vda1 /boot xfs defaults 0 0

/dev/vdb1 /data ext4 defaults 0 0
incomplete
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := ReadStorageInfo(path)
	if err != nil {
		t.Fatalf("ReadStorageInfo: %v", err)
	}

	if len(info.Fstab) != 3 {
		t.Fatalf("entries = %d, want 3: %+v", len(info.Fstab), info.Fstab)
	}
	if info.Fstab[0].MountPoint != "/" || info.Fstab[0].Device != "/dev/vda2" {
		t.Errorf("first entry = %+v", info.Fstab[0])
	}
	if info.Fstab[2].MountPoint != "/data" {
		t.Errorf("third entry = %+v (order must follow the table)", info.Fstab[2])
	}
}

func TestReadStorageInfoMissingFile(t *testing.T) {
	if _, err := ReadStorageInfo(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("missing table should fail")
	}
}
