package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ascent-project/ascent/types"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `target:
  major_version: "9"
  release: "9.4"

debug: true
verbose: true
legacy_space_handling: false
skip_subscription_manager: true
no_gpg_check: true

state_dir: /var/lib/ascent
log_dir: /var/log/ascent
userspace: /var/lib/ascent/userspace
plugin_source: /usr/share/ascent/ascent_upgrade.py

repos:
  - baseos
  - appstream

plugins:
  - name: product-id
    disable_in: [dry-run, upgrade]

workarounds:
  - display_name: fix broken symlinks
    script_path: /usr/share/ascent/fix-symlinks.sh
    script_args: ["--force"]

guards:
  min_free_bytes: 104857600
  probe_addrs:
    - cdn.example.com:443
  probe_timeout: 5s

webhook:
  url: https://hooks.example.com/ascent
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3

upload:
  s3_path: support-bundles/ascent
  region: us-east-1

cloud_detect: true
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "target.major_version", cfg.Target.MajorVersion, "9")
	assertEqual(t, "target.release", cfg.Target.Release, "9.4")
	if !cfg.Debug || !cfg.Verbose || !cfg.SkipSubscriptionManager || !cfg.NoGPGCheck {
		t.Error("boolean flags not loaded")
	}
	if cfg.LegacySpaceHandling {
		t.Error("legacy_space_handling should be false")
	}

	if len(cfg.Repos) != 2 || cfg.Repos[0] != "baseos" {
		t.Errorf("repos = %v", cfg.Repos)
	}

	if len(cfg.Plugins) != 1 {
		t.Fatalf("plugins = %+v", cfg.Plugins)
	}
	assertEqual(t, "plugins[0].name", cfg.Plugins[0].Name, "product-id")
	if !cfg.Plugins[0].DisabledIn(types.StageDryRun) || !cfg.Plugins[0].DisabledIn(types.StageUpgrade) {
		t.Errorf("plugin disable stages = %v", cfg.Plugins[0].DisableIn)
	}
	if cfg.Plugins[0].DisabledIn(types.StageCheck) {
		t.Error("plugin must not be disabled in check")
	}

	if len(cfg.Workarounds) != 1 {
		t.Fatalf("workarounds = %+v", cfg.Workarounds)
	}
	assertEqual(t, "workarounds[0].display_name", cfg.Workarounds[0].DisplayName, "fix broken symlinks")
	assertEqual(t, "workarounds[0].script_path", cfg.Workarounds[0].ScriptPath, "/usr/share/ascent/fix-symlinks.sh")

	if cfg.Guards.MinFreeBytes != 104857600 {
		t.Errorf("guards.min_free_bytes = %d", cfg.Guards.MinFreeBytes)
	}
	if cfg.Guards.ProbeTimeout.Duration != 5*time.Second {
		t.Errorf("guards.probe_timeout = %v", cfg.Guards.ProbeTimeout.Duration)
	}

	assertEqual(t, "webhook.url", cfg.Webhook.URL, "https://hooks.example.com/ascent")
	if cfg.Webhook.Timeout.Duration != 10*time.Second {
		t.Errorf("webhook.timeout = %v", cfg.Webhook.Timeout.Duration)
	}
	if cfg.Webhook.Retries == nil || *cfg.Webhook.Retries != 3 {
		t.Error("webhook.retries = nil, want 3")
	}
	if cfg.Webhook.Headers["Authorization"] != "Bearer token123" {
		t.Error("expected Authorization header")
	}

	assertEqual(t, "upload.s3_path", cfg.Upload.S3Path, "support-bundles/ascent")
	if !cfg.CloudDetect {
		t.Error("cloud_detect not loaded")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeTemp(t, "target:\n  major_version: \"9\"\n  release: \"9.4\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "state_dir", cfg.StateDir, DefaultStateDir)
	assertEqual(t, "log_dir", cfg.LogDir, DefaultLogDir)
	assertEqual(t, "fstab_path", cfg.FstabPath, DefaultFstabPath)
	assertEqual(t, "userspace", cfg.Userspace, DefaultStateDir+"/userspace")
	assertEqual(t, "scratch_dir", cfg.ScratchDir, DefaultStateDir+"/scratch")
}

func TestLoad_UserspaceFollowsStateDir(t *testing.T) {
	path := writeTemp(t, "state_dir: /srv/ascent\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "userspace", cfg.Userspace, "/srv/ascent/userspace")
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("ASCENT_RELEASE", "9.4")
	path := writeTemp(t, "target:\n  release: ${ASCENT_RELEASE}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "target.release", cfg.Target.Release, "9.4")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/ascent.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Target: TargetConfig{MajorVersion: "9", Release: "9.4"}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg = &Config{Target: TargetConfig{Release: "9.4"}}
	if err := cfg.Validate(); err == nil {
		t.Error("missing major_version must fail validation")
	}

	cfg = &Config{Target: TargetConfig{MajorVersion: "9"}}
	if err := cfg.Validate(); err == nil {
		t.Error("missing release must fail validation")
	}

	cfg = &Config{
		Target:      TargetConfig{MajorVersion: "9", Release: "9.4"},
		Workarounds: []types.Workaround{{DisplayName: "broken"}},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("workaround without script_path must fail validation")
	}
}

func TestDuration_InvalidString(t *testing.T) {
	path := writeTemp(t, "guards:\n  probe_timeout: banana\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ascent.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %q, want %q", field, got, want)
	}
}
