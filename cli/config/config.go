package config

import (
	"fmt"
	"time"

	"github.com/ascent-project/ascent/types"
)

// Config represents an ascent.yaml configuration file.
// All values act as defaults for the stage commands; CLI flags always
// override config values.
type Config struct {
	Target                  TargetConfig `yaml:"target"`
	Debug                   bool         `yaml:"debug"`
	Verbose                 bool         `yaml:"verbose"`
	LegacySpaceHandling     bool         `yaml:"legacy_space_handling"`
	SkipSubscriptionManager bool         `yaml:"skip_subscription_manager"`
	NoGPGCheck              bool         `yaml:"no_gpg_check"`

	// StateDir holds the stage journal; LogDir receives plan archives and
	// debug data.
	StateDir string `yaml:"state_dir"`
	LogDir   string `yaml:"log_dir"`
	// Userspace is the target userspace root the staged stages run in.
	Userspace string `yaml:"userspace"`
	// ScratchDir backs the overlay for the staged stages.
	ScratchDir string `yaml:"scratch_dir"`
	// FstabPath overrides the filesystem table location.
	FstabPath string `yaml:"fstab_path"`
	// PluginSource is the companion plugin file installed into the target
	// userspace.
	PluginSource string `yaml:"plugin_source"`

	Repos       []string           `yaml:"repos"`
	Tasks       TasksConfig        `yaml:"tasks"`
	Plugins     []types.PluginInfo `yaml:"plugins"`
	Workarounds []types.Workaround `yaml:"workarounds"`
	XFS         XFSConfig          `yaml:"xfs"`

	Guards      GuardsConfig  `yaml:"guards"`
	Webhook     WebhookConfig `yaml:"webhook"`
	Upload      UploadConfig  `yaml:"upload"`
	CloudDetect bool          `yaml:"cloud_detect"`
}

// TargetConfig identifies the upgrade target release.
type TargetConfig struct {
	MajorVersion string `yaml:"major_version"`
	Release      string `yaml:"release"`
}

// TasksConfig lists the package and module actions of the transaction.
type TasksConfig struct {
	LocalRPMs       []string           `yaml:"local_rpms"`
	ToInstall       []string           `yaml:"to_install"`
	ToRemove        []string           `yaml:"to_remove"`
	ToUpgrade       []string           `yaml:"to_upgrade"`
	ModulesToEnable []types.ModulePair `yaml:"modules_to_enable"`
	ModulesToReset  []types.ModulePair `yaml:"modules_to_reset"`
}

// PackageTasks converts the config section into the transaction fact set.
func (t TasksConfig) PackageTasks() types.PackageTasks {
	return types.PackageTasks{
		LocalRPMs:       t.LocalRPMs,
		ToInstall:       t.ToInstall,
		ToRemove:        t.ToRemove,
		ToUpgrade:       t.ToUpgrade,
		ModulesToEnable: t.ModulesToEnable,
		ModulesToReset:  t.ModulesToReset,
	}
}

// XFSConfig carries source-system XFS facts for the legacy space-failure
// strategy.
type XFSConfig struct {
	Present      bool `yaml:"present"`
	WithoutFtype bool `yaml:"without_ftype"`
}

// Facts converts the config section into the classifier input.
func (x XFSConfig) Facts() types.XFSFacts {
	return types.XFSFacts{Present: x.Present, WithoutFtype: x.WithoutFtype}
}

// GuardsConfig holds pre-transaction guard settings.
type GuardsConfig struct {
	// MinFreeBytes is the free space required on the state directory
	// filesystem before a stage starts. Zero disables the space guard.
	MinFreeBytes uint64 `yaml:"min_free_bytes"`
	// ProbeAddrs are host:port endpoints probed for reachability. Empty
	// disables the connection guard.
	ProbeAddrs   []string `yaml:"probe_addrs"`
	ProbeTimeout Duration `yaml:"probe_timeout"`
}

// WebhookConfig holds stage event delivery settings. An empty URL
// disables notifications.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// UploadConfig holds support bundle upload settings. An empty S3Path
// disables uploads.
type UploadConfig struct {
	// S3Path is the "bucket/prefix" destination.
	S3Path string `yaml:"s3_path"`
	Region string `yaml:"region"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks the settings a stage run cannot proceed without.
func (c *Config) Validate() error {
	if c.Target.MajorVersion == "" {
		return fmt.Errorf("target.major_version is required")
	}
	if c.Target.Release == "" {
		return fmt.Errorf("target.release is required")
	}
	for i, w := range c.Workarounds {
		if w.ScriptPath == "" {
			return fmt.Errorf("workarounds[%d] (%q) has no script_path", i, w.DisplayName)
		}
	}
	return nil
}
