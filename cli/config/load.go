package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default locations for pipeline state and artifacts.
const (
	DefaultStateDir  = "/var/lib/ascent"
	DefaultLogDir    = "/var/log/ascent"
	DefaultFstabPath = "/etc/fstab"
)

// Load reads a YAML config file, expands environment variables, and
// unmarshals into a Config struct with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	if c.FstabPath == "" {
		c.FstabPath = DefaultFstabPath
	}
	if c.Userspace == "" {
		c.Userspace = c.StateDir + "/userspace"
	}
	if c.ScratchDir == "" {
		c.ScratchDir = c.StateDir + "/scratch"
	}
}
