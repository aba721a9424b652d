// Package config loads the optional .hutch.yaml project file and fills in
// defaults for everything it leaves out.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file, looked up at the repo root.
const FileName = ".hutch.yaml"

// Duration wraps time.Duration so YAML can carry values like "10s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the project-level configuration.
type Config struct {
	// Services maps service names to their preferred base ports.
	Services map[string]int `yaml:"services,omitempty"`

	// PortRange bounds the allocator's scan as [lo, hi].
	PortRange [2]int `yaml:"portRange,omitempty"`

	// WorktreeDir is where new worktrees are created, relative to the
	// repository root unless absolute.
	WorktreeDir string `yaml:"worktreeDir,omitempty"`

	// LockTimeout bounds how long registry operations wait for the file
	// lock before giving up.
	LockTimeout Duration `yaml:"lockTimeout,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Services: map[string]int{
			"app":      3000,
			"postgres": 5432,
			"redis":    6379,
		},
		PortRange:   [2]int{3000, 9999},
		WorktreeDir: "../worktrees",
		LockTimeout: Duration(5 * time.Second),
	}
}

// Load reads .hutch.yaml from the repository root, returning defaults when
// the file does not exist. Fields the file omits keep their defaults.
func Load(repoRoot string) (*Config, error) {
	return loadFile(filepath.Join(repoRoot, FileName))
}

func loadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	cfg.merge(&file)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

func (c *Config) merge(file *Config) {
	if len(file.Services) > 0 {
		c.Services = file.Services
	}
	if file.PortRange != [2]int{} {
		c.PortRange = file.PortRange
	}
	if file.WorktreeDir != "" {
		c.WorktreeDir = file.WorktreeDir
	}
	if file.LockTimeout != 0 {
		c.LockTimeout = file.LockTimeout
	}
}

func (c *Config) validate() error {
	lo, hi := c.PortRange[0], c.PortRange[1]
	if lo <= 0 || hi <= 0 || lo > hi {
		return fmt.Errorf("invalid port range %d-%d", lo, hi)
	}
	if hi > 65535 {
		return fmt.Errorf("port range upper bound %d exceeds 65535", hi)
	}
	for service, port := range c.Services {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("service %q has invalid base port %d", service, port)
		}
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock timeout must be positive")
	}
	return nil
}

// ResolveWorktreeDir turns the configured worktree directory into an
// absolute path anchored at the repository root.
func (c *Config) ResolveWorktreeDir(repoRoot string) string {
	if filepath.IsAbs(c.WorktreeDir) {
		return filepath.Clean(c.WorktreeDir)
	}
	return filepath.Clean(filepath.Join(repoRoot, c.WorktreeDir))
}
