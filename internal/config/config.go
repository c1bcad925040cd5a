package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures how discovery runs and where its results are kept.
type Config struct {
	Version        int            `yaml:"version"`
	Workers        int            `yaml:"workers"`
	SearchDepth    int            `yaml:"search_depth"`
	WorkspaceRoots []string       `yaml:"workspace_roots"`
	EnvFile        string         `yaml:"env_file"`
	Locators       LocatorsConfig `yaml:"locators"`
	CondaPath      string         `yaml:"conda_path"`
	Cache          CacheConfig    `yaml:"cache"`
	Inspect        InspectConfig  `yaml:"inspect"`
	Watch          WatchConfig    `yaml:"watch"`
}

// LocatorsConfig toggles individual discovery sources. A nil entry means
// enabled.
type LocatorsConfig struct {
	Conda             *bool `yaml:"conda,omitempty"`
	Pyenv             *bool `yaml:"pyenv,omitempty"`
	GlobalVirtualEnvs *bool `yaml:"global_virtualenvs,omitempty"`
	Poetry            *bool `yaml:"poetry,omitempty"`
	Workspace         *bool `yaml:"workspace,omitempty"`
	Path              *bool `yaml:"path,omitempty"`
	WindowsStore      *bool `yaml:"windows_store,omitempty"`
	WindowsRegistry   *bool `yaml:"windows_registry,omitempty"`
}

// CacheConfig selects the persistence backend.
type CacheConfig struct {
	Backend string `yaml:"backend"`
	// Path overrides the default cache location under the data dir.
	Path string `yaml:"path"`
}

// InspectConfig tunes interpreter inspection.
type InspectConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	MemoSize int           `yaml:"memo_size"`
}

// WatchConfig tunes the filesystem watcher.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Patterns []string      `yaml:"patterns"`
}

// Enabled returns the effective flag applying the enabled-by-default rule.
func Enabled(flag *bool) bool {
	return flag == nil || *flag
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Version:     1,
		Workers:     2,
		SearchDepth: 4,
		Locators: LocatorsConfig{
			Conda:             boolPtr(true),
			Pyenv:             boolPtr(true),
			GlobalVirtualEnvs: boolPtr(true),
			Poetry:            boolPtr(true),
			Workspace:         boolPtr(true),
			Path:              boolPtr(true),
			WindowsStore:      boolPtr(true),
			WindowsRegistry:   boolPtr(true),
		},
		Cache: CacheConfig{
			Backend: "json",
		},
		Inspect: InspectConfig{
			Timeout:  15 * time.Second,
			MemoSize: 256,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
			Patterns: []string{"**/bin/python*", "**/Scripts/python*.exe", "**/pyvenv.cfg"},
		},
	}
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration. Relative paths in the file are taken relative
// to the file's directory.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// ApplyDefaults ensures fields fall back to sensible defaults when the YAML
// omits or zeroes them.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if c.Workers == 0 {
		c.Workers = defaults.Workers
	}
	if c.SearchDepth == 0 {
		c.SearchDepth = defaults.SearchDepth
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = defaults.Cache.Backend
	}
	if c.Inspect.Timeout == 0 {
		c.Inspect.Timeout = defaults.Inspect.Timeout
	}
	if c.Inspect.MemoSize == 0 {
		c.Inspect.MemoSize = defaults.Inspect.MemoSize
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = defaults.Watch.Debounce
	}
	if len(c.Watch.Patterns) == 0 {
		c.Watch.Patterns = defaults.Watch.Patterns
	}
}

func (c *Config) resolvePaths(base string) {
	for i, root := range c.WorkspaceRoots {
		c.WorkspaceRoots[i] = resolvePath(base, root)
	}
	c.EnvFile = resolvePath(base, c.EnvFile)
	c.Cache.Path = resolvePath(base, c.Cache.Path)
}

// resolvePath returns value as-is if absolute or empty, otherwise joins it
// with base.
func resolvePath(base, value string) string {
	if value == "" || filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(base, value)
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}

func boolPtr(v bool) *bool {
	return &v
}
