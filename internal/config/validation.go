package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

const (
	LevelError   = "error"
	LevelWarning = "warning"
)

// Validate runs every check against the config and returns structured
// results.
func (c Config) Validate() []ValidationResult {
	var results []ValidationResult
	results = append(results, c.validateNumbers()...)
	results = append(results, c.validateCache()...)
	results = append(results, c.validatePaths()...)
	results = append(results, c.validateWatchPatterns()...)
	results = append(results, c.validateLocators()...)
	return results
}

// HasErrors reports whether any result is an error.
func HasErrors(results []ValidationResult) bool {
	for _, r := range results {
		if r.Level == LevelError {
			return true
		}
	}
	return false
}

func (c Config) validateNumbers() []ValidationResult {
	var results []ValidationResult
	if c.Version != 1 {
		results = append(results, ValidationResult{
			Level:   LevelError,
			Message: fmt.Sprintf("unsupported config version %d", c.Version),
		})
	}
	if c.Workers < 1 {
		results = append(results, ValidationResult{
			Level:   LevelError,
			Message: fmt.Sprintf("workers must be >= 1, got %d", c.Workers),
		})
	} else if c.Workers > 16 {
		results = append(results, ValidationResult{
			Level:   LevelWarning,
			Message: fmt.Sprintf("workers = %d will launch many interpreters at once", c.Workers),
		})
	}
	if c.SearchDepth < 1 {
		results = append(results, ValidationResult{
			Level:   LevelError,
			Message: fmt.Sprintf("search_depth must be >= 1, got %d", c.SearchDepth),
		})
	}
	if c.Inspect.Timeout < 0 {
		results = append(results, ValidationResult{
			Level:   LevelError,
			Message: "inspect.timeout must not be negative",
		})
	}
	if c.Inspect.MemoSize < 0 {
		results = append(results, ValidationResult{
			Level:   LevelError,
			Message: "inspect.memo_size must not be negative",
		})
	}
	if c.Watch.Debounce < 0 {
		results = append(results, ValidationResult{
			Level:   LevelError,
			Message: "watch.debounce must not be negative",
		})
	}
	return results
}

func (c Config) validateCache() []ValidationResult {
	switch strings.ToLower(c.Cache.Backend) {
	case "", "json", "sqlite":
		return nil
	}
	return []ValidationResult{{
		Level:   LevelError,
		Message: fmt.Sprintf("cache.backend %q is not one of json, sqlite", c.Cache.Backend),
	}}
}

func (c Config) validatePaths() []ValidationResult {
	var results []ValidationResult
	for _, root := range c.WorkspaceRoots {
		info, err := os.Stat(root)
		switch {
		case err != nil:
			results = append(results, ValidationResult{
				Level:   LevelWarning,
				Message: fmt.Sprintf("workspace root %q not found", root),
			})
		case !info.IsDir():
			results = append(results, ValidationResult{
				Level:   LevelError,
				Message: fmt.Sprintf("workspace root %q is not a directory", root),
			})
		}
	}
	if c.EnvFile != "" {
		if _, err := os.Stat(c.EnvFile); err != nil {
			results = append(results, ValidationResult{
				Level:   LevelError,
				Message: fmt.Sprintf("env file %q not found", c.EnvFile),
			})
		}
	}
	if c.CondaPath != "" {
		if _, err := os.Stat(c.CondaPath); err != nil {
			results = append(results, ValidationResult{
				Level:   LevelWarning,
				Message: fmt.Sprintf("conda_path %q not found", c.CondaPath),
			})
		}
	}
	return results
}

func (c Config) validateWatchPatterns() []ValidationResult {
	var results []ValidationResult
	for _, pat := range c.Watch.Patterns {
		if !doublestar.ValidatePattern(pat) {
			results = append(results, ValidationResult{
				Level:   LevelError,
				Message: fmt.Sprintf("watch pattern %q is not a valid glob", pat),
			})
		}
	}
	return results
}

func (c Config) validateLocators() []ValidationResult {
	l := c.Locators
	for _, flag := range []*bool{l.Conda, l.Pyenv, l.GlobalVirtualEnvs, l.Poetry, l.Workspace, l.Path, l.WindowsStore, l.WindowsRegistry} {
		if Enabled(flag) {
			return nil
		}
	}
	return []ValidationResult{{
		Level:   LevelWarning,
		Message: "every locator is disabled; discovery will find nothing",
	}}
}
