// Package paths resolves the per-user locations pyenvs reads and writes.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pyenvs/internal/hostenv"
)

const (
	appName        = "pyenvs"
	homeOverride   = "PYENVS_HOME"
	configFileName = "pyenvs.yaml"
)

// Layout captures canonical locations for one user.
type Layout struct {
	DataDir    string
	ConfigDir  string
	LogsDir    string
	ConfigFile string
}

// Resolve determines the layout from PYENVS_HOME or the per-OS defaults.
func Resolve(host *hostenv.Env) (Layout, error) {
	if host == nil {
		host = hostenv.FromOS()
	}
	if override := host.Get(homeOverride); override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return Layout{}, fmt.Errorf("resolve %s: %w", homeOverride, err)
		}
		return newLayout(abs, abs), nil
	}

	home := host.Home()
	if home == "" {
		return Layout{}, errors.New("detect user home: no home directory")
	}

	switch host.GOOS() {
	case "darwin":
		dir := filepath.Join(home, "Library", "Application Support", appName)
		return newLayout(dir, dir), nil
	case "windows":
		local := host.Get("LOCALAPPDATA")
		if local == "" {
			local = filepath.Join(home, "AppData", "Local")
		}
		roaming := host.Get("APPDATA")
		if roaming == "" {
			roaming = filepath.Join(home, "AppData", "Roaming")
		}
		return newLayout(filepath.Join(local, appName), filepath.Join(roaming, appName)), nil
	default:
		data := host.Get("XDG_DATA_HOME")
		if data == "" {
			data = filepath.Join(home, ".local", "share")
		}
		config := host.Get("XDG_CONFIG_HOME")
		if config == "" {
			config = filepath.Join(home, ".config")
		}
		return newLayout(filepath.Join(data, appName), filepath.Join(config, appName)), nil
	}
}

func newLayout(dataDir, configDir string) Layout {
	return Layout{
		DataDir:    dataDir,
		ConfigDir:  configDir,
		LogsDir:    filepath.Join(dataDir, "logs"),
		ConfigFile: filepath.Join(configDir, configFileName),
	}
}

// CacheFile returns the default cache location for a backend.
func (l Layout) CacheFile(backend string) string {
	if strings.EqualFold(backend, "sqlite") {
		return filepath.Join(l.DataDir, "envs.db")
	}
	return filepath.Join(l.DataDir, "envs.json")
}

// EnsureDirs creates the data and logs directories.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.DataDir, l.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
