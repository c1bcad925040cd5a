package discovery

import (
	"context"
	"path/filepath"
	"regexp"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/hostenv"
	"pyenvs/internal/locator"
)

// storeAlias matches the app-execution aliases the store installs, e.g.
// python3.11.exe.
var storeAlias = regexp.MustCompile(`(?i)^python3\.\d+\.exe$`)

// WindowsAppsDir returns %LOCALAPPDATA%\Microsoft\WindowsApps.
func WindowsAppsDir(host *hostenv.Env) string {
	if v := host.Get("LOCALAPPDATA"); v != "" {
		return filepath.Join(v, "Microsoft", "WindowsApps")
	}
	return host.HomePath("AppData", "Local", "Microsoft", "WindowsApps")
}

// WindowsStoreLocator lists interpreters installed from the Microsoft Store.
type WindowsStoreLocator struct {
	opts Options
}

// NewWindowsStoreLocator creates a WindowsStoreLocator.
func NewWindowsStoreLocator(opts Options) *WindowsStoreLocator {
	return &WindowsStoreLocator{opts: opts.normalized("windows-store")}
}

// Kinds implements locator.KindReporter.
func (l *WindowsStoreLocator) Kinds() []envinfo.Kind {
	return []envinfo.Kind{envinfo.KindWindowsStore}
}

// IterEnvs implements locator.Locator.
func (l *WindowsStoreLocator) IterEnvs(ctx context.Context, _ *envinfo.Query) *locator.Iterator {
	return iterate(ctx, func(ctx context.Context, yield yieldFunc) {
		if !l.opts.Host.IsWindows() {
			return
		}
		dir := WindowsAppsDir(l.opts.Host)
		for _, entry := range readDir(l.opts.Logger, dir) {
			if ctx.Err() != nil {
				return
			}
			if entry.IsDir() || !storeAlias.MatchString(entry.Name()) {
				continue
			}
			exe := filepath.Join(dir, entry.Name())
			env := envinfo.NewEnv(envinfo.KindWindowsStore, exe, envinfo.SourceStore)
			env.Version = envinfo.VersionFromPath(exe)
			if !yield(env) {
				return
			}
		}
	})
}

// ResolveEnv implements locator.Locator.
func (l *WindowsStoreLocator) ResolveEnv(_ context.Context, path string) (*envinfo.Env, error) {
	env, err := resolveOwned(path, l.opts.Host, func(p string) bool {
		return IsWindowsStoreInterpreter(p, l.opts.Host)
	}, envinfo.SourceStore)
	if err != nil {
		return nil, err
	}
	env.Version = envinfo.VersionFromPath(path)
	return env, nil
}
