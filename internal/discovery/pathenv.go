package discovery

import (
	"context"
	"path/filepath"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/locator"
)

// PathEnvVarLocator reports the interpreters reachable through PATH. The
// kind of each is whatever its location says it is.
type PathEnvVarLocator struct {
	opts Options
}

// NewPathEnvVarLocator creates a PathEnvVarLocator.
func NewPathEnvVarLocator(opts Options) *PathEnvVarLocator {
	return &PathEnvVarLocator{opts: opts.normalized("path")}
}

// IterEnvs implements locator.Locator.
func (l *PathEnvVarLocator) IterEnvs(ctx context.Context, _ *envinfo.Query) *locator.Iterator {
	return iterate(ctx, func(ctx context.Context, yield yieldFunc) {
		host := l.opts.Host
		for _, dir := range dedupePaths(host.PathList()) {
			for _, entry := range readDir(l.opts.Logger, dir) {
				if ctx.Err() != nil {
					return
				}
				if entry.IsDir() || !IsInterpreterName(entry.Name()) {
					continue
				}
				exe := filepath.Join(dir, entry.Name())
				if !fileExists(exe) {
					continue
				}
				env := envinfo.NewEnv(Identify(exe, host), exe, envinfo.SourcePathEnvVar)
				env.Version = envinfo.VersionFromPath(exe)
				if !yield(env) {
					return
				}
			}
		}
	})
}

// ResolveEnv implements locator.Locator.
func (l *PathEnvVarLocator) ResolveEnv(_ context.Context, path string) (*envinfo.Env, error) {
	return resolveOwned(path, l.opts.Host, func(p string) bool {
		if !IsInterpreterName(filepath.Base(p)) {
			return false
		}
		for _, dir := range l.opts.Host.PathList() {
			if envinfo.SamePath(filepath.Dir(p), dir) {
				return true
			}
		}
		return false
	}, envinfo.SourcePathEnvVar)
}
