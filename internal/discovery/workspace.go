package discovery

import (
	"context"
	"path/filepath"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/locator"
)

// WorkspaceLocator finds project-local environments below workspace roots.
// Every env it yields carries the root it was found under as its
// SearchLocation.
type WorkspaceLocator struct {
	opts  Options
	roots []string
}

// NewWorkspaceLocator creates a WorkspaceLocator for the configured roots.
// A query with search roots overrides them.
func NewWorkspaceLocator(opts Options, roots []string) *WorkspaceLocator {
	return &WorkspaceLocator{opts: opts.normalized("workspace"), roots: roots}
}

// Kinds implements locator.KindReporter.
func (l *WorkspaceLocator) Kinds() []envinfo.Kind {
	return []envinfo.Kind{
		envinfo.KindVenv, envinfo.KindVirtualEnv, envinfo.KindPipenv,
		envinfo.KindPoetry, envinfo.KindConda,
	}
}

func (l *WorkspaceLocator) rootsFor(q *envinfo.Query) []string {
	if q != nil && q.SearchLocations != nil && len(q.SearchLocations.Roots) > 0 {
		return q.SearchLocations.Roots
	}
	return l.roots
}

// IterEnvs implements locator.Locator.
func (l *WorkspaceLocator) IterEnvs(ctx context.Context, q *envinfo.Query) *locator.Iterator {
	roots := dedupePaths(append([]string(nil), l.rootsFor(q)...))
	return iterate(ctx, func(ctx context.Context, yield yieldFunc) {
		for _, root := range roots {
			for _, exe := range findInterpreters(l.opts.Logger, root, l.opts.SearchDepth) {
				if ctx.Err() != nil {
					return
				}
				kind, ok := l.classify(exe)
				if !ok {
					continue
				}
				env := envinfo.NewEnv(kind, exe, envinfo.SourceWorkspace)
				env.Location = EnvDirFromExecutable(exe)
				env.SearchLocation = root
				env.Name = filepath.Base(env.Location)
				if !yield(env) {
					return
				}
			}
		}
	})
}

func (l *WorkspaceLocator) classify(exe string) (envinfo.Kind, bool) {
	host := l.opts.Host
	envDir := EnvDirFromExecutable(exe)
	switch {
	case IsCondaEnv(envDir):
		return envinfo.KindConda, !IsCondaBase(envDir)
	case IsPipenvEnv(exe, host):
		return envinfo.KindPipenv, true
	case IsPoetryEnv(exe, host):
		return envinfo.KindPoetry, true
	case IsVenv(exe):
		return envinfo.KindVenv, true
	case IsVirtualEnv(exe):
		return envinfo.KindVirtualEnv, true
	}
	return envinfo.KindUnknown, false
}

// ResolveEnv implements locator.Locator.
func (l *WorkspaceLocator) ResolveEnv(_ context.Context, path string) (*envinfo.Env, error) {
	var root string
	for _, r := range l.roots {
		if envinfo.IsParentPath(path, r) {
			root = r
			break
		}
	}
	env, err := resolveOwned(path, l.opts.Host, func(p string) bool {
		_, ok := l.classify(p)
		return ok && root != ""
	}, envinfo.SourceWorkspace)
	if err != nil {
		return nil, err
	}
	env.SearchLocation = root
	return env, nil
}
