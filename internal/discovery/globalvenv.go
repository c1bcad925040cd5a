package discovery

import (
	"context"
	"path/filepath"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/hostenv"
	"pyenvs/internal/locator"
)

// globalVenvDepth bounds how far below each home directory envs are
// looked for: <home>/<env>/bin/python.
const globalVenvDepth = 2

// GlobalVirtualEnvHomes returns the directories where users commonly keep
// their virtual environments.
func GlobalVirtualEnvHomes(host *hostenv.Env) []string {
	homes := []string{
		WorkonHome(host),
		host.HomePath("envs"),
		host.HomePath(".direnv"),
		host.HomePath(".venvs"),
		host.HomePath(".virtualenvs"),
		host.HomePath(".local", "share", "virtualenvs"),
	}
	if host.IsWindows() {
		homes = append(homes, host.HomePath("Envs"))
	}
	var out []string
	for _, h := range homes {
		if h != "" {
			out = append(out, h)
		}
	}
	return dedupePaths(out)
}

// GlobalVirtualEnvLocator finds virtual environments kept in the user's
// well-known env homes.
type GlobalVirtualEnvLocator struct {
	opts Options
}

// NewGlobalVirtualEnvLocator creates a GlobalVirtualEnvLocator.
func NewGlobalVirtualEnvLocator(opts Options) *GlobalVirtualEnvLocator {
	return &GlobalVirtualEnvLocator{opts: opts.normalized("global-venvs")}
}

// Kinds implements locator.KindReporter.
func (l *GlobalVirtualEnvLocator) Kinds() []envinfo.Kind {
	return []envinfo.Kind{envinfo.KindVenv, envinfo.KindVirtualEnv, envinfo.KindVirtualEnvWrapper, envinfo.KindPipenv}
}

// IterEnvs implements locator.Locator.
func (l *GlobalVirtualEnvLocator) IterEnvs(ctx context.Context, _ *envinfo.Query) *locator.Iterator {
	return iterate(ctx, func(ctx context.Context, yield yieldFunc) {
		for _, home := range GlobalVirtualEnvHomes(l.opts.Host) {
			for _, exe := range findInterpreters(l.opts.Logger, home, globalVenvDepth) {
				if ctx.Err() != nil {
					return
				}
				kind, ok := l.classify(exe)
				if !ok {
					continue
				}
				env := envinfo.NewEnv(kind, exe, envinfo.SourceOther)
				env.Location = EnvDirFromExecutable(exe)
				env.Name = filepath.Base(env.Location)
				if !yield(env) {
					return
				}
			}
		}
	})
}

func (l *GlobalVirtualEnvLocator) classify(exe string) (envinfo.Kind, bool) {
	host := l.opts.Host
	switch {
	case IsPipenvEnv(exe, host):
		return envinfo.KindPipenv, true
	case IsVirtualEnvWrapperEnv(exe, host):
		return envinfo.KindVirtualEnvWrapper, true
	case IsVenv(exe):
		return envinfo.KindVenv, true
	case IsVirtualEnv(exe):
		return envinfo.KindVirtualEnv, true
	}
	return envinfo.KindUnknown, false
}

// ResolveEnv implements locator.Locator.
func (l *GlobalVirtualEnvLocator) ResolveEnv(_ context.Context, path string) (*envinfo.Env, error) {
	return resolveOwned(path, l.opts.Host, func(p string) bool {
		if _, ok := l.classify(p); !ok {
			return false
		}
		for _, home := range GlobalVirtualEnvHomes(l.opts.Host) {
			if envinfo.IsParentPath(p, home) {
				return true
			}
		}
		return false
	})
}
