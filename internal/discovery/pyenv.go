package discovery

import (
	"context"
	"path/filepath"
	"regexp"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/locator"
)

var pyenvVersionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(\d+\.\d+\.\d+)$`),
	regexp.MustCompile(`^(\d+\.\d+-dev)$`),
	regexp.MustCompile(`^(\d+\.\d+\.\d+a\d+)`),
}

// PyenvVersionFromFolder extracts a version from a pyenv versions/ folder
// name such as "3.11.4", "3.13-dev" or "3.12.0a1".
func PyenvVersionFromFolder(name string) (envinfo.Version, bool) {
	for _, re := range pyenvVersionPatterns {
		if m := re.FindStringSubmatch(name); m != nil {
			if v, err := envinfo.ParseVersion(m[1]); err == nil {
				return v, true
			}
		}
	}
	return envinfo.EmptyVersion(), false
}

// PyenvLocator lists interpreters installed under pyenv's versions dir.
type PyenvLocator struct {
	opts Options
}

// NewPyenvLocator creates a PyenvLocator.
func NewPyenvLocator(opts Options) *PyenvLocator {
	return &PyenvLocator{opts: opts.normalized("pyenv")}
}

// Kinds implements locator.KindReporter. Pyenv can also host conda and
// virtualenv installs, which are classified by their own signature.
func (l *PyenvLocator) Kinds() []envinfo.Kind {
	return []envinfo.Kind{envinfo.KindPyenv, envinfo.KindCondaBase, envinfo.KindConda, envinfo.KindVirtualEnv, envinfo.KindVenv}
}

// IterEnvs implements locator.Locator.
func (l *PyenvLocator) IterEnvs(ctx context.Context, _ *envinfo.Query) *locator.Iterator {
	return iterate(ctx, func(ctx context.Context, yield yieldFunc) {
		root := PyenvRoot(l.opts.Host)
		if root == "" {
			return
		}
		versions := filepath.Join(root, "versions")
		windows := l.opts.Host.IsWindows()
		for _, entry := range readDir(l.opts.Logger, versions) {
			if ctx.Err() != nil {
				return
			}
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(versions, entry.Name())
			exe := interpreterInEnv(dir, windows)
			if exe == "" {
				continue
			}

			kind := envinfo.KindPyenv
			switch {
			case IsCondaEnv(dir):
				kind = envinfo.KindConda
				if IsCondaBase(dir) {
					kind = envinfo.KindCondaBase
				}
			case IsVenv(exe):
				kind = envinfo.KindVenv
			case IsVirtualEnv(exe) && !fileExists(filepath.Join(dir, "lib", "python"+entry.Name())):
				kind = envinfo.KindVirtualEnv
			}

			env := envinfo.NewEnv(kind, exe, envinfo.SourcePyenv)
			if v, ok := PyenvVersionFromFolder(entry.Name()); ok {
				env.Version = v
			}
			env.Location = dir
			env.Name = entry.Name()
			if !yield(env) {
				return
			}
		}
	})
}

// ResolveEnv implements locator.Locator.
func (l *PyenvLocator) ResolveEnv(_ context.Context, path string) (*envinfo.Env, error) {
	return resolveOwned(path, l.opts.Host, func(p string) bool {
		return IsPyenvInterpreter(p, l.opts.Host)
	}, envinfo.SourcePyenv)
}
