package discovery

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/locator"
)

var (
	posixCondaGlobs = []string{
		"~/opt/*conda*/bin/conda",
		"/opt/*conda*/bin/conda",
		"/usr/share/*conda*/bin/conda",
		"~/*conda*/bin/conda",
	}
	windowsCondaGlobs = []string{
		"/ProgramData/[Mm]iniconda*/Scripts/conda.exe",
		"/ProgramData/[Aa]naconda*/Scripts/conda.exe",
		"~/[Mm]iniconda*/Scripts/conda.exe",
		"~/[Aa]naconda*/Scripts/conda.exe",
		"~/AppData/Local/Continuum/[Mm]iniconda*/Scripts/conda.exe",
		"~/AppData/Local/Continuum/[Aa]naconda*/Scripts/conda.exe",
	}
)

// CondaLocator finds conda installations and their environments.
type CondaLocator struct {
	opts     Options
	explicit string
	globs    []string
}

// NewCondaLocator creates a CondaLocator. condaPath, when set, is tried
// before any other way of finding conda.
func NewCondaLocator(opts Options, condaPath string) *CondaLocator {
	l := &CondaLocator{opts: opts.normalized("conda"), explicit: condaPath}
	l.globs = posixCondaGlobs
	if l.opts.Host.IsWindows() {
		l.globs = windowsCondaGlobs
	}
	return l
}

// Kinds implements locator.KindReporter.
func (l *CondaLocator) Kinds() []envinfo.Kind {
	return []envinfo.Kind{envinfo.KindCondaBase, envinfo.KindConda}
}

// IterEnvs implements locator.Locator.
func (l *CondaLocator) IterEnvs(ctx context.Context, _ *envinfo.Query) *locator.Iterator {
	return iterate(ctx, func(ctx context.Context, yield yieldFunc) {
		windows := l.opts.Host.IsWindows()
		for _, dir := range l.envDirs() {
			if ctx.Err() != nil {
				return
			}
			if !IsCondaEnv(dir) {
				continue
			}
			exe := interpreterInEnv(dir, windows)
			if exe == "" {
				l.opts.Logger.Debug("conda env without interpreter", "dir", dir)
				continue
			}
			kind := envinfo.KindConda
			if IsCondaBase(dir) {
				kind = envinfo.KindCondaBase
			}
			env := envinfo.NewEnv(kind, exe, envinfo.SourceConda)
			env.Location = dir
			env.Name = filepath.Base(dir)
			if !yield(env) {
				return
			}
		}
	})
}

// ResolveEnv implements locator.Locator.
func (l *CondaLocator) ResolveEnv(_ context.Context, path string) (*envinfo.Env, error) {
	return resolveOwned(path, l.opts.Host, func(p string) bool {
		return IsCondaEnv(EnvDirFromExecutable(p))
	}, envinfo.SourceConda)
}

// Binary returns the conda executable in use, or "".
func (l *CondaLocator) Binary() string {
	bins := l.binaries()
	if len(bins) == 0 {
		return ""
	}
	return bins[0]
}

// binaries returns every conda executable found, most specific first.
func (l *CondaLocator) binaries() []string {
	host := l.opts.Host
	var out []string
	add := func(p string) {
		if p != "" && fileExists(p) {
			out = append(out, p)
		}
	}
	add(l.explicit)
	add(host.Get("CONDA_EXE"))

	names := []string{"conda"}
	if host.IsWindows() {
		names = []string{"conda.exe", "conda.bat"}
	}
	for _, dir := range host.PathList() {
		for _, n := range names {
			add(filepath.Join(dir, n))
		}
	}

	for _, pattern := range l.globs {
		if strings.HasPrefix(pattern, "~/") {
			if host.Home() == "" {
				continue
			}
			pattern = filepath.ToSlash(host.Home()) + pattern[1:]
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			l.opts.Logger.Debug("bad conda glob", "pattern", pattern, "err", err)
			continue
		}
		for _, m := range matches {
			add(m)
		}
	}
	return dedupePaths(out)
}

// envDirs lists candidate environment directories: each installation root,
// its envs/ children, ~/.conda/envs children and the entries recorded in
// ~/.conda/environments.txt.
func (l *CondaLocator) envDirs() []string {
	var dirs []string
	for _, bin := range l.binaries() {
		root := installRoot(bin)
		dirs = append(dirs, root)
		dirs = append(dirs, childDirs(l, filepath.Join(root, "envs"))...)
	}
	if home := l.opts.Host.HomePath(".conda"); home != "" {
		dirs = append(dirs, childDirs(l, filepath.Join(home, "envs"))...)
		dirs = append(dirs, l.environmentsTxt(filepath.Join(home, "environments.txt"))...)
	}
	return dedupePaths(dirs)
}

func (l *CondaLocator) environmentsTxt(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		l.opts.Logger.Debug("read environments.txt", "path", path, "err", err)
	}
	return out
}

// installRoot maps <root>/bin/conda, <root>/Scripts/conda.exe and
// <root>/condabin/conda to <root>.
func installRoot(condaBinary string) string {
	dir := filepath.Dir(condaBinary)
	switch strings.ToLower(filepath.Base(dir)) {
	case "bin", "scripts", "condabin", "library":
		return filepath.Dir(dir)
	}
	return dir
}

func childDirs(l *CondaLocator, dir string) []string {
	var out []string
	for _, e := range readDir(l.opts.Logger, dir) {
		if e.IsDir() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out
}

func dedupePaths(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, p := range in {
		key := envinfo.NormalizePath(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
