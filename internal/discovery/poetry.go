package discovery

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/hostenv"
	"pyenvs/internal/locator"
)

// poetryEnvName matches poetry's "<project>-<hash8>-py<X.Y>" env dirs.
var poetryEnvName = regexp.MustCompile(`^.+-[A-Za-z0-9_-]{8}-py\d+\.\d+$`)

type pyproject struct {
	Tool struct {
		Poetry map[string]any `toml:"poetry"`
	} `toml:"tool"`
}

type poetryConfig struct {
	Virtualenvs struct {
		Path      string `toml:"path"`
		InProject *bool  `toml:"in-project"`
	} `toml:"virtualenvs"`
}

// PoetryVirtualenvsDir returns where poetry keeps its central envs:
// POETRY_VIRTUALENVS_PATH, else the per-OS poetry cache.
func PoetryVirtualenvsDir(host *hostenv.Env) string {
	if v := strings.TrimSpace(host.Get("POETRY_VIRTUALENVS_PATH")); v != "" {
		return v
	}
	if v := strings.TrimSpace(host.Get("POETRY_CACHE_DIR")); v != "" {
		return filepath.Join(v, "virtualenvs")
	}
	switch host.GOOS() {
	case "windows":
		if v := host.Get("LOCALAPPDATA"); v != "" {
			return filepath.Join(v, "pypoetry", "Cache", "virtualenvs")
		}
		return host.HomePath("AppData", "Local", "pypoetry", "Cache", "virtualenvs")
	case "darwin":
		return host.HomePath("Library", "Caches", "pypoetry", "virtualenvs")
	}
	if v := host.Get("XDG_CACHE_HOME"); v != "" {
		return filepath.Join(v, "pypoetry", "virtualenvs")
	}
	return host.HomePath(".cache", "pypoetry", "virtualenvs")
}

// IsPoetryProject reports whether dir carries a pyproject.toml with a
// [tool.poetry] table.
func IsPoetryProject(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "pyproject.toml"))
	if err != nil {
		return false
	}
	var p pyproject
	if err := toml.Unmarshal(data, &p); err != nil {
		return false
	}
	return p.Tool.Poetry != nil
}

// poetryInProject reads virtualenvs.in-project from a project's poetry.toml.
// Without the file poetry's default applies and a .venv next to a poetry
// project is still used.
func poetryInProject(projectDir string) bool {
	data, err := os.ReadFile(filepath.Join(projectDir, "poetry.toml"))
	if err != nil {
		return true
	}
	var cfg poetryConfig
	if err := toml.Unmarshal(data, &cfg); err != nil || cfg.Virtualenvs.InProject == nil {
		return true
	}
	return *cfg.Virtualenvs.InProject
}

// IsPoetryEnv reports whether executable belongs to a poetry environment:
// either a named env in poetry's central dir or a project-local .venv next
// to a poetry pyproject.toml.
func IsPoetryEnv(executable string, host *hostenv.Env) bool {
	envDir := EnvDirFromExecutable(executable)
	if central := PoetryVirtualenvsDir(host); central != "" &&
		envinfo.SamePath(filepath.Dir(envDir), central) && poetryEnvName.MatchString(filepath.Base(envDir)) {
		return true
	}
	if filepath.Base(envDir) == ".venv" {
		project := filepath.Dir(envDir)
		return IsPoetryProject(project) && poetryInProject(project)
	}
	return false
}

// PoetryLocator lists the envs in poetry's central virtualenvs directory.
// Project-local envs are found by the workspace locator.
type PoetryLocator struct {
	opts Options
}

// NewPoetryLocator creates a PoetryLocator.
func NewPoetryLocator(opts Options) *PoetryLocator {
	return &PoetryLocator{opts: opts.normalized("poetry")}
}

// Kinds implements locator.KindReporter.
func (l *PoetryLocator) Kinds() []envinfo.Kind {
	return []envinfo.Kind{envinfo.KindPoetry}
}

// IterEnvs implements locator.Locator.
func (l *PoetryLocator) IterEnvs(ctx context.Context, _ *envinfo.Query) *locator.Iterator {
	return iterate(ctx, func(ctx context.Context, yield yieldFunc) {
		central := PoetryVirtualenvsDir(l.opts.Host)
		windows := l.opts.Host.IsWindows()
		for _, entry := range readDir(l.opts.Logger, central) {
			if ctx.Err() != nil {
				return
			}
			if !entry.IsDir() || !poetryEnvName.MatchString(entry.Name()) {
				continue
			}
			dir := filepath.Join(central, entry.Name())
			exe := interpreterInEnv(dir, windows)
			if exe == "" {
				continue
			}
			env := envinfo.NewEnv(envinfo.KindPoetry, exe, envinfo.SourceOther)
			env.Location = dir
			env.Name = entry.Name()
			if !yield(env) {
				return
			}
		}
	})
}

// ResolveEnv implements locator.Locator.
func (l *PoetryLocator) ResolveEnv(_ context.Context, path string) (*envinfo.Env, error) {
	return resolveOwned(path, l.opts.Host, func(p string) bool {
		return IsPoetryEnv(p, l.opts.Host)
	})
}
