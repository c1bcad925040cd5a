package discovery

import (
	"context"
	"path/filepath"
	"strings"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/locator"
)

// RegistryEntry is one interpreter recorded under Software\Python.
type RegistryEntry struct {
	Company     string
	Tag         string
	Executable  string
	Version     string
	Arch        string
	DisplayName string
}

// registryReader lists registry entries. The platform default is replaced
// in tests.
type registryReader func() ([]RegistryEntry, error)

// WindowsRegistryLocator lists interpreters registered per PEP 514.
type WindowsRegistryLocator struct {
	opts Options
	read registryReader
}

// NewWindowsRegistryLocator creates a WindowsRegistryLocator. It yields
// nothing off windows.
func NewWindowsRegistryLocator(opts Options) *WindowsRegistryLocator {
	return &WindowsRegistryLocator{opts: opts.normalized("windows-registry"), read: readRegistry}
}

// IterEnvs implements locator.Locator.
func (l *WindowsRegistryLocator) IterEnvs(ctx context.Context, _ *envinfo.Query) *locator.Iterator {
	return iterate(ctx, func(ctx context.Context, yield yieldFunc) {
		entries, err := l.read()
		if err != nil {
			l.opts.Logger.Warn("reading registry", "err", err)
			return
		}
		for _, e := range entries {
			if ctx.Err() != nil {
				return
			}
			if e.Executable == "" || !fileExists(e.Executable) {
				continue
			}
			if !yield(l.envFor(e)) {
				return
			}
		}
	})
}

func (l *WindowsRegistryLocator) envFor(e RegistryEntry) envinfo.Env {
	kind := Identify(e.Executable, l.opts.Host)
	if kind == envinfo.KindUnknown {
		kind = envinfo.KindSystem
	}
	env := envinfo.NewEnv(kind, e.Executable, envinfo.SourceWindowsRegistry)
	if v, err := envinfo.ParseVersion(e.Version); err == nil {
		env.Version = v
	}
	switch strings.ToLower(e.Arch) {
	case "64bit":
		env.Arch = envinfo.ArchX64
	case "32bit":
		env.Arch = envinfo.ArchX86
	}
	if e.Company != "" && !strings.EqualFold(e.Company, "PythonCore") {
		env.Distro.Org = e.Company
	}
	env.DisplayName = e.DisplayName
	env.Location = filepath.Dir(e.Executable)
	return env
}

// ResolveEnv implements locator.Locator.
func (l *WindowsRegistryLocator) ResolveEnv(_ context.Context, path string) (*envinfo.Env, error) {
	entries, err := l.read()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if envinfo.SamePath(e.Executable, path) && fileExists(path) {
			env := l.envFor(e)
			return &env, nil
		}
	}
	return nil, locator.ErrNotFound
}
