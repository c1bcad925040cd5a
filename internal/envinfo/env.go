package envinfo

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// Source records where an environment was reported from.
type Source string

const (
	SourceOther           Source = "other"
	SourcePathEnvVar      Source = "path-env-var"
	SourceWindowsRegistry Source = "windows-registry"
	SourceConda           Source = "conda"
	SourcePyenv           Source = "pyenv"
	SourceWorkspace       Source = "workspace"
	SourceStore           Source = "store"
)

// Arch is the interpreter's bitness.
type Arch string

const (
	ArchUnknown Arch = ""
	ArchX86     Arch = "x86"
	ArchX64     Arch = "x64"
)

// Executable describes the interpreter binary. Ctime and Mtime are unix
// nanoseconds, -1 when unknown.
type Executable struct {
	Filename  string `json:"filename"`
	SysPrefix string `json:"sys_prefix,omitempty"`
	Ctime     int64  `json:"ctime"`
	Mtime     int64  `json:"mtime"`
}

// Distro captures who built the interpreter.
type Distro struct {
	Org string `json:"org,omitempty"`
}

// Env describes one discovered interpreter environment.
type Env struct {
	ID             string     `json:"id"`
	Kind           Kind       `json:"kind"`
	Executable     Executable `json:"executable"`
	Version        Version    `json:"version"`
	Arch           Arch       `json:"arch,omitempty"`
	Distro         Distro     `json:"distro"`
	Location       string     `json:"location,omitempty"`
	SearchLocation string     `json:"search_location,omitempty"`
	Name           string     `json:"name,omitempty"`
	DisplayName    string     `json:"display_name,omitempty"`
	Source         []Source   `json:"source,omitempty"`
}

// NewEnv builds a minimal descriptor for an executable.
func NewEnv(kind Kind, executable string, sources ...Source) Env {
	if kind == "" {
		kind = KindUnknown
	}
	env := Env{
		Kind: kind,
		Executable: Executable{
			Filename: executable,
			Ctime:    -1,
			Mtime:    -1,
		},
		Version: EmptyVersion(),
		Source:  normalizeSources(sources),
	}
	env.ID = EnvID(executable)
	return env
}

// Clone returns a deep copy of e.
func (e Env) Clone() Env {
	out := e
	if e.Source != nil {
		out.Source = append([]Source(nil), e.Source...)
	}
	return out
}

// Ptr returns a pointer to a copy of e.
func (e Env) Ptr() *Env {
	c := e.Clone()
	return &c
}

// NormalizePath cleans a path for identity comparisons. Case is folded on
// platforms with case-insensitive filesystems.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	switch runtime.GOOS {
	case "windows", "darwin":
		p = strings.ToLower(p)
	}
	return p
}

// EnvID derives the stable identifier for an executable path.
func EnvID(executable string) string {
	if executable == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(NormalizePath(executable)))
	return hex.EncodeToString(sum[:8])
}

func normalizeSources(in []Source) []Source {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[Source]struct{}, len(in))
	out := make([]Source, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
