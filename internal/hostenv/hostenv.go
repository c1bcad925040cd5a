// Package hostenv gives discovery code a single place to read environment
// variables and the user's home directory, so tests can substitute both.
package hostenv

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
)

// Env resolves host settings. Values from the process environment win over
// values loaded from an env file.
type Env struct {
	overlay map[string]string
	lookup  func(string) (string, bool)
	home    string
	goos    string
}

// FromOS reads the real process environment.
func FromOS() *Env {
	home, _ := os.UserHomeDir()
	return &Env{lookup: os.LookupEnv, home: home, goos: runtime.GOOS}
}

// Load reads the process environment and, when envFile is non-empty, the
// variables defined in that file.
func Load(envFile string) (*Env, error) {
	env := FromOS()
	if strings.TrimSpace(envFile) == "" {
		return env, nil
	}
	values, err := godotenv.Read(envFile)
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	env.overlay = values
	return env, nil
}

// FromMap builds an Env with fixed values, for tests.
func FromMap(vars map[string]string, home string) *Env {
	copied := make(map[string]string, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	return &Env{
		lookup: func(k string) (string, bool) {
			v, ok := copied[k]
			return v, ok
		},
		home: home,
		goos: runtime.GOOS,
	}
}

// WithOS returns a copy of e that reports goos as the operating system.
func (e *Env) WithOS(goos string) *Env {
	c := *e
	c.goos = goos
	return &c
}

// Lookup returns the value of key and whether it is set.
func (e *Env) Lookup(key string) (string, bool) {
	if e.lookup != nil {
		if v, ok := e.lookup(key); ok {
			return v, true
		}
	}
	v, ok := e.overlay[key]
	return v, ok
}

// Get returns the value of key or "".
func (e *Env) Get(key string) string {
	v, _ := e.Lookup(key)
	return v
}

// Home returns the user's home directory.
func (e *Env) Home() string {
	return e.home
}

// GOOS returns the operating system discovery should assume.
func (e *Env) GOOS() string {
	return e.goos
}

// IsWindows reports whether GOOS is windows.
func (e *Env) IsWindows() bool {
	return e.goos == "windows"
}

// PathList splits PATH into its non-empty entries.
func (e *Env) PathList() []string {
	raw := e.Get("PATH")
	if raw == "" && e.IsWindows() {
		raw = e.Get("Path")
	}
	var out []string
	for _, p := range filepath.SplitList(raw) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HomePath joins elem onto the home directory. It returns "" when the home
// directory is unknown.
func (e *Env) HomePath(elem ...string) string {
	if e.home == "" {
		return ""
	}
	return filepath.Join(append([]string{e.home}, elem...)...)
}
