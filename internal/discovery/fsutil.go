package discovery

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
)

var interpreterName = regexp.MustCompile(`(?i)^python(\d+(\.\d+)?)?(\.exe)?$`)

// IsInterpreterName reports whether name looks like a python executable
// ("python", "python3", "python3.11", "python.exe").
func IsInterpreterName(name string) bool {
	return interpreterName.MatchString(name)
}

// isPlainInterpreterName is the stricter check used when walking env homes:
// only "python" and "python.exe" count.
func isPlainInterpreterName(name string) bool {
	lower := strings.ToLower(name)
	return lower == "python" || lower == "python.exe"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// readDir lists a directory, treating errors as "nothing there".
func readDir(logger *log.Logger, dir string) []os.DirEntry {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Debug("skipping unreadable directory", "dir", dir, "err", err)
		}
		return nil
	}
	return entries
}

// EnvDirFromExecutable returns the environment directory for an
// interpreter: the parent of bin/ or Scripts/, else the interpreter's own
// directory.
func EnvDirFromExecutable(executable string) string {
	dir := filepath.Dir(executable)
	switch strings.ToLower(filepath.Base(dir)) {
	case "bin", "scripts":
		return filepath.Dir(dir)
	}
	return dir
}

// interpreterInEnv returns the python executable inside an environment
// directory, checking the unix and windows layouts.
func interpreterInEnv(envDir string, windows bool) string {
	candidates := []string{
		filepath.Join(envDir, "bin", "python"),
		filepath.Join(envDir, "bin", "python3"),
	}
	if windows {
		candidates = []string{
			filepath.Join(envDir, "Scripts", "python.exe"),
			filepath.Join(envDir, "python.exe"),
		}
	}
	for _, c := range candidates {
		if fileExists(c) {
			return c
		}
	}
	return ""
}

// findInterpreters walks root up to depth levels and returns executables
// named python or python.exe, in walk order.
func findInterpreters(logger *log.Logger, root string, depth int) []string {
	var out []string
	var walk func(dir string, level int)
	walk = func(dir string, level int) {
		if level > depth {
			return
		}
		for _, entry := range readDir(logger, dir) {
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				walk(full, level+1)
				continue
			}
			if isPlainInterpreterName(entry.Name()) {
				out = append(out, full)
			}
		}
	}
	walk(root, 0)
	return out
}
