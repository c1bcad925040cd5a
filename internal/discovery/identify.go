package discovery

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/hostenv"
)

// Identify classifies an interpreter by the traces its installer left on
// disk. Checks run from the most to the least specific signature.
func Identify(executable string, host *hostenv.Env) envinfo.Kind {
	envDir := EnvDirFromExecutable(executable)
	switch {
	case IsCondaEnv(envDir):
		if IsCondaBase(envDir) {
			return envinfo.KindCondaBase
		}
		return envinfo.KindConda
	case IsWindowsStoreInterpreter(executable, host):
		return envinfo.KindWindowsStore
	case IsPipenvEnv(executable, host):
		return envinfo.KindPipenv
	case IsPyenvInterpreter(executable, host):
		return envinfo.KindPyenv
	case IsPoetryEnv(executable, host):
		return envinfo.KindPoetry
	case IsVenv(executable):
		if IsVirtualEnvWrapperEnv(executable, host) {
			return envinfo.KindVirtualEnvWrapper
		}
		return envinfo.KindVenv
	case IsVirtualEnvWrapperEnv(executable, host):
		return envinfo.KindVirtualEnvWrapper
	case IsVirtualEnv(executable):
		return envinfo.KindVirtualEnv
	case IsMacDefault(executable, host):
		return envinfo.KindMacDefault
	case IsSystemInterpreter(executable, host):
		return envinfo.KindSystem
	}
	return envinfo.KindUnknown
}

// IsCondaEnv reports whether envDir holds a conda-meta directory.
func IsCondaEnv(envDir string) bool {
	return dirExists(filepath.Join(envDir, "conda-meta"))
}

// IsCondaBase reports whether envDir is a conda installation root rather
// than one of its environments.
func IsCondaBase(envDir string) bool {
	return IsCondaEnv(envDir) &&
		(dirExists(filepath.Join(envDir, "condabin")) || dirExists(filepath.Join(envDir, "pkgs")))
}

// IsVenv reports whether a pyvenv.cfg sits next to the interpreter or in its
// environment directory.
func IsVenv(executable string) bool {
	dir := filepath.Dir(executable)
	return fileExists(filepath.Join(dir, "pyvenv.cfg")) || fileExists(filepath.Join(filepath.Dir(dir), "pyvenv.cfg"))
}

// IsVirtualEnv reports whether activate scripts sit next to the interpreter.
func IsVirtualEnv(executable string) bool {
	dir := filepath.Dir(executable)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.HasPrefix(strings.ToLower(e.Name()), "activate") {
			return true
		}
	}
	return false
}

// WorkonHome returns the virtualenvwrapper home: WORKON_HOME, else
// ~/.virtualenvs (~/Envs on windows).
func WorkonHome(host *hostenv.Env) string {
	if v := strings.TrimSpace(host.Get("WORKON_HOME")); v != "" {
		return v
	}
	if host.IsWindows() {
		return host.HomePath("Envs")
	}
	return host.HomePath(".virtualenvs")
}

// IsVirtualEnvWrapperEnv reports whether the environment lives directly
// under the virtualenvwrapper home.
func IsVirtualEnvWrapperEnv(executable string, host *hostenv.Env) bool {
	home := WorkonHome(host)
	if home == "" {
		return false
	}
	envDir := EnvDirFromExecutable(executable)
	return envinfo.SamePath(filepath.Dir(envDir), home) && (IsVenv(executable) || IsVirtualEnv(executable))
}

// PyenvRoot returns PYENV_ROOT, PYENV (windows) or ~/.pyenv.
func PyenvRoot(host *hostenv.Env) string {
	if v := strings.TrimSpace(host.Get("PYENV_ROOT")); v != "" {
		return v
	}
	if v := strings.TrimSpace(host.Get("PYENV")); v != "" {
		return v
	}
	if host.IsWindows() {
		return host.HomePath(".pyenv", "pyenv-win")
	}
	return host.HomePath(".pyenv")
}

// IsPyenvInterpreter reports whether executable lives under pyenv's
// versions directory.
func IsPyenvInterpreter(executable string, host *hostenv.Env) bool {
	root := PyenvRoot(host)
	if root == "" {
		return false
	}
	return envinfo.IsParentPath(executable, filepath.Join(root, "versions"))
}

func pipfileName(host *hostenv.Env) string {
	if v := strings.TrimSpace(host.Get("PIPENV_PIPFILE")); v != "" {
		return v
	}
	return "Pipfile"
}

// associatedPipfile looks for a Pipfile in searchDir, and with
// lookIntoParents in up to PIPENV_MAX_DEPTH (default 3) ancestors.
func associatedPipfile(searchDir string, lookIntoParents bool, host *hostenv.Env) string {
	name := pipfileName(host)
	depth := 1
	if lookIntoParents {
		depth = 3
		if v, err := strconv.Atoi(strings.TrimSpace(host.Get("PIPENV_MAX_DEPTH"))); err == nil && v > 0 {
			depth = v
		}
	}
	for depth > 0 && searchDir != filepath.Dir(searchDir) {
		candidate := filepath.Join(searchDir, name)
		if fileExists(candidate) {
			return candidate
		}
		searchDir = filepath.Dir(searchDir)
		depth--
	}
	return ""
}

// localPipfile handles a project-local ".venv" next to a Pipfile.
func localPipfile(executable string, host *hostenv.Env) string {
	venvDir := filepath.Dir(filepath.Dir(executable))
	if filepath.Base(venvDir) != ".venv" {
		return ""
	}
	return associatedPipfile(filepath.Dir(venvDir), false, host)
}

// globalPipfile handles a centrally stored env whose .project file points
// at the project directory.
func globalPipfile(executable string, host *hostenv.Env) string {
	dotProject := filepath.Join(filepath.Dir(filepath.Dir(executable)), ".project")
	data, err := os.ReadFile(dotProject)
	if err != nil {
		return ""
	}
	project := strings.TrimSpace(string(data))
	if project == "" || !dirExists(project) {
		return ""
	}
	if !strings.Contains(executable, string(filepath.Separator)+filepath.Base(project)+"-") {
		return ""
	}
	return associatedPipfile(project, false, host)
}

// IsPipenvEnv reports whether executable belongs to a pipenv environment.
func IsPipenvEnv(executable string, host *hostenv.Env) bool {
	return localPipfile(executable, host) != "" || globalPipfile(executable, host) != ""
}

// PipenvProject returns the project directory a pipenv environment belongs
// to, or "".
func PipenvProject(executable string, host *hostenv.Env) string {
	if p := localPipfile(executable, host); p != "" {
		return filepath.Dir(p)
	}
	if p := globalPipfile(executable, host); p != "" {
		return filepath.Dir(p)
	}
	return ""
}

// IsPipenvRelatedToFolder reports whether a global pipenv environment
// serves the project found at or above folder.
func IsPipenvRelatedToFolder(executable, folder string, host *hostenv.Env) bool {
	envPipfile := globalPipfile(executable, host)
	if envPipfile == "" {
		return false
	}
	folderPipfile := associatedPipfile(folder, host.Get("PIPENV_NO_INHERIT") == "", host)
	return folderPipfile != "" && envinfo.SamePath(envPipfile, folderPipfile)
}

// IsWindowsStoreInterpreter reports whether executable is one of the
// WindowsApps app-execution aliases or lives in the store packages dir.
func IsWindowsStoreInterpreter(executable string, host *hostenv.Env) bool {
	if !host.IsWindows() {
		return false
	}
	lower := strings.ToLower(executable)
	return strings.Contains(lower, `\microsoft\windowsapps\`) ||
		strings.Contains(lower, `\program files\windowsapps\`)
}

// IsMacDefault reports whether executable is the interpreter shipped with
// macOS.
func IsMacDefault(executable string, host *hostenv.Env) bool {
	if host.GOOS() != "darwin" {
		return false
	}
	return strings.HasPrefix(executable, "/usr/bin/python") ||
		strings.HasPrefix(executable, "/System/Library/Frameworks/Python.framework/")
}

var systemPrefixes = []string{"/usr/bin/", "/usr/local/bin/", "/bin/", "/usr/sbin/", "/opt/homebrew/bin/"}

// IsSystemInterpreter reports whether executable sits in a system-wide
// location.
func IsSystemInterpreter(executable string, host *hostenv.Env) bool {
	if host.IsWindows() {
		lower := strings.ToLower(executable)
		for _, key := range []string{"ProgramFiles", "ProgramFiles(x86)", "ProgramW6432"} {
			if pf := strings.ToLower(host.Get(key)); pf != "" && strings.HasPrefix(lower, pf) {
				return true
			}
		}
		return false
	}
	for _, p := range systemPrefixes {
		if strings.HasPrefix(executable, p) {
			return true
		}
	}
	return false
}
