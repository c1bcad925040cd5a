//go:build windows

package discovery

import (
	"errors"
	"path/filepath"

	"golang.org/x/sys/windows/registry"
)

func readRegistry() ([]RegistryEntry, error) {
	var out []RegistryEntry
	var errs []error
	for _, root := range []registry.Key{registry.CURRENT_USER, registry.LOCAL_MACHINE} {
		entries, err := readPythonKey(root)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, entries...)
	}
	if len(out) == 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func readPythonKey(root registry.Key) ([]RegistryEntry, error) {
	python, err := registry.OpenKey(root, `Software\Python`, registry.ENUMERATE_SUB_KEYS|registry.READ)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer python.Close()

	companies, err := python.ReadSubKeyNames(-1)
	if err != nil {
		return nil, err
	}
	var out []RegistryEntry
	for _, company := range companies {
		ck, err := registry.OpenKey(python, company, registry.ENUMERATE_SUB_KEYS|registry.READ)
		if err != nil {
			continue
		}
		tags, _ := ck.ReadSubKeyNames(-1)
		for _, tag := range tags {
			if e, ok := readTag(ck, company, tag); ok {
				out = append(out, e)
			}
		}
		ck.Close()
	}
	return out, nil
}

func readTag(company registry.Key, companyName, tag string) (RegistryEntry, bool) {
	tk, err := registry.OpenKey(company, tag, registry.READ)
	if err != nil {
		return RegistryEntry{}, false
	}
	defer tk.Close()

	e := RegistryEntry{Company: companyName, Tag: tag}
	e.Version, _, _ = tk.GetStringValue("SysVersion")
	if v, _, err := tk.GetStringValue("Version"); err == nil && v != "" {
		e.Version = v
	}
	e.Arch, _, _ = tk.GetStringValue("SysArchitecture")
	e.DisplayName, _, _ = tk.GetStringValue("DisplayName")

	ik, err := registry.OpenKey(tk, "InstallPath", registry.READ)
	if err != nil {
		return RegistryEntry{}, false
	}
	defer ik.Close()
	if exe, _, err := ik.GetStringValue("ExecutablePath"); err == nil && exe != "" {
		e.Executable = exe
	} else if dir, _, err := ik.GetStringValue(""); err == nil && dir != "" {
		e.Executable = filepath.Join(dir, "python.exe")
	}
	return e, e.Executable != ""
}
