package discovery

import (
	"pyenvs/internal/locator"
)

// Sources selects which low-level locators take part in discovery.
type Sources struct {
	Conda             bool
	Pyenv             bool
	GlobalVirtualEnvs bool
	Poetry            bool
	Workspace         bool
	Path              bool
	WindowsStore      bool
	WindowsRegistry   bool
}

// AllSources enables every locator.
func AllSources() Sources {
	return Sources{true, true, true, true, true, true, true, true}
}

// Set is the assembled low-level stage of the pipeline.
type Set struct {
	*locator.Chain
	// Conda is nil when conda discovery is disabled.
	Conda *CondaLocator
	// Names lists the enabled locators in chain order.
	Names []string
}

// Build creates the enabled locators and chains them. condaPath and roots
// configure the conda and workspace locators.
func Build(opts Options, enabled Sources, condaPath string, roots []string) *Set {
	set := &Set{}
	var locs []locator.Locator
	add := func(name string, on bool, mk func() locator.Locator) {
		if !on {
			return
		}
		set.Names = append(set.Names, name)
		locs = append(locs, mk())
	}

	windows := opts.Host != nil && opts.Host.IsWindows()
	add("windows-registry", enabled.WindowsRegistry && windows, func() locator.Locator { return NewWindowsRegistryLocator(opts) })
	add("windows-store", enabled.WindowsStore && windows, func() locator.Locator { return NewWindowsStoreLocator(opts) })
	add("pyenv", enabled.Pyenv, func() locator.Locator { return NewPyenvLocator(opts) })
	add("conda", enabled.Conda, func() locator.Locator {
		set.Conda = NewCondaLocator(opts, condaPath)
		return set.Conda
	})
	add("global-venvs", enabled.GlobalVirtualEnvs, func() locator.Locator { return NewGlobalVirtualEnvLocator(opts) })
	add("poetry", enabled.Poetry, func() locator.Locator { return NewPoetryLocator(opts) })
	add("workspace", enabled.Workspace, func() locator.Locator { return NewWorkspaceLocator(opts, roots) })
	add("path", enabled.Path, func() locator.Locator { return NewPathEnvVarLocator(opts) })

	set.Chain = locator.NewChain(locs...)
	return set
}
