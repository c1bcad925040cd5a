package envinfo

import (
	"fmt"
	"sort"
)

// Kind identifies how an environment was installed or created.
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindSystem            Kind = "global-system"
	KindMacDefault        Kind = "global-mac-default"
	KindWindowsStore      Kind = "global-windows-store"
	KindPyenv             Kind = "global-pyenv"
	KindCondaBase         Kind = "global-conda-base"
	KindPoetry            Kind = "global-poetry"
	KindCustom            Kind = "global-custom"
	KindOtherGlobal       Kind = "global-other"
	KindVenv              Kind = "virt-venv"
	KindVirtualEnv        Kind = "virt-virtualenv"
	KindVirtualEnvWrapper Kind = "virt-virtualenvwrapper"
	KindPipenv            Kind = "virt-pipenv"
	KindConda             Kind = "virt-conda"
	KindOtherVirtual      Kind = "virt-other"
)

// kindPriority is the single ordered table of kinds, highest priority first.
// Merging and ranking both read it through Priority.
var kindPriority = []Kind{
	KindCondaBase,
	KindConda,
	KindWindowsStore,
	KindPipenv,
	KindPyenv,
	KindPoetry,
	KindVenv,
	KindVirtualEnvWrapper,
	KindVirtualEnv,
	KindOtherVirtual,
	KindOtherGlobal,
	KindMacDefault,
	KindSystem,
	KindCustom,
	KindUnknown,
}

var kindRank = func() map[Kind]int {
	m := make(map[Kind]int, len(kindPriority))
	for i, k := range kindPriority {
		m[k] = i
	}
	return m
}()

// Kinds returns every known kind in priority order.
func Kinds() []Kind {
	out := make([]Kind, len(kindPriority))
	copy(out, kindPriority)
	return out
}

// Priority returns the rank of k; lower values win. Unrecognized kinds rank
// with KindUnknown.
func (k Kind) Priority() int {
	if r, ok := kindRank[k]; ok {
		return r
	}
	return kindRank[KindUnknown]
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := kindRank[k]
	return ok
}

// IsVirtual reports whether k names a virtual environment kind.
func (k Kind) IsVirtual() bool {
	switch k {
	case KindVenv, KindVirtualEnv, KindVirtualEnvWrapper, KindPipenv, KindConda, KindOtherVirtual, KindPoetry:
		return true
	}
	return false
}

// ComparePriority orders a before b when a has the higher priority.
func ComparePriority(a, b Kind) int {
	return a.Priority() - b.Priority()
}

// SortByPriority sorts envs in place, highest priority kind first. The sort is
// stable so discovery order is kept within a kind.
func SortByPriority(envs []Env) {
	sort.SliceStable(envs, func(i, j int) bool {
		return envs[i].Kind.Priority() < envs[j].Kind.Priority()
	})
}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return KindUnknown, fmt.Errorf("unknown environment kind %q", s)
	}
	return k, nil
}
