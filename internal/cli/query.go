package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pyenvs/internal/envinfo"
)

// queryFlags holds the filters shared by list, refresh and watch.
type queryFlags struct {
	kinds       []string
	roots       []string
	nonRooted   bool
	ignoreCache bool
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.kinds, "kind", nil, "Limit to environment kinds (repeat flag for multiple)")
	cmd.Flags().StringSliceVar(&f.roots, "root", nil, "Limit to environments under workspace roots (repeat flag for multiple)")
	cmd.Flags().BoolVar(&f.nonRooted, "include-non-rooted", false, "With --root, also include environments found outside any root")
}

// query builds the envinfo query, or nil when no filter was given.
func (f queryFlags) query() (*envinfo.Query, error) {
	if len(f.kinds) == 0 && len(f.roots) == 0 && !f.ignoreCache {
		return nil, nil
	}

	q := &envinfo.Query{IgnoreCache: f.ignoreCache}
	for _, raw := range f.kinds {
		k, err := envinfo.ParseKind(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		q.Kinds = append(q.Kinds, k)
	}
	if len(f.roots) > 0 {
		loc := &envinfo.SearchLocations{IncludeNonRooted: f.nonRooted}
		for _, root := range f.roots {
			abs, err := filepath.Abs(root)
			if err != nil {
				return nil, fmt.Errorf("resolve root %s: %w", root, err)
			}
			loc.Roots = append(loc.Roots, abs)
		}
		q.SearchLocations = loc
	}
	return q, nil
}
