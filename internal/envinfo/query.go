package envinfo

import (
	"sort"
	"strings"
)

// SearchLocations scopes a query to workspace roots.
type SearchLocations struct {
	Roots []string `json:"roots"`
	// IncludeNonRooted also admits environments that were not found under
	// any workspace root.
	IncludeNonRooted bool `json:"include_non_rooted,omitempty"`
}

// Query narrows discovery and lookups. A nil *Query matches everything.
type Query struct {
	Kinds           []Kind           `json:"kinds,omitempty"`
	SearchLocations *SearchLocations `json:"search_locations,omitempty"`
	// IgnoreCache asks GetEnvs to wait for a refresh instead of answering
	// from the cache alone.
	IgnoreCache bool `json:"ignore_cache,omitempty"`
}

// Key returns a canonical string for q, used to coalesce refreshes. The nil
// query has the empty key and an empty non-nil query has "*".
func (q *Query) Key() string {
	if q == nil {
		return ""
	}
	var b strings.Builder
	if len(q.Kinds) > 0 {
		kinds := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			kinds[i] = string(k)
		}
		sort.Strings(kinds)
		b.WriteString("kinds=")
		b.WriteString(strings.Join(kinds, ","))
	}
	if q.SearchLocations != nil {
		roots := make([]string, len(q.SearchLocations.Roots))
		for i, r := range q.SearchLocations.Roots {
			roots[i] = NormalizePath(r)
		}
		sort.Strings(roots)
		b.WriteString(";roots=")
		b.WriteString(strings.Join(roots, "|"))
		if q.SearchLocations.IncludeNonRooted {
			b.WriteString(";nonrooted")
		}
	}
	if b.Len() == 0 {
		return "*"
	}
	return b.String()
}

// Scope returns q without the IgnoreCache hint, or nil when nothing else
// narrows it.
func (q *Query) Scope() *Query {
	if q == nil || (len(q.Kinds) == 0 && q.SearchLocations == nil) {
		return nil
	}
	scoped := *q
	scoped.IgnoreCache = false
	return &scoped
}

// IsUnscoped reports whether q is the maximal query.
func (q *Query) IsUnscoped() bool {
	return q == nil
}

// MatchesKind reports whether kind k is admitted by q.
func (q *Query) MatchesKind(k Kind) bool {
	if q == nil || len(q.Kinds) == 0 {
		return true
	}
	for _, want := range q.Kinds {
		if want == k {
			return true
		}
	}
	return false
}

// MatchesAnyKind reports whether any of kinds is admitted by q. An empty
// kinds list means "could produce anything".
func (q *Query) MatchesAnyKind(kinds []Kind) bool {
	if q == nil || len(q.Kinds) == 0 || len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if q.MatchesKind(k) {
			return true
		}
	}
	return false
}

// Matches reports whether env satisfies q.
func (q *Query) Matches(env Env) bool {
	if q == nil {
		return true
	}
	if !q.MatchesKind(env.Kind) {
		return false
	}
	if q.SearchLocations == nil {
		return true
	}
	if env.SearchLocation == "" {
		return q.SearchLocations.IncludeNonRooted
	}
	for _, root := range q.SearchLocations.Roots {
		if IsParentPath(env.SearchLocation, root) {
			return true
		}
	}
	return false
}

// Filter returns the envs admitted by q.
func Filter(envs []Env, q *Query) []Env {
	if q == nil {
		return envs
	}
	out := make([]Env, 0, len(envs))
	for _, env := range envs {
		if q.Matches(env) {
			out = append(out, env)
		}
	}
	return out
}
