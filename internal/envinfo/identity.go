package envinfo

import "path/filepath"

// AreSameEnv reports whether a and b denote the same environment: the same
// executable, or executables in the same directory with matching versions.
// With allowPartial, matching major.minor is enough.
func AreSameEnv(a, b Env, allowPartial bool) bool {
	left, right := a.Executable.Filename, b.Executable.Filename
	if left == "" || right == "" {
		return false
	}
	if NormalizePath(left) == NormalizePath(right) {
		return true
	}
	if NormalizePath(filepath.Dir(left)) != NormalizePath(filepath.Dir(right)) {
		return false
	}
	if a.Version.Major < 0 || b.Version.Major < 0 {
		return false
	}
	if AreIdenticalVersions(a.Version, b.Version) {
		return true
	}
	return allowPartial && AreSimilarVersions(a.Version, b.Version)
}

// SamePath reports whether two executable paths are the same after
// normalization.
func SamePath(a, b string) bool {
	return NormalizePath(a) == NormalizePath(b)
}

// IsParentPath reports whether child lies inside (or equals) parent.
func IsParentPath(child, parent string) bool {
	c, p := NormalizePath(child), NormalizePath(parent)
	if c == "" || p == "" {
		return false
	}
	if c == p {
		return true
	}
	rel, err := filepath.Rel(p, c)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && (len(rel) < 3 || rel[:3] != ".."+string(filepath.Separator))
}
