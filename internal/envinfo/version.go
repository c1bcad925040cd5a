package envinfo

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ReleaseLevel is the pre-release stage reported by sys.version_info.
type ReleaseLevel string

const (
	ReleaseAlpha     ReleaseLevel = "alpha"
	ReleaseBeta      ReleaseLevel = "beta"
	ReleaseCandidate ReleaseLevel = "candidate"
	ReleaseFinal     ReleaseLevel = "final"
)

// Release pairs a release level with its serial number.
type Release struct {
	Level  ReleaseLevel `json:"level"`
	Serial int          `json:"serial"`
}

// Version is an interpreter version. Unknown numeric fields are -1.
type Version struct {
	Major      int     `json:"major"`
	Minor      int     `json:"minor"`
	Micro      int     `json:"micro"`
	Release    Release `json:"release"`
	SysVersion string  `json:"sys_version,omitempty"`
}

// EmptyVersion returns the sentinel for "nothing known".
func EmptyVersion() Version {
	return Version{
		Major:   -1,
		Minor:   -1,
		Micro:   -1,
		Release: Release{Level: ReleaseFinal, Serial: 0},
	}
}

// IsEmpty reports whether no component of v is known.
func (v Version) IsEmpty() bool {
	return v.Major < 0 && v.Minor < 0 && v.Micro < 0 && v.SysVersion == ""
}

func (v Version) String() string {
	if v.Major < 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(v.Major))
	if v.Minor >= 0 {
		fmt.Fprintf(&b, ".%d", v.Minor)
		if v.Micro >= 0 {
			fmt.Fprintf(&b, ".%d", v.Micro)
		}
	}
	switch v.Release.Level {
	case ReleaseAlpha:
		fmt.Fprintf(&b, "a%d", v.Release.Serial)
	case ReleaseBeta:
		fmt.Fprintf(&b, "b%d", v.Release.Serial)
	case ReleaseCandidate:
		fmt.Fprintf(&b, "rc%d", v.Release.Serial)
	}
	return b.String()
}

// score ranks how much of v is known; used to pick between two versions
// when merging.
func (v Version) score() int {
	s := 0
	if v.Major >= 0 {
		s += 20
	}
	if v.Minor >= 0 {
		s += 10
	}
	if v.Micro >= 0 {
		s += 5
	}
	if v.Release.Level != "" {
		s += 3
	}
	if v.Release.Serial > 0 || v.SysVersion != "" {
		s++
	}
	return s
}

var versionPattern = regexp.MustCompile(
	`^(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:(a|b|c|rc)(\d+)|-(final|alpha|beta|candidate)(\d*))?`,
)

// ParseVersion parses strings such as "3.10.4", "3.11.0rc1", "3.9.7-final"
// or a "Python 3.8.10" banner.
func ParseVersion(raw string) (Version, error) {
	s := strings.TrimSpace(raw)
	if len(s) >= 6 && strings.EqualFold(s[:6], "python") {
		s = strings.TrimSpace(s[6:])
	}
	s = strings.TrimPrefix(s, "v")

	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return EmptyVersion(), fmt.Errorf("parse version %q: no version found", raw)
	}
	if rest := s[len(m[0]):]; rest != "" && rest[0] >= '0' && rest[0] <= '9' {
		return EmptyVersion(), fmt.Errorf("parse version %q: trailing digits", raw)
	}

	v := EmptyVersion()
	v.Major = atoiOr(m[1], -1)
	v.Minor = atoiOr(m[2], -1)
	v.Micro = atoiOr(m[3], -1)

	switch {
	case m[4] != "":
		v.Release = Release{Level: normalizeLevel(m[4]), Serial: atoiOr(m[5], 0)}
	case m[6] != "":
		v.Release = Release{Level: normalizeLevel(m[6]), Serial: atoiOr(m[7], 0)}
	}
	return v, nil
}

func normalizeLevel(s string) ReleaseLevel {
	switch strings.ToLower(s) {
	case "a", "alpha":
		return ReleaseAlpha
	case "b", "beta":
		return ReleaseBeta
	case "c", "rc", "candidate":
		return ReleaseCandidate
	default:
		return ReleaseFinal
	}
}

// NormalizeReleaseLevel maps the level names python reports onto ReleaseLevel.
func NormalizeReleaseLevel(s string) ReleaseLevel {
	return normalizeLevel(s)
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

var (
	dirVersionPattern    = regexp.MustCompile(`^(\d+\.\d+(?:\.\d+)?(?:(?:a|b|rc)\d+)?)(?:-dev)?$`)
	windowsFolderPattern = regexp.MustCompile(`(?i)^python(\d)(\d+)(?:-32|-64)?$`)
)

// VersionFromPath extracts a version hint from an executable path, e.g.
// ".../bin/python3.9" or ".../pyenv/versions/3.8.10/bin/python". It returns
// EmptyVersion when nothing useful is found.
func VersionFromPath(executable string) Version {
	base := strings.ToLower(filepath.Base(executable))
	base = strings.TrimSuffix(base, ".exe")
	if rest, ok := strings.CutPrefix(base, "python"); ok && rest != "" {
		if v, err := ParseVersion(rest); err == nil {
			return v
		}
	}

	dir := filepath.Dir(executable)
	for i := 0; i < 3; i++ {
		name := filepath.Base(dir)
		if m := dirVersionPattern.FindStringSubmatch(name); m != nil {
			if v, err := ParseVersion(m[1]); err == nil {
				return v
			}
		}
		if m := windowsFolderPattern.FindStringSubmatch(name); m != nil {
			v := EmptyVersion()
			v.Major = atoiOr(m[1], -1)
			v.Minor = atoiOr(m[2], -1)
			return v
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return EmptyVersion()
}

// AreIdenticalVersions compares the numeric and release components, ignoring
// SysVersion.
func AreIdenticalVersions(a, b Version) bool {
	return a.Major == b.Major && a.Minor == b.Minor && a.Micro == b.Micro &&
		releaseOrFinal(a.Release) == releaseOrFinal(b.Release)
}

func releaseOrFinal(r Release) Release {
	if r.Level == "" {
		r.Level = ReleaseFinal
	}
	return r
}

// AreSimilarVersions reports whether a and b share major.minor. An unknown
// (-1) component matches anything, and a bare major 2 is taken to mean 2.7.
// Both majors must be known.
func AreSimilarVersions(a, b Version) bool {
	if a.Major < 0 || b.Major < 0 {
		return false
	}
	if a.Major != b.Major {
		return false
	}
	am, bm := a.Minor, b.Minor
	if a.Major == 2 {
		if am < 0 {
			am = 7
		}
		if bm < 0 {
			bm = 7
		}
	}
	return am < 0 || bm < 0 || am == bm
}

// CompareVersions orders versions by major, minor, micro and release.
func CompareVersions(a, b Version) int {
	for _, pair := range [][2]int{{a.Major, b.Major}, {a.Minor, b.Minor}, {a.Micro, b.Micro}} {
		if pair[0] != pair[1] {
			return pair[0] - pair[1]
		}
	}
	ra, rb := levelRank(a.Release.Level), levelRank(b.Release.Level)
	if ra != rb {
		return ra - rb
	}
	return a.Release.Serial - b.Release.Serial
}

func levelRank(l ReleaseLevel) int {
	switch l {
	case ReleaseAlpha:
		return 0
	case ReleaseBeta:
		return 1
	case ReleaseCandidate:
		return 2
	default:
		return 3
	}
}
