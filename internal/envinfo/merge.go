package envinfo

// Merge combines two descriptors for the same environment. The higher
// priority kind is the base; version and executable details come from
// whichever side knows more; other empty fields are filled from the other
// side. Merge(a, b) equals Merge(b, a).
func Merge(a, b Env) Env {
	base, other := orderForMerge(a, b)
	out := base.Clone()

	if other.Version.score() > base.Version.score() {
		out.Version = other.Version
	}
	if other.Executable.score() > base.Executable.score() {
		out.Executable = other.Executable
	}

	if out.Arch == ArchUnknown {
		out.Arch = other.Arch
	}
	if out.Distro.Org == "" {
		out.Distro.Org = other.Distro.Org
	}
	if out.Location == "" {
		out.Location = other.Location
	}
	if out.SearchLocation == "" {
		out.SearchLocation = other.SearchLocation
	}
	if out.Name == "" {
		out.Name = other.Name
	}
	if out.DisplayName == "" {
		out.DisplayName = other.DisplayName
	}

	sources := make([]Source, 0, len(a.Source)+len(b.Source))
	sources = append(sources, a.Source...)
	sources = append(sources, b.Source...)
	out.Source = normalizeSources(sources)
	out.ID = EnvID(out.Executable.Filename)
	return out
}

// orderForMerge picks the merge base. Ties on kind fall back to the richer
// executable and then to the lexically smaller filename so argument order
// never matters.
func orderForMerge(a, b Env) (Env, Env) {
	if c := ComparePriority(a.Kind, b.Kind); c != 0 {
		if c < 0 {
			return a, b
		}
		return b, a
	}
	if sa, sb := a.Executable.score(), b.Executable.score(); sa != sb {
		if sa > sb {
			return a, b
		}
		return b, a
	}
	if sa, sb := a.Version.score(), b.Version.score(); sa != sb {
		if sa > sb {
			return a, b
		}
		return b, a
	}
	if a.Executable.Filename != b.Executable.Filename {
		if b.Executable.Filename < a.Executable.Filename {
			return b, a
		}
		return a, b
	}
	if c := CompareVersions(a.Version, b.Version); c != 0 {
		if c < 0 {
			return b, a
		}
		return a, b
	}
	for _, pair := range [][2]string{
		{a.Executable.SysPrefix, b.Executable.SysPrefix},
		{a.Location, b.Location},
		{a.SearchLocation, b.SearchLocation},
		{a.Name, b.Name},
	} {
		if pair[0] != pair[1] {
			if pair[1] < pair[0] {
				return b, a
			}
			return a, b
		}
	}
	return a, b
}

func (e Executable) score() int {
	s := 0
	if e.Filename != "" {
		s += 10
	}
	if e.SysPrefix != "" {
		s += 5
	}
	if e.Mtime > 0 {
		s += 2
	}
	if e.Ctime > 0 {
		s++
	}
	return s
}
