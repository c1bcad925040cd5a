package envinfo

// ChangeEvent announces that the set of environments may have changed.
// Kind and SearchLocation narrow what changed when known; Old and New are set
// for changes to a single cached entry.
type ChangeEvent struct {
	Kind           *Kind  `json:"kind,omitempty"`
	SearchLocation string `json:"search_location,omitempty"`
	Old            *Env   `json:"old,omitempty"`
	New            *Env   `json:"new,omitempty"`
}

// UpdateEvent refines an entry previously yielded at Index. A nil Update
// means the entry is invalid and should be dropped.
type UpdateEvent struct {
	Index  int
	Old    *Env
	Update *Env
}

// Invalidates reports whether the event drops its entry.
func (e *UpdateEvent) Invalidates() bool {
	return e != nil && e.Update == nil
}
