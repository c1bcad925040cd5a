package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"pyenvs/internal/collection"
	"pyenvs/internal/envinfo"
)

// EnvColumns is the table layout used for environment listings.
func EnvColumns() []Column {
	return []Column{
		{Header: "KIND", Width: 22},
		{Header: "VERSION", Width: 9},
		{Header: "NAME", Width: 16},
		{Header: "EXECUTABLE", Width: 48},
		{Header: "STATUS", Width: 9},
	}
}

// EnvFields maps env onto EnvColumns.
func EnvFields(env envinfo.Env, status string) map[string]string {
	version := "-"
	if !env.Version.IsEmpty() {
		version = env.Version.String()
	}
	return map[string]string{
		"KIND":       string(env.Kind),
		"VERSION":    version,
		"NAME":       NonEmptyOrDash(env.Name),
		"EXECUTABLE": env.Executable.Filename,
		"STATUS":     status,
	}
}

// EnvRow orders EnvFields by EnvColumns for ProgressModel.AddRow.
func EnvRow(env envinfo.Env, status string) []string {
	fields := EnvFields(env, status)
	cols := EnvColumns()
	row := make([]string, len(cols))
	for i, c := range cols {
		row[i] = fields[c.Header]
	}
	return row
}

// EnvStatus reports whether env carries interpreter details yet.
func EnvStatus(env envinfo.Env) string {
	if env.Executable.SysPrefix != "" && !env.Version.IsEmpty() {
		return StatusResolved
	}
	return StatusFound
}

// StageText is the footer shown for a refresh stage.
func StageText(stage collection.Stage) string {
	switch stage {
	case collection.StageDiscoveryStarted:
		return "Discovering"
	case collection.StageAllPathsDiscovered:
		return "Resolving"
	case collection.StageDiscoveryFinished:
		return "Finished"
	}
	return string(stage)
}

// EnvReporter turns collection events into table messages. Rows stay keyed
// by the first identity an environment was reported under so a merge that
// changes its executable edits the row in place.
type EnvReporter struct {
	send func(tea.Msg)

	mu    sync.Mutex
	alias map[string]string
}

// NewEnvReporter constructs a reporter that forwards messages to send.
func NewEnvReporter(send func(tea.Msg)) *EnvReporter {
	return &EnvReporter{send: send, alias: map[string]string{}}
}

func (r *EnvReporter) key(env envinfo.Env) string {
	if k, ok := r.alias[env.ID]; ok {
		return k
	}
	return env.ID
}

// Changed handles a collection change event.
func (r *EnvReporter) Changed(ev envinfo.ChangeEvent) {
	r.mu.Lock()
	var msg RowUpdateMsg
	switch {
	case ev.New != nil && ev.Old != nil:
		k := r.key(*ev.Old)
		r.alias[ev.New.ID] = k
		msg = RowUpdateMsg{Key: k, Fields: EnvFields(*ev.New, EnvStatus(*ev.New))}
	case ev.New != nil:
		msg = RowUpdateMsg{Key: r.key(*ev.New), Fields: EnvFields(*ev.New, EnvStatus(*ev.New))}
	case ev.Old != nil:
		msg = RowUpdateMsg{Key: r.key(*ev.Old), Fields: map[string]string{"STATUS": StatusInvalid}}
	default:
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.send(msg)
}

// Progress handles a refresh progress event.
func (r *EnvReporter) Progress(ev collection.ProgressEvent) {
	r.send(StageMsg{Text: StageText(ev.Stage)})
}
