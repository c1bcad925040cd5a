package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"pyenvs/internal/collection"
	"pyenvs/internal/envinfo"
	"pyenvs/internal/tui"
)

var (
	refreshFlags      queryFlags
	refreshCached     bool
	refreshNoProgress bool
)

func newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run discovery and update the environment cache",
		Args:  cobra.NoArgs,
		RunE:  runRefresh,
	}

	refreshFlags.register(cmd)
	cmd.Flags().BoolVar(&refreshCached, "reuse", false, "Join a refresh already in progress instead of starting a fresh one")
	cmd.Flags().BoolVar(&refreshNoProgress, "no-progress", false, "Disable interactive progress output")
	return cmd
}

// refreshCounts tallies collection changes seen during a refresh.
type refreshCounts struct {
	mu      sync.Mutex
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

func (c *refreshCounts) record(ev envinfo.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case ev.Old == nil && ev.New != nil:
		c.Added++
	case ev.Old != nil && ev.New != nil:
		c.Updated++
	case ev.Old != nil:
		c.Removed++
	}
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd.Context())

	q, err := refreshFlags.query()
	if err != nil {
		return err
	}

	status := tui.NewStatusWriter(cmd.ErrOrStderr())
	defer status.Stop()

	status.Update("Loading config...")
	s, err := loadSettings()
	if err != nil {
		return err
	}

	status.Update("Loading cache...")
	a, err := openApp(ctx, s)
	if err != nil {
		return err
	}
	defer a.Close()

	outWriter := cmd.OutOrStdout()
	mode := tui.DetectMode(outWriter, refreshNoProgress, outputJSON)
	if mode != tui.ModePlain {
		status.Stop()
	}

	counts := &refreshCounts{}
	work := func(send func(tea.Msg)) error {
		reporter := tui.NewEnvReporter(send)
		changed := a.svc.OnChanged().Subscribe(func(ev envinfo.ChangeEvent) {
			counts.record(ev)
			reporter.Changed(ev)
		})
		defer a.svc.OnChanged().Unsubscribe(changed)
		progress := a.svc.OnProgress().Subscribe(reporter.Progress)
		defer a.svc.OnProgress().Unsubscribe(progress)

		return runRefreshPass(ctx, a.svc, q, !refreshCached)
	}

	switch mode {
	case tui.ModeTUI:
		model := tui.NewProgressModel("Refreshing Python environments", tui.EnvColumns())
		for _, env := range a.svc.Cache().GetAllEnvs() {
			if q.Matches(env) {
				model.AddRow(env.ID, tui.EnvRow(env, tui.StatusCached))
			}
		}
		if _, err := tui.RunWithWork(outWriter, model, work); err != nil {
			return err
		}
	case tui.ModePlain:
		send := func(msg tea.Msg) {
			if stage, ok := msg.(tui.StageMsg); ok {
				status.Update(stage.Text + "...")
			}
		}
		err := work(send)
		status.Stop()
		if err != nil {
			return err
		}
	default:
		if err := work(func(tea.Msg) {}); err != nil {
			return err
		}
	}

	envs, err := a.svc.GetEnvs(ctx, q.Scope())
	if err != nil {
		return err
	}
	sortEnvs(envs)

	switch mode {
	case tui.ModeJSON:
		return writeRefreshJSON(cmd, envs, counts)
	case tui.ModePlain:
		writeEnvTable(cmd, envs)
	}
	printRefreshSummary(outWriter, counts)
	return nil
}

// runRefreshPass triggers a refresh of q and waits for it to settle.
func runRefreshPass(ctx context.Context, svc *collection.Service, q *envinfo.Query, fresh bool) error {
	r := svc.TriggerRefresh(q.Scope(), collection.RefreshOptions{Fresh: fresh})
	return r.Wait(ctx)
}

func writeRefreshJSON(cmd *cobra.Command, envs []envinfo.Env, counts *refreshCounts) error {
	if envs == nil {
		envs = []envinfo.Env{}
	}
	counts.mu.Lock()
	defer counts.mu.Unlock()
	payload := struct {
		Envs    []envinfo.Env  `json:"envs"`
		Summary *refreshCounts `json:"summary"`
	}{
		Envs:    envs,
		Summary: counts,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode refresh json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func printRefreshSummary(w io.Writer, counts *refreshCounts) {
	counts.mu.Lock()
	defer counts.mu.Unlock()
	fmt.Fprintf(w, "Added: %d, Updated: %d, Removed: %d\n", counts.Added, counts.Updated, counts.Removed)
}
