package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"pyenvs/internal/discovery"
	"pyenvs/internal/envinfo"
	"pyenvs/internal/hostenv"
	"pyenvs/internal/watch"
)

var (
	watchRoots    []string
	watchNoGlobal bool
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the cache current as environments are created or removed",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}

	cmd.Flags().StringSliceVar(&watchRoots, "root", nil, "Directories to watch (default: workspace roots and global environment homes)")
	cmd.Flags().BoolVar(&watchNoGlobal, "no-global", false, "Do not watch global environment homes")
	return cmd
}

// watchTargets lists the directories to watch, without duplicates.
func watchTargets(explicit, workspace []string, host *hostenv.Env, global bool) ([]string, error) {
	var roots []string
	seen := map[string]bool{}
	add := func(dir string) error {
		if dir == "" {
			return nil
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolve watch root %s: %w", dir, err)
		}
		key := envinfo.NormalizePath(abs)
		if seen[key] {
			return nil
		}
		seen[key] = true
		roots = append(roots, abs)
		return nil
	}

	if len(explicit) > 0 {
		for _, dir := range explicit {
			if err := add(dir); err != nil {
				return nil, err
			}
		}
		return roots, nil
	}

	candidates := append([]string{}, workspace...)
	if global {
		candidates = append(candidates, discovery.GlobalVirtualEnvHomes(host)...)
		if root := discovery.PyenvRoot(host); root != "" {
			candidates = append(candidates, filepath.Join(root, "versions"))
		}
		candidates = append(candidates, discovery.PoetryVirtualenvsDir(host))
	}
	for _, dir := range candidates {
		if err := add(dir); err != nil {
			return nil, err
		}
	}
	return roots, nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := loadSettings()
	if err != nil {
		return err
	}

	roots, err := watchTargets(watchRoots, s.Config.WorkspaceRoots, s.Host, !watchNoGlobal)
	if err != nil {
		return err
	}
	if len(roots) == 0 {
		return errors.New("nothing to watch: pass --root or configure workspace_roots")
	}

	a, err := openApp(ctx, s)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	tok := a.svc.OnChanged().Subscribe(func(ev envinfo.ChangeEvent) {
		if line := describeChange(ev); line != "" {
			fmt.Fprintln(out, line)
		}
	})
	defer a.svc.OnChanged().Unsubscribe(tok)

	fmt.Fprintf(out, "Watching %d directories (Ctrl-C to stop)\n", len(roots))
	err = a.svc.Watch(ctx, watch.Config{
		Roots:    roots,
		Patterns: s.Config.Watch.Patterns,
		Debounce: s.Config.Watch.Debounce,
		MaxDepth: s.Config.SearchDepth + 1,
		OnChange: func(_ context.Context, changed []string) error {
			a.logger.Info("change batch", "paths", len(changed))
			return nil
		},
		Logger: a.logger,
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// describeChange renders one collection change for the watch log, or "" for
// events that carry no environment.
func describeChange(ev envinfo.ChangeEvent) string {
	switch {
	case ev.Old == nil && ev.New != nil:
		return fmt.Sprintf("added    %-22s %s", ev.New.Kind, ev.New.Executable.Filename)
	case ev.Old != nil && ev.New != nil:
		return fmt.Sprintf("updated  %-22s %s", ev.New.Kind, ev.New.Executable.Filename)
	case ev.Old != nil:
		return fmt.Sprintf("removed  %-22s %s", ev.Old.Kind, ev.Old.Executable.Filename)
	}
	return ""
}
