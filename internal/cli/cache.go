package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pyenvs/internal/collection"
	"pyenvs/internal/envinfo"
	"pyenvs/internal/paths"
)

var (
	migrateTo     string
	migrateDryRun bool
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or manage the environment cache",
	}

	cmd.AddCommand(newCacheShowCmd())
	cmd.AddCommand(newCachePathCmd())
	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCacheMigrateCmd())
	return cmd
}

func newCacheShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cached environments without running discovery",
		Args:  cobra.NoArgs,
		RunE:  runCacheShow,
	}
}

func newCachePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache location",
		Args:  cobra.NoArgs,
		RunE:  runCachePath,
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached environment",
		Args:  cobra.NoArgs,
		RunE:  runCacheClear,
	}
}

func newCacheMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the cache into another backend",
		Args:  cobra.NoArgs,
		RunE:  runCacheMigrate,
	}

	cmd.Flags().StringVar(&migrateTo, "to", string(collection.BackendSQLite), "Target backend (json or sqlite)")
	cmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Report what would be copied without writing")
	return cmd
}

// openCache loads the configured store into a cache without starting
// discovery.
func openCache(ctx context.Context, s settings) (*collection.Cache, func() error, error) {
	store, closeStore, err := collection.OpenStore(collection.Backend(s.Config.Cache.Backend), s.cachePath(), nil)
	if err != nil {
		return nil, nil, err
	}
	c := collection.NewCache(store, nil)
	if err := c.Initialize(ctx); err != nil {
		closeStore()
		return nil, nil, err
	}
	return c, closeStore, nil
}

func runCacheShow(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd.Context())

	s, err := loadSettings()
	if err != nil {
		return err
	}
	c, closeStore, err := openCache(ctx, s)
	if err != nil {
		return err
	}
	defer closeStore()

	envs := c.GetAllEnvs()
	sortEnvs(envs)
	if outputJSON {
		return writeEnvsJSON(cmd, envs)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cache: %s (%s)\n", s.cachePath(), s.Config.Cache.Backend)
	writeEnvTable(cmd, envs)
	return nil
}

func runCachePath(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), s.cachePath())
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd.Context())

	s, err := loadSettings()
	if err != nil {
		return err
	}
	c, closeStore, err := openCache(ctx, s)
	if err != nil {
		return err
	}
	defer closeStore()

	n := c.Len()
	if err := c.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached environments from %s\n", n, s.cachePath())
	return nil
}

type migrateStats struct {
	Copied  int `json:"copied"`
	Skipped int `json:"skipped"`
}

func runCacheMigrate(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd.Context())

	s, err := loadSettings()
	if err != nil {
		return err
	}

	from := collection.Backend(strings.ToLower(s.Config.Cache.Backend))
	to := collection.Backend(strings.ToLower(migrateTo))
	if from == to {
		return fmt.Errorf("cache already uses the %s backend", to)
	}
	target := s.Layout.CacheFile(string(to))

	src, closeSrc, err := collection.OpenStore(from, s.cachePath(), nil)
	if err != nil {
		return err
	}
	defer closeSrc()
	envs, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load %s cache: %w", from, err)
	}

	stats := migrateStats{}
	out := cmd.OutOrStdout()
	kept := make([]envinfo.Env, 0, len(envs))
	for _, env := range envs {
		exists, err := paths.FileExists(env.Executable.Filename)
		if err != nil || !exists {
			fmt.Fprintf(out, "skip %s: executable missing\n", env.Executable.Filename)
			stats.Skipped++
			continue
		}
		kept = append(kept, env)
		stats.Copied++
	}

	if !migrateDryRun {
		dst, closeDst, err := collection.OpenStore(to, target, nil)
		if err != nil {
			return err
		}
		defer closeDst()
		if err := dst.Store(ctx, kept); err != nil {
			return fmt.Errorf("write %s cache: %w", to, err)
		}
	}

	if outputJSON {
		payload := struct {
			From   string       `json:"from"`
			To     string       `json:"to"`
			Target string       `json:"target"`
			DryRun bool         `json:"dry_run"`
			Stats  migrateStats `json:"stats"`
		}{string(from), string(to), target, migrateDryRun, stats}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("encode migrate json: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "Copied: %d, Skipped: %d -> %s\n", stats.Copied, stats.Skipped, target)
	if !migrateDryRun {
		fmt.Fprintf(out, "Set cache.backend to %q in %s to use it.\n", to, s.ConfigFile)
	}
	return nil
}
