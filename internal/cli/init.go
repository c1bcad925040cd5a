package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pyenvs/internal/config"
	"pyenvs/internal/logx"
	"pyenvs/internal/paths"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [workspace-root...]",
		Short: "Create the pyenvs data directory and a default configuration",
		RunE:  runInit,
	}

	return cmd
}

func resolveWorkspaceRoots(args []string) ([]string, error) {
	roots := make([]string, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolve workspace root %s: %w", arg, err)
		}
		exists, err := paths.DirExists(abs)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("workspace root does not exist: %s", abs)
		}
		roots = append(roots, abs)
	}
	return roots, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	roots, err := resolveWorkspaceRoots(args)
	if err != nil {
		return err
	}

	s, err := loadSettings()
	if err != nil {
		return err
	}

	if err := s.Layout.EnsureDirs(); err != nil {
		return err
	}

	logger, closer, err := logx.New(s.Layout.LogsDir, logx.Options{Verbose: verbose})
	if err != nil {
		return err
	}
	defer closer.Close()
	logger.Printf("pyenvs init: data=%s config=%s", s.Layout.DataDir, s.ConfigFile)

	created := make([]string, 0, 2)
	if err := ensureConfig(s.ConfigFile, roots, &created, logger); err != nil {
		return err
	}

	if len(created) == 0 {
		cmd.Printf("Already initialized (config at %s)\n", s.ConfigFile)
		return nil
	}

	cmd.Printf("Initialized pyenvs in %s\n", s.Layout.DataDir)
	for _, entry := range created {
		cmd.Printf("  created %s\n", entry)
	}
	return nil
}

func ensureConfig(path string, roots []string, created *[]string, logger Logger) error {
	exists, err := paths.FileExists(path)
	if err != nil {
		return fmt.Errorf("check config: %w", err)
	}
	if exists {
		logger.Printf("config exists: %s", path)
		return nil
	}

	cfg := config.Default()
	cfg.WorkspaceRoots = roots
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	logger.Printf("created config: %s", path)
	*created = append(*created, path)
	return nil
}

// Logger keeps the subset of log.Logger used locally, enabling easy testing.
type Logger interface {
	Printf(format string, v ...any)
}
