package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"pyenvs/internal/config"
	"pyenvs/internal/discovery"
	"pyenvs/internal/hostenv"
	"pyenvs/internal/paths"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, tools and cache health",
		RunE:  runDoctor,
	}
}

type healthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Summary string `json:"summary"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd.Context())

	s, err := loadSettings()
	if err != nil {
		checks := []healthCheck{{Name: "Config", Status: "error", Summary: err.Error()}}
		return writeDoctorResult(cmd, "", checks)
	}

	var checks []healthCheck
	checks = append(checks, checkConfig(s.Config))

	set := discovery.Build(
		discovery.Options{Host: s.Host, SearchDepth: s.Config.SearchDepth},
		enabledSources(s.Config.Locators),
		s.Config.CondaPath,
		s.Config.WorkspaceRoots,
	)
	checks = append(checks, checkLocators(set))
	if set.Conda != nil {
		checks = append(checks, checkConda(set.Conda.Binary()))
	}
	checks = append(checks, checkPathPython(s.Host))
	checks = append(checks, checkCache(ctx, s))

	return writeDoctorResult(cmd, s.ConfigFile, checks)
}

func checkConfig(cfg config.Config) healthCheck {
	var warnings, errors int
	for _, v := range cfg.Validate() {
		switch v.Level {
		case config.LevelWarning:
			warnings++
		case config.LevelError:
			errors++
		}
	}

	summary := fmt.Sprintf("%d workspace roots, %s cache", len(cfg.WorkspaceRoots), cfg.Cache.Backend)
	if errors > 0 {
		return healthCheck{Name: "Config", Status: "error", Summary: fmt.Sprintf("%s; %d errors", summary, errors)}
	}
	if warnings > 0 {
		return healthCheck{Name: "Config", Status: "warning", Summary: fmt.Sprintf("%s; %d warnings", summary, warnings)}
	}
	return healthCheck{Name: "Config", Status: "ok", Summary: summary}
}

func checkLocators(set *discovery.Set) healthCheck {
	if len(set.Names) == 0 {
		return healthCheck{Name: "Locators", Status: "error", Summary: "every locator is disabled"}
	}
	return healthCheck{Name: "Locators", Status: "ok", Summary: strings.Join(set.Names, ", ")}
}

func checkConda(binary string) healthCheck {
	if binary == "" {
		return healthCheck{Name: "Conda", Status: "warning", Summary: "no conda executable found"}
	}
	return healthCheck{Name: "Conda", Status: "ok", Summary: binary}
}

func checkPathPython(host *hostenv.Env) healthCheck {
	names := []string{"python3", "python"}
	if host.IsWindows() {
		names = []string{"python.exe"}
	}
	for _, dir := range host.PathList() {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if ok, _ := paths.FileExists(candidate); ok {
				return healthCheck{Name: "PATH", Status: "ok", Summary: candidate}
			}
		}
	}
	return healthCheck{Name: "PATH", Status: "warning", Summary: "no python on PATH"}
}

func checkCache(ctx context.Context, s settings) healthCheck {
	c, closeStore, err := openCache(ctx, s)
	if err != nil {
		return healthCheck{Name: "Cache", Status: "error", Summary: err.Error()}
	}
	defer closeStore()

	total := c.Len()
	stale := len(c.OutOfDate())
	summary := fmt.Sprintf("%d environments at %s", total, s.cachePath())
	if stale > 0 {
		return healthCheck{Name: "Cache", Status: "warning", Summary: fmt.Sprintf("%s; %d out of date", summary, stale)}
	}
	return healthCheck{Name: "Cache", Status: "ok", Summary: summary}
}

func writeDoctorResult(cmd *cobra.Command, configPath string, checks []healthCheck) error {
	if outputJSON {
		data, err := json.MarshalIndent(checks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	bold := lipgloss.NewStyle().Bold(true).Inline(true)
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Inline(true)
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Inline(true)
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Inline(true)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, bold.Render("PYENVS HEALTH:")+" "+configPath)

	for _, c := range checks {
		var statusStr string
		switch c.Status {
		case "ok":
			statusStr = green.Render("OK")
		case "warning":
			statusStr = yellow.Render("WARN")
		case "error":
			statusStr = red.Render("ERROR")
		}
		fmt.Fprintf(out, "  %-12s %s    %s\n", c.Name+":", statusStr, c.Summary)
	}

	return nil
}
