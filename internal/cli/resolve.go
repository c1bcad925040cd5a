package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/locator"
	"pyenvs/internal/tui"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <path>",
		Short: "Show full details for one interpreter",
		Args:  cobra.ExactArgs(1),
		RunE:  runResolve,
	}
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd.Context())

	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	s, err := loadSettings()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, s)
	if err != nil {
		return err
	}
	defer a.Close()

	env, err := a.svc.ResolveEnv(ctx, path)
	if errors.Is(err, locator.ErrNotFound) {
		return fmt.Errorf("no python environment at %s", path)
	}
	if err != nil {
		return err
	}

	if outputJSON {
		data, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return fmt.Errorf("encode env json: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	writeEnvDetails(cmd, *env)
	return nil
}

func writeEnvDetails(cmd *cobra.Command, env envinfo.Env) {
	version := "-"
	if !env.Version.IsEmpty() {
		version = env.Version.String()
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintf(w, "Kind:\t%s\n", env.Kind)
	fmt.Fprintf(w, "Executable:\t%s\n", env.Executable.Filename)
	fmt.Fprintf(w, "Version:\t%s\n", version)
	fmt.Fprintf(w, "Arch:\t%s\n", tui.NonEmptyOrDash(string(env.Arch)))
	fmt.Fprintf(w, "Prefix:\t%s\n", tui.NonEmptyOrDash(env.Executable.SysPrefix))
	fmt.Fprintf(w, "Location:\t%s\n", tui.NonEmptyOrDash(env.Location))
	fmt.Fprintf(w, "Name:\t%s\n", tui.NonEmptyOrDash(env.Name))
	fmt.Fprintf(w, "Distributor:\t%s\n", tui.NonEmptyOrDash(env.Distro.Org))
	fmt.Fprintf(w, "Sources:\t%s\n", joinSources(env.Source))
	w.Flush()
}
