package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pyenvs/internal/collection"
	"pyenvs/internal/envinfo"
	"pyenvs/internal/tui"
)

var listFlags queryFlags

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known Python environments",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	listFlags.register(cmd)
	cmd.Flags().BoolVar(&listFlags.ignoreCache, "refresh", false, "Wait for a discovery pass instead of answering from the cache")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd.Context())

	q, err := listFlags.query()
	if err != nil {
		return err
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

	// An empty cache would answer with nothing while a background pass runs.
	if a.svc.Cache().Len() == 0 && (q == nil || !q.IgnoreCache) {
		if err := a.svc.TriggerRefresh(q.Scope(), collection.RefreshOptions{}).Wait(ctx); err != nil {
			return err
		}
	}

	envs, err := a.svc.GetEnvs(ctx, q)
	if err != nil {
		return err
	}
	sortEnvs(envs)

	if outputJSON {
		return writeEnvsJSON(cmd, envs)
	}
	writeEnvTable(cmd, envs)
	return nil
}

// sortEnvs orders by kind priority, then executable.
func sortEnvs(envs []envinfo.Env) {
	sort.SliceStable(envs, func(i, j int) bool {
		if c := envinfo.ComparePriority(envs[i].Kind, envs[j].Kind); c != 0 {
			return c < 0
		}
		return envs[i].Executable.Filename < envs[j].Executable.Filename
	})
}

func writeEnvTable(cmd *cobra.Command, envs []envinfo.Env) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tVERSION\tARCH\tNAME\tEXECUTABLE\tSOURCES")
	for _, env := range envs {
		fields := tui.EnvFields(env, "")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			fields["KIND"],
			fields["VERSION"],
			tui.NonEmptyOrDash(string(env.Arch)),
			fields["NAME"],
			fields["EXECUTABLE"],
			joinSources(env.Source),
		)
	}
	w.Flush()

	fmt.Fprintf(cmd.OutOrStdout(), "%d environments\n", len(envs))
}

func writeEnvsJSON(cmd *cobra.Command, envs []envinfo.Env) error {
	if envs == nil {
		envs = []envinfo.Env{}
	}
	payload := struct {
		Count int           `json:"count"`
		Envs  []envinfo.Env `json:"envs"`
	}{
		Count: len(envs),
		Envs:  envs,
	}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode envs json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func joinSources(sources []envinfo.Source) string {
	if len(sources) == 0 {
		return "-"
	}
	out := string(sources[0])
	for _, s := range sources[1:] {
		out += "," + string(s)
	}
	return out
}
