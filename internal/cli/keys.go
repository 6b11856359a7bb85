package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newKeysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Check that every provider used by the configured models has an API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var missing []string
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROVIDER\tKEYS\tSTATUS")
			for _, p := range providerNames(a.cfg.ModelConfigs()) {
				keys := a.cfg.Keys[p]
				status := "ok"
				if len(keys) == 0 {
					status = "missing"
					missing = append(missing, p)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", p, len(keys), status)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(missing) > 0 {
				return fmt.Errorf("missing API keys for: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}
