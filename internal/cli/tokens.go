package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abdhe/essay-forge/pkg/budget"
)

type tokenRow struct {
	Name string `json:"name"`
	budget.TokenConfig
}

func newTokensCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Show the completion budget and estimated essay length per model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			calc := budget.NewCalculator(a.cfg.Generation.BaseMaxTokens)
			models := a.cfg.ModelConfigs()
			rows := make([]tokenRow, len(models))
			for i, m := range models {
				rows[i] = tokenRow{Name: m.Name, TokenConfig: calc.ForModel(m)}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MODEL\tPROVIDER\tMULTIPLIER\tMAX TOKENS\tEST. WORDS")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%d\n", r.Name, r.Provider, r.Multiplier, r.MaxTokens, r.EstimatedWords)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
