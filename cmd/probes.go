package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var probesCmd = &cobra.Command{
	Use:   "probes",
	Short: "List the available probes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		specs := getAppContext(cmd).Orchestrator.Suite().Specs()

		if strings.EqualFold(cliConfig.Output.Format, "json") {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(specs)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tTITLE\tRUN-ALL\tDEFAULT ENDPOINT")
		for _, spec := range specs {
			batch := "yes"
			if !spec.Batch {
				batch = "no"
			}
			endpoint := spec.DefaultEndpoint
			if endpoint == "" {
				endpoint = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", spec.Name, spec.Title, batch, endpoint)
		}
		return tw.Flush()
	},
}
