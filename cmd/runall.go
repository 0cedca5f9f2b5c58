package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/secprobe/internal/application/orchestrator"
	"github.com/khanhnv2901/secprobe/internal/domain/report"
	"github.com/khanhnv2901/secprobe/internal/probe"
)

var runAllParams probe.Params

var runAllCmd = &cobra.Command{
	Use:   "run-all",
	Short: "Run every batch probe against a target",
	Long: `Run the batch probes in order, pausing between probes. A failing probe
is reported and the run continues. The JWT probe needs a token and only
runs through "probe jwt".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		params := resolveParams(runAllParams)
		total := len(appCtx.Orchestrator.Suite().Batch())

		var progress *progressPrinter
		if appCtx.Config.Output.Progress {
			progress = newProgressPrinter(cmd.ErrOrStderr(), total, "run-all")
			progress.Start()
		}

		last := time.Now()
		reports := appCtx.Orchestrator.RunAll(cmd.Context(), params, func(_, _ int, r *report.Report) {
			if progress == nil {
				return
			}
			now := time.Now()
			progress.Increment(r.TestName, r.Status != report.StatusError, now.Sub(last).Seconds())
			last = now
		})
		if progress != nil {
			progress.Stop()
		}

		if err := finishRun(cmd.OutOrStdout(), appCtx.Config.Output, reports, false); err != nil {
			return err
		}
		printSummary(cmd, orchestrator.Summarize(reports))
		return nil
	},
}

func init() {
	addProbeFlags(runAllCmd.Flags(), &runAllParams)
	runAllCmd.Flags().BoolVar(&cliConfig.Output.Progress, "progress", cliConfig.Output.Progress, "show progress on stderr")
}

func printSummary(cmd *cobra.Command, s orchestrator.Summary) {
	marker := colorSuccess("✓")
	if s.ByStatus[report.StatusError] > 0 {
		marker = colorWarn("!")
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", marker, s)
}
