package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	"github.com/khanhnv2901/secprobe/internal/probe"
)

var probeParams probe.Params

var probeCmd = &cobra.Command{
	Use:   "probe <name>",
	Short: "Run a single probe against a target",
	Long: `Run one probe against --target and print its report.

Only test systems you are authorized to test.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeProbeNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		params := resolveParams(probeParams)

		r, err := appCtx.Orchestrator.RunOne(cmd.Context(), args[0], params)
		if err != nil {
			return err
		}
		return finishRun(cmd.OutOrStdout(), appCtx.Config.Output, []*report.Report{r}, true)
	},
}

func init() {
	addProbeFlags(probeCmd.Flags(), &probeParams)
}

// addProbeFlags binds the probe input flags shared by probe and run-all.
func addProbeFlags(flags *pflag.FlagSet, p *probe.Params) {
	flags.StringVarP(&p.TargetURL, "target", "t", "", "base URL of the system under test")
	flags.StringVar(&p.Endpoint, "endpoint", "", "path appended to the target (default per probe)")
	flags.StringVar(&p.UsernameField, "username-field", "", "login form username field")
	flags.StringVar(&p.PasswordField, "password-field", "", "login form password field")
	flags.IntVar(&p.Attempts, "attempts", 0, "brute-force attempts")
	flags.IntVar(&p.RequestCount, "requests", 0, "rate-limit request count")
	flags.IntVar(&p.TimeWindow, "time-window", 0, "rate-limit window in milliseconds")
	flags.IntVar(&p.Concurrency, "concurrency", 0, "rate-limit concurrent requests")
	flags.StringSliceVar(&p.Parameters, "parameters", nil, "query parameters to inject")
	flags.StringVar(&p.Token, "token", "", "JWT to analyze")
	flags.StringVar(&p.Credentials.Username, "username", "", "known-good username")
	flags.StringVar(&p.Credentials.Password, "password", "", "known-good password")
	flags.StringSliceVar(&p.CommonPaths, "paths", nil, "paths for endpoint discovery")
	flags.IntVar(&p.Samples, "samples", 0, "timing samples")
}

// resolveParams fills config-level defaults the flags left unset.
func resolveParams(p probe.Params) probe.Params {
	if p.Concurrency == 0 {
		p.Concurrency = cliConfig.Defaults.Concurrency
	}
	return p
}

func completeProbeNames(cmd *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names := make([]string, 0, len(defaultProbeSpecs()))
	for _, spec := range defaultProbeSpecs() {
		names = append(names, spec.Name+"\t"+spec.Title)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// defaultProbeSpecs lists the built-in probes without wiring a client.
func defaultProbeSpecs() []probe.Spec {
	return probe.NewSuite(probe.Deps{}).Specs()
}
