package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "secprobe",
	Short:         "Active web security probes for authorized testing only",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		applyConfigDefaults(cmd)

		logger, err := newLogger(cliConfig.Verbose)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		appCtx, err := buildAppContext(cmd.Context(), cliConfig, logger)
		if err != nil {
			return err
		}
		storeAppContext(cmd, appCtx)
		return nil
	},
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".secprobe")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("SECPROBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit --config must exist; the default file is optional.
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

var execute = func() error { return rootCmd.Execute() }

func Execute() {
	err := execute()

	// Post-run hooks are skipped when a command fails, so flush here.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if closeErr := globalAppContext.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, colorError("Error:"), err)
		os.Exit(exitCode(err))
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.secprobe.yaml)")
	flags.BoolVarP(&cliConfig.Verbose, "verbose", "v", cliConfig.Verbose, "development logging and detailed version output")
	flags.StringVar(&cliConfig.Defaults.Pacing, "pacing", cliConfig.Defaults.Pacing, "pause policy between requests (sleep|none|fixed|rate)")
	flags.Float64Var(&cliConfig.Defaults.RPS, "rps", cliConfig.Defaults.RPS, "requests per second when --pacing=rate")
	flags.DurationVar(&cliConfig.Defaults.Delay, "delay", cliConfig.Defaults.Delay, "pause between requests when --pacing=fixed")
	flags.IntVar(&cliConfig.Defaults.TimeoutSecs, "timeout", cliConfig.Defaults.TimeoutSecs, "fallback request timeout in seconds")
	flags.StringVar(&cliConfig.CorpusPath, "corpus", cliConfig.CorpusPath, "payload corpus YAML file (default is the built-in corpus)")
	flags.StringVar(&cliConfig.Output.Format, "format", cliConfig.Output.Format, "output format (text|json)")
	flags.StringVar(&cliConfig.Output.File, "output", cliConfig.Output.File, "write JSON report(s) to this file")
	flags.StringVar(&cliConfig.Output.FailOn, "fail-on", cliConfig.Output.FailOn, "exit non-zero on findings at or above (none|low|medium|high|critical)")
	flags.BoolVar(&cliConfig.Telemetry.Metrics, "metrics", cliConfig.Telemetry.Metrics, "collect Prometheus metrics")
	flags.StringVar(&cliConfig.Telemetry.OTLPEndpoint, "otlp-endpoint", cliConfig.Telemetry.OTLPEndpoint, "OTLP/gRPC collector for traces (host:port)")
	flags.BoolVar(&cliConfig.Telemetry.OTLPInsecure, "otlp-insecure", cliConfig.Telemetry.OTLPInsecure, "disable TLS for the OTLP collector")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(runAllCmd)
	rootCmd.AddCommand(probesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
