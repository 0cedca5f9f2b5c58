package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/khanhnv2901/secprobe/internal/probe"
)

// runCommand executes the root command with args and returns stdout and
// stderr. Package-level flag state is reset before and after the run.
func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	resetCommandState()
	original := globalAppContext
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() {
		_ = globalAppContext.Close(context.Background())
		globalAppContext = original
		color.NoColor = noColor
		resetCommandState()
	})

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func resetCommandState() {
	viper.Reset()
	cfgFile = ""
	*cliConfig = *newCLIConfig()
	probeParams = probe.Params{}
	runAllParams = probe.Params{}
	resetFlags(rootCmd)
}

func resetFlags(cmd *cobra.Command) {
	unset := func(f *pflag.Flag) { f.Changed = false }
	cmd.PersistentFlags().VisitAll(unset)
	cmd.Flags().VisitAll(unset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}
