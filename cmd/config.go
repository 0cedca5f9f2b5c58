package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultTimeoutSecs = 10
	defaultServerAddr  = "127.0.0.1:8080"
	defaultRateLimit   = 10
	defaultRateBurst   = 20
	defaultMaxJobs     = 1000
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Defaults   DefaultValues
	Output     OutputConfig
	Server     ServerConfig
	Telemetry  TelemetryConfig
	CorpusPath string
	Verbose    bool
}

// DefaultValues represent operator-level defaults, typically derived from env/config.
type DefaultValues struct {
	Pacing      string
	RPS         float64
	Delay       time.Duration
	TimeoutSecs int
	Concurrency int
}

// OutputConfig controls how reports are rendered and when the run fails.
type OutputConfig struct {
	Format   string
	File     string
	FailOn   string
	Progress bool
}

// ServerConfig groups the serve command's settings.
type ServerConfig struct {
	Addr        string
	AuthToken   string
	RateLimit   int
	RateBurst   int
	MaxJobs     int
	CORSOrigins []string
}

// TelemetryConfig enables metrics and trace export.
type TelemetryConfig struct {
	Metrics      bool
	OTLPEndpoint string
	OTLPInsecure bool
}

type defaultOverrides struct {
	Pacing       string
	Format       string
	RPS          *float64
	Delay        *time.Duration
	TimeoutSecs  *int
	Concurrency  *int
	CorpusPath   string
	ServerAddr   string
	AuthToken    string
	RateLimit    *int
	RateBurst    *int
	MaxJobs      *int
	CORSOrigins  []string
	Metrics      *bool
	OTLPEndpoint string
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Defaults: DefaultValues{
			Pacing:      "sleep",
			TimeoutSecs: defaultTimeoutSecs,
		},
		Output: OutputConfig{
			Format:   "text",
			FailOn:   "none",
			Progress: true,
		},
		Server: ServerConfig{
			Addr:      defaultServerAddr,
			RateLimit: defaultRateLimit,
			RateBurst: defaultRateBurst,
			MaxJobs:   defaultMaxJobs,
		},
	}
}

func loadDefaultOverrides() defaultOverrides {
	overrides := defaultOverrides{
		Pacing:       viper.GetString("defaults.pacing"),
		Format:       viper.GetString("defaults.format"),
		CorpusPath:   viper.GetString("corpus_path"),
		ServerAddr:   viper.GetString("server.addr"),
		AuthToken:    viper.GetString("server.auth_token"),
		CORSOrigins:  viper.GetStringSlice("server.cors_origins"),
		OTLPEndpoint: viper.GetString("telemetry.otlp_endpoint"),
	}

	if viper.IsSet("defaults.rps") {
		val := viper.GetFloat64("defaults.rps")
		overrides.RPS = &val
	}
	if viper.IsSet("defaults.delay") {
		val := viper.GetDuration("defaults.delay")
		overrides.Delay = &val
	}
	if viper.IsSet("defaults.timeout_secs") {
		val := viper.GetInt("defaults.timeout_secs")
		overrides.TimeoutSecs = &val
	}
	if viper.IsSet("defaults.concurrency") {
		val := viper.GetInt("defaults.concurrency")
		overrides.Concurrency = &val
	}
	if viper.IsSet("server.rate_limit") {
		val := viper.GetInt("server.rate_limit")
		overrides.RateLimit = &val
	}
	if viper.IsSet("server.rate_burst") {
		val := viper.GetInt("server.rate_burst")
		overrides.RateBurst = &val
	}
	if viper.IsSet("server.max_jobs") {
		val := viper.GetInt("server.max_jobs")
		overrides.MaxJobs = &val
	}
	if viper.IsSet("telemetry.metrics") {
		val := viper.GetBool("telemetry.metrics")
		overrides.Metrics = &val
	}

	return overrides
}

// applyConfigDefaults merges config file defaults into the runtime config when the user
// did not explicitly override the corresponding flag.
func applyConfigDefaults(cmd *cobra.Command) {
	overrides := loadDefaultOverrides()
	flags := cmd.Flags()

	if overrides.Format != "" {
		setStringFlagIfUnset(flags, "format", overrides.Format)
	}
	applyStringDefault(flags, "pacing", overrides.Pacing, func(v string) { cliConfig.Defaults.Pacing = v })
	applyStringDefault(flags, "corpus", overrides.CorpusPath, func(v string) { cliConfig.CorpusPath = v })
	applyStringDefault(flags, "otlp-endpoint", overrides.OTLPEndpoint, func(v string) { cliConfig.Telemetry.OTLPEndpoint = v })
	applyStringDefault(flags, "addr", overrides.ServerAddr, func(v string) { cliConfig.Server.Addr = v })
	applyStringDefault(flags, "auth-token", overrides.AuthToken, func(v string) { cliConfig.Server.AuthToken = v })

	if overrides.RPS != nil {
		applyFloatDefault(flags, "rps", *overrides.RPS, func(v float64) { cliConfig.Defaults.RPS = v })
	}
	if overrides.Delay != nil {
		applyDurationDefault(flags, "delay", *overrides.Delay, func(v time.Duration) { cliConfig.Defaults.Delay = v })
	}
	if overrides.TimeoutSecs != nil {
		applyIntDefault(flags, "timeout", *overrides.TimeoutSecs, func(v int) { cliConfig.Defaults.TimeoutSecs = v })
	}
	if overrides.Concurrency != nil {
		applyIntDefault(flags, "concurrency", *overrides.Concurrency, func(v int) { cliConfig.Defaults.Concurrency = v })
	}
	if overrides.RateLimit != nil {
		applyIntDefault(flags, "rate-limit", *overrides.RateLimit, func(v int) { cliConfig.Server.RateLimit = v })
	}
	if overrides.RateBurst != nil {
		applyIntDefault(flags, "rate-burst", *overrides.RateBurst, func(v int) { cliConfig.Server.RateBurst = v })
	}
	if overrides.MaxJobs != nil {
		applyIntDefault(flags, "max-jobs", *overrides.MaxJobs, func(v int) { cliConfig.Server.MaxJobs = v })
	}
	if overrides.Metrics != nil {
		applyBoolDefault(flags, "metrics", *overrides.Metrics, func(v bool) { cliConfig.Telemetry.Metrics = v })
	}
	if len(overrides.CORSOrigins) > 0 {
		if flag := flags.Lookup("cors-origins"); flag == nil || !flag.Changed {
			cliConfig.Server.CORSOrigins = overrides.CORSOrigins
		}
	}
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyFloatDefault(flags *pflag.FlagSet, name string, value float64, setter func(float64)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyDurationDefault(flags *pflag.FlagSet, name string, value time.Duration, setter func(time.Duration)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyBoolDefault(flags *pflag.FlagSet, name string, value bool, setter func(bool)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyStringDefault(flags *pflag.FlagSet, name, value string, setter func(string)) {
	if value == "" || flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) {
	if flags == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flag.Value.Set(value)
}
