package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanhnv2901/secprobe/internal/application/orchestrator"
	"github.com/khanhnv2901/secprobe/internal/corpus"
	"github.com/khanhnv2901/secprobe/internal/pacing"
	"github.com/khanhnv2901/secprobe/internal/probe"
	"github.com/khanhnv2901/secprobe/internal/target"
	"github.com/khanhnv2901/secprobe/internal/telemetry"
)

// AppContext holds the wired services for one CLI invocation.
type AppContext struct {
	Logger       *zap.Logger
	Config       *CLIConfig
	Orchestrator *orchestrator.Orchestrator
	Metrics      *telemetry.Metrics

	shutdownTracing telemetry.ShutdownFunc
}

type appContextKey struct{}

var globalAppContext *AppContext

func storeAppContext(cmd *cobra.Command, appCtx *AppContext) {
	globalAppContext = appCtx
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, appContextKey{}, appCtx))
}

func getAppContext(cmd *cobra.Command) *AppContext {
	if cmd != nil && cmd.Context() != nil {
		if appCtx, ok := cmd.Context().Value(appContextKey{}).(*AppContext); ok {
			return appCtx
		}
	}
	return globalAppContext
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildAppContext wires corpus, pacing, client, telemetry and orchestrator from cfg.
func buildAppContext(ctx context.Context, cfg *CLIConfig, logger *zap.Logger) (*AppContext, error) {
	c, err := corpus.Load(cfg.CorpusPath)
	if err != nil {
		return nil, err
	}
	pace, err := pacing.Parse(cfg.Defaults.Pacing, cfg.Defaults.RPS, cfg.Defaults.Delay)
	if err != nil {
		return nil, err
	}

	appCtx := &AppContext{Logger: logger, Config: cfg, shutdownTracing: func(context.Context) error { return nil }}

	var transport http.RoundTripper = target.DefaultTransport()
	engineOpts := []probe.EngineOption{}
	if cfg.Telemetry.Metrics {
		m, err := telemetry.NewMetrics()
		if err != nil {
			return nil, err
		}
		appCtx.Metrics = m
		transport = m.InstrumentTransport(transport)
		engineOpts = append(engineOpts, probe.WithRecorder(m))
	}

	if cfg.Telemetry.OTLPEndpoint != "" {
		shutdown, err := telemetry.SetupTracing(ctx, telemetry.TracingOptions{
			Endpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure: cfg.Telemetry.OTLPInsecure,
			Version:  Version,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set up tracing: %w", err)
		}
		appCtx.shutdownTracing = shutdown
	}

	client := target.New(
		target.WithTransport(transport),
		target.WithTimeout(time.Duration(cfg.Defaults.TimeoutSecs)*time.Second),
		target.WithUserAgent("secprobe/"+Version),
	)
	deps := probe.Deps{Client: client, Corpus: c, Pacing: pace}

	appCtx.Orchestrator = orchestrator.NewOrchestrator(
		probe.NewSuite(deps),
		probe.NewEngine(logger, engineOpts...),
		logger,
		orchestrator.WithPacing(pace),
	)
	return appCtx, nil
}

// Close flushes tracing and the logger.
func (a *AppContext) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var err error
	if a.shutdownTracing != nil {
		err = a.shutdownTracing(ctx)
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return err
}
