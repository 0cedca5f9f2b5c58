package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanhnv2901/secprobe/internal/api"
)

var serveShutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the probes behind a REST API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		server, jobs := newAPIServer(appCtx)
		defer server.Close()

		httpServer := &http.Server{
			Addr:              appCtx.Config.Server.Addr,
			Handler:           server,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			appCtx.Logger.Info("api server listening",
				zap.String("addr", httpServer.Addr),
				zap.Bool("auth", appCtx.Config.Server.AuthToken != ""),
				zap.Bool("metrics", appCtx.Metrics != nil),
				zap.Int("max_jobs", jobs.MaxJobs()))
			fmt.Fprintf(cmd.ErrOrStderr(), "%s API server listening on %s\n", colorInfo("→"), httpServer.Addr)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case sig := <-shutdown:
			fmt.Fprintf(cmd.ErrOrStderr(), "\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)
		case <-cmd.Context().Done():
		}

		ctx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(ctx)
		if err != nil {
			if closeErr := httpServer.Close(); closeErr != nil {
				err = fmt.Errorf("%w (close error: %v)", err, closeErr)
			}
			err = fmt.Errorf("failed to gracefully shutdown server: %w", err)
		}
		if jobErr := jobs.Close(ctx); jobErr != nil {
			appCtx.Logger.Warn("background jobs did not stop", zap.Error(jobErr))
		}
		if err == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Server shutdown complete\n", colorInfo("✓"))
		}
		return err
	},
}

// newAPIServer wires the REST API around the app's orchestrator.
func newAPIServer(appCtx *AppContext) (*api.Server, *api.JobManager) {
	jobs := api.NewJobManager(appCtx.Orchestrator, appCtx.Logger)
	jobs.SetMaxJobs(appCtx.Config.Server.MaxJobs)
	cfg := api.Config{
		Runner:      appCtx.Orchestrator,
		Jobs:        jobs,
		AuthToken:   appCtx.Config.Server.AuthToken,
		Logger:      appCtx.Logger,
		CORSOrigins: appCtx.Config.Server.CORSOrigins,
		RateLimit:   appCtx.Config.Server.RateLimit,
		RateBurst:   appCtx.Config.Server.RateBurst,
	}
	if appCtx.Metrics != nil {
		cfg.Metrics = appCtx.Metrics.Handler()
	}
	return api.NewServer(cfg), jobs
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&cliConfig.Server.Addr, "addr", cliConfig.Server.Addr, "address for the API server")
	flags.StringVar(&cliConfig.Server.AuthToken, "auth-token", "", "shared bearer token for API requests")
	flags.DurationVar(&serveShutdownTimeout, "shutdown-timeout", serveShutdownTimeout, "graceful shutdown timeout")
	flags.StringSliceVar(&cliConfig.Server.CORSOrigins, "cors-origins", nil, "allowed CORS origins (empty = allow all)")
	flags.IntVar(&cliConfig.Server.RateLimit, "rate-limit", cliConfig.Server.RateLimit, "requests per second per client IP (0 = disabled)")
	flags.IntVar(&cliConfig.Server.RateBurst, "rate-burst", cliConfig.Server.RateBurst, "rate limiter burst size")
	flags.IntVar(&cliConfig.Server.MaxJobs, "max-jobs", cliConfig.Server.MaxJobs, "background jobs kept in memory")
}
