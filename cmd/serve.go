package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/copper-cli/internal/monitoring"
	"github.com/sells-group/copper-cli/internal/server"
)

var (
	servePort         int
	serveIngestOnBoot bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the price API and run scheduled ingestion",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Schedule.Enabled {
			sched, err := newScheduler(ctx, cfg.Schedule.Cron, env.Orchestrator)
			if err != nil {
				return err
			}
			sched.Start()
			defer func() { <-sched.Stop().Done() }()
			zap.L().Info("ingestion scheduled", zap.String("cron", cfg.Schedule.Cron))
		}

		if serveIngestOnBoot {
			env.Orchestrator.TriggerAsync(ctx)
		}

		checker := monitoring.NewChecker(env.Collector, env.Alerter, cfg.Monitoring)
		go checker.Run(ctx)

		handler := server.New(ctx, env.Orchestrator, cfg.Server.AllowedOrigins)
		return startServer(ctx, handler, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveIngestOnBoot, "ingest-on-start", true, "start a daily cycle when the server boots")
	rootCmd.AddCommand(serveCmd)
}

// asyncTrigger starts an ingestion cycle without waiting for it.
type asyncTrigger interface {
	TriggerAsync(ctx context.Context) bool
}

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// newScheduler returns a stopped cron that starts a daily cycle on spec.
// Specs may carry a CRON_TZ= prefix and an optional seconds field.
func newScheduler(ctx context.Context, spec string, t asyncTrigger) (*cron.Cron, error) {
	c := cron.New(cron.WithParser(cronParser))
	_, err := c.AddFunc(spec, func() {
		if !t.TriggerAsync(ctx) {
			zap.L().Warn("scheduled ingestion skipped, cycle not idle")
		}
	})
	if err != nil {
		return nil, eris.Wrapf(err, "invalid cron schedule %q", spec)
	}
	return c, nil
}

func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx is cancelled, then shuts
// down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
