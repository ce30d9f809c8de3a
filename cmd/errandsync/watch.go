package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/errandsync/errandsync/davclient"
	"github.com/errandsync/errandsync/syncer"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
)

// syncOnce runs one pass against a store freshly opened from disk, so
// writes made by other commands since the last pass are picked up.
func (a *app) syncOnce(ctx context.Context, client *davclient.Client) (syncer.Report, error) {
	store, err := a.store()
	if err != nil {
		return syncer.Report{}, err
	}
	s := syncer.New(client, store,
		syncer.WithLogger(a.logger),
		syncer.WithMetrics(a.syncMetrics),
	)
	return s.Sync(ctx)
}

func syncCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run one sync pass against the server.",
		Action: func(c *cli.Context) error {
			client, err := a.client(c.Context)
			if err != nil {
				return err
			}
			report, err := a.syncOnce(c.Context, client)
			if err != nil {
				return err
			}
			for _, action := range syncer.Actions {
				if n := report.Count(action); n > 0 {
					fmt.Fprintf(c.App.Writer, "%-16s %d\n", action, n)
				}
			}
			if errs := report.Errors(); len(errs) > 0 {
				return fmt.Errorf("%d changes failed: %w", len(errs), errors.Join(errs...))
			}
			return nil
		},
	}
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

func watchCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Sync on a cron schedule until interrupted.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "schedule", EnvVars: []string{"SYNC_SCHEDULE"}, Usage: "Cron expression."},
			&cli.StringFlag{Name: "metrics-addr", EnvVars: []string{"METRICS_ADDR"}, Usage: "Serve /metrics on this address."},
		},
		Action: func(c *cli.Context) error {
			schedule := c.String("schedule")
			if schedule == "" {
				schedule = a.cfg.SyncSchedule
			}
			addr := c.String("metrics-addr")
			if addr == "" {
				addr = a.cfg.MetricsAddr
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := a.client(ctx)
			if err != nil {
				return err
			}
			pass := func() {
				if _, err := a.syncOnce(ctx, client); err != nil {
					a.logger.Error("sync pass failed", "error", err)
				}
			}

			l := cronLogger{logger: a.logger}
			cr := cron.New(
				cron.WithLogger(l),
				cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
			)
			if _, err := cr.AddFunc(schedule, pass); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}

			var server *http.Server
			if addr != "" {
				mux := http.NewServeMux()
				mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
				server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server stopped", "error", err)
					}
				}()
				a.logger.Info("serving metrics", "addr", addr)
			}

			pass()
			cr.Start()
			a.logger.Info("watching", "schedule", schedule)

			<-ctx.Done()
			a.logger.Info("shutting down")
			<-cr.Stop().Done()
			if server != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
}
