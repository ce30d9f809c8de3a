package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/errandsync/errandsync/davclient"
	"github.com/errandsync/errandsync/internal/config"
	"github.com/errandsync/errandsync/internal/httpclient"
	"github.com/errandsync/errandsync/syncer"
	"github.com/errandsync/errandsync/tasks"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
)

// app carries what every command needs once the environment is loaded.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	registry    *prometheus.Registry
	httpMetrics *httpclient.Metrics
	syncMetrics *syncer.Metrics
}

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	a := &app{}
	cliApp := &cli.App{
		Name:  "errandsync",
		Usage: "Keep Errands task lists in sync with a CalDAV server.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "Log at debug level regardless of LOG_LEVEL."},
		},
		Before: a.setup,
		Commands: []*cli.Command{
			discoverCommand(a),
			calendarsCommand(a),
			mkcalendarCommand(a),
			eventsCommand(a),
			migrateCommand(a),
			listsCommand(a),
			addListCommand(a),
			addTaskCommand(a),
			doneCommand(a),
			printCommand(a),
			syncCommand(a),
			watchCommand(a),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		slog.Error("errandsync failed", "error", err)
		os.Exit(1)
	}
}

func (a *app) setup(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if c.Bool("debug") {
		level = slog.LevelDebug
	}

	a.cfg = cfg
	a.logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(a.logger)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.httpMetrics = httpclient.NewMetrics(a.registry)
	a.syncMetrics = syncer.NewMetrics(a.registry)
	return nil
}

func (a *app) client(ctx context.Context) (*davclient.Client, error) {
	if err := a.cfg.RequireServer(); err != nil {
		return nil, err
	}
	client, err := davclient.NewClient(ctx, a.cfg.ServerURL, a.cfg.Username, a.cfg.Password,
		davclient.WithHTTPClient(&http.Client{Timeout: a.cfg.HTTPTimeout}),
		davclient.WithLogger(a.logger),
		davclient.WithMetrics(a.httpMetrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", a.cfg.ServerURL, err)
	}
	return client, nil
}

func (a *app) store() (*tasks.Store, error) {
	return tasks.Open(a.cfg.DataDir,
		tasks.WithLogger(a.logger),
		tasks.WithColorProperty(a.cfg.ColorProperty),
	)
}

// findList resolves a list by UID first, then by name among active lists.
func findList(store *tasks.Store, ref string) (tasks.TaskListData, error) {
	if l, err := store.List(ref); err == nil {
		return l, nil
	}
	for _, l := range store.ActiveLists() {
		if l.Name == ref {
			return l, nil
		}
	}
	return tasks.TaskListData{}, fmt.Errorf("%w: %s", tasks.ErrListNotFound, ref)
}

// findCalendar resolves a pulled calendar by UUID first, then by name.
func findCalendar(client *davclient.Client, ref string) (*davclient.Calendar, error) {
	if cal, ok := client.CalendarByUUID(ref); ok {
		return cal, nil
	}
	if cal, ok := client.FindCalendarByName(ref); ok {
		return cal, nil
	}
	return nil, fmt.Errorf("calendar %q not found", ref)
}
