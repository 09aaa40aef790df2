package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"rcstation/internal/backend"
	"rcstation/internal/config"
	"rcstation/internal/device"
	"rcstation/internal/history"
	"rcstation/internal/httpapi"
	"rcstation/internal/labelscan"
	"rcstation/internal/models"
	"rcstation/internal/registry"
	"rcstation/internal/workflow"
)

// station is the wired process: one machine, one history feed and the
// optional local API.
type station struct {
	cfg     config.Config
	log     *slog.Logger
	client  *backend.Client
	catalog models.Catalog
	machine *workflow.Machine
	feed    *history.Feed
	api     *httpapi.Server
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// openLogFile creates the log directory the way the console expects it.
func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func loadCatalog(cfg config.Config) (models.Catalog, error) {
	if cfg.ModelsFile != "" {
		return models.LoadCatalog(cfg.ModelsFile)
	}
	return models.DefaultCatalog()
}

func buildStation(cfg config.Config, logger *slog.Logger) (*station, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("model catalog: %w", err)
	}
	if cfg.Model != "" {
		if _, ok := catalog.Lookup(cfg.Model); !ok {
			return nil, fmt.Errorf("%w: %s", workflow.ErrUnknownModel, cfg.Model)
		}
	}

	client := backend.New(cfg.BackendURL, cfg.RequestTimeout)
	labels := labelscan.New(client, cfg.ScanPollInterval, cfg.RequestTimeout, logger)
	feed := history.NewFeed(client, cfg.HistoryInterval, cfg.RequestTimeout, logger)

	machine := workflow.New(workflow.Deps{
		Poller:  device.NewPoller(client, cfg.RequestTimeout, logger),
		Labels:  labels,
		Config:  client,
		History: feed,
		Models:  models.NewSelector(cfg.Model),
		Catalog: catalog,
		Failed:  registry.NewFailed(),
		Timings: workflow.Timings{
			AutoPoll:          cfg.AutoPollInterval,
			Settle:            cfg.SettleDelay,
			AutoPrintDelay:    cfg.AutoPrintDelay,
			DisconnectReset:   cfg.DisconnectReset,
			PrintFailureReset: cfg.PrintFailureReset,
			DoneResetAuto:     cfg.DoneResetAuto,
			DoneResetManual:   cfg.DoneResetManual,
			WarningInterval:   cfg.WarningInterval,
		},
		Logger: logger,
	})

	st := &station{
		cfg:     cfg,
		log:     logger.With("component", "station"),
		client:  client,
		catalog: catalog,
		machine: machine,
		feed:    feed,
	}
	if cfg.HTTPAddr != "" {
		st.api = httpapi.New(cfg.HTTPAddr, machine, feed, logger)
	}
	return st, nil
}

// start runs the machine, the feed and the API under g, then loads the
// backend modes once the machine is accepting requests.
func (s *station) start(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return s.machine.Run(ctx) })
	g.Go(func() error { return s.feed.Run(ctx) })
	if s.api != nil {
		g.Go(func() error { return s.api.Run(ctx) })
	}
	g.Go(func() error {
		if err := s.machine.RefreshConfig(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("config_refresh_failed", "backend", s.cfg.BackendURL, "error", err)
		}
		return nil
	})
}
