package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rcstation/internal/workflow"
)

var headlessCmd = &cobra.Command{
	Use:   "headless",
	Short: "Run the workflow without a console, controlled over the local API",
	Long: `Runs the workflow machine, the history feed and the local status API.
Operator notices are written to the log. With --auto the station starts
polling for devices immediately.`,
	RunE: runHeadless,
}

var headlessAuto bool

func init() {
	headlessCmd.Flags().BoolVar(&headlessAuto, "auto", false, "Start in auto mode")
	rootCmd.AddCommand(headlessCmd)
}

func runHeadless(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	st, err := buildStation(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	st.start(ctx, g)
	g.Go(func() error {
		logNotices(ctx, st.machine.Notices(), logger)
		return nil
	})
	if headlessAuto {
		g.Go(func() error {
			if err := st.machine.StartAuto(ctx); err != nil && ctx.Err() == nil {
				logger.Error("auto_start_failed", "error", err)
				return err
			}
			return nil
		})
	}

	logger.Info("headless_started", "backend", cfg.BackendURL, "http_addr", cfg.HTTPAddr, "auto", headlessAuto)
	return g.Wait()
}

func logNotices(ctx context.Context, notices <-chan workflow.Notice, logger *slog.Logger) {
	log := logger.With("component", "notices")
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notices:
			if !ok {
				return
			}
			attrs := []any{"kind", n.Kind, "step", n.Step}
			if n.Serial != "" {
				attrs = append(attrs, "serial", n.Serial)
			}
			if len(n.Reasons) > 0 {
				reasons := make([]string, 0, len(n.Reasons))
				for _, r := range n.Reasons {
					reasons = append(reasons, string(r))
				}
				attrs = append(attrs, "reasons", strings.Join(reasons, "; "))
			}
			if n.Blocking {
				attrs = append(attrs, "blocking", true)
			}
			if n.IsError() {
				log.Warn(n.Message, attrs...)
			} else {
				log.Info(n.Message, attrs...)
			}
		}
	}
}
