package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rcstation/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Run the interactive operator console",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The terminal belongs to the console, so logs go to a file.
	logFile, err := openLogFile(cfg.LogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()

	logger, err := newLogger(cfg, logFile)
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
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	st.start(ctx, g)
	g.Go(func() error {
		defer cancel()
		return tui.Run(ctx, st.machine, st.feed, st.catalog.Names())
	})

	logger.Info("console_started", "backend", cfg.BackendURL, "http_addr", cfg.HTTPAddr)
	return g.Wait()
}
