package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"rcstation/internal/backend"
	"rcstation/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List scanned labels reported by the backend",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := backend.New(cfg.BackendURL, cfg.RequestTimeout)
	feed := history.NewFeed(client, cfg.HistoryInterval, cfg.RequestTimeout, nil)

	items, err := feed.Refresh(cmd.Context())
	if err != nil {
		return fmt.Errorf("history failed: %w", err)
	}
	if len(items) == 0 {
		fmt.Println("No scanned labels found")
		return nil
	}

	fmt.Printf("%-24s %-22s %-12s\n", "BARCODE", "TIMESTAMP", "STATUS")
	fmt.Println("------------------------------------------------------------")
	for _, it := range items {
		fmt.Printf("%-24s %-22s %-12s\n", it.Barcode, dash(it.Timestamp), dash(it.Status))
	}
	return nil
}
