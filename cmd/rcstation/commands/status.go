package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rcstation/internal/backend"
	"rcstation/internal/device"
	"rcstation/internal/validation"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the connected device and whether it may be labeled",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := backend.New(cfg.BackendURL, cfg.RequestTimeout)
	ctx := cmd.Context()

	mode := validation.Strict
	if cs, err := client.ConfigStatus(ctx); err != nil {
		fmt.Printf("config status unavailable (%v), assuming %s validation\n", err, mode)
	} else if cs.Success {
		mode = validation.ModeFromEnabled(cs.ValidationEnabled)
	}

	snap, err := device.NewPoller(client, cfg.RequestTimeout, nil).Poll(ctx)
	if errors.Is(err, device.ErrNoDevice) {
		fmt.Println("No device:", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("device status failed: %w", err)
	}

	res := validation.Validate(snap, mode)
	fmt.Printf("%-16s %s\n", "SERIAL", snap.Serial)
	fmt.Printf("%-16s %s\n", "STATUS", dash(snap.Status))
	fmt.Printf("%-16s %t\n", "TESTS OK", snap.TestsOK)
	fmt.Printf("%-16s %t\n", "CALIBRATION OK", snap.CalibrationOK)
	fmt.Printf("%-16s %s\n", "PROG TIME", seconds(snap.ProgTime))
	fmt.Printf("%-16s %s\n", "CALIB TIME", seconds(snap.CalibTime))
	fmt.Printf("%-16s %s\n", "VALIDATION", mode)
	fmt.Println("------------------------------------------------")
	fmt.Println(res.Summary())
	return nil
}

func seconds(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", int64(d/time.Second))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
