package main

import (
	"log/slog"
	"os"

	"rcstation/cmd/rcstation/commands"
)

func main() {
	// Replaced per command once the configured level and sink are known.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	commands.Execute()
}
