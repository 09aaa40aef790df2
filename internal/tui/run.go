package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run blocks until the operator quits or ctx is cancelled.
func Run(ctx context.Context, station Station, hist History, models []string) error {
	program := tea.NewProgram(NewModel(station, hist, models), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
