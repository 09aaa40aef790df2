package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"

	"rcstation/internal/history"
	"rcstation/internal/workflow"
)

// Station is the workflow surface the console drives.
type Station interface {
	Status() workflow.Status
	Notices() <-chan workflow.Notice
	ToggleAuto(ctx context.Context) error
	Connect(ctx context.Context) error
	Print(ctx context.Context) error
	CheckScan(ctx context.Context) error
	Reset(ctx context.Context) error
	SelectModel(ctx context.Context, name string) error
	ToggleValidation(ctx context.Context) error
	TogglePrintMode(ctx context.Context) error
}

type History interface {
	Snapshot() history.State
}

type statusTickMsg struct{}

type noticeMsg struct {
	Notice workflow.Notice
}

type noticeChannelClosedMsg struct{}

type actionDoneMsg struct {
	Name string
	Err  error
}

// Model is the app state.
type Model struct {
	station Station
	history History
	models  []string

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	input   textinput.Model
	picking bool

	status  workflow.Status
	hist    history.State
	banner  workflow.Notice
	alert   *workflow.Notice
	logs    []string
	pending string

	tick     time.Duration
	timeout  time.Duration
	quitting bool

	width  int
	height int
}

const (
	maxLogs        = 200
	visibleLogs    = 8
	visibleHistory = 6
)
