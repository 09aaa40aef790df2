package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"rcstation/internal/workflow"
)

func NewModel(station Station, hist History, modelNames []string) Model {
	input := textinput.New()
	input.Placeholder = "RC-102 (empty clears the filter)"
	input.Prompt = "model> "
	input.CharLimit = 32

	s := spinner.New()
	s.Spinner = spinner.MiniDot

	h := help.New()
	h.ShowAll = false

	m := Model{
		station: station,
		history: hist,
		models:  modelNames,
		keys:    defaultKeyMap(),
		help:    h,
		spinner: s,
		input:   input,
		tick:    250 * time.Millisecond,
		timeout: 10 * time.Second,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitNoticeCmd(m.station.Notices()),
		statusTickCmd(m.tick),
		m.spinner.Tick,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		if m.width > 20 {
			m.input.Width = m.width - 14
		}
		return m, nil

	case tea.KeyMsg:
		if m.picking {
			return m.updatePicker(msg)
		}
		return m.updateKey(msg)

	case statusTickMsg:
		m.refresh()
		return m, statusTickCmd(m.tick)

	case noticeMsg:
		m.banner = msg.Notice
		if msg.Notice.Blocking {
			n := msg.Notice
			m.alert = &n
		}
		m.pushLog(noticeLine(msg.Notice))
		m.refresh()
		return m, waitNoticeCmd(m.station.Notices())

	case noticeChannelClosedMsg:
		return m, nil

	case actionDoneMsg:
		if m.pending == msg.Name {
			m.pending = ""
		}
		if msg.Err != nil {
			m.pushLog(fmt.Sprintf("[ERR] %s: %v", msg.Name, msg.Err))
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.alert != nil && !key.Matches(msg, m.keys.Quit) {
		// Any key acknowledges a blocking alert.
		m.alert = nil
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Model):
		m.picking = true
		m.input.SetValue(m.status.Model)
		m.input.CursorEnd()
		cmd := m.input.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.Auto):
		return m.run("auto", m.station.ToggleAuto)
	case key.Matches(msg, m.keys.Connect):
		return m.run("connect", m.station.Connect)
	case key.Matches(msg, m.keys.Print):
		return m.run("print", m.station.Print)
	case key.Matches(msg, m.keys.CheckScan):
		return m.run("check scan", m.station.CheckScan)
	case key.Matches(msg, m.keys.Reset):
		return m.run("reset", m.station.Reset)
	case key.Matches(msg, m.keys.Validation):
		return m.run("validation mode", m.station.ToggleValidation)
	case key.Matches(msg, m.keys.PrintMode):
		return m.run("print mode", m.station.TogglePrintMode)
	}
	return m, nil
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.CancelInput):
		m.picking = false
		m.input.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Confirm):
		name := strings.ToUpper(strings.TrimSpace(m.input.Value()))
		m.picking = false
		m.input.Blur()
		m.input.SetValue("")
		return m.run("select model", func(ctx context.Context) error {
			return m.station.SelectModel(ctx, name)
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// run executes a station operation off the UI goroutine.
func (m Model) run(name string, fn func(context.Context) error) (tea.Model, tea.Cmd) {
	if m.pending != "" {
		m.pushLog(fmt.Sprintf("[WARN] %s ignored: %s still running", name, m.pending))
		return m, nil
	}
	m.pending = name
	timeout := m.timeout
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return actionDoneMsg{Name: name, Err: fn(ctx)}
	}
}

func (m *Model) refresh() {
	m.status = m.station.Status()
	if m.history != nil {
		m.hist = m.history.Snapshot()
	}
}

func (m *Model) pushLog(line string) {
	stamp := time.Now().Format("15:04:05")
	m.logs = append(m.logs, stamp+" "+line)
	if len(m.logs) > maxLogs {
		m.logs = append([]string(nil), m.logs[len(m.logs)-maxLogs:]...)
	}
}

func waitNoticeCmd(ch <-chan workflow.Notice) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return noticeChannelClosedMsg{}
		}
		return noticeMsg{Notice: n}
	}
}

func statusTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return statusTickMsg{} })
}

func noticeLine(n workflow.Notice) string {
	tag := "[INFO ]"
	switch {
	case n.Kind == workflow.NoticeScanned, n.Kind == workflow.NoticeStep && !n.IsError():
		tag = "[OK]"
	case n.Kind == workflow.NoticeModelMismatch && n.Blocking:
		tag = "[ERR]"
	case n.IsError():
		tag = "[WARN]"
	}
	return tag + " " + n.Message
}
