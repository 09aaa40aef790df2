package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"
)

const titleLine = "RC Station"

var stepLabels = []string{
	"1. Device connected",
	"2. Device checked",
	"3. Label printed",
	"4. Label scanned",
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	width := m.panelContentWidth()

	panels := []string{
		renderPanel("", []string{titleLine, m.metaLine()}, width),
	}
	if m.alert != nil {
		panels = append(panels, renderPanel("Alert", m.alertLines(), width))
	}
	panels = append(panels,
		renderPanel("Workflow", m.workflowLines(), width),
		renderPanel("History", m.historyLines(), width),
		renderPanel("Log", m.logLines(), width),
	)
	if m.picking {
		panels = append(panels, renderPanel("Select model", m.pickerLines(), width))
	}
	panels = append(panels, renderPanel("", []string{"Keys: " + m.footerLine()}, width))

	return paintLayout(strings.Join(panels, "\n"))
}

func (m Model) metaLine() string {
	st := m.status
	model := st.Model
	if model == "" {
		model = "any"
	}
	return fmt.Sprintf("Drive %s | Validation %s | Print %s | Model %s | %s",
		strings.ToUpper(st.DriveMode), st.ValidationMode, st.PrintMode, model, st.PrintAction)
}

func (m Model) workflowLines() []string {
	st := m.status
	lines := make([]string, 0, 16)
	for i, label := range stepLabels {
		mark := "[ ]"
		if st.Step > i {
			mark = "[x]"
		}
		lines = append(lines, mark+" "+label)
	}

	state := st.State
	if st.Busy {
		state += " " + m.spinner.View()
	}
	lines = append(lines, "", "State:  "+state)
	if st.ActiveSerial != "" {
		lines = append(lines, "Serial: "+st.ActiveSerial)
	}
	if snap := st.Snapshot; snap != nil {
		lines = append(lines,
			fmt.Sprintf("Tests %s | Calibration %s | Prog %s | Calib %s",
				okFail(snap.TestsOK), okFail(snap.CalibrationOK), shortDuration(snap.ProgTime), shortDuration(snap.CalibTime)),
		)
		if snap.Status != "" {
			lines = append(lines, "Device: "+snap.Status)
		}
	}
	if res := st.Validation; res != nil && !res.Ready {
		for _, reason := range res.Reasons {
			lines = append(lines, "[WARN] "+string(reason))
		}
	}
	if st.PrintedBarcode != "" {
		lines = append(lines, "Barcode: "+st.PrintedBarcode)
	}
	if st.PrintError != "" {
		lines = append(lines, "[ERR] print: "+st.PrintError)
	}
	if st.Warning != "" {
		lines = append(lines, "[WARN] "+st.Warning)
	}
	if len(st.FailedSerials) > 0 {
		lines = append(lines, "Failed: "+strings.Join(st.FailedSerials, ", "))
	}
	return lines
}

func (m Model) historyLines() []string {
	h := m.hist
	if len(h.Items) == 0 {
		if h.LastError != "" {
			return []string{"[ERR] " + h.LastError}
		}
		return []string{"No scanned labels yet"}
	}

	items := h.Items
	if len(items) > visibleHistory {
		items = items[:visibleHistory]
	}
	lines := make([]string, 0, len(items)+1)
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%-20s %-20s %s", it.Barcode, it.Timestamp, it.Status))
	}
	if h.LastError != "" {
		lines = append(lines, "[WARN] refresh: "+h.LastError)
	}
	return lines
}

func (m Model) logLines() []string {
	if len(m.logs) == 0 {
		return []string{"No events yet"}
	}
	start := len(m.logs) - visibleLogs
	if start < 0 {
		start = 0
	}
	return append([]string(nil), m.logs[start:]...)
}

func (m Model) alertLines() []string {
	lines := []string{"[ERR] " + m.alert.Message}
	if m.alert.Serial != "" {
		lines = append(lines, "Serial: "+m.alert.Serial)
	}
	return append(lines, "", "Press any key to continue")
}

func (m Model) pickerLines() []string {
	lines := []string{m.input.View()}
	if len(m.models) > 0 {
		lines = append(lines, "Known: "+strings.Join(m.models, ", "))
	}
	return lines
}

func (m Model) footerLine() string {
	if m.picking {
		return m.help.ShortHelpView(pickerKeys{Confirm: m.keys.Confirm, Cancel: m.keys.CancelInput}.ShortHelp())
	}
	if m.pending != "" {
		return m.pending + " ... | " + m.help.View(m.keys)
	}
	return m.help.View(m.keys)
}

var _ help.KeyMap = keyMap{}
var _ help.KeyMap = pickerKeys{}

func renderPanel(title string, lines []string, contentWidth int) string {
	if contentWidth < 24 {
		contentWidth = 24
	}

	var b strings.Builder
	horizontal := strings.Repeat("─", contentWidth+2)

	b.WriteString("┌" + horizontal + "┐")
	if strings.TrimSpace(title) != "" {
		b.WriteString("\n│ ")
		b.WriteString(padRight(trimText("["+strings.ToUpper(strings.TrimSpace(title))+"]", contentWidth), contentWidth))
		b.WriteString(" │\n")
		b.WriteString("├" + horizontal + "┤")
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	for _, line := range lines {
		// Multi-line values such as help.View with ShowAll are flattened.
		for _, part := range strings.Split(line, "\n") {
			b.WriteString("\n│ ")
			b.WriteString(padRight(trimText(part, contentWidth), contentWidth))
			b.WriteString(" │")
		}
	}
	b.WriteString("\n└" + horizontal + "┘")
	return b.String()
}

func (m Model) panelContentWidth() int {
	if m.width <= 0 {
		return 78
	}
	width := m.width - 4
	if width < 36 {
		width = 36
	}
	if width > 120 {
		width = 120
	}
	return width
}

func okFail(v bool) string {
	if v {
		return "OK"
	}
	return "FAIL"
}

func shortDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

// runeLen is the printed width, ignoring ANSI sequences from bubbles views.
func runeLen(s string) int {
	return lipgloss.Width(s)
}

func padRight(s string, width int) string {
	n := runeLen(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

func trimText(s string, width int) string {
	if runeLen(s) <= width {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
