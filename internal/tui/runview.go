package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/epalmerini/soundcheck"
)

// runFunc executes one scenario; the run view calls it off the UI
// goroutine and renders whatever comes back.
type runFunc func(ctx context.Context) (*soundcheck.Report, error)

type runModel struct {
	entry    scenarioEntry
	startCmd tea.Cmd
	cancel   context.CancelFunc

	width, height int

	running bool
	started time.Time
	report  *soundcheck.Report
	runErr  error

	findings    []soundcheck.Finding
	selectedIdx int
	scrollOff   int

	vimKeys    VimKeyState
	spinner    spinner.Model
	splitRatio float64
	showHelp   bool

	// Status messages (brief confirmations)
	statusMsg     string
	statusMsgTime time.Time
}

// Tea messages
type runFinishedMsg struct {
	report *soundcheck.Report
	err    error
}

type clearStatusMsg struct{}

func newRunModel(entry scenarioEntry, run runFunc) runModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ctx, cancel := context.WithCancel(context.Background())

	return runModel{
		entry:  entry,
		cancel: cancel,
		startCmd: func() tea.Msg {
			rep, err := run(ctx)
			return runFinishedMsg{report: rep, err: err}
		},
		running:    true,
		started:    time.Now(),
		vimKeys:    NewVimKeyState(),
		spinner:    sp,
		splitRatio: 0.5,
	}
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.startCmd,
	)
}

// cleanup cancels the in-flight run, if any. Safe to call repeatedly.
func (m *runModel) cleanup() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Help overlay swallows everything except its own toggles
		if m.showHelp {
			if msg.String() == "?" || msg.String() == "esc" || msg.String() == "q" {
				m.showHelp = false
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c":
			m.cleanup()
			return m, tea.Quit
		case "up":
			m.moveSelection(-1)
			return m, nil
		case "down":
			m.moveSelection(1)
			return m, nil
		case "ctrl+u":
			m.moveSelection(-m.visibleFindings() / 2)
			return m, nil
		case "ctrl+d":
			m.moveSelection(m.visibleFindings() / 2)
			return m, nil
		}

		result := m.vimKeys.ProcessKey(msg.String())
		switch result.Action {
		case "move_down":
			m.moveSelection(result.Count)
		case "move_up":
			m.moveSelection(-result.Count)
		case "go_top":
			m.selectedIdx = 0
			m.scrollOff = 0
		case "go_bottom":
			m.selectedIdx = len(m.findings) - 1
			if m.selectedIdx < 0 {
				m.selectedIdx = 0
			}
			m.clampScroll()
		case "yank":
			cmd := m.yankFinding()
			return m, cmd
		case "resize_left":
			if m.splitRatio > 0.2 {
				m.splitRatio -= 0.05
			}
		case "resize_right":
			if m.splitRatio < 0.8 {
				m.splitRatio += 0.05
			}
		case "toggle_help":
			m.showHelp = !m.showHelp
		case "quit":
			m.cleanup()
			return m, tea.Quit
		}
		// "back" is handled by the parent

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case runFinishedMsg:
		m.running = false
		m.report = msg.report
		m.runErr = msg.err
		if msg.report != nil {
			m.findings = msg.report.Findings()
			// Park the cursor on the first failure
			for i, f := range m.findings {
				if !f.OK {
					m.selectedIdx = i
					break
				}
			}
			m.clampScroll()
		}

	case spinner.TickMsg:
		if m.running {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case clearStatusMsg:
		m.statusMsg = ""
	}

	return m, tea.Batch(cmds...)
}

func (m *runModel) moveSelection(delta int) {
	m.selectedIdx += delta
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
	if max := len(m.findings) - 1; m.selectedIdx > max && max >= 0 {
		m.selectedIdx = max
	}
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
	m.clampScroll()
}

func (m *runModel) clampScroll() {
	visible := m.visibleFindings()
	if m.selectedIdx < m.scrollOff {
		m.scrollOff = m.selectedIdx
	}
	if m.selectedIdx >= m.scrollOff+visible {
		m.scrollOff = m.selectedIdx - visible + 1
	}
	if m.scrollOff < 0 {
		m.scrollOff = 0
	}
}

func (m runModel) visibleFindings() int {
	visible := m.height - 9
	if visible < 1 {
		visible = 1
	}
	return visible
}

func (m *runModel) yankFinding() tea.Cmd {
	if m.selectedIdx >= len(m.findings) {
		return nil
	}
	content, err := json.MarshalIndent(findingPayload(m.findings[m.selectedIdx]), "", "  ")
	if err != nil {
		return m.setStatusMsg("Copy failed: " + err.Error())
	}
	if err := clipboard.WriteAll(string(content)); err != nil {
		return m.setStatusMsg("Copy failed: " + err.Error())
	}
	return m.setStatusMsg("Copied to clipboard")
}

// findingPayload is the clipboard shape of one finding.
func findingPayload(f soundcheck.Finding) map[string]any {
	return map[string]any{
		"subsystem": f.Subsystem,
		"target":    f.Target,
		"check":     f.Check,
		"kind":      string(f.Kind),
		"ok":        f.OK,
		"expected":  f.Expected,
		"actual":    f.Actual,
		"detail":    f.Detail,
	}
}

func (m *runModel) setStatusMsg(msg string) tea.Cmd {
	m.statusMsg = msg
	m.statusMsgTime = time.Now()
	return tea.Tick(3*time.Second, func(_ time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

func (m runModel) View() string {
	if m.width == 0 {
		return m.spinner.View() + " Loading..."
	}

	if m.showHelp {
		return m.renderHelpOverlay()
	}

	header := headerStyle.Width(m.width - 2).Render(
		"♫ soundcheck - " + m.entry.Name,
	)
	status := m.renderStatusBar()

	// Content height: total - header(3) - status(1) - help(1)
	contentHeight := m.height - 5
	if contentHeight < 3 {
		contentHeight = 3
	}

	listWidth := int(float64(m.width) * m.splitRatio)
	if listWidth < 20 {
		listWidth = 20
	}
	detailWidth := m.width - listWidth - 1

	body := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderFindings(listWidth, contentHeight-2),
		m.renderDetail(detailWidth, contentHeight-2),
	)
	help := m.renderHelpBar()

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		status,
		body,
		help,
	)
}

func (m runModel) renderStatusBar() string {
	var verdict string
	switch {
	case m.running:
		verdict = statusBarStyle.Render(fmt.Sprintf("%s Running... %s",
			m.spinner.View(), time.Since(m.started).Round(time.Second)))
	case m.report != nil && m.report.OK():
		verdict = passStyle.Render("● PASS")
	case m.report != nil:
		verdict = failStyle.Render(fmt.Sprintf("○ FAIL (%d/%d)",
			len(m.report.Failed()), m.report.Len()))
	default:
		verdict = failStyle.Render("○ ERROR")
	}

	parts := []string{verdict}
	if m.report != nil {
		parts = append(parts, statusBarStyle.Render(fmt.Sprintf("Checks: %d", m.report.Len())))
		took := m.report.Finished.Sub(m.report.Started).Round(time.Millisecond)
		parts = append(parts, statusBarStyle.Render(fmt.Sprintf("Took: %s", took)))
	}
	if m.runErr != nil && m.report == nil {
		parts = append(parts, errorStyle.Render(truncate(m.runErr.Error(), m.width-20)))
	}
	if m.statusMsg != "" && time.Since(m.statusMsgTime) < 3*time.Second {
		parts = append(parts, confirmationStyle.Render(m.statusMsg))
	}

	return strings.Join(parts, "  ")
}

func (m runModel) renderFindings(width, height int) string {
	var sb strings.Builder

	if m.running {
		sb.WriteString(mutedStyle.Render("  Waiting for the verdict..."))
		return listStyle.Width(width - 2).Height(height).Render(sb.String())
	}
	if m.report == nil {
		msg := "  Run failed"
		if m.runErr != nil {
			msg = "  " + m.runErr.Error()
		}
		sb.WriteString(errorStyle.Render(msg))
		return listStyle.Width(width - 2).Height(height).Render(sb.String())
	}
	if len(m.findings) == 0 {
		sb.WriteString(mutedStyle.Render("  No checks recorded"))
		return listStyle.Width(width - 2).Height(height).Render(sb.String())
	}

	endIdx := m.scrollOff + m.visibleFindings()
	if endIdx > len(m.findings) {
		endIdx = len(m.findings)
	}

	for i := m.scrollOff; i < endIdx; i++ {
		line := findingLine(m.findings[i])
		if i == m.selectedIdx {
			sb.WriteString(selectedLineStyle.Width(width - 6).Render("▶ " + line))
		} else {
			sb.WriteString(normalLineStyle.Width(width - 6).Render("  " + line))
		}
		sb.WriteString("\n")
	}

	return listStyle.Width(width - 2).Height(height).Render(sb.String())
}

// findingLine renders one list row, unstyled.
func findingLine(f soundcheck.Finding) string {
	mark := "✓"
	if !f.OK {
		mark = "✗"
	}
	return fmt.Sprintf("%s [%s] %s · %s", mark, f.Kind, f.Check, f.Target)
}

func (m runModel) renderDetail(width, height int) string {
	var sb strings.Builder

	if m.selectedIdx < len(m.findings) {
		f := m.findings[m.selectedIdx]

		if f.OK {
			sb.WriteString(passStyle.Render("PASS"))
		} else {
			sb.WriteString(failStyle.Render("FAIL"))
		}
		sb.WriteString("\n\n")

		writeField := func(name, value string) {
			if value == "" {
				return
			}
			sb.WriteString(fieldNameStyle.Render(name + ": "))
			sb.WriteString(fieldValueStyle.Render(truncate(value, width-len(name)-8)))
			sb.WriteString("\n")
		}
		writeField("Subsystem", f.Subsystem)
		writeField("Target", f.Target)
		writeField("Check", f.Check)
		writeField("Kind", string(f.Kind))
		writeField("Expected", f.Expected)
		writeField("Actual", f.Actual)
		writeField("Detail", f.Detail)
	} else {
		sb.WriteString(mutedStyle.Render("No finding selected"))
	}

	return detailPanelStyle.Width(width - 2).Height(height).Render(sb.String())
}

func (m runModel) renderHelpBar() string {
	keys := []struct{ key, desc string }{
		{"j/k", "nav"},
		{"gg/G", "top/end"},
		{"y", "copy"},
		{"H/L", "resize"},
		{"?", "help"},
		{"b", "back"},
		{"q", "quit"},
	}

	var parts []string
	for _, k := range keys {
		parts = append(parts, helpKeyStyle.Render(k.key)+" "+k.desc)
	}

	return helpStyle.Render(strings.Join(parts, " │ "))
}

func (m runModel) renderHelpOverlay() string {
	var lines []string

	lines = append(lines, fieldNameStyle.Render("Keybindings"))
	lines = append(lines, "")

	sections := []struct {
		name string
		keys []struct{ key, desc string }
	}{
		{
			name: "Navigation",
			keys: []struct{ key, desc string }{
				{"j / k", "Move down / up"},
				{"5j / 10k", "Move 5 down / 10 up"},
				{"gg", "Go to top"},
				{"G", "Go to bottom"},
				{"Ctrl+U / Ctrl+D", "Half page up / down"},
			},
		},
		{
			name: "Actions",
			keys: []struct{ key, desc string }{
				{"y", "Copy finding to clipboard"},
			},
		},
		{
			name: "View",
			keys: []struct{ key, desc string }{
				{"H / L", "Resize panes left / right"},
				{"?", "Toggle this help"},
			},
		},
		{
			name: "Control",
			keys: []struct{ key, desc string }{
				{"b", "Back to scenarios"},
				{"q / Ctrl+C", "Quit"},
			},
		},
	}

	for _, s := range sections {
		lines = append(lines, fieldNameStyle.Render(s.name))
		for _, k := range s.keys {
			lines = append(lines, fmt.Sprintf("  %s  %s",
				helpKeyStyle.Render(fmt.Sprintf("%-16s", k.key)), k.desc))
		}
		lines = append(lines, "")
	}

	box := detailPanelStyle.Render(strings.Join(lines, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// truncate trims s to max characters, appending "..." when it cuts.
func truncate(s string, max int) string {
	if len(s) <= max || max <= 3 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
