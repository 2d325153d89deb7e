package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/epalmerini/soundcheck/internal/scenariofile"
)

type pickerModel struct {
	dir           string
	width, height int

	entries     []scenarioEntry
	selectedIdx int
	scrollOff   int

	vimKeys VimKeyState
	loading bool
	err     error
}

// Messages
type scenariosLoadedMsg struct {
	entries []scenarioEntry
}

type scanFailedMsg struct {
	err error
}

type runRequestedMsg struct {
	entry scenarioEntry
}

func newPickerModel(dir string) pickerModel {
	return pickerModel{
		dir:     dir,
		vimKeys: NewVimKeyState(),
		loading: true,
	}
}

func (m pickerModel) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		m.loadScenarios(),
	)
}

func (m pickerModel) loadScenarios() tea.Cmd {
	dir := m.dir
	return func() tea.Msg {
		paths, err := scenariofile.List(dir)
		if err != nil {
			return scanFailedMsg{err: err}
		}

		entries := make([]scenarioEntry, 0, len(paths))
		for _, p := range paths {
			def, err := scenariofile.Load(p)
			if err != nil {
				entries = append(entries, scenarioEntry{Path: p, Name: filepath.Base(p), LoadErr: err})
				continue
			}
			entries = append(entries, scenarioEntry{
				Path:        p,
				Name:        def.Name,
				Description: def.Description,
			})
		}
		return scenariosLoadedMsg{entries: entries}
	}
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "up":
			m.moveSelection(-1)
			return m, nil
		case "down":
			m.moveSelection(1)
			return m, nil
		case "enter":
			if m.selectedIdx < len(m.entries) {
				entry := m.entries[m.selectedIdx]
				if !entry.runnable() {
					return m, nil
				}
				return m, func() tea.Msg {
					return runRequestedMsg{entry: entry}
				}
			}
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
			m.selectedIdx = len(m.entries) - 1
			if m.selectedIdx < 0 {
				m.selectedIdx = 0
			}
			m.clampScroll()
		case "refresh":
			m.loading = true
			m.err = nil
			return m, m.loadScenarios()
		case "quit":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case scenariosLoadedMsg:
		m.loading = false
		m.entries = msg.entries
		if m.selectedIdx >= len(m.entries) {
			m.selectedIdx = 0
			m.scrollOff = 0
		}

	case scanFailedMsg:
		m.loading = false
		m.err = msg.err
	}

	return m, nil
}

func (m *pickerModel) moveSelection(delta int) {
	m.selectedIdx += delta
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
	if max := len(m.entries) - 1; m.selectedIdx > max {
		m.selectedIdx = max
	}
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
	m.clampScroll()
}

func (m *pickerModel) clampScroll() {
	visible := m.visibleItems()
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

func (m pickerModel) visibleItems() int {
	// Each entry takes two lines (name + description)
	visible := (m.height - 10) / 2
	if visible < 1 {
		visible = 1
	}
	return visible
}

func (m pickerModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := headerStyle.Width(m.width - 2).Render(
		"♫ soundcheck - Scenarios",
	)

	content := m.renderEntries()
	help := m.renderHelp()

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		help,
	)
}

func (m pickerModel) renderEntries() string {
	var sb strings.Builder

	sb.WriteString(fieldNameStyle.Render(fmt.Sprintf("Scenarios in %s:", m.dir)))
	sb.WriteString("\n\n")

	if m.loading {
		sb.WriteString(mutedStyle.Render("  Loading..."))
		return listStyle.Width(m.width - 4).Height(m.height - 8).Render(sb.String())
	}

	if m.err != nil {
		sb.WriteString(errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)))
		return listStyle.Width(m.width - 4).Height(m.height - 8).Render(sb.String())
	}

	if len(m.entries) == 0 {
		sb.WriteString(mutedStyle.Render("  No scenario documents found (*.toml)"))
		return listStyle.Width(m.width - 4).Height(m.height - 8).Render(sb.String())
	}

	endIdx := m.scrollOff + m.visibleItems()
	if endIdx > len(m.entries) {
		endIdx = len(m.entries)
	}

	for i := m.scrollOff; i < endIdx; i++ {
		e := m.entries[i]

		var line string
		if e.LoadErr != nil {
			line = fmt.Sprintf("%s %s", e.Name, errorStyle.Render("(broken)"))
		} else {
			line = e.Name
		}

		if i == m.selectedIdx {
			sb.WriteString(selectedLineStyle.Width(m.width - 8).Render("▶ " + line))
		} else {
			sb.WriteString(normalLineStyle.Width(m.width - 8).Render("  " + line))
		}
		sb.WriteString("\n")

		detail := e.Description
		if e.LoadErr != nil {
			detail = e.LoadErr.Error()
		}
		if detail == "" {
			detail = filepath.Base(e.Path)
		}
		sb.WriteString(mutedStyle.Render("    " + truncate(detail, m.width-12)))
		sb.WriteString("\n")
	}

	return listStyle.Width(m.width - 4).Height(m.height - 8).Render(sb.String())
}

func (m pickerModel) renderHelp() string {
	keys := []struct{ key, desc string }{
		{"↑/k", "up"},
		{"↓/j", "down"},
		{"gg/G", "top/end"},
		{"enter", "run"},
		{"r", "refresh"},
		{"q", "quit"},
	}

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", helpKeyStyle.Render(k.key), k.desc))
	}

	return helpStyle.Render(strings.Join(parts, "  │  "))
}
