package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/epalmerini/soundcheck"
	"github.com/epalmerini/soundcheck/internal/config"
	"github.com/epalmerini/soundcheck/internal/history"
	"github.com/epalmerini/soundcheck/internal/randutil"
	"github.com/epalmerini/soundcheck/internal/runner"
)

type appView int

const (
	viewPicker appView = iota
	viewRun
)

// appModel switches between the scenario picker and the run view.
type appModel struct {
	cfg     config.Config
	profile string

	runner *runner.Runner
	writer *history.AsyncWriter

	view   appView
	picker pickerModel
	run    runModel
}

func newAppModel(cfg config.Config, profile, dir string, writer *history.AsyncWriter) appModel {
	return appModel{
		cfg:     cfg,
		profile: profile,
		// The TUI owns the terminal, so the runner stays quiet.
		runner: runner.New(cfg, zap.NewNop()),
		writer: writer,
		view:   viewPicker,
		picker: newPickerModel(dir),
	}
}

func (m appModel) Init() tea.Cmd {
	return m.picker.Init()
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Both views track the size so switching stays seamless
		pm, _ := m.picker.Update(msg)
		m.picker = pm.(pickerModel)
		rm, _ := m.run.Update(msg)
		m.run = rm.(runModel)
		return m, nil

	case runRequestedMsg:
		m.run.cleanup()
		entry := msg.entry
		m.run = newRunModel(entry, func(ctx context.Context) (*soundcheck.Report, error) {
			return m.runner.RunFile(ctx, entry.Path)
		})
		m.run.width = m.picker.width
		m.run.height = m.picker.height
		m.view = viewRun
		return m, m.run.Init()

	case runFinishedMsg:
		m.recordRun(msg)
		if m.view != viewRun {
			// Finished after the user went back; nothing to show.
			return m, nil
		}
		rm, cmd := m.run.Update(msg)
		m.run = rm.(runModel)
		return m, cmd

	case tea.KeyMsg:
		if m.view == viewRun && msg.String() == "b" && !m.run.showHelp {
			m.run.cleanup()
			m.view = viewPicker
			return m, nil
		}
	}

	return m.delegate(msg)
}

func (m appModel) delegate(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.view {
	case viewRun:
		rm, cmd := m.run.Update(msg)
		m.run = rm.(runModel)
		return m, cmd
	default:
		pm, cmd := m.picker.Update(msg)
		m.picker = pm.(pickerModel)
		return m, cmd
	}
}

// recordRun persists a finished run, when a history store is around.
func (m appModel) recordRun(msg runFinishedMsg) {
	if m.writer == nil || msg.report == nil {
		return
	}
	run, findings := history.FromReport(randutil.RunID(), m.profile, msg.report)
	m.writer.Save(run, findings)
}

func (m appModel) View() string {
	if m.view == viewRun {
		return m.run.View()
	}
	return m.picker.View()
}
