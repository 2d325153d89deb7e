// Package tui implements the interactive scenario browser: a picker over
// the scenario directory and a run view that streams one run's verdict.
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/epalmerini/soundcheck/internal/config"
	"github.com/epalmerini/soundcheck/internal/history"
)

// Run starts the TUI over the given scenario directory and blocks until
// the user quits. Finished runs are recorded to the history store when
// one can be opened; a broken store downgrades to no recording.
func Run(cfg config.Config, profile, dir string) error {
	var writer *history.AsyncWriter
	store, err := history.NewStore(cfg.HistoryPath)
	if err == nil {
		writer = history.NewAsyncWriter(store)
		defer func() {
			writer.Close()
			_ = store.Close()
		}()
	}

	p := tea.NewProgram(newAppModel(cfg, profile, dir, writer), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}

	return nil
}
