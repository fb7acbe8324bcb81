package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jxwalker/modshelf/internal/config"
	"github.com/jxwalker/modshelf/internal/state"
)

// Run opens the library browser and blocks until the user quits.
func Run(cfg *config.Config, db *state.DB, opts ...Option) error {
	m := New(cfg, db, opts...)
	_, err := tea.NewProgram(m, programOptions(m.cfg)...).Run()
	if werr := m.metrics.Write(); werr != nil {
		m.log.Warnf("write metrics: %v", werr)
	}
	return err
}

// programOptions enables all-motion mouse reporting when ui.mouse is set, so
// the pointer hovers cards without a button held.
func programOptions(cfg *config.Config) []tea.ProgramOption {
	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithReportFocus()}
	if cfg.UI.Mouse {
		opts = append(opts, tea.WithMouseAllMotion())
	}
	return opts
}
