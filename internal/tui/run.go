package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joescharf/ghcrm/internal/dashboard"
)

// Run starts the interactive client and blocks until the user quits or ctx
// is cancelled. nav, when non-nil, is attached for the lifetime of the
// program so session expiry returns the user to the login screen.
func Run(ctx context.Context, auth Auth, ctrl *dashboard.Controller, nav *Navigator, opts ...tea.ProgramOption) error {
	m := New(ctx, auth, ctrl)
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(m, opts...)

	ctrl.OnChange(func() { go p.Send(stateChangedMsg{}) })
	if nav != nil {
		nav.attach(p)
		defer nav.attach(nil)
	}

	_, err := p.Run()
	return err
}
