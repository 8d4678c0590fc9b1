package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Navigator delivers the request client's "go to login" effect to a running
// program. It does nothing while no program is attached.
type Navigator struct {
	mu   sync.Mutex
	prog *tea.Program
}

// ToLogin switches the running program to the login screen.
func (n *Navigator) ToLogin() {
	n.mu.Lock()
	p := n.prog
	n.mu.Unlock()
	if p != nil {
		// Send blocks until the event loop reads it; the caller may be a
		// command running inside that loop.
		go p.Send(sessionExpiredMsg{})
	}
}

func (n *Navigator) attach(p *tea.Program) {
	n.mu.Lock()
	n.prog = p
	n.mu.Unlock()
}
