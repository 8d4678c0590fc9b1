package cmd

import (
	"sync"

	"github.com/joescharf/ghcrm/internal/apiclient"
	"github.com/joescharf/ghcrm/internal/output"
)

// sessionNavigator receives the request client's "go to login" effect. While
// the dashboard runs it forwards to the TUI; otherwise it tells the user how
// to sign in again.
type sessionNavigator struct {
	ui *output.UI

	mu     sync.Mutex
	target apiclient.Navigator
	fired  int
}

func (n *sessionNavigator) ToLogin() {
	n.mu.Lock()
	target := n.target
	n.fired++
	n.mu.Unlock()

	if target != nil {
		target.ToLogin()
		return
	}
	n.ui.Warning("Session expired or invalid. Run 'ghcrm login' to sign in again.")
}

// ToDashboard is shown after a successful sign-in from the command line.
func (n *sessionNavigator) ToDashboard() {
	n.ui.Info("Run 'ghcrm dashboard' to manage your projects, or 'ghcrm project list'.")
}

// route sends ToLogin to target until the returned func is called.
func (n *sessionNavigator) route(target apiclient.Navigator) (restore func()) {
	n.mu.Lock()
	prev := n.target
	n.target = target
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		n.target = prev
		n.mu.Unlock()
	}
}

func (n *sessionNavigator) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fired
}
