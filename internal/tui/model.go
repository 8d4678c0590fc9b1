// Package tui renders the login screen and the project dashboard in the
// terminal. All API work runs in tea commands; the dashboard controller's
// state is re-read whenever it reports a change.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/joescharf/ghcrm/internal/dashboard"
	"github.com/joescharf/ghcrm/internal/models"
	"github.com/joescharf/ghcrm/internal/service"
)

// Auth is the part of the facade behind the login screen.
type Auth interface {
	Login(ctx context.Context, email, password string) (*models.AuthResponse, error)
	Signup(ctx context.Context, req models.SignupRequest) (*models.AuthResponse, error)
	Logout(ctx context.Context) error
	IsAuthenticated() bool
}

type screen int

const (
	screenLogin screen = iota
	screenDashboard
)

const opLoad dashboard.Op = "load"

const (
	fieldEmail = iota
	fieldPassword
	fieldName
)

type (
	stateChangedMsg   struct{}
	sessionExpiredMsg struct{}
	authDoneMsg       struct{ err error }
	loggedOutMsg      struct{ err error }
	opDoneMsg         struct {
		op  dashboard.Op
		id  int
		err error
	}
)

// Model is the root bubbletea model.
type Model struct {
	ctx  context.Context
	auth Auth
	ctrl *dashboard.Controller

	screen screen
	state  dashboard.State
	cursor int
	status string

	// login form
	signup     bool
	fields     []textinput.Model
	focus      int
	authErr    string
	notice     string
	submitting bool

	addInput textinput.Model
	spinner  spinner.Model

	width  int
	height int
}

// New builds the model. It opens on the dashboard when a session exists and
// on the login screen otherwise.
func New(ctx context.Context, auth Auth, ctrl *dashboard.Controller) Model {
	email := textinput.New()
	email.Prompt = "Email     "
	email.Placeholder = "you@example.com"
	email.CharLimit = 254

	password := textinput.New()
	password.Prompt = "Password  "
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	name := textinput.New()
	name.Prompt = "Name      "
	name.Placeholder = "optional"

	add := textinput.New()
	add.Prompt = "> "
	add.Placeholder = dashboard.DefaultRepoPath
	add.CharLimit = 200

	m := Model{
		ctx:      ctx,
		auth:     auth,
		ctrl:     ctrl,
		fields:   []textinput.Model{email, password, name},
		addInput: add,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		state:    ctrl.State(),
	}
	m.fields[fieldEmail].Focus()
	if auth.IsAuthenticated() {
		m.screen = screenDashboard
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.screen == screenDashboard {
		cmds = append(cmds, m.loadCmd())
	}
	return tea.Batch(cmds...)
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func (m Model) loadCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return opDoneMsg{op: opLoad, err: ctrl.Load(ctx)}
	}
}

func (m Model) refreshAllCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return opDoneMsg{op: opLoad, err: ctrl.Refresh(ctx)}
	}
}

func (m Model) updateCmd(id int) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return opDoneMsg{op: dashboard.OpUpdate, id: id, err: ctrl.Update(ctx, id)}
	}
}

func (m Model) confirmAddCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return opDoneMsg{op: dashboard.OpAdd, err: ctrl.ConfirmAdd(ctx)}
	}
}

func (m Model) confirmDeleteCmd(id int) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return opDoneMsg{op: dashboard.OpDelete, id: id, err: ctrl.ConfirmDelete(ctx)}
	}
}

func (m Model) submitCmd() tea.Cmd {
	ctx, auth := m.ctx, m.auth
	email := strings.TrimSpace(m.fields[fieldEmail].Value())
	password := m.fields[fieldPassword].Value()
	name := strings.TrimSpace(m.fields[fieldName].Value())
	signup := m.signup
	return func() tea.Msg {
		var err error
		if signup {
			_, err = auth.Signup(ctx, models.SignupRequest{Email: email, Password: password, Name: name})
		} else {
			_, err = auth.Login(ctx, email, password)
		}
		return authDoneMsg{err: err}
	}
}

func (m Model) logoutCmd() tea.Cmd {
	ctx, auth := m.ctx, m.auth
	return func() tea.Msg {
		return loggedOutMsg{err: auth.Logout(ctx)}
	}
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateChangedMsg:
		m.syncState()
		return m, nil

	case sessionExpiredMsg:
		if m.screen == screenLogin {
			return m, nil
		}
		return m.toLogin("Your session has expired. Please log in again.", "")

	case authDoneMsg:
		m.submitting = false
		if msg.err != nil {
			m.authErr = service.Message(msg.err)
			return m, nil
		}
		return m.toDashboard()

	case loggedOutMsg:
		if msg.err != nil {
			m.status = "Logout failed: " + service.Message(msg.err)
			return m, nil
		}
		return m.toLogin("", "Logged out.")

	case opDoneMsg:
		return m.handleOpDone(msg), nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.screen == screenLogin {
			return m.updateLogin(msg)
		}
		return m.updateDashboard(msg)
	}

	// Cursor blink and other input housekeeping.
	var cmd tea.Cmd
	switch {
	case m.screen == screenLogin:
		m.fields[m.focus], cmd = m.fields[m.focus].Update(msg)
	case m.state.Dialog.Kind == dashboard.DialogAdd:
		m.addInput, cmd = m.addInput.Update(msg)
	}
	return m, cmd
}

func (m *Model) syncState() {
	m.state = m.ctrl.State()
	if m.cursor >= len(m.state.Projects) {
		m.cursor = len(m.state.Projects) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.state.Dialog.Kind != dashboard.DialogAdd {
		m.addInput.Blur()
	}
}

func (m Model) handleOpDone(msg opDoneMsg) Model {
	m.syncState()
	if m.screen != screenDashboard {
		return m
	}

	switch {
	case msg.err == nil:
		switch msg.op {
		case dashboard.OpAdd:
			m.status = styleSuccess.Render("Project added.")
		case dashboard.OpDelete:
			m.status = styleSuccess.Render("Project deleted.")
		case dashboard.OpUpdate:
			m.status = styleSuccess.Render("Project refreshed.")
		}
	case errors.Is(msg.err, dashboard.ErrBusy), errors.Is(msg.err, service.ErrUnauthorized):
		// Busy keys are already shown as pending; expiry switches screens.
	case msg.op == opLoad:
		// Shown from state.LoadErr.
	case (msg.op == dashboard.OpAdd || msg.op == dashboard.OpDelete) && m.state.Dialog.Open():
		// Shown inside the dialog.
	default:
		m.status = styleError.Render(string(msg.op) + " failed: " + service.Message(msg.err))
	}
	return m
}

func (m Model) toLogin(authErr, notice string) (tea.Model, tea.Cmd) {
	m.ctrl.Reset()
	m.syncState()
	m.screen = screenLogin
	m.authErr = authErr
	m.notice = notice
	m.status = ""
	m.submitting = false
	m.fields[fieldPassword].SetValue("")
	cmd := m.focusField(fieldEmail)
	return m, cmd
}

func (m Model) toDashboard() (tea.Model, tea.Cmd) {
	m.screen = screenDashboard
	m.authErr = ""
	m.notice = ""
	m.status = ""
	m.cursor = 0
	m.fields[fieldPassword].SetValue("")
	for i := range m.fields {
		m.fields[i].Blur()
	}
	return m, m.loadCmd()
}

func (m *Model) focusField(i int) tea.Cmd {
	m.focus = i
	var cmd tea.Cmd
	for j := range m.fields {
		if j == i {
			cmd = m.fields[j].Focus()
		} else {
			m.fields[j].Blur()
		}
	}
	return cmd
}

func (m Model) fieldCount() int {
	if m.signup {
		return 3
	}
	return 2
}

func (m Model) updateLogin(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "tab", "down":
		cmd := m.focusField((m.focus + 1) % m.fieldCount())
		return m, cmd
	case "shift+tab", "up":
		cmd := m.focusField((m.focus + m.fieldCount() - 1) % m.fieldCount())
		return m, cmd
	case "ctrl+t":
		m.signup = !m.signup
		m.authErr = ""
		m.notice = ""
		if m.focus >= m.fieldCount() {
			cmd := m.focusField(fieldEmail)
			return m, cmd
		}
		return m, nil
	case "enter":
		if m.submitting {
			return m, nil
		}
		m.submitting = true
		m.authErr = ""
		m.notice = ""
		return m, m.submitCmd()
	}

	var cmd tea.Cmd
	m.fields[m.focus], cmd = m.fields[m.focus].Update(key)
	return m, cmd
}

func (m Model) selected() (models.Project, bool) {
	if m.cursor < 0 || m.cursor >= len(m.state.Projects) {
		return models.Project{}, false
	}
	return m.state.Projects[m.cursor], true
}

func (m Model) updateDashboard(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.state.Dialog.Kind {
	case dashboard.DialogAdd:
		return m.updateAddDialog(key)
	case dashboard.DialogDelete:
		return m.updateDeleteDialog(key)
	}

	switch key.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.state.Projects)-1 {
			m.cursor++
		}
	case "a":
		if err := m.ctrl.OpenAdd(); err != nil {
			return m, nil
		}
		m.status = ""
		m.syncState()
		m.addInput.SetValue(m.state.Dialog.Input)
		m.addInput.CursorEnd()
		cmd := m.addInput.Focus()
		return m, cmd
	case "d", "x", "delete":
		p, ok := m.selected()
		if !ok {
			return m, nil
		}
		if err := m.ctrl.OpenDelete(p); err == nil {
			m.status = ""
			m.syncState()
		}
	case "r":
		p, ok := m.selected()
		if !ok || m.state.IsPending(dashboard.OpUpdate, p.ID) {
			return m, nil
		}
		m.status = ""
		return m, m.updateCmd(p.ID)
	case "R":
		m.status = ""
		return m, m.refreshAllCmd()
	case "L":
		return m, m.logoutCmd()
	}
	return m, nil
}

func (m Model) updateAddDialog(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "esc":
		m.ctrl.CancelDialog()
		m.addInput.Blur()
		m.syncState()
		return m, nil
	case "enter":
		if m.state.IsPending(dashboard.OpAdd, 0) {
			return m, nil
		}
		return m, m.confirmAddCmd()
	}

	var cmd tea.Cmd
	m.addInput, cmd = m.addInput.Update(key)
	_ = m.ctrl.SetInput(m.addInput.Value())
	m.syncState()
	return m, cmd
}

func (m Model) updateDeleteDialog(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	target := m.state.Dialog.Target
	switch key.String() {
	case "esc", "n":
		m.ctrl.CancelDialog()
		m.syncState()
	case "enter", "y":
		if target == nil || m.state.IsPending(dashboard.OpDelete, target.ID) {
			return m, nil
		}
		return m, m.confirmDeleteCmd(target.ID)
	}
	return m, nil
}
