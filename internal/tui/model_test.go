package tui

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ghcrm/internal/apiclient"
	"github.com/joescharf/ghcrm/internal/apitest"
	"github.com/joescharf/ghcrm/internal/dashboard"
	"github.com/joescharf/ghcrm/internal/service"
	"github.com/joescharf/ghcrm/internal/session"
	"github.com/joescharf/ghcrm/internal/store"
)

type testEnv struct {
	api  *apitest.Server
	sess *session.Store
	svc  *service.Service
	ctrl *dashboard.Controller
	navs *atomic.Int32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	api := apitest.New()
	t.Cleanup(api.Close)
	api.AddUser("a@b.com", "pw")

	kv, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "ghcrm.db"))
	require.NoError(t, err)
	require.NoError(t, kv.Migrate(ctx))
	t.Cleanup(func() { kv.Close() })

	sess, err := session.New(ctx, kv, nil)
	require.NoError(t, err)

	navs := &atomic.Int32{}
	client, err := apiclient.New(api.URL, sess,
		apiclient.WithHTTPClient(api.Client()),
		apiclient.WithNavigator(apiclient.NavigatorFunc(func() { navs.Add(1) })),
	)
	require.NoError(t, err)

	svc := service.New(client, sess, nil)
	return &testEnv{api: api, sess: sess, svc: svc, ctrl: dashboard.New(svc), navs: navs}
}

func (e *testEnv) model() Model {
	return New(context.Background(), e.svc, e.ctrl)
}

// signedIn logs in and returns a dashboard model with the list loaded.
func (e *testEnv) signedIn(t *testing.T) Model {
	t.Helper()
	_, err := e.svc.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	m := e.model()
	require.Equal(t, screenDashboard, m.screen)
	return run(t, m, m.loadCmd())
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "ctrl+t":
		return tea.KeyMsg{Type: tea.KeyCtrlT}
	case "ctrl+u":
		return tea.KeyMsg{Type: tea.KeyCtrlU}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// press sends each key in order and returns the model and the last command.
func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(keyMsg(k))
		m = next.(Model)
	}
	return m, cmd
}

// typeText sends s one rune at a time.
func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	for _, r := range s {
		m, _ = press(t, m, string(r))
	}
	return m
}

// step executes cmd synchronously and feeds its message back into the
// model, returning the follow-up command.
func step(t *testing.T, m Model, cmd tea.Cmd) (Model, tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	next, follow := m.Update(cmd())
	return next.(Model), follow
}

func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	m, _ = step(t, m, cmd)
	return m
}

func TestModel_StartsOnLoginWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	m := env.model()
	assert.Equal(t, screenLogin, m.screen)
	assert.Contains(t, m.View(), "Log in")
}

func TestModel_LoginShowsDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.api.SeedProject("facebook/react")
	m := env.model()

	m = typeText(t, m, "a@b.com")
	m, _ = press(t, m, "tab")
	m = typeText(t, m, "pw")
	m, cmd := press(t, m, "enter")
	assert.True(t, m.submitting)

	m, cmd = step(t, m, cmd)
	require.Equal(t, screenDashboard, m.screen)
	assert.True(t, env.sess.IsAuthenticated())
	assert.Empty(t, m.fields[fieldPassword].Value(), "password is not kept")

	// Entering the dashboard triggers the initial load.
	m = run(t, m, cmd)
	assert.True(t, m.state.Loaded)
	assert.Contains(t, m.View(), "facebook/react")
}

func TestModel_LoginRejected(t *testing.T) {
	env := newTestEnv(t)
	m := env.model()

	m = typeText(t, m, "a@b.com")
	m, _ = press(t, m, "tab")
	m = typeText(t, m, "wrong")
	m, cmd := press(t, m, "enter")
	m = run(t, m, cmd)

	assert.Equal(t, screenLogin, m.screen)
	assert.False(t, m.submitting)
	assert.Equal(t, "Invalid credentials", m.authErr)
	assert.Contains(t, m.View(), "Invalid credentials")
	assert.Zero(t, env.navs.Load(), "rejected login does not navigate")
}

func TestModel_LoginRequiresFields(t *testing.T) {
	env := newTestEnv(t)
	m := env.model()

	m, cmd := press(t, m, "enter")
	m = run(t, m, cmd)
	assert.Equal(t, "Email and password are required", m.authErr)
	assert.Empty(t, env.api.Requests())
}

func TestModel_SignupToggle(t *testing.T) {
	env := newTestEnv(t)
	m := env.model()

	m, _ = press(t, m, "ctrl+t")
	assert.True(t, m.signup)
	assert.Contains(t, m.View(), "Create account")
	assert.Equal(t, 3, m.fieldCount())

	m = typeText(t, m, "new@b.com")
	m, _ = press(t, m, "tab")
	m = typeText(t, m, "secret")
	m, _ = press(t, m, "tab")
	assert.Equal(t, fieldName, m.focus)
	m = typeText(t, m, "New")
	m, cmd := press(t, m, "enter")
	m = run(t, m, cmd)

	assert.Equal(t, screenDashboard, m.screen)
	p, err := env.svc.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "New", p.Name)
}

func TestModel_AddProjectWithDefaultInput(t *testing.T) {
	env := newTestEnv(t)
	m := env.signedIn(t)
	assert.Contains(t, m.View(), "No projects tracked yet")

	m, _ = press(t, m, "a")
	require.Equal(t, dashboard.DialogAdd, m.state.Dialog.Kind)
	assert.Equal(t, dashboard.DefaultRepoPath, m.addInput.Value())
	assert.Contains(t, m.View(), "Add project")

	m, cmd := press(t, m, "enter")
	m = run(t, m, cmd)

	assert.Equal(t, dashboard.DialogClosed, m.state.Dialog.Kind)
	require.Len(t, m.state.Projects, 1)
	assert.Equal(t, "facebook/react", m.state.Projects[0].FullName())
	assert.Contains(t, m.View(), "Project added.")
}

func TestModel_AddProjectInvalidKeepsDialog(t *testing.T) {
	env := newTestEnv(t)
	m := env.signedIn(t)

	m, _ = press(t, m, "a", "ctrl+u")
	m = typeText(t, m, "not-a-valid-path")
	assert.Equal(t, "not-a-valid-path", m.state.Dialog.Input)

	m, cmd := press(t, m, "enter")
	m = run(t, m, cmd)

	assert.Equal(t, dashboard.DialogAdd, m.state.Dialog.Kind)
	assert.Equal(t, "not-a-valid-path", m.addInput.Value())
	require.Error(t, m.state.Dialog.Err)
	assert.ErrorIs(t, m.state.Dialog.Err, service.ErrValidation)
	assert.Contains(t, m.View(), "path must be in the format owner/repo")

	// Esc closes; reopening shows the retained input.
	m, _ = press(t, m, "esc")
	assert.Equal(t, dashboard.DialogClosed, m.state.Dialog.Kind)
	m, _ = press(t, m, "a")
	assert.Equal(t, "not-a-valid-path", m.addInput.Value())
}

func TestModel_DeleteProject(t *testing.T) {
	env := newTestEnv(t)
	env.api.SeedProject("facebook/react")
	env.api.SeedProject("golang/go")
	m := env.signedIn(t)
	require.Len(t, m.state.Projects, 2)

	m, _ = press(t, m, "down", "d")
	require.Equal(t, dashboard.DialogDelete, m.state.Dialog.Kind)
	assert.Contains(t, m.View(), "golang/go")

	m, cmd := press(t, m, "y")
	m = run(t, m, cmd)

	assert.Equal(t, dashboard.DialogClosed, m.state.Dialog.Kind)
	require.Len(t, m.state.Projects, 1)
	assert.Equal(t, "facebook/react", m.state.Projects[0].FullName())
	assert.Equal(t, 0, m.cursor, "cursor clamps to remaining rows")
}

func TestModel_DeleteCancel(t *testing.T) {
	env := newTestEnv(t)
	env.api.SeedProject("facebook/react")
	m := env.signedIn(t)

	m, _ = press(t, m, "d", "n")
	assert.Equal(t, dashboard.DialogClosed, m.state.Dialog.Kind)
	assert.Len(t, env.api.Projects(), 1)
}

func TestModel_DeleteVanishedProject(t *testing.T) {
	env := newTestEnv(t)
	p := env.api.SeedProject("facebook/react")
	m := env.signedIn(t)
	env.api.RemoveProject(p.ID)

	m, _ = press(t, m, "d")
	m, cmd := press(t, m, "enter")
	m = run(t, m, cmd)

	assert.Equal(t, dashboard.DialogDelete, m.state.Dialog.Kind)
	assert.ErrorIs(t, m.state.Dialog.Err, service.ErrNotFound)
	assert.Len(t, m.state.Projects, 1, "snapshot unchanged")
	assert.Contains(t, m.View(), "Project not found")
}

func TestModel_RefreshRow(t *testing.T) {
	env := newTestEnv(t)
	env.api.SeedProject("facebook/react")
	m := env.signedIn(t)
	before := m.state.Projects[0].Stars

	m, cmd := press(t, m, "r")
	m = run(t, m, cmd)
	assert.Equal(t, before+1, m.state.Projects[0].Stars)
	assert.Contains(t, m.View(), "Project refreshed.")
}

func TestModel_SessionExpiryReturnsToLogin(t *testing.T) {
	env := newTestEnv(t)
	env.api.SeedProject("facebook/react")
	m := env.signedIn(t)
	env.api.ExpireTokens()

	m, cmd := press(t, m, "r")
	m = run(t, m, cmd)
	assert.Equal(t, int32(1), env.navs.Load())
	assert.False(t, env.sess.IsAuthenticated())

	// The navigator delivers this message to a running program.
	next, _ := m.Update(sessionExpiredMsg{})
	m = next.(Model)
	assert.Equal(t, screenLogin, m.screen)
	assert.Contains(t, m.View(), "session has expired")
	assert.Empty(t, m.state.Projects, "dashboard state is discarded")
}

func TestModel_Logout(t *testing.T) {
	env := newTestEnv(t)
	m := env.signedIn(t)

	m, cmd := press(t, m, "L")
	m = run(t, m, cmd)
	assert.Equal(t, screenLogin, m.screen)
	assert.False(t, env.sess.IsAuthenticated())
	assert.Contains(t, m.View(), "Logged out.")
}

func TestModel_LoadFailureShowsRetry(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	env.api.Fail("GET /projects", 500)

	m := env.model()
	m = run(t, m, m.loadCmd())
	assert.Contains(t, m.View(), "Could not load projects")

	env.api.Recover()
	m, cmd := press(t, m, "R")
	m = run(t, m, cmd)
	assert.True(t, m.state.Loaded)
	assert.NotContains(t, m.View(), "Could not load projects")
}

func TestModel_QuitKeys(t *testing.T) {
	env := newTestEnv(t)
	m := env.signedIn(t)

	_, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	// q types into the add dialog instead of quitting.
	m, _ = press(t, m, "a", "ctrl+u", "q")
	assert.Equal(t, "q", m.state.Dialog.Input)
}

func TestNavigator_WithoutProgram(t *testing.T) {
	var n Navigator
	assert.NotPanics(t, n.ToLogin)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
