package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ghcrm/internal/models"
)

var errNotFound = errors.New("project not found")

// fakeService is an in-memory Service. hook, when set, runs before each call
// with the operation name and its 1-based call number for that operation.
type fakeService struct {
	mu       sync.Mutex
	projects []models.Project
	nextID   int
	calls    map[string]int

	listErr   error
	addErr    error
	updateErr error

	hook func(op string, n int)
}

func newFakeService(projects ...models.Project) *fakeService {
	f := &fakeService{calls: make(map[string]int), nextID: 1}
	for _, p := range projects {
		f.projects = append(f.projects, p)
		if p.ID >= f.nextID {
			f.nextID = p.ID + 1
		}
	}
	return f
}

func (f *fakeService) enter(op string) {
	f.mu.Lock()
	f.calls[op]++
	n := f.calls[op]
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(op, n)
	}
}

func (f *fakeService) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeService) ListProjects(ctx context.Context) ([]models.Project, error) {
	f.enter("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Project, len(f.projects))
	copy(out, f.projects)
	return out, nil
}

func (f *fakeService) AddProject(ctx context.Context, path string) (*models.Project, error) {
	f.enter("add")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return nil, f.addErr
	}
	owner, name, err := models.SplitRepoPath(path)
	if err != nil {
		return nil, err
	}
	p := models.Project{ID: f.nextID, Owner: owner, Name: name}
	f.nextID++
	f.projects = append(f.projects, p)
	return &p, nil
}

func (f *fakeService) UpdateProject(ctx context.Context, id int) (*models.Project, error) {
	f.enter("update")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for i := range f.projects {
		if f.projects[i].ID == id {
			f.projects[i].Stars++
			p := f.projects[i]
			return &p, nil
		}
	}
	return nil, errNotFound
}

func (f *fakeService) DeleteProject(ctx context.Context, id int) error {
	f.enter("delete")
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.projects {
		if f.projects[i].ID == id {
			f.projects = append(f.projects[:i], f.projects[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

// gate blocks the matching call until release is closed and signals entered
// once the call has started.
type gate struct {
	op      string
	n       int
	entered chan struct{}
	release chan struct{}
}

func newGate(op string, n int) *gate {
	return &gate{op: op, n: n, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) hook(op string, n int) {
	if op == g.op && n == g.n {
		close(g.entered)
		<-g.release
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for call")
	}
}

func sampleProjects() []models.Project {
	return []models.Project{
		{ID: 1, Owner: "facebook", Name: "react", Stars: 100},
		{ID: 2, Owner: "golang", Name: "go", Stars: 200},
	}
}

func loadedController(t *testing.T, svc *fakeService) *Controller {
	t.Helper()
	c := New(svc)
	require.NoError(t, c.Load(context.Background()))
	return c
}

func TestController_LoadSuccess(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := loadedController(t, svc)

	s := c.State()
	assert.True(t, s.Loaded)
	assert.False(t, s.Loading)
	assert.False(t, s.Refreshing)
	assert.NoError(t, s.LoadErr)
	assert.Equal(t, sampleProjects(), s.Projects)
	assert.Equal(t, DialogClosed, s.Dialog.Kind)
}

func TestController_LoadingWhileFirstFetchInFlight(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	g := newGate("list", 1)
	svc.hook = g.hook
	c := New(svc)

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background()) }()
	waitFor(t, g.entered)

	s := c.State()
	assert.True(t, s.Loading)
	assert.False(t, s.Loaded)

	close(g.release)
	require.NoError(t, <-done)
	assert.False(t, c.State().Loading)
	assert.Len(t, c.State().Projects, 2)
}

func TestController_LoadFailure(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	svc.listErr = errors.New("could not reach the server")
	c := New(svc)

	err := c.Load(context.Background())
	require.Error(t, err)

	s := c.State()
	assert.False(t, s.Loading)
	assert.False(t, s.Loaded)
	assert.EqualError(t, s.LoadErr, "could not reach the server")
	assert.Empty(t, s.Projects)
}

func TestController_LoadEmptyList(t *testing.T) {
	c := loadedController(t, newFakeService())
	s := c.State()
	assert.True(t, s.Loaded)
	assert.Empty(t, s.Projects)
}

func TestController_ConfirmAddSuccess(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := loadedController(t, svc)
	ctx := context.Background()

	require.NoError(t, c.OpenAdd())
	require.NoError(t, c.SetInput("vercel/next.js"))
	require.NoError(t, c.ConfirmAdd(ctx))

	s := c.State()
	assert.Equal(t, DialogClosed, s.Dialog.Kind)
	assert.False(t, s.Stale)
	require.Len(t, s.Projects, 3)
	assert.Equal(t, "vercel/next.js", s.Projects[2].FullName())
	assert.Equal(t, 2, svc.count("list"))
	assert.False(t, s.IsPending(OpAdd, 0))
}

func TestController_ConfirmAddFailureKeepsDialog(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	svc.addErr = errors.New("Project already exists")
	c := loadedController(t, svc)

	require.NoError(t, c.OpenAdd())
	require.NoError(t, c.SetInput("facebook/react"))
	err := c.ConfirmAdd(context.Background())
	require.Error(t, err)

	s := c.State()
	assert.Equal(t, DialogAdd, s.Dialog.Kind)
	assert.Equal(t, "facebook/react", s.Dialog.Input)
	assert.EqualError(t, s.Dialog.Err, "Project already exists")
	assert.Equal(t, sampleProjects(), s.Projects)
	assert.Equal(t, 1, svc.count("list"), "no refetch after failure")
	assert.ErrorIs(t, s.Failures[PendingKey{Op: OpAdd}], svc.addErr)

	// A fresh attempt clears the error.
	svc.mu.Lock()
	svc.addErr = nil
	svc.mu.Unlock()
	require.NoError(t, c.SetInput("golang/tools"))
	require.NoError(t, c.ConfirmAdd(context.Background()))
	assert.Equal(t, DialogClosed, c.State().Dialog.Kind)
	assert.Empty(t, c.State().Failures)
}

func TestController_ConfirmWithNoDialogIsNoop(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := loadedController(t, svc)

	assert.NoError(t, c.ConfirmAdd(context.Background()))
	assert.NoError(t, c.ConfirmDelete(context.Background()))
	assert.Zero(t, svc.count("add"))
	assert.Zero(t, svc.count("delete"))
}

func TestController_ConfirmAddWrongDialogIsNoop(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := loadedController(t, svc)

	require.NoError(t, c.OpenDelete(sampleProjects()[0]))
	assert.NoError(t, c.ConfirmAdd(context.Background()))
	assert.Zero(t, svc.count("add"))
	assert.Equal(t, DialogDelete, c.State().Dialog.Kind)
}

func TestController_ConfirmDeleteSuccess(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := loadedController(t, svc)

	p, ok := c.Project(2)
	require.True(t, ok)
	require.NoError(t, c.OpenDelete(p))
	require.NoError(t, c.ConfirmDelete(context.Background()))

	s := c.State()
	assert.Equal(t, DialogClosed, s.Dialog.Kind)
	require.Len(t, s.Projects, 1)
	assert.Equal(t, 1, s.Projects[0].ID)
}

func TestController_ConfirmDeleteUsesCapturedTarget(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := loadedController(t, svc)

	p, _ := c.Project(1)
	require.NoError(t, c.OpenDelete(p))

	// Another client removes project 1 and a refetch lands while the dialog
	// is open. The dialog still targets the captured project.
	svc.mu.Lock()
	svc.projects = svc.projects[1:]
	svc.mu.Unlock()
	require.NoError(t, c.Load(context.Background()))

	s := c.State()
	require.NotNil(t, s.Dialog.Target)
	assert.Equal(t, 1, s.Dialog.Target.ID)

	err := c.ConfirmDelete(context.Background())
	assert.ErrorIs(t, err, errNotFound)
	s = c.State()
	assert.Equal(t, DialogDelete, s.Dialog.Kind)
	assert.ErrorIs(t, s.Dialog.Err, errNotFound)
	assert.Len(t, s.Projects, 1)
}

func TestController_ConfirmDeleteNotFoundLeavesSnapshot(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := loadedController(t, svc)

	require.NoError(t, c.OpenDelete(models.Project{ID: 999}))
	err := c.ConfirmDelete(context.Background())
	assert.ErrorIs(t, err, errNotFound)
	assert.Equal(t, sampleProjects(), c.State().Projects)
	assert.Equal(t, 1, svc.count("list"))
}

func TestController_UpdateRefetches(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := loadedController(t, svc)

	require.NoError(t, c.Update(context.Background(), 1))
	p, ok := c.Project(1)
	require.True(t, ok)
	assert.Equal(t, 101, p.Stars)
	assert.Equal(t, 2, svc.count("list"))
	assert.False(t, c.State().Stale)
}

func TestController_UpdateFailureRecorded(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := loadedController(t, svc)

	err := c.Update(context.Background(), 42)
	assert.ErrorIs(t, err, errNotFound)

	s := c.State()
	assert.ErrorIs(t, s.Failures[PendingKey{Op: OpUpdate, ID: 42}], errNotFound)
	assert.False(t, s.IsPending(OpUpdate, 42))
	assert.Equal(t, 1, svc.count("list"))
}

func TestController_UpdatePendingAndBusy(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := loadedController(t, svc)
	g := newGate("update", 1)
	svc.hook = g.hook
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Update(ctx, 1) }()
	waitFor(t, g.entered)

	s := c.State()
	assert.True(t, s.IsPending(OpUpdate, 1))
	assert.False(t, s.IsPending(OpUpdate, 2))

	// Same row is busy; a different row proceeds.
	assert.ErrorIs(t, c.Update(ctx, 1), ErrBusy)
	require.NoError(t, c.Update(ctx, 2))

	close(g.release)
	require.NoError(t, <-done)
	assert.False(t, c.State().IsPending(OpUpdate, 1))

	p1, _ := c.Project(1)
	p2, _ := c.Project(2)
	assert.Equal(t, 101, p1.Stars)
	assert.Equal(t, 201, p2.Stars)
}

func TestController_AddBusyWhilePending(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := loadedController(t, svc)
	g := newGate("add", 1)
	svc.hook = g.hook
	ctx := context.Background()

	require.NoError(t, c.OpenAdd())
	done := make(chan error, 1)
	go func() { done <- c.ConfirmAdd(ctx) }()
	waitFor(t, g.entered)

	assert.True(t, c.State().IsPending(OpAdd, 0))
	assert.ErrorIs(t, c.ConfirmAdd(ctx), ErrBusy)

	close(g.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, svc.count("add"))
}

func TestController_LateAddResponseAfterCancel(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := loadedController(t, svc)
	g := newGate("add", 1)
	svc.hook = g.hook
	ctx := context.Background()

	require.NoError(t, c.OpenAdd())
	require.NoError(t, c.SetInput("vercel/next.js"))
	done := make(chan error, 1)
	go func() { done <- c.ConfirmAdd(ctx) }()
	waitFor(t, g.entered)

	// User gives up and opens the delete dialog for another row.
	c.CancelDialog()
	p, _ := c.Project(2)
	require.NoError(t, c.OpenDelete(p))

	close(g.release)
	require.NoError(t, <-done)

	s := c.State()
	assert.Equal(t, DialogDelete, s.Dialog.Kind, "late success must not close a newer dialog")
	require.NotNil(t, s.Dialog.Target)
	assert.Equal(t, 2, s.Dialog.Target.ID)
	// The list still reflects the server.
	assert.Len(t, s.Projects, 3)
}

func TestController_LateFailureAfterCancel(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	svc.addErr = errors.New("Invalid repository path")
	c := loadedController(t, svc)
	g := newGate("add", 1)
	svc.hook = g.hook
	ctx := context.Background()

	require.NoError(t, c.OpenAdd())
	done := make(chan error, 1)
	go func() { done <- c.ConfirmAdd(ctx) }()
	waitFor(t, g.entered)

	c.CancelDialog()
	close(g.release)
	require.Error(t, <-done)

	s := c.State()
	assert.Equal(t, DialogClosed, s.Dialog.Kind)
	assert.NoError(t, s.Dialog.Err)
}

func TestController_SupersededFetchDropped(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := New(svc)
	g := newGate("list", 1)
	svc.hook = func(op string, n int) {
		g.hook(op, n)
		if op == "list" && n == 1 {
			// The slow fetch answers with the server's older state.
			svc.mu.Lock()
			svc.projects = sampleProjects()
			svc.mu.Unlock()
		}
	}
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Load(ctx) }()
	waitFor(t, g.entered)

	svc.mu.Lock()
	svc.projects = svc.projects[:1]
	svc.mu.Unlock()
	require.NoError(t, c.Refresh(ctx))
	assert.Len(t, c.State().Projects, 1)

	close(g.release)
	require.NoError(t, <-done)
	assert.Len(t, c.State().Projects, 1, "older fetch must not overwrite newer snapshot")
	assert.False(t, c.State().Refreshing)
}

func TestController_SupersededFetchErrorIgnored(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := New(svc)
	g := newGate("list", 1)
	svc.hook = func(op string, n int) {
		g.hook(op, n)
		if op == "list" && n == 1 {
			svc.mu.Lock()
			svc.listErr = errors.New("timeout")
			svc.mu.Unlock()
		}
	}
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Load(ctx) }()
	waitFor(t, g.entered)

	require.NoError(t, c.Refresh(ctx))
	close(g.release)
	require.Error(t, <-done)

	s := c.State()
	assert.True(t, s.Loaded)
	assert.NoError(t, s.LoadErr)
	assert.Len(t, s.Projects, 2)
}

func TestController_RefetchFailureAfterMutation(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := loadedController(t, svc)
	svc.hook = func(op string, n int) {
		if op == "list" && n == 2 {
			svc.mu.Lock()
			svc.listErr = errors.New("could not reach the server")
			svc.mu.Unlock()
		}
	}

	require.NoError(t, c.Update(context.Background(), 1))

	s := c.State()
	assert.True(t, s.Stale)
	assert.Error(t, s.LoadErr)
	// The previous snapshot is kept.
	assert.Equal(t, sampleProjects(), s.Projects)
}

func TestController_ResetDropsInFlightFetch(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := New(svc)
	g := newGate("list", 1)
	svc.hook = g.hook

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background()) }()
	waitFor(t, g.entered)

	require.NoError(t, c.OpenAdd())
	c.Reset()
	close(g.release)
	require.NoError(t, <-done)

	s := c.State()
	assert.False(t, s.Loaded)
	assert.Empty(t, s.Projects)
	assert.Equal(t, DialogClosed, s.Dialog.Kind)
}

func TestController_OnChangeFires(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := New(svc)
	var n atomic.Int32
	c.OnChange(func() { n.Add(1) })

	require.NoError(t, c.Load(context.Background()))
	before := n.Load()
	assert.GreaterOrEqual(t, before, int32(2), "start and finish of fetch")

	require.NoError(t, c.OpenAdd())
	assert.Greater(t, n.Load(), before)

	// Rejected transitions do not notify.
	after := n.Load()
	assert.ErrorIs(t, c.OpenAdd(), ErrInvalidTransition)
	assert.Equal(t, after, n.Load())
}

func TestController_OnChangeMayReadState(t *testing.T) {
	svc := newFakeService(sampleProjects()...)
	c := New(svc)
	var seen atomic.Int32
	c.OnChange(func() {
		// Must not deadlock: listeners run outside the lock.
		seen.Store(int32(len(c.State().Projects)))
	})
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, int32(2), seen.Load())
}

func TestController_WithDefaultInput(t *testing.T) {
	c := New(newFakeService(), WithDefaultInput("golang/go"))
	assert.Equal(t, "golang/go", c.State().Dialog.Input)
}

func TestController_StateIsACopy(t *testing.T) {
	c := loadedController(t, newFakeService(sampleProjects()...))
	s := c.State()
	s.Projects[0].Name = "mutated"
	p, _ := c.Project(1)
	assert.Equal(t, "react", p.Name)
}
