// Package dashboard owns the project list shown to the user, the mutations
// issued against it, and the add/delete dialogs that drive those mutations.
//
// Operations block until the API answers; renderers call them from their
// own goroutines and watch State (or an OnChange hook) for progress.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/joescharf/ghcrm/internal/models"
)

// ErrBusy is returned when the same operation on the same project is
// already in flight.
var ErrBusy = errors.New("operation already in progress")

// Service is the slice of the API facade the controller uses.
type Service interface {
	ListProjects(ctx context.Context) ([]models.Project, error)
	AddProject(ctx context.Context, path string) (*models.Project, error)
	UpdateProject(ctx context.Context, id int) (*models.Project, error)
	DeleteProject(ctx context.Context, id int) error
}

// Op names a mutating operation.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// PendingKey identifies one in-flight mutation. Add uses ID 0.
type PendingKey struct {
	Op Op
	ID int
}

// State is a snapshot of everything a renderer needs.
type State struct {
	// Loading is true while the first fetch is in flight.
	Loading bool
	// Refreshing is true while any fetch is in flight.
	Refreshing bool
	// Loaded is true once a fetch has succeeded.
	Loaded bool
	// Stale is true after a mutation until a newer fetch lands.
	Stale    bool
	LoadErr  error
	Projects []models.Project
	Dialog   Dialog
	Pending  map[PendingKey]bool
	// Failures holds the last error per row operation, cleared on retry.
	Failures map[PendingKey]error
}

// IsPending reports whether op on id is in flight.
func (s State) IsPending(op Op, id int) bool {
	return s.Pending[PendingKey{Op: op, ID: id}]
}

// Controller holds the list snapshot and the dialog state machine.
// It is safe for concurrent use.
type Controller struct {
	svc Service
	log *slog.Logger

	mu            sync.Mutex
	dialog        *DialogMachine
	projects      []models.Project
	loaded        bool
	stale         bool
	loadErr       error
	inflight      int
	fetchSeq      uint64
	appliedSeq    uint64
	invalidatedAt uint64
	pending       map[PendingKey]struct{}
	failures      map[PendingKey]error
	listeners     []func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDefaultInput sets the initial "owner/repo" text of the add dialog.
func WithDefaultInput(s string) Option {
	return func(c *Controller) {
		c.dialog = NewDialogMachine(s)
	}
}

// New creates a Controller over svc. Call Load to fetch the first snapshot.
func New(svc Service, opts ...Option) *Controller {
	c := &Controller{
		svc:      svc,
		log:      slog.Default(),
		dialog:   NewDialogMachine(""),
		pending:  make(map[PendingKey]struct{}),
		failures: make(map[PendingKey]error),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers fn to run after every state change. fn runs on the
// goroutine that made the change, outside the controller's lock, and must
// not block.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) notify() {
	c.mu.Lock()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Loading:    !c.loaded && c.inflight > 0,
		Refreshing: c.inflight > 0,
		Loaded:     c.loaded,
		Stale:      c.stale,
		LoadErr:    c.loadErr,
		Projects:   slices.Clone(c.projects),
		Dialog:     c.dialog.State(),
		Pending:    make(map[PendingKey]bool, len(c.pending)),
		Failures:   make(map[PendingKey]error, len(c.failures)),
	}
	for k := range c.pending {
		s.Pending[k] = true
	}
	for k, err := range c.failures {
		s.Failures[k] = err
	}
	return s
}

// Project returns the project with id from the current snapshot.
func (c *Controller) Project(id int) (models.Project, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.projects {
		if p.ID == id {
			return p, true
		}
	}
	return models.Project{}, false
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

// Load fetches the project list. While the first fetch is in flight the
// state reports Loading.
func (c *Controller) Load(ctx context.Context) error {
	return c.fetch(ctx)
}

// Refresh invalidates the snapshot and fetches it again.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.invalidateLocked()
	c.mu.Unlock()
	return c.fetch(ctx)
}

// Reset discards the snapshot and closes any dialog. Fetches already in
// flight are ignored when they complete.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.projects = nil
	c.loaded = false
	c.stale = false
	c.loadErr = nil
	c.appliedSeq = c.fetchSeq
	c.invalidatedAt = c.fetchSeq
	c.failures = make(map[PendingKey]error)
	c.dialog.Cancel()
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) invalidateLocked() {
	c.stale = true
	c.invalidatedAt = c.fetchSeq
}

// fetch replaces the snapshot wholesale. Results from a fetch older than the
// one already applied are dropped.
func (c *Controller) fetch(ctx context.Context) error {
	c.mu.Lock()
	c.fetchSeq++
	seq := c.fetchSeq
	c.inflight++
	c.mu.Unlock()
	c.notify()

	projects, err := c.svc.ListProjects(ctx)

	c.mu.Lock()
	c.inflight--
	if seq > c.appliedSeq {
		if err != nil {
			c.loadErr = err
		} else {
			c.appliedSeq = seq
			c.projects = slices.Clone(projects)
			c.loaded = true
			c.loadErr = nil
			if seq > c.invalidatedAt {
				c.stale = false
			}
		}
	} else {
		c.log.DebugContext(ctx, "dropping superseded project list", "seq", seq, "applied", c.appliedSeq)
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		c.log.WarnContext(ctx, "list projects failed", "error", err)
	}
	return err
}

// ---------------------------------------------------------------------------
// Dialog transitions
// ---------------------------------------------------------------------------

// OpenAdd opens the add dialog.
func (c *Controller) OpenAdd() error {
	return c.withDialog(func(m *DialogMachine) error { return m.OpenAdd() })
}

// OpenDelete opens the delete-confirm dialog for target. The project is
// captured by value.
func (c *Controller) OpenDelete(target models.Project) error {
	return c.withDialog(func(m *DialogMachine) error { return m.OpenDelete(target) })
}

// SetInput edits the add dialog's "owner/repo" text.
func (c *Controller) SetInput(s string) error {
	return c.withDialog(func(m *DialogMachine) error { return m.SetInput(s) })
}

// CancelDialog closes whatever dialog is open.
func (c *Controller) CancelDialog() {
	_ = c.withDialog(func(m *DialogMachine) error {
		m.Cancel()
		return nil
	})
}

func (c *Controller) withDialog(fn func(m *DialogMachine) error) error {
	c.mu.Lock()
	err := fn(c.dialog)
	c.mu.Unlock()
	if err == nil {
		c.notify()
	}
	return err
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

// beginLocked marks key pending. It fails with ErrBusy if key already is.
func (c *Controller) beginLocked(key PendingKey) error {
	if _, busy := c.pending[key]; busy {
		return ErrBusy
	}
	c.pending[key] = struct{}{}
	delete(c.failures, key)
	return nil
}

// ConfirmAdd submits the add dialog's input. On success the dialog closes
// and the snapshot is refetched; on failure the dialog stays open with the
// error recorded and the input unchanged. With no add dialog open it does
// nothing.
func (c *Controller) ConfirmAdd(ctx context.Context) error {
	key := PendingKey{Op: OpAdd}

	c.mu.Lock()
	if c.dialog.kind != DialogAdd {
		c.mu.Unlock()
		return nil
	}
	if err := c.beginLocked(key); err != nil {
		c.mu.Unlock()
		return err
	}
	epoch := c.dialog.Epoch()
	input := c.dialog.input
	c.dialog.clearErr()
	c.mu.Unlock()
	c.notify()

	_, err := c.svc.AddProject(ctx, input)
	return c.finishDialogMutation(ctx, key, epoch, err)
}

// ConfirmDelete deletes the delete dialog's target. On success the dialog
// closes and the snapshot is refetched; on failure the dialog stays open
// with the error recorded and the snapshot untouched. With no delete dialog
// open it does nothing.
func (c *Controller) ConfirmDelete(ctx context.Context) error {
	c.mu.Lock()
	if c.dialog.kind != DialogDelete {
		c.mu.Unlock()
		return nil
	}
	target := c.dialog.target
	key := PendingKey{Op: OpDelete, ID: target.ID}
	if err := c.beginLocked(key); err != nil {
		c.mu.Unlock()
		return err
	}
	epoch := c.dialog.Epoch()
	c.dialog.clearErr()
	c.mu.Unlock()
	c.notify()

	err := c.svc.DeleteProject(ctx, target.ID)
	return c.finishDialogMutation(ctx, key, epoch, err)
}

func (c *Controller) finishDialogMutation(ctx context.Context, key PendingKey, epoch uint64, err error) error {
	c.mu.Lock()
	delete(c.pending, key)
	if err != nil {
		c.failures[key] = err
		if !c.dialog.fail(epoch, err) {
			c.log.DebugContext(ctx, "dialog moved on before failure arrived", "op", key.Op, "id", key.ID)
		}
		c.mu.Unlock()
		c.notify()
		return err
	}
	c.invalidateLocked()
	if !c.dialog.succeed(epoch) {
		c.log.DebugContext(ctx, "dialog moved on before success arrived", "op", key.Op, "id", key.ID)
	}
	c.mu.Unlock()
	c.notify()

	// The mutation itself succeeded; a failed refetch shows up as LoadErr.
	_ = c.fetch(ctx)
	return nil
}

// Update asks the server to refresh one project's metrics and then refetches
// the whole list. Other rows stay usable while it runs.
func (c *Controller) Update(ctx context.Context, id int) error {
	key := PendingKey{Op: OpUpdate, ID: id}

	c.mu.Lock()
	if err := c.beginLocked(key); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	c.notify()

	_, err := c.svc.UpdateProject(ctx, id)

	c.mu.Lock()
	delete(c.pending, key)
	if err != nil {
		c.failures[key] = err
		c.mu.Unlock()
		c.notify()
		return err
	}
	c.invalidateLocked()
	c.mu.Unlock()
	c.notify()

	_ = c.fetch(ctx)
	return nil
}
