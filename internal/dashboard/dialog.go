package dashboard

import (
	"errors"

	"github.com/joescharf/ghcrm/internal/models"
)

// DefaultRepoPath is the initial contents of the add dialog's input.
const DefaultRepoPath = "facebook/react"

// ErrInvalidTransition is returned for a dialog action not allowed in the
// current state, e.g. opening the delete dialog while the add dialog is up.
var ErrInvalidTransition = errors.New("dialog action not allowed in current state")

// DialogKind identifies which dialog is open.
type DialogKind int

const (
	DialogClosed DialogKind = iota
	DialogAdd
	DialogDelete
)

func (k DialogKind) String() string {
	switch k {
	case DialogAdd:
		return "add"
	case DialogDelete:
		return "delete"
	default:
		return "closed"
	}
}

// Dialog is a read-only view of the dialog state.
type Dialog struct {
	Kind DialogKind
	// Target is set only when Kind is DialogDelete. It is a copy taken when
	// the dialog opened; later refetches do not change it.
	Target *models.Project
	// Input is the pending "owner/repo" text of the add dialog. It is kept
	// while the dialog is closed so reopening shows the last value.
	Input string
	// Err is the failure of the last confirm attempt in this dialog.
	Err error
}

// Open reports whether any dialog is open.
func (d Dialog) Open() bool { return d.Kind != DialogClosed }

// DialogMachine multiplexes the add and delete-confirm dialogs. Exactly one
// state is active: closed, add, or delete(target).
//
// Every transition bumps an epoch. A confirm captures the epoch; its
// completion only touches the dialog if the epoch is unchanged, so a
// response arriving after the user cancelled or reopened is ignored.
//
// DialogMachine is not safe for concurrent use; Controller serializes it.
type DialogMachine struct {
	kind   DialogKind
	target models.Project
	input  string
	err    error
	epoch  uint64
}

// NewDialogMachine returns a closed dialog whose add input holds
// defaultInput (DefaultRepoPath when empty).
func NewDialogMachine(defaultInput string) *DialogMachine {
	if defaultInput == "" {
		defaultInput = DefaultRepoPath
	}
	return &DialogMachine{input: defaultInput}
}

// State returns a snapshot of the dialog.
func (m *DialogMachine) State() Dialog {
	d := Dialog{Kind: m.kind, Input: m.input, Err: m.err}
	if m.kind == DialogDelete {
		t := m.target
		d.Target = &t
	}
	return d
}

// Epoch identifies the current dialog instance.
func (m *DialogMachine) Epoch() uint64 { return m.epoch }

// OpenAdd moves Closed -> AddOpen. The input buffer is retained; an empty
// buffer is reset to the placeholder.
func (m *DialogMachine) OpenAdd() error {
	if m.kind != DialogClosed {
		return ErrInvalidTransition
	}
	if m.input == "" {
		m.input = DefaultRepoPath
	}
	m.transition(DialogAdd, models.Project{})
	return nil
}

// OpenDelete moves Closed -> DeleteOpen(target). target is copied.
func (m *DialogMachine) OpenDelete(target models.Project) error {
	if m.kind != DialogClosed {
		return ErrInvalidTransition
	}
	m.transition(DialogDelete, target)
	return nil
}

// SetInput edits the add dialog's buffer. Only valid while AddOpen.
func (m *DialogMachine) SetInput(s string) error {
	if m.kind != DialogAdd {
		return ErrInvalidTransition
	}
	m.input = s
	return nil
}

// Cancel closes whatever dialog is open. Cancelling with no dialog is a
// no-op.
func (m *DialogMachine) Cancel() {
	if m.kind == DialogClosed {
		return
	}
	m.transition(DialogClosed, models.Project{})
}

// succeed closes the dialog if it is still the instance identified by
// epoch. It reports whether the dialog was closed.
func (m *DialogMachine) succeed(epoch uint64) bool {
	if m.epoch != epoch || m.kind == DialogClosed {
		return false
	}
	m.transition(DialogClosed, models.Project{})
	return true
}

// fail records err on the dialog if it is still the instance identified by
// epoch. The state does not change.
func (m *DialogMachine) fail(epoch uint64, err error) bool {
	if m.epoch != epoch || m.kind == DialogClosed {
		return false
	}
	m.err = err
	return true
}

// clearErr drops the last failure when a new attempt starts.
func (m *DialogMachine) clearErr() { m.err = nil }

func (m *DialogMachine) transition(kind DialogKind, target models.Project) {
	m.kind = kind
	m.target = target
	m.err = nil
	m.epoch++
}
