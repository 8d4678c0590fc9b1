package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/joescharf/ghcrm/internal/apiclient"
)

// Error kinds. Match them with errors.Is.
var (
	ErrNetwork      = apiclient.ErrNetwork
	ErrAuthRejected = errors.New("credentials rejected")
	ErrUnauthorized = errors.New("not signed in or session expired")
	ErrValidation   = errors.New("rejected as invalid")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrUnexpected   = errors.New("unexpected api failure")
)

// Error is the failure returned by every facade operation. Kind says what
// went wrong; Err keeps the transport-level cause so errors.As can still
// reach *apiclient.StatusError or *apiclient.NetworkError.
type Error struct {
	Op      string
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message returns the text suitable for showing to the user.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		return e.Kind.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// classify maps a request client failure to a facade error. credentialOp is
// set for login and signup, where 401 means the submitted credentials were
// wrong rather than that the session expired.
func classify(op string, err error, credentialOp bool) error {
	if err == nil {
		return nil
	}

	var netErr *apiclient.NetworkError
	if errors.As(err, &netErr) {
		return &Error{Op: op, Kind: ErrNetwork, Message: "could not reach the server", Err: err}
	}

	var statusErr *apiclient.StatusError
	if !errors.As(err, &statusErr) {
		return &Error{Op: op, Kind: ErrUnexpected, Message: err.Error(), Err: err}
	}

	e := &Error{Op: op, Status: statusErr.Status, Message: statusErr.Message, Err: err}
	switch statusErr.Status {
	case http.StatusUnauthorized:
		if credentialOp {
			e.Kind = ErrAuthRejected
			if e.Message == "" || e.Message == "Unauthorized" {
				e.Message = "Invalid email or password"
			}
		} else {
			e.Kind = ErrUnauthorized
		}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		e.Kind = ErrValidation
	case http.StatusNotFound:
		e.Kind = ErrNotFound
	case http.StatusConflict:
		e.Kind = ErrConflict
	default:
		e.Kind = ErrUnexpected
	}
	return e
}
