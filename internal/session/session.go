// Package session holds the client's credential: the bearer token presented
// on every API request and the authenticated marker persisted next to it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joescharf/ghcrm/internal/store"
)

// Durable storage keys.
const (
	TokenKey         = "session.token"
	AuthenticatedKey = "session.authenticated"
)

// ErrEmptyToken is returned by SetToken for a blank token.
var ErrEmptyToken = errors.New("session token is empty")

// Store is the credential store. The token is loaded once from durable
// storage and then served from memory, so reads never block on I/O.
// The authenticated marker is persisted iff a token is persisted.
type Store struct {
	mu    sync.RWMutex
	kv    store.Store
	token string
	log   *slog.Logger
}

// New loads the persisted credential from kv. An inconsistent pair (marker
// without token or token without marker) is repaired before returning.
func New(ctx context.Context, kv store.Store, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{kv: kv, log: log}

	token, hasToken, err := kv.Get(ctx, TokenKey)
	if err != nil {
		return nil, fmt.Errorf("load session token: %w", err)
	}
	_, hasMarker, err := kv.Get(ctx, AuthenticatedKey)
	if err != nil {
		return nil, fmt.Errorf("load session marker: %w", err)
	}

	switch {
	case hasToken && token != "":
		s.token = token
		if !hasMarker {
			if err := kv.Set(ctx, AuthenticatedKey, "true"); err != nil {
				return nil, fmt.Errorf("repair session marker: %w", err)
			}
		}
	case hasToken || hasMarker:
		log.Warn("discarding inconsistent session state", "token", hasToken, "marker", hasMarker)
		if err := s.deleteKeys(ctx); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// SetToken persists token and marks the session authenticated. The new token
// is visible to Token only after the durable write succeeded.
func (s *Store) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Set(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("store session token: %w", err)
	}
	if err := s.kv.Set(ctx, AuthenticatedKey, "true"); err != nil {
		_ = s.kv.Delete(ctx, TokenKey)
		return fmt.Errorf("store session marker: %w", err)
	}
	s.token = token
	return nil
}

// Token returns the current token and whether one is present.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// IsAuthenticated reports whether a token is present.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.Token()
	return ok
}

// Clear forgets the token. The in-memory copy goes first so no request sent
// after Clear returns carries the old credential, even if the durable delete
// fails. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	return s.deleteKeys(ctx)
}

func (s *Store) deleteKeys(ctx context.Context) error {
	if err := s.kv.Delete(ctx, TokenKey); err != nil {
		return fmt.Errorf("clear session token: %w", err)
	}
	if err := s.kv.Delete(ctx, AuthenticatedKey); err != nil {
		return fmt.Errorf("clear session marker: %w", err)
	}
	return nil
}
