// Package service is the typed facade over the remote API. It is the only
// layer that knows endpoint paths and payload shapes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joescharf/ghcrm/internal/apiclient"
	"github.com/joescharf/ghcrm/internal/models"
)

// Doer sends API requests. *apiclient.Client implements it.
type Doer interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
}

// Session is the credential store as seen by the facade.
type Session interface {
	SetToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	IsAuthenticated() bool
}

// Service exposes the API's domain operations.
type Service struct {
	api     Doer
	session Session
	log     *slog.Logger
}

// New creates a Service. api must be the process-wide request client so
// that every call passes through its credential handling.
func New(api Doer, session Session, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{api: api, session: session, log: log}
}

// IsAuthenticated reports whether a session token is held.
func (s *Service) IsAuthenticated() bool {
	return s.session.IsAuthenticated()
}

// --- Auth ---

// Login exchanges email and password for a token and stores it.
func (s *Service) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	const op = "login"
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, &Error{Op: op, Kind: ErrValidation, Message: "Email and password are required"}
	}

	var resp models.AuthResponse
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   models.Credentials{Email: strings.TrimSpace(email), Password: password},
		Public: true,
	}, &resp)
	if err != nil {
		return nil, classify(op, err, true)
	}
	if err := s.storeToken(ctx, op, resp.AccessToken); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "signed in", "email", email)
	return &resp, nil
}

// Signup registers a new account and stores the returned token.
func (s *Service) Signup(ctx context.Context, req models.SignupRequest) (*models.AuthResponse, error) {
	const op = "signup"
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return nil, &Error{Op: op, Kind: ErrValidation, Message: "Email and password are required"}
	}

	var resp models.AuthResponse
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/signup",
		Body:   req,
		Public: true,
	}, &resp)
	if err != nil {
		return nil, classify(op, err, true)
	}
	if err := s.storeToken(ctx, op, resp.AccessToken); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "account created", "email", req.Email)
	return &resp, nil
}

func (s *Service) storeToken(ctx context.Context, op, token string) error {
	if token == "" {
		return &Error{Op: op, Kind: ErrUnexpected, Message: "server returned no access token"}
	}
	if err := s.session.SetToken(ctx, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Logout forgets the session. Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.session.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Profile returns the signed-in user.
func (s *Service) Profile(ctx context.Context) (*models.Profile, error) {
	var p models.Profile
	if err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/auth/profile"}, &p); err != nil {
		return nil, classify("get profile", err, false)
	}
	return &p, nil
}

// --- Projects ---

// ListProjects returns every tracked project in server order. An empty list
// is returned as a non-nil empty slice.
func (s *Service) ListProjects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/projects"}, &projects); err != nil {
		return nil, classify("list projects", err, false)
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, nil
}

// AddProject starts tracking the repository at path ("owner/repo"). The
// path is forwarded verbatim; the server validates it.
func (s *Service) AddProject(ctx context.Context, path string) (*models.Project, error) {
	var p models.Project
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/projects",
		Body:   models.CreateProjectRequest{Path: path},
	}, &p)
	if err != nil {
		return nil, classify("add project", err, false)
	}
	return &p, nil
}

// UpdateProject asks the server to refresh the project's metrics.
func (s *Service) UpdateProject(ctx context.Context, id int) (*models.Project, error) {
	var p models.Project
	err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPut, Path: fmt.Sprintf("/projects/%d", id)}, &p)
	if err != nil {
		return nil, classify("update project", err, false)
	}
	return &p, nil
}

// DeleteProject stops tracking the project.
func (s *Service) DeleteProject(ctx context.Context, id int) error {
	err := s.api.Do(ctx, apiclient.Request{Method: http.MethodDelete, Path: fmt.Sprintf("/projects/%d", id)}, nil)
	if err != nil {
		return classify("delete project", err, false)
	}
	return nil
}
