// Package apitest runs an in-process fake of the remote API for tests.
package apitest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joescharf/ghcrm/internal/models"
)

var repoPathRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// RecordedRequest is one request seen by the fake.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
}

type user struct {
	id       int
	email    string
	password string
	name     string
}

// Server is a stateful fake of the projects API.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	users    map[string]*user // by email
	tokens   map[string]*user
	projects map[int]models.Project
	nextID   int
	failures map[string]int // "METHOD /pattern" -> status
	requests []RecordedRequest
}

// New starts a fake API server. Close it with t.Cleanup(srv.Close).
func New() *Server {
	s := &Server{
		users:    make(map[string]*user),
		tokens:   make(map[string]*user),
		projects: make(map[int]models.Project),
		nextID:   1,
		failures: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.login)
	mux.HandleFunc("POST /auth/signup", s.signup)
	mux.HandleFunc("GET /auth/profile", s.authed(s.profile))
	mux.HandleFunc("GET /projects", s.authed(s.listProjects))
	mux.HandleFunc("POST /projects", s.authed(s.createProject))
	mux.HandleFunc("PUT /projects/{id}", s.authed(s.updateProject))
	mux.HandleFunc("DELETE /projects/{id}", s.authed(s.deleteProject))

	s.Server = httptest.NewServer(s.record(mux))
	return s
}

// AddUser registers a user directly and returns nothing; log in through the API.
func (s *Server) AddUser(email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = &user{id: len(s.users) + 1, email: email, password: password}
}

// IssueToken registers email (if needed) and returns a valid token for it.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		u = &user{id: len(s.users) + 1, email: email}
		s.users[email] = u
	}
	return s.newTokenLocked(u)
}

// ExpireTokens invalidates every issued token.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]*user)
}

// SeedProject stores a project as if it had been added earlier.
func (s *Server) SeedProject(path string) models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, name, _ := models.SplitRepoPath(path)
	return s.insertLocked(owner, name)
}

// RemoveProject deletes a project behind the client's back.
func (s *Server) RemoveProject(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, id)
}

// Projects returns the server-side list in id order.
func (s *Server) Projects() []models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Fail makes every request matching route ("GET /projects",
// "DELETE /projects/{id}", ...) answer with status until Recover.
func (s *Server) Fail(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = status
}

// Recover removes all injected failures.
func (s *Server) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]int)
}

// Requests returns a copy of the request log.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// CountRequests returns how many logged requests match method and path.
func (s *Server) CountRequests(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Plumbing
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"statusCode": status,
		"message":    msg,
		"error":      http.StatusText(status),
	})
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
		})
		status, failing := s.failures[routeKey(r)]
		s.mu.Unlock()

		if failing {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func routeKey(r *http.Request) string {
	p := r.URL.Path
	if strings.HasPrefix(p, "/projects/") {
		p = "/projects/{id}"
	}
	return r.Method + " " + p
}

func (s *Server) authed(next func(http.ResponseWriter, *http.Request, *user)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		u := s.tokens[token]
		s.mu.Unlock()
		if !ok || u == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r, u)
	}
}

func (s *Server) newTokenLocked(u *user) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	token := hex.EncodeToString(buf)
	s.tokens[token] = u
	return token
}

func (s *Server) insertLocked(owner, name string) models.Project {
	id := s.nextID
	s.nextID++
	p := models.Project{
		ID:                 id,
		Owner:              owner,
		Name:               name,
		URL:                "https://github.com/" + owner + "/" + name,
		Stars:              100 * id,
		Forks:              10 * id,
		Issues:             id,
		CreatedAtTimestamp: time.Date(2013, 5, 24, 0, 0, 0, 0, time.UTC).UnixMilli(),
		AddedAt:            time.Now().UTC().Truncate(time.Second),
	}
	s.projects[id] = p
	return p
}

func (s *Server) sortedLocked() []models.Project {
	out := make([]models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[body.Email]
	if !ok || u.password != body.Password {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusCreated, models.AuthResponse{AccessToken: s.newTokenLocked(u)})
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var body models.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !strings.Contains(body.Email, "@") || body.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"statusCode": http.StatusBadRequest,
			"message":    []string{"email must be an email", "password should not be empty"},
			"error":      "Bad Request",
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[body.Email]; exists {
		writeError(w, http.StatusConflict, "User already exists")
		return
	}
	u := &user{id: len(s.users) + 1, email: body.Email, password: body.Password, name: body.Name}
	s.users[body.Email] = u
	writeJSON(w, http.StatusCreated, models.AuthResponse{AccessToken: s.newTokenLocked(u)})
}

func (s *Server) profile(w http.ResponseWriter, _ *http.Request, u *user) {
	writeJSON(w, http.StatusOK, models.Profile{ID: u.id, Email: u.email, Name: u.name})
}

func (s *Server) listProjects(w http.ResponseWriter, _ *http.Request, _ *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.sortedLocked())
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request, _ *user) {
	var body models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !repoPathRe.MatchString(body.Path) {
		writeError(w, http.StatusBadRequest, "path must be in the format owner/repo")
		return
	}
	owner, name, _ := models.SplitRepoPath(body.Path)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if strings.EqualFold(p.Owner, owner) && strings.EqualFold(p.Name, name) {
			writeError(w, http.StatusConflict, "Project already exists")
			return
		}
	}
	writeJSON(w, http.StatusCreated, s.insertLocked(owner, name))
}

func (s *Server) projectID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed (numeric string is expected)")
		return 0, false
	}
	return id, true
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, exists := s.projects[id]
	if !exists {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	p.Stars++
	p.Forks++
	s.projects[id] = p
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[id]; !exists {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	delete(s.projects, id)
	w.WriteHeader(http.StatusNoContent)
}
