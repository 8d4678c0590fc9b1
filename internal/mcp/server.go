package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/ghcrm/internal/models"
	"github.com/joescharf/ghcrm/internal/service"
)

// Service is the facade the tools call into.
type Service interface {
	Profile(ctx context.Context) (*models.Profile, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
	AddProject(ctx context.Context, path string) (*models.Project, error)
	UpdateProject(ctx context.Context, id int) (*models.Project, error)
	DeleteProject(ctx context.Context, id int) error
}

// Server exposes the tracked-project API as MCP tools.
type Server struct {
	svc     Service
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(svc Service, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{svc: svc, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("ghcrm", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listProjectsTool())
	srv.AddTool(s.addProjectTool())
	srv.AddTool(s.refreshProjectTool())
	srv.AddTool(s.deleteProjectTool())
	srv.AddTool(s.profileTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// projectOut is the JSON shape returned by project tools.
type projectOut struct {
	ID        int    `json:"id"`
	Repo      string `json:"repo"`
	URL       string `json:"url"`
	Stars     int    `json:"stars"`
	Forks     int    `json:"forks"`
	Issues    int    `json:"issues"`
	CreatedAt string `json:"created_at,omitempty"`
	AddedAt   string `json:"added_at,omitempty"`
}

func toProjectOut(p models.Project) projectOut {
	out := projectOut{
		ID:     p.ID,
		Repo:   p.FullName(),
		URL:    p.URL,
		Stars:  p.Stars,
		Forks:  p.Forks,
		Issues: p.Issues,
	}
	if t := p.CreatedAt(); !t.IsZero() {
		out.CreatedAt = t.UTC().Format("2006-01-02T15:04:05Z")
	}
	if !p.AddedAt.IsZero() {
		out.AddedAt = p.AddedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return out
}

// toolError turns a facade failure into a tool result. An expired session is
// reported with the command that fixes it.
func toolError(action string, err error) *mcp.CallToolResult {
	if errors.Is(err, service.ErrUnauthorized) {
		return mcp.NewToolResultError(fmt.Sprintf("failed to %s: not logged in (run 'ghcrm login')", action))
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %s", action, service.Message(err)))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ghcrm_list_projects
func (s *Server) listProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ghcrm_list_projects",
		mcp.WithDescription("List all tracked GitHub repositories. Returns a JSON array with id, repo (owner/name), url, stars, forks, issues, created_at and added_at, in server order."),
	)
	return tool, s.handleListProjects
}

func (s *Server) handleListProjects(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.svc.ListProjects(ctx)
	if err != nil {
		return toolError("list projects", err), nil
	}

	out := make([]projectOut, len(projects))
	for i, p := range projects {
		out[i] = toProjectOut(p)
	}
	return jsonResult(out)
}

// ghcrm_add_project
func (s *Server) addProjectTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ghcrm_add_project",
		mcp.WithDescription("Start tracking a GitHub repository. Accepts owner/repo or a github.com URL."),
		mcp.WithString("repo", mcp.Required(), mcp.Description("Repository as owner/repo or GitHub URL")),
	)
	return tool, s.handleAddProject
}

func (s *Server) handleAddProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo, err := request.RequireString("repo")
	if err != nil || repo == "" {
		return mcp.NewToolResultError("missing required parameter: repo"), nil
	}

	p, err := s.svc.AddProject(ctx, models.NormalizeRepoPath(repo))
	if err != nil {
		return toolError("add project", err), nil
	}
	return jsonResult(toProjectOut(*p))
}

// ghcrm_refresh_project
func (s *Server) refreshProjectTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ghcrm_refresh_project",
		mcp.WithDescription("Ask the server to refresh a tracked repository's stars, forks and issue counts."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Project ID")),
	)
	return tool, s.handleRefreshProject
}

func (s *Server) handleRefreshProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	p, err := s.svc.UpdateProject(ctx, id)
	if err != nil {
		return toolError("refresh project", err), nil
	}
	return jsonResult(toProjectOut(*p))
}

// ghcrm_delete_project
func (s *Server) deleteProjectTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ghcrm_delete_project",
		mcp.WithDescription("Stop tracking a repository."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Project ID")),
	)
	return tool, s.handleDeleteProject
}

func (s *Server) handleDeleteProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	if err := s.svc.DeleteProject(ctx, id); err != nil {
		return toolError("delete project", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted project %d", id)), nil
}

// ghcrm_profile
func (s *Server) profileTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ghcrm_profile",
		mcp.WithDescription("Show the signed-in user."),
	)
	return tool, s.handleProfile
}

func (s *Server) handleProfile(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.svc.Profile(ctx)
	if err != nil {
		return toolError("get profile", err), nil
	}
	return jsonResult(p)
}
