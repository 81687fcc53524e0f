package mcpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"pagebuilder/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for the page builder. It exposes the editing
// protocol as tools so agents can build pages through the same reducer the
// editor uses.
type Server struct {
	mcp      *server.MCPServer
	emitter  EventEmitter
	approval *ApprovalQueue

	sessions  *service.Manager
	templates *service.TemplateLibrary

	mu           sync.Mutex
	activePageID string
}

// Deps holds everything the app layer hands to the MCP server.
type Deps struct {
	Emitter   EventEmitter
	Sessions  *service.Manager
	Templates *service.TemplateLibrary
	// ApprovalDB switches approvals to the mcp_approvals table so another
	// process can resolve them.
	ApprovalDB *sql.DB
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	if deps.Emitter == nil {
		deps.Emitter = service.NopEmitter{}
	}
	approval := NewApprovalQueue(deps.Emitter)
	if deps.ApprovalDB != nil {
		approval.SetDB(deps.ApprovalDB)
	}
	s := &Server{
		emitter:   deps.Emitter,
		approval:  approval,
		sessions:  deps.Sessions,
		templates: deps.Templates,
	}

	s.mcp = server.NewMCPServer(
		"pagebuilder-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerPageTools()
	s.registerComponentTools()
	s.registerHistoryTools()
	s.registerLayoutTools()
	if s.templates != nil {
		s.registerTemplateTools()
	}
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio serves on stdin/stdout until ctx is done or the client leaves.
func (s *Server) ServeStdio(ctx context.Context) error {
	log.Println("[MCP] Starting stdio server...")
	errCh := make(chan error, 1)
	go func() { errCh <- server.ServeStdio(s.mcp) }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("[MCP] Shutting down")
		return nil
	}
}

// Approvals exposes the queue so an in-process host can resolve requests.
func (s *Server) Approvals() *ApprovalQueue { return s.approval }

// ── Helpers ────────────────────────────────────────────────

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func (s *Server) setActive(pageID string) {
	s.mu.Lock()
	s.activePageID = pageID
	s.mu.Unlock()
}

// resolvePageID returns the pageId argument or falls back to the active page.
func (s *Server) resolvePageID(args map[string]any) (string, error) {
	if pid, ok := args["pageId"].(string); ok && pid != "" {
		return pid, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activePageID != "" {
		return s.activePageID, nil
	}
	return "", fmt.Errorf("no pageId provided and no active page set (use set_active_page first)")
}

// session opens the editor session for the tool's page.
func (s *Server) session(args map[string]any) (*service.EditorSession, error) {
	pageID, err := s.resolvePageID(args)
	if err != nil {
		return nil, err
	}
	return s.sessions.Open(pageID)
}
