package app

import (
	"context"
	"log"

	mcpserver "pagebuilder/internal/mcp"
)

// ServeMCP runs the MCP server on stdin/stdout until ctx ends. Destructive
// tools wait on the mcp_approvals table, so `pagebuilder approvals` in
// another terminal resolves them.
func (a *App) ServeMCP(ctx context.Context) error {
	srv := mcpserver.New(mcpserver.Deps{
		Emitter:    a.emitter,
		Sessions:   a.sessions,
		Templates:  a.templates,
		ApprovalDB: a.db.Conn(),
	})
	log.Println("[MCP] Starting standalone stdio server...")
	return srv.ServeStdio(ctx)
}
