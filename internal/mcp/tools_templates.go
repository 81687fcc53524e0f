package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerTemplateTools() {
	s.mcp.AddTool(mcp.NewTool("list_templates",
		mcp.WithDescription("List the reusable component templates in the library"),
	), s.handleListTemplates)

	s.mcp.AddTool(mcp.NewTool("apply_template",
		mcp.WithDescription("Put a template on the page. Without parentId it replaces the whole tree; with parentId it inserts the template's components there. Either way it is one undoable step."),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("templateId", mcp.Description("Template ID"), mcp.Required()),
		mcp.WithString("parentId", mcp.Description("Container to insert into (use \"\" for the page root)")),
		mcp.WithNumber("index", mcp.Description("Insert position (appends when omitted)")),
	), s.handleApplyTemplate)
}

type templateSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Components  int    `json:"components"`
}

func (s *Server) handleListTemplates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list := s.templates.List()
	out := make([]templateSummary, len(list))
	for i, t := range list {
		out[i] = templateSummary{ID: t.ID, Name: t.Name, Description: t.Description, Components: len(t.Components)}
	}
	return jsonResult(out)
}

func (s *Server) handleApplyTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "templateId")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}

	var parent *string
	index := 0
	if pid, ok := args["parentId"].(string); ok {
		parent = &pid
		if index, err = insertIndex(sess.Present(), pid, args); err != nil {
			return nil, err
		}
	}
	if err := s.templates.Apply(sess, id, parent, index); err != nil {
		return nil, fmt.Errorf("apply template: %w", err)
	}
	return jsonResult(statusOf(sess))
}
