package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("landing_page",
		mcp.WithPromptDescription("Guide through building a landing page from sections"),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("What the page promotes"),
			mcp.RequiredArgument(),
		),
	), s.handleLandingPagePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("responsive_review",
		mcp.WithPromptDescription("Review a page on every device and fix visibility and stacking"),
		mcp.WithArgument("pageId",
			mcp.ArgumentDescription("Page to review"),
			mcp.RequiredArgument(),
		),
	), s.handleResponsiveReviewPrompt)
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent{Type: "text", Text: text},
			},
		},
	}
}

func (s *Server) handleLandingPagePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := req.Params.Arguments["topic"]
	return userPrompt(fmt.Sprintf("Build a landing page for: %s", topic), fmt.Sprintf(`Build a landing page about "%s" on the active page. Follow these steps:

1. Use allowed_children with no parent to see which types may sit at the page root
2. Add a HeaderSection, a HeroBanner and a FooterSection with add_component
3. Between hero and footer, add one or more Section containers and fill them with Text, Image and Button components
4. Set copy and links with update_component
5. Run validate_page and fix every issue it reports
6. Check the mobile layout with get_page_tree device=mobile, then save_page

Never remove components without a reason; removals need operator approval.`, topic)), nil
}

func (s *Server) handleResponsiveReviewPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	pageID := req.Params.Arguments["pageId"]
	return userPrompt(fmt.Sprintf("Review page %s across devices", pageID), fmt.Sprintf(`Review page %s on desktop, tablet and mobile:

1. set_active_page pageId=%s
2. For each device, read get_page_tree with that device
3. Hide decorative components that crowd small screens using update_editor_flags with hidden
4. Where a row reads badly when stacked, set stackMobile to "reverse", or "custom" with orderMobile values
5. Report what you changed; editor flag changes are not undoable, so list the previous values`, pageID, pageID)), nil
}
