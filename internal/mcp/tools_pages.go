package mcpserver

import (
	"context"
	"fmt"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/rules"
	"pagebuilder/internal/viewport"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPageTools() {
	// ── list_pages ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List all pages"),
	), s.handleListPages)

	// ── create_page ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_page",
		mcp.WithDescription("Create a new empty page and make it active"),
		mcp.WithString("title", mcp.Description("Page title"), mcp.Required()),
		mcp.WithString("slug", mcp.Description("URL slug (optional, must be unique)")),
	), s.handleCreatePage)

	// ── set_active_page ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_active_page",
		mcp.WithDescription("Set the active page for subsequent tool calls. Tools that accept pageId will default to this."),
		mcp.WithString("pageId", mcp.Description("ID of the page to make active"), mcp.Required()),
	), s.handleSetActivePage)

	// ── get_page_tree ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_page_tree",
		mcp.WithDescription("Get the component tree as shown on a device: hidden nodes removed, children ordered by the device's stacking rules. Pass raw=true for the stored tree."),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("device", mcp.Description("desktop, tablet or mobile (default desktop)")),
		mcp.WithBoolean("raw", mcp.Description("Return the undecorated tree")),
	), s.handleGetPageTree)

	// ── validate_page ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("validate_page",
		mcp.WithDescription("Check the page for structural and template issues"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleValidatePage)

	// ── save_page ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("save_page",
		mcp.WithDescription("Save and publish the page's current tree"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleSavePage)

	// ── set_grid_cols ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_grid_cols",
		mcp.WithDescription("Set the snapping grid's column count"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithNumber("gridCols", mcp.Description("Columns, at least 1"), mcp.Required()),
	), s.handleSetGridCols)

	// ── checkpoints ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_checkpoint",
		mcp.WithDescription("Store a labelled checkpoint of the page's editing state"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("label", mcp.Description("Checkpoint label")),
	), s.handleCreateCheckpoint)

	s.mcp.AddTool(mcp.NewTool("list_checkpoints",
		mcp.WithDescription("List the page's checkpoints, newest first"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleListCheckpoints)

	s.mcp.AddTool(mcp.NewTool("restore_checkpoint",
		mcp.WithDescription("Restore a checkpoint's tree as one undoable step"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("checkpointId", mcp.Description("Checkpoint ID"), mcp.Required()),
	), s.handleRestoreCheckpoint)
}

func (s *Server) handleListPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pages, err := s.sessions.Config().Pages.ListPages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	return jsonResult(pages)
}

func (s *Server) handleCreatePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	page, err := s.sessions.CreatePage(title, req.GetString("slug", ""), nil)
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	s.setActive(page.ID)
	return jsonResult(page)
}

func (s *Server) handleSetActivePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID := req.GetString("pageId", "")
	if pageID == "" {
		return nil, fmt.Errorf("pageId is required")
	}
	sess, err := s.sessions.Open(pageID)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.setActive(pageID)
	return textResult(fmt.Sprintf("Active page set to %s (seeded from %s state)", pageID, sess.Source())), nil
}

type treeView struct {
	PageID     string                        `json:"pageId"`
	Device     string                        `json:"device,omitempty"`
	GridCols   int                           `json:"gridCols"`
	Revision   string                        `json:"revision"`
	CanUndo    bool                          `json:"canUndo"`
	CanRedo    bool                          `json:"canRedo"`
	Components []*domain.PageComponent       `json:"components"`
	Editor     map[string]domain.EditorFlags `json:"editor,omitempty"`
}

func (s *Server) handleGetPageTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	st := sess.State()
	rev, _ := domain.Revision(st.Present)
	out := treeView{
		PageID:   sess.PageID(),
		GridCols: st.GridCols,
		Revision: rev,
		CanUndo:  st.CanUndo(),
		CanRedo:  st.CanRedo(),
		Editor:   st.Editor,
	}
	if raw, _ := args["raw"].(bool); raw {
		out.Components = st.Present
		return jsonResult(out)
	}
	device := req.GetString("device", domain.DeviceDesktop)
	if !knownDevice(device, st.Breakpoints) {
		return nil, fmt.Errorf("unknown device %q", device)
	}
	out.Device = device
	out.Components = viewport.Decorate(st.Present, st.Editor, device)
	return jsonResult(out)
}

func knownDevice(device string, bps []domain.Breakpoint) bool {
	for _, d := range domain.BuiltinDevices {
		if d == device {
			return true
		}
	}
	for _, bp := range bps {
		if bp.ID == device {
			return true
		}
	}
	return false
}

type validationReport struct {
	OK        bool          `json:"ok"`
	Structure string        `json:"structure,omitempty"`
	Issues    []rules.Issue `json:"issues,omitempty"`
}

func (s *Server) handleValidatePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req.GetArguments())
	if err != nil {
		return nil, err
	}
	placement := s.sessions.Config().Placement
	st := sess.State()
	report := validationReport{OK: true}
	if err := history.Validate(st, placement); err != nil {
		report.OK = false
		report.Structure = err.Error()
	}
	if res := rules.ValidateTemplate(st.Present, placement); !res.OK {
		report.OK = false
		report.Issues = res.Issues
	}
	return jsonResult(report)
}

func (s *Server) handleSavePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req.GetArguments())
	if err != nil {
		return nil, err
	}
	rev, err := sess.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("save page: %w", err)
	}
	return textResult(fmt.Sprintf("Page %s saved at revision %s", sess.PageID(), rev)), nil
}

func (s *Server) handleSetGridCols(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	if err := sess.Dispatch(history.SetGridCols{GridCols: getInt(args, "gridCols", 0)}); err != nil {
		return nil, err
	}
	return jsonResult(statusOf(sess))
}

func (s *Server) handleCreateCheckpoint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req.GetArguments())
	if err != nil {
		return nil, err
	}
	snap, err := sess.Checkpoint(req.GetString("label", ""))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	return jsonResult(snap)
}

func (s *Server) handleListCheckpoints(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := s.resolvePageID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	snaps := s.sessions.Config().Snapshots
	if snaps == nil {
		return nil, fmt.Errorf("no snapshot store configured")
	}
	list, err := snaps.ListSnapshots(pageID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return jsonResult(list)
}

func (s *Server) handleRestoreCheckpoint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "checkpointId")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	if err := sess.Restore(id); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return jsonResult(statusOf(sess))
}
