package mcpserver

import (
	"context"
	"fmt"
	"sort"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/rules"
	"pagebuilder/internal/tree"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerComponentTools() {
	// ── add_component ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_component",
		mcp.WithDescription("Insert a new component with its registered defaults, or a given list of components as one step. Placement rules are enforced."),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("type", mcp.Description("Component type to create (ignored when components is given)")),
		mcp.WithString("components", mcp.Description("JSON array of components to insert as-is")),
		mcp.WithString("parentId", mcp.Description("Container ID (optional, page root when omitted)")),
		mcp.WithNumber("index", mcp.Description("Position among the parent's children (optional, appends when omitted)")),
	), s.handleAddComponent)

	// ── move_component ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("move_component",
		mcp.WithDescription("Move a component to another position or container"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("id", mcp.Description("Component ID"), mcp.Required()),
		mcp.WithString("parentId", mcp.Description("Destination container ID (page root when omitted)")),
		mcp.WithNumber("index", mcp.Description("Position among the destination's current children (appends when omitted)")),
		mcp.WithString("slotKey", mcp.Description("Tab or accordion slot to assign (optional)")),
	), s.handleMoveComponent)

	// ── update_component ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_component",
		mcp.WithDescription("Patch a component's props. A null value removes the prop."),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("id", mcp.Description("Component ID"), mcp.Required()),
		mcp.WithObject("patch", mcp.Description("Props to set"), mcp.Required()),
	), s.handleUpdateComponent)

	// ── resize_component ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("resize_component",
		mcp.WithDescription("Patch size and position fields (width, heightMobile, leftDesktop, ...)"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("id", mcp.Description("Component ID"), mcp.Required()),
		mcp.WithObject("fields", mcp.Description("Size and position fields"), mcp.Required()),
	), s.handleResizeComponent)

	// ── remove_component (destructive) ─────────────────
	s.mcp.AddTool(mcp.NewTool("remove_component",
		mcp.WithDescription("🛑 DESTRUCTIVE: Remove a component and its subtree. Requires user approval."),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("id", mcp.Description("Component ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRemoveComponent)

	// ── duplicate_component ────────────────────────────
	s.mcp.AddTool(mcp.NewTool("duplicate_component",
		mcp.WithDescription("Insert a deep copy with fresh ids right after the component"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("id", mcp.Description("Component ID"), mcp.Required()),
	), s.handleDuplicateComponent)

	// ── update_editor_flags ────────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_editor_flags",
		mcp.WithDescription("Patch editing metadata for a component: name, locked, zIndex, hidden devices, stack<Device>, order<Device>, global. Not recorded in undo history."),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("id", mcp.Description("Component ID"), mcp.Required()),
		mcp.WithObject("patch", mcp.Description("Flags to merge"), mcp.Required()),
	), s.handleUpdateEditorFlags)

	// ── allowed_children ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("allowed_children",
		mcp.WithDescription("List component types that may be placed inside a container, or at the page root"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, only needed with parentId)")),
		mcp.WithString("parentId", mcp.Description("Container ID on the page")),
		mcp.WithString("parentType", mcp.Description("Container type, instead of parentId")),
	), s.handleAllowedChildren)
}

func (s *Server) registerHistoryTools() {
	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the last tree edit"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleUndo)

	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the last undone tree edit"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleRedo)
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleAddComponent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	parentID := req.GetString("parentId", "")
	index, err := insertIndex(sess.Present(), parentID, args)
	if err != nil {
		return nil, err
	}

	if _, ok := args["components"]; ok {
		var comps []*domain.PageComponent
		if err := decodeArg(args, "components", &comps); err != nil {
			return nil, err
		}
		if len(comps) == 0 {
			return nil, fmt.Errorf("components is empty")
		}
		if err := sess.Dispatch(history.Add{Components: comps, ParentID: parentID, Index: index}); err != nil {
			return nil, err
		}
		return jsonResult(statusOf(sess))
	}

	typ := req.GetString("type", "")
	if typ == "" {
		return nil, fmt.Errorf("type or components is required")
	}
	id, err := sess.Insert(parentID, index, domain.ComponentType(typ))
	if err != nil {
		return nil, err
	}
	st := statusOf(sess)
	st.Created = id
	return jsonResult(st)
}

func (s *Server) handleMoveComponent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	present := sess.Present()
	from, ok := tree.Locate(present, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", history.ErrNodeNotFound, id)
	}
	parentID := req.GetString("parentId", "")
	to, err := insertIndex(present, parentID, args)
	if err != nil {
		return nil, err
	}
	// index counts the destination before the node leaves its old place.
	if from.ParentID == parentID && from.Index < to {
		to--
	}
	mv := history.Move{From: from, To: tree.Location{ParentID: parentID, Index: to}}
	if slot, ok := args["slotKey"].(string); ok {
		mv.SlotKey = &slot
	}
	if err := sess.Dispatch(mv); err != nil {
		return nil, err
	}
	return jsonResult(statusOf(sess))
}

func (s *Server) handleUpdateComponent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	var patch map[string]any
	if err := decodeArg(args, "patch", &patch); err != nil {
		return nil, err
	}
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	if err := sess.Dispatch(history.Update{ID: id, Patch: patch}); err != nil {
		return nil, err
	}
	return jsonResult(statusOf(sess))
}

func (s *Server) handleResizeComponent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := decodeArg(args, "fields", &fields); err != nil {
		return nil, err
	}
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	if err := sess.Dispatch(history.Resize{ID: id, Fields: fields}); err != nil {
		return nil, err
	}
	return jsonResult(statusOf(sess))
}

func (s *Server) handleRemoveComponent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	n := tree.Find(sess.Present(), id)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", history.ErrNodeNotFound, id)
	}

	desc := fmt.Sprintf("Remove %s %s", n.Type, id)
	if k := len(tree.CollectIDs(n.Children)); k > 0 {
		desc += fmt.Sprintf(" and %d nested components", k)
	}
	meta := fmt.Sprintf(`{"pageId":%q,"ids":[%q]}`, sess.PageID(), id)
	if err := s.approval.Request(ctx, "remove_component", desc, meta); err != nil {
		return textResult(fmt.Sprintf("Action not performed: %v", err)), nil
	}

	if err := sess.Dispatch(history.Remove{ID: id}); err != nil {
		return nil, err
	}
	return jsonResult(statusOf(sess))
}

func (s *Server) handleDuplicateComponent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	if err := sess.Dispatch(history.Duplicate{ID: id}); err != nil {
		return nil, err
	}
	st := statusOf(sess)
	if loc, ok := tree.Locate(sess.Present(), id); ok {
		if kids, ok := tree.ChildrenOf(sess.Present(), loc.ParentID); ok && loc.Index+1 < len(kids) {
			st.Created = kids[loc.Index+1].ID
		}
	}
	return jsonResult(st)
}

func (s *Server) handleUpdateEditorFlags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	var patch domain.EditorPatch
	if err := decodeArg(args, "patch", &patch); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, fmt.Errorf("patch changes nothing")
	}
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	if err := sess.Dispatch(history.UpdateEditor{ID: id, Patch: patch}); err != nil {
		return nil, err
	}
	return jsonResult(sess.State().Flags(id))
}

func (s *Server) handleAllowedChildren(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	cfg := s.sessions.Config()
	kind := rules.Root
	if t := req.GetString("parentType", ""); t != "" {
		kind = rules.ParentKind(t)
	} else if pid := req.GetString("parentId", ""); pid != "" {
		sess, err := s.session(args)
		if err != nil {
			return nil, err
		}
		n := tree.Find(sess.Present(), pid)
		if n == nil {
			return nil, fmt.Errorf("%w: %s", history.ErrNodeNotFound, pid)
		}
		if !n.IsContainer() {
			return nil, fmt.Errorf("%w: %s", history.ErrNotContainer, pid)
		}
		kind = rules.KindOf(n)
	}

	allowed := []string{}
	for _, t := range cfg.Registry.Types() {
		if cfg.Placement.CanDropChild(kind, t) {
			allowed = append(allowed, string(t))
		}
	}
	sort.Strings(allowed)
	return jsonResult(map[string]any{"parent": string(kind), "allowed": allowed})
}

func (s *Server) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.step(req, history.Undo{})
}

func (s *Server) handleRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.step(req, history.Redo{})
}

func (s *Server) step(req mcp.CallToolRequest, a history.Action) (*mcp.CallToolResult, error) {
	sess, err := s.session(req.GetArguments())
	if err != nil {
		return nil, err
	}
	if err := sess.Dispatch(a); err != nil {
		return nil, err
	}
	return jsonResult(statusOf(sess))
}
