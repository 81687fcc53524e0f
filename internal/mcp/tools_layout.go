package mcpserver

import (
	"context"

	"pagebuilder/internal/children"
	"pagebuilder/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerLayoutTools() {
	// ── plan_children ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("plan_children",
		mcp.WithDescription("Describe how a container lays out its children on the current device: insertion points, tab panels or grid areas"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("parentId", mcp.Description("Container ID"), mcp.Required()),
	), s.handlePlanChildren)

	// ── insert_component ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("insert_component",
		mcp.WithDescription("Insert a new component at an insertion point reported by plan_children. Visible indexes are translated to the stored order."),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("parentId", mcp.Description("Container ID"), mcp.Required()),
		mcp.WithString("type", mcp.Description("Component type to create"), mcp.Required()),
		mcp.WithNumber("index", mcp.Description("Visible insertion index"), mcp.Required()),
		mcp.WithString("slot", mcp.Description("Tab or accordion panel key (tabbed containers only)")),
	), s.handleInsertComponent)

	// ── move_to_slot ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("move_to_slot",
		mcp.WithDescription("Move a child of a tabs or accordion container into another panel"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("parentId", mcp.Description("Tabbed container ID"), mcp.Required()),
		mcp.WithString("id", mcp.Description("Child component ID"), mcp.Required()),
		mcp.WithString("slot", mcp.Description("Destination panel key"), mcp.Required()),
	), s.handleMoveToSlot)

	// ── assign_grid_area ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("assign_grid_area",
		mcp.WithDescription("Place a child of a grid container into one of its named areas. An empty area clears the assignment."),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("parentId", mcp.Description("Grid container ID"), mcp.Required()),
		mcp.WithString("id", mcp.Description("Child component ID"), mcp.Required()),
		mcp.WithString("area", mcp.Description("Area name")),
	), s.handleAssignGridArea)

	// ── group_components ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("group_components",
		mcp.WithDescription("Wrap sibling components in a new container placed where the first of them sits. One undoable step."),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithArray("ids", mcp.Description("IDs of the sibling components to group"), mcp.Required(), mcp.WithStringItems()),
		mcp.WithString("type", mcp.Description("Container type for the group, e.g. Section or StackFlex"), mcp.Required()),
	), s.handleGroupComponents)

	// ── ungroup_component ──────────────────────────────
	s.mcp.AddTool(mcp.NewTool("ungroup_component",
		mcp.WithDescription("Replace a container with its children, in order, at its position"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("id", mcp.Description("Container ID"), mcp.Required()),
	), s.handleUngroupComponent)
}

type planEntry struct {
	Kind      string               `json:"kind"`
	Index     int                  `json:"index"`
	ChildID   string               `json:"childId,omitempty"`
	ChildType domain.ComponentType `json:"childType,omitempty"`
	Allowed   *bool                `json:"allowed,omitempty"`
	Area      string               `json:"area,omitempty"`
}

type planSection struct {
	Slot    string      `json:"slot,omitempty"`
	Title   string      `json:"title,omitempty"`
	Start   int         `json:"start"`
	End     int         `json:"end"`
	Entries []planEntry `json:"entries"`
}

type planView struct {
	Layout   string        `json:"layout"`
	Sections []planSection `json:"sections"`
	Areas    []string      `json:"areas,omitempty"`
}

func entryKind(k children.EntryKind) string {
	switch k {
	case children.EntryInsert:
		return "insert"
	case children.EntryPlaceholder:
		return "placeholder"
	}
	return "child"
}

func viewOfPlan(p children.Plan) planView {
	out := planView{Layout: string(p.Layout), Sections: []planSection{}, Areas: p.Areas}
	for _, sec := range p.Sections {
		ps := planSection{Slot: sec.Slot, Title: sec.Title, Start: sec.Start, End: sec.End, Entries: []planEntry{}}
		for _, e := range sec.Entries {
			pe := planEntry{Kind: entryKind(e.Kind), Index: e.Index, Area: e.Area}
			if e.Child != nil {
				pe.ChildID, pe.ChildType = e.Child.ID, e.Child.Type
			}
			if e.Kind == children.EntryPlaceholder {
				pe.Allowed = boolPtr(e.Allowed)
			}
			ps.Entries = append(ps.Entries, pe)
		}
		out.Sections = append(out.Sections, ps)
	}
	return out
}

func (s *Server) handlePlanChildren(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	parentID, err := requireString(args, "parentId")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	plan, err := sess.ChildrenPlan(parentID)
	if err != nil {
		return nil, err
	}
	return jsonResult(viewOfPlan(plan))
}

func (s *Server) handleInsertComponent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	parentID, err := requireString(args, "parentId")
	if err != nil {
		return nil, err
	}
	typ, err := requireString(args, "type")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	id, err := sess.InsertInto(parentID, req.GetString("slot", "0"), getInt(args, "index", 0), domain.ComponentType(typ))
	if err != nil {
		return nil, err
	}
	st := statusOf(sess)
	st.Created = id
	return jsonResult(st)
}

func (s *Server) handleMoveToSlot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	parentID, err := requireString(args, "parentId")
	if err != nil {
		return nil, err
	}
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	slot, err := requireString(args, "slot")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	if err := sess.MoveToSlot(parentID, id, slot); err != nil {
		return nil, err
	}
	return jsonResult(statusOf(sess))
}

func (s *Server) handleAssignGridArea(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	parentID, err := requireString(args, "parentId")
	if err != nil {
		return nil, err
	}
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	if err := sess.AssignArea(parentID, id, req.GetString("area", "")); err != nil {
		return nil, err
	}
	return jsonResult(statusOf(sess))
}

func (s *Server) handleGroupComponents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	var ids []string
	if err := decodeArg(args, "ids", &ids); err != nil {
		return nil, err
	}
	typ, err := requireString(args, "type")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	id, err := sess.Group(ids, domain.ComponentType(typ))
	if err != nil {
		return nil, err
	}
	st := statusOf(sess)
	st.Created = id
	return jsonResult(st)
}

func (s *Server) handleUngroupComponent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(args)
	if err != nil {
		return nil, err
	}
	if _, err := sess.Ungroup(id); err != nil {
		return nil, err
	}
	return jsonResult(statusOf(sess))
}
