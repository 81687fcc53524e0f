package service

import (
	"fmt"

	"pagebuilder/internal/children"
	"pagebuilder/internal/dnd"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/tree"
)

// childrenInput captures parentID's children as visible on the current
// device, with the active drag's drop target when it points at parentID.
func (s *EditorSession) childrenInput(parentID string) (children.Input, *domain.PageComponent, error) {
	s.mu.Lock()
	present, editor, device, drag := s.state.Present, s.state.Editor, s.device, s.drag
	s.mu.Unlock()

	parent := tree.Find(present, parentID)
	if parent == nil {
		return children.Input{}, nil, fmt.Errorf("%w: %s", history.ErrNodeNotFound, parentID)
	}
	var preview *children.Preview
	if drag != nil && drag.State() == dnd.Dragging {
		if t := drag.Target(); t != nil && t.ParentID == parentID {
			preview = &children.Preview{ParentID: t.ParentID, Index: t.Index, Allowed: t.Allowed, SlotKey: t.SlotKey}
		}
	}
	in, err := children.NewInput(parent, editor, device, preview)
	return in, parent, err
}

// ChildrenPlan lays out parentID's children with the renderer registered
// for its type.
func (s *EditorSession) ChildrenPlan(parentID string) (children.Plan, error) {
	in, parent, err := s.childrenInput(parentID)
	if err != nil {
		return children.Plan{}, err
	}
	return children.ForParent(s.cfg.Registry, parent).Plan(in), nil
}

// InsertInto adds a palette node of type t at a visible index of parentID,
// into slot for tabbed parents, and selects it.
func (s *EditorSession) InsertInto(parentID, slot string, index int, t domain.ComponentType) (string, error) {
	in, parent, err := s.childrenInput(parentID)
	if err != nil {
		return "", err
	}
	n, err := s.cfg.Registry.NewComponent(t, tree.NewID())
	if err != nil {
		return "", err
	}
	a, err := children.ForParent(s.cfg.Registry, parent).InsertAction(in, slot, index, n)
	if err != nil {
		return "", err
	}
	if err := s.Dispatch(a); err != nil {
		return "", err
	}
	s.Select(n.ID)
	return n.ID, nil
}

// MoveToSlot moves child id of a tabbed parent into another panel.
func (s *EditorSession) MoveToSlot(parentID, id, slot string) error {
	return s.childAction(parentID, func(in children.Input) (history.Action, error) {
		return children.MoveToSlot(in, id, slot)
	})
}

// AssignArea places child id of a grid-area parent into a named area.
func (s *EditorSession) AssignArea(parentID, id, area string) error {
	return s.childAction(parentID, func(in children.Input) (history.Action, error) {
		return children.AssignArea(in, id, area)
	})
}

func (s *EditorSession) childAction(parentID string, build func(children.Input) (history.Action, error)) error {
	in, _, err := s.childrenInput(parentID)
	if err != nil {
		return err
	}
	a, err := build(in)
	if err != nil {
		return err
	}
	return s.Dispatch(a)
}
