package service

import (
	"errors"
	"fmt"
	"sort"

	"pagebuilder/internal/dnd"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/tree"
)

var (
	ErrNotSiblings  = errors.New("grouped nodes must share a parent")
	ErrNotContainer = errors.New("node is not a container")
)

// Group wraps ids in a new container of type t, placed where the first of
// them sits in the document. The nodes must be siblings. The whole change is
// one undoable step and the new container becomes the selection.
func (s *EditorSession) Group(ids []string, t domain.ComponentType) (string, error) {
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: nothing to group", history.ErrInvalidAction)
	}
	s.mu.Lock()
	present, editor := s.state.Present, s.state.Editor
	s.mu.Unlock()

	parentID := ""
	indexes := make([]int, 0, len(ids))
	seen := map[string]bool{}
	for i, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		loc, ok := tree.Locate(present, id)
		if !ok {
			return "", fmt.Errorf("group %s: %w", id, history.ErrNodeNotFound)
		}
		if locked(editor, id) {
			return "", fmt.Errorf("%w: %s", dnd.ErrLocked, id)
		}
		if i > 0 && loc.ParentID != parentID {
			return "", fmt.Errorf("%w: %s is under %q, not %q", ErrNotSiblings, id, loc.ParentID, parentID)
		}
		parentID = loc.ParentID
		indexes = append(indexes, loc.Index)
	}
	sort.Ints(indexes)

	group, err := s.cfg.Registry.NewComponent(t, tree.NewID())
	if err != nil {
		return "", err
	}
	if !group.IsContainer() {
		return "", fmt.Errorf("%w: %s", ErrNotContainer, t)
	}
	siblings, _ := tree.ChildrenOf(present, parentID)
	group.SlotKey = siblings[indexes[0]].SlotKey
	for _, i := range indexes {
		c := siblings[i].Clone()
		c.SlotKey = ""
		group.Children = append(group.Children, c)
	}

	next := present
	for k := len(indexes) - 1; k >= 0; k-- {
		next, _, _ = tree.RemoveAt(next, parentID, indexes[k])
	}
	next, _ = tree.InsertAt(next, parentID, indexes[0], group)

	if err := s.Dispatch(history.Set{Components: next}); err != nil {
		return "", err
	}
	s.Select(group.ID)
	return group.ID, nil
}

// Ungroup replaces the container id with its children, in order, at its own
// position. The children inherit the container's slot and become the
// selection.
func (s *EditorSession) Ungroup(id string) ([]string, error) {
	s.mu.Lock()
	present, editor := s.state.Present, s.state.Editor
	s.mu.Unlock()

	loc, ok := tree.Locate(present, id)
	if !ok {
		return nil, fmt.Errorf("ungroup %s: %w", id, history.ErrNodeNotFound)
	}
	if locked(editor, id) {
		return nil, fmt.Errorf("%w: %s", dnd.ErrLocked, id)
	}
	next, group, _ := tree.RemoveAt(present, loc.ParentID, loc.Index)
	if !group.IsContainer() {
		return nil, fmt.Errorf("%w: %s", ErrNotContainer, id)
	}

	kids := make([]*domain.PageComponent, len(group.Children))
	ids := make([]string, len(group.Children))
	for i, c := range group.Children {
		kids[i] = c.Clone()
		kids[i].SlotKey = group.SlotKey
		ids[i] = c.ID
	}
	next, _ = tree.InsertAt(next, loc.ParentID, loc.Index, kids...)

	if err := s.Dispatch(history.Set{Components: next}); err != nil {
		return nil, err
	}
	s.Select(ids...)
	return ids, nil
}

func locked(editor map[string]domain.EditorFlags, id string) bool {
	f, ok := editor[id]
	return ok && f.Locked != nil && *f.Locked
}
