// Package history implements the page document reducer: a pure function
// from (HistoryState, Action) to HistoryState that maintains the undo and
// redo stacks.
package history

import (
	"errors"
	"fmt"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/rules"
	"pagebuilder/internal/tree"
)

var (
	ErrNodeNotFound   = errors.New("node not found")
	ErrNotContainer   = errors.New("target is not a container")
	ErrDropNotAllowed = errors.New("placement not allowed")
	ErrCycle          = errors.New("cannot move a node into itself")
	ErrDuplicateID    = errors.New("duplicate node id")
	ErrInvalidAction  = errors.New("invalid action")
)

// Reducer applies actions to a HistoryState. It holds no document state of
// its own and is safe for concurrent use.
type Reducer struct {
	placement rules.Placement
	newID     func() string
	slotted   func(domain.ComponentType) bool
	limit     int
}

type Option func(*Reducer)

// WithIDGenerator overrides how duplicate mints ids.
func WithIDGenerator(fn func() string) Option {
	return func(r *Reducer) { r.newID = fn }
}

// WithHistoryLimit caps the past stack. Zero means unbounded.
func WithHistoryLimit(n int) Option {
	return func(r *Reducer) { r.limit = n }
}

// WithSlottedTypes sets which container types partition children by slot.
func WithSlottedTypes(fn func(domain.ComponentType) bool) Option {
	return func(r *Reducer) { r.slotted = fn }
}

func NewReducer(placement rules.Placement, opts ...Option) *Reducer {
	r := &Reducer{
		placement: placement,
		newID:     tree.NewID,
		slotted: func(t domain.ComponentType) bool {
			return t == domain.TypeTabs || t == domain.TypeTabsAccordionContainer
		},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reduce is the total form of Apply: a rejected action leaves the state
// unchanged.
func (r *Reducer) Reduce(s domain.HistoryState, a Action) domain.HistoryState {
	next, err := r.Apply(s, a)
	if err != nil {
		return s
	}
	return next
}

// Apply returns the next state, or the unchanged state plus the reason the
// action was rejected.
func (r *Reducer) Apply(s domain.HistoryState, a Action) (domain.HistoryState, error) {
	switch a := a.(type) {
	case Add:
		return r.add(s, a)
	case Remove:
		return r.remove(s, a)
	case Move:
		return r.move(s, a)
	case Update:
		return r.patch(s, a.ID, a.Patch, false)
	case Resize:
		return r.patch(s, a.ID, a.Fields, true)
	case Duplicate:
		return r.duplicate(s, a)
	case UpdateEditor:
		return r.updateEditor(s, a)
	case Set:
		return r.set(s, a)
	case SetGridCols:
		if a.GridCols < 1 {
			return s, fmt.Errorf("%w: gridCols must be at least 1", ErrInvalidAction)
		}
		s.GridCols = a.GridCols
		return s, nil
	case SetBreakpoints:
		s.Breakpoints = append([]domain.Breakpoint{}, a.Breakpoints...)
		return s, nil
	case Undo:
		return undo(s), nil
	case Redo:
		return redo(s), nil
	case nil:
		return s, fmt.Errorf("%w: nil action", ErrInvalidAction)
	default:
		return s, fmt.Errorf("%w: %T", ErrInvalidAction, a)
	}
}

func (r *Reducer) commit(s domain.HistoryState, present []*domain.PageComponent) domain.HistoryState {
	past := make([][]*domain.PageComponent, 0, len(s.Past)+1)
	past = append(past, s.Past...)
	past = append(past, s.Present)
	if r.limit > 0 && len(past) > r.limit {
		past = past[len(past)-r.limit:]
	}
	s.Past = past
	s.Present = present
	s.Future = [][]*domain.PageComponent{}
	return s
}

func undo(s domain.HistoryState) domain.HistoryState {
	if len(s.Past) == 0 {
		return s
	}
	n := len(s.Past)
	prev := s.Past[n-1]
	past := make([][]*domain.PageComponent, n-1)
	copy(past, s.Past[:n-1])
	future := make([][]*domain.PageComponent, 0, len(s.Future)+1)
	future = append(future, s.Present)
	future = append(future, s.Future...)
	s.Past, s.Present, s.Future = past, prev, future
	return s
}

func redo(s domain.HistoryState) domain.HistoryState {
	if len(s.Future) == 0 {
		return s
	}
	next := s.Future[0]
	future := make([][]*domain.PageComponent, len(s.Future)-1)
	copy(future, s.Future[1:])
	past := make([][]*domain.PageComponent, 0, len(s.Past)+1)
	past = append(past, s.Past...)
	past = append(past, s.Present)
	s.Past, s.Present, s.Future = past, next, future
	return s
}

// parentKind resolves the placement kind for parentID and checks that it is
// a container.
func parentKind(present []*domain.PageComponent, parentID string) (rules.ParentKind, error) {
	if parentID == "" {
		return rules.Root, nil
	}
	p := tree.Find(present, parentID)
	if p == nil {
		return "", fmt.Errorf("parent %s: %w", parentID, ErrNodeNotFound)
	}
	if !p.IsContainer() {
		return "", fmt.Errorf("parent %s: %w", parentID, ErrNotContainer)
	}
	return p.Type, nil
}

func (r *Reducer) add(s domain.HistoryState, a Add) (domain.HistoryState, error) {
	if len(a.Components) == 0 {
		return s, fmt.Errorf("%w: add without components", ErrInvalidAction)
	}
	kind, err := parentKind(s.Present, a.ParentID)
	if err != nil {
		return s, err
	}
	ids := usedIDs(s)
	for _, c := range a.Components {
		if c == nil {
			return s, fmt.Errorf("%w: nil component", ErrInvalidAction)
		}
		if !r.placement.CanDropChild(kind, c.Type) {
			return s, fmt.Errorf("%s in %s: %w", c.Type, kind, ErrDropNotAllowed)
		}
		if err := r.checkSubtree(c, ids); err != nil {
			return s, err
		}
	}
	present, ok := tree.InsertAt(s.Present, a.ParentID, a.Index, a.Components...)
	if !ok {
		return s, fmt.Errorf("parent %s: %w", a.ParentID, ErrNodeNotFound)
	}
	return r.commit(s, present), nil
}

// checkSubtree validates a node about to enter the tree: ids unique against
// seen (which it extends), non-empty types and permitted nesting.
func (r *Reducer) checkSubtree(n *domain.PageComponent, seen map[string]struct{}) error {
	if n.ID == "" || n.Type == "" {
		return fmt.Errorf("%w: node needs id and type", ErrInvalidAction)
	}
	if _, dup := seen[n.ID]; dup {
		return fmt.Errorf("%s: %w", n.ID, ErrDuplicateID)
	}
	seen[n.ID] = struct{}{}
	for _, c := range n.Children {
		if c == nil {
			return fmt.Errorf("%w: nil child in %s", ErrInvalidAction, n.ID)
		}
		if !r.placement.CanDropChild(n.Type, c.Type) {
			return fmt.Errorf("%s in %s: %w", c.Type, n.Type, ErrDropNotAllowed)
		}
		if err := r.checkSubtree(c, seen); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reducer) remove(s domain.HistoryState, a Remove) (domain.HistoryState, error) {
	loc, ok := tree.Locate(s.Present, a.ID)
	if !ok {
		return s, fmt.Errorf("remove %s: %w", a.ID, ErrNodeNotFound)
	}
	present, _, ok := tree.RemoveAt(s.Present, loc.ParentID, loc.Index)
	if !ok {
		return s, fmt.Errorf("remove %s: %w", a.ID, ErrNodeNotFound)
	}
	return r.commit(s, present), nil
}

func (r *Reducer) move(s domain.HistoryState, a Move) (domain.HistoryState, error) {
	src, ok := tree.ChildrenOf(s.Present, a.From.ParentID)
	if !ok || a.From.Index < 0 || a.From.Index >= len(src) {
		return s, fmt.Errorf("move from %+v: %w", a.From, ErrNodeNotFound)
	}
	moving := src[a.From.Index]

	kind, err := parentKind(s.Present, a.To.ParentID)
	if err != nil {
		return s, err
	}
	if a.To.ParentID != "" && tree.Contains(moving, a.To.ParentID) {
		return s, fmt.Errorf("move %s into %s: %w", moving.ID, a.To.ParentID, ErrCycle)
	}
	if !r.placement.CanDropChild(kind, moving.Type) {
		return s, fmt.Errorf("%s in %s: %w", moving.Type, kind, ErrDropNotAllowed)
	}

	samePlace := a.From.ParentID == a.To.ParentID
	detached, _, _ := tree.RemoveAt(s.Present, a.From.ParentID, a.From.Index)
	dest, _ := tree.ChildrenOf(detached, a.To.ParentID)
	at := tree.ClampIndex(a.To.Index, len(dest))

	slot := moving.SlotKey
	switch {
	case a.SlotKey != nil:
		slot = *a.SlotKey
	case samePlace:
	case r.slotted(kind):
		slot = neighbourSlot(dest, at)
	default:
		slot = ""
	}

	if samePlace && at == a.From.Index && slot == moving.SlotKey {
		return s, nil
	}

	node := moving
	if slot != moving.SlotKey {
		node = moving.Clone()
		node.SlotKey = slot
	}
	present, ok := tree.InsertAt(detached, a.To.ParentID, at, node)
	if !ok {
		return s, fmt.Errorf("move to %+v: %w", a.To, ErrNodeNotFound)
	}
	return r.commit(s, present), nil
}

// neighbourSlot picks the slot a node joins when inserted at index: the
// preceding sibling's, else the following one's, else the default slot.
func neighbourSlot(siblings []*domain.PageComponent, index int) string {
	if index > 0 && index-1 < len(siblings) {
		return slotOrDefault(siblings[index-1].SlotKey)
	}
	if index < len(siblings) {
		return slotOrDefault(siblings[index].SlotKey)
	}
	return DefaultSlot
}

// DefaultSlot is the bucket children without a slotKey belong to.
const DefaultSlot = "0"

func slotOrDefault(k string) string {
	if k == "" {
		return DefaultSlot
	}
	return k
}

var resizeForbidden = map[string]bool{"id": true, "children": true, "type": true, "slotKey": true}

func (r *Reducer) patch(s domain.HistoryState, id string, fields map[string]any, resize bool) (domain.HistoryState, error) {
	if len(fields) == 0 {
		return s, fmt.Errorf("%w: empty patch", ErrInvalidAction)
	}
	loc, ok := tree.Locate(s.Present, id)
	if !ok {
		return s, fmt.Errorf("update %s: %w", id, ErrNodeNotFound)
	}
	var patchErr error
	present, _ := tree.Replace(s.Present, id, func(n *domain.PageComponent) *domain.PageComponent {
		for k, v := range fields {
			if resize && resizeForbidden[k] {
				patchErr = fmt.Errorf("%w: %s is not a size field", ErrInvalidAction, k)
				return n
			}
			if err := n.SetField(k, v); err != nil {
				patchErr = fmt.Errorf("%w: %v", ErrInvalidAction, err)
				return n
			}
		}
		return n
	})
	if patchErr != nil {
		return s, patchErr
	}
	if _, changesType := fields["type"]; changesType {
		n := tree.Find(present, id)
		kind, _ := parentKind(present, loc.ParentID)
		if !r.placement.CanDropChild(kind, n.Type) {
			return s, fmt.Errorf("%s in %s: %w", n.Type, kind, ErrDropNotAllowed)
		}
		for _, c := range n.Children {
			if !r.placement.CanDropChild(n.Type, c.Type) {
				return s, fmt.Errorf("%s in %s: %w", c.Type, n.Type, ErrDropNotAllowed)
			}
		}
	}
	return r.commit(s, present), nil
}

func (r *Reducer) duplicate(s domain.HistoryState, a Duplicate) (domain.HistoryState, error) {
	loc, ok := tree.Locate(s.Present, a.ID)
	if !ok {
		return s, fmt.Errorf("duplicate %s: %w", a.ID, ErrNodeNotFound)
	}
	src := tree.Find(s.Present, a.ID)
	kind, err := parentKind(s.Present, loc.ParentID)
	if err != nil {
		return s, err
	}
	if !r.placement.CanDropChild(kind, src.Type) {
		return s, fmt.Errorf("%s in %s: %w", src.Type, kind, ErrDropNotAllowed)
	}

	taken := usedIDs(s)
	newID := func() string {
		for {
			id := r.newID()
			if _, dup := taken[id]; !dup {
				taken[id] = struct{}{}
				return id
			}
		}
	}
	clone, ids := tree.CloneWithIDs(src, newID)
	present, ok := tree.InsertAt(s.Present, loc.ParentID, loc.Index+1, clone)
	if !ok {
		return s, fmt.Errorf("duplicate %s: %w", a.ID, ErrNodeNotFound)
	}

	next := r.commit(s, present)
	editor := make(map[string]domain.EditorFlags, len(s.Editor)+len(ids))
	for k, v := range s.Editor {
		editor[k] = v
	}
	for oldID, newID := range ids {
		if f, ok := s.Editor[oldID]; ok {
			editor[newID] = f.Clone()
		}
	}
	next.Editor = editor
	return next, nil
}

// usedIDs collects ids from present, every history snapshot and the editor
// metadata. Ids are never reused, even after their node is deleted.
func usedIDs(s domain.HistoryState) map[string]struct{} {
	ids := tree.CollectIDs(s.Present)
	for _, snaps := range [][][]*domain.PageComponent{s.Past, s.Future} {
		for _, snap := range snaps {
			for id := range tree.CollectIDs(snap) {
				ids[id] = struct{}{}
			}
		}
	}
	for id := range s.Editor {
		ids[id] = struct{}{}
	}
	return ids
}

func (r *Reducer) updateEditor(s domain.HistoryState, a UpdateEditor) (domain.HistoryState, error) {
	if a.ID == "" {
		return s, fmt.Errorf("%w: update-editor without id", ErrInvalidAction)
	}
	if a.Patch.Empty() {
		return s, nil
	}
	editor := make(map[string]domain.EditorFlags, len(s.Editor)+1)
	for k, v := range s.Editor {
		editor[k] = v
	}
	editor[a.ID] = s.Editor[a.ID].Merge(a.Patch)
	s.Editor = editor
	return s, nil
}

func (r *Reducer) set(s domain.HistoryState, a Set) (domain.HistoryState, error) {
	components := a.Components
	if components == nil {
		components = []*domain.PageComponent{}
	}
	seen := map[string]struct{}{}
	for _, c := range components {
		if c == nil {
			return s, fmt.Errorf("%w: nil component", ErrInvalidAction)
		}
		if !r.placement.CanDropChild(rules.Root, c.Type) {
			return s, fmt.Errorf("%s at root: %w", c.Type, ErrDropNotAllowed)
		}
		if err := r.checkSubtree(c, seen); err != nil {
			return s, err
		}
	}
	return r.commit(s, components), nil
}
