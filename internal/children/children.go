// Package children plans how a container lays out its children while
// editing: where insertion affordances and drop placeholders go, and which
// action an insertion or slot change turns into. Renderers are selected by
// the parent's registered layout.
package children

import (
	"errors"
	"fmt"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/rules"
	"pagebuilder/internal/tree"
	"pagebuilder/internal/viewport"
)

var (
	ErrNotContainer = errors.New("parent is not a container")
	ErrUnknownSlot  = errors.New("unknown slot")
	ErrNotChild     = errors.New("node is not a child of this parent")
	ErrNoAreas      = errors.New("grid defines no named areas")
)

type EntryKind int

const (
	EntryInsert EntryKind = iota
	EntryPlaceholder
	EntryChild
)

// Entry is one rendered item. Index is a visible index: the insertion point
// for inserts and placeholders, the child's position for children.
type Entry struct {
	Kind    EntryKind
	Index   int
	Child   *domain.PageComponent
	Allowed bool
	Area    string
}

// Section is one independently rendered run of children: the whole list, or
// one tab panel. Start and End bound the section's visible index range.
type Section struct {
	Slot    string
	Title   string
	Start   int
	End     int
	Entries []Entry
}

type Plan struct {
	Layout   rules.LayoutKind
	Sections []Section
	// Areas lists the named grid areas a child can be assigned to.
	Areas []string
}

// Preview is the live drop target while a drag is over this parent.
type Preview struct {
	ParentID string
	Index    int
	Allowed  bool
	SlotKey  string
}

// Input is what every renderer works from: the underlying parent and its
// children as visible on the current device, in decorated order.
type Input struct {
	Parent   *domain.PageComponent
	Visible  []*domain.PageComponent
	Strategy domain.StackStrategy
	Preview  *Preview
}

// NewInput decorates parent for device and captures its visible children.
func NewInput(parent *domain.PageComponent, editor map[string]domain.EditorFlags, device string, preview *Preview) (Input, error) {
	if parent == nil || !parent.IsContainer() {
		return Input{}, ErrNotContainer
	}
	in := Input{
		Parent:   parent,
		Visible:  []*domain.PageComponent{},
		Strategy: viewport.StrategyOf(editor, parent.ID, device),
		Preview:  preview,
	}
	if d := viewport.Decorate([]*domain.PageComponent{parent}, editor, device); len(d) == 1 {
		in.Visible = d[0].Children
	}
	return in, nil
}

func (in Input) previewAt(index int, slot string) (Entry, bool) {
	p := in.Preview
	if p == nil || p.ParentID != in.Parent.ID || p.Index != index {
		return Entry{}, false
	}
	if slot != "" && p.SlotKey != "" && p.SlotKey != slot {
		return Entry{}, false
	}
	return Entry{Kind: EntryPlaceholder, Index: index, Allowed: p.Allowed}, true
}

// underlyingIndex applies the same visible to underlying translation the
// drag controller uses.
func (in Input) underlyingIndex(index int) int {
	return viewport.InsertIndex(in.Parent.Children, in.Visible, index, in.Strategy)
}

// Renderer is one children layout strategy.
type Renderer interface {
	Layout() rules.LayoutKind
	Plan(in Input) Plan
	// InsertAction builds the add for inserting n at visible index in the
	// given slot. Slot is ignored by layouts without slots.
	InsertAction(in Input, slot string, index int, n *domain.PageComponent) (history.Action, error)
}

// ForParent picks the renderer registered for the parent's type.
func ForParent(reg *rules.Registry, parent *domain.PageComponent) Renderer {
	switch reg.LayoutOf(parent.Type) {
	case rules.LayoutGridArea:
		return GridArea{}
	case rules.LayoutTabs:
		return Tabs{}
	}
	return List{}
}

func insertAdd(in Input, index int, n *domain.PageComponent) (history.Action, error) {
	if in.Parent == nil || !in.Parent.IsContainer() {
		return nil, ErrNotContainer
	}
	if n == nil {
		return nil, fmt.Errorf("%w: nil component", history.ErrInvalidAction)
	}
	return history.Add{
		Components: []*domain.PageComponent{n},
		ParentID:   in.Parent.ID,
		Index:      in.underlyingIndex(index),
	}, nil
}

func locateChild(in Input, id string) (int, error) {
	for i, c := range in.Parent.Children {
		if c.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrNotChild, id)
}

// move builds a same-parent move of child id to the underlying insertion
// point to, adjusting for the detached source.
func move(in Input, id string, to int, slot *string) (history.Move, error) {
	from, err := locateChild(in, id)
	if err != nil {
		return history.Move{}, err
	}
	if from < to {
		to--
	}
	return history.Move{
		From:    tree.Location{ParentID: in.Parent.ID, Index: from},
		To:      tree.Location{ParentID: in.Parent.ID, Index: to},
		SlotKey: slot,
	}, nil
}
