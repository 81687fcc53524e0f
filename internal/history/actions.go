package history

import (
	"pagebuilder/internal/domain"
	"pagebuilder/internal/tree"
)

// Kind is the wire tag of an action.
type Kind string

const (
	KindAdd            Kind = "add"
	KindRemove         Kind = "remove"
	KindMove           Kind = "move"
	KindUpdate         Kind = "update"
	KindResize         Kind = "resize"
	KindDuplicate      Kind = "duplicate"
	KindUpdateEditor   Kind = "update-editor"
	KindSet            Kind = "set"
	KindSetGridCols    Kind = "set-grid-cols"
	KindSetBreakpoints Kind = "set-breakpoints"
	KindUndo           Kind = "undo"
	KindRedo           Kind = "redo"
)

// Action is the closed set of mutations the reducer accepts. Only types in
// this package implement it.
type Action interface {
	Kind() Kind
	action()
}

// Add inserts one or more new nodes into ParentID at Index as a single
// undoable step. An empty ParentID is the page root.
type Add struct {
	Components []*domain.PageComponent `json:"components"`
	ParentID   string                  `json:"parentId,omitempty"`
	Index      int                     `json:"index"`
}

type Remove struct {
	ID string `json:"id"`
}

// Move relocates the node at From to To. SlotKey, when set, assigns the
// destination slot.
type Move struct {
	From    tree.Location `json:"from"`
	To      tree.Location `json:"to"`
	SlotKey *string       `json:"slotKey,omitempty"`
}

// Update patches content fields. A nil value removes a prop.
type Update struct {
	ID    string         `json:"id"`
	Patch map[string]any `json:"patch"`
}

// Resize patches size and position fields (width, heightMobile, leftDesktop,
// ...). On the wire the fields sit next to the id.
type Resize struct {
	ID     string
	Fields map[string]any
}

type Duplicate struct {
	ID string `json:"id"`
}

type UpdateEditor struct {
	ID    string             `json:"id"`
	Patch domain.EditorPatch `json:"patch"`
}

// Set replaces the whole tree, used for template application and restore.
type Set struct {
	Components []*domain.PageComponent `json:"components"`
}

type SetGridCols struct {
	GridCols int `json:"gridCols"`
}

type SetBreakpoints struct {
	Breakpoints []domain.Breakpoint `json:"breakpoints"`
}

type Undo struct{}

type Redo struct{}

func (Add) Kind() Kind            { return KindAdd }
func (Remove) Kind() Kind         { return KindRemove }
func (Move) Kind() Kind           { return KindMove }
func (Update) Kind() Kind         { return KindUpdate }
func (Resize) Kind() Kind         { return KindResize }
func (Duplicate) Kind() Kind      { return KindDuplicate }
func (UpdateEditor) Kind() Kind   { return KindUpdateEditor }
func (Set) Kind() Kind            { return KindSet }
func (SetGridCols) Kind() Kind    { return KindSetGridCols }
func (SetBreakpoints) Kind() Kind { return KindSetBreakpoints }
func (Undo) Kind() Kind           { return KindUndo }
func (Redo) Kind() Kind           { return KindRedo }

func (Add) action()            {}
func (Remove) action()         {}
func (Move) action()           {}
func (Update) action()         {}
func (Resize) action()         {}
func (Duplicate) action()      {}
func (UpdateEditor) action()   {}
func (Set) action()            {}
func (SetGridCols) action()    {}
func (SetBreakpoints) action() {}
func (Undo) action()           {}
func (Redo) action()           {}

// IsTreeMutation reports whether a kind pushes onto the undo stack.
func IsTreeMutation(k Kind) bool {
	switch k {
	case KindAdd, KindRemove, KindMove, KindUpdate, KindResize, KindDuplicate, KindSet:
		return true
	}
	return false
}
