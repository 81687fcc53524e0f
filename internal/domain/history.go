package domain

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

const (
	DeviceDesktop = "desktop"
	DeviceTablet  = "tablet"
	DeviceMobile  = "mobile"

	DefaultGridCols = 12

	// MaxCustomBreakpoints caps user-defined breakpoints per page. Enforced by
	// the editor session, not by the reducer.
	MaxCustomBreakpoints = 4
)

var BuiltinDevices = []string{DeviceDesktop, DeviceTablet, DeviceMobile}

type Breakpoint struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Min   *int   `json:"min,omitempty"`
	Max   *int   `json:"max,omitempty"`
}

// HistoryState is the editable document plus its undo/redo envelope.
type HistoryState struct {
	Past        [][]*PageComponent     `json:"past"`
	Present     []*PageComponent       `json:"present"`
	Future      [][]*PageComponent     `json:"future"`
	GridCols    int                    `json:"gridCols"`
	Editor      map[string]EditorFlags `json:"editor"`
	Breakpoints []Breakpoint           `json:"breakpoints,omitempty"`
}

// NewHistoryState seeds a state with empty stacks around present.
func NewHistoryState(present []*PageComponent) HistoryState {
	if present == nil {
		present = []*PageComponent{}
	}
	return HistoryState{
		Past:     [][]*PageComponent{},
		Present:  present,
		Future:   [][]*PageComponent{},
		GridCols: DefaultGridCols,
		Editor:   map[string]EditorFlags{},
	}
}

func (s HistoryState) CanUndo() bool { return len(s.Past) > 0 }
func (s HistoryState) CanRedo() bool { return len(s.Future) > 0 }

// Flags returns the editor entry for id, or the zero value.
func (s HistoryState) Flags(id string) EditorFlags {
	return s.Editor[id]
}

// Revision is a content-derived identifier for a tree: the xxhash64 of its
// canonical JSON encoding. Map keys are emitted sorted, so equal trees give
// equal revisions.
func Revision(components []*PageComponent) (string, error) {
	if components == nil {
		components = []*PageComponent{}
	}
	data, err := json.Marshal(components)
	if err != nil {
		return "", fmt.Errorf("encode revision: %w", err)
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16), nil
}
