package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/tree"
)

// KeyEvent is a key press as the host reports it. Key uses DOM key names
// ("z", "ArrowUp", "Escape", "]").
type KeyEvent struct {
	Key   string
	Ctrl  bool
	Meta  bool
	Shift bool
	Alt   bool
	// InTextInput is set while focus is in an input, textarea, select or
	// contenteditable element.
	InTextInput bool
	// CanvasWidth enables column-sized nudges with Alt. Zero when unknown.
	CanvasWidth float64
}

const (
	zFront = 999
	zBack  = 0
)

// HandleKey runs the editor shortcut bound to ev and reports whether one
// was. Shortcuts never fire while a text input has focus.
func (s *EditorSession) HandleKey(ctx context.Context, ev KeyEvent) (bool, error) {
	if ev.InTextInput {
		return false, nil
	}
	if ev.Key == "Escape" {
		s.mu.Lock()
		d := s.drag
		s.mu.Unlock()
		return d != nil && d.HandleKey("Escape"), nil
	}

	k := strings.ToLower(ev.Key)
	switch k {
	case "arrowup", "arrowdown", "arrowleft", "arrowright":
		if ev.Alt && ev.Shift && (k == "arrowup" || k == "arrowdown") {
			dir := 1
			if k == "arrowup" {
				dir = -1
			}
			return s.reorder(dir)
		}
		return s.nudge(k, ev)
	}

	if !(ev.Ctrl || ev.Meta) {
		return false, nil
	}
	switch k {
	case "z":
		return true, s.Dispatch(history.Undo{})
	case "y":
		return true, s.Dispatch(history.Redo{})
	case "s":
		_, err := s.Save(ctx)
		return true, err
	case "p":
		s.mu.Lock()
		s.preview = !s.preview
		s.mu.Unlock()
		return true, nil
	case "]", "[":
		return true, s.zOrder(k == "]", ev.Shift)
	}
	return false, nil
}

// reorder moves the single selected node one step among its siblings.
func (s *EditorSession) reorder(dir int) (bool, error) {
	sel := s.Selected()
	if len(sel) != 1 {
		return false, nil
	}
	present := s.Present()
	loc, ok := tree.Locate(present, sel[0])
	if !ok {
		return false, nil
	}
	siblings, _ := tree.ChildrenOf(present, loc.ParentID)
	to := min(max(loc.Index+dir, 0), max(len(siblings)-1, 0))
	if to == loc.Index {
		return false, nil
	}
	return true, s.Dispatch(history.Move{
		From: loc,
		To:   tree.Location{ParentID: loc.ParentID, Index: to},
	})
}

func deviceKey(base, device string) string {
	if device == "" {
		return base
	}
	return base + strings.ToUpper(device[:1]) + device[1:]
}

func pxValue(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(x), "px"), 64)
		if err == nil {
			return n
		}
	}
	return 0
}

// nudge shifts every selected, unlocked, absolutely positioned node by 1px,
// 10px with Shift or one grid column with Alt. Offsets are written to the
// current device's left/top fields.
func (s *EditorSession) nudge(key string, ev KeyEvent) (bool, error) {
	s.mu.Lock()
	sel := append([]string(nil), s.selected...)
	state := s.state
	device := s.device
	s.mu.Unlock()
	if len(sel) == 0 {
		return false, nil
	}

	step := 1.0
	switch {
	case ev.Alt && ev.CanvasWidth > 0 && state.GridCols > 0:
		step = ev.CanvasWidth / float64(state.GridCols)
	case ev.Shift:
		step = 10
	}
	base, delta := "left", step
	switch key {
	case "arrowleft":
		delta = -step
	case "arrowup":
		base, delta = "top", -step
	case "arrowdown":
		base = "top"
	}
	field := deviceKey(base, device)

	handled := false
	for _, id := range sel {
		n := tree.Find(state.Present, id)
		if n == nil || n.StringProp("position") != "absolute" {
			continue
		}
		locked := n.Locked
		if l := state.Flags(id).Locked; l != nil {
			locked = *l
		}
		if locked {
			continue
		}
		cur, ok := n.Prop(field)
		if !ok {
			cur, _ = n.Prop(base)
		}
		next := fmt.Sprintf("%dpx", int(math.Round(pxValue(cur)+delta)))
		if err := s.Dispatch(history.Resize{ID: id, Fields: map[string]any{field: next}}); err != nil {
			return true, err
		}
		handled = true
	}
	return handled, nil
}

// zOrder steps the selection's z-index, or jumps it to front or back when
// extreme. Without a selection the extreme form rotates the device.
func (s *EditorSession) zOrder(forward, extreme bool) error {
	s.mu.Lock()
	sel := append([]string(nil), s.selected...)
	editor := s.state.Editor
	s.mu.Unlock()

	if len(sel) == 0 {
		if extreme {
			dir := -1
			if forward {
				dir = 1
			}
			s.RotateDevice(dir)
		}
		return nil
	}
	for _, id := range sel {
		z := editor[id].ZIndexOr(0)
		switch {
		case extreme && forward:
			z = zFront
		case extreme:
			z = zBack
		case forward:
			z++
		default:
			z = max(0, z-1)
		}
		if err := s.Dispatch(history.UpdateEditor{ID: id, Patch: domain.EditorPatch{ZIndex: &z}}); err != nil {
			return err
		}
	}
	return nil
}
