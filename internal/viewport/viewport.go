// Package viewport derives what a breakpoint actually shows: hidden nodes
// filtered out and container children reordered by their per-device
// stacking strategy. It also translates indexes between the decorated view
// and the underlying children slice.
package viewport

import (
	"sort"

	"pagebuilder/internal/domain"
)

// Decorate returns the tree as seen on device. Inputs are never modified.
// Subtrees that decoration leaves unchanged are returned by pointer; every
// node it rebuilds is marked, so decorating an already decorated tree for the
// same device returns it unchanged.
func Decorate(nodes []*domain.PageComponent, editor map[string]domain.EditorFlags, device string) []*domain.PageComponent {
	out, _ := decorateList(nodes, editor, device, domain.StackDefault)
	return out
}

func decorateList(nodes []*domain.PageComponent, editor map[string]domain.EditorFlags, device string, strategy domain.StackStrategy) ([]*domain.PageComponent, bool) {
	changed := false
	out := make([]*domain.PageComponent, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || IsHidden(n, editor, device) {
			changed = true
			continue
		}
		d := decorateNode(n, editor, device)
		if d != n {
			changed = true
		}
		out = append(out, d)
	}
	if sorted := order(out, editor, device, strategy); sorted != nil {
		out = sorted
		changed = true
	}
	if !changed {
		return nodes, false
	}
	return out, true
}

func decorateNode(n *domain.PageComponent, editor map[string]domain.EditorFlags, device string) *domain.PageComponent {
	if !n.IsContainer() || n.DecoratedFor() == device {
		return n
	}
	strategy := editor[n.ID].StackFor(device)
	kids, changed := decorateList(n.Children, editor, device, strategy)
	if !changed {
		return n
	}
	out := n.Clone()
	out.Children = kids
	out.MarkDecorated(device)
	return out
}

// order returns a reordered copy of visible, or nil when the strategy keeps
// document order.
func order(visible []*domain.PageComponent, editor map[string]domain.EditorFlags, device string, strategy domain.StackStrategy) []*domain.PageComponent {
	if len(visible) < 2 {
		return nil
	}
	switch strategy {
	case domain.StackReverse:
		out := make([]*domain.PageComponent, len(visible))
		for i, n := range visible {
			out[len(visible)-1-i] = n
		}
		return out
	case domain.StackCustom:
		out := make([]*domain.PageComponent, len(visible))
		copy(out, visible)
		sort.SliceStable(out, func(i, j int) bool {
			oi, iok := editor[out[i].ID].OrderFor(device)
			oj, jok := editor[out[j].ID].OrderFor(device)
			switch {
			case iok && jok:
				return oi < oj
			case iok:
				return true
			default:
				return false
			}
		})
		for i := range out {
			if out[i] != visible[i] {
				return out
			}
		}
	}
	return nil
}

// IsHidden reports whether n is hidden on device. The editor's device list
// wins; without one the node's own hidden flag applies to every device.
func IsHidden(n *domain.PageComponent, editor map[string]domain.EditorFlags, device string) bool {
	f, ok := editor[n.ID]
	if ok && f.Hidden != nil {
		return f.IsHiddenOn(device)
	}
	return n.Hidden
}

// VisibleChildren filters children hidden on device, keeping document order.
// This is the index space insertion affordances and drop targets count in.
func VisibleChildren(children []*domain.PageComponent, editor map[string]domain.EditorFlags, device string) []*domain.PageComponent {
	out := make([]*domain.PageComponent, 0, len(children))
	for _, c := range children {
		if c != nil && !IsHidden(c, editor, device) {
			out = append(out, c)
		}
	}
	return out
}

// ToUnderlyingIndex maps an insertion index counted in visible back to the
// underlying slice: before visible[ui] when it exists, otherwise append.
func ToUnderlyingIndex(underlying, visible []*domain.PageComponent, ui int) int {
	if ui >= 0 && ui < len(visible) {
		if i := indexOf(underlying, visible[ui].ID); i >= 0 {
			return i
		}
	}
	return len(underlying)
}

// StrategyOf returns how parentID stacks its children on device. The page
// root always keeps document order.
func StrategyOf(editor map[string]domain.EditorFlags, parentID, device string) domain.StackStrategy {
	if parentID == "" {
		return domain.StackDefault
	}
	return editor[parentID].StackFor(device)
}

// InsertIndex maps an insertion index counted in the decorated children of a
// parent stacked with strategy back to the underlying slice. In a reversed
// parent, landing before visible[ui] on screen means landing after it in the
// document, and the end of the visible list is the document position of the
// first visible child. Other strategies use ToUnderlyingIndex: a new node has
// no custom order, so it is placed by document position.
func InsertIndex(underlying, visible []*domain.PageComponent, ui int, strategy domain.StackStrategy) int {
	if strategy != domain.StackReverse || len(visible) == 0 {
		return ToUnderlyingIndex(underlying, visible, ui)
	}
	if ui >= 0 && ui < len(visible) {
		if i := indexOf(underlying, visible[ui].ID); i >= 0 {
			return i + 1
		}
		return len(underlying)
	}
	if i := indexOf(underlying, visible[len(visible)-1].ID); i >= 0 {
		return i
	}
	return len(underlying)
}

// ToVisibleIndex maps an underlying index to the visible index of the first
// visible node at or after it.
func ToVisibleIndex(underlying, visible []*domain.PageComponent, index int) int {
	pos := make(map[string]int, len(visible))
	for i, v := range visible {
		pos[v.ID] = i
	}
	if index < 0 {
		index = 0
	}
	for i := index; i < len(underlying); i++ {
		if vi, ok := pos[underlying[i].ID]; ok {
			return vi
		}
	}
	return len(visible)
}

func indexOf(nodes []*domain.PageComponent, id string) int {
	for i, n := range nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}
