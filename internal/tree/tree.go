// Package tree holds structural helpers over a page's component tree.
//
// Every mutating helper copies the path from the root to the change and
// shares all other subtrees with its input. Inputs are never modified.
package tree

import (
	"github.com/oklog/ulid/v2"

	"pagebuilder/internal/domain"
)

// Location addresses a slot in a parent's children. An empty ParentID is
// the page root.
type Location struct {
	ParentID string `json:"parentId,omitempty"`
	Index    int    `json:"index"`
}

// NewID mints a fresh node id.
func NewID() string {
	return ulid.Make().String()
}

// Walk visits nodes depth-first in document order. Returning false from fn
// stops the walk.
func Walk(nodes []*domain.PageComponent, fn func(n, parent *domain.PageComponent, depth int) bool) {
	walk(nodes, nil, 0, fn)
}

func walk(nodes []*domain.PageComponent, parent *domain.PageComponent, depth int, fn func(n, parent *domain.PageComponent, depth int) bool) bool {
	for _, n := range nodes {
		if !fn(n, parent, depth) {
			return false
		}
		if !walk(n.Children, n, depth+1, fn) {
			return false
		}
	}
	return true
}

// Find returns the node with id, or nil.
func Find(nodes []*domain.PageComponent, id string) *domain.PageComponent {
	var found *domain.PageComponent
	Walk(nodes, func(n, _ *domain.PageComponent, _ int) bool {
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Locate returns the parent id and index of the node with id.
func Locate(nodes []*domain.PageComponent, id string) (Location, bool) {
	var loc Location
	ok := false
	Walk(nodes, func(n, parent *domain.PageComponent, _ int) bool {
		if n.ID != id {
			return true
		}
		list := nodes
		if parent != nil {
			loc.ParentID = parent.ID
			list = parent.Children
		}
		for i, c := range list {
			if c == n {
				loc.Index = i
				break
			}
		}
		ok = true
		return false
	})
	return loc, ok
}

// ChildrenOf returns the children list addressed by parentID. The second
// result is false when the parent is missing or not a container.
func ChildrenOf(nodes []*domain.PageComponent, parentID string) ([]*domain.PageComponent, bool) {
	if parentID == "" {
		return nodes, true
	}
	p := Find(nodes, parentID)
	if p == nil || !p.IsContainer() {
		return nil, false
	}
	return p.Children, true
}

// Contains reports whether id is node itself or one of its descendants.
func Contains(node *domain.PageComponent, id string) bool {
	if node.ID == id {
		return true
	}
	return Find(node.Children, id) != nil
}

// CollectIDs returns every id in the forest.
func CollectIDs(nodes []*domain.PageComponent) map[string]struct{} {
	ids := map[string]struct{}{}
	Walk(nodes, func(n, _ *domain.PageComponent, _ int) bool {
		ids[n.ID] = struct{}{}
		return true
	})
	return ids
}

// MaxDepth returns the deepest nesting level, 0 for root-only forests and -1
// for an empty one.
func MaxDepth(nodes []*domain.PageComponent) int {
	max := -1
	Walk(nodes, func(_, _ *domain.PageComponent, d int) bool {
		if d > max {
			max = d
		}
		return true
	})
	return max
}

// ClampIndex bounds index into [0, n]. Anything past the end appends.
func ClampIndex(index, n int) int {
	if index < 0 {
		return 0
	}
	if index > n {
		return n
	}
	return index
}

// InsertAt inserts items into the children of parentID at index (clamped).
func InsertAt(nodes []*domain.PageComponent, parentID string, index int, items ...*domain.PageComponent) ([]*domain.PageComponent, bool) {
	return updateChildren(nodes, parentID, func(list []*domain.PageComponent) ([]*domain.PageComponent, bool) {
		at := ClampIndex(index, len(list))
		out := make([]*domain.PageComponent, 0, len(list)+len(items))
		out = append(out, list[:at]...)
		out = append(out, items...)
		out = append(out, list[at:]...)
		return out, true
	})
}

// RemoveAt detaches the child at index from parentID and returns it.
func RemoveAt(nodes []*domain.PageComponent, parentID string, index int) ([]*domain.PageComponent, *domain.PageComponent, bool) {
	var removed *domain.PageComponent
	out, ok := updateChildren(nodes, parentID, func(list []*domain.PageComponent) ([]*domain.PageComponent, bool) {
		if index < 0 || index >= len(list) {
			return nil, false
		}
		removed = list[index]
		next := make([]*domain.PageComponent, 0, len(list)-1)
		next = append(next, list[:index]...)
		next = append(next, list[index+1:]...)
		return next, true
	})
	return out, removed, ok
}

// Replace swaps the node with id for fn(node). fn receives a private copy
// it may modify.
func Replace(nodes []*domain.PageComponent, id string, fn func(*domain.PageComponent) *domain.PageComponent) ([]*domain.PageComponent, bool) {
	for i, n := range nodes {
		if n.ID == id {
			return replaceAt(nodes, i, fn(n.Clone())), true
		}
		if n.IsContainer() {
			if kids, ok := Replace(n.Children, id, fn); ok {
				c := n.Clone()
				c.Children = kids
				return replaceAt(nodes, i, c), true
			}
		}
	}
	return nodes, false
}

// CloneWithIDs deep-copies node giving every copied node a fresh id from
// newID. The returned map goes from old id to new id.
func CloneWithIDs(node *domain.PageComponent, newID func() string) (*domain.PageComponent, map[string]string) {
	ids := map[string]string{}
	return cloneWithIDs(node, newID, ids), ids
}

func cloneWithIDs(node *domain.PageComponent, newID func() string, ids map[string]string) *domain.PageComponent {
	c := node.Clone()
	c.ID = newID()
	ids[node.ID] = c.ID
	for i, child := range c.Children {
		c.Children[i] = cloneWithIDs(child, newID, ids)
	}
	return c
}

func updateChildren(nodes []*domain.PageComponent, parentID string, fn func([]*domain.PageComponent) ([]*domain.PageComponent, bool)) ([]*domain.PageComponent, bool) {
	if parentID == "" {
		return fn(nodes)
	}
	for i, n := range nodes {
		if n.ID == parentID {
			if !n.IsContainer() {
				return nodes, false
			}
			kids, ok := fn(n.Children)
			if !ok {
				return nodes, false
			}
			c := n.Clone()
			c.Children = kids
			return replaceAt(nodes, i, c), true
		}
		if n.IsContainer() {
			if kids, ok := updateChildren(n.Children, parentID, fn); ok {
				c := n.Clone()
				c.Children = kids
				return replaceAt(nodes, i, c), true
			}
		}
	}
	return nodes, false
}

func replaceAt(nodes []*domain.PageComponent, i int, n *domain.PageComponent) []*domain.PageComponent {
	out := make([]*domain.PageComponent, len(nodes))
	copy(out, nodes)
	out[i] = n
	return out
}
