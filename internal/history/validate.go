package history

import (
	"fmt"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/rules"
	"pagebuilder/internal/tree"
)

// Validate checks an externally supplied state before a session is seeded
// from it. History snapshots only need unique ids and types; the present
// tree must also satisfy placement.
func Validate(s domain.HistoryState, placement rules.Placement) error {
	if s.GridCols < 1 {
		return fmt.Errorf("%w: gridCols %d", ErrInvalidAction, s.GridCols)
	}
	if s.Present == nil {
		return fmt.Errorf("%w: missing present", ErrInvalidAction)
	}
	r := NewReducer(placement)
	seen := map[string]struct{}{}
	for i, c := range s.Present {
		if c == nil {
			return fmt.Errorf("present[%d]: %w: nil component", i, ErrInvalidAction)
		}
		if !placement.CanDropChild(rules.Root, c.Type) {
			return fmt.Errorf("present[%d] %s at root: %w", i, c.Type, ErrDropNotAllowed)
		}
		if err := r.checkSubtree(c, seen); err != nil {
			return fmt.Errorf("present[%d]: %w", i, err)
		}
	}
	for name, snaps := range map[string][][]*domain.PageComponent{"past": s.Past, "future": s.Future} {
		for i, snap := range snaps {
			if err := checkSnapshot(snap); err != nil {
				return fmt.Errorf("%s[%d]: %w", name, i, err)
			}
		}
	}
	return nil
}

func checkSnapshot(nodes []*domain.PageComponent) error {
	seen := map[string]struct{}{}
	var err error
	tree.Walk(nodes, func(n, _ *domain.PageComponent, _ int) bool {
		if n == nil || n.ID == "" || n.Type == "" {
			err = fmt.Errorf("%w: node needs id and type", ErrInvalidAction)
			return false
		}
		if _, dup := seen[n.ID]; dup {
			err = fmt.Errorf("%s: %w", n.ID, ErrDuplicateID)
			return false
		}
		seen[n.ID] = struct{}{}
		return true
	})
	return err
}

// Normalize fills the zero-value gaps a decoded state may have: nil stacks,
// a missing editor map and gridCols of zero.
func Normalize(s domain.HistoryState) domain.HistoryState {
	if s.Past == nil {
		s.Past = [][]*domain.PageComponent{}
	}
	if s.Future == nil {
		s.Future = [][]*domain.PageComponent{}
	}
	if s.Editor == nil {
		s.Editor = map[string]domain.EditorFlags{}
	}
	if s.GridCols == 0 {
		s.GridCols = domain.DefaultGridCols
	}
	return s
}

// Migrate upgrades legacy trees: Section and MultiColumn nodes stored
// without a children list become empty containers.
func Migrate(nodes []*domain.PageComponent) []*domain.PageComponent {
	out := nodes
	copied := false
	for i, n := range nodes {
		next := n
		if (n.Type == domain.TypeSection || n.Type == domain.TypeMultiColumn) && n.Children == nil {
			next = n.Clone()
			next.Children = []*domain.PageComponent{}
		} else if n.IsContainer() {
			if kids := Migrate(n.Children); !sameSlice(kids, n.Children) {
				next = n.Clone()
				next.Children = kids
			}
		}
		if next != n {
			if !copied {
				out = append([]*domain.PageComponent{}, nodes...)
				copied = true
			}
			out[i] = next
		}
	}
	return out
}

func sameSlice(a, b []*domain.PageComponent) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PruneEditor drops editor entries whose node is gone from present and
// from every history snapshot.
func PruneEditor(s domain.HistoryState) domain.HistoryState {
	if len(s.Editor) == 0 {
		return s
	}
	live := usedIDs(s)
	editor := make(map[string]domain.EditorFlags, len(s.Editor))
	for id, f := range s.Editor {
		if _, ok := live[id]; ok {
			editor[id] = f
		}
	}
	s.Editor = editor
	return s
}
