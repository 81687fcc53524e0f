package service_test

import (
	"errors"
	"testing"

	"pagebuilder/internal/dnd"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/service"
	"pagebuilder/internal/tree"
)

func TestGroupUngroup(t *testing.T) {
	e := newEnv(t)
	s := newSession(t, e, section("A",
		leaf("x", domain.TypeText), leaf("y", domain.TypeText), leaf("z", domain.TypeText),
	))

	gid, err := s.Group([]string{"z", "x"}, domain.TypeStackFlex)
	if err != nil {
		t.Fatal(err)
	}
	a := tree.Find(s.Present(), "A")
	if len(a.Children) != 2 || a.Children[0].ID != gid || a.Children[1].ID != "y" {
		t.Fatalf("expected group in place of x followed by y, got %s", ids(a.Children))
	}
	if got := ids(a.Children[0].Children); got != "xz" {
		t.Errorf("group should keep document order, got %s", got)
	}
	if len(s.State().Past) != 1 {
		t.Errorf("grouping is one history step, got %d", len(s.State().Past))
	}
	if sel := s.Selected(); len(sel) != 1 || sel[0] != gid {
		t.Errorf("expected group selected, got %v", sel)
	}

	kids, err := s.Ungroup(gid)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(tree.Find(s.Present(), "A").Children); got != "xzy" {
		t.Errorf("ungroup should splice children in place, got %s", got)
	}
	if len(kids) != 2 || kids[0] != "x" || kids[1] != "z" {
		t.Errorf("expected children selected, got %v", kids)
	}

	if err := s.Dispatch(history.Undo{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Dispatch(history.Undo{}); err != nil {
		t.Fatal(err)
	}
	if got := ids(tree.Find(s.Present(), "A").Children); got != "xyz" {
		t.Errorf("two undos restore the original order, got %s", got)
	}
}

func TestGroup_Slots(t *testing.T) {
	e := newEnv(t)
	s := newSession(t, e, tabs("T", slotted("a", "1"), slotted("b", "1"), slotted("c", "0")))

	gid, err := s.Group([]string{"a", "b"}, domain.TypeStackFlex)
	if err != nil {
		t.Fatal(err)
	}
	g := tree.Find(s.Present(), gid)
	if g.SlotKey != "1" {
		t.Errorf("group should take the slot of its first member, got %q", g.SlotKey)
	}
	if g.Children[0].SlotKey != "" {
		t.Errorf("grouped nodes leave the tab slot, got %q", g.Children[0].SlotKey)
	}

	if _, err := s.Ungroup(gid); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b"} {
		if n := tree.Find(s.Present(), id); n.SlotKey != "1" {
			t.Errorf("%s should return to slot 1, got %q", id, n.SlotKey)
		}
	}
}

func TestGroup_Rejections(t *testing.T) {
	e := newEnv(t)
	s := newSession(t, e,
		section("A", leaf("x", domain.TypeText), leaf("y", domain.TypeText)),
		section("B", leaf("w", domain.TypeText)),
	)

	tests := []struct {
		name string
		ids  []string
		typ  domain.ComponentType
		want error
	}{
		{"empty", nil, domain.TypeStackFlex, history.ErrInvalidAction},
		{"missing", []string{"x", "nope"}, domain.TypeStackFlex, history.ErrNodeNotFound},
		{"different parents", []string{"x", "w"}, domain.TypeStackFlex, service.ErrNotSiblings},
		{"leaf type", []string{"x"}, domain.TypeButton, service.ErrNotContainer},
		{"placement", []string{"x", "y"}, domain.TypeDataset, history.ErrDropNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Group(tt.ids, tt.typ); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(s.State().Past) != 0 {
		t.Error("rejected groupings must not touch history")
	}

	if _, err := s.Ungroup("x"); !errors.Is(err, service.ErrNotContainer) {
		t.Errorf("ungrouping a leaf: expected ErrNotContainer, got %v", err)
	}

	if err := s.Dispatch(history.UpdateEditor{ID: "y", Patch: domain.EditorPatch{Locked: ptr(true)}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Group([]string{"x", "y"}, domain.TypeStackFlex); !errors.Is(err, dnd.ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}
}
