package service_test

import (
	"testing"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/service"
	"pagebuilder/internal/tree"
)

func tabs(id string, kids ...*domain.PageComponent) *domain.PageComponent {
	return &domain.PageComponent{ID: id, Type: domain.TypeTabs, Children: kids,
		Props: map[string]any{"tabs": []any{"One", "Two"}}}
}

func slotted(id, slot string) *domain.PageComponent {
	return &domain.PageComponent{ID: id, Type: domain.TypeText, SlotKey: slot}
}

func TestChildrenPlan_Tabs(t *testing.T) {
	e := newEnv(t)
	s := newTabsSession(t, e)

	plan, err := s.ChildrenPlan("T")
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Sections) != 2 || plan.Sections[1].Title != "Two" {
		t.Fatalf("expected two panels, got %+v", plan.Sections)
	}
	if _, err := s.ChildrenPlan("missing"); err == nil {
		t.Error("expected unknown parent to fail")
	}
	if _, err := s.ChildrenPlan("a"); err == nil {
		t.Error("expected a leaf to fail")
	}
}

func newSession(t *testing.T, e *env, comps ...*domain.PageComponent) *service.EditorSession {
	t.Helper()
	return service.NewEditorSession(e.page(t, "p1", comps...), e.cfg)
}

func newTabsSession(t *testing.T, e *env) *service.EditorSession {
	t.Helper()
	return newSession(t, e, tabs("T", slotted("a", "0"), slotted("b", "1")))
}

func TestMoveToSlot(t *testing.T) {
	e := newEnv(t)
	s := newTabsSession(t, e)

	if err := s.MoveToSlot("T", "a", "1"); err != nil {
		t.Fatal(err)
	}
	kids, _ := tree.ChildrenOf(s.Present(), "T")
	if ids(kids) != "ba" {
		t.Errorf("expected a moved after b, got %s", ids(kids))
	}
	if n := tree.Find(s.Present(), "a"); n.SlotKey != "1" {
		t.Errorf("expected slotKey 1, got %q", n.SlotKey)
	}
	if err := s.MoveToSlot("T", "a", "7"); err == nil {
		t.Error("expected unknown slot to fail")
	}
}

func TestInsertInto_StampsSlot(t *testing.T) {
	e := newEnv(t)
	s := newTabsSession(t, e)

	id, err := s.InsertInto("T", "1", 2, domain.TypeButton)
	if err != nil {
		t.Fatal(err)
	}
	n := tree.Find(s.Present(), id)
	if n == nil || n.SlotKey != "1" {
		t.Fatalf("expected new node in slot 1, got %+v", n)
	}
	kids, _ := tree.ChildrenOf(s.Present(), "T")
	if kids[2].ID != id {
		t.Errorf("expected the node appended, got %s", ids(kids))
	}
}

func TestAssignArea(t *testing.T) {
	e := newEnv(t)
	grid := &domain.PageComponent{ID: "G", Type: domain.TypeGrid,
		Props:    map[string]any{"areas": `"hero side"`},
		Children: []*domain.PageComponent{leaf("b", domain.TypeButton)}}
	s := newSession(t, e, grid)

	if err := s.AssignArea("G", "b", "side"); err != nil {
		t.Fatal(err)
	}
	if got := tree.Find(s.Present(), "b").StringProp("gridArea"); got != "side" {
		t.Errorf("expected gridArea side, got %q", got)
	}
	plan, err := s.ChildrenPlan("G")
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Areas) != 2 || plan.Sections[0].Entries[0].Area != "side" {
		t.Errorf("unexpected grid plan %+v", plan)
	}
	if err := s.AssignArea("G", "b", "footer"); err == nil {
		t.Error("expected unknown area to fail")
	}
	if err := s.AssignArea("G", "zzz", "side"); err == nil {
		t.Error("expected a non-child to fail")
	}
	if err := s.AssignArea("G", "b", ""); err != nil {
		t.Fatal(err)
	}
	if _, ok := tree.Find(s.Present(), "b").Props["gridArea"]; ok {
		t.Error("expected empty area to clear the prop")
	}
	if !s.State().CanUndo() {
		t.Error("area assignment should be undoable")
	}
	if err := s.Dispatch(history.Undo{}); err != nil {
		t.Fatal(err)
	}
	if got := tree.Find(s.Present(), "b").StringProp("gridArea"); got != "side" {
		t.Errorf("undo should restore side, got %q", got)
	}
}
