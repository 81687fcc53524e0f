package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"pagebuilder/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "data", "pages.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func samplePage(id string) *domain.Page {
	return &domain.Page{
		ID:    id,
		Slug:  "home-" + id,
		Title: "Home",
		Components: []*domain.PageComponent{
			{ID: "s1", Type: domain.TypeSection, Children: []*domain.PageComponent{
				{ID: "t1", Type: domain.TypeText, Props: map[string]any{"text": "hello"}},
			}},
		},
	}
}

func TestMigrateTwice(t *testing.T) {
	db := openTestDB(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate should be a no-op, got %v", err)
	}
}

func TestPageStoreCRUD(t *testing.T) {
	store := NewPageStore(openTestDB(t))

	p := samplePage("p1")
	if err := store.CreatePage(p); err != nil {
		t.Fatal(err)
	}
	if p.Revision == "" {
		t.Error("expected revision to be computed on create")
	}

	got, err := store.GetPage("p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Slug != "home-p1" || len(got.Components) != 1 || got.Components[0].Children[0].StringProp("text") != "hello" {
		t.Errorf("unexpected page %+v", got)
	}
	if got.Revision != p.Revision {
		t.Errorf("revision mismatch %s vs %s", got.Revision, p.Revision)
	}
	if got.History != nil {
		t.Error("page without server history should load History as nil")
	}

	rev := p.Revision
	p.Title = "Landing"
	p.Components[0].Children = append(p.Components[0].Children, &domain.PageComponent{ID: "b1", Type: domain.TypeButton})
	hs := domain.NewHistoryState(p.Components)
	p.History = &hs
	if err := store.UpdatePage(p); err != nil {
		t.Fatal(err)
	}
	if p.Revision == rev {
		t.Error("expected revision to change with the tree")
	}
	got, _ = store.GetPage("p1")
	if got.Title != "Landing" || got.History == nil || len(got.History.Present) != 1 {
		t.Errorf("unexpected page after update %+v", got)
	}

	pages, err := store.ListPages()
	if err != nil || len(pages) != 1 || pages[0].Components != nil {
		t.Errorf("expected one header without components, got %+v (%v)", pages, err)
	}

	if err := store.DeletePage("p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetPage("p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.UpdatePage(samplePage("ghost")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on update, got %v", err)
	}
}

func TestPageStore_DuplicateSlug(t *testing.T) {
	store := NewPageStore(openTestDB(t))
	a, b := samplePage("a"), samplePage("b")
	b.Slug = a.Slug
	if err := store.CreatePage(a); err != nil {
		t.Fatal(err)
	}
	if err := store.CreatePage(b); err == nil {
		t.Error("expected unique slug violation")
	}
}

func TestSnapshotStore_State(t *testing.T) {
	store := NewSnapshotStore(openTestDB(t))

	data, err := store.LoadState("p1")
	if err != nil || data != nil {
		t.Fatalf("expected no state, got %s (%v)", data, err)
	}

	s := domain.NewHistoryState(samplePage("p1").Components)
	s.GridCols = 6
	if err := store.SaveState("p1", s); err != nil {
		t.Fatal(err)
	}
	s.GridCols = 8
	if err := store.SaveState("p1", s); err != nil {
		t.Fatal(err)
	}
	data, err = store.LoadState("p1")
	if err != nil {
		t.Fatal(err)
	}
	if want := `"gridCols":8`; !strings.Contains(string(data), want) {
		t.Errorf("expected latest state, got %s", data)
	}
}

func TestSnapshotStore_Checkpoints(t *testing.T) {
	store := NewSnapshotStore(openTestDB(t))
	s := domain.NewHistoryState(samplePage("p1").Components)

	var ids []string
	for _, label := range []string{"one", "two", "three"} {
		snap, err := store.PushSnapshot("p1", label, s)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, snap.ID)
	}
	if _, err := store.PushSnapshot("p2", "other", s); err != nil {
		t.Fatal(err)
	}

	list, err := store.ListSnapshots("p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Label != "three" || list[0].StateJSON != "" {
		t.Errorf("expected newest first without state, got %+v", list)
	}

	got, err := store.GetSnapshot(ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if got.Label != "one" || got.StateJSON == "" || got.Revision == "" {
		t.Errorf("unexpected snapshot %+v", got)
	}

	if n, err := store.Prune("p1", 0); err != nil || n != 0 {
		t.Errorf("keep 0 is unbounded, got %d pruned (%v)", n, err)
	}
	if list, _ := store.ListSnapshots("p1"); len(list) != 3 {
		t.Errorf("keep 0 must not remove checkpoints, %d left", len(list))
	}

	n, err := store.Prune("p1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 pruned, got %d", n)
	}
	list, _ = store.ListSnapshots("p1")
	if len(list) != 1 || list[0].ID != ids[2] {
		t.Errorf("expected newest checkpoint kept, got %+v", list)
	}
	if other, _ := store.ListSnapshots("p2"); len(other) != 1 {
		t.Error("prune must not touch other pages")
	}

	if err := store.ClearPage("p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetSnapshot(ids[2]); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestApprovalStore(t *testing.T) {
	db := openTestDB(t)
	store := NewApprovalStore(db)
	if _, err := db.Conn().Exec(`INSERT INTO mcp_approvals (id, tool, description) VALUES ('a1', 'remove_component', 'Remove hero')`); err != nil {
		t.Fatal(err)
	}

	pending, err := store.ListPending()
	if err != nil || len(pending) != 1 || pending[0].Tool != "remove_component" || pending[0].Metadata != "{}" {
		t.Fatalf("unexpected pending %+v (%v)", pending, err)
	}
	if err := store.Resolve("a1", true); err != nil {
		t.Fatal(err)
	}
	var status string
	db.Conn().QueryRow(`SELECT status FROM mcp_approvals WHERE id = 'a1'`).Scan(&status)
	if status != "approved" {
		t.Errorf("expected approved, got %s", status)
	}
	if err := store.Resolve("a1", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("resolved approvals cannot be resolved again, got %v", err)
	}
}
