package service_test

import (
	"context"
	"errors"
	"testing"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/service"
	"pagebuilder/internal/storage"
)

func TestManager(t *testing.T) {
	e := newEnv(t)
	m := service.NewManager(e.cfg)

	p, err := m.CreatePage("Home", "home", []*domain.PageComponent{section("A")})
	if err != nil {
		t.Fatal(err)
	}
	s1, err := m.Open(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	s2, _ := m.Open(p.ID)
	if s1 != s2 {
		t.Error("expected one session per page")
	}
	if got := m.OpenIDs(); len(got) != 1 || got[0] != p.ID {
		t.Errorf("unexpected open ids %v", got)
	}
	if _, err := m.Open("missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	s1.Dispatch(history.Add{Components: []*domain.PageComponent{leaf("t", domain.TypeText)}, ParentID: "A"})
	s1.Checkpoint("one")
	m.Close(context.Background())
	if data, _ := e.snapshots.LoadState(p.ID); data == nil {
		t.Error("closing the manager flushes session state")
	}

	if err := m.DeletePage(p.ID); err != nil {
		t.Fatal(err)
	}
	if list, _ := e.snapshots.ListSnapshots(p.ID); len(list) != 0 {
		t.Error("deleting a page clears its checkpoints")
	}
	if _, err := e.pages.GetPage(p.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected page gone, got %v", err)
	}
}

func TestMaintenance(t *testing.T) {
	e := newEnv(t)
	state := domain.NewHistoryState(nil)
	for _, id := range []string{"p1", "p2"} {
		e.page(t, id)
		for i := 0; i < 3; i++ {
			if _, err := e.snapshots.PushSnapshot(id, "auto", state); err != nil {
				t.Fatal(err)
			}
		}
	}

	unbounded := service.NewMaintenance(e.pages, e.snapshots, 0)
	if n, err := unbounded.RunOnce(); err != nil || n != 0 {
		t.Fatalf("keep 0 should prune nothing, got %d (%v)", n, err)
	}
	for _, id := range []string{"p1", "p2"} {
		if list, _ := e.snapshots.ListSnapshots(id); len(list) != 3 {
			t.Errorf("%s: expected 3 checkpoints kept, got %d", id, len(list))
		}
	}

	m := service.NewMaintenance(e.pages, e.snapshots, 1)
	n, err := m.RunOnce()
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected 4 pruned, got %d", n)
	}
	if err := m.Start("not a schedule"); err == nil {
		t.Error("expected invalid cron expression to fail")
	}
	if err := m.Start("@every 1h"); err != nil {
		t.Fatal(err)
	}
	m.Stop()
}
