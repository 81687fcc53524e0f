package service_test

import (
	"context"
	"testing"
	"time"

	"pagebuilder/internal/service"
)

// ─────────────────────────────────────────────────────────────
// saveGuard tests
// ─────────────────────────────────────────────────────────────

func TestSaveGuard_TryLock(t *testing.T) {
	var g service.ExportedSaveGuard

	if !g.TryLock("page-1") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("page-1") {
		t.Fatal("expected second TryLock for same page to fail")
	}
	if !g.Busy("page-1") || g.Busy("page-2") {
		t.Fatal("unexpected busy state")
	}
	if !g.TryLock("page-2") {
		t.Fatal("expected TryLock for different page to succeed")
	}
	g.Unlock("page-1")
	g.Unlock("page-2")

	if !g.TryLock("page-1") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("page-1")
}

func TestSaveGuard_WaitAll(t *testing.T) {
	var g service.ExportedSaveGuard

	if !g.TryLock("page-a") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("page-a")
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "page:changed", map[string]string{"pageId": "p1"})
	m.Emit(ctx, "page:rejected", nil)
	m.Emit(ctx, "page:changed", nil)

	if len(m.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(m.Events))
	}
	if got := m.Named("page:changed"); len(got) != 2 {
		t.Errorf("expected 2 page:changed events, got %d", len(got))
	}
	if m.Events[len(m.Events)-1].Event != "page:changed" {
		t.Errorf("expected last event 'page:changed', got %q", m.Events[len(m.Events)-1].Event)
	}
}
