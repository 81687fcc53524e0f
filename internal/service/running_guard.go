package service

import (
	"context"
	"sync"
)

// ExportedSaveGuard is an exported alias so _test packages can test the guard.
type ExportedSaveGuard = saveGuard

// ─────────────────────────────────────────────────────────────
// saveGuard allows one outbound save per page at a time.
// ─────────────────────────────────────────────────────────────

// saveGuard ensures a page is never published by two saves at once. A save
// that finds the page busy is refused rather than queued.
type saveGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock marks pageID as saving. It returns false if a save is in flight.
func (g *saveGuard) TryLock(pageID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[pageID]; ok {
		return false
	}
	g.running[pageID] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock ends the save. Must be called after TryLock returns true.
func (g *saveGuard) Unlock(pageID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, pageID)
	g.wg.Done()
}

// Busy reports whether pageID has a save in flight.
func (g *saveGuard) Busy(pageID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[pageID]
	return ok
}

// WaitAll blocks until in-flight saves complete or ctx is cancelled.
func (g *saveGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
