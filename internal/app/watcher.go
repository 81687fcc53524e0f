package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/service"
	"pagebuilder/internal/storage"
)

// Watcher events.
const (
	EventPageExternal    = "page:external-change"
	EventPagesChanged    = "pages:changed"
	EventApprovalPending = "mcp:approval-required"
)

// pageWatcher polls the database for changes made by another process, such
// as a standalone MCP server, and reports them through an emitter: edits
// to the watched page, changes to the page list and new pending approvals.
type pageWatcher struct {
	pages     domain.PageStore
	approvals *storage.ApprovalStore
	emitter   service.EventEmitter
	interval  time.Duration

	mu           sync.Mutex
	pageID       string
	lastPage     string
	lastPageList string
	// approvals already reported, so each is emitted once
	emittedApprovals map[string]bool
}

func newPageWatcher(pages domain.PageStore, approvals *storage.ApprovalStore, emitter service.EventEmitter) *pageWatcher {
	return &pageWatcher{
		pages:            pages,
		approvals:        approvals,
		emitter:          emitter,
		interval:         2 * time.Second,
		emittedApprovals: map[string]bool{},
	}
}

// SetPage switches the watched page. An empty id watches only the page
// list and approvals.
func (w *pageWatcher) SetPage(pageID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pageID = pageID
	w.lastPage = ""
}

// Run polls until ctx ends.
func (w *pageWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.check(ctx)
	for {
		select {
		case <-ticker.C:
			w.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *pageWatcher) check(ctx context.Context) {
	w.mu.Lock()
	pageID := w.pageID
	w.mu.Unlock()

	// ── Watched page revision ───────────────────────────
	var pageFingerprint string
	if pageID != "" {
		if p, err := w.pages.GetPage(pageID); err == nil {
			pageFingerprint = p.Revision + "@" + p.UpdatedAt.UTC().Format(time.RFC3339Nano)
		}
	}

	// ── Page list ───────────────────────────────────────
	var listFingerprint string
	if list, err := w.pages.ListPages(); err == nil {
		var newest time.Time
		for _, p := range list {
			if p.UpdatedAt.After(newest) {
				newest = p.UpdatedAt
			}
		}
		listFingerprint = fmt.Sprintf("%d:%s", len(list), newest.UTC().Format(time.RFC3339Nano))
	}

	w.mu.Lock()
	pageChanged := w.lastPage != "" && pageFingerprint != "" && w.lastPage != pageFingerprint
	listChanged := w.lastPageList != "" && listFingerprint != "" && w.lastPageList != listFingerprint
	if pageFingerprint != "" {
		w.lastPage = pageFingerprint
	}
	if listFingerprint != "" {
		w.lastPageList = listFingerprint
	}
	w.mu.Unlock()

	if pageChanged {
		w.emitter.Emit(ctx, EventPageExternal, map[string]string{"pageId": pageID})
	}
	if listChanged {
		w.emitter.Emit(ctx, EventPagesChanged, nil)
	}

	// ── Pending approvals ───────────────────────────────
	pending, err := w.approvals.ListPending()
	if err != nil {
		return
	}
	live := make(map[string]bool, len(pending))
	for _, p := range pending {
		live[p.ID] = true
		w.mu.Lock()
		sent := w.emittedApprovals[p.ID]
		w.emittedApprovals[p.ID] = true
		w.mu.Unlock()
		if !sent {
			w.emitter.Emit(ctx, EventApprovalPending, p)
		}
	}
	// Resolved approvals are deleted by the requesting server.
	w.mu.Lock()
	for id := range w.emittedApprovals {
		if !live[id] {
			delete(w.emittedApprovals, id)
		}
	}
	w.mu.Unlock()
}
