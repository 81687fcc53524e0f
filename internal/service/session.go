package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bep/debounce"

	"pagebuilder/internal/dnd"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/publish"
	"pagebuilder/internal/rules"
	"pagebuilder/internal/tree"
	"pagebuilder/internal/viewport"
)

var (
	ErrSaveInProgress     = errors.New("save already in progress")
	ErrSessionClosed      = errors.New("session closed")
	ErrTooManyBreakpoints = fmt.Errorf("at most %d custom breakpoints", domain.MaxCustomBreakpoints)
)

const DefaultAutosaveDelay = 500 * time.Millisecond

// SessionConfig carries the collaborators shared by every session.
type SessionConfig struct {
	Placement     rules.Placement
	Registry      *rules.Registry
	Reducer       *history.Reducer
	Pages         domain.PageStore
	Snapshots     domain.SnapshotStore
	Publisher     publish.Publisher
	Emitter       EventEmitter
	AutosaveDelay time.Duration
	// SnapshotKeep bounds checkpoints per page. Zero keeps all.
	SnapshotKeep int
	// GridCols is the column count for pages seeded fresh.
	GridCols int
	// GridSnap turns on column snapping for drags.
	GridSnap bool
	// AutoscrollEdge and AutoscrollSpeed override the drag autoscroll band
	// and its peak speed in px. Zero keeps the dnd defaults.
	AutoscrollEdge  float64
	AutoscrollSpeed float64
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Placement == nil {
		c.Placement = rules.DefaultTable()
	}
	if c.Registry == nil {
		c.Registry = rules.DefaultRegistry()
	}
	if c.Reducer == nil {
		c.Reducer = history.NewReducer(c.Placement)
	}
	if c.Publisher == nil {
		c.Publisher = publish.Nop{}
	}
	if c.Emitter == nil {
		c.Emitter = NopEmitter{}
	}
	if c.AutosaveDelay <= 0 {
		c.AutosaveDelay = DefaultAutosaveDelay
	}
	return c
}

// Change is the payload of page:changed.
type Change struct {
	PageID   string       `json:"pageId"`
	Action   history.Kind `json:"action"`
	Revision string       `json:"revision"`
	CanUndo  bool         `json:"canUndo"`
	CanRedo  bool         `json:"canRedo"`
	Message  string       `json:"message,omitempty"`
}

// Rejection is the payload of page:rejected.
type Rejection struct {
	PageID string       `json:"pageId"`
	Action history.Kind `json:"action"`
	Reason string       `json:"reason"`
}

var announcements = map[history.Kind]string{
	history.KindAdd:       "Block added",
	history.KindMove:      "Block moved",
	history.KindResize:    "Block resized",
	history.KindDuplicate: "Block duplicated",
	history.KindRemove:    "Block deleted",
}

// EditorSession owns the HistoryState of one open page. Every change goes
// through Dispatch; persistence and publishing observe committed state only.
type EditorSession struct {
	cfg    SessionConfig
	pageID string

	mu       sync.Mutex
	page     domain.Page
	state    domain.HistoryState
	source   SeedSource
	selected []string
	device   string
	preview  bool
	dirty    bool
	closed   bool
	drag     *dnd.Controller

	autosave func(func())
	saves    saveGuard
}

// NewEditorSession seeds a session for page from the stored state, the
// page's own history or its components, in that order.
func NewEditorSession(page *domain.Page, cfg SessionConfig) *EditorSession {
	cfg = cfg.withDefaults()
	var stored []byte
	if cfg.Snapshots != nil {
		var err error
		if stored, err = cfg.Snapshots.LoadState(page.ID); err != nil {
			log.Printf("[SESSION] load stored state for %s: %v", page.ID, err)
		}
	}
	state, src := Seed(page, stored, cfg.Placement)
	if src == SeedFresh && cfg.GridCols > 0 {
		state.GridCols = cfg.GridCols
	}
	log.Printf("[SESSION] page %s seeded from %s state", page.ID, src)

	header := *page
	header.Components, header.History = nil, nil
	return &EditorSession{
		cfg:      cfg,
		pageID:   page.ID,
		page:     header,
		state:    state,
		source:   src,
		device:   domain.DeviceDesktop,
		autosave: debounce.New(cfg.AutosaveDelay),
	}
}

func (s *EditorSession) PageID() string { return s.pageID }

func (s *EditorSession) Source() SeedSource { return s.source }

// State returns the committed state. Trees are shared and must not be
// mutated.
func (s *EditorSession) State() domain.HistoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *EditorSession) Present() []*domain.PageComponent {
	return s.State().Present
}

func (s *EditorSession) emit(event string, data any) {
	s.cfg.Emitter.Emit(context.Background(), event, data)
}

// Dispatch applies a through the reducer. A rejected action leaves the state
// untouched, is announced as page:rejected and returned as the error.
func (s *EditorSession) Dispatch(a history.Action) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	next, err := s.cfg.Reducer.Apply(s.state, a)
	if err != nil {
		s.mu.Unlock()
		kind := history.Kind("")
		if a != nil {
			kind = a.Kind()
		}
		log.Printf("[SESSION] %s: %s rejected: %v", s.pageID, kind, err)
		s.emit(EventPageRejected, Rejection{PageID: s.pageID, Action: kind, Reason: err.Error()})
		return err
	}
	s.state = next
	s.dirty = true
	s.selected = liveIDs(next.Present, s.selected)
	s.mu.Unlock()

	rev, _ := domain.Revision(next.Present)
	s.emit(EventPageChanged, Change{
		PageID:   s.pageID,
		Action:   a.Kind(),
		Revision: rev,
		CanUndo:  next.CanUndo(),
		CanRedo:  next.CanRedo(),
		Message:  announcements[a.Kind()],
	})
	s.autosave(func() {
		if err := s.Flush(); err != nil {
			log.Printf("autosave: %v", err)
		}
	})
	return nil
}

// Flush writes the committed state to the snapshot store if it changed
// since the last write.
func (s *EditorSession) Flush() error {
	if s.cfg.Snapshots == nil {
		return nil
	}
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	state := s.state
	s.dirty = false
	s.mu.Unlock()

	if err := s.cfg.Snapshots.SaveState(s.pageID, history.PruneEditor(state)); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return fmt.Errorf("persist %s: %w", s.pageID, err)
	}
	return nil
}

// Close flushes pending state and refuses further dispatches.
func (s *EditorSession) Close() error {
	err := s.Flush()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

func liveIDs(present []*domain.PageComponent, ids []string) []string {
	if len(ids) == 0 {
		return ids
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if tree.Find(present, id) != nil {
			out = append(out, id)
		}
	}
	return out
}

// ── Selection & viewport ──────────────────────────────────

// Select replaces the selection. Unknown ids are dropped.
func (s *EditorSession) Select(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = liveIDs(s.state.Present, ids)
}

func (s *EditorSession) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.selected...)
}

func (s *EditorSession) SetDevice(device string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = device
}

func (s *EditorSession) Device() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// RotateDevice steps through the built-in devices, dir > 0 forwards.
func (s *EditorSession) RotateDevice(dir int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(domain.BuiltinDevices)
	i := 0
	for j, d := range domain.BuiltinDevices {
		if d == s.device {
			i = j
		}
	}
	step := 1
	if dir < 0 {
		step = n - 1
	}
	s.device = domain.BuiltinDevices[(i+step)%n]
	return s.device
}

func (s *EditorSession) Preview() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

// Decorated returns the present tree as visible on the current device.
func (s *EditorSession) Decorated() []*domain.PageComponent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return viewport.Decorate(s.state.Present, s.state.Editor, s.device)
}

// View implements dnd.Document.
func (s *EditorSession) View() dnd.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dnd.View{
		Components: s.state.Present,
		Editor:     s.state.Editor,
		Device:     s.device,
		GridCols:   s.state.GridCols,
		Zoom:       1,
		Snap:       s.cfg.GridSnap,
	}
}

// AttachDrag wires a drag controller so Escape can cancel it.
func (s *EditorSession) AttachDrag(c *dnd.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drag = c
}

// NewDragController builds a controller dispatching into this session.
func (s *EditorSession) NewDragController(m dnd.Measurer, sc dnd.Scroller) *dnd.Controller {
	c := dnd.NewController(dnd.Config{
		Placement:  s.cfg.Placement,
		Registry:   s.cfg.Registry,
		Measurer:   m,
		Scroller:   sc,
		Dispatcher: s,
		Document:   s,
		NewID:      tree.NewID,
		EdgePx:     s.cfg.AutoscrollEdge,
		MaxSpeedPx: s.cfg.AutoscrollSpeed,
	})
	s.AttachDrag(c)
	return c
}

// ── Discrete commands ─────────────────────────────────────

// Insert adds a palette node of type t and selects it.
func (s *EditorSession) Insert(parentID string, index int, t domain.ComponentType) (string, error) {
	n, err := s.cfg.Registry.NewComponent(t, tree.NewID())
	if err != nil {
		return "", err
	}
	if err := s.Dispatch(history.Add{Components: []*domain.PageComponent{n}, ParentID: parentID, Index: index}); err != nil {
		return "", err
	}
	s.Select(n.ID)
	return n.ID, nil
}

// SetBreakpoints replaces the custom breakpoints, capped at
// domain.MaxCustomBreakpoints.
func (s *EditorSession) SetBreakpoints(bps []domain.Breakpoint) error {
	custom := 0
	for _, bp := range bps {
		builtin := false
		for _, d := range domain.BuiltinDevices {
			builtin = builtin || bp.ID == d
		}
		if !builtin {
			custom++
		}
	}
	if custom > domain.MaxCustomBreakpoints {
		return fmt.Errorf("%w: got %d", ErrTooManyBreakpoints, custom)
	}
	return s.Dispatch(history.SetBreakpoints{Breakpoints: bps})
}

// ── Checkpoints & save ────────────────────────────────────

// Checkpoint stores a labelled snapshot of the committed state.
func (s *EditorSession) Checkpoint(label string) (*domain.Snapshot, error) {
	if s.cfg.Snapshots == nil {
		return nil, errors.New("no snapshot store configured")
	}
	snap, err := s.cfg.Snapshots.PushSnapshot(s.pageID, label, history.PruneEditor(s.State()))
	if err != nil {
		return nil, err
	}
	if s.cfg.SnapshotKeep > 0 {
		if _, err := s.cfg.Snapshots.Prune(s.pageID, s.cfg.SnapshotKeep); err != nil {
			log.Printf("[SESSION] prune snapshots for %s: %v", s.pageID, err)
		}
	}
	return snap, nil
}

// Restore brings back a checkpoint's tree as a regular, undoable edit.
func (s *EditorSession) Restore(snapshotID string) error {
	if s.cfg.Snapshots == nil {
		return errors.New("no snapshot store configured")
	}
	snap, err := s.cfg.Snapshots.GetSnapshot(snapshotID)
	if err != nil {
		return err
	}
	if snap.PageID != s.pageID {
		return fmt.Errorf("snapshot %s belongs to page %s", snapshotID, snap.PageID)
	}
	restored, src := Seed(&domain.Page{ID: s.pageID}, []byte(snap.StateJSON), s.cfg.Placement)
	if src != SeedStored {
		return fmt.Errorf("snapshot %s is not a valid state", snapshotID)
	}
	if err := s.Dispatch(history.Set{Components: restored.Present}); err != nil {
		return err
	}
	if restored.GridCols != s.State().GridCols {
		return s.Dispatch(history.SetGridCols{GridCols: restored.GridCols})
	}
	return nil
}

// Save publishes the present tree with its revision id and records it on
// the page. Only one save per page runs at a time.
func (s *EditorSession) Save(ctx context.Context) (string, error) {
	if !s.saves.TryLock(s.pageID) {
		return "", ErrSaveInProgress
	}
	defer s.saves.Unlock(s.pageID)

	s.mu.Lock()
	state := s.state
	page := s.page
	s.mu.Unlock()

	rev, err := domain.Revision(state.Present)
	if err != nil {
		return "", err
	}
	err = s.cfg.Publisher.Publish(ctx, domain.PublishedRevision{
		PageID:      s.pageID,
		Slug:        page.Slug,
		Title:       page.Title,
		Revision:    rev,
		Components:  state.Present,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", s.pageID, err)
	}

	if s.cfg.Pages != nil {
		pruned := history.PruneEditor(state)
		page.Components = state.Present
		page.History = &pruned
		if err := s.cfg.Pages.UpdatePage(&page); err != nil {
			return "", fmt.Errorf("save page %s: %w", s.pageID, err)
		}
	}
	log.Printf("[SESSION] saved page %s at revision %s", s.pageID, rev)
	s.emit(EventPageSaved, map[string]string{"pageId": s.pageID, "revision": rev})
	return rev, nil
}

// WaitSaves blocks until in-flight saves finish or ctx is done.
func (s *EditorSession) WaitSaves(ctx context.Context) {
	s.saves.WaitAll(ctx)
}
