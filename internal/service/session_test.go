package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/publish"
	"pagebuilder/internal/rules"
	"pagebuilder/internal/service"
	"pagebuilder/internal/storage"
	"pagebuilder/internal/tree"
)

type env struct {
	pages     *storage.PageStore
	snapshots *storage.SnapshotStore
	emitter   *service.MockEmitter
	published *publish.Memory
	cfg       service.SessionConfig
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "pages.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	e := &env{
		pages:     storage.NewPageStore(db),
		snapshots: storage.NewSnapshotStore(db),
		emitter:   &service.MockEmitter{},
		published: publish.NewMemory(),
	}
	e.cfg = service.SessionConfig{
		Pages:         e.pages,
		Snapshots:     e.snapshots,
		Publisher:     e.published,
		Emitter:       e.emitter,
		AutosaveDelay: time.Hour,
		SnapshotKeep:  2,
	}
	return e
}

func section(id string, kids ...*domain.PageComponent) *domain.PageComponent {
	if kids == nil {
		kids = []*domain.PageComponent{}
	}
	return &domain.PageComponent{ID: id, Type: domain.TypeSection, Children: kids}
}

func leaf(id string, typ domain.ComponentType) *domain.PageComponent {
	return &domain.PageComponent{ID: id, Type: typ}
}

func (e *env) page(t *testing.T, id string, comps ...*domain.PageComponent) *domain.Page {
	t.Helper()
	p := &domain.Page{ID: id, Slug: id, Title: "Page " + id, Components: comps}
	if err := e.pages.CreatePage(p); err != nil {
		t.Fatal(err)
	}
	return p
}

func ids(nodes []*domain.PageComponent) string {
	s := ""
	for _, n := range nodes {
		s += n.ID
	}
	return s
}

func TestSeed(t *testing.T) {
	placement := rules.DefaultTable()
	page := &domain.Page{ID: "p", Components: []*domain.PageComponent{{ID: "legacy", Type: domain.TypeSection}}}

	s, src := service.Seed(page, nil, placement)
	if src != service.SeedFresh || len(s.Past) != 0 || s.GridCols != domain.DefaultGridCols {
		t.Fatalf("expected fresh seed, got %s %+v", src, s)
	}
	if s.Present[0].Children == nil {
		t.Error("legacy section should be migrated to an empty container")
	}

	server := domain.NewHistoryState([]*domain.PageComponent{section("srv")})
	server.Past = [][]*domain.PageComponent{{}}
	page.History = &server
	s, src = service.Seed(page, []byte(`{not json`), placement)
	if src != service.SeedServer || s.Present[0].ID != "srv" || len(s.Past) != 1 {
		t.Errorf("corrupt stored state should fall back to server history, got %s", src)
	}

	stored, _ := json.Marshal(domain.NewHistoryState([]*domain.PageComponent{section("local")}))
	s, src = service.Seed(page, stored, placement)
	if src != service.SeedStored || s.Present[0].ID != "local" {
		t.Errorf("expected stored state to win, got %s", src)
	}

	bad := domain.NewHistoryState([]*domain.PageComponent{section("dup"), section("dup")})
	page.History = &bad
	s, src = service.Seed(page, nil, placement)
	if src != service.SeedFresh || s.Present[0].ID != "legacy" || len(s.Past) != 0 {
		t.Errorf("invalid server history must not be partially applied, got %s %s", src, ids(s.Present))
	}

	atomAtRoot, _ := json.Marshal(domain.NewHistoryState([]*domain.PageComponent{leaf("b", domain.TypeButton)}))
	if _, src = service.Seed(page, atomAtRoot, placement); src == service.SeedStored {
		t.Error("stored state violating placement must be rejected")
	}
}

func TestDispatch_EmitsAndRejects(t *testing.T) {
	e := newEnv(t)
	s := service.NewEditorSession(e.page(t, "p1", section("A")), e.cfg)

	if err := s.Dispatch(history.Add{Components: []*domain.PageComponent{leaf("btn", domain.TypeButton)}, ParentID: "A"}); err != nil {
		t.Fatal(err)
	}
	changed := e.emitter.Named(service.EventPageChanged)
	if len(changed) != 1 {
		t.Fatalf("expected one page:changed, got %d", len(changed))
	}
	c := changed[0].Data.(service.Change)
	if c.Action != history.KindAdd || !c.CanUndo || c.CanRedo || c.Message != "Block added" || c.Revision == "" {
		t.Errorf("unexpected change %+v", c)
	}

	before := s.State()
	err := s.Dispatch(history.Add{Components: []*domain.PageComponent{leaf("b2", domain.TypeButton)}})
	if !errors.Is(err, history.ErrDropNotAllowed) {
		t.Fatalf("expected ErrDropNotAllowed, got %v", err)
	}
	if ids(s.Present()) != ids(before.Present) || len(s.State().Past) != len(before.Past) {
		t.Error("rejected action must leave state untouched")
	}
	rejected := e.emitter.Named(service.EventPageRejected)
	if len(rejected) != 1 || rejected[0].Data.(service.Rejection).Action != history.KindAdd {
		t.Errorf("expected a page:rejected signal, got %+v", rejected)
	}
}

func TestFlushAndReseed(t *testing.T) {
	e := newEnv(t)
	page := e.page(t, "p1", section("A"))
	s := service.NewEditorSession(page, e.cfg)
	if s.Source() != service.SeedFresh {
		t.Fatalf("expected fresh seed, got %s", s.Source())
	}
	s.Dispatch(history.Add{Components: []*domain.PageComponent{leaf("t", domain.TypeText)}, ParentID: "A"})
	s.Dispatch(history.UpdateEditor{ID: "ghost", Patch: domain.EditorPatch{Name: ptr("orphan")}})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Dispatch(history.Undo{}); !errors.Is(err, service.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}

	again := service.NewEditorSession(page, e.cfg)
	if again.Source() != service.SeedStored {
		t.Fatalf("expected stored seed, got %s", again.Source())
	}
	st := again.State()
	if len(st.Past) != 1 || ids(st.Present[0].Children) != "t" {
		t.Errorf("unexpected reseeded state %+v", st)
	}
	if _, ok := st.Editor["ghost"]; ok {
		t.Error("orphaned editor entries are pruned before persisting")
	}
}

func ptr[T any](v T) *T { return &v }

type countingSnapshots struct {
	domain.SnapshotStore
	mu    sync.Mutex
	saves int
	last  domain.HistoryState
}

func (c *countingSnapshots) SaveState(pageID string, s domain.HistoryState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	c.last = s
	return nil
}

func (c *countingSnapshots) LoadState(string) ([]byte, error) { return nil, nil }

func (c *countingSnapshots) snapshot() (int, domain.HistoryState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves, c.last
}

func TestAutosave_Debounced(t *testing.T) {
	snaps := &countingSnapshots{}
	s := service.NewEditorSession(&domain.Page{ID: "p", Components: []*domain.PageComponent{section("A")}}, service.SessionConfig{
		Snapshots:     snaps,
		AutosaveDelay: 20 * time.Millisecond,
	})
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Dispatch(history.Add{Components: []*domain.PageComponent{leaf(id, domain.TypeText)}, ParentID: "A", Index: 99}); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, last := snaps.snapshot()
		if n > 0 && len(last.Present) == 1 && ids(last.Present[0].Children) == "abc" {
			if n > 2 {
				t.Errorf("expected the burst to collapse, got %d writes", n)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("autosave never observed the committed state (%d writes)", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandleKey_UndoRedoAndTextInput(t *testing.T) {
	e := newEnv(t)
	s := service.NewEditorSession(e.page(t, "p1", section("A")), e.cfg)
	ctx := context.Background()
	s.Dispatch(history.Add{Components: []*domain.PageComponent{leaf("t", domain.TypeText)}, ParentID: "A"})

	if handled, _ := s.HandleKey(ctx, service.KeyEvent{Key: "z", Ctrl: true, InTextInput: true}); handled {
		t.Fatal("shortcuts must not fire inside text inputs")
	}
	if len(s.Present()[0].Children) != 1 {
		t.Fatal("state changed while typing")
	}
	if handled, err := s.HandleKey(ctx, service.KeyEvent{Key: "z", Meta: true}); !handled || err != nil {
		t.Fatalf("expected undo, got %v %v", handled, err)
	}
	if len(s.Present()[0].Children) != 0 {
		t.Error("expected undo to remove the text")
	}
	s.HandleKey(ctx, service.KeyEvent{Key: "Y", Ctrl: true})
	if len(s.Present()[0].Children) != 1 {
		t.Error("expected redo to restore the text")
	}
	if handled, _ := s.HandleKey(ctx, service.KeyEvent{Key: "z"}); handled {
		t.Error("plain z is not a shortcut")
	}
}

func TestHandleKey_Reorder(t *testing.T) {
	e := newEnv(t)
	s := service.NewEditorSession(e.page(t, "p1", section("A", leaf("a", domain.TypeText), leaf("b", domain.TypeText), leaf("c", domain.TypeText))), e.cfg)
	ctx := context.Background()

	s.Select("a")
	if handled, err := s.HandleKey(ctx, service.KeyEvent{Key: "ArrowDown", Alt: true, Shift: true}); !handled || err != nil {
		t.Fatalf("expected reorder, got %v %v", handled, err)
	}
	if got := ids(s.Present()[0].Children); got != "bac" {
		t.Errorf("expected bac, got %s", got)
	}
	s.Select("b")
	if handled, _ := s.HandleKey(ctx, service.KeyEvent{Key: "ArrowUp", Alt: true, Shift: true}); handled {
		t.Error("first child cannot move up")
	}
	s.Select("a", "c")
	if handled, _ := s.HandleKey(ctx, service.KeyEvent{Key: "ArrowUp", Alt: true, Shift: true}); handled {
		t.Error("reorder needs exactly one selected node")
	}
}

func TestHandleKey_Nudge(t *testing.T) {
	e := newEnv(t)
	abs := &domain.PageComponent{ID: "img", Type: domain.TypeText, Props: map[string]any{"position": "absolute", "leftDesktop": "10px", "top": "5px"}}
	locked := &domain.PageComponent{ID: "lk", Type: domain.TypeText, Props: map[string]any{"position": "absolute"}}
	flow := leaf("flow", domain.TypeText)
	s := service.NewEditorSession(e.page(t, "p1", &domain.PageComponent{ID: "C", Type: domain.TypeCanvas, Children: []*domain.PageComponent{abs, locked, flow}}), e.cfg)
	s.Dispatch(history.UpdateEditor{ID: "lk", Patch: domain.EditorPatch{Locked: ptr(true)}})
	ctx := context.Background()

	s.Select("img", "lk", "flow")
	if handled, err := s.HandleKey(ctx, service.KeyEvent{Key: "ArrowRight", Shift: true}); !handled || err != nil {
		t.Fatalf("expected nudge, got %v %v", handled, err)
	}
	s.HandleKey(ctx, service.KeyEvent{Key: "ArrowUp"})
	s.HandleKey(ctx, service.KeyEvent{Key: "ArrowLeft", Alt: true, CanvasWidth: 1200})

	present := s.Present()
	img := tree.Find(present, "img")
	if got := img.StringProp("leftDesktop"); got != "-80px" {
		t.Errorf("expected 10+10-100 = -80px, got %s", got)
	}
	if got := img.StringProp("topDesktop"); got != "4px" {
		t.Errorf("expected top to start from the base value, got %s", got)
	}
	if _, ok := tree.Find(present, "lk").Prop("leftDesktop"); ok {
		t.Error("locked nodes are not nudged")
	}
	if _, ok := tree.Find(present, "flow").Prop("leftDesktop"); ok {
		t.Error("flow nodes are not nudged")
	}

	s.SetDevice(domain.DeviceMobile)
	s.HandleKey(ctx, service.KeyEvent{Key: "ArrowDown"})
	if got := tree.Find(s.Present(), "img").StringProp("topMobile"); got != "6px" {
		t.Errorf("expected device field topMobile=6px, got %s", got)
	}

	s.Select()
	if handled, _ := s.HandleKey(ctx, service.KeyEvent{Key: "ArrowDown"}); handled {
		t.Error("arrows without a selection are left to the page")
	}
}

func TestHandleKey_ZOrder(t *testing.T) {
	e := newEnv(t)
	s := service.NewEditorSession(e.page(t, "p1", section("A", leaf("a", domain.TypeText))), e.cfg)
	ctx := context.Background()
	pastLen := len(s.State().Past)

	s.Select("a")
	z := func() int { return s.State().Flags("a").ZIndexOr(-1) }
	s.HandleKey(ctx, service.KeyEvent{Key: "[", Ctrl: true})
	if z() != 0 {
		t.Errorf("send backward floors at 0, got %d", z())
	}
	s.HandleKey(ctx, service.KeyEvent{Key: "]", Ctrl: true})
	s.HandleKey(ctx, service.KeyEvent{Key: "]", Ctrl: true})
	if z() != 2 {
		t.Errorf("expected 2, got %d", z())
	}
	s.HandleKey(ctx, service.KeyEvent{Key: "]", Ctrl: true, Shift: true})
	if z() != 999 {
		t.Errorf("expected bring to front, got %d", z())
	}
	s.HandleKey(ctx, service.KeyEvent{Key: "[", Meta: true, Shift: true})
	if z() != 0 {
		t.Errorf("expected send to back, got %d", z())
	}
	if len(s.State().Past) != pastLen {
		t.Error("z-order edits are not undoable")
	}

	s.Select()
	s.HandleKey(ctx, service.KeyEvent{Key: "]", Ctrl: true, Shift: true})
	if s.Device() != domain.DeviceTablet {
		t.Errorf("expected rotation to tablet, got %s", s.Device())
	}
	s.HandleKey(ctx, service.KeyEvent{Key: "[", Ctrl: true, Shift: true})
	s.HandleKey(ctx, service.KeyEvent{Key: "[", Ctrl: true, Shift: true})
	if s.Device() != domain.DeviceMobile {
		t.Errorf("expected rotation back past desktop to mobile, got %s", s.Device())
	}

	s.HandleKey(ctx, service.KeyEvent{Key: "p", Ctrl: true})
	if !s.Preview() {
		t.Error("expected preview toggled on")
	}
}

func TestSetBreakpoints_Cap(t *testing.T) {
	e := newEnv(t)
	s := service.NewEditorSession(e.page(t, "p1"), e.cfg)
	bps := []domain.Breakpoint{{ID: domain.DeviceDesktop, Label: "Desktop"}}
	for _, id := range []string{"xl", "lg", "md", "sm"} {
		bps = append(bps, domain.Breakpoint{ID: id, Label: id})
	}
	if err := s.SetBreakpoints(bps); err != nil {
		t.Fatalf("four custom breakpoints are allowed: %v", err)
	}
	if err := s.SetBreakpoints(append(bps, domain.Breakpoint{ID: "xs"})); !errors.Is(err, service.ErrTooManyBreakpoints) {
		t.Errorf("expected ErrTooManyBreakpoints, got %v", err)
	}
	if got := len(s.State().Breakpoints); got != 5 {
		t.Errorf("expected the accepted list to stay, got %d", got)
	}
}

func TestInsert(t *testing.T) {
	e := newEnv(t)
	s := service.NewEditorSession(e.page(t, "p1", section("A")), e.cfg)
	id, err := s.Insert("A", 0, domain.TypeButton)
	if err != nil {
		t.Fatal(err)
	}
	if n := tree.Find(s.Present(), id); n == nil || n.Type != domain.TypeButton {
		t.Fatalf("expected inserted button, got %+v", n)
	}
	if sel := s.Selected(); len(sel) != 1 || sel[0] != id {
		t.Errorf("expected the new node selected, got %v", sel)
	}
	if _, err := s.Insert("", 0, domain.TypeButton); !errors.Is(err, history.ErrDropNotAllowed) {
		t.Errorf("expected rejection at root, got %v", err)
	}
}

func TestSave(t *testing.T) {
	e := newEnv(t)
	s := service.NewEditorSession(e.page(t, "p1", section("A")), e.cfg)
	s.Dispatch(history.Add{Components: []*domain.PageComponent{leaf("t", domain.TypeText)}, ParentID: "A"})

	rev, err := s.Save(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want, _ := domain.Revision(s.Present())
	if rev != want {
		t.Errorf("expected content revision %s, got %s", want, rev)
	}
	pub, ok := e.published.Latest("p1")
	if !ok || pub.Revision != rev || pub.Slug != "p1" {
		t.Errorf("unexpected published revision %+v", pub)
	}
	stored, _ := e.pages.GetPage("p1")
	if stored.Revision != rev || stored.History == nil || len(stored.History.Past) != 1 {
		t.Errorf("expected page to carry saved tree and history, got %+v", stored)
	}
	if len(e.emitter.Named(service.EventPageSaved)) != 1 {
		t.Error("expected page:saved")
	}

	s.Save(context.Background())
	if e.published.Writes() != 1 {
		t.Errorf("saving an unchanged tree publishes nothing new, got %d writes", e.published.Writes())
	}
}

func TestCheckpointRestore(t *testing.T) {
	e := newEnv(t)
	s := service.NewEditorSession(e.page(t, "p1", section("A")), e.cfg)
	s.Dispatch(history.Add{Components: []*domain.PageComponent{leaf("t", domain.TypeText)}, ParentID: "A"})
	snap, err := s.Checkpoint("with text")
	if err != nil {
		t.Fatal(err)
	}
	s.Dispatch(history.Remove{ID: "A"})
	if len(s.Present()) != 0 {
		t.Fatal("expected empty page")
	}

	if err := s.Restore(snap.ID); err != nil {
		t.Fatal(err)
	}
	if tree.Find(s.Present(), "t") == nil {
		t.Error("expected checkpoint tree restored")
	}
	s.Dispatch(history.Undo{})
	if len(s.Present()) != 0 {
		t.Error("restore is an undoable edit")
	}

	s.Checkpoint("two")
	s.Checkpoint("three")
	if list, _ := e.snapshots.ListSnapshots("p1"); len(list) != 2 {
		t.Errorf("expected retention of 2 checkpoints, got %d", len(list))
	}

	other := service.NewEditorSession(e.page(t, "p2"), e.cfg)
	list, _ := e.snapshots.ListSnapshots("p1")
	if err := other.Restore(list[0].ID); err == nil {
		t.Error("restoring another page's checkpoint must fail")
	}
}
