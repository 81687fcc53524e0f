// Package dnd is the pointer-driven drag-and-drop controller. It samples the
// pointer once per frame, resolves the drop target against live geometry
// and turns an accepted drop into exactly one reducer action.
package dnd

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/rules"
	"pagebuilder/internal/tree"
	"pagebuilder/internal/viewport"
)

var (
	ErrNotDragging  = errors.New("no drag in progress")
	ErrAlreadyDrag  = errors.New("drag already in progress")
	ErrNoTarget     = errors.New("pointer is not over a drop target")
	ErrDropRejected = errors.New("drop not allowed here")
	ErrBadSource    = errors.New("invalid drag source")
	ErrLocked       = errors.New("node is locked")
)

type State int

const (
	Idle State = iota
	Dragging
	Dropping
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Dropping:
		return "dropping"
	case Cancelled:
		return "cancelled"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

type Origin string

const (
	FromCanvas  Origin = "canvas"
	FromPalette Origin = "palette"
	FromLibrary Origin = "library"
)

// Source describes what is being dragged: an existing node (ID), a palette
// type, or one or more library templates.
type Source struct {
	From      Origin
	ID        string
	Type      domain.ComponentType
	Templates []*domain.PageComponent
}

func (s Source) validate() error {
	switch s.From {
	case FromCanvas:
		if s.ID == "" {
			return fmt.Errorf("%w: canvas drag without id", ErrBadSource)
		}
	case FromPalette:
		if s.Type == "" {
			return fmt.Errorf("%w: palette drag without type", ErrBadSource)
		}
	case FromLibrary:
		if len(s.Templates) == 0 {
			return fmt.Errorf("%w: library drag without templates", ErrBadSource)
		}
	default:
		return fmt.Errorf("%w: origin %q", ErrBadSource, s.From)
	}
	return nil
}

// Measurer reads live layout geometry. Every method reports ok=false when
// the element is not rendered or not measurable yet.
type Measurer interface {
	CanvasRect() (Rect, bool)
	ScrollRect() (Rect, bool)
	ContainerRect(id string) (Rect, bool)
	ItemRect(id string) (Rect, bool)
}

type Scroller interface {
	ScrollBy(dx, dy float64)
}

type Dispatcher interface {
	Dispatch(a history.Action) error
}

// View is the document as the controller needs to see it for one frame.
type View struct {
	Components []*domain.PageComponent
	Editor     map[string]domain.EditorFlags
	Device     string
	GridCols   int
	Zoom       float64
	Snap       bool
}

type Document interface {
	View() View
}

// Target is the resolved drop location for the current frame. Index counts
// visible children of ParentID in decorated order.
type Target struct {
	ParentID string
	Index    int
	Allowed  bool
	SlotKey  string
	// SnapX is the pointer's canvas x rounded to a column boundary, when a
	// grid is active and the canvas could be measured.
	SnapX *float64
	// Offset is the pointer position relative to the target container, set
	// for containers whose children are positioned by coordinates.
	Offset *Point
}

type Config struct {
	Placement  rules.Placement
	Registry   *rules.Registry
	Measurer   Measurer
	Scroller   Scroller
	Dispatcher Dispatcher
	Document   Document
	NewID      func() string
	EdgePx     float64
	MaxSpeedPx float64
	// OnState observes every state transition.
	OnState func(State)
}

type tabHover struct {
	parentID string
	tab      int
}

// Controller runs one drag at a time. It is driven from a single UI loop and
// is not safe for concurrent use.
type Controller struct {
	cfg Config

	state   State
	source  Source
	pointer Point
	dirty   bool
	target  *Target
	hover   *tabHover
	frames  int
}

func NewController(cfg Config) *Controller {
	if cfg.Placement == nil {
		cfg.Placement = rules.DefaultTable()
	}
	if cfg.Registry == nil {
		cfg.Registry = rules.DefaultRegistry()
	}
	if cfg.NewID == nil {
		cfg.NewID = tree.NewID
	}
	if cfg.EdgePx <= 0 {
		cfg.EdgePx = AutoscrollEdge
	}
	if cfg.MaxSpeedPx <= 0 {
		cfg.MaxSpeedPx = AutoscrollMaxSpeed
	}
	return &Controller{cfg: cfg}
}

func (c *Controller) State() State { return c.state }

// Target returns the drop target resolved by the last frame, or nil.
func (c *Controller) Target() *Target {
	if c.target == nil {
		return nil
	}
	t := *c.target
	return &t
}

// Frames reports how many frames recomputed the target during this drag.
func (c *Controller) Frames() int { return c.frames }

func (c *Controller) setState(s State) {
	c.state = s
	if c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

func (c *Controller) Start(src Source, at Point) error {
	if c.state != Idle {
		return ErrAlreadyDrag
	}
	if err := src.validate(); err != nil {
		return err
	}
	if src.From == FromCanvas {
		v := c.cfg.Document.View()
		n := tree.Find(v.Components, src.ID)
		if n == nil {
			return fmt.Errorf("%w: %s is not in the tree", ErrBadSource, src.ID)
		}
		if n.Locked || (v.Editor[src.ID].Locked != nil && *v.Editor[src.ID].Locked) {
			return fmt.Errorf("%w: %s", ErrLocked, src.ID)
		}
	}
	c.source = src
	c.pointer = at
	c.dirty = true
	c.target = nil
	c.hover = nil
	c.frames = 0
	c.setState(Dragging)
	return nil
}

// PointerMoved records the latest pointer sample. Work happens in Frame.
func (c *Controller) PointerMoved(p Point) {
	if c.state != Dragging {
		return
	}
	c.pointer = p
	c.dirty = true
}

// HoverSlot records that the pointer is over tab header tab of parentID, so a
// drop there lands in that tab's slot.
func (c *Controller) HoverSlot(parentID string, tab int) {
	if c.state != Dragging || tab < 0 {
		return
	}
	c.hover = &tabHover{parentID: parentID, tab: tab}
	if c.target != nil {
		c.target.SlotKey = c.slotFor(c.target.ParentID, c.cfg.Document.View().Components)
	}
}

// Frame recomputes the drop target from the latest pointer sample. Calls
// without a new sample since the previous frame do nothing.
func (c *Controller) Frame() {
	if c.state != Dragging || !c.dirty {
		return
	}
	c.dirty = false
	c.frames++

	view := c.cfg.Document.View()
	p := c.pointer

	var snapX *float64
	if canvas, ok := c.cfg.Measurer.CanvasRect(); ok && view.Snap && view.GridCols > 0 {
		zoom := view.Zoom
		if zoom <= 0 {
			zoom = 1
		}
		cp := ScreenToCanvas(p, canvas, zoom)
		x := SnapToColumn(cp.X, canvas.W/zoom, view.GridCols)
		snapX = &x
	}
	c.autoscroll(p)

	decorated := viewport.Decorate(view.Components, view.Editor, view.Device)
	parentID, found := c.hitContainer(decorated, p)
	if !found {
		c.target = nil
		return
	}
	kids := decorated
	kind := rules.Root
	if parentID != "" {
		parent := tree.Find(decorated, parentID)
		kids = parent.Children
		kind = parent.Type
	}
	t := &Target{
		ParentID: parentID,
		Index:    c.insertionIndex(kids, kind, p),
		Allowed:  c.dropAllowed(kind, view.Components),
		SlotKey:  c.slotFor(parentID, view.Components),
		SnapX:    snapX,
	}
	if parentID != "" && c.cfg.Registry.IsAbsolute(kind) {
		if r, ok := c.cfg.Measurer.ContainerRect(parentID); ok {
			zoom := view.Zoom
			if zoom <= 0 {
				zoom = 1
			}
			off := ScreenToCanvas(p, r, zoom)
			if snapX != nil {
				if canvas, ok := c.cfg.Measurer.CanvasRect(); ok {
					off.X = *snapX - (r.X-canvas.X)/zoom
				}
			}
			t.Offset = &off
		}
	}
	c.target = t
}

func (c *Controller) autoscroll(p Point) {
	if c.cfg.Scroller == nil {
		return
	}
	sc, ok := c.cfg.Measurer.ScrollRect()
	if !ok {
		return
	}
	if dx, dy := AutoscrollDelta(sc, p, c.cfg.EdgePx, c.cfg.MaxSpeedPx); dx != 0 || dy != 0 {
		c.cfg.Scroller.ScrollBy(dx, dy)
	}
}

// hitContainer finds the innermost container under p. The page root counts
// when p lies on the canvas. A dragged node and its descendants are never
// targets.
func (c *Controller) hitContainer(nodes []*domain.PageComponent, p Point) (string, bool) {
	best, bestDepth := "", -1
	if canvas, ok := c.cfg.Measurer.CanvasRect(); ok && canvas.Contains(p) {
		bestDepth = 0
	}
	var visit func(list []*domain.PageComponent, depth int)
	visit = func(list []*domain.PageComponent, depth int) {
		for _, n := range list {
			if !n.IsContainer() {
				continue
			}
			if c.source.From == FromCanvas && n.ID == c.source.ID {
				continue
			}
			r, ok := c.cfg.Measurer.ContainerRect(n.ID)
			if ok && r.Contains(p) && depth > bestDepth {
				best, bestDepth = n.ID, depth
			}
			visit(n.Children, depth+1)
		}
	}
	visit(nodes, 1)
	return best, bestDepth >= 0
}

// insertionIndex compares p with the midpoint of each measurable child along
// the container's axis. A pointer exactly on a midpoint inserts before that
// child.
func (c *Controller) insertionIndex(kids []*domain.PageComponent, kind rules.ParentKind, p Point) int {
	axis := rules.AxisVertical
	if kind != rules.Root {
		axis = c.cfg.Registry.AxisOf(kind)
	}
	for i, k := range kids {
		r, ok := c.cfg.Measurer.ItemRect(k.ID)
		if !ok {
			continue
		}
		mid := r.Center()
		if axis == rules.AxisHorizontal {
			if p.X <= mid.X {
				return i
			}
		} else if p.Y <= mid.Y {
			return i
		}
	}
	return len(kids)
}

func (c *Controller) dropAllowed(kind rules.ParentKind, present []*domain.PageComponent) bool {
	switch c.source.From {
	case FromPalette:
		return c.cfg.Placement.CanDropChild(kind, c.source.Type)
	case FromLibrary:
		for _, t := range c.source.Templates {
			if t == nil || !c.cfg.Placement.CanDropChild(kind, t.Type) {
				return false
			}
		}
		return true
	case FromCanvas:
		n := tree.Find(present, c.source.ID)
		return n != nil && c.cfg.Placement.CanDropChild(kind, n.Type)
	}
	return false
}

func (c *Controller) slotFor(parentID string, present []*domain.PageComponent) string {
	if parentID == "" || c.hover == nil || c.hover.parentID != parentID {
		return ""
	}
	p := tree.Find(present, parentID)
	if p == nil || c.cfg.Registry.LayoutOf(p.Type) != rules.LayoutTabs {
		return ""
	}
	return strconv.Itoa(c.hover.tab)
}

// Cancel abandons the drag without dispatching anything.
func (c *Controller) Cancel() {
	if c.state != Dragging {
		return
	}
	c.setState(Cancelled)
	c.reset()
}

// HandleKey cancels an active drag on Escape and reports whether the key was
// consumed.
func (c *Controller) HandleKey(key string) bool {
	if key == "Escape" && c.state == Dragging {
		c.Cancel()
		return true
	}
	return false
}

func (c *Controller) reset() {
	c.source = Source{}
	c.target = nil
	c.hover = nil
	c.dirty = false
	c.setState(Idle)
}

// Drop resolves the final frame and dispatches the resulting add or move.
// A drop outside any target, or onto a disallowed one, cancels the drag.
func (c *Controller) Drop() (history.Action, error) {
	if c.state != Dragging {
		return nil, ErrNotDragging
	}
	c.Frame()
	t := c.target
	if t == nil {
		c.Cancel()
		return nil, ErrNoTarget
	}
	if !t.Allowed {
		c.Cancel()
		return nil, fmt.Errorf("%w: %s into %s", ErrDropRejected, c.describe(), kindName(t.ParentID))
	}
	c.setState(Dropping)
	defer c.reset()

	a, err := c.action(*t)
	if err != nil {
		return nil, err
	}
	if err := c.cfg.Dispatcher.Dispatch(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (c *Controller) describe() string {
	switch c.source.From {
	case FromCanvas:
		return c.source.ID
	case FromPalette:
		return string(c.source.Type)
	}
	return fmt.Sprintf("%d templates", len(c.source.Templates))
}

func kindName(parentID string) string {
	if parentID == "" {
		return "page root"
	}
	return parentID
}

func (c *Controller) action(t Target) (history.Action, error) {
	view := c.cfg.Document.View()
	underlying, ok := tree.ChildrenOf(view.Components, t.ParentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTarget, t.ParentID)
	}
	decorated := viewport.Decorate(view.Components, view.Editor, view.Device)
	visible, _ := tree.ChildrenOf(decorated, t.ParentID)
	strategy := viewport.StrategyOf(view.Editor, t.ParentID, view.Device)
	index := viewport.InsertIndex(underlying, visible, t.Index, strategy)

	switch c.source.From {
	case FromPalette:
		n, err := c.cfg.Registry.NewComponent(c.source.Type, c.cfg.NewID())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadSource, err)
		}
		c.place(n, t)
		return history.Add{Components: []*domain.PageComponent{n}, ParentID: t.ParentID, Index: index}, nil
	case FromLibrary:
		clones := make([]*domain.PageComponent, 0, len(c.source.Templates))
		for _, tpl := range c.source.Templates {
			clone, _ := tree.CloneWithIDs(tpl, c.cfg.NewID)
			c.place(clone, t)
			clones = append(clones, clone)
		}
		return history.Add{Components: clones, ParentID: t.ParentID, Index: index}, nil
	default:
		from, ok := tree.Locate(view.Components, c.source.ID)
		if !ok {
			return nil, fmt.Errorf("%w: %s left the tree", ErrBadSource, c.source.ID)
		}
		to := index
		if from.ParentID == t.ParentID && from.Index < index {
			to--
		}
		mv := history.Move{From: from, To: tree.Location{ParentID: t.ParentID, Index: to}}
		if t.SlotKey != "" {
			slot := t.SlotKey
			mv.SlotKey = &slot
		}
		return mv, nil
	}
}

// place stamps slot and coordinates onto a node the drop creates.
func (c *Controller) place(n *domain.PageComponent, t Target) {
	if t.SlotKey != "" {
		n.SlotKey = t.SlotKey
	}
	if t.Offset != nil {
		n.SetProp("position", "absolute")
		n.SetProp("left", px(t.Offset.X))
		n.SetProp("top", px(t.Offset.Y))
	}
}

func px(v float64) string {
	return strconv.Itoa(int(math.Round(math.Max(0, v)))) + "px"
}
