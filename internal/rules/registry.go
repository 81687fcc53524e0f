package rules

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"pagebuilder/internal/domain"
)

// LayoutKind selects how a container renders its children.
type LayoutKind string

const (
	LayoutList     LayoutKind = "list"
	LayoutGridArea LayoutKind = "grid-area"
	LayoutTabs     LayoutKind = "tabs"
)

// Axis is the main direction a list container lays out its children.
type Axis string

const (
	AxisVertical   Axis = "vertical"
	AxisHorizontal Axis = "horizontal"
)

// Definition describes one registered component type.
type Definition struct {
	Type      domain.ComponentType `yaml:"type" json:"type"`
	Label     string               `yaml:"label" json:"label"`
	Container bool                 `yaml:"container" json:"container"`
	Layout    LayoutKind           `yaml:"layout,omitempty" json:"layout,omitempty"`
	Axis      Axis                 `yaml:"axis,omitempty" json:"axis,omitempty"`
	Absolute  bool                 `yaml:"absolute,omitempty" json:"absolute,omitempty"`
	Defaults  map[string]any       `yaml:"defaults,omitempty" json:"defaults,omitempty"`
}

// Registry is the closed vocabulary of component types.
type Registry struct {
	defs map[domain.ComponentType]Definition
}

func (r *Registry) Register(d Definition) {
	if d.Container && d.Layout == "" {
		d.Layout = LayoutList
	}
	if d.Container && d.Axis == "" {
		d.Axis = AxisVertical
	}
	r.defs[d.Type] = d
}

func (r *Registry) Lookup(t domain.ComponentType) (Definition, bool) {
	d, ok := r.defs[t]
	return d, ok
}

func (r *Registry) IsContainer(t domain.ComponentType) bool {
	return r.defs[t].Container
}

// Types returns every registered type, sorted.
func (r *Registry) Types() []domain.ComponentType {
	out := make([]domain.ComponentType, 0, len(r.defs))
	for t := range r.defs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LayoutOf returns the children layout for a container type.
func (r *Registry) LayoutOf(t domain.ComponentType) LayoutKind {
	if d, ok := r.defs[t]; ok && d.Layout != "" {
		return d.Layout
	}
	return LayoutList
}

func (r *Registry) AxisOf(t domain.ComponentType) Axis {
	if d, ok := r.defs[t]; ok && d.Axis != "" {
		return d.Axis
	}
	return AxisVertical
}

// IsAbsolute reports whether children of t are positioned by coordinates
// rather than by list order.
func (r *Registry) IsAbsolute(t domain.ComponentType) bool {
	return r.defs[t].Absolute
}

// NewComponent builds a palette node of type t: registered defaults plus an
// empty children list for containers.
func (r *Registry) NewComponent(t domain.ComponentType, id string) (*domain.PageComponent, error) {
	d, ok := r.defs[t]
	if !ok {
		return nil, fmt.Errorf("unknown component type %q", t)
	}
	c := &domain.PageComponent{ID: id, Type: t}
	for k, v := range d.Defaults {
		if err := c.SetField(k, v); err != nil {
			return nil, fmt.Errorf("default %s.%s: %w", t, k, err)
		}
	}
	if d.Container {
		c.Children = []*domain.PageComponent{}
	}
	return c, nil
}

// DefaultRegistry returns the built-in palette.
func DefaultRegistry() *Registry {
	r := &Registry{defs: map[domain.ComponentType]Definition{}}
	for _, t := range layoutContainers {
		r.Register(Definition{Type: t, Label: string(t), Container: true})
	}
	r.Register(Definition{Type: domain.TypeStackFlex, Label: "Stack", Container: true, Axis: AxisHorizontal,
		Defaults: map[string]any{"gap": "1rem"}})
	r.Register(Definition{Type: domain.TypeMultiColumn, Label: "Columns", Container: true, Axis: AxisHorizontal,
		Defaults: map[string]any{"columns": float64(2)}})
	r.Register(Definition{Type: domain.TypeGrid, Label: "Grid", Container: true, Layout: LayoutGridArea,
		Defaults: map[string]any{"areas": "\"a b\""}})
	r.Register(Definition{Type: domain.TypeSection, Label: "Section", Container: true,
		Defaults: map[string]any{"padding": "1rem"}})
	r.Register(Definition{Type: domain.TypeCanvas, Label: "Free canvas", Container: true, Absolute: true,
		Defaults: map[string]any{"position": "relative"}})
	r.Register(Definition{Type: domain.TypeCarouselContainer, Label: "Carousel", Container: true, Axis: AxisHorizontal})
	r.Register(Definition{Type: domain.TypeTabs, Label: "Tabs", Container: true, Layout: LayoutTabs,
		Defaults: map[string]any{"tabs": []any{"Tab 1", "Tab 2"}}})
	r.Register(Definition{Type: domain.TypeTabsAccordionContainer, Label: "Accordion", Container: true, Layout: LayoutTabs,
		Defaults: map[string]any{"mode": "accordion", "tabs": []any{"Panel 1", "Panel 2"}}})
	r.Register(Definition{Type: domain.TypeDataset, Label: "Dataset", Container: true})
	r.Register(Definition{Type: domain.TypeRepeater, Label: "Repeater", Container: true})
	r.Register(Definition{Type: domain.TypeBind, Label: "Bind", Container: true})

	for _, t := range append(append([]domain.ComponentType{}, pageChrome...), organisms...) {
		r.Register(Definition{Type: t, Label: string(t)})
	}
	r.Register(Definition{Type: domain.TypeProductCarousel, Label: "Product carousel",
		Defaults: map[string]any{"mode": "collection", "collectionId": ""}})

	r.Register(Definition{Type: domain.TypeText, Label: "Text", Defaults: map[string]any{"text": ""}})
	r.Register(Definition{Type: domain.TypeImage, Label: "Image", Defaults: map[string]any{"cropAspect": "16:9", "alt": ""}})
	r.Register(Definition{Type: domain.TypeButton, Label: "Button", Defaults: map[string]any{"label": "Button", "href": ""}})
	r.Register(Definition{Type: domain.TypeDivider, Label: "Divider"})
	r.Register(Definition{Type: domain.TypeSpacer, Label: "Spacer", Defaults: map[string]any{"height": "1rem"}})
	r.Register(Definition{Type: domain.TypeVideo, Label: "Video"})
	r.Register(Definition{Type: domain.TypeCustom, Label: "Custom HTML"})
	return r
}

// ContainerTypes returns the registered container types, sorted.
func (r *Registry) ContainerTypes() []domain.ComponentType {
	var out []domain.ComponentType
	for _, t := range r.Types() {
		if r.defs[t].Container {
			out = append(out, t)
		}
	}
	return out
}

// Overlay is the on-disk shape of a registry extension file.
type Overlay struct {
	Types     []Definition                      `yaml:"types"`
	Placement map[string][]domain.ComponentType `yaml:"placement"`
}

// LoadOverlay reads a YAML overlay and applies it on top of the built-in
// registry and placement table. A missing file yields the defaults.
func LoadOverlay(path string) (*Registry, *Table, error) {
	reg := DefaultRegistry()
	table := DefaultTable()
	if path == "" {
		return reg, table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, table, nil
		}
		return nil, nil, fmt.Errorf("read registry overlay: %w", err)
	}
	var ov Overlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, nil, fmt.Errorf("parse registry overlay: %w", err)
	}
	if err := ov.apply(reg, table); err != nil {
		return nil, nil, err
	}
	return reg, table, nil
}

func (ov Overlay) apply(reg *Registry, table *Table) error {
	for _, d := range ov.Types {
		if d.Type == "" {
			return fmt.Errorf("registry overlay: type name is required")
		}
		switch d.Layout {
		case "", LayoutList, LayoutGridArea, LayoutTabs:
		default:
			return fmt.Errorf("registry overlay: %s: unknown layout %q", d.Type, d.Layout)
		}
		reg.Register(d)
	}
	for parent, kids := range ov.Placement {
		table.Allow(ParentKind(parent), kids...)
	}
	return nil
}
