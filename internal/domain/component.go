package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type ComponentType string

const (
	TypeSection                ComponentType = "Section"
	TypeCanvas                 ComponentType = "Canvas"
	TypeMultiColumn            ComponentType = "MultiColumn"
	TypeStackFlex              ComponentType = "StackFlex"
	TypeGrid                   ComponentType = "Grid"
	TypeCarouselContainer      ComponentType = "CarouselContainer"
	TypeTabsAccordionContainer ComponentType = "TabsAccordionContainer"
	TypeTabs                   ComponentType = "Tabs"
	TypeDataset                ComponentType = "Dataset"
	TypeRepeater               ComponentType = "Repeater"
	TypeBind                   ComponentType = "Bind"

	TypeHeader          ComponentType = "HeaderSection"
	TypeFooter          ComponentType = "FooterSection"
	TypeHeroBanner      ComponentType = "HeroBanner"
	TypeProductGrid     ComponentType = "ProductGrid"
	TypeProductCarousel ComponentType = "ProductCarousel"
	TypeImageSlider     ComponentType = "ImageSlider"
	TypeGallery         ComponentType = "Gallery"
	TypeReviews         ComponentType = "ReviewsCarousel"
	TypeTestimonials    ComponentType = "TestimonialSlider"
	TypeContactForm     ComponentType = "ContactForm"
	TypeNewsletter      ComponentType = "NewsletterSignup"

	TypeText    ComponentType = "Text"
	TypeImage   ComponentType = "Image"
	TypeButton  ComponentType = "Button"
	TypeDivider ComponentType = "Divider"
	TypeSpacer  ComponentType = "Spacer"
	TypeVideo   ComponentType = "VideoBlock"
	TypeCustom  ComponentType = "CustomHtml"
)

// PageComponent is one node of the edited document tree.
//
// Children distinguishes "not a container" (nil) from "empty container"
// (non-nil, zero length). Nodes are treated as immutable once they are part
// of a HistoryState; mutation always goes through a copy.
type PageComponent struct {
	ID       string
	Type     ComponentType
	Name     string
	SlotKey  string
	Locked   bool
	Hidden   bool
	Children []*PageComponent
	Props    map[string]any

	// device this node was rebuilt for by the viewport decorator
	viewport string
}

var knownKeys = map[string]bool{
	"id": true, "type": true, "name": true, "slotKey": true,
	"locked": true, "hidden": true, "children": true,
}

// IsContainer reports whether the node carries a children list.
func (c *PageComponent) IsContainer() bool {
	return c.Children != nil
}

func (c *PageComponent) Prop(key string) (any, bool) {
	v, ok := c.Props[key]
	return v, ok
}

// StringProp returns the prop as a string, or "" when absent or not a string.
func (c *PageComponent) StringProp(key string) string {
	s, _ := c.Props[key].(string)
	return s
}

// NumberProp returns the prop as a float64 when it holds any numeric value.
func (c *PageComponent) NumberProp(key string) (float64, bool) {
	switch v := c.Props[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Clone returns a shallow copy: a fresh Props map and a fresh Children slice
// holding the same child pointers.
func (c *PageComponent) Clone() *PageComponent {
	out := *c
	out.viewport = ""
	if c.Props != nil {
		out.Props = make(map[string]any, len(c.Props))
		for k, v := range c.Props {
			out.Props[k] = v
		}
	}
	if c.Children != nil {
		out.Children = make([]*PageComponent, len(c.Children))
		copy(out.Children, c.Children)
	}
	return &out
}

// MarkDecorated records that the node was produced by decorating its
// subtree for device. Only call on a node you own.
func (c *PageComponent) MarkDecorated(device string) {
	c.viewport = device
}

// DecoratedFor returns the device the node was decorated for, or "".
func (c *PageComponent) DecoratedFor() string {
	return c.viewport
}

// DeepClone copies the whole subtree, keeping ids.
func (c *PageComponent) DeepClone() *PageComponent {
	out := c.Clone()
	for i, child := range out.Children {
		out.Children[i] = child.DeepClone()
	}
	return out
}

// SetProp writes a prop on the receiver. Only call on a node you own.
func (c *PageComponent) SetProp(key string, v any) {
	if c.Props == nil {
		c.Props = map[string]any{}
	}
	c.Props[key] = v
}

// SetField routes a flat key to the matching field or prop. Setting
// "children" or "id" is not allowed here.
func (c *PageComponent) SetField(key string, v any) error {
	switch key {
	case "id", "children":
		return fmt.Errorf("field %q is not patchable", key)
	case "type":
		s, ok := v.(string)
		if !ok || s == "" {
			return fmt.Errorf("type must be a non-empty string")
		}
		c.Type = ComponentType(s)
	case "name":
		c.Name, _ = v.(string)
	case "slotKey":
		c.SlotKey = slotString(v)
	case "locked":
		c.Locked, _ = v.(bool)
	case "hidden":
		c.Hidden, _ = v.(bool)
	default:
		if v == nil {
			delete(c.Props, key)
			return nil
		}
		c.SetProp(key, v)
	}
	return nil
}

func slotString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return fmt.Sprintf("%d", int(s))
	case int:
		return fmt.Sprintf("%d", s)
	}
	return ""
}

func (c *PageComponent) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c.Props)+7)
	for k, v := range c.Props {
		if !knownKeys[k] {
			m[k] = v
		}
	}
	m["id"] = c.ID
	m["type"] = c.Type
	if c.Name != "" {
		m["name"] = c.Name
	}
	if c.SlotKey != "" {
		m["slotKey"] = c.SlotKey
	}
	if c.Locked {
		m["locked"] = true
	}
	if c.Hidden {
		m["hidden"] = true
	}
	if c.Children != nil {
		m["children"] = c.Children
	}
	return json.Marshal(m)
}

func (c *PageComponent) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = PageComponent{}
	if v, ok := raw["id"]; ok {
		if err := json.Unmarshal(v, &c.ID); err != nil {
			return fmt.Errorf("component id: %w", err)
		}
	}
	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &c.Type); err != nil {
			return fmt.Errorf("component type: %w", err)
		}
	}
	if v, ok := raw["name"]; ok {
		_ = json.Unmarshal(v, &c.Name)
	}
	if v, ok := raw["slotKey"]; ok {
		var s any
		if err := json.Unmarshal(v, &s); err == nil {
			c.SlotKey = slotString(s)
		}
	}
	if v, ok := raw["locked"]; ok {
		_ = json.Unmarshal(v, &c.Locked)
	}
	if v, ok := raw["hidden"]; ok {
		_ = json.Unmarshal(v, &c.Hidden)
	}
	if v, ok := raw["children"]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		c.Children = []*PageComponent{}
		if err := json.Unmarshal(v, &c.Children); err != nil {
			return fmt.Errorf("component %s children: %w", c.ID, err)
		}
	}
	for k, v := range raw {
		if knownKeys[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("component %s prop %s: %w", c.ID, k, err)
		}
		if c.Props == nil {
			c.Props = map[string]any{}
		}
		c.Props[k] = val
	}
	return nil
}

// Depth returns how many levels sit below c: 0 for a leaf or empty container.
func Depth(c *PageComponent) int {
	d := 0
	for _, child := range c.Children {
		if cd := Depth(child) + 1; cd > d {
			d = cd
		}
	}
	return d
}
