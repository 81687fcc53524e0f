package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

type StackStrategy string

const (
	StackDefault StackStrategy = "default"
	StackReverse StackStrategy = "reverse"
	StackCustom  StackStrategy = "custom"
)

// Valid reports whether s is one of the known strategies.
func (s StackStrategy) Valid() bool {
	switch s {
	case StackDefault, StackReverse, StackCustom:
		return true
	}
	return false
}

// GlobalLink marks a node as an instance of a shared section definition.
type GlobalLink struct {
	ID          string             `json:"id"`
	Pinned      bool               `json:"pinned,omitempty"`
	EditingSize map[string]float64 `json:"editingSize,omitempty"`
}

// EditorFlags is per-node editing metadata kept outside the content tree.
//
// Stack and Order are keyed by device id. On the wire they flatten to
// stack<Device> / order<Device> keys (stackMobile, orderDesktop, ...).
// StackStrategy is the legacy single mobile strategy.
type EditorFlags struct {
	Name          string
	Locked        *bool
	ZIndex        *int
	Hidden        []string
	StackStrategy StackStrategy
	Stack         map[string]StackStrategy
	Order         map[string]int
	Global        *GlobalLink
}

// IsHiddenOn reports whether device appears in the hidden list.
func (f EditorFlags) IsHiddenOn(device string) bool {
	for _, d := range f.Hidden {
		if d == device {
			return true
		}
	}
	return false
}

// StackFor resolves the effective stacking strategy for device. The legacy
// StackStrategy only applies to mobile.
func (f EditorFlags) StackFor(device string) StackStrategy {
	if s, ok := f.Stack[device]; ok && s.Valid() {
		return s
	}
	if device == DeviceMobile && f.StackStrategy.Valid() {
		return f.StackStrategy
	}
	return StackDefault
}

// OrderFor returns the explicit custom order for device, if any.
func (f EditorFlags) OrderFor(device string) (int, bool) {
	o, ok := f.Order[device]
	return o, ok
}

func (f EditorFlags) ZIndexOr(def int) int {
	if f.ZIndex == nil {
		return def
	}
	return *f.ZIndex
}

// Merge applies a shallow patch. Per-device maps merge key by key; every
// other present field replaces the existing value.
func (f EditorFlags) Merge(p EditorPatch) EditorFlags {
	out := f
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Locked != nil {
		v := *p.Locked
		out.Locked = &v
	}
	if p.ZIndex != nil {
		v := *p.ZIndex
		out.ZIndex = &v
	}
	if p.Hidden != nil {
		out.Hidden = append([]string{}, (*p.Hidden)...)
	}
	if p.StackStrategy != nil {
		out.StackStrategy = *p.StackStrategy
	}
	if len(p.Stack) > 0 {
		out.Stack = make(map[string]StackStrategy, len(f.Stack)+len(p.Stack))
		for k, v := range f.Stack {
			out.Stack[k] = v
		}
		for k, v := range p.Stack {
			out.Stack[k] = v
		}
	}
	if len(p.Order) > 0 {
		out.Order = make(map[string]int, len(f.Order)+len(p.Order))
		for k, v := range f.Order {
			out.Order[k] = v
		}
		for k, v := range p.Order {
			out.Order[k] = v
		}
	}
	if p.Global != nil {
		g := *p.Global
		out.Global = &g
	}
	if p.ClearGlobal {
		out.Global = nil
	}
	return out
}

// Clone copies slices and maps so the result can be changed independently.
func (f EditorFlags) Clone() EditorFlags {
	return EditorFlags{}.Merge(f.asPatch())
}

func (f EditorFlags) asPatch() EditorPatch {
	p := EditorPatch{Stack: f.Stack, Order: f.Order, Global: f.Global}
	if f.Name != "" {
		p.Name = &f.Name
	}
	p.Locked = f.Locked
	p.ZIndex = f.ZIndex
	if f.Hidden != nil {
		h := f.Hidden
		p.Hidden = &h
	}
	if f.StackStrategy != "" {
		s := f.StackStrategy
		p.StackStrategy = &s
	}
	return p
}

// EditorPatch is the payload of an update-editor action.
type EditorPatch struct {
	Name          *string
	Locked        *bool
	ZIndex        *int
	Hidden        *[]string
	StackStrategy *StackStrategy
	Stack         map[string]StackStrategy
	Order         map[string]int
	Global        *GlobalLink
	ClearGlobal   bool
}

// Empty reports whether the patch would change nothing.
func (p EditorPatch) Empty() bool {
	return p.Name == nil && p.Locked == nil && p.ZIndex == nil && p.Hidden == nil &&
		p.StackStrategy == nil && len(p.Stack) == 0 && len(p.Order) == 0 &&
		p.Global == nil && !p.ClearGlobal
}

func deviceSuffix(device string) string {
	if device == "" {
		return ""
	}
	r := []rune(device)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func deviceFromSuffix(suffix string) string {
	if suffix == "" {
		return ""
	}
	r := []rune(suffix)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func (f EditorFlags) MarshalJSON() ([]byte, error) {
	return json.Marshal(flatten(f.asPatch()))
}

func (f *EditorFlags) UnmarshalJSON(data []byte) error {
	var p EditorPatch
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = EditorFlags{}.Merge(p)
	return nil
}

func (p EditorPatch) MarshalJSON() ([]byte, error) {
	m := flatten(p)
	if p.ClearGlobal {
		m["global"] = nil
	}
	return json.Marshal(m)
}

func flatten(p EditorPatch) map[string]any {
	m := map[string]any{}
	if p.Name != nil {
		m["name"] = *p.Name
	}
	if p.Locked != nil {
		m["locked"] = *p.Locked
	}
	if p.ZIndex != nil {
		m["zIndex"] = *p.ZIndex
	}
	if p.Hidden != nil {
		m["hidden"] = *p.Hidden
	}
	if p.StackStrategy != nil && *p.StackStrategy != "" {
		m["stackStrategy"] = *p.StackStrategy
	}
	for d, s := range p.Stack {
		m["stack"+deviceSuffix(d)] = s
	}
	for d, o := range p.Order {
		m["order"+deviceSuffix(d)] = o
	}
	if p.Global != nil {
		m["global"] = p.Global
	}
	return m
}

func (p *EditorPatch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = EditorPatch{}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := raw[k]
		switch {
		case k == "name":
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("editor name: %w", err)
			}
			p.Name = &s
		case k == "locked":
			var b bool
			if err := json.Unmarshal(v, &b); err != nil {
				return fmt.Errorf("editor locked: %w", err)
			}
			p.Locked = &b
		case k == "zIndex":
			var z float64
			if err := json.Unmarshal(v, &z); err != nil {
				return fmt.Errorf("editor zIndex: %w", err)
			}
			zi := int(z)
			p.ZIndex = &zi
		case k == "hidden":
			var h []string
			if err := json.Unmarshal(v, &h); err != nil {
				return fmt.Errorf("editor hidden: %w", err)
			}
			if h == nil {
				h = []string{}
			}
			p.Hidden = &h
		case k == "stackStrategy":
			var s StackStrategy
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("editor stackStrategy: %w", err)
			}
			p.StackStrategy = &s
		case k == "global":
			if strings.TrimSpace(string(v)) == "null" {
				p.ClearGlobal = true
				continue
			}
			var g GlobalLink
			if err := json.Unmarshal(v, &g); err != nil {
				return fmt.Errorf("editor global: %w", err)
			}
			p.Global = &g
		case strings.HasPrefix(k, "stack") && len(k) > len("stack"):
			var s StackStrategy
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("editor %s: %w", k, err)
			}
			if p.Stack == nil {
				p.Stack = map[string]StackStrategy{}
			}
			p.Stack[deviceFromSuffix(k[len("stack"):])] = s
		case strings.HasPrefix(k, "order") && len(k) > len("order"):
			var o float64
			if err := json.Unmarshal(v, &o); err != nil {
				return fmt.Errorf("editor %s: %w", k, err)
			}
			if p.Order == nil {
				p.Order = map[string]int{}
			}
			p.Order[deviceFromSuffix(k[len("order"):])] = int(o)
		}
	}
	return nil
}
