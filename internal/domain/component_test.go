package domain

import (
	"encoding/json"
	"testing"
)

func TestPageComponentJSON_ChildrenPresence(t *testing.T) {
	var leaf, empty, nullKids PageComponent
	if err := json.Unmarshal([]byte(`{"id":"a","type":"Text","text":"hi"}`), &leaf); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"id":"s","type":"Section","children":[]}`), &empty); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"id":"n","type":"Section","children":null}`), &nullKids); err != nil {
		t.Fatal(err)
	}

	if leaf.IsContainer() {
		t.Error("leaf without children key must not be a container")
	}
	if !empty.IsContainer() || len(empty.Children) != 0 {
		t.Error("empty children list must decode as an empty container")
	}
	if nullKids.IsContainer() {
		t.Error("null children must decode as a leaf")
	}
	if leaf.StringProp("text") != "hi" {
		t.Errorf("expected flattened prop, got %v", leaf.Props)
	}

	data, err := json.Marshal(&empty)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"children":[],"id":"s","type":"Section"}` {
		t.Errorf("unexpected encoding %s", data)
	}
}

func TestPageComponentJSON_KnownFields(t *testing.T) {
	var c PageComponent
	in := `{"id":"t","type":"Text","name":"Title","slotKey":1,"locked":true,"hidden":true,"fontSize":18}`
	if err := json.Unmarshal([]byte(in), &c); err != nil {
		t.Fatal(err)
	}
	if c.Name != "Title" || c.SlotKey != "1" || !c.Locked || !c.Hidden {
		t.Errorf("unexpected known fields: %+v", c)
	}
	if n, ok := c.NumberProp("fontSize"); !ok || n != 18 {
		t.Errorf("expected fontSize 18, got %v", c.Props)
	}
	if _, ok := c.Prop("name"); ok {
		t.Error("known keys must not leak into props")
	}
}

func TestSetField(t *testing.T) {
	c := &PageComponent{ID: "x", Type: TypeText, Props: map[string]any{"text": "a"}}
	tests := []struct {
		key     string
		value   any
		wantErr bool
	}{
		{"id", "y", true},
		{"children", []any{}, true},
		{"type", "", true},
		{"type", "Button", false},
		{"slotKey", float64(2), false},
		{"text", nil, false},
		{"color", "#fff", false},
	}
	for _, tt := range tests {
		err := c.SetField(tt.key, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("SetField(%s): err=%v wantErr=%v", tt.key, err, tt.wantErr)
		}
	}
	if c.Type != TypeButton || c.SlotKey != "2" || c.StringProp("color") != "#fff" {
		t.Errorf("unexpected node %+v", c)
	}
	if _, ok := c.Prop("text"); ok {
		t.Error("nil value should delete the prop")
	}
}

func TestCloneIsShallow(t *testing.T) {
	child := &PageComponent{ID: "c", Type: TypeText}
	n := &PageComponent{ID: "p", Type: TypeSection, Children: []*PageComponent{child}, Props: map[string]any{"a": 1}}
	cp := n.Clone()
	cp.SetProp("a", 2)
	cp.Children[0] = &PageComponent{ID: "other", Type: TypeText}
	if n.Props["a"] != 1 || n.Children[0] != child {
		t.Error("clone shares mutable state with the original")
	}

	deep := n.DeepClone()
	if deep.Children[0] == child || deep.Children[0].ID != "c" {
		t.Error("deep clone should copy children and keep ids")
	}
	if Depth(n) != 1 || Depth(child) != 0 {
		t.Errorf("unexpected depth %d/%d", Depth(n), Depth(child))
	}
}

func TestEditorFlagsJSON(t *testing.T) {
	var f EditorFlags
	in := `{"locked":true,"zIndex":4,"hidden":["tablet"],"stackStrategy":"reverse","stackDesktop":"custom","orderMobile":2,"global":{"id":"g1","pinned":true}}`
	if err := json.Unmarshal([]byte(in), &f); err != nil {
		t.Fatal(err)
	}
	if f.Locked == nil || !*f.Locked || f.ZIndexOr(0) != 4 || !f.IsHiddenOn(DeviceTablet) {
		t.Errorf("unexpected flags %+v", f)
	}
	if f.StackFor(DeviceMobile) != StackReverse {
		t.Error("legacy stackStrategy should apply to mobile")
	}
	if f.StackFor(DeviceTablet) != StackDefault {
		t.Error("legacy stackStrategy must not apply to tablet")
	}
	if f.StackFor(DeviceDesktop) != StackCustom {
		t.Error("expected per-device stack for desktop")
	}
	if o, ok := f.OrderFor(DeviceMobile); !ok || o != 2 {
		t.Errorf("expected mobile order 2, got %d %v", o, ok)
	}
	if f.Global == nil || f.Global.ID != "g1" {
		t.Error("expected global link")
	}

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back["stackDesktop"] != "custom" || back["orderMobile"] != float64(2) {
		t.Errorf("expected flattened device keys, got %s", data)
	}
}

func TestEditorPatch_ClearGlobal(t *testing.T) {
	f := EditorFlags{Global: &GlobalLink{ID: "g"}}
	var p EditorPatch
	if err := json.Unmarshal([]byte(`{"global":null}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Empty() {
		t.Fatal("clearing global is not an empty patch")
	}
	if f.Merge(p).Global != nil {
		t.Error("expected global cleared")
	}
	if f.Global == nil {
		t.Error("merge mutated the receiver")
	}
}

func TestEditorFlagsCloneIndependent(t *testing.T) {
	f := EditorFlags{Hidden: []string{"mobile"}, Order: map[string]int{"mobile": 1}}
	c := f.Clone()
	c.Hidden[0] = "desktop"
	c.Order["mobile"] = 9
	if f.Hidden[0] != "mobile" || f.Order["mobile"] != 1 {
		t.Error("clone shares storage with the original")
	}
}

func TestRevisionStable(t *testing.T) {
	a := []*PageComponent{{ID: "s", Type: TypeSection, Children: []*PageComponent{}, Props: map[string]any{"b": 1, "a": 2}}}
	b := []*PageComponent{{ID: "s", Type: TypeSection, Children: []*PageComponent{}, Props: map[string]any{"a": 2, "b": 1}}}
	ra, err := Revision(a)
	if err != nil {
		t.Fatal(err)
	}
	rb, _ := Revision(b)
	if ra != rb {
		t.Errorf("equal trees gave different revisions %s/%s", ra, rb)
	}
	b[0].Props["a"] = 3
	if rc, _ := Revision(b); rc == ra {
		t.Error("changed tree kept the same revision")
	}
	empty, _ := Revision(nil)
	zero, _ := Revision([]*PageComponent{})
	if empty != zero {
		t.Error("nil and empty trees should share a revision")
	}
}
