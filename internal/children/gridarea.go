package children

import (
	"fmt"
	"strings"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/rules"
)

const (
	areasProp    = "areas"
	gridAreaProp = "gridArea"
)

// GridArea positions children by named grid areas. It renders no insertion
// affordances; children get area controls instead.
type GridArea struct{}

func (GridArea) Layout() rules.LayoutKind { return rules.LayoutGridArea }

func (GridArea) Plan(in Input) Plan {
	sec := Section{Start: 0, End: len(in.Visible)}
	for i, c := range in.Visible {
		sec.Entries = append(sec.Entries, Entry{Kind: EntryChild, Index: i, Child: c, Area: c.StringProp(gridAreaProp)})
	}
	if p := in.Preview; p != nil && p.ParentID == in.Parent.ID {
		sec.Entries = append(sec.Entries, Entry{Kind: EntryPlaceholder, Index: len(in.Visible), Allowed: p.Allowed})
	}
	return Plan{Layout: rules.LayoutGridArea, Sections: []Section{sec}, Areas: AreaNames(in.Parent.StringProp(areasProp))}
}

// InsertAction appends: grid order does not decide placement, the area does.
func (GridArea) InsertAction(in Input, _ string, _ int, n *domain.PageComponent) (history.Action, error) {
	return insertAdd(in, len(in.Visible), n)
}

// AreaNames parses a grid-template-areas value into its distinct named
// areas in first-seen order. "." cells are empty.
func AreaNames(areas string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range strings.FieldsFunc(areas, func(r rune) bool {
		return r == '"' || r == '\'' || r == ' ' || r == '\t' || r == '\n'
	}) {
		if strings.Trim(tok, ".") == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// AreaControl is the area picker state for one child.
type AreaControl struct {
	ChildID string
	Current string
	Options []string
}

func AreaControls(in Input) []AreaControl {
	opts := AreaNames(in.Parent.StringProp(areasProp))
	out := make([]AreaControl, 0, len(in.Visible))
	for _, c := range in.Visible {
		out = append(out, AreaControl{ChildID: c.ID, Current: c.StringProp(gridAreaProp), Options: opts})
	}
	return out
}

// AssignArea builds the update placing child id into area. An empty area
// clears the assignment.
func AssignArea(in Input, id, area string) (history.Action, error) {
	if _, err := locateChild(in, id); err != nil {
		return nil, err
	}
	if area == "" {
		return history.Update{ID: id, Patch: map[string]any{gridAreaProp: nil}}, nil
	}
	names := AreaNames(in.Parent.StringProp(areasProp))
	if len(names) == 0 {
		return nil, ErrNoAreas
	}
	for _, n := range names {
		if n == area {
			return history.Update{ID: id, Patch: map[string]any{gridAreaProp: area}}, nil
		}
	}
	return nil, fmt.Errorf("area %q not in %v", area, names)
}
