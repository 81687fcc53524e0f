package children

import (
	"fmt"
	"strconv"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/rules"
)

const tabsProp = "tabs"

// Tabs partitions children into one bucket per tab or accordion panel by
// slotKey. Children without a slotKey belong to the first slot.
type Tabs struct{}

type Slot struct {
	Key   string
	Title string
}

func (Tabs) Layout() rules.LayoutKind { return rules.LayoutTabs }

// Slots lists the parent's panels from its "tabs" titles. Without titles
// there is one slot per distinct slotKey seen, and at least one.
func Slots(parent *domain.PageComponent) []Slot {
	if titles, ok := parent.Props[tabsProp].([]any); ok && len(titles) > 0 {
		out := make([]Slot, len(titles))
		for i, t := range titles {
			title, _ := t.(string)
			if title == "" {
				title = fmt.Sprintf("Tab %d", i+1)
			}
			out[i] = Slot{Key: strconv.Itoa(i), Title: title}
		}
		return out
	}
	n := 1
	for _, c := range parent.Children {
		if k, err := strconv.Atoi(c.SlotKey); err == nil && k+1 > n {
			n = k + 1
		}
	}
	out := make([]Slot, n)
	for i := range out {
		out[i] = Slot{Key: strconv.Itoa(i), Title: fmt.Sprintf("Tab %d", i+1)}
	}
	return out
}

func inSlot(c *domain.PageComponent, idx int) bool {
	return c.SlotKey == strconv.Itoa(idx) || (c.SlotKey == "" && idx == 0)
}

func slotNumber(c *domain.PageComponent) int {
	if c.SlotKey == "" {
		return 0
	}
	n, err := strconv.Atoi(c.SlotKey)
	if err != nil {
		return 0
	}
	return n
}

// bucket returns the visible indexes of slot idx's children and the
// section's visible range. An empty bucket starts at the first child of a
// later slot, or at the end.
func bucket(visible []*domain.PageComponent, idx int) (members []int, start, end int) {
	for i, c := range visible {
		if inSlot(c, idx) {
			members = append(members, i)
		}
	}
	start = len(visible)
	if len(members) > 0 {
		start = members[0]
		return members, start, members[len(members)-1] + 1
	}
	for i, c := range visible {
		if slotNumber(c) >= idx {
			start = i
			break
		}
	}
	return nil, start, start
}

func (Tabs) Plan(in Input) Plan {
	slots := Slots(in.Parent)
	plan := Plan{Layout: rules.LayoutTabs, Sections: make([]Section, 0, len(slots))}
	for idx, s := range slots {
		members, start, end := bucket(in.Visible, idx)
		sec := Section{Slot: s.Key, Title: s.Title, Start: start, End: end}
		sec.Entries = appendInsert(sec.Entries, in, start, s.Key)
		for _, i := range members {
			sec.Entries = append(sec.Entries, Entry{Kind: EntryChild, Index: i, Child: in.Visible[i]})
			sec.Entries = appendInsert(sec.Entries, in, i+1, s.Key)
		}
		plan.Sections = append(plan.Sections, sec)
	}
	return plan
}

// InsertAction adds n into slot at visible index, stamping the slot onto it.
func (Tabs) InsertAction(in Input, slot string, index int, n *domain.PageComponent) (history.Action, error) {
	if err := checkSlot(in.Parent, slot); err != nil {
		return nil, err
	}
	if n != nil {
		n.SlotKey = slot
	}
	return insertAdd(in, index, n)
}

// MoveToSlot moves child id to the end of slot's bucket and rewrites its
// slotKey in the same action.
func MoveToSlot(in Input, id, slot string) (history.Action, error) {
	if err := checkSlot(in.Parent, slot); err != nil {
		return nil, err
	}
	idx, _ := strconv.Atoi(slot)
	_, _, end := bucket(in.Visible, idx)
	s := slot
	mv, err := move(in, id, in.underlyingIndex(end), &s)
	if err != nil {
		return nil, err
	}
	return mv, nil
}

func checkSlot(parent *domain.PageComponent, slot string) error {
	for _, s := range Slots(parent) {
		if s.Key == slot {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
}
