package children

import (
	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/rules"
)

// List renders children in document order with an insertion affordance
// between every pair and at both ends.
type List struct{}

func (List) Layout() rules.LayoutKind { return rules.LayoutList }

func (List) Plan(in Input) Plan {
	sec := Section{Start: 0, End: len(in.Visible)}
	sec.Entries = appendInsert(sec.Entries, in, 0, "")
	for i, c := range in.Visible {
		sec.Entries = append(sec.Entries, Entry{Kind: EntryChild, Index: i, Child: c})
		sec.Entries = appendInsert(sec.Entries, in, i+1, "")
	}
	return Plan{Layout: rules.LayoutList, Sections: []Section{sec}}
}

func (List) InsertAction(in Input, _ string, index int, n *domain.PageComponent) (history.Action, error) {
	return insertAdd(in, index, n)
}

// appendInsert adds the affordance for index, followed by the drop
// placeholder when the live preview points there.
func appendInsert(entries []Entry, in Input, index int, slot string) []Entry {
	entries = append(entries, Entry{Kind: EntryInsert, Index: index})
	if ph, ok := in.previewAt(index, slot); ok {
		entries = append(entries, ph)
	}
	return entries
}
