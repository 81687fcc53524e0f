package service

import (
	"encoding/json"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/rules"
)

// SeedSource names where a session's starting state came from.
type SeedSource string

const (
	SeedStored SeedSource = "stored"
	SeedServer SeedSource = "server"
	SeedFresh  SeedSource = "fresh"
)

// Seed picks a session's starting state: the locally stored state, then the
// history the page carries, then a fresh state around the page's
// components. A candidate that fails validation is dropped whole.
func Seed(page *domain.Page, stored []byte, placement rules.Placement) (domain.HistoryState, SeedSource) {
	base, src := domain.NewHistoryState(history.Migrate(page.Components)), SeedFresh
	if page.History != nil {
		if s, ok := accept(*page.History, placement); ok {
			base, src = s, SeedServer
		}
	}
	if len(stored) > 0 {
		var s domain.HistoryState
		if err := json.Unmarshal(stored, &s); err == nil {
			if s, ok := accept(s, placement); ok {
				return s, SeedStored
			}
		}
	}
	return base, src
}

func accept(s domain.HistoryState, placement rules.Placement) (domain.HistoryState, bool) {
	s = history.Normalize(s)
	s.Present = history.Migrate(s.Present)
	if err := history.Validate(s, placement); err != nil {
		return domain.HistoryState{}, false
	}
	return s, true
}
