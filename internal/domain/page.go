package domain

import "time"

type Page struct {
	ID         string           `json:"id"`
	Slug       string           `json:"slug"`
	Title      string           `json:"title"`
	Components []*PageComponent `json:"components"`
	History    *HistoryState    `json:"history,omitempty"`
	Revision   string           `json:"revision"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

type PageStore interface {
	CreatePage(p *Page) error
	GetPage(id string) (*Page, error)
	ListPages() ([]Page, error)
	UpdatePage(p *Page) error
	DeletePage(id string) error
}

// Snapshot is a labelled checkpoint of a page's full HistoryState.
type Snapshot struct {
	ID        string    `json:"id"`
	PageID    string    `json:"pageId"`
	Label     string    `json:"label"`
	Revision  string    `json:"revision"`
	StateJSON string    `json:"stateJson"`
	CreatedAt time.Time `json:"createdAt"`
}

// SnapshotStore persists the working HistoryState of each page (the local
// snapshot a session is seeded from) and a bounded list of checkpoints.
type SnapshotStore interface {
	SaveState(pageID string, state HistoryState) error
	LoadState(pageID string) ([]byte, error)
	PushSnapshot(pageID, label string, state HistoryState) (*Snapshot, error)
	ListSnapshots(pageID string) ([]Snapshot, error)
	GetSnapshot(id string) (*Snapshot, error)
	Prune(pageID string, keep int) (int, error)
	ClearPage(pageID string) error
}
