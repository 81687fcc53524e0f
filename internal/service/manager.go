package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"pagebuilder/internal/domain"
)

// Manager keeps one EditorSession per open page.
type Manager struct {
	cfg SessionConfig

	mu       sync.Mutex
	sessions map[string]*EditorSession
}

func NewManager(cfg SessionConfig) *Manager {
	return &Manager{cfg: cfg.withDefaults(), sessions: map[string]*EditorSession{}}
}

func (m *Manager) Config() SessionConfig { return m.cfg }

// Open returns the page's session, seeding it on first use.
func (m *Manager) Open(pageID string) (*EditorSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[pageID]; ok {
		return s, nil
	}
	if m.cfg.Pages == nil {
		return nil, errors.New("no page store configured")
	}
	page, err := m.cfg.Pages.GetPage(pageID)
	if err != nil {
		return nil, err
	}
	s := NewEditorSession(page, m.cfg)
	m.sessions[pageID] = s
	return s, nil
}

// OpenIDs lists pages with a live session.
func (m *Manager) OpenIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CreatePage stores a new page around components.
func (m *Manager) CreatePage(title, slug string, components []*domain.PageComponent) (*domain.Page, error) {
	if components == nil {
		components = []*domain.PageComponent{}
	}
	p := &domain.Page{ID: uuid.New().String(), Title: title, Slug: slug, Components: components}
	if err := m.cfg.Pages.CreatePage(p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePage closes the page's session and removes it with its snapshots.
func (m *Manager) DeletePage(pageID string) error {
	m.mu.Lock()
	s := m.sessions[pageID]
	delete(m.sessions, pageID)
	m.mu.Unlock()
	if s != nil {
		s.Close()
	}
	if m.cfg.Snapshots != nil {
		if err := m.cfg.Snapshots.ClearPage(pageID); err != nil {
			return fmt.Errorf("clear snapshots: %w", err)
		}
	}
	return m.cfg.Pages.DeletePage(pageID)
}

// Close flushes and closes every session after in-flight saves finish.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*EditorSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = map[string]*EditorSession{}
	m.mu.Unlock()

	for _, s := range sessions {
		s.WaitSaves(ctx)
		if err := s.Close(); err != nil {
			log.Printf("[SESSION] close %s: %v", s.PageID(), err)
		}
	}
}
