package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pagebuilder/internal/domain"
)

var ErrNotFound = errors.New("not found")

// PageStore implements domain.PageStore using SQLite.
type PageStore struct {
	db *DB
}

func NewPageStore(db *DB) *PageStore {
	return &PageStore{db: db}
}

func encodePage(p *domain.Page) (components, hist string, err error) {
	if p.Components == nil {
		p.Components = []*domain.PageComponent{}
	}
	data, err := json.Marshal(p.Components)
	if err != nil {
		return "", "", fmt.Errorf("encode components: %w", err)
	}
	if p.Revision, err = domain.Revision(p.Components); err != nil {
		return "", "", err
	}
	if p.History != nil {
		h, err := json.Marshal(p.History)
		if err != nil {
			return "", "", fmt.Errorf("encode history: %w", err)
		}
		hist = string(h)
	}
	return string(data), hist, nil
}

func (s *PageStore) CreatePage(p *domain.Page) error {
	components, hist, err := encodePage(p)
	if err != nil {
		return err
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err = s.db.conn.Exec(
		`INSERT INTO pages (id, slug, title, components_json, history_json, revision, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Slug, p.Title, components, hist, p.Revision, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	return nil
}

func (s *PageStore) GetPage(id string) (*domain.Page, error) {
	p := &domain.Page{}
	var components, hist string
	err := s.db.conn.QueryRow(
		`SELECT id, slug, title, components_json, history_json, revision, created_at, updated_at FROM pages WHERE id = ?`, id,
	).Scan(&p.ID, &p.Slug, &p.Title, &components, &hist, &p.Revision, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get page %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	if err := json.Unmarshal([]byte(components), &p.Components); err != nil {
		return nil, fmt.Errorf("decode page %s components: %w", id, err)
	}
	if hist != "" {
		p.History = &domain.HistoryState{}
		if err := json.Unmarshal([]byte(hist), p.History); err != nil {
			// Unreadable server history is treated as absent.
			p.History = nil
		}
	}
	return p, nil
}

// ListPages returns page headers without their trees.
func (s *PageStore) ListPages() ([]domain.Page, error) {
	rows, err := s.db.conn.Query(`SELECT id, slug, title, revision, created_at, updated_at FROM pages ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []domain.Page
	for rows.Next() {
		var p domain.Page
		if err := rows.Scan(&p.ID, &p.Slug, &p.Title, &p.Revision, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (s *PageStore) UpdatePage(p *domain.Page) error {
	components, hist, err := encodePage(p)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	res, err := s.db.conn.Exec(
		`UPDATE pages SET slug = ?, title = ?, components_json = ?, history_json = ?, revision = ?, updated_at = ? WHERE id = ?`,
		p.Slug, p.Title, components, hist, p.Revision, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update page %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (s *PageStore) DeletePage(id string) error {
	_, err := s.db.conn.Exec(`DELETE FROM pages WHERE id = ?`, id)
	return err
}
