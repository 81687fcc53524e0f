package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pagebuilder/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore in SQLite: the working state
// of each page plus labelled checkpoints.
type SnapshotStore struct {
	db *DB
}

func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveState replaces the stored working state for a page.
func (s *SnapshotStore) SaveState(pageID string, state domain.HistoryState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	_, err = s.db.conn.Exec(
		`INSERT INTO page_state (page_id, state_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(page_id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`,
		pageID, string(data), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// LoadState returns the raw stored state, or nil when the page has none.
// Decoding is left to the caller so a corrupt entry can be discarded.
func (s *SnapshotStore) LoadState(pageID string) ([]byte, error) {
	var data string
	err := s.db.conn.QueryRow(`SELECT state_json FROM page_state WHERE page_id = ?`, pageID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return []byte(data), nil
}

// PushSnapshot records a labelled checkpoint of state.
func (s *SnapshotStore) PushSnapshot(pageID, label string, state domain.HistoryState) (*domain.Snapshot, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	rev, err := domain.Revision(state.Present)
	if err != nil {
		return nil, err
	}
	snap := &domain.Snapshot{
		ID:        uuid.New().String(),
		PageID:    pageID,
		Label:     label,
		Revision:  rev,
		StateJSON: string(data),
		CreatedAt: time.Now(),
	}
	_, err = s.db.conn.Exec(
		`INSERT INTO snapshots (id, page_id, label, revision, state_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.PageID, snap.Label, snap.Revision, snap.StateJSON, snap.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns a page's checkpoints, newest first, without state.
func (s *SnapshotStore) ListSnapshots(pageID string) ([]domain.Snapshot, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, page_id, label, revision, created_at FROM snapshots
		 WHERE page_id = ? ORDER BY rowid DESC`, pageID,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.Snapshot
	for rows.Next() {
		var sn domain.Snapshot
		if err := rows.Scan(&sn.ID, &sn.PageID, &sn.Label, &sn.Revision, &sn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, sn)
	}
	return snaps, rows.Err()
}

func (s *SnapshotStore) GetSnapshot(id string) (*domain.Snapshot, error) {
	sn := &domain.Snapshot{}
	err := s.db.conn.QueryRow(
		`SELECT id, page_id, label, revision, state_json, created_at FROM snapshots WHERE id = ?`, id,
	).Scan(&sn.ID, &sn.PageID, &sn.Label, &sn.Revision, &sn.StateJSON, &sn.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return sn, nil
}

// Prune keeps the newest keep checkpoints of a page and reports how many
// were removed. A keep of zero or less means unbounded and removes nothing.
func (s *SnapshotStore) Prune(pageID string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.conn.Exec(
		`DELETE FROM snapshots WHERE page_id = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE page_id = ? ORDER BY rowid DESC LIMIT ?
		)`, pageID, pageID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ClearPage removes the working state and every checkpoint of a page.
func (s *SnapshotStore) ClearPage(pageID string) error {
	_, _ = s.db.conn.Exec(`DELETE FROM page_state WHERE page_id = ?`, pageID)
	_, err := s.db.conn.Exec(`DELETE FROM snapshots WHERE page_id = ?`, pageID)
	return err
}
