package storage

import (
	"fmt"
	"time"
)

// PendingApproval is a destructive agent action waiting on a human decision.
type PendingApproval struct {
	ID          string    `json:"id"`
	Tool        string    `json:"tool"`
	Description string    `json:"description"`
	Metadata    string    `json:"metadata"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ApprovalStore is the operator side of the mcp_approvals table: the
// standalone MCP server inserts and polls rows, the CLI resolves them.
type ApprovalStore struct {
	db *DB
}

func NewApprovalStore(db *DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

func (s *ApprovalStore) ListPending() ([]PendingApproval, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, tool, description, metadata, created_at FROM mcp_approvals
		 WHERE status = 'pending' ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []PendingApproval
	for rows.Next() {
		var a PendingApproval
		if err := rows.Scan(&a.ID, &a.Tool, &a.Description, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Resolve marks a pending approval approved or rejected.
func (s *ApprovalStore) Resolve(id string, approved bool) error {
	status := "rejected"
	if approved {
		status = "approved"
	}
	res, err := s.db.conn.Exec(
		`UPDATE mcp_approvals SET status = ? WHERE id = ? AND status = 'pending'`, status, id,
	)
	if err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("approval %s: %w", id, ErrNotFound)
	}
	return nil
}
