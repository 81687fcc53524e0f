package mcpserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRejected = errors.New("action rejected by user")
	ErrTimedOut = errors.New("approval timed out")
)

// EventEmitter lets the approval queue notify whoever hosts the server.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// Approval events.
const (
	EventApprovalRequired  = "mcp:approval-required"
	EventApprovalDismissed = "mcp:approval-dismissed"
)

// PendingAction is a destructive tool call waiting for a human decision.
type PendingAction struct {
	ID          string `json:"id"`
	Tool        string `json:"tool"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Metadata    string `json:"metadata"` // JSON with extra context, e.g. node ids to highlight
}

type actionResult struct {
	approved bool
}

// ApprovalQueue gates destructive tool calls behind operator approval.
// It supports two modes:
//   - In-process: the host calls Approve/Reject after an approval event
//   - DB-based: rows go to mcp_approvals and are resolved by another
//     process (`pagebuilder approvals approve <id>`); the queue polls
type ApprovalQueue struct {
	mu      sync.Mutex
	pending map[string]chan actionResult
	emitter EventEmitter
	timeout time.Duration
	poll    time.Duration
	db      *sql.DB
}

func NewApprovalQueue(emitter EventEmitter) *ApprovalQueue {
	return &ApprovalQueue{
		pending: make(map[string]chan actionResult),
		emitter: emitter,
		timeout: 120 * time.Second,
		poll:    500 * time.Millisecond,
	}
}

// SetDB switches to DB-based approval.
func (q *ApprovalQueue) SetDB(db *sql.DB) {
	q.db = db
}

func (q *ApprovalQueue) SetTimeout(d time.Duration) {
	if d > 0 {
		q.timeout = d
	}
}

// Request blocks until the action is approved, rejected, timed out or ctx
// ends. Only an approval returns nil.
func (q *ApprovalQueue) Request(ctx context.Context, tool, description, metadata string) error {
	id := uuid.New().String()
	if metadata == "" {
		metadata = "{}"
	}
	if q.db != nil {
		return q.requestViaDB(ctx, id, tool, description, metadata)
	}
	return q.requestViaChannel(ctx, id, tool, description, metadata)
}

func (q *ApprovalQueue) requestViaDB(ctx context.Context, id, tool, description, metadata string) error {
	_, err := q.db.Exec(
		`INSERT INTO mcp_approvals (id, tool, description, status, metadata) VALUES (?, ?, ?, 'pending', ?)`,
		id, tool, description, metadata,
	)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	defer q.db.Exec(`DELETE FROM mcp_approvals WHERE id = ?`, id)

	deadline := time.NewTimer(q.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var status string
			if err := q.db.QueryRow(`SELECT status FROM mcp_approvals WHERE id = ?`, id).Scan(&status); err != nil {
				continue
			}
			switch status {
			case "approved":
				return nil
			case "rejected":
				return fmt.Errorf("%w: %s", ErrRejected, tool)
			}
		case <-deadline.C:
			return fmt.Errorf("%w after %s: %s", ErrTimedOut, q.timeout, tool)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *ApprovalQueue) requestViaChannel(ctx context.Context, id, tool, description, metadata string) error {
	ch := make(chan actionResult, 1)

	q.mu.Lock()
	q.pending[id] = ch
	q.mu.Unlock()
	defer q.cleanup(id)

	q.emitter.Emit(ctx, EventApprovalRequired, PendingAction{
		ID:          id,
		Tool:        tool,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Metadata:    metadata,
	})

	select {
	case result := <-ch:
		if !result.approved {
			return fmt.Errorf("%w: %s", ErrRejected, tool)
		}
		return nil
	case <-time.After(q.timeout):
		q.emitter.Emit(ctx, EventApprovalDismissed, map[string]string{"id": id})
		return fmt.Errorf("%w after %s: %s", ErrTimedOut, q.timeout, tool)
	case <-ctx.Done():
		q.emitter.Emit(context.Background(), EventApprovalDismissed, map[string]string{"id": id})
		return ctx.Err()
	}
}

// Approve resolves an in-process request. It reports whether id was pending.
func (q *ApprovalQueue) Approve(actionID string) bool {
	return q.resolve(actionID, true)
}

// Reject resolves an in-process request. It reports whether id was pending.
func (q *ApprovalQueue) Reject(actionID string) bool {
	return q.resolve(actionID, false)
}

func (q *ApprovalQueue) resolve(actionID string, approved bool) bool {
	q.mu.Lock()
	ch, ok := q.pending[actionID]
	q.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- actionResult{approved: approved}:
	default:
	}
	return true
}

func (q *ApprovalQueue) cleanup(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}
