// Package publish is the save boundary: it hands a page's present tree and
// revision id to the configured backing store.
package publish

import (
	"context"
	"fmt"
	"sync"

	"pagebuilder/internal/domain"
)

// Publisher receives saved revisions. Publishing the revision a page already
// carries is a no-op.
type Publisher interface {
	Publish(ctx context.Context, rev domain.PublishedRevision) error
	Close() error
}

// Target describes where revisions are published. Host is a file path for
// sqlite and may be a full mongodb:// URI for mongodb.
type Target struct {
	Driver   domain.PublishDriver `mapstructure:"driver" toml:"driver"`
	Host     string               `mapstructure:"host" toml:"host"`
	Port     int                  `mapstructure:"port" toml:"port,omitempty"`
	Database string               `mapstructure:"database" toml:"database,omitempty"`
	Username string               `mapstructure:"username" toml:"username,omitempty"`
	Password string               `mapstructure:"password" toml:"password,omitempty"`
	// SecretKey names a secret store entry holding the password.
	SecretKey string            `mapstructure:"secret_key" toml:"secret_key,omitempty"`
	SSLMode   string            `mapstructure:"sslmode" toml:"sslmode,omitempty"`
	Options   map[string]string `mapstructure:"options" toml:"options,omitempty"`
}

// NewPublisher creates a Publisher for the target's driver. An empty driver
// publishes nowhere.
func NewPublisher(t Target) (Publisher, error) {
	switch t.Driver {
	case domain.PublishDriverNone:
		return Nop{}, nil
	case domain.PublishDriverSQLite:
		return newSQLitePublisher(t)
	case domain.PublishDriverMySQL:
		return newSQLPublisher(dialectMySQL, buildMySQLDSN(t))
	case domain.PublishDriverPostgres:
		return newSQLPublisher(dialectPostgres, buildPostgresDSN(t))
	case domain.PublishDriverMongoDB:
		return newMongoPublisher(t)
	default:
		return nil, fmt.Errorf("unsupported publish driver: %s", t.Driver)
	}
}

// Nop discards every revision.
type Nop struct{}

func (Nop) Publish(context.Context, domain.PublishedRevision) error { return nil }
func (Nop) Close() error                                            { return nil }

// Memory keeps the latest revision per page. Used for offline sessions and
// tests.
type Memory struct {
	mu    sync.Mutex
	pages map[string]domain.PublishedRevision
	count int
}

func NewMemory() *Memory {
	return &Memory{pages: map[string]domain.PublishedRevision{}}
}

func (m *Memory) Publish(_ context.Context, rev domain.PublishedRevision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.pages[rev.PageID]; ok && cur.Revision == rev.Revision {
		return nil
	}
	m.pages[rev.PageID] = rev
	m.count++
	return nil
}

// Latest returns the last revision published for a page.
func (m *Memory) Latest(pageID string) (domain.PublishedRevision, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rev, ok := m.pages[pageID]
	return rev, ok
}

// Writes counts publishes that changed a page.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *Memory) Close() error { return nil }
