package publish

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"pagebuilder/internal/domain"
)

type dialect struct {
	driver      string
	createTable string
	upsert      string
	numbered    bool // $1 placeholders instead of ?
}

var (
	dialectSQLite = dialect{
		driver: "sqlite",
		createTable: `CREATE TABLE IF NOT EXISTS published_pages (
			page_id TEXT PRIMARY KEY,
			slug TEXT NOT NULL,
			title TEXT NOT NULL,
			revision TEXT NOT NULL,
			components_json TEXT NOT NULL,
			published_at DATETIME NOT NULL
		)`,
		upsert: `INSERT INTO published_pages (page_id, slug, title, revision, components_json, published_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(page_id) DO UPDATE SET slug = excluded.slug, title = excluded.title,
			revision = excluded.revision, components_json = excluded.components_json, published_at = excluded.published_at`,
	}
	dialectPostgres = dialect{
		driver: "postgres",
		createTable: `CREATE TABLE IF NOT EXISTS published_pages (
			page_id TEXT PRIMARY KEY,
			slug TEXT NOT NULL,
			title TEXT NOT NULL,
			revision TEXT NOT NULL,
			components_json TEXT NOT NULL,
			published_at TIMESTAMPTZ NOT NULL
		)`,
		upsert:   dialectSQLite.upsert,
		numbered: true,
	}
	dialectMySQL = dialect{
		driver: "mysql",
		createTable: `CREATE TABLE IF NOT EXISTS published_pages (
			page_id VARCHAR(64) PRIMARY KEY,
			slug VARCHAR(255) NOT NULL,
			title TEXT NOT NULL,
			revision VARCHAR(32) NOT NULL,
			components_json LONGTEXT NOT NULL,
			published_at DATETIME(6) NOT NULL
		)`,
		upsert: `INSERT INTO published_pages (page_id, slug, title, revision, components_json, published_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE slug = VALUES(slug), title = VALUES(title),
			revision = VALUES(revision), components_json = VALUES(components_json), published_at = VALUES(published_at)`,
	}
)

// rebind rewrites ? placeholders for drivers that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlPublisher is the shared implementation for MySQL, Postgres, and SQLite.
// Each page has one row in published_pages holding its latest revision.
type sqlPublisher struct {
	dialect dialect
	db      *sql.DB

	once      sync.Once
	schemaErr error
}

func newSQLPublisher(d dialect, dsn string) (*sqlPublisher, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)
	return &sqlPublisher{dialect: d, db: db}, nil
}

func (p *sqlPublisher) ensureSchema(ctx context.Context) error {
	p.once.Do(func() {
		if _, err := p.db.ExecContext(ctx, p.dialect.createTable); err != nil {
			p.schemaErr = fmt.Errorf("create published_pages: %w", err)
		}
	})
	return p.schemaErr
}

func (p *sqlPublisher) Publish(ctx context.Context, rev domain.PublishedRevision) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := p.ensureSchema(ctx); err != nil {
		return err
	}

	var current string
	err := p.db.QueryRowContext(ctx,
		p.dialect.rebind(`SELECT revision FROM published_pages WHERE page_id = ?`), rev.PageID,
	).Scan(&current)
	switch {
	case err == nil && current == rev.Revision:
		return nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("read published revision: %w", err)
	}

	components := rev.Components
	if components == nil {
		components = []*domain.PageComponent{}
	}
	data, err := json.Marshal(components)
	if err != nil {
		return fmt.Errorf("encode components: %w", err)
	}
	publishedAt := rev.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}
	_, err = p.db.ExecContext(ctx, p.dialect.rebind(p.dialect.upsert),
		rev.PageID, rev.Slug, rev.Title, rev.Revision, string(data), publishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert published page: %w", err)
	}
	log.Printf("[PUBLISH] %s page %s at revision %s", p.dialect.driver, rev.PageID, rev.Revision)
	return nil
}

func (p *sqlPublisher) Close() error {
	return p.db.Close()
}
