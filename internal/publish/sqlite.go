package publish

import (
	_ "modernc.org/sqlite"
)

// newSQLitePublisher publishes into a local SQLite file, which may be the
// editor's own database.
func newSQLitePublisher(t Target) (*sqlPublisher, error) {
	dsn := t.Host + "?_journal_mode=WAL&_busy_timeout=5000"
	p, err := newSQLPublisher(dialectSQLite, dsn)
	if err != nil {
		return nil, err
	}
	p.db.SetMaxOpenConns(1)
	return p, nil
}
