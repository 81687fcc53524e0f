package domain

import "time"

// PublishDriver represents the engine a page revision is published to.
type PublishDriver string

const (
	PublishDriverNone     PublishDriver = ""
	PublishDriverSQLite   PublishDriver = "sqlite"
	PublishDriverMySQL    PublishDriver = "mysql"
	PublishDriverPostgres PublishDriver = "postgres"
	PublishDriverMongoDB  PublishDriver = "mongodb"
)

// PublishedRevision is what the save/publish boundary receives: the current
// tree and its content-derived revision id.
type PublishedRevision struct {
	PageID      string           `json:"pageId"`
	Slug        string           `json:"slug"`
	Title       string           `json:"title"`
	Revision    string           `json:"revision"`
	Components  []*PageComponent `json:"components"`
	PublishedAt time.Time        `json:"publishedAt"`
}
