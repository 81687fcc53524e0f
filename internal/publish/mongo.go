package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"pagebuilder/internal/domain"
)

const mongoCollection = "published_pages"

// mongoPublisher upserts one document per page, keyed by page id.
type mongoPublisher struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// buildMongoURI returns the connection URI and database name for t. A host
// that is already a mongodb:// or mongodb+srv:// URI is used as is.
func buildMongoURI(t Target) (uri, dbName string) {
	dbName = t.Database
	if strings.HasPrefix(t.Host, "mongodb+srv://") || strings.HasPrefix(t.Host, "mongodb://") {
		uri = t.Host
		if t.Password != "" {
			uri = strings.ReplaceAll(uri, "<password>", t.Password)
			uri = strings.ReplaceAll(uri, "<db_password>", t.Password)
		}
	} else {
		port := t.Port
		if port == 0 {
			port = 27017
		}
		if t.Username != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", t.Username, t.Password, t.Host, port)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d", t.Host, port)
		}
		if len(t.Options) > 0 {
			keys := make([]string, 0, len(t.Options))
			for k := range t.Options {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			params := make([]string, 0, len(keys))
			for _, k := range keys {
				params = append(params, k+"="+t.Options[k])
			}
			uri += "/?" + strings.Join(params, "&")
		}
	}
	if dbName == "" {
		dbName = "pagebuilder"
	}
	return uri, dbName
}

func newMongoPublisher(t Target) (*mongoPublisher, error) {
	uri, dbName := buildMongoURI(t)

	logURI := uri
	if t.Password != "" {
		logURI = strings.ReplaceAll(logURI, t.Password, "***")
	}
	log.Printf("[MONGO] Connecting with URI: %s (database %s)", logURI, dbName)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoPublisher{
		client: client,
		coll:   client.Database(dbName).Collection(mongoCollection),
	}, nil
}

// pageDocument stores components as plain documents so they stay queryable.
func pageDocument(rev domain.PublishedRevision) (bson.M, error) {
	components := rev.Components
	if components == nil {
		components = []*domain.PageComponent{}
	}
	data, err := json.Marshal(components)
	if err != nil {
		return nil, fmt.Errorf("encode components: %w", err)
	}
	var plain []any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("decode components: %w", err)
	}
	publishedAt := rev.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}
	return bson.M{
		"_id":         rev.PageID,
		"slug":        rev.Slug,
		"title":       rev.Title,
		"revision":    rev.Revision,
		"components":  plain,
		"publishedAt": publishedAt,
	}, nil
}

func (p *mongoPublisher) Publish(ctx context.Context, rev domain.PublishedRevision) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var current struct {
		Revision string `bson:"revision"`
	}
	err := p.coll.FindOne(ctx, bson.M{"_id": rev.PageID}, options.FindOne().SetProjection(bson.M{"revision": 1})).Decode(&current)
	switch {
	case err == nil && current.Revision == rev.Revision:
		return nil
	case err != nil && !errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("read published revision: %w", err)
	}

	doc, err := pageDocument(rev)
	if err != nil {
		return err
	}
	_, err = p.coll.ReplaceOne(ctx, bson.M{"_id": rev.PageID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert published page: %w", err)
	}
	log.Printf("[PUBLISH] mongodb page %s at revision %s", rev.PageID, rev.Revision)
	return nil
}

func (p *mongoPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.client.Disconnect(ctx)
}
