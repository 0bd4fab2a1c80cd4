package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"openbooks/pkg/domain"
)

// MongoConfig configures the MongoDB-backed partitioned store.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// MongoStore keeps every item in one collection, indexed on its type.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoDocument struct {
	Key  string `bson:"_id"`
	Type string `bson:"type"`
	ID   string `bson:"id"`
	Body bson.D `bson:"body"`
}

// NewMongoStore connects lazily and ensures the type index exists.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("%w: mongo URI is required", ErrConfig)
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, fmt.Errorf("%w: mongo database is required", ErrConfig)
	}
	collection := strings.TrimSpace(cfg.Collection)
	if collection == "" {
		collection = "openbooks"
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	coll := client.Database(cfg.Database).Collection(collection)
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "type", Value: 1}},
	}); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create type index: %w", err)
	}
	return &MongoStore{client: client, coll: coll}, nil
}

func mongoKey(itemType, id string) string {
	return itemType + "/" + id
}

func itemToMongo(item Item) (mongoDocument, error) {
	var body bson.D
	if err := bson.UnmarshalExtJSON(item.Body, false, &body); err != nil {
		return mongoDocument{}, fmt.Errorf("convert %s %s: %w", item.Type, item.ID, err)
	}
	return mongoDocument{
		Key:  mongoKey(item.Type, item.ID),
		Type: item.Type,
		ID:   item.ID,
		Body: body,
	}, nil
}

func itemFromMongo(doc mongoDocument) (Item, error) {
	body, err := bson.MarshalExtJSON(doc.Body, false, false)
	if err != nil {
		return Item{}, fmt.Errorf("convert %s %s: %w", doc.Type, doc.ID, err)
	}
	return Item{Type: doc.Type, ID: doc.ID, Body: body}, nil
}

// LoadAll synthesizes the aggregate from per-type finds.
func (s *MongoStore) LoadAll(ctx context.Context) (domain.Aggregate, bool, error) {
	return loadPartitioned(ctx, s)
}

// SaveAll replaces documents one by one without a session transaction.
func (s *MongoStore) SaveAll(ctx context.Context, agg domain.Aggregate) error {
	return savePartitioned(ctx, s, agg)
}

// Upsert replaces one document, inserting it when absent.
func (s *MongoStore) Upsert(ctx context.Context, item Item) error {
	doc, err := itemToMongo(item)
	if err != nil {
		return err
	}
	_, err = s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.Key}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo replace: %w", err)
	}
	return nil
}

// Delete removes one document.
func (s *MongoStore) Delete(ctx context.Context, itemType, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: mongoKey(itemType, id)}}); err != nil {
		return fmt.Errorf("mongo delete: %w", err)
	}
	return nil
}

// QueryByType returns every document of one type ordered by id.
func (s *MongoStore) QueryByType(ctx context.Context, itemType string) ([]Item, error) {
	cur, err := s.coll.Find(ctx, bson.D{{Key: "type", Value: itemType}}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	var docs []mongoDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo cursor: %w", err)
	}
	items := make([]Item, 0, len(docs))
	for _, doc := range docs {
		item, err := itemFromMongo(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
