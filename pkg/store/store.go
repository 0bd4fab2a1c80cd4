package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"openbooks/pkg/domain"
)

// ErrConfig reports missing or invalid connection parameters at construction.
var ErrConfig = errors.New("store config")

// Item types used as the partition discriminator.
const (
	TypeUser    = "user"
	TypePost    = "post"
	TypeLike    = "like"
	TypeRating  = "rating"
	TypeComment = "comment"
	TypeMeta    = "meta"
)

// MetaID is the fixed id of the item carrying the active-user pointer.
const MetaID = "meta"

// EntityTypes lists the partitions holding entities, in save order.
var EntityTypes = []string{TypeUser, TypePost, TypeLike, TypeRating, TypeComment}

// Item is one independently stored document. Body holds the entity JSON
// including the "type" field.
type Item struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Body json.RawMessage `json:"body"`
}

// Adapter persists the aggregate on one physical backend.
//
// SaveAll is atomic for the file backend only. Partitioned backends upsert
// one item at a time with no transaction: a failure part way through leaves
// the remote state partially updated and the error is returned as is.
type Adapter interface {
	// LoadAll returns the aggregate, or false when the backend holds no data.
	LoadAll(ctx context.Context) (domain.Aggregate, bool, error)
	SaveAll(ctx context.Context, agg domain.Aggregate) error
	Upsert(ctx context.Context, item Item) error
	Delete(ctx context.Context, itemType, id string) error
	QueryByType(ctx context.Context, itemType string) ([]Item, error)
	Close() error
}

// Sizer is implemented by backends that can report their persisted size.
type Sizer interface {
	Size(ctx context.Context) (int64, error)
}

// Provider names accepted by Open.
const (
	ProviderFile     = "file"
	ProviderRedis    = "redis"
	ProviderPostgres = "postgres"
	ProviderMongo    = "mongo"
)

// Config selects and configures one backend.
type Config struct {
	Provider string

	FilePath string

	RedisAddr     string
	RedisPassword string
	RedisPrefix   string

	DatabaseURL string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}

// Open constructs the adapter named by cfg.Provider.
func Open(ctx context.Context, cfg Config) (Adapter, error) {
	var (
		s   Adapter
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderFile:
		s, err = openFile(cfg)
	case ProviderRedis:
		s, err = openRedis(cfg)
	case ProviderPostgres:
		s, err = openPostgres(cfg)
	case ProviderMongo:
		s, err = openMongo(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openFile(cfg Config) (Adapter, error) {
	s, err := NewFileStore(cfg.FilePath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openRedis(cfg Config) (Adapter, error) {
	s, err := NewRedisStore(RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Prefix:   cfg.RedisPrefix,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openPostgres(cfg Config) (Adapter, error) {
	s, err := NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openMongo(ctx context.Context, cfg Config) (Adapter, error) {
	s, err := NewMongoStore(ctx, MongoConfig{
		URI:        cfg.MongoURI,
		Database:   cfg.MongoDatabase,
		Collection: cfg.MongoCollection,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
