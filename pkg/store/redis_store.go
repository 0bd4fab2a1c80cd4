package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"openbooks/pkg/domain"
)

// RedisConfig configures the Redis-backed partitioned store.
type RedisConfig struct {
	Addr     string
	Password string
	Prefix   string
}

// RedisStore keeps one hash per item type: <prefix>:<type> maps id to body.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds the store without contacting the server.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("%w: redis addr is required", ErrConfig)
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "openbooks:items"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
		}),
		prefix: prefix,
	}, nil
}

func (s *RedisStore) key(itemType string) string {
	return s.prefix + ":" + itemType
}

// LoadAll synthesizes the aggregate from the per-type hashes.
func (s *RedisStore) LoadAll(ctx context.Context) (domain.Aggregate, bool, error) {
	return loadPartitioned(ctx, s)
}

// SaveAll writes every entity as its own hash field. Not atomic.
func (s *RedisStore) SaveAll(ctx context.Context, agg domain.Aggregate) error {
	return savePartitioned(ctx, s, agg)
}

// Upsert sets one hash field.
func (s *RedisStore) Upsert(ctx context.Context, item Item) error {
	if err := s.client.HSet(ctx, s.key(item.Type), item.ID, []byte(item.Body)).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Delete removes one hash field. Missing fields are not an error.
func (s *RedisStore) Delete(ctx context.Context, itemType, id string) error {
	if err := s.client.HDel(ctx, s.key(itemType), id).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

// QueryByType returns every item of one type ordered by id.
func (s *RedisStore) QueryByType(ctx context.Context, itemType string) ([]Item, error) {
	fields, err := s.client.HGetAll(ctx, s.key(itemType)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	items := make([]Item, 0, len(fields))
	for id, body := range fields {
		items = append(items, Item{Type: itemType, ID: id, Body: []byte(body)})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// Close releases the client connections.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
