package store

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"openbooks/pkg/domain"
)

// itemStore is the per-item capability set shared by partitioned backends.
type itemStore interface {
	Upsert(ctx context.Context, item Item) error
	Delete(ctx context.Context, itemType, id string) error
	QueryByType(ctx context.Context, itemType string) ([]Item, error)
}

// loadPartitioned queries every partition concurrently and synthesizes the aggregate.
func loadPartitioned(ctx context.Context, s itemStore) (domain.Aggregate, bool, error) {
	types := append(append([]string{}, EntityTypes...), TypeMeta)
	results := make([][]Item, len(types))

	g, gctx := errgroup.WithContext(ctx)
	for i, itemType := range types {
		g.Go(func() error {
			items, err := s.QueryByType(gctx, itemType)
			if err != nil {
				return fmt.Errorf("query %s: %w", itemType, err)
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Aggregate{}, false, err
	}

	byType := make(map[string][]Item, len(types))
	for i, itemType := range types {
		byType[itemType] = results[i]
	}
	return AggregateFromItems(byType)
}

// savePartitioned upserts every item one call at a time, then deletes remote
// items the aggregate no longer holds. Neither pass is transactional: the
// first failing call aborts the save and the remote state stays partially
// written until the next successful save.
func savePartitioned(ctx context.Context, s itemStore, agg domain.Aggregate) error {
	items, err := ItemsFromAggregate(agg)
	if err != nil {
		return err
	}
	keep := make(map[string]map[string]struct{}, len(EntityTypes))
	for _, item := range items {
		if err := s.Upsert(ctx, item); err != nil {
			return fmt.Errorf("upsert %s %s: %w", item.Type, item.ID, err)
		}
		if keep[item.Type] == nil {
			keep[item.Type] = map[string]struct{}{}
		}
		keep[item.Type][item.ID] = struct{}{}
	}

	pruned := 0
	for _, itemType := range EntityTypes {
		existing, err := s.QueryByType(ctx, itemType)
		if err != nil {
			return fmt.Errorf("query %s: %w", itemType, err)
		}
		for _, item := range existing {
			if _, ok := keep[itemType][item.ID]; ok {
				continue
			}
			if err := s.Delete(ctx, itemType, item.ID); err != nil {
				return fmt.Errorf("delete %s %s: %w", itemType, item.ID, err)
			}
			pruned++
		}
	}
	slog.Debug("partitioned save", "upserted", len(items), "pruned", pruned)
	return nil
}
