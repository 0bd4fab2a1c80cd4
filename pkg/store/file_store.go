package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"openbooks/pkg/domain"
)

// FileStore keeps the whole aggregate as one JSON document on disk.
type FileStore struct {
	path string
}

// NewFileStore creates the parent directory of path if missing.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: file path is required", ErrConfig)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the document location.
func (f *FileStore) Path() string {
	return f.path
}

// LoadAll reads the document. A missing file means no data yet.
func (f *FileStore) LoadAll(_ context.Context) (domain.Aggregate, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Aggregate{}, false, nil
	}
	if err != nil {
		return domain.Aggregate{}, false, fmt.Errorf("read db file: %w", err)
	}
	var agg domain.Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return domain.Aggregate{}, false, fmt.Errorf("parse db file: %w", err)
	}
	return agg, true, nil
}

// SaveAll replaces the document atomically: it writes a sibling temp file
// and renames it over the old one.
func (f *FileStore) SaveAll(_ context.Context, agg domain.Aggregate) error {
	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode db file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace db file: %w", err)
	}
	return nil
}

// Upsert applies one item to the document with a read-modify-write cycle.
func (f *FileStore) Upsert(ctx context.Context, item Item) error {
	return f.update(ctx, func(byType map[string][]Item) {
		items := byType[item.Type]
		for i := range items {
			if items[i].ID == item.ID {
				items[i] = item
				return
			}
		}
		byType[item.Type] = append([]Item{item}, items...)
	})
}

// Delete removes one item from the document.
func (f *FileStore) Delete(ctx context.Context, itemType, id string) error {
	return f.update(ctx, func(byType map[string][]Item) {
		items := byType[itemType][:0]
		for _, item := range byType[itemType] {
			if item.ID != id {
				items = append(items, item)
			}
		}
		byType[itemType] = items
	})
}

// QueryByType returns the items of one type in document order.
func (f *FileStore) QueryByType(ctx context.Context, itemType string) ([]Item, error) {
	byType, err := f.items(ctx)
	if err != nil {
		return nil, err
	}
	return byType[itemType], nil
}

// Size reports the document size in bytes, 0 when it does not exist yet.
func (f *FileStore) Size(_ context.Context) (int64, error) {
	info, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat db file: %w", err)
	}
	return info.Size(), nil
}

// Close is a no-op for the file backend.
func (f *FileStore) Close() error {
	return nil
}

func (f *FileStore) items(ctx context.Context) (map[string][]Item, error) {
	agg, _, err := f.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	items, err := ItemsFromAggregate(agg)
	if err != nil {
		return nil, err
	}
	byType := make(map[string][]Item)
	for _, item := range items {
		byType[item.Type] = append(byType[item.Type], item)
	}
	return byType, nil
}

func (f *FileStore) update(ctx context.Context, apply func(map[string][]Item)) error {
	byType, err := f.items(ctx)
	if err != nil {
		return err
	}
	apply(byType)

	// The document keeps its own order, so decode without the canonical sort.
	var agg domain.Aggregate
	metas, err := decodeAll[metaBody](byType[TypeMeta])
	if err != nil {
		return err
	}
	if len(metas) > 0 {
		agg.ActiveUserID = metas[0].ActiveUserID
	}
	if agg.Users, err = decodeAll[domain.User](byType[TypeUser]); err != nil {
		return err
	}
	if agg.Posts, err = decodeAll[domain.Post](byType[TypePost]); err != nil {
		return err
	}
	if agg.Likes, err = decodeAll[domain.Like](byType[TypeLike]); err != nil {
		return err
	}
	if agg.Ratings, err = decodeAll[domain.Rating](byType[TypeRating]); err != nil {
		return err
	}
	if agg.Comments, err = decodeAll[domain.Comment](byType[TypeComment]); err != nil {
		return err
	}
	return f.SaveAll(ctx, agg)
}
