package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore(" "); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestFileStoreLoadMissingIsAbsent(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "data", "db.json"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	_, ok, err := fs.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected absent data for missing file")
	}
	size, err := fs.Size(context.Background())
	if err != nil || size != 0 {
		t.Fatalf("size = %d, %v; want 0", size, err)
	}
}

func TestFileStoreRoundTripKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(filepath.Join(dir, "db.json"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	want := sampleAggregate()
	if err := fs.SaveAll(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := fs.LoadAll(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only db.json after save, got %d entries", len(entries))
	}
	size, err := fs.Size(ctx)
	if err != nil || size == 0 {
		t.Fatalf("size = %d, %v; want > 0", size, err)
	}
}

func TestFileStoreParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fs, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, _, err := fs.LoadAll(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFileStoreItemOperations(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	if err := fs.SaveAll(ctx, sampleAggregate()); err != nil {
		t.Fatalf("save: %v", err)
	}

	item, err := NewItem(TypeUser, "u_new", map[string]string{"name": "New", "role": "creator"})
	if err != nil {
		t.Fatalf("new item: %v", err)
	}
	if err := fs.Upsert(ctx, item); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	users, err := fs.QueryByType(ctx, TypeUser)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(users) != 3 || users[0].ID != "u_new" {
		t.Fatalf("expected new user prepended, got %+v", users)
	}

	if err := fs.Delete(ctx, TypeLike, PairID("p1", "u_consumer")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	agg, _, err := fs.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(agg.Likes) != 0 {
		t.Fatalf("expected like deleted, got %+v", agg.Likes)
	}
	if agg.ActiveUserID != "u_consumer" {
		t.Fatalf("active user lost: %q", agg.ActiveUserID)
	}
	if len(agg.Posts) != 2 || agg.Posts[0].ID != "p2" {
		t.Fatalf("post order changed: %+v", agg.Posts)
	}
}
