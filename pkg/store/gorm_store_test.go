package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newUnreachableGormStore skips migrations so no connection is made until
// the first statement, which then fails.
func newUnreachableGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=127.0.0.1 port=1 user=x dbname=x sslmode=disable connect_timeout=1"), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Discard,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := &GormStore{db: db}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGormStoreWrapsTransportErrors(t *testing.T) {
	s := newUnreachableGormStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	item, err := NewItem(TypeUser, "u1", map[string]string{"name": "A"})
	if err != nil {
		t.Fatalf("new item: %v", err)
	}
	cases := []struct {
		name   string
		prefix string
		run    func() error
	}{
		{"query", "gorm query: ", func() error { _, err := s.QueryByType(ctx, TypeUser); return err }},
		{"upsert", "gorm upsert: ", func() error { return s.Upsert(ctx, item) }},
		{"delete", "gorm delete: ", func() error { return s.Delete(ctx, TypeUser, "u1") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			if err == nil {
				t.Fatalf("expected error from unreachable database")
			}
			if !strings.HasPrefix(err.Error(), tc.prefix) {
				t.Fatalf("error %q not wrapped with %q", err, tc.prefix)
			}
		})
	}
}
