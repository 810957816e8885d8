package helpers

import (
	"context"
	"testing"

	"github.com/xiaot623/gogo/messenger/internal/domain"
	"github.com/xiaot623/gogo/messenger/internal/store"
)

func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// SeedUser stores a profile in the user directory.
func SeedUser(t *testing.T, s store.UserDirectory, id, name string) {
	t.Helper()

	if err := s.UpsertUser(context.Background(), &domain.UserProfile{ID: id, Name: name}); err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
}
