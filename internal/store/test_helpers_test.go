package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/autocat/internal/ir"
)

// createTestStore creates a new file-backed SQLite store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestItem creates an item with minimal required fields.
func createTestItem(id, price int64) ir.Item {
	return ir.Item{
		ID:         id,
		SKU:        "SKU-" + string(rune('A'+id)),
		Name:       "item",
		Price:      price,
		Status:     1,
		Visibility: 4,
	}
}

func writeTestItems(t *testing.T, s *Store, items ...ir.Item) {
	t.Helper()
	for _, item := range items {
		require.NoError(t, s.WriteItem(context.Background(), item))
	}
}
