package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/autocat/internal/catalog"
	"github.com/roach88/autocat/internal/ir"
	"github.com/roach88/autocat/internal/store"
)

// OpenStore creates a file-backed SQLite store in a test temp dir.
// The store is closed when the test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "autocat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Seed writes a catalog and initial membership rows.
func Seed(t testing.TB, s *store.Store, c catalog.Catalog, rows ...ir.MembershipRow) {
	t.Helper()
	ctx := context.Background()
	_, err := c.Apply(ctx, s)
	require.NoError(t, err)
	if len(rows) > 0 {
		_, err = s.WriteMembership(ctx, rows)
		require.NoError(t, err)
	}
}

// Rows builds membership rows at position 0 for one grouping.
func Rows(groupingID int64, itemIDs ...int64) []ir.MembershipRow {
	out := make([]ir.MembershipRow, len(itemIDs))
	for i, id := range itemIDs {
		out[i] = ir.MembershipRow{GroupingID: groupingID, ItemID: id}
	}
	return out
}

// Membership reads a grouping's rows, failing the test on error.
func Membership(t testing.TB, s *store.Store, groupingID int64) []ir.MembershipRow {
	t.Helper()
	rows, err := s.ReadMembership(context.Background(), groupingID)
	require.NoError(t, err)
	return rows
}
