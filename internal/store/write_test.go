package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autocat/internal/ir"
)

func TestWriteItem_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteCategory(ctx, ir.Category{ID: 1, Name: "root"})
	require.NoError(t, err)

	special := int64(800)
	item := createTestItem(1, 1000)
	item.SpecialPrice = &special
	item.CreatedAt = 1_700_000_000
	item.Attributes = map[string]string{"color": "red", "size": "m"}
	item.Categories = []int64{1}
	writeTestItems(t, s, item)

	got, err := s.ReadItem(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, item, got)
}

func TestWriteItem_ReplacesAttributesAndCategories(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteCategory(ctx, ir.Category{ID: 1})
	require.NoError(t, err)
	_, err = s.WriteCategory(ctx, ir.Category{ID: 2})
	require.NoError(t, err)

	item := createTestItem(1, 1000)
	item.Attributes = map[string]string{"color": "red"}
	item.Categories = []int64{1}
	writeTestItems(t, s, item)

	item.Price = 900
	item.Attributes = map[string]string{"color": "blue"}
	item.Categories = []int64{2}
	writeTestItems(t, s, item)

	got, err := s.ReadItem(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(900), got.Price)
	assert.Equal(t, map[string]string{"color": "blue"}, got.Attributes)
	assert.Equal(t, []int64{2}, got.Categories)
}

func TestWriteItem_RejectsUnknownCategory(t *testing.T) {
	s := createTestStore(t)

	item := createTestItem(1, 1000)
	item.Categories = []int64{99}
	err := s.WriteItem(context.Background(), item)
	assert.ErrorContains(t, err, "category 99")
}

func TestWriteItem_RejectsNonPositiveID(t *testing.T) {
	s := createTestStore(t)
	assert.Error(t, s.WriteItem(context.Background(), createTestItem(0, 1)))
}

func TestDeleteItem_CascadesCatalogRows(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	item := createTestItem(1, 1000)
	item.Attributes = map[string]string{"color": "red"}
	writeTestItems(t, s, item)

	require.NoError(t, s.DeleteItem(ctx, 1))

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM item_attributes").Scan(&n))
	assert.Zero(t, n)

	_, err := s.ReadItem(ctx, 1)
	assert.Error(t, err)
}

func TestWriteCategory_MaterializesPath(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	root, err := s.WriteCategory(ctx, ir.Category{ID: 1, Name: "root"})
	require.NoError(t, err)
	assert.Equal(t, "1", root.Path)

	mid, err := s.WriteCategory(ctx, ir.Category{ID: 4, ParentID: 1, Name: "shoes"})
	require.NoError(t, err)
	assert.Equal(t, "1/4", mid.Path)

	leaf, err := s.WriteCategory(ctx, ir.Category{ID: 9, ParentID: 4, Name: "boots"})
	require.NoError(t, err)
	assert.Equal(t, "1/4/9", leaf.Path)
}

func TestWriteCategory_MissingParent(t *testing.T) {
	s := createTestStore(t)
	_, err := s.WriteCategory(context.Background(), ir.Category{ID: 4, ParentID: 1})
	assert.ErrorIs(t, err, ErrCategoryParentMissing)
}

func categoryPaths(t *testing.T, s *Store) map[int64]string {
	t.Helper()
	rows, err := s.DB().Query("SELECT id, path FROM categories")
	require.NoError(t, err)
	defer rows.Close()

	paths := map[int64]string{}
	for rows.Next() {
		var id int64
		var path string
		require.NoError(t, rows.Scan(&id, &path))
		paths[id] = path
	}
	require.NoError(t, rows.Err())
	return paths
}

func TestWriteCategory_MoveRewritesDescendants(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, c := range []ir.Category{{ID: 1}, {ID: 4, ParentID: 1}, {ID: 9, ParentID: 4}, {ID: 40, ParentID: 1}, {ID: 2}} {
		_, err := s.WriteCategory(ctx, c)
		require.NoError(t, err)
	}

	moved, err := s.WriteCategory(ctx, ir.Category{ID: 4, ParentID: 2, Name: "shoes"})
	require.NoError(t, err)
	assert.Equal(t, "2/4", moved.Path)

	assert.Equal(t, map[int64]string{
		1:  "1",
		2:  "2",
		4:  "2/4",
		9:  "2/4/9",
		40: "1/40",
	}, categoryPaths(t, s), "category 40 shares the prefix 1/4 but is not below 4")

	// Back to a root.
	_, err = s.WriteCategory(ctx, ir.Category{ID: 4})
	require.NoError(t, err)
	paths := categoryPaths(t, s)
	assert.Equal(t, "4", paths[4])
	assert.Equal(t, "4/9", paths[9])
}

func TestWriteCategory_RejectsCycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, c := range []ir.Category{{ID: 1}, {ID: 4, ParentID: 1}, {ID: 9, ParentID: 4}} {
		_, err := s.WriteCategory(ctx, c)
		require.NoError(t, err)
	}

	_, err := s.WriteCategory(ctx, ir.Category{ID: 4, ParentID: 9})
	assert.ErrorIs(t, err, ErrCategoryCycle)
	_, err = s.WriteCategory(ctx, ir.Category{ID: 1, ParentID: 1})
	assert.ErrorIs(t, err, ErrCategoryCycle)

	assert.Equal(t, "1/4/9", categoryPaths(t, s)[9], "rejected move leaves paths alone")
}

func TestWriteMembership_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rows := []ir.MembershipRow{{GroupingID: 7, ItemID: 2}, {GroupingID: 7, ItemID: 3}}
	n, err := s.WriteMembership(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.WriteMembership(ctx, rows)
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := s.CountMembership(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
