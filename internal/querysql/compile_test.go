package querysql

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autocat/internal/ir"
	"github.com/roach88/autocat/internal/queryir"
)

// matching124 matches exactly items 1, 2 and 4.
func matching124() queryir.Select {
	return queryir.Universe().Where(queryir.In{Field: queryir.IDField, Values: []ir.IRValue{ir.IRInt(1), ir.IRInt(2), ir.IRInt(4)}})
}

func TestCompileSelect_Simple(t *testing.T) {
	c := NewCompiler(DialectSQLite)

	stmt, err := c.CompileSelect(queryir.Universe().Where(queryir.Equals{Field: "status", Value: ir.IRInt(1)}))
	require.NoError(t, err)

	assert.Equal(t, "SELECT items.id FROM items WHERE items.status = ? ORDER BY items.id ASC", stmt.SQL)
	assert.Equal(t, []any{int64(1)}, stmt.Args)
}

func TestCompileSelect_NoFilter(t *testing.T) {
	c := NewCompiler(DialectSQLite)

	stmt, err := c.CompileSelect(queryir.Universe())
	require.NoError(t, err)

	assert.Equal(t, "SELECT items.id FROM items WHERE 1 = 1 ORDER BY items.id ASC", stmt.SQL)
	assert.Empty(t, stmt.Args)
}

func TestCompileSelect_ValuesNeverInterpolated(t *testing.T) {
	c := NewCompiler(DialectSQLite)

	q := queryir.Universe().
		Where(queryir.Equals{Field: "sku", Value: ir.IRString("x' OR '1'='1")}).
		Where(queryir.HasAttribute{Code: "color", Values: []string{"red"}})

	stmt, err := c.CompileSelect(q)
	require.NoError(t, err)

	assert.NotContains(t, stmt.SQL, "OR '1'")
	assert.NotContains(t, stmt.SQL, "red")
	assert.Equal(t, []any{"x' OR '1'='1", "color", "red"}, stmt.Args)
}

func TestCompileSelect_AllPredicates(t *testing.T) {
	c := NewCompiler(DialectSQLite)

	tests := []struct {
		name string
		pred queryir.Predicate
		sql  string
		args []any
	}{
		{
			name: "compare",
			pred: queryir.Compare{Field: "price", Op: queryir.OpGTE, Value: ir.IRInt(500)},
			sql:  "items.price >= ?",
			args: []any{int64(500)},
		},
		{
			name: "in strings",
			pred: queryir.In{Field: "sku", Values: []ir.IRValue{ir.IRString("a"), ir.IRString("b")}},
			sql:  "items.sku IN (?, ?)",
			args: []any{"a", "b"},
		},
		{
			name: "empty in",
			pred: queryir.In{Field: "sku"},
			sql:  "1 = 0",
			args: []any{},
		},
		{
			name: "id set",
			pred: queryir.IDSet{IDs: []int64{2, 40000}},
			sql:  "items.id IN (SELECT value FROM json_each(?))",
			args: []any{"[2,40000]"},
		},
		{
			name: "empty id set",
			pred: queryir.IDSet{},
			sql:  "1 = 0",
			args: []any{},
		},
		{
			name: "column compare",
			pred: queryir.ColumnCompare{Left: "special_price", Op: queryir.OpLT, Right: "price"},
			sql:  "items.special_price < items.price",
			args: []any{},
		},
		{
			name: "not null",
			pred: queryir.NotNull{Field: "special_price"},
			sql:  "items.special_price IS NOT NULL",
			args: []any{},
		},
		{
			name: "bool",
			pred: queryir.Equals{Field: "featured", Value: ir.IRBool(true)},
			sql:  "items.featured = ?",
			args: []any{true},
		},
		{
			name: "attribute",
			pred: queryir.HasAttribute{Code: "color", Values: []string{"red", "blue"}},
			sql:  "EXISTS (SELECT 1 FROM item_attributes ia WHERE ia.item_id = items.id AND ia.code = ? AND ia.value IN (?, ?))",
			args: []any{"color", "red", "blue"},
		},
		{
			name: "category tree",
			pred: queryir.InCategoryTree{Root: 4},
			sql:  "EXISTS (SELECT 1 FROM item_categories ic JOIN categories c ON c.id = ic.category_id WHERE ic.item_id = items.id AND (c.id = ? OR c.path LIKE ((SELECT r.path FROM categories r WHERE r.id = ?) || '/%')))",
			args: []any{int64(4), int64(4)},
		},
		{
			name: "empty and",
			pred: queryir.And{},
			sql:  "1 = 1",
			args: []any{},
		},
		{
			name: "nested and",
			pred: queryir.And{Predicates: []queryir.Predicate{
				queryir.NotNull{Field: "a"},
				queryir.And{Predicates: []queryir.Predicate{
					queryir.NotNull{Field: "b"},
					queryir.NotNull{Field: "c"},
				}},
			}},
			sql:  "items.a IS NOT NULL AND (items.b IS NOT NULL AND items.c IS NOT NULL)",
			args: []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := c.CompileSelect(queryir.Select{From: "items", Filter: tt.pred})
			require.NoError(t, err)
			assert.Equal(t, "SELECT items.id FROM items WHERE "+tt.sql+" ORDER BY items.id ASC", stmt.SQL)
			assert.Equal(t, tt.args, stmt.Args)
		})
	}
}

func TestCompileSelect_NormalizesStrings(t *testing.T) {
	c := NewCompiler(DialectSQLite)

	stmt, err := c.CompileSelect(queryir.Universe().Where(queryir.Equals{Field: "name", Value: ir.IRString("cafe\u0301")}))
	require.NoError(t, err)
	assert.Equal(t, []any{"caf\u00e9"}, stmt.Args)
}

func TestCompileSelect_RejectsInvalidQuery(t *testing.T) {
	c := NewCompiler(DialectSQLite)

	_, err := c.CompileSelect(queryir.Universe().Where(queryir.Equals{Field: "price; --", Value: ir.IRInt(1)}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid field name")
}

func TestCompileDeleteStale_Unscoped(t *testing.T) {
	c := NewCompiler(DialectSQLite)

	stmt, err := c.CompileDeleteStale("grouping_items", 7, matching124(), nil)
	require.NoError(t, err)

	assert.Equal(t,
		"DELETE FROM grouping_items WHERE grouping_id = ? AND item_id NOT IN (SELECT items.id FROM items WHERE items.id IN (?, ?, ?))",
		stmt.SQL)
	assert.Equal(t, []any{int64(7), int64(1), int64(2), int64(4)}, stmt.Args)
}

func TestCompileDeleteStale_Scoped(t *testing.T) {
	c := NewCompiler(DialectSQLite)

	stmt, err := c.CompileDeleteStale("grouping_items", 7, matching124(), []int64{3, 5})
	require.NoError(t, err)

	assert.Equal(t,
		"DELETE FROM grouping_items WHERE grouping_id = ? AND item_id NOT IN (SELECT items.id FROM items WHERE items.id IN (?, ?, ?)) AND item_id IN (SELECT value FROM json_each(?))",
		stmt.SQL)
	assert.Equal(t, []any{int64(7), int64(1), int64(2), int64(4), "[3,5]"}, stmt.Args)
}

func TestCompileDeleteStale_EmptyScopeDeletesNothing(t *testing.T) {
	c := NewCompiler(DialectSQLite)

	stmt, err := c.CompileDeleteStale("grouping_items", 7, matching124(), []int64{})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, " AND 1 = 0")
}

func TestCompileDeleteStale_Postgres(t *testing.T) {
	c := NewCompiler(DialectPostgres)

	stmt, err := c.CompileDeleteStale("grouping_items", 7, matching124(), []int64{3})
	require.NoError(t, err)

	assert.Equal(t,
		"DELETE FROM grouping_items WHERE grouping_id = $1 AND item_id NOT IN (SELECT items.id FROM items WHERE items.id IN ($2, $3, $4)) AND item_id = ANY(CAST($5 AS BIGINT[]))",
		stmt.SQL)
	assert.Equal(t, "{3}", stmt.Args[4])
}

func TestCompileInsertMatching_LargeCandidateSetIsOneParameter(t *testing.T) {
	ids := make([]int64, 40000)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	q := queryir.Universe().Where(queryir.IDSet{IDs: ids})

	for _, d := range []Dialect{DialectSQLite, DialectPostgres} {
		t.Run(string(d), func(t *testing.T) {
			stmt, err := NewCompiler(d).CompileInsertMatching("grouping_items", 7, q, nil)
			require.NoError(t, err)
			require.Len(t, stmt.Args, 2)
			assert.Equal(t, int64(7), stmt.Args[0])
			assert.Contains(t, stmt.Args[1], ",39999,40000")
		})
	}
}

func TestCompileDeleteStale_RejectsBadTable(t *testing.T) {
	c := NewCompiler(DialectSQLite)

	_, err := c.CompileDeleteStale("grouping_items; DROP TABLE items", 7, matching124(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid membership table name")
}

func TestCompileInsertMatching_DefaultPosition(t *testing.T) {
	c := NewCompiler(DialectSQLite)

	stmt, err := c.CompileInsertMatching("grouping_items", 7, matching124(), nil)
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO grouping_items (grouping_id, item_id, position) SELECT CAST(? AS BIGINT), items.id, 0 FROM items WHERE items.id IN (?, ?, ?) ON CONFLICT (grouping_id, item_id) DO NOTHING",
		stmt.SQL)
	assert.Equal(t, []any{int64(7), int64(1), int64(2), int64(4)}, stmt.Args)
}

func TestCompileInsertMatching_AlwaysHasWhere(t *testing.T) {
	c := NewCompiler(DialectSQLite)

	stmt, err := c.CompileInsertMatching("grouping_items", 7, queryir.Universe(), queryir.Const{Value: 3})
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "SELECT CAST(? AS BIGINT), items.id, 3 FROM items WHERE 1 = 1 ON CONFLICT")
}

func TestCompileInsertMatching_RejectsNegativeConstant(t *testing.T) {
	c := NewCompiler(DialectSQLite)

	_, err := c.CompileInsertMatching("grouping_items", 7, queryir.Universe(), queryir.Const{Value: -2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-negative")
}

func TestCompileInsertMatching_Golden(t *testing.T) {
	q := queryir.Universe().
		Where(queryir.Equals{Field: "status", Value: ir.IRInt(1)}).
		Where(queryir.ColumnCompare{Left: "special_price", Op: queryir.OpLT, Right: "price"}).
		Where(queryir.InCategoryTree{Root: 4}).
		Where(queryir.HasAttribute{Code: "color", Values: []string{"red", "blue"}})

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, d := range []Dialect{DialectSQLite, DialectPostgres} {
		t.Run(string(d), func(t *testing.T) {
			stmt, err := NewCompiler(d).CompileInsertMatching("grouping_items", 12, q, queryir.Column{Field: "sort_order"})
			require.NoError(t, err)
			g.Assert(t, "insert_sale_in_category_"+string(d), []byte(stmt.String()))
		})
	}
}

func TestDialectForDriver(t *testing.T) {
	d, err := DialectForDriver("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	d, err = DialectForDriver("pgx")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	_, err = DialectForDriver("mysql")
	require.Error(t, err)
}

func TestRebind_SkipsQuotedLiterals(t *testing.T) {
	got := DialectPostgres.Rebind("SELECT ? WHERE a LIKE '?%' AND b = ?")
	assert.Equal(t, "SELECT $1 WHERE a LIKE '?%' AND b = $2", got)
	assert.Equal(t, "a = ?", DialectSQLite.Rebind("a = ?"))
}
