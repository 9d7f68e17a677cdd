package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autocat/internal/ir"
)

func TestValidate_ValidQuery(t *testing.T) {
	q := Universe().
		Where(Equals{Field: "status", Value: ir.IRInt(1)}).
		Where(Compare{Field: "price", Op: OpGTE, Value: ir.IRInt(1000)}).
		Where(ColumnCompare{Left: "special_price", Op: OpLT, Right: "price"}).
		Where(HasAttribute{Code: "color", Values: []string{"red"}}).
		Where(InCategoryTree{Root: 4}).
		Where(In{Field: "id"}).
		Where(IDSet{IDs: []int64{1, 2}})

	result := Validate(q)
	assert.True(t, result.Valid, result.Problems)
	assert.NoError(t, result.Err())
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name    string
		query   Select
		problem string
	}{
		{
			name:    "bad table",
			query:   Select{From: "items; DROP TABLE x"},
			problem: "invalid table name",
		},
		{
			name:    "non-positive id in set",
			query:   Universe().Where(IDSet{IDs: []int64{3, 0}}),
			problem: "ids[1]: id must be positive",
		},
		{
			name:    "bad field",
			query:   Universe().Where(Equals{Field: "price--", Value: ir.IRInt(1)}),
			problem: "invalid field name",
		},
		{
			name:    "missing value",
			query:   Universe().Where(Equals{Field: "price"}),
			problem: "value is required",
		},
		{
			name:    "non scalar value",
			query:   Universe().Where(Equals{Field: "price", Value: ir.IRArray{}}),
			problem: "unsupported value type",
		},
		{
			name:    "bad operator",
			query:   Universe().Where(Compare{Field: "price", Op: "LIKE", Value: ir.IRInt(1)}),
			problem: "unsupported operator",
		},
		{
			name:    "attribute without values",
			query:   Universe().Where(HasAttribute{Code: "color"}),
			problem: "needs at least one value",
		},
		{
			name:    "attribute without code",
			query:   Universe().Where(HasAttribute{Values: []string{"red"}}),
			problem: "attribute code is required",
		},
		{
			name:    "non positive category root",
			query:   Universe().Where(InCategoryTree{Root: 0}),
			problem: "category root must be positive",
		},
		{
			name:    "nil inside and",
			query:   Universe().Where(And{Predicates: []Predicate{nil}}),
			problem: "filter.and[0]: nil predicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query)
			require.False(t, result.Valid)
			require.NotEmpty(t, result.Problems)
			assert.Contains(t, result.Problems[0], tt.problem)
			assert.ErrorContains(t, result.Err(), tt.problem)
		})
	}
}

func TestValidateExpr(t *testing.T) {
	assert.True(t, ValidateExpr(nil).Valid)
	assert.True(t, ValidateExpr(Const{Value: 0}).Valid)
	assert.True(t, ValidateExpr(Column{Field: "sort_order"}).Valid)

	neg := ValidateExpr(Const{Value: -1})
	require.False(t, neg.Valid)
	assert.Contains(t, neg.Problems[0], "non-negative")

	bad := ValidateExpr(Column{Field: "1col"})
	require.False(t, bad.Valid)
	assert.Contains(t, bad.Problems[0], "invalid field name")
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("grouping_items"))
	assert.True(t, ValidIdentifier("_x1"))
	assert.False(t, ValidIdentifier(""))
	assert.False(t, ValidIdentifier("a.b"))
	assert.False(t, ValidIdentifier("a b"))
	assert.False(t, ValidIdentifier("9lives"))
}
