package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autocat/internal/ir"
)

func TestUniverse(t *testing.T) {
	q := Universe()
	assert.Equal(t, "items", q.From)
	assert.Nil(t, q.Filter)
}

func TestWhere_FirstPredicateIsUsedDirectly(t *testing.T) {
	p := Equals{Field: "status", Value: ir.IRInt(1)}
	q := Universe().Where(p)

	assert.Equal(t, p, q.Filter)
}

func TestWhere_SecondPredicateBuildsAnd(t *testing.T) {
	a := Equals{Field: "status", Value: ir.IRInt(1)}
	b := NotNull{Field: "special_price"}
	q := Universe().Where(a).Where(b)

	and, ok := q.Filter.(And)
	require.True(t, ok)
	assert.Equal(t, []Predicate{a, b}, and.Predicates)
}

func TestWhere_NilIsNoop(t *testing.T) {
	q := Universe().Where(nil)
	assert.Nil(t, q.Filter)
}

func TestWhere_DoesNotMutateSharedQuery(t *testing.T) {
	base := Universe().
		Where(Equals{Field: "status", Value: ir.IRInt(1)}).
		Where(Equals{Field: "visibility", Value: ir.IRInt(4)})

	left := base.Where(IDSet{IDs: []int64{1}})
	right := base.Where(IDSet{IDs: []int64{2}})

	baseAnd := base.Filter.(And)
	assert.Len(t, baseAnd.Predicates, 2, "base query must stay untouched")
	assert.Equal(t, IDSet{IDs: []int64{1}}, left.Filter.(And).Predicates[2])
	assert.Equal(t, IDSet{IDs: []int64{2}}, right.Filter.(And).Predicates[2])
}

func TestPredicate_SealedTypeSwitch(t *testing.T) {
	preds := []Predicate{
		Equals{}, Compare{}, In{}, IDSet{}, ColumnCompare{}, NotNull{},
		HasAttribute{}, InCategoryTree{}, And{},
	}
	for _, p := range preds {
		switch p.(type) {
		case Equals, Compare, In, IDSet, ColumnCompare, NotNull, HasAttribute, InCategoryTree, And:
		default:
			t.Fatalf("unexpected predicate type %T", p)
		}
	}
}

func TestOpValid(t *testing.T) {
	for _, op := range []Op{OpLT, OpLTE, OpGT, OpGTE, OpNE} {
		assert.True(t, op.Valid(), string(op))
	}
	assert.False(t, Op("LIKE").Valid())
	assert.False(t, Op("").Valid())
}
