package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autocat/internal/ir"
	"github.com/roach88/autocat/internal/queryir"
)

func saleGrouping() Grouping {
	return Grouping{ID: 7, Name: "sale", Enabled: true, Rule: OnSaleRule{}}
}

func TestApply_NarrowsUniverse(t *testing.T) {
	q, err := Apply(queryir.Universe(), saleGrouping(), Env{})
	require.NoError(t, err)
	assert.Equal(t, queryir.UniverseTable, q.From)
	assert.NotNil(t, q.Filter)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	base := queryir.Universe().
		Where(queryir.Equals{Field: "status", Value: ir.IRInt(1)}).
		Where(queryir.Equals{Field: "visibility", Value: ir.IRInt(4)})
	before := base.Filter.(queryir.And).Predicates

	_, err := Apply(base, saleGrouping(), Env{})
	require.NoError(t, err)

	assert.Len(t, base.Filter.(queryir.And).Predicates, 2)
	assert.Equal(t, before, base.Filter.(queryir.And).Predicates)
}

func TestApply_InvalidGrouping(t *testing.T) {
	_, err := Apply(queryir.Universe(), Grouping{ID: 7, Enabled: true}, Env{})
	assert.ErrorIs(t, err, ErrInvalidGrouping)

	_, err = Apply(queryir.Universe(), Grouping{ID: 0, Rule: OnSaleRule{}}, Env{})
	assert.ErrorIs(t, err, ErrInvalidGrouping)

	_, err = Apply(queryir.Universe(), Grouping{ID: 7, Rule: OnSaleRule{}, Position: queryir.Const{Value: -1}}, Env{})
	assert.ErrorIs(t, err, ErrInvalidGrouping)
}

func TestWithCandidates(t *testing.T) {
	q := WithCandidates(queryir.Universe(), []int64{3, 5})
	assert.Equal(t, queryir.IDSet{IDs: []int64{3, 5}}, q.Filter)
}

func TestNormalizeCandidates(t *testing.T) {
	tests := []struct {
		name       string
		in         []int64
		want       []int64
		wantScoped bool
	}{
		{"nil is full run", nil, nil, false},
		{"empty is full run", []int64{}, nil, false},
		{"dedupe and sort", []int64{5, 3, 5, 1}, []int64{1, 3, 5}, true},
		{"drops non-positive", []int64{0, -4, 2}, []int64{2}, true},
		{"all invalid stays scoped", []int64{0, -1}, []int64{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, scoped := NormalizeCandidates(tt.in)
			assert.Equal(t, tt.wantScoped, scoped)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFingerprint_ChangesWithRule(t *testing.T) {
	a := saleGrouping()
	b := saleGrouping()
	b.Rule = CategoryRule{Root: 4}

	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)

	again, err := saleGrouping().Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, again)
}
