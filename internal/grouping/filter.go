package grouping

import (
	"fmt"
	"slices"

	"github.com/roach88/autocat/internal/queryir"
)

// Apply narrows universe to the items that belong to g.
//
// The result is a new query; universe is left untouched. The grouping must
// be valid. Narrowing never evaluates anything: it only adds predicates for
// the store to run.
func Apply(universe queryir.Select, g Grouping, env Env) (queryir.Select, error) {
	if err := g.Validate(); err != nil {
		return queryir.Select{}, err
	}
	q, err := g.Rule.Narrow(universe, env)
	if err != nil {
		return queryir.Select{}, fmt.Errorf("%w: grouping %d: %v", ErrInvalidGrouping, g.ID, err)
	}
	if res := queryir.Validate(q); !res.Valid {
		return queryir.Select{}, fmt.Errorf("%w: grouping %d: %v", ErrInvalidGrouping, g.ID, res.Err())
	}
	return q, nil
}

// WithCandidates restricts q to the given item ids. ids should already be
// normalized; see NormalizeCandidates.
func WithCandidates(q queryir.Select, ids []int64) queryir.Select {
	return q.Where(queryir.IDSet{IDs: ids})
}

// NormalizeCandidates dedupes ids, drops non-positive values and sorts the
// rest. scoped reports whether the caller supplied a list at all: a nil or
// empty input means a full run.
//
// A scoped list may normalize to empty; such a run must change nothing.
func NormalizeCandidates(ids []int64) (normalized []int64, scoped bool) {
	if len(ids) == 0 {
		return nil, false
	}
	normalized = make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			normalized = append(normalized, id)
		}
	}
	slices.Sort(normalized)
	return slices.Compact(normalized), true
}
