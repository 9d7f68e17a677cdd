package grouping

import (
	"fmt"
	"slices"
	"sync"
)

// Source resolves grouping references.
type Source interface {
	// Lookup returns the grouping with the given id, or an error wrapping
	// ErrGroupingNotFound.
	Lookup(id int64) (Grouping, error)

	// All returns every known grouping ordered by id.
	All() []Grouping
}

// Registry is an in-memory Source. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	groupings map[int64]Grouping
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{groupings: make(map[int64]Grouping)}
}

// Register validates g and adds it. Registering the same id twice fails.
func (r *Registry) Register(g Grouping) error {
	if err := g.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.groupings[g.ID]; ok {
		return fmt.Errorf("%w: duplicate grouping id %d (%q and %q)", ErrInvalidGrouping, g.ID, existing.Name, g.Name)
	}
	r.groupings[g.ID] = g
	return nil
}

// Lookup implements Source.
func (r *Registry) Lookup(id int64) (Grouping, error) {
	if id <= 0 {
		return Grouping{}, fmt.Errorf("%w: id must be positive, got %d", ErrInvalidGrouping, id)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groupings[id]
	if !ok {
		return Grouping{}, fmt.Errorf("%w: id %d", ErrGroupingNotFound, id)
	}
	return g, nil
}

// All implements Source.
func (r *Registry) All() []Grouping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Grouping, 0, len(r.groupings))
	for _, g := range r.groupings {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b Grouping) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of registered groupings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groupings)
}
