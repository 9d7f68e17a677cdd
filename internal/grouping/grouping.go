package grouping

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/autocat/internal/ir"
	"github.com/roach88/autocat/internal/queryir"
)

var (
	// ErrGroupingNotFound is returned when a grouping reference does not resolve.
	ErrGroupingNotFound = errors.New("grouping not found")

	// ErrInvalidGrouping is returned for groupings that cannot be reconciled.
	ErrInvalidGrouping = errors.New("invalid grouping")
)

// Grouping is a computed collection of items.
type Grouping struct {
	// ID identifies the target category/collection. Must be positive.
	ID int64

	// Name is a human label, used in logs only.
	Name string

	// Enabled gates maintenance. Disabled groupings keep their rows.
	Enabled bool

	// Rule decides which items belong to the grouping.
	Rule Rule

	// Position computes each new row's position inside the store.
	// Nil means constant 0.
	Position queryir.Expr
}

// Kind returns the tag of the grouping's rule, or "" when it has none.
func (g Grouping) Kind() Kind {
	if g.Rule == nil {
		return ""
	}
	return g.Rule.Kind()
}

// Validate reports why g cannot be reconciled. Errors wrap ErrInvalidGrouping.
func (g Grouping) Validate() error {
	if g.ID <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", ErrInvalidGrouping, g.ID)
	}
	if g.Rule == nil {
		return fmt.Errorf("%w: grouping %d has no rule", ErrInvalidGrouping, g.ID)
	}
	if err := g.Rule.validate(); err != nil {
		return fmt.Errorf("%w: grouping %d: %v", ErrInvalidGrouping, g.ID, err)
	}
	if res := queryir.ValidateExpr(g.Position); !res.Valid {
		return fmt.Errorf("%w: grouping %d: %v", ErrInvalidGrouping, g.ID, res.Err())
	}
	return nil
}

// Definition returns the grouping as an IRObject for fingerprinting.
func (g Grouping) Definition() ir.IRObject {
	def := ir.IRObject{
		"id":      ir.IRInt(g.ID),
		"name":    ir.IRString(g.Name),
		"enabled": ir.IRBool(g.Enabled),
	}
	if g.Rule != nil {
		def["kind"] = ir.IRString(g.Rule.Kind())
		def["rule"] = g.Rule.definition()
	}
	switch pos := g.Position.(type) {
	case queryir.Const:
		def["position"] = ir.IRObject{"const": ir.IRInt(pos.Value)}
	case queryir.Column:
		def["position"] = ir.IRObject{"column": ir.IRString(pos.Field)}
	}
	return def
}

// Fingerprint returns the content hash of the grouping definition.
func (g Grouping) Fingerprint() (string, error) {
	return ir.Fingerprint(g.Definition())
}

// Env carries the inputs a rule may depend on besides the item universe.
type Env struct {
	// Now returns the reference time for relative date rules.
	Now func() time.Time
}

// DefaultEnv uses the wall clock.
func DefaultEnv() Env {
	return Env{Now: time.Now}
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
