package queryir

import (
	"slices"

	"github.com/roach88/autocat/internal/ir"
)

// UniverseTable is the item table every grouping query starts from.
const UniverseTable = "items"

// IDField is the item identity column.
const IDField = "id"

// Predicate represents a filter condition over the item universe.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Expr represents a per-item value computed by the store, used for
// membership positions.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// Select is a query over a single source table.
//
// Semantics:
//
//	SELECT <from>.id FROM <from> WHERE <filter>
//
// The projection is always the id column; callers decide how the id set is
// used (NOT IN for deletes, INSERT...SELECT for inserts).
type Select struct {
	From   string    // Source table (normally UniverseTable)
	Filter Predicate // WHERE conditions (nil = no filter)
}

// Universe returns an unrestricted query over the full item universe.
func Universe() Select {
	return Select{From: UniverseTable}
}

// Where returns a copy of s narrowed by p.
//
// The existing filter is never mutated: a fresh And is built each time, so
// a Select shared between callers stays valid after either one narrows it.
func (s Select) Where(p Predicate) Select {
	if p == nil {
		return s
	}
	switch existing := s.Filter.(type) {
	case nil:
		s.Filter = p
	case And:
		preds := slices.Clone(existing.Predicates)
		s.Filter = And{Predicates: append(preds, p)}
	default:
		s.Filter = And{Predicates: []Predicate{existing, p}}
	}
	return s
}

// Op is a comparison operator for Compare and ColumnCompare.
type Op string

// Comparison operators.
const (
	OpLT  Op = "<"
	OpLTE Op = "<="
	OpGT  Op = ">"
	OpGTE Op = ">="
	OpNE  Op = "<>"
)

// Valid reports whether op is one of the supported operators.
func (op Op) Valid() bool {
	switch op {
	case OpLT, OpLTE, OpGT, OpGTE, OpNE:
		return true
	}
	return false
}

// Equals matches rows where Field equals a literal value.
//
//	<field> = ?
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// Compare matches rows where Field compares to a literal value with Op.
//
//	<field> <op> ?
type Compare struct {
	Field string
	Op    Op
	Value ir.IRValue
}

func (Compare) predicateNode() {}

// In matches rows where Field is one of Values.
//
//	<field> IN (?, ?, ...)
//
// An empty Values list matches nothing.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// IDSet matches rows whose id is one of IDs. Unlike In, the whole set is
// bound as a single parameter, so its size is not limited by the driver's
// placeholder count.
//
// An empty IDs list matches nothing.
type IDSet struct {
	IDs []int64
}

func (IDSet) predicateNode() {}

// ColumnCompare compares two columns of the same row.
//
//	<left> <op> <right>
//
// NULL on either side never matches.
type ColumnCompare struct {
	Left  string
	Op    Op
	Right string
}

func (ColumnCompare) predicateNode() {}

// NotNull matches rows where Field has a value.
type NotNull struct {
	Field string
}

func (NotNull) predicateNode() {}

// HasAttribute matches items carrying attribute Code with one of Values.
//
//	EXISTS (SELECT 1 FROM item_attributes WHERE item_id = items.id
//	        AND code = ? AND value IN (?, ...))
type HasAttribute struct {
	Code   string
	Values []string
}

func (HasAttribute) predicateNode() {}

// InCategoryTree matches items assigned to category Root or any category
// below it in the tree.
type InCategoryTree struct {
	Root int64
}

func (InCategoryTree) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Const is a constant position value.
type Const struct {
	Value int64
}

func (Const) exprNode() {}

// Column reads the position from an item column. NULL and negative values
// are clamped to 0 by the compiler.
type Column struct {
	Field string
}

func (Column) exprNode() {}
