// Package queryir provides the abstract query representation that grouping
// rules are translated into.
//
// The IR is the boundary between rule definitions and the persisted store.
// Rules never evaluate items in application code; they narrow a Select over
// the item universe, and the querysql package compiles that Select into
// parameterized SQL so matching and diffing run inside the store.
//
//	[grouping rule] -> [queryir.Select] -> [querysql] -> DELETE / INSERT...SELECT
//
// # Sealed Interfaces
//
// Predicate and Expr are sealed with marker methods. Only types in this
// package implement them, which gives backends exhaustive type switches:
//
//	switch p := pred.(type) {
//	case Equals:
//	case Compare:
//	case In:
//	...
//	}
//
// # Predicates
//
//   - Equals, Compare, In: column against literal values
//   - IDSet: item id in a set bound as one parameter
//   - ColumnCompare: column against column of the same row
//   - NotNull: column has a value
//   - HasAttribute: EAV attribute match via item_attributes
//   - InCategoryTree: item assigned to a category or any descendant
//   - And: conjunction (empty = always true)
//
// OR is deliberately absent. Disjunction over values of a single column is
// expressed with In; anything else is a separate grouping.
//
// # Values
//
// Literal values are ir.IRValue scalars (IRString, IRInt, IRBool). Floats
// cannot be expressed. Identifiers are validated by Validate and again by
// the compiler before being written into SQL.
package queryir
