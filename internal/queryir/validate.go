package queryir

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/autocat/internal/ir"
)

// identifierPattern matches SQL identifiers that are safe to interpolate.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name can be written into SQL unquoted.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// ValidationResult lists the structural problems found in a query.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems describes each violation with its location in the tree.
	Problems []string
}

// Err returns the problems as a single error, or nil if the query is valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid query: %s", strings.Join(r.Problems, "; "))
}

// Validate checks a Select before compilation.
//
// Rules:
//  1. From and every field name must be a plain identifier
//  2. Literal values must be IRString, IRInt or IRBool
//  3. Compare and ColumnCompare operators must be supported
//  4. HasAttribute needs a code and at least one value
//  5. InCategoryTree needs a positive root id
//
// An empty In is allowed; it compiles to a predicate that matches nothing.
//
// Validate is a pure function with no side effects.
func Validate(q Select) ValidationResult {
	v := &validator{}
	if !ValidIdentifier(q.From) {
		v.add("from: invalid table name %q", q.From)
	}
	if q.Filter != nil {
		v.predicate("filter", q.Filter)
	}
	return v.result()
}

// ValidateExpr checks a position expression.
func ValidateExpr(e Expr) ValidationResult {
	v := &validator{}
	switch expr := e.(type) {
	case nil:
		// Nil means the default constant 0.
	case Const:
		if expr.Value < 0 {
			v.add("position: constant must be non-negative, got %d", expr.Value)
		}
	case Column:
		v.field("position", expr.Field)
	default:
		v.add("position: unsupported expression %T", e)
	}
	return v.result()
}

type validator struct {
	problems []string
}

func (v *validator) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) result() ValidationResult {
	return ValidationResult{Valid: len(v.problems) == 0, Problems: v.problems}
}

func (v *validator) field(path, name string) {
	if !ValidIdentifier(name) {
		v.add("%s: invalid field name %q", path, name)
	}
}

func (v *validator) value(path string, val ir.IRValue) {
	switch val.(type) {
	case ir.IRString, ir.IRInt, ir.IRBool:
	case nil:
		v.add("%s: value is required", path)
	default:
		v.add("%s: unsupported value type %T", path, val)
	}
}

func (v *validator) op(path string, op Op) {
	if !op.Valid() {
		v.add("%s: unsupported operator %q", path, op)
	}
}

func (v *validator) predicate(path string, p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.field(path, pred.Field)
		v.value(path, pred.Value)
	case Compare:
		v.field(path, pred.Field)
		v.op(path, pred.Op)
		v.value(path, pred.Value)
	case In:
		v.field(path, pred.Field)
		for i, val := range pred.Values {
			v.value(fmt.Sprintf("%s.values[%d]", path, i), val)
		}
	case IDSet:
		for i, id := range pred.IDs {
			if id <= 0 {
				v.add("%s.ids[%d]: id must be positive, got %d", path, i, id)
			}
		}
	case ColumnCompare:
		v.field(path, pred.Left)
		v.field(path, pred.Right)
		v.op(path, pred.Op)
	case NotNull:
		v.field(path, pred.Field)
	case HasAttribute:
		if strings.TrimSpace(pred.Code) == "" {
			v.add("%s: attribute code is required", path)
		}
		if len(pred.Values) == 0 {
			v.add("%s: attribute %q needs at least one value", path, pred.Code)
		}
	case InCategoryTree:
		if pred.Root <= 0 {
			v.add("%s: category root must be positive, got %d", path, pred.Root)
		}
	case And:
		for i, child := range pred.Predicates {
			v.predicate(fmt.Sprintf("%s.and[%d]", path, i), child)
		}
	case nil:
		v.add("%s: nil predicate", path)
	default:
		v.add("%s: unsupported predicate %T", path, p)
	}
}
