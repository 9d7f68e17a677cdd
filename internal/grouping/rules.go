package grouping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/autocat/internal/ir"
	"github.com/roach88/autocat/internal/queryir"
)

// Kind tags a rule variant.
type Kind string

// Rule kinds. This set is closed; Build switches over it exhaustively.
const (
	KindAttribute   Kind = "attribute"
	KindField       Kind = "field"
	KindCategory    Kind = "category"
	KindDateRange   Kind = "date_range"
	KindNewArrivals Kind = "new_arrivals"
	KindPriceRange  Kind = "price_range"
	KindOnSale      Kind = "on_sale"
	KindAllOf       Kind = "all_of"
)

// Kinds lists every supported rule kind.
var Kinds = []Kind{
	KindAttribute, KindField, KindCategory, KindDateRange,
	KindNewArrivals, KindPriceRange, KindOnSale, KindAllOf,
}

// Item columns referenced by the built-in rules.
const (
	fieldCreatedAt    = "created_at"
	fieldPrice        = "price"
	fieldSpecialPrice = "special_price"
)

const secondsPerDay = 24 * 60 * 60

// Rule narrows an item query to the items belonging to a grouping.
//
// This is a sealed interface - only types in this package implement it.
type Rule interface {
	// Kind returns the variant tag.
	Kind() Kind

	// Narrow returns q restricted to matching items. It must not modify q.
	Narrow(q queryir.Select, env Env) (queryir.Select, error)

	validate() error
	definition() ir.IRObject
}

// AttributeRule matches items whose EAV attribute Code has one of Values.
type AttributeRule struct {
	Code   string
	Values []string
}

func (AttributeRule) Kind() Kind { return KindAttribute }

func (r AttributeRule) Narrow(q queryir.Select, _ Env) (queryir.Select, error) {
	return q.Where(queryir.HasAttribute{Code: r.Code, Values: r.Values}), nil
}

func (r AttributeRule) validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return errors.New("attribute: code is required")
	}
	if len(r.Values) == 0 {
		return fmt.Errorf("attribute %q: at least one value is required", r.Code)
	}
	return nil
}

func (r AttributeRule) definition() ir.IRObject {
	values := make(ir.IRArray, len(r.Values))
	for i, v := range r.Values {
		values[i] = ir.IRString(v)
	}
	return ir.IRObject{"code": ir.IRString(r.Code), "values": values}
}

// FieldRule matches items whose column Field equals one of Values.
type FieldRule struct {
	Field  string
	Values []ir.IRValue
}

func (FieldRule) Kind() Kind { return KindField }

func (r FieldRule) Narrow(q queryir.Select, _ Env) (queryir.Select, error) {
	if len(r.Values) == 1 {
		return q.Where(queryir.Equals{Field: r.Field, Value: r.Values[0]}), nil
	}
	return q.Where(queryir.In{Field: r.Field, Values: r.Values}), nil
}

func (r FieldRule) validate() error {
	if !queryir.ValidIdentifier(r.Field) {
		return fmt.Errorf("field: invalid column name %q", r.Field)
	}
	if len(r.Values) == 0 {
		return fmt.Errorf("field %q: at least one value is required", r.Field)
	}
	for i, v := range r.Values {
		switch v.(type) {
		case ir.IRString, ir.IRInt, ir.IRBool:
		default:
			return fmt.Errorf("field %q: values[%d] must be a string, int or bool", r.Field, i)
		}
	}
	return nil
}

func (r FieldRule) definition() ir.IRObject {
	return ir.IRObject{"field": ir.IRString(r.Field), "values": ir.IRArray(r.Values)}
}

// CategoryRule matches items assigned to category Root or any descendant.
type CategoryRule struct {
	Root int64
}

func (CategoryRule) Kind() Kind { return KindCategory }

func (r CategoryRule) Narrow(q queryir.Select, _ Env) (queryir.Select, error) {
	return q.Where(queryir.InCategoryTree{Root: r.Root}), nil
}

func (r CategoryRule) validate() error {
	if r.Root <= 0 {
		return fmt.Errorf("category: root must be positive, got %d", r.Root)
	}
	return nil
}

func (r CategoryRule) definition() ir.IRObject {
	return ir.IRObject{"root": ir.IRInt(r.Root)}
}

// DateRangeRule matches items whose Field (unix seconds) lies in [From, To).
// A zero bound is open. Field defaults to created_at.
type DateRangeRule struct {
	Field string
	From  int64
	To    int64
}

func (DateRangeRule) Kind() Kind { return KindDateRange }

func (r DateRangeRule) field() string {
	if r.Field == "" {
		return fieldCreatedAt
	}
	return r.Field
}

func (r DateRangeRule) Narrow(q queryir.Select, _ Env) (queryir.Select, error) {
	if r.From != 0 {
		q = q.Where(queryir.Compare{Field: r.field(), Op: queryir.OpGTE, Value: ir.IRInt(r.From)})
	}
	if r.To != 0 {
		q = q.Where(queryir.Compare{Field: r.field(), Op: queryir.OpLT, Value: ir.IRInt(r.To)})
	}
	return q, nil
}

func (r DateRangeRule) validate() error {
	if !queryir.ValidIdentifier(r.field()) {
		return fmt.Errorf("date_range: invalid column name %q", r.Field)
	}
	if r.From == 0 && r.To == 0 {
		return errors.New("date_range: from or to is required")
	}
	if r.From != 0 && r.To != 0 && r.To <= r.From {
		return fmt.Errorf("date_range: to (%d) must be after from (%d)", r.To, r.From)
	}
	return nil
}

func (r DateRangeRule) definition() ir.IRObject {
	return ir.IRObject{"field": ir.IRString(r.field()), "from": ir.IRInt(r.From), "to": ir.IRInt(r.To)}
}

// NewArrivalsRule matches items created within the last WithinDays days,
// measured from Env.Now at the time the run builds its query.
type NewArrivalsRule struct {
	WithinDays int64
}

func (NewArrivalsRule) Kind() Kind { return KindNewArrivals }

func (r NewArrivalsRule) Narrow(q queryir.Select, env Env) (queryir.Select, error) {
	cutoff := env.now().Unix() - r.WithinDays*secondsPerDay
	return q.Where(queryir.Compare{Field: fieldCreatedAt, Op: queryir.OpGTE, Value: ir.IRInt(cutoff)}), nil
}

func (r NewArrivalsRule) validate() error {
	if r.WithinDays <= 0 {
		return fmt.Errorf("new_arrivals: within_days must be positive, got %d", r.WithinDays)
	}
	return nil
}

func (r NewArrivalsRule) definition() ir.IRObject {
	return ir.IRObject{"within_days": ir.IRInt(r.WithinDays)}
}

// PriceRangeRule matches items with Min <= price <= Max (minor units).
// Max of 0 leaves the range open at the top.
type PriceRangeRule struct {
	Min int64
	Max int64
}

func (PriceRangeRule) Kind() Kind { return KindPriceRange }

func (r PriceRangeRule) Narrow(q queryir.Select, _ Env) (queryir.Select, error) {
	q = q.Where(queryir.Compare{Field: fieldPrice, Op: queryir.OpGTE, Value: ir.IRInt(r.Min)})
	if r.Max > 0 {
		q = q.Where(queryir.Compare{Field: fieldPrice, Op: queryir.OpLTE, Value: ir.IRInt(r.Max)})
	}
	return q, nil
}

func (r PriceRangeRule) validate() error {
	if r.Min < 0 || r.Max < 0 {
		return errors.New("price_range: bounds must be non-negative")
	}
	if r.Max > 0 && r.Max < r.Min {
		return fmt.Errorf("price_range: max (%d) is below min (%d)", r.Max, r.Min)
	}
	return nil
}

func (r PriceRangeRule) definition() ir.IRObject {
	return ir.IRObject{"min": ir.IRInt(r.Min), "max": ir.IRInt(r.Max)}
}

// OnSaleRule matches items with a special price below their regular price.
type OnSaleRule struct{}

func (OnSaleRule) Kind() Kind { return KindOnSale }

func (OnSaleRule) Narrow(q queryir.Select, _ Env) (queryir.Select, error) {
	return q.
		Where(queryir.NotNull{Field: fieldSpecialPrice}).
		Where(queryir.ColumnCompare{Left: fieldSpecialPrice, Op: queryir.OpLT, Right: fieldPrice}), nil
}

func (OnSaleRule) validate() error { return nil }

func (OnSaleRule) definition() ir.IRObject { return ir.IRObject{} }

// AllOf applies each rule in order; an item must match all of them.
type AllOf struct {
	Rules []Rule
}

func (AllOf) Kind() Kind { return KindAllOf }

func (r AllOf) Narrow(q queryir.Select, env Env) (queryir.Select, error) {
	for i, rule := range r.Rules {
		var err error
		q, err = rule.Narrow(q, env)
		if err != nil {
			return queryir.Select{}, fmt.Errorf("all_of[%d]: %w", i, err)
		}
	}
	return q, nil
}

func (r AllOf) validate() error {
	if len(r.Rules) == 0 {
		return errors.New("all_of: at least one rule is required")
	}
	for i, rule := range r.Rules {
		if rule == nil {
			return fmt.Errorf("all_of[%d]: nil rule", i)
		}
		if err := rule.validate(); err != nil {
			return fmt.Errorf("all_of[%d]: %w", i, err)
		}
	}
	return nil
}

func (r AllOf) definition() ir.IRObject {
	rules := make(ir.IRArray, len(r.Rules))
	for i, rule := range r.Rules {
		rules[i] = ir.IRObject{"kind": ir.IRString(rule.Kind()), "rule": rule.definition()}
	}
	return ir.IRObject{"rules": rules}
}
