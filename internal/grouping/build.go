package grouping

import (
	"fmt"
	"slices"

	"github.com/roach88/autocat/internal/ir"
	"github.com/roach88/autocat/internal/queryir"
)

// Build constructs the rule for kind from its parameters.
//
// Unknown kinds and unknown parameter keys are rejected. The returned rule
// is validated. Errors wrap ErrInvalidGrouping.
func Build(kind Kind, params ir.IRObject) (Rule, error) {
	rule, err := build(kind, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrouping, err)
	}
	if err := rule.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrouping, err)
	}
	return rule, nil
}

func build(kind Kind, params ir.IRObject) (Rule, error) {
	p := paramReader{kind: kind, obj: params}
	var rule Rule
	switch kind {
	case KindAttribute:
		rule = AttributeRule{Code: p.str("code"), Values: p.strList("values")}
	case KindField:
		rule = FieldRule{Field: p.str("field"), Values: p.valueList("values")}
	case KindCategory:
		rule = CategoryRule{Root: p.int("root")}
	case KindDateRange:
		rule = DateRangeRule{Field: p.str("field"), From: p.int("from"), To: p.int("to")}
	case KindNewArrivals:
		rule = NewArrivalsRule{WithinDays: p.int("within_days")}
	case KindPriceRange:
		rule = PriceRangeRule{Min: p.int("min"), Max: p.int("max")}
	case KindOnSale:
		rule = OnSaleRule{}
	case KindAllOf:
		rule = AllOf{Rules: p.rules("rules")}
	default:
		return nil, fmt.Errorf("unknown rule kind %q", kind)
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return rule, nil
}

// paramReader pulls typed values out of a rule's parameter object,
// recording the first problem it hits.
type paramReader struct {
	kind Kind
	obj  ir.IRObject
	used []string
	err  error
}

func (p *paramReader) get(key string) (ir.IRValue, bool) {
	p.used = append(p.used, key)
	v, ok := p.obj[key]
	return v, ok
}

func (p *paramReader) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: "+format, append([]any{p.kind}, args...)...)
	}
}

func (p *paramReader) str(key string) string {
	v, ok := p.get(key)
	if !ok {
		return ""
	}
	s, ok := v.(ir.IRString)
	if !ok {
		p.fail("%s must be a string", key)
		return ""
	}
	return ir.NormalizeString(string(s))
}

func (p *paramReader) int(key string) int64 {
	v, ok := p.get(key)
	if !ok {
		return 0
	}
	n, ok := v.(ir.IRInt)
	if !ok {
		p.fail("%s must be an integer", key)
		return 0
	}
	return int64(n)
}

func (p *paramReader) list(key string) ir.IRArray {
	v, ok := p.get(key)
	if !ok {
		return nil
	}
	arr, ok := v.(ir.IRArray)
	if !ok {
		p.fail("%s must be a list", key)
		return nil
	}
	return arr
}

func (p *paramReader) strList(key string) []string {
	arr := p.list(key)
	out := make([]string, 0, len(arr))
	for i, v := range arr {
		s, ok := v.(ir.IRString)
		if !ok {
			p.fail("%s[%d] must be a string", key, i)
			return nil
		}
		out = append(out, ir.NormalizeString(string(s)))
	}
	return out
}

func (p *paramReader) valueList(key string) []ir.IRValue {
	v, ok := p.obj[key]
	if ok {
		// A bare scalar is shorthand for a one-element list.
		switch v.(type) {
		case ir.IRString, ir.IRInt, ir.IRBool:
			p.used = append(p.used, key)
			return []ir.IRValue{v}
		}
	}
	arr := p.list(key)
	return []ir.IRValue(arr)
}

func (p *paramReader) rules(key string) []Rule {
	arr := p.list(key)
	out := make([]Rule, 0, len(arr))
	for i, v := range arr {
		obj, ok := v.(ir.IRObject)
		if !ok {
			p.fail("%s[%d] must be an object", key, i)
			return nil
		}
		kind, ok := obj["kind"].(ir.IRString)
		if !ok {
			p.fail("%s[%d].kind must be a string", key, i)
			return nil
		}
		params, _ := obj["rule"].(ir.IRObject)
		rule, err := build(Kind(kind), params)
		if err != nil {
			p.fail("%s[%d]: %v", key, i, err)
			return nil
		}
		out = append(out, rule)
	}
	return out
}

func (p *paramReader) finish() error {
	if p.err != nil {
		return p.err
	}
	for _, key := range p.obj.SortedKeys() {
		if !slices.Contains(p.used, key) {
			return fmt.Errorf("%s: unknown parameter %q", p.kind, key)
		}
	}
	return nil
}

// ParsePosition builds a position expression from its definition object:
// {"const": n} or {"column": "name"}. A nil object yields nil (constant 0).
func ParsePosition(def ir.IRObject) (queryir.Expr, error) {
	if def == nil {
		return nil, nil
	}
	if len(def) != 1 {
		return nil, fmt.Errorf("%w: position must set exactly one of const or column", ErrInvalidGrouping)
	}
	if v, ok := def["const"]; ok {
		n, ok := v.(ir.IRInt)
		if !ok {
			return nil, fmt.Errorf("%w: position.const must be an integer", ErrInvalidGrouping)
		}
		return queryir.Const{Value: int64(n)}, nil
	}
	if v, ok := def["column"]; ok {
		s, ok := v.(ir.IRString)
		if !ok {
			return nil, fmt.Errorf("%w: position.column must be a string", ErrInvalidGrouping)
		}
		return queryir.Column{Field: string(s)}, nil
	}
	return nil, fmt.Errorf("%w: position must set exactly one of const or column", ErrInvalidGrouping)
}
