package ir

import (
	"fmt"
	"math"
	"slices"
	"unicode/utf16"
)

// IRValue is a value that can appear in a grouping definition or a
// canonical snapshot. The set is closed: strings, integers, booleans,
// arrays and objects. There is no float; prices are minor units.
type IRValue interface {
	irValue()
}

type (
	IRString string
	IRInt    int64
	IRBool   bool
	IRArray  []IRValue

	// IRObject maps keys to values. Iterate with SortedKeys for stable output.
	IRObject map[string]IRValue
)

func (IRString) irValue() {}
func (IRInt) irValue()    {}
func (IRBool) irValue()   {}
func (IRArray) irValue()  {}
func (IRObject) irValue() {}

// SortedKeys returns the keys in canonical JSON order, which compares
// UTF-16 code units rather than bytes.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// ToIRValue converts a decoded Go value (YAML, JSON or CUE) to an IRValue.
//
// Integers of any width become IRInt. A float64 is accepted only when it
// holds an exact integer, since some decoders produce those for plain
// numbers. nil is rejected.
func ToIRValue(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden")
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint:
		return fromUnsigned(uint64(val))
	case uint32:
		return IRInt(val), nil
	case uint64:
		return fromUnsigned(val)
	case float64:
		if math.Trunc(val) != val || math.Abs(val) > 1<<53 {
			return nil, fmt.Errorf("floats are forbidden: %v", val)
		}
		return IRInt(int64(val)), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			conv, err := ToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			conv, err := ToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func fromUnsigned(u uint64) (IRValue, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("integer out of int64 range: %d", u)
	}
	return IRInt(u), nil
}
