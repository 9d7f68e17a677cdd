package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical encodes v as RFC 8785 canonical JSON. Fingerprints and
// golden snapshots are built from this encoding only.
//
// Unlike json.Marshal it sorts object keys by UTF-16 code units, leaves
// < > & unescaped and NFC-normalizes strings. Floats and null are errors.
func MarshalCanonical(v any) ([]byte, error) {
	return appendCanonical(nil, v)
}

// NormalizeString returns the NFC form of s.
// Rule values and stored attribute values both pass through here so that
// visually identical strings compare equal inside the store.
func NormalizeString(s string) string {
	return norm.NFC.String(s)
}

func appendCanonical(dst []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case IRString:
		return appendString(dst, string(val))
	case string:
		return appendString(dst, val)
	case IRInt:
		return strconv.AppendInt(dst, int64(val), 10), nil
	case IRBool:
		return strconv.AppendBool(dst, bool(val)), nil
	case IRArray:
		dst = append(dst, '[')
		for i, elem := range val {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendCanonical(dst, elem); err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		return append(dst, ']'), nil
	case IRObject:
		dst = append(dst, '{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendString(dst, k); err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			dst = append(dst, ':')
			if dst, err = appendCanonical(dst, val[k]); err != nil {
				return nil, fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		return append(dst, '}'), nil
	}

	converted, err := ToIRValue(v)
	if err != nil {
		return nil, fmt.Errorf("canonical JSON: %w", err)
	}
	return appendCanonical(dst, converted)
}

// appendString writes the NFC form of s as a JSON string. Only control
// characters, backslash and quote are escaped.
func appendString(dst []byte, s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(NormalizeString(s)); err != nil {
		return nil, err
	}
	return appendUnescapedSeparators(dst, bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// appendUnescapedSeparators copies quoted to dst, turning the \u2028 and
// \u2029 escapes emitted by encoding/json back into raw runes. An escape
// that follows an odd run of backslashes is literal text.
func appendUnescapedSeparators(dst, quoted []byte) []byte {
	if !bytes.Contains(quoted, []byte(`\u202`)) {
		return append(dst, quoted...)
	}
	slashes := 0
	for i := 0; i < len(quoted); i++ {
		c := quoted[i]
		if c == '\\' && slashes%2 == 0 && bytes.HasPrefix(quoted[i:], []byte(`\u202`)) && i+5 < len(quoted) {
			r := ""
			switch quoted[i+5] {
			case '8':
				r = "\u2028"
			case '9':
				r = "\u2029"
			}
			if r != "" {
				dst = append(dst, r...)
				i += 5
				slashes = 0
				continue
			}
		}
		if c == '\\' {
			slashes++
		} else {
			slashes = 0
		}
		dst = append(dst, c)
	}
	return dst
}
