// Package stats defines statistic values, their kinds, and per-subject-type schemas.
package stats

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the declared type of a statistic field.
// The zero value (KindUnknown) is intentionally invalid.
type Kind int

const (
	KindUnknown Kind = iota
	KindNumber
	KindBoolean
	KindString
	KindArray
)

// String returns the schema name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// ParseKind converts a schema name into a Kind.
//
// Postcondition: Returns KindUnknown and an error for unrecognised names.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "number":
		return KindNumber, nil
	case "boolean", "bool":
		return KindBoolean, nil
	case "string":
		return KindString, nil
	case "array":
		return KindArray, nil
	default:
		return KindUnknown, fmt.Errorf("unknown value kind %q", s)
	}
}

// Value is a tagged statistic value. Only the field matching Kind is meaningful.
type Value struct {
	Kind   Kind
	Number float64
	Bool   bool
	Str    string
	Items  []Value
}

// Number returns a numeric Value.
func Number(n float64) Value { return Value{Kind: KindNumber, Number: n} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }

// String returns a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Array returns an array Value holding a copy of items.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{Kind: KindArray, Items: cp}
}

// IsZero reports whether v carries no kind.
func (v Value) IsZero() bool { return v.Kind == KindUnknown }

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	if v.Kind != KindArray {
		return v
	}
	return Array(v.Items...)
}

// Equal reports whether v and o hold the same kind and contents.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Number == o.Number
	case KindBoolean:
		return v.Bool == o.Bool
	case KindString:
		return v.Str == o.Str
	case KindArray:
		if len(v.Items) != len(o.Items) {
			return false
		}
		for i := range v.Items {
			if !v.Items[i].Equal(o.Items[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders v for logs and notifications.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindString:
		return v.Str
	case KindArray:
		parts := make([]string, len(v.Items))
		for i, it := range v.Items {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return "<unset>"
	}
}

// Cast coerces the raw change value into kind. For arrays, each element is cast to the
// kind of the first element of sample, defaulting to string when sample is empty.
//
// Postcondition: Returns a Value of the requested kind, or an error naming the failure.
func Cast(raw string, kind Kind, sample Value) (Value, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case KindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("casting %q to number: %w", raw, err)
		}
		return Number(n), nil
	case KindBoolean:
		switch strings.ToLower(raw) {
		case "true", "1", "yes":
			return Bool(true), nil
		case "false", "0", "no", "":
			return Bool(false), nil
		}
		return Value{}, fmt.Errorf("casting %q to boolean", raw)
	case KindString:
		return String(raw), nil
	case KindArray:
		elemKind := KindString
		if sample.Kind == KindArray && len(sample.Items) > 0 && sample.Items[0].Kind != KindArray {
			elemKind = sample.Items[0].Kind
		}
		parts, err := splitArray(raw)
		if err != nil {
			return Value{}, err
		}
		items := make([]Value, 0, len(parts))
		for _, p := range parts {
			it, err := Cast(p, elemKind, Value{})
			if err != nil {
				return Value{}, fmt.Errorf("casting array element: %w", err)
			}
			items = append(items, it)
		}
		return Value{Kind: KindArray, Items: items}, nil
	default:
		return Value{}, fmt.Errorf("cannot cast %q to %s", raw, kind)
	}
}

// splitArray accepts either a JSON array or a comma separated list.
func splitArray(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var elems []any
		if err := json.Unmarshal([]byte(raw), &elems); err != nil {
			return nil, fmt.Errorf("parsing array %q: %w", raw, err)
		}
		out := make([]string, len(elems))
		for i, e := range elems {
			out[i] = fmt.Sprint(e)
		}
		return out, nil
	}
	fields := strings.Split(raw, ",")
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out, nil
}
