package stats

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes a kind from its schema name.
func (k *Kind) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseKind(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*k = parsed
	return nil
}

// MarshalYAML encodes a kind as its schema name.
func (k Kind) MarshalYAML() (any, error) { return k.String(), nil }

// UnmarshalYAML decodes scalars and sequences into a Value.
// Booleans, numbers and strings keep their YAML type; sequences become arrays.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		items := make([]Value, 0, len(node.Content))
		for _, child := range node.Content {
			var it Value
			if err := it.UnmarshalYAML(child); err != nil {
				return err
			}
			items = append(items, it)
		}
		*v = Value{Kind: KindArray, Items: items}
		return nil
	case yaml.ScalarNode:
		switch node.ShortTag() {
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return err
			}
			*v = Bool(b)
		case "!!int", "!!float":
			var n float64
			if err := node.Decode(&n); err != nil {
				return err
			}
			*v = Number(n)
		default:
			*v = String(node.Value)
		}
		return nil
	default:
		return fmt.Errorf("line %d: statistic value must be a scalar or a sequence", node.Line)
	}
}

// MarshalJSON encodes v as its natural JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Number)
	case KindBoolean:
		return json.Marshal(v.Bool)
	case KindString:
		return json.Marshal(v.Str)
	case KindArray:
		if v.Items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Items)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a natural JSON value into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out, err := fromAny(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func fromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{}, nil
	case float64:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, e := range t {
			it, err := fromAny(e)
			if err != nil {
				return Value{}, err
			}
			items = append(items, it)
		}
		return Value{Kind: KindArray, Items: items}, nil
	default:
		return Value{}, fmt.Errorf("unsupported statistic value %T", raw)
	}
}
