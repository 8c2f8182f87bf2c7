// Package effect defines active effects, their changes, and the duration policy vocabulary.
package effect

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode selects the combination algebra of a Change.
// The zero value (ModeUnset) defers to the catalog default for the change key.
type Mode int

const (
	ModeUnset Mode = iota
	ModeCustom
	ModeMultiply
	ModeAdd
	ModeDowngrade
	ModeUpgrade
	ModeOverride
)

var modeNames = map[Mode]string{
	ModeCustom:    "custom",
	ModeMultiply:  "multiply",
	ModeAdd:       "add",
	ModeDowngrade: "downgrade",
	ModeUpgrade:   "upgrade",
	ModeOverride:  "override",
}

// String returns the lower-case mode name.
func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unset"
}

// DefaultPriority is the ordering weight used when a change carries no explicit priority.
// Custom changes run first and overrides run last.
//
// Postcondition: Returns 10 * (ordinal - 1) for set modes, 0 for ModeUnset.
func (m Mode) DefaultPriority() int {
	if m <= ModeUnset {
		return 0
	}
	return int(m-ModeCustom) * 10
}

// ParseMode converts a mode name (case-insensitive) into a Mode.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" || name == "unset" {
		return ModeUnset, nil
	}
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return ModeUnset, fmt.Errorf("unknown change mode %q", s)
}

// UnmarshalYAML decodes a mode from its name.
func (m *Mode) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseMode(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*m = parsed
	return nil
}

// MarshalText encodes a mode as its name.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText decodes a mode from its name.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
