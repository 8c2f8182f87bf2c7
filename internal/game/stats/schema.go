package stats

import (
	"fmt"
	"sort"
)

// Subject types known to the default schemas.
const (
	TypeCharacter = "character"
	TypeCreature  = "creature"
)

// Field is one declared statistic: its kind and its template default.
type Field struct {
	Kind    Kind
	Default Value
}

// Schema declares the statistic fields of one subject type.
// A Schema is immutable after construction and safe for concurrent use.
type Schema struct {
	typ    string
	fields map[string]Field
}

// NewSchema builds a Schema for typ from fields.
//
// Precondition: every Field.Default must be of Field.Kind.
// Postcondition: Returns an error naming the first mismatching path.
func NewSchema(typ string, fields map[string]Field) (*Schema, error) {
	cp := make(map[string]Field, len(fields))
	for path, f := range fields {
		if f.Kind == KindUnknown {
			return nil, fmt.Errorf("schema %s: field %q has no kind", typ, path)
		}
		if f.Default.Kind != f.Kind {
			return nil, fmt.Errorf("schema %s: field %q default is %s, want %s", typ, path, f.Default.Kind, f.Kind)
		}
		cp[path] = Field{Kind: f.Kind, Default: f.Default.Clone()}
	}
	return &Schema{typ: typ, fields: cp}, nil
}

// Type returns the subject type this schema describes.
func (s *Schema) Type() string { return s.typ }

// Has reports whether path is a declared field.
func (s *Schema) Has(path string) bool {
	_, ok := s.fields[path]
	return ok
}

// FieldType returns the declared kind of path.
func (s *Schema) FieldType(path string) (Kind, bool) {
	f, ok := s.fields[path]
	return f.Kind, ok
}

// Default returns the template default of path.
func (s *Schema) Default(path string) (Value, bool) {
	f, ok := s.fields[path]
	if !ok {
		return Value{}, false
	}
	return f.Default.Clone(), true
}

// Template returns a fresh copy of every field default.
func (s *Schema) Template() map[string]Value {
	out := make(map[string]Value, len(s.fields))
	for path, f := range s.fields {
		out[path] = f.Default.Clone()
	}
	return out
}

// Paths returns the declared field paths in lexicographic order.
func (s *Schema) Paths() []string {
	out := make([]string, 0, len(s.fields))
	for p := range s.fields {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Schemas maps subject type to its Schema.
type Schemas map[string]*Schema

// Lookup returns the schema for typ.
func (s Schemas) Lookup(typ string) (*Schema, bool) {
	sc, ok := s[typ]
	return sc, ok
}

var attributeNames = []string{"strength", "agility", "intellect", "will", "perception"}

// DefaultSchemas returns the built-in character and creature schemas.
//
// Postcondition: Returns schemas for TypeCharacter and TypeCreature.
func DefaultSchemas() Schemas {
	shared := map[string]Field{
		"characteristics.defense":          {Kind: KindNumber, Default: Number(10)},
		"characteristics.health.value":     {Kind: KindNumber, Default: Number(10)},
		"characteristics.health.max":       {Kind: KindNumber, Default: Number(10)},
		"characteristics.health.normal":    {Kind: KindNumber, Default: Number(10)},
		"characteristics.health.injured":   {Kind: KindBoolean, Default: Bool(false)},
		"characteristics.health.reduction": {Kind: KindNumber, Default: Number(0)},
		"characteristics.healingrate":      {Kind: KindNumber, Default: Number(2)},
		"characteristics.speed":            {Kind: KindNumber, Default: Number(10)},
		"characteristics.size":             {Kind: KindString, Default: String("1")},
		"characteristics.power":            {Kind: KindNumber, Default: Number(0)},
		"bonuses.attack.boons.all":         {Kind: KindNumber, Default: Number(0)},
		"bonuses.challenge.boons.all":      {Kind: KindNumber, Default: Number(0)},
		"bonuses.attack.damage":            {Kind: KindString, Default: String("")},
		"bonuses.attack.plus20Damage":      {Kind: KindString, Default: String("")},
		"bonuses.armor.fixed":              {Kind: KindNumber, Default: Number(0)},
		"bonuses.armor.agility":            {Kind: KindNumber, Default: Number(0)},
		"bonuses.armor.override":           {Kind: KindNumber, Default: Number(0)},
		"maluses.halfSpeed":                {Kind: KindBoolean, Default: Bool(false)},
		"maluses.noFastTurn":               {Kind: KindBoolean, Default: Bool(false)},
		"immunities":                       {Kind: KindArray, Default: Array()},
		"languages":                        {Kind: KindArray, Default: Array()},
	}
	for _, a := range attributeNames {
		shared["attributes."+a+".value"] = Field{Kind: KindNumber, Default: Number(10)}
		shared["attributes."+a+".immune"] = Field{Kind: KindBoolean, Default: Bool(false)}
		shared["bonuses.challenge.boons."+a] = Field{Kind: KindNumber, Default: Number(0)}
		shared["bonuses.attack.boons."+a] = Field{Kind: KindNumber, Default: Number(0)}
		shared["maluses.autoFail.challenge."+a] = Field{Kind: KindBoolean, Default: Bool(false)}
	}

	character := make(map[string]Field, len(shared)+4)
	creature := make(map[string]Field, len(shared)+2)
	for p, f := range shared {
		character[p] = f
		creature[p] = f
	}
	character["characteristics.insanity.value"] = Field{Kind: KindNumber, Default: Number(0)}
	character["characteristics.corruption.value"] = Field{Kind: KindNumber, Default: Number(0)}
	character["characteristics.level"] = Field{Kind: KindNumber, Default: Number(0)}
	creature["difficulty"] = Field{Kind: KindNumber, Default: Number(1)}
	creature["characteristics.perception"] = Field{Kind: KindNumber, Default: Number(10)}

	return Schemas{
		TypeCharacter: mustSchema(TypeCharacter, character),
		TypeCreature:  mustSchema(TypeCreature, creature),
	}
}

func mustSchema(typ string, fields map[string]Field) *Schema {
	s, err := NewSchema(typ, fields)
	if err != nil {
		panic("stats: invalid built-in schema: " + err.Error())
	}
	return s
}
