// Package actor defines stat subjects: characters and creatures carrying base statistics,
// effects, and items.
package actor

import (
	"fmt"
	"sort"

	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/stats"
)

// Item is an owned object that may transfer effects onto its bearer while active.
type Item struct {
	ID      string           `yaml:"id" json:"id"`
	Name    string           `yaml:"name" json:"name"`
	Active  bool             `yaml:"active" json:"active"`
	Effects []*effect.Effect `yaml:"effects,omitempty" json:"effects,omitempty"`
	// EffectRefs names effect library templates copied into Effects by LinkItemEffects.
	EffectRefs []string `yaml:"effect_refs,omitempty" json:"effect_refs,omitempty"`
}

// Clone returns a deep copy of it.
func (it *Item) Clone() *Item {
	cp := *it
	cp.EffectRefs = append([]string(nil), it.EffectRefs...)
	cp.Effects = cloneEffects(it.Effects)
	return &cp
}

// FindEffect returns the item effect with id.
func (it *Item) FindEffect(id string) (*effect.Effect, bool) {
	for _, e := range it.Effects {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// Subject is an entity whose statistics can be modified by effects.
//
// Base holds the unmodified value of every statistic the subject overrides; fields absent
// from Base take the schema default. Derived values are never stored on the subject.
type Subject struct {
	ID       string                 `yaml:"id" json:"id"`
	Name     string                 `yaml:"name" json:"name"`
	Type     string                 `yaml:"type" json:"type"`
	Owners   []string               `yaml:"owners,omitempty" json:"owners,omitempty"`
	Base     map[string]stats.Value `yaml:"base,omitempty" json:"base,omitempty"`
	Effects  []*effect.Effect       `yaml:"effects,omitempty" json:"effects,omitempty"`
	Items    []*Item                `yaml:"items,omitempty" json:"items,omitempty"`
	Defeated bool                   `yaml:"defeated,omitempty" json:"defeated,omitempty"`
}

// Clone returns a deep copy of s.
func (s *Subject) Clone() *Subject {
	cp := *s
	cp.Owners = append([]string(nil), s.Owners...)
	if s.Base != nil {
		cp.Base = make(map[string]stats.Value, len(s.Base))
		for k, v := range s.Base {
			cp.Base[k] = v.Clone()
		}
	}
	cp.Effects = cloneEffects(s.Effects)
	if s.Items != nil {
		cp.Items = make([]*Item, len(s.Items))
		for i, it := range s.Items {
			cp.Items[i] = it.Clone()
		}
	}
	return &cp
}

// FindEffect returns the subject's own effect with id.
func (s *Subject) FindEffect(id string) (*effect.Effect, bool) {
	for _, e := range s.Effects {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// FindItem returns the item with id.
func (s *Subject) FindItem(id string) (*Item, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

// AppliedEffects returns the effects whose changes currently apply to s: its own enabled
// passive effects, plus enabled passive transfer effects of active items. Transferred effects
// of inactive items are suppressed.
//
// Postcondition: The result is ordered by CreatedSeq, ties keeping own effects before item
// effects in declaration order.
func (s *Subject) AppliedEffects() []*effect.Effect {
	var out []*effect.Effect
	for _, e := range s.Effects {
		if !e.Disabled && e.Trigger.IsPassive() {
			out = append(out, e)
		}
	}
	for _, it := range s.Items {
		if !it.Active {
			continue
		}
		for _, e := range it.Effects {
			if e.Transfer && !e.Disabled && e.Trigger.IsPassive() {
				out = append(out, e)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedSeq < out[j].CreatedSeq })
	return out
}

// MaxCreatedSeq returns the largest CreatedSeq among own effects.
func (s *Subject) MaxCreatedSeq() int64 {
	var m int64
	for _, e := range s.Effects {
		if e.CreatedSeq > m {
			m = e.CreatedSeq
		}
	}
	return m
}

// Validate checks s against schemas: the type must be known, every base path declared, and
// every base value of the declared kind.
func (s *Subject) Validate(schemas stats.Schemas) error {
	if s.ID == "" {
		return fmt.Errorf("subject has no id")
	}
	sc, ok := schemas.Lookup(s.Type)
	if !ok {
		return fmt.Errorf("subject %q: unknown type %q", s.ID, s.Type)
	}
	for path, v := range s.Base {
		kind, ok := sc.FieldType(path)
		if !ok {
			return fmt.Errorf("subject %q: base path %q is not a %s field", s.ID, path, s.Type)
		}
		if v.Kind != kind {
			return fmt.Errorf("subject %q: base %q is %s, want %s", s.ID, path, v.Kind, kind)
		}
	}
	for _, e := range s.Effects {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("subject %q: %w", s.ID, err)
		}
	}
	return nil
}

func cloneEffects(in []*effect.Effect) []*effect.Effect {
	if in == nil {
		return nil
	}
	out := make([]*effect.Effect, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}
