package effect

import "fmt"

// Target selects which tokens an effect is granted to when its trigger fires.
type Target string

const (
	TargetNone    Target = "none"
	TargetTokens  Target = "tokens"
	TargetEnemies Target = "enemies"
	TargetAllies  Target = "allies"
)

// Valid reports whether t is a known target selector. The empty string counts as none.
func (t Target) Valid() bool {
	switch t {
	case "", TargetNone, TargetTokens, TargetEnemies, TargetAllies:
		return true
	}
	return false
}

// Trigger is the circumstance under which an effect's changes apply.
type Trigger string

const (
	TriggerPassive    Trigger = "passive"
	TriggerOnUse      Trigger = "onUse"
	TriggerOnSuccess  Trigger = "onSuccess"
	TriggerOnCritical Trigger = "onCritical"
	TriggerOnFailure  Trigger = "onFailure"
)

// Valid reports whether t is a known trigger. The empty string counts as passive.
func (t Trigger) Valid() bool {
	switch t {
	case "", TriggerPassive, TriggerOnUse, TriggerOnSuccess, TriggerOnCritical, TriggerOnFailure:
		return true
	}
	return false
}

// IsPassive reports whether t applies continuously rather than on an action outcome.
func (t Trigger) IsPassive() bool { return t == "" || t == TriggerPassive }

// Change is one declarative mutation of a statistic.
type Change struct {
	// Key is either a schema path or a symbolic catalog key.
	Key string `yaml:"key" json:"key"`
	// Value is the raw value, coerced to the target field's kind at resolution time.
	Value string `yaml:"value" json:"value"`
	Mode  Mode   `yaml:"mode" json:"mode"`
	// Priority orders changes on the same subject; nil defers to Mode.DefaultPriority.
	Priority *int `yaml:"priority,omitempty" json:"priority,omitempty"`
	// Custom names the combiner used when Mode is ModeCustom; empty means the resolved path.
	Custom string `yaml:"custom,omitempty" json:"custom,omitempty"`
}

// EffectivePriority returns the explicit priority or the default for mode.
func (c Change) EffectivePriority(mode Mode) int {
	if c.Priority != nil {
		return *c.Priority
	}
	return mode.DefaultPriority()
}

// Effect is a bundle of changes with trigger, target and duration metadata.
type Effect struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Target   Target   `yaml:"target" json:"target"`
	Trigger  Trigger  `yaml:"trigger" json:"trigger"`
	Duration Duration `yaml:"duration" json:"duration"`
	Changes  []Change `yaml:"changes" json:"changes"`
	// GrantedBy references the item or actor that granted this effect; empty for GM-created effects.
	GrantedBy string `yaml:"granted_by,omitempty" json:"granted_by,omitempty"`
	// OriginID is the subject whose action caused the effect, the trigger combatant.
	OriginID string `yaml:"origin_id,omitempty" json:"origin_id,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	// Transfer marks item effects that apply to the item's owner while the item is active.
	Transfer bool `yaml:"transfer,omitempty" json:"transfer,omitempty"`
	// CreatedSeq orders effects by creation; ties in change priority fall back to it.
	CreatedSeq int64 `yaml:"created_seq,omitempty" json:"created_seq,omitempty"`
}

// Clone returns a deep copy of e.
func (e *Effect) Clone() *Effect {
	cp := *e
	cp.Duration = e.Duration.Clone()
	if e.Changes == nil {
		return &cp
	}
	cp.Changes = make([]Change, len(e.Changes))
	for i, c := range e.Changes {
		if c.Priority != nil {
			p := *c.Priority
			c.Priority = &p
		}
		cp.Changes[i] = c
	}
	return &cp
}

// Validate checks the structural invariants of e.
//
// Postcondition: Returns nil when Name is set, Target and Trigger are known, and every change has a key.
func (e *Effect) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("effect %q: name must not be empty", e.ID)
	}
	if !e.Target.Valid() {
		return fmt.Errorf("effect %q: unknown target %q", e.ID, e.Target)
	}
	if !e.Trigger.Valid() {
		return fmt.Errorf("effect %q: unknown trigger %q", e.ID, e.Trigger)
	}
	for i, c := range e.Changes {
		if c.Key == "" {
			return fmt.Errorf("effect %q: change %d has no key", e.ID, i)
		}
	}
	return nil
}

// Update is a partial mutation of one stored effect.
type Update struct {
	ID       string
	Disabled *bool
	Duration *Duration
}

// ApplyTo writes the set fields of u onto e.
//
// Precondition: e.ID == u.ID.
func (u Update) ApplyTo(e *Effect) {
	if u.Disabled != nil {
		e.Disabled = *u.Disabled
	}
	if u.Duration != nil {
		e.Duration = u.Duration.Clone()
	}
}
