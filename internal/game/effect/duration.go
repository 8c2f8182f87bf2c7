package effect

import (
	"fmt"
	"sort"
	"strings"
)

// PolicyID names a duration policy.
type PolicyID string

const (
	PolicyNone                 PolicyID = "none"
	PolicyLuckEnds             PolicyID = "luckEnds"
	PolicyOneRound             PolicyID = "1round"
	PolicyTwoRounds            PolicyID = "2rounds"
	PolicyXRounds              PolicyID = "Xrounds"
	PolicyTurnEnd              PolicyID = "turnEnd"
	PolicyNextTriggerTurnStart PolicyID = "nextTriggerTurnStart"
	PolicyNextTargetTurnStart  PolicyID = "nextTargetTurnStart"
	PolicyNextTriggerTurnEnd   PolicyID = "nextTriggerTurnEnd"
	PolicyNextTargetTurnEnd    PolicyID = "nextTargetTurnEnd"
	PolicyOneMinute            PolicyID = "1minute"
	PolicyMinutes              PolicyID = "minutes"
	PolicyHours                PolicyID = "hours"
	PolicyDays                 PolicyID = "days"
)

// Duration is the time box of an effect. Exactly one of Rounds and Seconds is meaningful.
type Duration struct {
	Selected   PolicyID `yaml:"selected" json:"selected"`
	Rounds     *int     `yaml:"rounds,omitempty" json:"rounds,omitempty"`
	Seconds    *int     `yaml:"seconds,omitempty" json:"seconds,omitempty"`
	StartRound *int     `yaml:"start_round,omitempty" json:"start_round,omitempty"`
	StartTurn  *int     `yaml:"start_turn,omitempty" json:"start_turn,omitempty"`
	StartTime  *int64   `yaml:"start_time,omitempty" json:"start_time,omitempty"`
	// CombatID is the combat in which StartRound was stamped; empty outside combat.
	CombatID   string `yaml:"combat_id,omitempty" json:"combat_id,omitempty"`
	AutoExpire bool   `yaml:"auto_expire,omitempty" json:"auto_expire,omitempty"`
}

// Clone returns a deep copy of d.
func (d Duration) Clone() Duration {
	cp := d
	cp.Rounds = clonePtr(d.Rounds)
	cp.Seconds = clonePtr(d.Seconds)
	cp.StartRound = clonePtr(d.StartRound)
	cp.StartTurn = clonePtr(d.StartTurn)
	cp.StartTime = clonePtr(d.StartTime)
	return cp
}

// RoundsValue returns Rounds or 0 when unset.
func (d Duration) RoundsValue() int { return deref(d.Rounds) }

// SecondsValue returns Seconds or 0 when unset.
func (d Duration) SecondsValue() int { return deref(d.Seconds) }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func deref[T int | int64](p *T) T {
	if p == nil {
		return 0
	}
	return *p
}

// Ptr returns a pointer to v. Useful when building durations in content and tests.
func Ptr[T any](v T) *T { return &v }

// PolicyClass groups policies by the clock that measures them.
type PolicyClass int

const (
	ClassNone PolicyClass = iota
	ClassCalendar
	ClassRounds
	ClassTurn
)

// Phase is the part of a combatant's turn at which turn policies are evaluated.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
)

// Relation names the combatant whose turn gates a turn policy.
type Relation int

const (
	// RelationBearer is the combatant carrying the effect, for the bare turnEnd policy.
	RelationBearer Relation = iota
	// RelationTarget is the bearer, for the next-target policies.
	RelationTarget
	// RelationTrigger is the origin combatant whose action created the effect.
	RelationTrigger
)

// Policy is the immutable description of one duration policy.
type Policy struct {
	ID    PolicyID
	Label string
	Class PolicyClass
	// FixedRounds and UnitSeconds normalise a user amount: rounds = FixedRounds or amount,
	// seconds = UnitSeconds * amount.
	FixedRounds int
	UnitSeconds int
	Phase       Phase
	Relation    Relation
	// Bare is true for the unconditional bearer turn-end policy.
	Bare bool
}

// Registry is the process-wide policy table. It is immutable after NewRegistry.
type Registry struct {
	policies map[PolicyID]*Policy
}

// NewRegistry builds the policy table. Turn gating is derived from each id with the
// host's legacy rules: the id must contain "turn" and a phase, "turnend" alone gates the
// bearer, otherwise "target" or "trigger" selects the gating combatant.
//
// Postcondition: Every PolicyID constant is registered.
func NewRegistry() *Registry {
	r := &Registry{policies: make(map[PolicyID]*Policy)}
	add := func(p Policy) { r.policies[p.ID] = &p }

	add(Policy{ID: PolicyNone, Label: "None", Class: ClassNone})
	add(Policy{ID: PolicyLuckEnds, Label: "Luck ends", Class: ClassRounds, FixedRounds: 0})
	add(Policy{ID: PolicyOneRound, Label: "1 round", Class: ClassRounds, FixedRounds: 1})
	add(Policy{ID: PolicyTwoRounds, Label: "2 rounds", Class: ClassRounds, FixedRounds: 2})
	add(Policy{ID: PolicyXRounds, Label: "X rounds", Class: ClassRounds})
	add(Policy{ID: PolicyOneMinute, Label: "1 minute", Class: ClassCalendar, UnitSeconds: 60})
	add(Policy{ID: PolicyMinutes, Label: "Minutes", Class: ClassCalendar, UnitSeconds: 60})
	add(Policy{ID: PolicyHours, Label: "Hours", Class: ClassCalendar, UnitSeconds: 3600})
	add(Policy{ID: PolicyDays, Label: "Days", Class: ClassCalendar, UnitSeconds: 86400})

	turnLabels := map[PolicyID]string{
		PolicyTurnEnd:              "End of turn",
		PolicyNextTriggerTurnStart: "Start of the trigger's next turn",
		PolicyNextTargetTurnStart:  "Start of the target's next turn",
		PolicyNextTriggerTurnEnd:   "End of the trigger's next turn",
		PolicyNextTargetTurnEnd:    "End of the target's next turn",
	}
	for id, label := range turnLabels {
		p, ok := turnPolicy(id)
		if !ok {
			panic("effect: turn policy id does not satisfy gating rules: " + string(id))
		}
		p.Label = label
		add(p)
	}
	return r
}

// turnPolicy derives phase and relation from a policy id.
func turnPolicy(id PolicyID) (Policy, bool) {
	ns := strings.ToLower(string(id))
	if !strings.Contains(ns, "turn") {
		return Policy{}, false
	}
	p := Policy{ID: id, Class: ClassTurn}
	switch {
	case strings.Contains(ns, string(PhaseStart)):
		p.Phase = PhaseStart
	case strings.Contains(ns, string(PhaseEnd)):
		p.Phase = PhaseEnd
	default:
		return Policy{}, false
	}
	switch {
	case ns == "turnend":
		p.Bare = true
		p.Relation = RelationBearer
	case strings.Contains(ns, "target"):
		p.Relation = RelationTarget
		p.FixedRounds = 1
	case strings.Contains(ns, "trigger"):
		p.Relation = RelationTrigger
		p.FixedRounds = 1
	default:
		return Policy{}, false
	}
	return p, true
}

// Lookup returns the policy for id.
func (r *Registry) Lookup(id PolicyID) (*Policy, bool) {
	p, ok := r.policies[id]
	return p, ok
}

// All returns every policy sorted by id.
func (r *Registry) All() []*Policy {
	out := make([]*Policy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Normalize builds a Duration for selected with a user-entered amount (rounds for
// round policies, units of the policy for calendar policies).
// Calendar policies zero out rounds and combat policies zero out seconds.
//
// Precondition: amount >= 0.
// Postcondition: Returns an error when selected is not registered.
func (r *Registry) Normalize(selected PolicyID, amount int, autoExpire bool) (Duration, error) {
	p, ok := r.policies[selected]
	if !ok {
		return Duration{}, fmt.Errorf("unknown duration policy %q", selected)
	}
	if amount < 0 {
		return Duration{}, fmt.Errorf("duration amount must be >= 0, got %d", amount)
	}
	d := Duration{Selected: selected, AutoExpire: autoExpire}
	switch p.Class {
	case ClassCalendar:
		n := amount
		if selected == PolicyOneMinute || n == 0 {
			n = 1
		}
		d.Rounds = Ptr(0)
		d.Seconds = Ptr(p.UnitSeconds * n)
	case ClassRounds, ClassTurn:
		rounds := p.FixedRounds
		if rounds == 0 && !p.Bare {
			rounds = amount
			if rounds == 0 {
				rounds = 1
			}
		}
		d.Rounds = Ptr(rounds)
		d.Seconds = Ptr(0)
	}
	return d, nil
}

// Format renders d for notifications, e.g. "2 rounds" or "10 minutes".
func (r *Registry) Format(d Duration) string {
	p, ok := r.policies[d.Selected]
	if !ok {
		return string(d.Selected)
	}
	switch p.Class {
	case ClassRounds:
		if d.Selected == PolicyLuckEnds {
			return p.Label
		}
		return plural(d.RoundsValue(), "round")
	case ClassCalendar:
		secs := d.SecondsValue()
		switch {
		case secs >= 86400 && secs%86400 == 0:
			return plural(secs/86400, "day")
		case secs >= 3600 && secs%3600 == 0:
			return plural(secs/3600, "hour")
		case secs >= 60 && secs%60 == 0:
			return plural(secs/60, "minute")
		default:
			return plural(secs, "second")
		}
	default:
		return p.Label
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
