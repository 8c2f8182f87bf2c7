// Package lifecycle expires effects as the combat clock and world time advance.
package lifecycle

import (
	"github.com/cory-johannsen/demonlord/internal/game/actor"
	"github.com/cory-johannsen/demonlord/internal/game/combat"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
)

// EventKind names the clock event an evaluation pass runs for.
type EventKind int

const (
	EventCombatStart EventKind = iota
	EventRoundAdvance
	EventTurnStart
	EventTurnEnd
	EventWorldTime
)

// String returns a short label for logs and span names.
func (k EventKind) String() string {
	switch k {
	case EventCombatStart:
		return "combat_start"
	case EventRoundAdvance:
		return "round_advance"
	case EventTurnStart:
		return "turn_start"
	case EventTurnEnd:
		return "turn_end"
	case EventWorldTime:
		return "world_time"
	default:
		return "unknown"
	}
}

// Event is one evaluation trigger. Clock is set for combat events; Mover and Turn for turn
// events; WorldTime for world-time events.
type Event struct {
	Kind      EventKind
	Clock     combat.Clock
	Mover     combat.Combatant
	Turn      int
	WorldTime int64
}

// EventFromTransition converts a clock transition. ok is false for transitions that never
// expire anything.
func EventFromTransition(tr combat.Transition) (Event, bool) {
	ev := Event{Clock: tr.Clock, Mover: tr.Combatant, Turn: tr.Turn}
	switch tr.Kind {
	case combat.TransitionCombatStart:
		ev.Kind = EventCombatStart
		ev.Turn = -1
	case combat.TransitionRoundAdvance:
		ev.Kind = EventRoundAdvance
		ev.Turn = -1
	case combat.TransitionTurnStart:
		ev.Kind = EventTurnStart
	case combat.TransitionTurnEnd:
		ev.Kind = EventTurnEnd
	default:
		return Event{}, false
	}
	return ev, true
}

func (ev Event) phase() (effect.Phase, bool) {
	switch ev.Kind {
	case EventTurnStart:
		return effect.PhaseStart, true
	case EventTurnEnd:
		return effect.PhaseEnd, true
	}
	return "", false
}

// Reason explains why an effect expired.
type Reason string

const (
	ReasonElapsed  Reason = "elapsed"
	ReasonLeftover Reason = "leftover"
)

// Expiry is one effect selected for expiration.
type Expiry struct {
	Effect *effect.Effect
	Reason Reason
}

// Delete reports whether the expiry removes the effect rather than disabling it.
func (x Expiry) Delete() bool { return x.Effect.Duration.AutoExpire }

// Plan is the outcome of evaluating one subject against one event. Building a plan never
// mutates anything.
type Plan struct {
	Subject *actor.Subject
	Expired []Expiry
	// Adopt stamps a measurement origin onto effects that had none for this event's frame.
	Adopt []effect.Update
}

// Empty reports whether p commits nothing.
func (p Plan) Empty() bool { return len(p.Expired) == 0 && len(p.Adopt) == 0 }

// Deletes returns the IDs of expired effects that are deleted.
func (p Plan) Deletes() []string {
	var ids []string
	for _, x := range p.Expired {
		if x.Delete() {
			ids = append(ids, x.Effect.ID)
		}
	}
	return ids
}

// Updates returns one batch holding every disable and every adoption.
func (p Plan) Updates() []effect.Update {
	var out []effect.Update
	for _, x := range p.Expired {
		if !x.Delete() {
			out = append(out, effect.Update{ID: x.Effect.ID, Disabled: effect.Ptr(true)})
		}
	}
	return append(out, p.Adopt...)
}

// Evaluate selects the effects of s that expire at ev, and the effects that must be adopted
// into ev's frame of reference. Only the subject's own enabled effects are considered.
// onInvalid is called for every effect naming a policy that is not registered; such effects
// are treated as policy none. An empty policy is none without a warning.
//
// Postcondition: s is not modified; every effect appears in at most one of Expired and Adopt.
func Evaluate(policies *effect.Registry, s *actor.Subject, ev Event, onInvalid func(effect.PolicyID)) Plan {
	plan := Plan{Subject: s}
	for _, e := range s.Effects {
		if e.Disabled {
			continue
		}
		pol, ok := policies.Lookup(e.Duration.Selected)
		if !ok && e.Duration.Selected != "" {
			if onInvalid != nil {
				onInvalid(e.Duration.Selected)
			}
			continue
		}
		if ev.Kind == EventWorldTime {
			// An unselected or none policy still runs on the clock when seconds were recorded.
			legacy := (!ok || pol.Class == effect.ClassNone) && e.Duration.SecondsValue() > 0
			if legacy || (ok && pol.Class == effect.ClassCalendar) {
				evaluateCalendar(&plan, e, ev.WorldTime)
			}
			continue
		}
		if !ok || (pol.Class != effect.ClassRounds && pol.Class != effect.ClassTurn) {
			continue
		}

		d := e.Duration
		if ev.Kind == EventCombatStart && d.CombatID != "" && d.CombatID != ev.Clock.CombatID && d.RoundsValue() > 0 {
			plan.Expired = append(plan.Expired, Expiry{Effect: e, Reason: ReasonLeftover})
			continue
		}
		adopted := false
		if d.StartRound == nil || d.CombatID != ev.Clock.CombatID {
			d = d.Clone()
			d.CombatID = ev.Clock.CombatID
			d.StartRound = effect.Ptr(ev.Clock.Round)
			d.StartTurn = effect.Ptr(ev.Turn)
			adopted = true
		}
		if dueInCombat(pol, d, s.ID, e.OriginID, ev) {
			plan.Expired = append(plan.Expired, Expiry{Effect: e, Reason: ReasonElapsed})
			continue
		}
		if adopted {
			plan.Adopt = append(plan.Adopt, effect.Update{ID: e.ID, Duration: &d})
		}
	}
	return plan
}

// evaluateCalendar expires e once now reaches its start time plus its seconds, stamping the
// start time first when it is missing.
func evaluateCalendar(plan *Plan, e *effect.Effect, now int64) {
	d := e.Duration
	if d.StartTime == nil {
		d = d.Clone()
		d.StartTime = effect.Ptr(now)
		plan.Adopt = append(plan.Adopt, effect.Update{ID: e.ID, Duration: &d})
		return
	}
	if now-*d.StartTime >= int64(d.SecondsValue()) {
		plan.Expired = append(plan.Expired, Expiry{Effect: e, Reason: ReasonElapsed})
	}
}

// dueInCombat applies the round-count and turn-boundary rules to a stamped duration d.
func dueInCombat(pol *effect.Policy, d effect.Duration, bearerID, originID string, ev Event) bool {
	startRound := *d.StartRound
	switch pol.Class {
	case effect.ClassRounds:
		if ev.Kind != EventRoundAdvance {
			return false
		}
		return ev.Clock.Round-startRound >= roundsOf(pol, d)

	case effect.ClassTurn:
		phase, ok := ev.phase()
		if !ok || phase != pol.Phase {
			return false
		}
		if !relevantMover(pol.Relation, ev.Mover.SubjectID, bearerID, originID) {
			return false
		}
		if pol.Bare {
			return true
		}
		startTurn := -1
		if d.StartTurn != nil {
			startTurn = *d.StartTurn
		}
		// Occurrences of the relevant combatant's phase on turns after the one the effect
		// started in. When the effect started during the watched combatant's own turn this
		// is the round offset rule: nothing in the start round, one per later round.
		n := ev.Clock.Round - startRound
		if ev.Turn > startTurn {
			n++
		}
		return n >= roundsOf(pol, d)
	}
	return false
}

// roundsOf returns the stored round count, falling back to the policy's fixed count and
// then to one round.
func roundsOf(pol *effect.Policy, d effect.Duration) int {
	if n := d.RoundsValue(); n > 0 {
		return n
	}
	if pol.FixedRounds > 0 {
		return pol.FixedRounds
	}
	return 1
}

// relevantMover reports whether the mover is the combatant a turn policy watches.
// Trigger-relative effects with no recorded origin watch their bearer.
func relevantMover(rel effect.Relation, moverID, bearerID, originID string) bool {
	if moverID == "" {
		return false
	}
	if rel == effect.RelationTrigger && originID != "" {
		return moverID == originID
	}
	return moverID == bearerID
}
