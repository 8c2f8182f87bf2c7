package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/demonlord/internal/game/actor"
	"github.com/cory-johannsen/demonlord/internal/game/combat"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/notify"
)

// ErrMissingReference is returned when a grant names an item or effect that does not exist.
var ErrMissingReference = errors.New("missing reference")

// Outcome is the result of the action that fires item triggers.
type Outcome string

const (
	OutcomeUse      Outcome = "use"
	OutcomeSuccess  Outcome = "success"
	OutcomeCritical Outcome = "critical"
	OutcomeFailure  Outcome = "failure"
)

// Fires reports whether an effect with trigger t is granted for outcome o. onUse fires on
// every outcome; a critical is also a success.
func (o Outcome) Fires(t effect.Trigger) bool {
	switch t {
	case effect.TriggerOnUse:
		return true
	case effect.TriggerOnSuccess:
		return o == OutcomeSuccess || o == OutcomeCritical
	case effect.TriggerOnCritical:
		return o == OutcomeCritical
	case effect.TriggerOnFailure:
		return o == OutcomeFailure
	}
	return false
}

// GrantRequest asks for the triggered effects of one item to be applied.
type GrantRequest struct {
	// UserID receives error notices.
	UserID string
	// SourceID is the subject that used the item; it becomes the origin of granted effects.
	SourceID string
	ItemID   string
	// EffectIDs restricts the grant to these item effects; empty grants every effect the
	// outcome fires.
	EffectIDs []string
	Outcome   Outcome
	// TargetIDs are the explicitly selected subjects, used for target "tokens" and as the
	// fallback for allies and enemies outside combat.
	TargetIDs []string
	// Clock is the active combat, or nil outside combat.
	Clock     *combat.Clock
	WorldTime int64
}

// Granted is one effect copied onto a subject.
type Granted struct {
	SubjectID string
	Effect    *effect.Effect
}

// Granter copies triggered item effects onto their targets.
type Granter struct {
	store    Store
	sink     notify.Sink
	policies *effect.Registry
	logger   *zap.Logger
	newID    func() string
}

// NewGranter creates a Granter.
//
// Precondition: every argument must be non-nil.
func NewGranter(store Store, sink notify.Sink, policies *effect.Registry, logger *zap.Logger) *Granter {
	return &Granter{
		store:    store,
		sink:     sink,
		policies: policies,
		logger:   logger,
		newID:    func() string { return uuid.New().String() },
	}
}

// Grant applies the item effects fired by req.Outcome. Each target receives one
// CreateEffects batch.
//
// Postcondition: On ErrMissingReference nothing is written and an error notice is whispered
// to req.UserID.
func (g *Granter) Grant(ctx context.Context, req GrantRequest) ([]Granted, error) {
	source, err := g.store.LoadSubject(ctx, req.SourceID)
	if err != nil {
		return nil, fmt.Errorf("loading source %q: %w", req.SourceID, err)
	}
	defs, err := g.selectEffects(source, req)
	if err != nil {
		g.whisperError(ctx, req, err)
		return nil, err
	}

	var out []Granted
	var errs []error
	for _, targetID := range g.targetsFor(source.ID, defs, req) {
		target, err := g.store.LoadSubject(ctx, targetID)
		if err != nil {
			errs = append(errs, fmt.Errorf("loading target %q: %w", targetID, err))
			continue
		}
		seq := target.MaxCreatedSeq()
		var batch []*effect.Effect
		for _, def := range defs {
			if !g.targets(def, source.ID, targetID, req) {
				continue
			}
			seq++
			batch = append(batch, g.instantiate(def, source.ID, req, seq))
		}
		if len(batch) == 0 {
			continue
		}
		if err := g.store.CreateEffects(ctx, targetID, batch); err != nil {
			errs = append(errs, fmt.Errorf("granting to %q: %w", targetID, err))
			continue
		}
		for _, e := range batch {
			out = append(out, Granted{SubjectID: targetID, Effect: e})
		}
		g.logger.Debug("granted effects",
			zap.String("source", source.ID),
			zap.String("target", targetID),
			zap.Int("count", len(batch)),
		)
	}
	return out, errors.Join(errs...)
}

func (g *Granter) selectEffects(source *actor.Subject, req GrantRequest) ([]*effect.Effect, error) {
	item, ok := source.FindItem(req.ItemID)
	if !ok {
		return nil, fmt.Errorf("item %q on %q: %w", req.ItemID, source.ID, ErrMissingReference)
	}
	if len(req.EffectIDs) == 0 {
		var defs []*effect.Effect
		for _, e := range item.Effects {
			if !e.Trigger.IsPassive() && req.Outcome.Fires(e.Trigger) {
				defs = append(defs, e)
			}
		}
		return defs, nil
	}
	defs := make([]*effect.Effect, 0, len(req.EffectIDs))
	for _, id := range req.EffectIDs {
		e, ok := item.FindEffect(id)
		if !ok {
			return nil, fmt.Errorf("effect %q on item %q: %w", id, item.ID, ErrMissingReference)
		}
		if req.Outcome.Fires(e.Trigger) {
			defs = append(defs, e)
		}
	}
	return defs, nil
}

// targetsFor returns every subject some definition in defs selects, in a stable order.
func (g *Granter) targetsFor(sourceID string, defs []*effect.Effect, req GrantRequest) []string {
	var candidates []string
	candidates = append(candidates, sourceID)
	candidates = append(candidates, req.TargetIDs...)
	if req.Clock != nil {
		candidates = append(candidates, req.Clock.SubjectIDs()...)
	}
	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, id := range candidates {
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, def := range defs {
			if g.targets(def, sourceID, id, req) {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

// targets reports whether def selects subject id when fired by sourceID.
func (g *Granter) targets(def *effect.Effect, sourceID, id string, req GrantRequest) bool {
	switch def.Target {
	case "", effect.TargetNone:
		return id == sourceID
	case effect.TargetTokens:
		return contains(req.TargetIDs, id)
	case effect.TargetAllies, effect.TargetEnemies:
		if req.Clock == nil {
			return contains(req.TargetIDs, id)
		}
		src, ok := req.Clock.IndexOfSubject(sourceID)
		if !ok {
			return contains(req.TargetIDs, id)
		}
		at, ok := req.Clock.IndexOfSubject(id)
		if !ok || id == sourceID {
			return false
		}
		same := req.Clock.Combatants[src].Disposition == req.Clock.Combatants[at].Disposition
		return same == (def.Target == effect.TargetAllies)
	}
	return false
}

// instantiate copies def as a passive effect stamped with the current clocks.
func (g *Granter) instantiate(def *effect.Effect, sourceID string, req GrantRequest, seq int64) *effect.Effect {
	e := def.Clone()
	e.ID = g.newID()
	e.Trigger = effect.TriggerPassive
	e.Target = effect.TargetNone
	e.Transfer = false
	e.Disabled = false
	e.GrantedBy = req.ItemID
	e.OriginID = sourceID
	e.CreatedSeq = seq

	d := &e.Duration
	d.StartRound, d.StartTurn, d.StartTime, d.CombatID = nil, nil, nil, ""
	pol, ok := g.policies.Lookup(d.Selected)
	if !ok {
		return e
	}
	switch pol.Class {
	case effect.ClassCalendar:
		d.StartTime = effect.Ptr(req.WorldTime)
	case effect.ClassRounds, effect.ClassTurn:
		if req.Clock != nil {
			d.CombatID = req.Clock.CombatID
			d.StartRound = effect.Ptr(req.Clock.Round)
			d.StartTurn = effect.Ptr(req.Clock.Turn)
		}
	}
	return e
}

func (g *Granter) whisperError(ctx context.Context, req GrantRequest, cause error) {
	if req.UserID == "" {
		return
	}
	msg := notify.Message{
		SubjectID: req.SourceID,
		Title:     "Effect grant failed",
		Body:      cause.Error(),
		Whisper:   []string{req.UserID},
		Level:     notify.LevelError,
	}
	if err := g.sink.Notify(ctx, msg); err != nil {
		g.logger.Warn("grant error notice failed", zap.String("user", req.UserID), zap.Error(err))
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
