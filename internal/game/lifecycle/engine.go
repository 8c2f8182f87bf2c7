package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/demonlord/internal/game/actor"
	"github.com/cory-johannsen/demonlord/internal/game/combat"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/notify"
	"github.com/cory-johannsen/demonlord/internal/ownership"
	"github.com/cory-johannsen/demonlord/internal/storage"
)

//go:generate mockgen -destination=mock/mock_store.go -package=lifecyclemock github.com/cory-johannsen/demonlord/internal/game/lifecycle Store,Authority

const tracerName = "github.com/cory-johannsen/demonlord/internal/game/lifecycle"

// ErrOwnershipConflict is reported for subjects no connected user may evaluate.
var ErrOwnershipConflict = ownership.ErrOwnershipConflict

// Store is the document mutation surface the engine commits through.
type Store interface {
	LoadSubject(ctx context.Context, id string) (*actor.Subject, error)
	ListSubjects(ctx context.Context) ([]*actor.Subject, error)
	CreateEffects(ctx context.Context, subjectID string, effects []*effect.Effect) error
	UpdateEffects(ctx context.Context, subjectID string, updates []effect.Update) error
	DeleteEffects(ctx context.Context, subjectID string, ids []string) error
}

// Authority decides whether this process may commit expirations for a subject.
type Authority interface {
	IsAuthoritative(ctx context.Context, s *actor.Subject) (bool, error)
}

// Options tunes an Engine.
type Options struct {
	// Parallelism bounds concurrent subject commits; 0 means unbounded.
	Parallelism int
	// Sound is attached to expiration notices.
	Sound string
}

// Expired describes one committed expiration.
type Expired struct {
	SubjectID string
	EffectID  string
	Name      string
	Deleted   bool
	Reason    Reason
}

// Report summarises one evaluation pass.
type Report struct {
	Event   EventKind
	Expired []Expired
	Adopted int
	// Skipped lists subjects this process was not authoritative for.
	Skipped []string
}

// Engine evaluates and commits effect expirations for clock events. It implements
// combat.Handler.
type Engine struct {
	store     Store
	authority Authority
	sink      notify.Sink
	policies  *effect.Registry
	opts      Options
	logger    *zap.Logger
	tracer    trace.Tracer

	warnedMu sync.Mutex
	warned   map[effect.PolicyID]bool
}

// NewEngine wires an Engine.
//
// Precondition: every argument must be non-nil.
// Postcondition: Returns an Engine ready to be subscribed to a combat.Tracker.
func NewEngine(store Store, authority Authority, sink notify.Sink, policies *effect.Registry, opts Options, logger *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		authority: authority,
		sink:      sink,
		policies:  policies,
		opts:      opts,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		warned:    make(map[effect.PolicyID]bool),
	}
}

// HandleTransition implements combat.Handler.
func (e *Engine) HandleTransition(ctx context.Context, tr combat.Transition) error {
	ev, ok := EventFromTransition(tr)
	if !ok {
		return nil
	}
	_, err := e.run(ctx, ev, tr.Clock.SubjectIDs())
	return err
}

// OnCombatStart sweeps leftover round effects from earlier combats and adopts un-stamped
// round and turn effects into the new combat.
func (e *Engine) OnCombatStart(ctx context.Context, clock combat.Clock) (Report, error) {
	return e.run(ctx, Event{Kind: EventCombatStart, Clock: clock, Turn: -1}, clock.SubjectIDs())
}

// OnRoundAdvance expires round-count effects whose rounds have elapsed at clock.Round.
func (e *Engine) OnRoundAdvance(ctx context.Context, clock combat.Clock) (Report, error) {
	return e.run(ctx, Event{Kind: EventRoundAdvance, Clock: clock, Turn: -1}, clock.SubjectIDs())
}

// OnTurnPhase expires turn-boundary effects gated on the mover's turn start or end.
//
// Precondition: tr.Kind is TransitionTurnStart or TransitionTurnEnd.
func (e *Engine) OnTurnPhase(ctx context.Context, tr combat.Transition) (Report, error) {
	ev, ok := EventFromTransition(tr)
	if !ok || (ev.Kind != EventTurnStart && ev.Kind != EventTurnEnd) {
		return Report{}, fmt.Errorf("transition %s is not a turn phase", tr.Kind)
	}
	return e.run(ctx, ev, tr.Clock.SubjectIDs())
}

// OnWorldTimeAdvance expires calendar effects of every stored subject at worldTime seconds.
func (e *Engine) OnWorldTimeAdvance(ctx context.Context, worldTime int64) (Report, error) {
	return e.run(ctx, Event{Kind: EventWorldTime, WorldTime: worldTime}, nil)
}

// run loads the subjects, plans every one of them without mutating anything, and then
// commits the non-empty plans concurrently. subjectIDs nil means every stored subject.
func (e *Engine) run(ctx context.Context, ev Event, subjectIDs []string) (Report, error) {
	ctx, span := e.tracer.Start(ctx, "lifecycle."+ev.Kind.String(), trace.WithAttributes(
		attribute.String("combat.id", ev.Clock.CombatID),
		attribute.Int("combat.round", ev.Clock.Round),
		attribute.Int64("world.time", ev.WorldTime),
	))
	defer span.End()

	subjects, loadErr := e.load(ctx, subjectIDs)
	plans := make([]Plan, 0, len(subjects))
	for _, s := range subjects {
		p := Evaluate(e.policies, s, ev, e.warnInvalid)
		if !p.Empty() {
			plans = append(plans, p)
		}
	}

	results := make([]subjectResult, len(plans))
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	if e.opts.Parallelism > 0 {
		g.SetLimit(e.opts.Parallelism)
	}
	for i, p := range plans {
		g.Go(func() error {
			results[i] = e.commit(gctx, p)
			// Per-subject failures are collected below; siblings keep running.
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Event: ev.Kind}
	errs := []error{loadErr}
	for _, r := range results {
		switch {
		case r.skipped:
			report.Skipped = append(report.Skipped, r.subjectID)
		case r.err != nil:
			errs = append(errs, r.err)
		}
		report.Expired = append(report.Expired, r.expired...)
		report.Adopted += r.adopted
	}
	err := errors.Join(errs...)
	span.SetAttributes(
		attribute.Int("lifecycle.subjects", len(subjects)),
		attribute.Int("lifecycle.expired", len(report.Expired)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
	}
	return report, err
}

func (e *Engine) load(ctx context.Context, ids []string) ([]*actor.Subject, error) {
	if ids == nil {
		subjects, err := e.store.ListSubjects(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing subjects: %w", err)
		}
		return subjects, nil
	}
	var errs []error
	out := make([]*actor.Subject, 0, len(ids))
	for _, id := range ids {
		s, err := e.store.LoadSubject(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrSubjectNotFound) {
				e.logger.Warn("combatant subject not found", zap.String("subject", id))
				continue
			}
			errs = append(errs, fmt.Errorf("loading subject %q: %w", id, err))
			continue
		}
		out = append(out, s)
	}
	return out, errors.Join(errs...)
}

type subjectResult struct {
	subjectID string
	skipped   bool
	expired   []Expired
	adopted   int
	err       error
}

// commit notifies every expiry and then writes at most one delete batch and one update batch.
func (e *Engine) commit(ctx context.Context, p Plan) subjectResult {
	s := p.Subject
	res := subjectResult{subjectID: s.ID}
	ctx, span := e.tracer.Start(ctx, "lifecycle.commit", trace.WithAttributes(
		attribute.String("subject.id", s.ID),
		attribute.Int("lifecycle.expiring", len(p.Expired)),
	))
	defer span.End()

	ok, err := e.authority.IsAuthoritative(ctx, s)
	if err != nil {
		if errors.Is(err, ErrOwnershipConflict) {
			e.logger.Debug("no authoritative evaluator, retrying next transition", zap.String("subject", s.ID))
			res.skipped = true
			return res
		}
		res.err = fmt.Errorf("subject %q: checking ownership: %w", s.ID, err)
		span.RecordError(res.err)
		return res
	}
	if !ok {
		e.logger.Debug("not authoritative for subject", zap.String("subject", s.ID))
		res.skipped = true
		return res
	}

	for _, x := range p.Expired {
		msg := notify.Message{
			SubjectID: s.ID,
			EffectID:  x.Effect.ID,
			Title:     x.Effect.Name,
			Body:      fmt.Sprintf("%s has expired on %s (%s)", x.Effect.Name, s.Name, e.policies.Format(x.Effect.Duration)),
			Sound:     e.opts.Sound,
			Level:     notify.LevelInfo,
		}
		if err := e.sink.Notify(ctx, msg); err != nil {
			e.logger.Warn("expiration notice failed", zap.String("subject", s.ID), zap.String("effect", x.Effect.ID), zap.Error(err))
		}
	}

	if ids := p.Deletes(); len(ids) > 0 {
		if err := e.store.DeleteEffects(ctx, s.ID, ids); err != nil {
			res.err = fmt.Errorf("subject %q: deleting %d effects: %w", s.ID, len(ids), err)
			span.RecordError(res.err)
			span.SetStatus(codes.Error, "delete failed")
			return res
		}
	}
	if ups := p.Updates(); len(ups) > 0 {
		if err := e.store.UpdateEffects(ctx, s.ID, ups); err != nil {
			res.err = fmt.Errorf("subject %q: updating %d effects: %w", s.ID, len(ups), err)
			span.RecordError(res.err)
			span.SetStatus(codes.Error, "update failed")
			return res
		}
	}

	for _, x := range p.Expired {
		res.expired = append(res.expired, Expired{
			SubjectID: s.ID,
			EffectID:  x.Effect.ID,
			Name:      x.Effect.Name,
			Deleted:   x.Delete(),
			Reason:    x.Reason,
		})
	}
	res.adopted = len(p.Adopt)
	e.logger.Debug("committed expiration batch",
		zap.String("subject", s.ID),
		zap.Int("expired", len(p.Expired)),
		zap.Int("adopted", len(p.Adopt)),
	)
	return res
}

// warnInvalid logs an unknown duration policy once per process.
func (e *Engine) warnInvalid(id effect.PolicyID) {
	e.warnedMu.Lock()
	defer e.warnedMu.Unlock()
	if e.warned[id] {
		return
	}
	e.warned[id] = true
	e.logger.Warn("invalid duration policy, treating as none", zap.String("policy", string(id)))
}
