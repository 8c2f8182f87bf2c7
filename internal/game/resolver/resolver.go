// Package resolver applies effect changes to a subject's statistics.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/cory-johannsen/demonlord/internal/game/actor"
	"github.com/cory-johannsen/demonlord/internal/game/catalog"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/stats"
)

// Resolver resolves changes against subjects. It holds only immutable registries plus the
// custom combiner table and is safe for concurrent use.
type Resolver struct {
	schemas stats.Schemas
	catalog *catalog.Catalog
	customs *Customs
	logger  *zap.Logger
}

// New creates a Resolver.
//
// Precondition: schemas, cat and logger must be non-nil; customs may be nil.
// Postcondition: Returns a non-nil Resolver.
func New(schemas stats.Schemas, cat *catalog.Catalog, customs *Customs, logger *zap.Logger) *Resolver {
	if customs == nil {
		customs = NewCustoms()
	}
	return &Resolver{schemas: schemas, catalog: cat, customs: customs, logger: logger}
}

// Customs returns the resolver's custom combiner registry.
func (r *Resolver) Customs() *Customs { return r.customs }

// target is a change key resolved against one schema.
type target struct {
	path   string
	kind   stats.Kind
	mode   effect.Mode
	negate bool
}

func (r *Resolver) resolveTarget(sc *stats.Schema, c effect.Change) (target, error) {
	if kind, ok := sc.FieldType(c.Key); ok {
		mode := c.Mode
		if mode == effect.ModeUnset {
			mode = effect.ModeAdd
		}
		return target{path: c.Key, kind: kind, mode: mode, negate: catalog.LegacyNegates(c.Key)}, nil
	}
	entry, ok := r.catalog.Entry(c.Key)
	if !ok {
		return target{}, &UnresolvedKeyError{Key: c.Key}
	}
	kind, ok := sc.FieldType(entry.Path)
	if !ok {
		return target{}, &UnresolvedKeyError{Key: c.Key, Path: entry.Path}
	}
	if entry.Kind != stats.KindUnknown {
		kind = entry.Kind
	}
	mode := c.Mode
	if mode == effect.ModeUnset {
		mode = entry.Mode
	}
	return target{path: entry.Path, kind: kind, mode: mode, negate: entry.Negate}, nil
}

// Resolve applies one change to subject's base statistics and returns the changed path with
// its new value. subject is not modified.
//
// Postcondition: Returns exactly one entry on success; *UnresolvedKeyError, *ChangeCastError
// or *MissingCombinerError otherwise.
func (r *Resolver) Resolve(ctx context.Context, subject *actor.Subject, change effect.Change) (map[string]stats.Value, error) {
	sc, ok := r.schemas.Lookup(subject.Type)
	if !ok {
		return nil, fmt.Errorf("subject %q: %w %q", subject.ID, ErrUnknownSubjectType, subject.Type)
	}
	return r.apply(ctx, sc, subject.ID, baseValues(sc, subject), change)
}

// apply resolves change against working without mutating it.
func (r *Resolver) apply(ctx context.Context, sc *stats.Schema, subjectID string, working map[string]stats.Value, change effect.Change) (map[string]stats.Value, error) {
	t, err := r.resolveTarget(sc, change)
	if err != nil {
		return nil, err
	}
	current, ok := working[t.path]
	if !ok {
		current, _ = sc.Default(t.path)
	}
	castErr := func(err error) error {
		return &ChangeCastError{Key: change.Key, Path: t.path, Value: change.Value, Kind: t.kind, Err: err}
	}
	delta, err := stats.Cast(change.Value, t.kind, current)
	if err != nil {
		return nil, castErr(err)
	}
	if t.negate && delta.Kind == stats.KindNumber {
		delta.Number = -delta.Number
	}
	if t.mode == effect.ModeCustom {
		name := change.Custom
		if name == "" {
			name = t.path
		}
		fn, ok := r.customs.Lookup(name)
		if !ok {
			return nil, &MissingCombinerError{Name: name}
		}
		out, err := fn(ctx, CustomInput{SubjectID: subjectID, Path: t.path, Current: current.Clone(), Delta: delta, Change: change})
		if err != nil {
			return nil, castErr(fmt.Errorf("custom combiner %q: %w", name, err))
		}
		if out.Kind != t.kind {
			return nil, castErr(fmt.Errorf("custom combiner %q returned %s", name, out.Kind))
		}
		return map[string]stats.Value{t.path: out}, nil
	}
	out, err := combine(t.mode, current, delta)
	if err != nil {
		return nil, castErr(err)
	}
	return map[string]stats.Value{t.path: out}, nil
}

// combine implements the built-in combination algebra.
func combine(mode effect.Mode, current, delta stats.Value) (stats.Value, error) {
	if mode == effect.ModeOverride {
		return delta, nil
	}
	if current.Kind != delta.Kind {
		return stats.Value{}, fmt.Errorf("current value is %s, delta is %s", current.Kind, delta.Kind)
	}
	switch delta.Kind {
	case stats.KindNumber:
		switch mode {
		case effect.ModeAdd:
			return stats.Number(current.Number + delta.Number), nil
		case effect.ModeMultiply:
			return stats.Number(current.Number * delta.Number), nil
		case effect.ModeUpgrade:
			return stats.Number(math.Max(current.Number, delta.Number)), nil
		case effect.ModeDowngrade:
			return stats.Number(math.Min(current.Number, delta.Number)), nil
		}
	case stats.KindBoolean:
		switch mode {
		case effect.ModeAdd, effect.ModeUpgrade:
			return stats.Bool(current.Bool || delta.Bool), nil
		case effect.ModeMultiply, effect.ModeDowngrade:
			return stats.Bool(current.Bool && delta.Bool), nil
		}
	case stats.KindString:
		if mode == effect.ModeAdd {
			switch {
			case current.Str == "":
				return delta, nil
			case delta.Str == "":
				return current, nil
			}
			return stats.String(current.Str + "+" + delta.Str), nil
		}
	case stats.KindArray:
		if mode == effect.ModeAdd {
			items := make([]stats.Value, 0, len(current.Items)+len(delta.Items))
			items = append(items, current.Items...)
			items = append(items, delta.Items...)
			return stats.Array(items...), nil
		}
	}
	return stats.Value{}, fmt.Errorf("mode %s is not defined for %s values", mode, delta.Kind)
}

// baseValues returns the schema template overlaid with subject's base values.
func baseValues(sc *stats.Schema, subject *actor.Subject) map[string]stats.Value {
	values := sc.Template()
	for path, v := range subject.Base {
		values[path] = v.Clone()
	}
	return values
}

// AppliedChange records one change that contributed to a Derived value.
type AppliedChange struct {
	EffectID string
	Key      string
	Path     string
	Mode     effect.Mode
	Priority int
	Result   stats.Value
}

// Derived is the result of one derived-data pass over a subject.
type Derived struct {
	SubjectID string
	Values    map[string]stats.Value
	Applied   []AppliedChange
	// Skipped holds the per-change errors that were logged and ignored.
	Skipped []error
}

// Get returns the derived value of path.
func (d *Derived) Get(path string) (stats.Value, bool) {
	v, ok := d.Values[path]
	return v, ok
}

// Number returns the derived numeric value of path, or 0 when absent or not numeric.
func (d *Derived) Number(path string) float64 {
	return d.Values[path].Number
}

// pending is one change queued for ordered application.
type pending struct {
	effect   *effect.Effect
	order    int
	index    int
	change   effect.Change
	priority int
	explicit bool
	mode     effect.Mode
}

// Prepare recomputes subject's derived statistics from its base values and applied effects.
// Changes are applied in ascending priority; on equal priority explicit priorities precede
// mode defaults, then effect creation order, then change order within the effect.
// Per-change failures are logged at warn level and skipped.
//
// Postcondition: The result depends only on subject's base values and effects; calling
// Prepare repeatedly yields equal results.
func (r *Resolver) Prepare(ctx context.Context, subject *actor.Subject) (*Derived, error) {
	sc, ok := r.schemas.Lookup(subject.Type)
	if !ok {
		return nil, fmt.Errorf("subject %q: %w %q", subject.ID, ErrUnknownSubjectType, subject.Type)
	}
	working := baseValues(sc, subject)
	d := &Derived{SubjectID: subject.ID, Values: working}

	var queue []pending
	for order, e := range subject.AppliedEffects() {
		for i, c := range e.Changes {
			mode := c.Mode
			if mode == effect.ModeUnset {
				mode = effect.ModeAdd
				if t, err := r.resolveTarget(sc, c); err == nil {
					mode = t.mode
				}
			}
			queue = append(queue, pending{
				effect:   e,
				order:    order,
				index:    i,
				change:   c,
				priority: c.EffectivePriority(mode),
				explicit: c.Priority != nil,
				mode:     mode,
			})
		}
	}
	sort.SliceStable(queue, func(i, j int) bool {
		a, b := queue[i], queue[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.explicit != b.explicit {
			return a.explicit
		}
		if a.order != b.order {
			return a.order < b.order
		}
		return a.index < b.index
	})

	for _, p := range queue {
		out, err := r.apply(ctx, sc, subject.ID, working, p.change)
		if err != nil {
			r.logSkip(subject, p, err)
			d.Skipped = append(d.Skipped, err)
			continue
		}
		for path, v := range out {
			working[path] = v
			d.Applied = append(d.Applied, AppliedChange{
				EffectID: p.effect.ID,
				Key:      p.change.Key,
				Path:     path,
				Mode:     p.mode,
				Priority: p.priority,
				Result:   v,
			})
		}
	}
	return d, nil
}

func (r *Resolver) logSkip(subject *actor.Subject, p pending, err error) {
	fields := []zap.Field{
		zap.String("subject", subject.ID),
		zap.String("effect", p.effect.ID),
		zap.String("key", p.change.Key),
		zap.Error(err),
	}
	var unresolved *UnresolvedKeyError
	var missing *MissingCombinerError
	switch {
	case errors.As(err, &unresolved):
		r.logger.Warn("resolver: unresolved change key", fields...)
	case errors.As(err, &missing):
		r.logger.Warn("resolver: no custom combiner", fields...)
	default:
		r.logger.Warn("resolver: change cast failed", fields...)
	}
}
