package combat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler receives clock transitions. Handlers run synchronously, in registration order, and
// a transition is fully handled before the next one is delivered for the same scene.
// Handlers must not call back into the Tracker for the delivering scene; the transition
// carries the clock.
type Handler interface {
	HandleTransition(ctx context.Context, tr Transition) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, tr Transition) error

// HandleTransition calls f.
func (f HandlerFunc) HandleTransition(ctx context.Context, tr Transition) error { return f(ctx, tr) }

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	Options Options
	// TurnTimeout auto-advances a stalled turn; zero disables the timer.
	TurnTimeout time.Duration
}

type entry struct {
	mu     sync.Mutex
	combat *Combat
	timer  *TurnTimer
	ended  bool
}

// Tracker manages all active combats, keyed by scene ID.
// All methods are safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	combats  map[string]*entry
	handlers []Handler
	cfg      TrackerConfig
	logger   *zap.Logger
}

// NewTracker creates an empty Tracker.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a non-nil Tracker ready for use.
func NewTracker(cfg TrackerConfig, logger *zap.Logger) *Tracker {
	return &Tracker{combats: make(map[string]*entry), cfg: cfg, logger: logger}
}

// Subscribe registers h for every future transition.
func (t *Tracker) Subscribe(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, h)
}

// StartCombat begins a new combat in sceneID and delivers its start transitions.
//
// Precondition: sceneID must be non-empty; combatants must be non-empty.
// Postcondition: Returns the clock after the first TurnStart, or an error if combat is
// already active in sceneID. Handler errors are returned joined but do not undo the start.
func (t *Tracker) StartCombat(ctx context.Context, sceneID string, combatants []*Combatant) (Clock, error) {
	c, err := NewCombat(uuid.NewString(), sceneID, combatants)
	if err != nil {
		return Clock{}, err
	}
	t.mu.Lock()
	if _, exists := t.combats[sceneID]; exists {
		t.mu.Unlock()
		return Clock{}, fmt.Errorf("combat already active in scene %q", sceneID)
	}
	e := &entry{combat: c}
	e.mu.Lock()
	defer e.mu.Unlock()
	t.combats[sceneID] = e
	t.mu.Unlock()

	trs, err := c.Start(t.cfg.Options)
	if err != nil {
		t.mu.Lock()
		delete(t.combats, sceneID)
		t.mu.Unlock()
		return Clock{}, err
	}
	t.logger.Info("combat started",
		zap.String("scene", sceneID),
		zap.String("combat", c.ID),
		zap.Int("combatants", len(c.Combatants)),
	)
	herr := t.deliver(ctx, trs)
	t.armTimer(sceneID, e)
	return c.Clock(), herr
}

// NextTurn advances the turn in sceneID and delivers the resulting transitions.
//
// Postcondition: Returns the clock after the new TurnStart.
func (t *Tracker) NextTurn(ctx context.Context, sceneID string) (Clock, error) {
	e, ok := t.lookup(sceneID)
	if !ok {
		return Clock{}, fmt.Errorf("no combat active in scene %q", sceneID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return t.advance(ctx, sceneID, e)
}

// advanceIfCurrent advances only when the clock still reads round/turn; used by the turn timer.
func (t *Tracker) advanceIfCurrent(ctx context.Context, sceneID string, round, turn int) {
	e, ok := t.lookup(sceneID)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended || e.combat.Round != round || e.combat.Turn != turn {
		return
	}
	t.logger.Info("turn timed out",
		zap.String("scene", sceneID),
		zap.Int("round", round),
		zap.Int("turn", turn),
	)
	if _, err := t.advance(ctx, sceneID, e); err != nil {
		t.logger.Warn("auto-advance failed", zap.String("scene", sceneID), zap.Error(err))
	}
}

func (t *Tracker) advance(ctx context.Context, sceneID string, e *entry) (Clock, error) {
	if e.ended {
		return Clock{}, fmt.Errorf("combat in scene %q has ended", sceneID)
	}
	trs, err := e.combat.NextTurn(t.cfg.Options)
	if err != nil {
		return Clock{}, err
	}
	herr := t.deliver(ctx, trs)
	t.armTimer(sceneID, e)
	return e.combat.Clock(), herr
}

// SetDefeated flags a combatant as defeated or not.
func (t *Tracker) SetDefeated(sceneID, combatantID string, defeated bool) error {
	e, ok := t.lookup(sceneID)
	if !ok {
		return fmt.Errorf("no combat active in scene %q", sceneID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cbt, ok := e.combat.Find(combatantID)
	if !ok {
		return fmt.Errorf("combatant %q not in scene %q", combatantID, sceneID)
	}
	cbt.Defeated = defeated
	return nil
}

// SetInitiative updates a combatant's initiative and re-sorts the order, keeping the mover.
func (t *Tracker) SetInitiative(sceneID, combatantID string, initiative int) error {
	e, ok := t.lookup(sceneID)
	if !ok {
		return fmt.Errorf("no combat active in scene %q", sceneID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cbt, ok := e.combat.Find(combatantID)
	if !ok {
		return fmt.Errorf("combatant %q not in scene %q", combatantID, sceneID)
	}
	cbt.Initiative = initiative
	e.combat.Reorder()
	return nil
}

// Clock returns the current clock of sceneID.
func (t *Tracker) Clock(sceneID string) (Clock, bool) {
	e, ok := t.lookup(sceneID)
	if !ok {
		return Clock{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.combat.Clock(), true
}

// EndCombat removes the combat in sceneID and delivers a CombatEnd transition.
func (t *Tracker) EndCombat(ctx context.Context, sceneID string) error {
	t.mu.Lock()
	e, ok := t.combats[sceneID]
	delete(t.combats, sceneID)
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("no combat active in scene %q", sceneID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ended = true
	if e.timer != nil {
		e.timer.Stop()
	}
	t.logger.Info("combat ended", zap.String("scene", sceneID), zap.String("combat", e.combat.ID))
	return t.deliver(ctx, []Transition{{Kind: TransitionCombatEnd, Clock: e.combat.Clock(), Turn: -1}})
}

// Stop ends the turn timers of every combat. Combats stay registered.
func (t *Tracker) Stop() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.combats {
		e.mu.Lock()
		if e.timer != nil {
			e.timer.Stop()
		}
		e.mu.Unlock()
	}
}

func (t *Tracker) lookup(sceneID string) (*entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.combats[sceneID]
	return e, ok
}

// deliver runs every handler over trs in order. Every transition reaches every handler.
func (t *Tracker) deliver(ctx context.Context, trs []Transition) error {
	t.mu.RLock()
	handlers := make([]Handler, len(t.handlers))
	copy(handlers, t.handlers)
	t.mu.RUnlock()

	var errs []error
	for _, tr := range trs {
		for _, h := range handlers {
			if err := h.HandleTransition(ctx, tr); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", tr.Kind, err))
			}
		}
	}
	return errors.Join(errs...)
}

// armTimer restarts the turn timer for e's current turn. Caller holds e.mu.
func (t *Tracker) armTimer(sceneID string, e *entry) {
	if t.cfg.TurnTimeout <= 0 {
		return
	}
	round, turn := e.combat.Round, e.combat.Turn
	fire := func() { t.advanceIfCurrent(context.Background(), sceneID, round, turn) }
	if e.timer == nil {
		e.timer = NewTurnTimer(t.cfg.TurnTimeout, fire)
		return
	}
	e.timer.Reset(t.cfg.TurnTimeout, fire)
}
