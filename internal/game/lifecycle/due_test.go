package lifecycle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/demonlord/internal/game/actor"
	"github.com/cory-johannsen/demonlord/internal/game/combat"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/lifecycle"
)

var policies = effect.NewRegistry()

func stamped(t require.TestingT, id string, policy effect.PolicyID, rounds int, combatID string, startRound, startTurn int) *effect.Effect {
	d, err := policies.Normalize(policy, rounds, false)
	require.NoError(t, err)
	d.CombatID = combatID
	d.StartRound = effect.Ptr(startRound)
	d.StartTurn = effect.Ptr(startTurn)
	return &effect.Effect{ID: id, Name: id, Trigger: effect.TriggerPassive, Duration: d}
}

func bearer(id string, effects ...*effect.Effect) *actor.Subject {
	return &actor.Subject{ID: id, Name: id, Type: "character", Effects: effects}
}

// duelClock orders x before y.
func duelClock(combatID string, round int) combat.Clock {
	return combat.Clock{
		CombatID: combatID,
		Round:    round,
		Combatants: []combat.Combatant{
			{ID: "cx", SubjectID: "x", Disposition: combat.DispositionAlly},
			{ID: "cy", SubjectID: "y", Disposition: combat.DispositionEnemy},
		},
	}
}

func turnEvent(kind lifecycle.EventKind, clock combat.Clock, turn int) lifecycle.Event {
	return lifecycle.Event{Kind: kind, Clock: clock, Mover: clock.Combatants[turn], Turn: turn}
}

func expiredIDs(p lifecycle.Plan) []string {
	var out []string
	for _, x := range p.Expired {
		out = append(out, x.Effect.ID)
	}
	return out
}

func TestEvaluate_TwoRounds(t *testing.T) {
	s := bearer("x", stamped(t, "bless", effect.PolicyTwoRounds, 0, "c1", 1, 0))

	at2 := lifecycle.Evaluate(policies, s, lifecycle.Event{Kind: lifecycle.EventRoundAdvance, Clock: duelClock("c1", 2), Turn: -1}, nil)
	assert.True(t, at2.Empty(), "one elapsed round must not expire a two round effect")

	at3 := lifecycle.Evaluate(policies, s, lifecycle.Event{Kind: lifecycle.EventRoundAdvance, Clock: duelClock("c1", 3), Turn: -1}, nil)
	assert.Equal(t, []string{"bless"}, expiredIDs(at3))
	assert.Equal(t, lifecycle.ReasonElapsed, at3.Expired[0].Reason)
}

func TestEvaluate_RoundsIgnoreTurnEvents(t *testing.T) {
	s := bearer("x", stamped(t, "bless", effect.PolicyOneRound, 0, "c1", 1, 0))
	p := lifecycle.Evaluate(policies, s, turnEvent(lifecycle.EventTurnEnd, duelClock("c1", 5), 0), nil)
	assert.True(t, p.Empty())
}

func TestEvaluate_NextTargetTurnEnd_OnlyOnBearersTurnEnd(t *testing.T) {
	// Borne by x, originated by y, granted during y's turn in round 1.
	e := stamped(t, "mark", effect.PolicyNextTargetTurnEnd, 0, "c1", 1, 1)
	e.OriginID = "y"
	s := bearer("x", e)

	clock := duelClock("c1", 2)
	for _, ev := range []lifecycle.Event{
		turnEvent(lifecycle.EventTurnStart, clock, 0),
		turnEvent(lifecycle.EventTurnStart, clock, 1),
		turnEvent(lifecycle.EventTurnEnd, clock, 1),
		{Kind: lifecycle.EventRoundAdvance, Clock: clock, Turn: -1},
	} {
		assert.True(t, lifecycle.Evaluate(policies, s, ev, nil).Empty(), "event %s turn %d", ev.Kind, ev.Turn)
	}

	p := lifecycle.Evaluate(policies, s, turnEvent(lifecycle.EventTurnEnd, clock, 0), nil)
	assert.Equal(t, []string{"mark"}, expiredIDs(p))
}

func TestEvaluate_NextTriggerTurnStart_WaitsForOriginsNextTurn(t *testing.T) {
	// y acts at turn 1 and grants to x; the effect ends when y's next turn starts.
	e := stamped(t, "guard", effect.PolicyNextTriggerTurnStart, 0, "c1", 1, 1)
	e.OriginID = "y"
	s := bearer("x", e)

	assert.True(t, lifecycle.Evaluate(policies, s, turnEvent(lifecycle.EventTurnStart, duelClock("c1", 2), 0), nil).Empty())
	p := lifecycle.Evaluate(policies, s, turnEvent(lifecycle.EventTurnStart, duelClock("c1", 2), 1), nil)
	assert.Equal(t, []string{"guard"}, expiredIDs(p))
}

func TestEvaluate_NextTriggerTurnEnd_SkipsTheGrantingTurn(t *testing.T) {
	// Granted during y's turn: the end of that turn is not y's next turn end.
	e := stamped(t, "focus", effect.PolicyNextTriggerTurnEnd, 0, "c1", 1, 1)
	e.OriginID = "y"
	s := bearer("x", e)
	assert.True(t, lifecycle.Evaluate(policies, s, turnEvent(lifecycle.EventTurnEnd, duelClock("c1", 1), 1), nil).Empty())
	p := lifecycle.Evaluate(policies, s, turnEvent(lifecycle.EventTurnEnd, duelClock("c1", 2), 1), nil)
	assert.Equal(t, []string{"focus"}, expiredIDs(p))
}

func TestEvaluate_NextTriggerTurnEnd_LaterTurnSameRound(t *testing.T) {
	// Granted by y during x's turn; y still acts this round.
	e := stamped(t, "focus", effect.PolicyNextTriggerTurnEnd, 0, "c1", 1, 0)
	e.OriginID = "y"
	p := lifecycle.Evaluate(policies, bearer("x", e), turnEvent(lifecycle.EventTurnEnd, duelClock("c1", 1), 1), nil)
	assert.Equal(t, []string{"focus"}, expiredIDs(p))
}

func TestEvaluate_TriggerWithoutOriginWatchesBearer(t *testing.T) {
	e := stamped(t, "focus", effect.PolicyNextTriggerTurnStart, 0, "c1", 1, 0)
	s := bearer("x", e)
	assert.True(t, lifecycle.Evaluate(policies, s, turnEvent(lifecycle.EventTurnStart, duelClock("c1", 2), 1), nil).Empty())
	assert.Len(t, lifecycle.Evaluate(policies, s, turnEvent(lifecycle.EventTurnStart, duelClock("c1", 2), 0), nil).Expired, 1)
}

func TestEvaluate_BareTurnEnd(t *testing.T) {
	e := stamped(t, "dodge", effect.PolicyTurnEnd, 0, "c1", 1, 0)
	s := bearer("x", e)
	assert.True(t, lifecycle.Evaluate(policies, s, turnEvent(lifecycle.EventTurnEnd, duelClock("c1", 1), 1), nil).Empty())
	assert.Len(t, lifecycle.Evaluate(policies, s, turnEvent(lifecycle.EventTurnEnd, duelClock("c1", 1), 0), nil).Expired, 1)
}

func TestEvaluate_LeftoverSweep(t *testing.T) {
	old := stamped(t, "bless", effect.PolicyTwoRounds, 0, "previous", 7, 0)
	s := bearer("x", old)

	p := lifecycle.Evaluate(policies, s, lifecycle.Event{Kind: lifecycle.EventCombatStart, Clock: duelClock("c2", 1), Turn: -1}, nil)
	require.Len(t, p.Expired, 1)
	assert.Equal(t, lifecycle.ReasonLeftover, p.Expired[0].Reason)
	assert.Empty(t, p.Adopt)
}

func TestEvaluate_AdoptsUnstampedEffects(t *testing.T) {
	d, err := policies.Normalize(effect.PolicyXRounds, 3, false)
	require.NoError(t, err)
	s := bearer("x", &effect.Effect{ID: "haste", Name: "Haste", Duration: d})

	p := lifecycle.Evaluate(policies, s, lifecycle.Event{Kind: lifecycle.EventCombatStart, Clock: duelClock("c1", 1), Turn: -1}, nil)
	assert.Empty(t, p.Expired)
	require.Len(t, p.Adopt, 1)
	adopted := p.Adopt[0].Duration
	require.NotNil(t, adopted)
	assert.Equal(t, "c1", adopted.CombatID)
	assert.Equal(t, 1, *adopted.StartRound)
	assert.Equal(t, -1, *adopted.StartTurn)
	assert.Nil(t, s.Effects[0].Duration.StartRound, "evaluation must not mutate the subject")
}

func TestEvaluate_CalendarAdoptionAndExpiry(t *testing.T) {
	d, err := policies.Normalize(effect.PolicyMinutes, 10, true)
	require.NoError(t, err)
	e := &effect.Effect{ID: "ward", Name: "Ward", Duration: d}
	s := bearer("x", e)

	p := lifecycle.Evaluate(policies, s, lifecycle.Event{Kind: lifecycle.EventWorldTime, WorldTime: 1000}, nil)
	require.Len(t, p.Adopt, 1)
	assert.Equal(t, int64(1000), *p.Adopt[0].Duration.StartTime)

	e.Duration.StartTime = effect.Ptr(int64(1000))
	assert.True(t, lifecycle.Evaluate(policies, s, lifecycle.Event{Kind: lifecycle.EventWorldTime, WorldTime: 1599}, nil).Empty())
	p = lifecycle.Evaluate(policies, s, lifecycle.Event{Kind: lifecycle.EventWorldTime, WorldTime: 1600}, nil)
	require.Len(t, p.Expired, 1)
	assert.Equal(t, []string{"ward"}, p.Deletes())
	assert.Empty(t, p.Updates())
}

func TestEvaluate_SecondsWithoutCalendarPolicyExpireOnWorldTime(t *testing.T) {
	for _, selected := range []effect.PolicyID{"", effect.PolicyNone} {
		t.Run(string("selected="+selected), func(t *testing.T) {
			e := &effect.Effect{ID: "torch", Name: "Torch", Duration: effect.Duration{
				Selected:  selected,
				Seconds:   effect.Ptr(60),
				StartTime: effect.Ptr(int64(1000)),
			}}
			var warned []effect.PolicyID
			warn := func(id effect.PolicyID) { warned = append(warned, id) }
			s := bearer("x", e)

			assert.True(t, lifecycle.Evaluate(policies, s, lifecycle.Event{Kind: lifecycle.EventWorldTime, WorldTime: 1059}, warn).Empty())
			p := lifecycle.Evaluate(policies, s, lifecycle.Event{Kind: lifecycle.EventWorldTime, WorldTime: 5000}, warn)
			assert.Equal(t, []string{"torch"}, expiredIDs(p))

			// Combat events leave it alone.
			assert.True(t, lifecycle.Evaluate(policies, s, lifecycle.Event{Kind: lifecycle.EventRoundAdvance, Clock: duelClock("c1", 9), Turn: -1}, warn).Empty())
			assert.Empty(t, warned)
		})
	}
}

func TestEvaluate_UnselectedWithoutSecondsNeverExpires(t *testing.T) {
	e := &effect.Effect{ID: "mark", Duration: effect.Duration{StartTime: effect.Ptr(int64(0))}}
	p := lifecycle.Evaluate(policies, bearer("x", e), lifecycle.Event{Kind: lifecycle.EventWorldTime, WorldTime: 1 << 40}, nil)
	assert.True(t, p.Empty())
}

func TestEvaluate_DisabledAndPassiveNoneIgnored(t *testing.T) {
	gone := stamped(t, "gone", effect.PolicyOneRound, 0, "c1", 1, 0)
	gone.Disabled = true
	forever := &effect.Effect{ID: "forever", Duration: effect.Duration{Selected: effect.PolicyNone}}
	p := lifecycle.Evaluate(policies, bearer("x", gone, forever), lifecycle.Event{Kind: lifecycle.EventRoundAdvance, Clock: duelClock("c1", 9), Turn: -1}, nil)
	assert.True(t, p.Empty())
}

func TestEvaluate_InvalidPolicyTreatedAsNone(t *testing.T) {
	e := &effect.Effect{ID: "odd", Duration: effect.Duration{Selected: "fortnight"}}
	var seen []effect.PolicyID
	p := lifecycle.Evaluate(policies, bearer("x", e), lifecycle.Event{Kind: lifecycle.EventRoundAdvance, Clock: duelClock("c1", 4), Turn: -1},
		func(id effect.PolicyID) { seen = append(seen, id) })
	assert.True(t, p.Empty())
	assert.Equal(t, []effect.PolicyID{"fortnight"}, seen)
}

func TestPlan_UpdatesBatchDisablesAndAdoptions(t *testing.T) {
	bless := stamped(t, "bless", effect.PolicyOneRound, 0, "c1", 1, 0)
	curse := stamped(t, "curse", effect.PolicyOneRound, 0, "c1", 1, 0)
	curse.Duration.AutoExpire = true
	d, err := policies.Normalize(effect.PolicyXRounds, 4, false)
	require.NoError(t, err)
	fresh := &effect.Effect{ID: "fresh", Duration: d}

	p := lifecycle.Evaluate(policies, bearer("x", bless, curse, fresh), lifecycle.Event{Kind: lifecycle.EventRoundAdvance, Clock: duelClock("c1", 2), Turn: -1}, nil)
	assert.Equal(t, []string{"curse"}, p.Deletes())
	ups := p.Updates()
	require.Len(t, ups, 2)
	assert.Equal(t, "bless", ups[0].ID)
	assert.True(t, *ups[0].Disabled)
	assert.Equal(t, "fresh", ups[1].ID)
	assert.NotNil(t, ups[1].Duration)
}

func TestPropertyRoundCountExpiresExactlyWhenElapsed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rounds := rapid.IntRange(1, 10).Draw(t, "rounds")
		start := rapid.IntRange(1, 20).Draw(t, "start")
		current := rapid.IntRange(start, start+15).Draw(t, "current")

		e := stamped(t, "fx", effect.PolicyXRounds, rounds, "c1", start, 0)
		p := lifecycle.Evaluate(policies, bearer("x", e), lifecycle.Event{Kind: lifecycle.EventRoundAdvance, Clock: duelClock("c1", current), Turn: -1}, nil)
		want := current-start >= rounds
		if want != (len(p.Expired) == 1) {
			t.Fatalf("rounds=%d start=%d current=%d: expired=%v want %v", rounds, start, current, len(p.Expired) == 1, want)
		}
	})
}

func TestPropertyTargetTurnPolicyNeverExpiresOnOtherTurns(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		policy := rapid.SampledFrom([]effect.PolicyID{effect.PolicyNextTargetTurnStart, effect.PolicyNextTargetTurnEnd}).Draw(t, "policy")
		round := rapid.IntRange(1, 10).Draw(t, "round")
		kind := rapid.SampledFrom([]lifecycle.EventKind{lifecycle.EventTurnStart, lifecycle.EventTurnEnd}).Draw(t, "kind")

		e := stamped(t, "fx", policy, 0, "c1", 1, 1)
		e.OriginID = "y"
		// Bearer x sits at turn 0; y's turns must never expire it.
		p := lifecycle.Evaluate(policies, bearer("x", e), turnEvent(kind, duelClock("c1", round), 1), nil)
		if !p.Empty() {
			t.Fatalf("%s expired on the origin's %s in round %d", policy, kind, round)
		}
	})
}

// soloClock holds a single combatant, so every turn belongs to the watched mover.
func soloClock(round int) combat.Clock {
	return combat.Clock{
		CombatID:   "c1",
		Round:      round,
		Combatants: []combat.Combatant{{ID: "cx", SubjectID: "x", Disposition: combat.DispositionAlly}},
	}
}

// With one combatant, the effect granted during its turn in startRound expires at its
// phase in round r exactly when (r - startRound) + offset >= rounds, where offset is 0 in
// the start round and 1 after it.
func TestPropertyTurnPolicyMatchesRoundOffsetForSingleMover(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		policy := rapid.SampledFrom([]effect.PolicyID{
			effect.PolicyNextTargetTurnStart,
			effect.PolicyNextTargetTurnEnd,
			effect.PolicyNextTriggerTurnStart,
			effect.PolicyNextTriggerTurnEnd,
		}).Draw(t, "policy")
		start := rapid.IntRange(1, 20).Draw(t, "start")
		round := rapid.IntRange(start, start+5).Draw(t, "round")

		e := stamped(t, "fx", policy, 0, "c1", start, 0)
		e.OriginID = "x"
		pol, ok := policies.Lookup(policy)
		if !ok {
			t.Fatalf("%s not registered", policy)
		}
		kind := lifecycle.EventTurnStart
		if pol.Phase == effect.PhaseEnd {
			kind = lifecycle.EventTurnEnd
		}

		offset := 1
		if round == start {
			offset = 0
		}
		want := (round-start)+offset >= e.Duration.RoundsValue()
		got := len(lifecycle.Evaluate(policies, bearer("x", e), turnEvent(kind, soloClock(round), 0), nil).Expired) == 1
		if got != want {
			t.Fatalf("%s start=%d round=%d: expired=%v, offset rule says %v", policy, start, round, got, want)
		}
	})
}
