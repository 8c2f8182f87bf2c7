package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/demonlord/internal/game/actor"
	"github.com/cory-johannsen/demonlord/internal/game/combat"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/lifecycle"
	lifecyclemock "github.com/cory-johannsen/demonlord/internal/game/lifecycle/mock"
	"github.com/cory-johannsen/demonlord/internal/notify"
	"github.com/cory-johannsen/demonlord/internal/ownership"
	"github.com/cory-johannsen/demonlord/internal/storage/memory"
)

// recordingSink collects messages and is safe for concurrent use.
type recordingSink struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (s *recordingSink) Notify(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) messages() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Message(nil), s.msgs...)
}

func standalone() lifecycle.Authority { return ownership.NewDelegator("gm", nil) }

func TestEngine_TwoConnectedOwnersDeleteOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := lifecyclemock.NewMockStore(ctrl)

	curse := stamped(t, "curse", effect.PolicyOneRound, 0, "c1", 1, 0)
	curse.Duration.AutoExpire = true
	hero := bearer("x", curse)
	hero.Owners = []string{"bob", "alice"}

	store.EXPECT().LoadSubject(gomock.Any(), "x").DoAndReturn(
		func(context.Context, string) (*actor.Subject, error) { return hero.Clone(), nil },
	).Times(2)
	store.EXPECT().LoadSubject(gomock.Any(), "y").Return(bearer("y"), nil).Times(2)
	store.EXPECT().DeleteEffects(gomock.Any(), "x", []string{"curse"}).Return(nil).Times(1)

	presence := ownership.NewMemoryPresence("alice", "bob")
	logger := zaptest.NewLogger(t)
	var expired int
	for _, user := range []string{"alice", "bob"} {
		eng := lifecycle.NewEngine(store, ownership.NewDelegator(user, presence), notify.Discard, policies, lifecycle.Options{}, logger)
		report, err := eng.OnRoundAdvance(context.Background(), duelClock("c1", 2))
		require.NoError(t, err)
		expired += len(report.Expired)
	}
	assert.Equal(t, 1, expired)
}

func TestEngine_NotifiesBeforeCommit(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := lifecyclemock.NewMockStore(ctrl)
	sink := &recordingSink{}

	bless := stamped(t, "bless", effect.PolicyTwoRounds, 0, "c1", 1, 0)
	bless.Name = "Bless"
	store.EXPECT().LoadSubject(gomock.Any(), "x").Return(bearer("x", bless), nil)
	store.EXPECT().LoadSubject(gomock.Any(), "y").Return(bearer("y"), nil)
	store.EXPECT().UpdateEffects(gomock.Any(), "x", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, ups []effect.Update) error {
			assert.Len(t, sink.messages(), 1, "notice must be sent before the batch is written")
			if assert.Len(t, ups, 1) {
				assert.Equal(t, "bless", ups[0].ID)
				assert.True(t, *ups[0].Disabled)
			}
			return nil
		},
	)

	eng := lifecycle.NewEngine(store, standalone(), sink, policies, lifecycle.Options{Sound: "chime.ogg"}, zaptest.NewLogger(t))
	report, err := eng.OnRoundAdvance(context.Background(), duelClock("c1", 3))
	require.NoError(t, err)
	require.Len(t, report.Expired, 1)
	assert.False(t, report.Expired[0].Deleted)

	msgs := sink.messages()
	assert.Equal(t, "Bless", msgs[0].Title)
	assert.Equal(t, "chime.ogg", msgs[0].Sound)
	assert.Contains(t, msgs[0].Body, "2 rounds")
}

func TestEngine_DeleteVersusDisable(t *testing.T) {
	bless := stamped(t, "bless", effect.PolicyOneRound, 0, "c1", 1, 0)
	curse := stamped(t, "curse", effect.PolicyOneRound, 0, "c1", 1, 0)
	curse.Duration.AutoExpire = true
	store := memory.NewStore(bearer("x", bless, curse), bearer("y"))

	eng := lifecycle.NewEngine(store, standalone(), notify.Discard, policies, lifecycle.Options{Parallelism: 2}, zaptest.NewLogger(t))
	_, err := eng.OnRoundAdvance(context.Background(), duelClock("c1", 2))
	require.NoError(t, err)

	got, err := store.LoadSubject(context.Background(), "x")
	require.NoError(t, err)
	require.Len(t, got.Effects, 1)
	assert.Equal(t, "bless", got.Effects[0].ID)
	assert.True(t, got.Effects[0].Disabled)
}

func TestEngine_OwnershipConflictSkipsSubject(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := lifecyclemock.NewMockStore(ctrl)
	authority := lifecyclemock.NewMockAuthority(ctrl)

	store.EXPECT().LoadSubject(gomock.Any(), "x").Return(bearer("x", stamped(t, "bless", effect.PolicyOneRound, 0, "c1", 1, 0)), nil)
	store.EXPECT().LoadSubject(gomock.Any(), "y").Return(bearer("y"), nil)
	authority.EXPECT().IsAuthoritative(gomock.Any(), gomock.Any()).Return(false, lifecycle.ErrOwnershipConflict)

	eng := lifecycle.NewEngine(store, authority, notify.Discard, policies, lifecycle.Options{}, zaptest.NewLogger(t))
	report, err := eng.OnRoundAdvance(context.Background(), duelClock("c1", 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, report.Skipped)
	assert.Empty(t, report.Expired)
}

func TestEngine_OneSubjectFailingDoesNotStopOthers(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := lifecyclemock.NewMockStore(ctrl)

	for _, id := range []string{"x", "y"} {
		fx := stamped(t, id+"-fx", effect.PolicyOneRound, 0, "c1", 1, 0)
		fx.Duration.AutoExpire = true
		store.EXPECT().LoadSubject(gomock.Any(), id).Return(bearer(id, fx), nil)
	}
	boom := errors.New("disk full")
	store.EXPECT().DeleteEffects(gomock.Any(), "x", []string{"x-fx"}).Return(boom)
	store.EXPECT().DeleteEffects(gomock.Any(), "y", []string{"y-fx"}).Return(nil)

	eng := lifecycle.NewEngine(store, standalone(), notify.Discard, policies, lifecycle.Options{}, zaptest.NewLogger(t))
	report, err := eng.OnRoundAdvance(context.Background(), duelClock("c1", 2))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `subject "x"`)
	require.Len(t, report.Expired, 1)
	assert.Equal(t, "y", report.Expired[0].SubjectID)
}

func TestEngine_InvalidPolicyWarnsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	odd := func(id string) *effect.Effect {
		return &effect.Effect{ID: id, Duration: effect.Duration{Selected: "fortnight"}}
	}
	store := memory.NewStore(bearer("x", odd("a"), odd("b")), bearer("y", odd("c")))
	eng := lifecycle.NewEngine(store, standalone(), notify.Discard, policies, lifecycle.Options{}, zap.New(core))

	for round := 2; round < 4; round++ {
		_, err := eng.OnRoundAdvance(context.Background(), duelClock("c1", round))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, logs.FilterMessage("invalid duration policy, treating as none").Len())
}

func TestEngine_WorldTimeListsEverySubject(t *testing.T) {
	d, err := policies.Normalize(effect.PolicyHours, 1, true)
	require.NoError(t, err)
	d.StartTime = effect.Ptr(int64(0))
	store := memory.NewStore(
		bearer("x", &effect.Effect{ID: "ward", Name: "Ward", Duration: d}),
		bearer("z"),
	)
	eng := lifecycle.NewEngine(store, standalone(), notify.Discard, policies, lifecycle.Options{}, zaptest.NewLogger(t))

	report, err := eng.OnWorldTimeAdvance(context.Background(), 3600)
	require.NoError(t, err)
	require.Len(t, report.Expired, 1)
	assert.True(t, report.Expired[0].Deleted)

	got, err := store.LoadSubject(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, got.Effects)
}

func TestEngine_OnTurnPhaseRejectsOtherTransitions(t *testing.T) {
	eng := lifecycle.NewEngine(memory.NewStore(), standalone(), notify.Discard, policies, lifecycle.Options{}, zaptest.NewLogger(t))
	_, err := eng.OnTurnPhase(context.Background(), combat.Transition{Kind: combat.TransitionRoundAdvance, Clock: duelClock("c1", 2)})
	assert.Error(t, err)
}

func TestEngine_DrivenByTracker(t *testing.T) {
	ctx := context.Background()
	bless, err := policies.Normalize(effect.PolicyOneRound, 0, false)
	require.NoError(t, err)
	dodge, err := policies.Normalize(effect.PolicyTurnEnd, 0, true)
	require.NoError(t, err)
	store := memory.NewStore(
		bearer("x",
			&effect.Effect{ID: "bless", Name: "Bless", Duration: bless},
			&effect.Effect{ID: "dodge", Name: "Dodge", Duration: dodge},
		),
		bearer("y"),
	)
	logger := zaptest.NewLogger(t)
	sink := &recordingSink{}
	tracker := combat.NewTracker(combat.TrackerConfig{Options: combat.Options{SkipDefeated: true}}, logger)
	tracker.Subscribe(lifecycle.NewEngine(store, standalone(), sink, policies, lifecycle.Options{}, logger))

	_, err = tracker.StartCombat(ctx, "scene", []*combat.Combatant{
		{ID: "cy", SubjectID: "y", Disposition: combat.DispositionEnemy, Initiative: 15},
		{ID: "cx", SubjectID: "x", Disposition: combat.DispositionAlly, Initiative: 5},
	})
	require.NoError(t, err)

	x, err := store.LoadSubject(ctx, "x")
	require.NoError(t, err)
	require.Len(t, x.Effects, 2)
	require.NotNil(t, x.Effects[0].Duration.StartRound, "round effects are adopted at combat start")
	assert.Equal(t, 1, *x.Effects[0].Duration.StartRound)

	// Allies act first: x ends its turn, dodge is deleted.
	_, err = tracker.NextTurn(ctx, "scene")
	require.NoError(t, err)
	x, err = store.LoadSubject(ctx, "x")
	require.NoError(t, err)
	require.Len(t, x.Effects, 1)
	assert.Equal(t, "bless", x.Effects[0].ID)
	assert.False(t, x.Effects[0].Disabled)

	// y ends its turn and round 2 begins: bless is disabled.
	clock, err := tracker.NextTurn(ctx, "scene")
	require.NoError(t, err)
	assert.Equal(t, 2, clock.Round)
	x, err = store.LoadSubject(ctx, "x")
	require.NoError(t, err)
	assert.True(t, x.Effects[0].Disabled)

	var titles []string
	for _, m := range sink.messages() {
		titles = append(titles, m.Title)
	}
	assert.Equal(t, []string{"Dodge", "Bless"}, titles)
	tracker.Stop()
}
