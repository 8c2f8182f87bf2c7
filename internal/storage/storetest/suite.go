// Package storetest holds the behavioural suite every storage.Store backend must pass.
package storetest

import (
	"context"

	"github.com/stretchr/testify/suite"

	"github.com/cory-johannsen/demonlord/internal/game/actor"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/stats"
	"github.com/cory-johannsen/demonlord/internal/storage"
)

// Suite runs the Store contract against the backend returned by NewStore.
// NewStore is called before every test and must return an empty store.
type Suite struct {
	suite.Suite
	NewStore func() storage.Store

	ctx   context.Context
	store storage.Store
}

// SetupTest implements suite.SetupTestSuite.
func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore()
}

// Subject returns a character with one two-round effect and one transferring item.
func Subject(id string) *actor.Subject {
	return &actor.Subject{
		ID:     id,
		Name:   "Subject " + id,
		Type:   "character",
		Owners: []string{"alice", "gm"},
		Base: map[string]stats.Value{
			"characteristics.health.value": stats.Number(20),
			"languages":                    stats.Array(stats.String("Common")),
		},
		Effects: []*effect.Effect{
			{
				ID:   id + "-blessed",
				Name: "Blessed",
				Duration: effect.Duration{
					Selected:   effect.PolicyTwoRounds,
					Rounds:     effect.Ptr(2),
					StartRound: effect.Ptr(1),
					StartTurn:  effect.Ptr(0),
					CombatID:   "combat-1",
					AutoExpire: true,
				},
				Changes: []effect.Change{
					{Key: "boons.attack", Value: "1", Mode: effect.ModeAdd},
					{Key: "health.override", Value: "10", Mode: effect.ModeOverride, Priority: effect.Ptr(60)},
				},
				CreatedSeq: 1,
			},
		},
		Items: []*actor.Item{
			{
				ID:     id + "-ring",
				Name:   "Ring",
				Active: true,
				Effects: []*effect.Effect{
					{ID: id + "-ring-fx", Name: "Warded", Transfer: true, Changes: []effect.Change{
						{Key: "characteristics.defense", Value: "1", Mode: effect.ModeAdd},
					}},
				},
			},
		},
	}
}

func (s *Suite) save(sub *actor.Subject) {
	s.Require().NoError(s.store.SaveSubject(s.ctx, sub))
}

func (s *Suite) TestLoadMissing() {
	_, err := s.store.LoadSubject(s.ctx, "nobody")
	s.ErrorIs(err, storage.ErrSubjectNotFound)
}

func (s *Suite) TestSaveAndLoadRoundTrip() {
	want := Subject("a")
	s.save(want)

	got, err := s.store.LoadSubject(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal(want, got)
}

func (s *Suite) TestSaveReplaces() {
	sub := Subject("a")
	s.save(sub)
	sub.Name = "Renamed"
	sub.Effects = nil
	s.save(sub)

	got, err := s.store.LoadSubject(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal("Renamed", got.Name)
	s.Empty(got.Effects)
}

func (s *Suite) TestLoadReturnsCopy() {
	s.save(Subject("a"))
	got, err := s.store.LoadSubject(s.ctx, "a")
	s.Require().NoError(err)
	got.Effects[0].Disabled = true

	again, err := s.store.LoadSubject(s.ctx, "a")
	s.Require().NoError(err)
	s.False(again.Effects[0].Disabled)
}

func (s *Suite) TestListOrderedByID() {
	s.save(Subject("c"))
	s.save(Subject("a"))
	s.save(Subject("b"))

	subs, err := s.store.ListSubjects(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(subs, 3)
	s.Equal("a", subs[0].ID)
	s.Equal("b", subs[1].ID)
	s.Equal("c", subs[2].ID)
}

func (s *Suite) TestCreateEffects() {
	s.save(Subject("a"))
	fx := &effect.Effect{ID: "new", Name: "Fresh", Duration: effect.Duration{Selected: effect.PolicyOneMinute, Seconds: effect.Ptr(60), StartTime: effect.Ptr(int64(100))}, CreatedSeq: 2}
	s.Require().NoError(s.store.CreateEffects(s.ctx, "a", []*effect.Effect{fx}))

	got, err := s.store.LoadSubject(s.ctx, "a")
	s.Require().NoError(err)
	s.Require().Len(got.Effects, 2)
	s.Equal(fx, got.Effects[1])
}

func (s *Suite) TestCreateDuplicateIsAtomic() {
	s.save(Subject("a"))
	err := s.store.CreateEffects(s.ctx, "a", []*effect.Effect{
		{ID: "fresh", Name: "Fresh"},
		{ID: "a-blessed", Name: "Dup"},
	})
	s.ErrorIs(err, storage.ErrDuplicateEffect)

	got, err := s.store.LoadSubject(s.ctx, "a")
	s.Require().NoError(err)
	s.Len(got.Effects, 1)
}

func (s *Suite) TestUpdateEffects() {
	s.save(Subject("a"))
	d := effect.Duration{Selected: effect.PolicyTwoRounds, Rounds: effect.Ptr(2), StartRound: effect.Ptr(3), CombatID: "combat-2"}
	s.Require().NoError(s.store.UpdateEffects(s.ctx, "a", []effect.Update{
		{ID: "a-blessed", Disabled: effect.Ptr(true), Duration: &d},
	}))

	got, err := s.store.LoadSubject(s.ctx, "a")
	s.Require().NoError(err)
	s.True(got.Effects[0].Disabled)
	s.Equal(d, got.Effects[0].Duration)
	s.Len(got.Effects[0].Changes, 2, "changes survive a partial update")
}

func (s *Suite) TestUpdateMissingIsAtomic() {
	s.save(Subject("a"))
	err := s.store.UpdateEffects(s.ctx, "a", []effect.Update{
		{ID: "a-blessed", Disabled: effect.Ptr(true)},
		{ID: "ghost", Disabled: effect.Ptr(true)},
	})
	s.ErrorIs(err, storage.ErrEffectNotFound)

	got, err := s.store.LoadSubject(s.ctx, "a")
	s.Require().NoError(err)
	s.False(got.Effects[0].Disabled)
}

func (s *Suite) TestDeleteEffects() {
	s.save(Subject("a"))
	s.Require().NoError(s.store.CreateEffects(s.ctx, "a", []*effect.Effect{{ID: "x", Name: "X", CreatedSeq: 5}}))
	s.Require().NoError(s.store.DeleteEffects(s.ctx, "a", []string{"a-blessed"}))

	got, err := s.store.LoadSubject(s.ctx, "a")
	s.Require().NoError(err)
	s.Require().Len(got.Effects, 1)
	s.Equal("x", got.Effects[0].ID)
	s.Len(got.Items, 1, "item effects are not touched")
}

func (s *Suite) TestDeleteMissingIsAtomic() {
	s.save(Subject("a"))
	err := s.store.DeleteEffects(s.ctx, "a", []string{"a-blessed", "ghost"})
	s.ErrorIs(err, storage.ErrEffectNotFound)

	got, err := s.store.LoadSubject(s.ctx, "a")
	s.Require().NoError(err)
	s.Len(got.Effects, 1)
}

func (s *Suite) TestBatchOnMissingSubject() {
	s.ErrorIs(s.store.DeleteEffects(s.ctx, "nobody", []string{"x"}), storage.ErrSubjectNotFound)
	s.ErrorIs(s.store.UpdateEffects(s.ctx, "nobody", nil), storage.ErrSubjectNotFound)
	s.ErrorIs(s.store.CreateEffects(s.ctx, "nobody", nil), storage.ErrSubjectNotFound)
}
