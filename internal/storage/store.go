// Package storage defines the persistence boundary for subjects and their effects.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cory-johannsen/demonlord/internal/game/actor"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
)

var (
	// ErrSubjectNotFound is returned when no subject has the requested ID.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrEffectNotFound is returned when a batch references an effect the subject does not own.
	ErrEffectNotFound = errors.New("effect not found")
	// ErrDuplicateEffect is returned when a created effect ID already exists on the subject.
	ErrDuplicateEffect = errors.New("effect already exists")
)

// Store persists subjects. Every effect batch is atomic: either every element of the batch
// is applied or none is.
type Store interface {
	// LoadSubject returns a copy of the subject with id, or ErrSubjectNotFound.
	LoadSubject(ctx context.Context, id string) (*actor.Subject, error)
	// ListSubjects returns copies of every subject ordered by ID.
	ListSubjects(ctx context.Context) ([]*actor.Subject, error)
	// SaveSubject inserts or replaces s, including its effects and items.
	SaveSubject(ctx context.Context, s *actor.Subject) error
	// CreateEffects appends effects to the subject's own effects.
	CreateEffects(ctx context.Context, subjectID string, effects []*effect.Effect) error
	// UpdateEffects applies partial updates to the subject's own effects.
	UpdateEffects(ctx context.Context, subjectID string, updates []effect.Update) error
	// DeleteEffects removes the subject's own effects with the given IDs.
	DeleteEffects(ctx context.Context, subjectID string, ids []string) error
}

// Pinger is implemented by stores backed by a remote or file database that can become
// unreachable after startup.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ApplyCreate appends effects to s in place.
//
// Postcondition: Returns ErrDuplicateEffect and leaves s unchanged when any ID collides.
func ApplyCreate(s *actor.Subject, effects []*effect.Effect) error {
	seen := make(map[string]bool, len(s.Effects)+len(effects))
	for _, e := range s.Effects {
		seen[e.ID] = true
	}
	for _, e := range effects {
		if seen[e.ID] {
			return fmt.Errorf("subject %q effect %q: %w", s.ID, e.ID, ErrDuplicateEffect)
		}
		seen[e.ID] = true
	}
	for _, e := range effects {
		s.Effects = append(s.Effects, e.Clone())
	}
	return nil
}

// ApplyUpdate applies updates to s in place.
//
// Postcondition: Returns ErrEffectNotFound and leaves s unchanged when any ID is missing.
func ApplyUpdate(s *actor.Subject, updates []effect.Update) error {
	targets := make([]*effect.Effect, len(updates))
	for i, u := range updates {
		e, ok := s.FindEffect(u.ID)
		if !ok {
			return fmt.Errorf("subject %q effect %q: %w", s.ID, u.ID, ErrEffectNotFound)
		}
		targets[i] = e
	}
	for i, u := range updates {
		u.ApplyTo(targets[i])
	}
	return nil
}

// ApplyDelete removes the effects with ids from s in place.
//
// Postcondition: Returns ErrEffectNotFound and leaves s unchanged when any ID is missing.
func ApplyDelete(s *actor.Subject, ids []string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.FindEffect(id); !ok {
			return fmt.Errorf("subject %q effect %q: %w", s.ID, id, ErrEffectNotFound)
		}
		drop[id] = true
	}
	kept := s.Effects[:0:0]
	for _, e := range s.Effects {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	s.Effects = kept
	return nil
}
