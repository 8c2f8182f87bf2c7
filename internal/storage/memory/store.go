// Package memory provides an in-process Store used by the simulator, standalone mode, and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cory-johannsen/demonlord/internal/game/actor"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/storage"
)

// Store is a mutex-guarded map of subjects. It never hands out its own pointers.
type Store struct {
	mu       sync.RWMutex
	subjects map[string]*actor.Subject
}

// NewStore returns a Store seeded with copies of subjects.
//
// Postcondition: Returns a non-nil Store.
func NewStore(subjects ...*actor.Subject) *Store {
	s := &Store{subjects: make(map[string]*actor.Subject, len(subjects))}
	for _, sub := range subjects {
		s.subjects[sub.ID] = sub.Clone()
	}
	return s
}

// LoadSubject implements storage.Store.
func (s *Store) LoadSubject(_ context.Context, id string) (*actor.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subjects[id]
	if !ok {
		return nil, fmt.Errorf("subject %q: %w", id, storage.ErrSubjectNotFound)
	}
	return sub.Clone(), nil
}

// ListSubjects implements storage.Store.
func (s *Store) ListSubjects(_ context.Context) ([]*actor.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*actor.Subject, 0, len(s.subjects))
	for _, sub := range s.subjects {
		out = append(out, sub.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveSubject implements storage.Store.
func (s *Store) SaveSubject(_ context.Context, sub *actor.Subject) error {
	if sub.ID == "" {
		return fmt.Errorf("saving subject: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[sub.ID] = sub.Clone()
	return nil
}

// CreateEffects implements storage.Store.
func (s *Store) CreateEffects(_ context.Context, subjectID string, effects []*effect.Effect) error {
	return s.mutate(subjectID, func(sub *actor.Subject) error { return storage.ApplyCreate(sub, effects) })
}

// UpdateEffects implements storage.Store.
func (s *Store) UpdateEffects(_ context.Context, subjectID string, updates []effect.Update) error {
	return s.mutate(subjectID, func(sub *actor.Subject) error { return storage.ApplyUpdate(sub, updates) })
}

// DeleteEffects implements storage.Store.
func (s *Store) DeleteEffects(_ context.Context, subjectID string, ids []string) error {
	return s.mutate(subjectID, func(sub *actor.Subject) error { return storage.ApplyDelete(sub, ids) })
}

// mutate applies fn to a copy and swaps it in only on success.
func (s *Store) mutate(subjectID string, fn func(*actor.Subject) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.subjects[subjectID]
	if !ok {
		return fmt.Errorf("subject %q: %w", subjectID, storage.ErrSubjectNotFound)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return err
	}
	s.subjects[subjectID] = next
	return nil
}
