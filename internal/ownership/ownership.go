// Package ownership elects the single evaluator allowed to commit expirations for a subject.
package ownership

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cory-johannsen/demonlord/internal/game/actor"
)

// ErrOwnershipConflict is returned when no connected user can evaluate a subject this pass.
var ErrOwnershipConflict = errors.New("no authoritative evaluator connected")

// FirstActiveOwner returns the lexicographically smallest owner present in connected.
//
// Postcondition: ok is false when no owner is connected. The result does not depend on the
// order of owners.
func FirstActiveOwner(owners []string, connected map[string]bool) (string, bool) {
	var best string
	found := false
	for _, o := range owners {
		if o == "" || !connected[o] {
			continue
		}
		if !found || o < best {
			best = o
			found = true
		}
	}
	return best, found
}

// Presence reports which users are currently connected.
type Presence interface {
	// Connected returns the set of connected user IDs.
	Connected(ctx context.Context) (map[string]bool, error)
	// Heartbeat marks userID connected until its presence lapses.
	Heartbeat(ctx context.Context, userID string) error
	// Leave marks userID disconnected immediately.
	Leave(ctx context.Context, userID string) error
}

// Delegator answers whether this process is the authoritative evaluator for a subject.
type Delegator struct {
	self     string
	presence Presence
	// fallback users (game masters) evaluate subjects with no connected owner.
	fallback []string
	// standalone delegators own every subject.
	standalone bool
}

// NewDelegator returns a Delegator for user self. A nil presence makes the delegator
// standalone: it is authoritative for every subject.
//
// Precondition: self must be non-empty.
func NewDelegator(self string, presence Presence, fallback ...string) *Delegator {
	fb := append([]string(nil), fallback...)
	sort.Strings(fb)
	return &Delegator{self: self, presence: presence, fallback: fb, standalone: presence == nil}
}

// Self returns the user ID this delegator evaluates as.
func (d *Delegator) Self() string { return d.self }

// Leader returns the user that must evaluate s: the first active owner, else the first
// connected fallback user.
//
// Postcondition: Returns ErrOwnershipConflict when nobody eligible is connected.
func (d *Delegator) Leader(ctx context.Context, s *actor.Subject) (string, error) {
	if d.standalone {
		return d.self, nil
	}
	connected, err := d.presence.Connected(ctx)
	if err != nil {
		return "", fmt.Errorf("reading presence: %w", err)
	}
	if leader, ok := FirstActiveOwner(s.Owners, connected); ok {
		return leader, nil
	}
	if leader, ok := FirstActiveOwner(d.fallback, connected); ok {
		return leader, nil
	}
	return "", fmt.Errorf("subject %q: %w", s.ID, ErrOwnershipConflict)
}

// IsAuthoritative reports whether this delegator's user is the leader for s.
func (d *Delegator) IsAuthoritative(ctx context.Context, s *actor.Subject) (bool, error) {
	leader, err := d.Leader(ctx, s)
	if err != nil {
		return false, err
	}
	return leader == d.self, nil
}
