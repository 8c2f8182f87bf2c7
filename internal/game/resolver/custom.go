package resolver

import (
	"context"
	"sort"
	"sync"

	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/stats"
)

// CustomInput is everything a custom combiner sees for one change.
type CustomInput struct {
	SubjectID string
	Path      string
	Current   stats.Value
	Delta     stats.Value
	Change    effect.Change
}

// Combiner computes the new value of a CUSTOM change.
type Combiner func(ctx context.Context, in CustomInput) (stats.Value, error)

// Customs is a registry of named custom combiners.
// A change names its combiner with Change.Custom; when empty the resolved path is used.
type Customs struct {
	mu        sync.RWMutex
	combiners map[string]Combiner
}

// NewCustoms creates an empty registry.
func NewCustoms() *Customs {
	return &Customs{combiners: make(map[string]Combiner)}
}

// Register installs fn under name, replacing any previous combiner.
//
// Precondition: name must be non-empty and fn non-nil.
func (c *Customs) Register(name string, fn Combiner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.combiners[name] = fn
}

// Lookup returns the combiner registered under name.
func (c *Customs) Lookup(name string) (Combiner, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.combiners[name]
	return fn, ok
}

// Names returns the registered combiner names in lexicographic order.
func (c *Customs) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.combiners))
	for n := range c.combiners {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
