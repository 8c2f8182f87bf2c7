package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WorldTimeHandler reacts to world time advancing to an absolute time in seconds.
type WorldTimeHandler interface {
	OnWorldTimeAdvance(ctx context.Context, worldTime int64) (Report, error)
}

// WorldClock advances world time and runs calendar expiration on every advance.
type WorldClock struct {
	now            int64
	tickInterval   time.Duration
	secondsPerTick int64
	handler        WorldTimeHandler
	logger         *zap.Logger

	// advanceMu serialises advances so handlers observe world time in order.
	advanceMu   sync.Mutex
	mu          sync.Mutex
	subscribers map[chan<- int64]struct{}
}

// NewWorldClock creates a stopped WorldClock at start seconds.
//
// Precondition: handler and logger must be non-nil; secondsPerTick > 0 when tickInterval > 0.
// Postcondition: Returns a clock ready to Run; tickInterval 0 means it only advances manually.
func NewWorldClock(start int64, tickInterval time.Duration, secondsPerTick int64, handler WorldTimeHandler, logger *zap.Logger) *WorldClock {
	return &WorldClock{
		now:            start,
		tickInterval:   tickInterval,
		secondsPerTick: secondsPerTick,
		handler:        handler,
		logger:         logger,
		subscribers:    make(map[chan<- int64]struct{}),
	}
}

// Now returns the current world time in seconds.
func (c *WorldClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Subscribe registers ch to receive the world time after each advance.
// If ch is full, the value is dropped for that subscriber.
//
// Precondition: ch must not be nil.
func (c *WorldClock) Subscribe(ch chan<- int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers[ch] = struct{}{}
}

// Unsubscribe removes ch from the subscriber list.
func (c *WorldClock) Unsubscribe(ch chan<- int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribers, ch)
}

// Advance moves world time forward by seconds and expires due calendar effects.
//
// Precondition: seconds >= 0.
func (c *WorldClock) Advance(ctx context.Context, seconds int64) (Report, error) {
	c.advanceMu.Lock()
	defer c.advanceMu.Unlock()

	c.mu.Lock()
	c.now += seconds
	now := c.now
	subs := make([]chan<- int64, 0, len(c.subscribers))
	for ch := range c.subscribers {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	report, err := c.handler.OnWorldTimeAdvance(ctx, now)
	for _, ch := range subs {
		select {
		case ch <- now:
		default:
		}
	}
	return report, err
}

// Run advances the clock by secondsPerTick every tickInterval until ctx is cancelled.
// With a zero tickInterval it blocks until ctx is cancelled.
func (c *WorldClock) Run(ctx context.Context) error {
	if c.tickInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			report, err := c.Advance(ctx, c.secondsPerTick)
			if err != nil {
				c.logger.Warn("world time expiration failed", zap.Int64("world_time", c.Now()), zap.Error(err))
				continue
			}
			if len(report.Expired) > 0 {
				c.logger.Info("calendar effects expired",
					zap.Int64("world_time", c.Now()),
					zap.Int("count", len(report.Expired)),
				)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
