package ownership

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const presencePrefix = "demonlord:presence:"

// RedisPresence stores one expiring key per connected user.
type RedisPresence struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisPresence returns a Presence backed by client.
//
// Precondition: ttl > 0.
func NewRedisPresence(client redis.UniversalClient, ttl time.Duration) *RedisPresence {
	return &RedisPresence{client: client, ttl: ttl}
}

// TTL returns how long a heartbeat keeps a user connected.
func (p *RedisPresence) TTL() time.Duration { return p.ttl }

// Connected implements Presence.
func (p *RedisPresence) Connected(ctx context.Context) (map[string]bool, error) {
	out := make(map[string]bool)
	iter := p.client.Scan(ctx, 0, presencePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out[strings.TrimPrefix(iter.Val(), presencePrefix)] = true
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning presence keys: %w", err)
	}
	return out, nil
}

// Heartbeat implements Presence.
func (p *RedisPresence) Heartbeat(ctx context.Context, userID string) error {
	if err := p.client.Set(ctx, presencePrefix+userID, time.Now().UTC().Unix(), p.ttl).Err(); err != nil {
		return fmt.Errorf("refreshing presence of %q: %w", userID, err)
	}
	return nil
}

// Leave implements Presence.
func (p *RedisPresence) Leave(ctx context.Context, userID string) error {
	if err := p.client.Del(ctx, presencePrefix+userID).Err(); err != nil {
		return fmt.Errorf("clearing presence of %q: %w", userID, err)
	}
	return nil
}

// Heartbeater keeps one user present until stopped.
type Heartbeater struct {
	presence Presence
	userID   string
	interval time.Duration
	logger   *zap.Logger
}

// NewHeartbeater refreshes userID's presence every interval.
//
// Precondition: interval > 0; logger must be non-nil.
func NewHeartbeater(presence Presence, userID string, interval time.Duration, logger *zap.Logger) *Heartbeater {
	return &Heartbeater{presence: presence, userID: userID, interval: interval, logger: logger}
}

// Run heartbeats immediately and then on every tick until ctx is cancelled, then leaves.
//
// Postcondition: Returns the initial heartbeat error, or nil once ctx is cancelled. Later
// heartbeat failures are logged and retried on the next tick.
func (h *Heartbeater) Run(ctx context.Context) error {
	if err := h.presence.Heartbeat(ctx, h.userID); err != nil {
		return err
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// ctx is already done.
			leaveCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := h.presence.Leave(leaveCtx, h.userID); err != nil {
				h.logger.Warn("leaving presence", zap.String("user", h.userID), zap.Error(err))
			}
			return nil
		case <-ticker.C:
			if err := h.presence.Heartbeat(ctx, h.userID); err != nil {
				if ctx.Err() != nil {
					continue
				}
				h.logger.Warn("presence heartbeat failed", zap.String("user", h.userID), zap.Error(err))
			}
		}
	}
}
