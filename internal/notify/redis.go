package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes messages as JSON on a pub/sub channel.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisSink returns a RedisSink publishing on channel.
//
// Precondition: channel must be non-empty.
func NewRedisSink(client redis.UniversalClient, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

// Notify implements Sink.
func (s *RedisSink) Notify(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing notification on %q: %w", s.channel, err)
	}
	return nil
}

// Subscribe decodes messages from channel until ctx is cancelled. Malformed payloads are
// passed to onError and skipped.
//
// Postcondition: The returned channel is closed when ctx is done.
func Subscribe(ctx context.Context, client redis.UniversalClient, channel string, onError func(error)) <-chan Message {
	sub := client.Subscribe(ctx, channel)
	out := make(chan Message)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					if onError != nil {
						onError(fmt.Errorf("decoding notification: %w", err))
					}
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
