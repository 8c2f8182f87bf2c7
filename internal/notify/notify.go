// Package notify delivers user-facing notices about effect lifecycle events.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Level classifies a Message.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Message is one notice. An empty Whisper list broadcasts to every user.
type Message struct {
	SubjectID string   `json:"subject_id"`
	EffectID  string   `json:"effect_id,omitempty"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Sound     string   `json:"sound,omitempty"`
	Whisper   []string `json:"whisper,omitempty"`
	Level     Level    `json:"level"`
}

// Sink receives messages. Implementations must be safe for concurrent use.
type Sink interface {
	Notify(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg Message) error

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogSink writes messages to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a LogSink.
//
// Precondition: logger must be non-nil.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify implements Sink.
func (s *LogSink) Notify(_ context.Context, msg Message) error {
	fields := []zap.Field{
		zap.String("subject", msg.SubjectID),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
	}
	if msg.EffectID != "" {
		fields = append(fields, zap.String("effect", msg.EffectID))
	}
	if len(msg.Whisper) > 0 {
		fields = append(fields, zap.Strings("whisper", msg.Whisper))
	}
	switch msg.Level {
	case LevelError:
		s.logger.Error("notification", fields...)
	case LevelWarn:
		s.logger.Warn("notification", fields...)
	default:
		s.logger.Info("notification", fields...)
	}
	return nil
}

// Fanout delivers every message to all of its sinks.
type Fanout []Sink

// Notify implements Sink. Every sink is tried; errors are joined.
func (f Fanout) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range f {
		if err := s.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every message.
var Discard Sink = SinkFunc(func(context.Context, Message) error { return nil })
