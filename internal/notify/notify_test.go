package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/demonlord/internal/notify"
	"github.com/cory-johannsen/demonlord/internal/testutil"
)

func TestLogSink_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := notify.NewLogSink(zap.New(core))
	ctx := context.Background()

	require.NoError(t, sink.Notify(ctx, notify.Message{SubjectID: "a", Title: "Blessed", Body: "expired", Level: notify.LevelInfo}))
	require.NoError(t, sink.Notify(ctx, notify.Message{SubjectID: "a", Title: "Missing", Level: notify.LevelError, Whisper: []string{"alice"}}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, []interface{}{"alice"}, entries[1].ContextMap()["whisper"])
}

func TestFanout_JoinsErrors(t *testing.T) {
	var got []string
	ok := notify.SinkFunc(func(_ context.Context, m notify.Message) error {
		got = append(got, m.Title)
		return nil
	})
	boom := errors.New("boom")
	bad := notify.SinkFunc(func(context.Context, notify.Message) error { return boom })

	err := notify.Fanout{bad, ok}.Notify(context.Background(), notify.Message{Title: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"x"}, got, "later sinks still receive the message")
}

func TestRedisSink_PublishSubscribe(t *testing.T) {
	_, client := testutil.NewRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs := notify.Subscribe(ctx, client, "demonlord:test", nil)
	// Wait until the subscription is registered before publishing.
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, "demonlord:test").Result()
		return err == nil && n["demonlord:test"] == 1
	}, time.Second, 5*time.Millisecond)

	sink := notify.NewRedisSink(client, "demonlord:test")
	want := notify.Message{SubjectID: "hero", EffectID: "fx", Title: "Blessed", Body: "Blessed has expired", Sound: "expire.ogg", Level: notify.LevelInfo}
	require.NoError(t, sink.Notify(ctx, want))

	select {
	case got := <-msgs:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
