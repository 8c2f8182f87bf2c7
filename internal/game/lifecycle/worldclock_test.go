package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/lifecycle"
	"github.com/cory-johannsen/demonlord/internal/notify"
	"github.com/cory-johannsen/demonlord/internal/storage/memory"
)

type timeRecorder struct {
	mu    sync.Mutex
	times []int64
}

func (r *timeRecorder) OnWorldTimeAdvance(_ context.Context, worldTime int64) (lifecycle.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = append(r.times, worldTime)
	return lifecycle.Report{Event: lifecycle.EventWorldTime}, nil
}

func (r *timeRecorder) seen() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.times...)
}

func TestWorldClock_AdvanceExpiresCalendarEffects(t *testing.T) {
	d, err := policies.Normalize(effect.PolicyOneMinute, 0, true)
	require.NoError(t, err)
	d.StartTime = effect.Ptr(int64(100))
	store := memory.NewStore(bearer("x", &effect.Effect{ID: "ward", Name: "Ward", Duration: d}))
	eng := lifecycle.NewEngine(store, standalone(), notify.Discard, policies, lifecycle.Options{}, zaptest.NewLogger(t))
	clk := lifecycle.NewWorldClock(100, 0, 0, eng, zaptest.NewLogger(t))

	report, err := clk.Advance(context.Background(), 30)
	require.NoError(t, err)
	assert.Empty(t, report.Expired)

	report, err = clk.Advance(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, report.Expired, 1)
	assert.Equal(t, int64(160), clk.Now())
}

func TestWorldClock_RunTicks(t *testing.T) {
	rec := &timeRecorder{}
	clk := lifecycle.NewWorldClock(0, 10*time.Millisecond, 6, rec, zaptest.NewLogger(t))
	ch := make(chan int64, 4)
	clk.Subscribe(ch)
	defer clk.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- clk.Run(ctx) }()

	for i := 1; i <= 2; i++ {
		select {
		case got := <-ch:
			assert.Equal(t, int64(6*i), got)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tick")
		}
	}
	cancel()
	require.NoError(t, <-done)
	seen := rec.seen()
	require.GreaterOrEqual(t, len(seen), 2)
	assert.Equal(t, []int64{6, 12}, seen[:2])
}

func TestWorldClock_RunWithoutIntervalBlocksUntilCancelled(t *testing.T) {
	clk := lifecycle.NewWorldClock(0, 0, 0, &timeRecorder{}, zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, clk.Run(ctx))
	assert.Equal(t, int64(0), clk.Now())
}

func TestPropertyWorldClock_MonotonicAdvance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rec := &timeRecorder{}
		start := rapid.Int64Range(0, 1_000_000).Draw(t, "start")
		clk := lifecycle.NewWorldClock(start, 0, 0, rec, zap.NewNop())
		steps := rapid.SliceOfN(rapid.Int64Range(0, 3600), 1, 20).Draw(t, "steps")
		want := start
		for _, s := range steps {
			want += s
			if _, err := clk.Advance(context.Background(), s); err != nil {
				t.Fatal(err)
			}
		}
		if clk.Now() != want {
			t.Fatalf("now %d, want %d", clk.Now(), want)
		}
		seen := rec.seen()
		for i := 1; i < len(seen); i++ {
			if seen[i] < seen[i-1] {
				t.Fatalf("handler saw time go backwards: %v", seen)
			}
		}
	})
}
