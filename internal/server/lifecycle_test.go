package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// blockingService runs until Stop is called; it ignores ctx.
type blockingService struct {
	started atomic.Bool
	stopped atomic.Bool
	stopCh  chan struct{}
	once    sync.Once
	order   *[]string
	name    string
	mu      *sync.Mutex
}

func newBlockingService(name string, order *[]string, mu *sync.Mutex) *blockingService {
	return &blockingService{stopCh: make(chan struct{}), name: name, order: order, mu: mu}
}

func (b *blockingService) Start(context.Context) error {
	b.started.Store(true)
	<-b.stopCh
	return nil
}

func (b *blockingService) Stop() {
	b.once.Do(func() {
		b.mu.Lock()
		*b.order = append(*b.order, b.name)
		b.mu.Unlock()
		b.stopped.Store(true)
		close(b.stopCh)
	})
}

func waitStarted(t *testing.T, svcs ...*blockingService) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, s := range svcs {
			if !s.started.Load() {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLifecycle_CancelStopsServicesInReverseOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	lc := NewLifecycle(zaptest.NewLogger(t))
	svc1 := newBlockingService("clock", &order, &mu)
	svc2 := newBlockingService("engine", &order, &mu)
	lc.Add("clock", svc1)
	lc.Add("engine", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()
	waitStarted(t, svc1, svc2)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.True(t, svc1.stopped.Load())
	assert.True(t, svc2.stopped.Load())
	assert.Equal(t, []string{"engine", "clock"}, order)
}

func TestLifecycle_ServiceFailureStopsTheRest(t *testing.T) {
	var order []string
	var mu sync.Mutex
	lc := NewLifecycle(zaptest.NewLogger(t))
	steady := newBlockingService("steady", &order, &mu)
	lc.Add("steady", steady)
	lc.Add("broken", &FuncService{StartFn: func(context.Context) error { return errors.New("bind failed") }})

	err := lc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service broken")
	assert.True(t, steady.stopped.Load())
}

func TestLifecycle_ContextAwareServiceReturnsCleanly(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	var running atomic.Bool
	lc.Add("ticker", &FuncService{StartFn: func(ctx context.Context) error {
		running.Store(true)
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()
	require.Eventually(t, running.Load, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false
	svc := &FuncService{
		StartFn: func(context.Context) error {
			started = true
			return nil
		},
		StopFn: func() { stopped = true },
	}
	assert.NoError(t, svc.Start(context.Background()))
	assert.True(t, started)
	svc.Stop()
	assert.True(t, stopped)

	assert.NotPanics(t, (&FuncService{StartFn: func(context.Context) error { return nil }}).Stop)
}
