package combat_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/cory-johannsen/demonlord/internal/game/combat"
)

func TestTurnTimer_Fires(t *testing.T) {
	var called atomic.Int32
	tt := combat.NewTurnTimer(20*time.Millisecond, func() {
		called.Add(1)
	})
	_ = tt
	time.Sleep(60 * time.Millisecond)
	if called.Load() != 1 {
		t.Fatalf("expected callback called once, got %d", called.Load())
	}
}

func TestTurnTimer_Stop_PreventsCallback(t *testing.T) {
	var called atomic.Int32
	tt := combat.NewTurnTimer(50*time.Millisecond, func() {
		called.Add(1)
	})
	tt.Stop()
	time.Sleep(80 * time.Millisecond)
	if called.Load() != 0 {
		t.Fatalf("expected callback not called, got %d", called.Load())
	}
}

func TestTurnTimer_Reset_ReplacesCallback(t *testing.T) {
	var first, second atomic.Int32
	tt := combat.NewTurnTimer(30*time.Millisecond, func() {
		first.Add(1)
	})
	time.Sleep(10 * time.Millisecond)
	tt.Reset(40*time.Millisecond, func() {
		second.Add(1)
	})
	time.Sleep(30 * time.Millisecond)
	if first.Load() != 0 || second.Load() != 0 {
		t.Fatalf("expected no callback at 40ms, got first=%d second=%d", first.Load(), second.Load())
	}
	time.Sleep(40 * time.Millisecond)
	if first.Load() != 0 || second.Load() != 1 {
		t.Fatalf("expected only the reset callback, got first=%d second=%d", first.Load(), second.Load())
	}
}

func TestTurnTimer_StopIdempotent(t *testing.T) {
	tt := combat.NewTurnTimer(50*time.Millisecond, func() {})
	tt.Stop()
	tt.Stop()
	tt.Stop()
}
