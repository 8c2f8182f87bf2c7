// Package scripting provides a sandboxed GopherLua execution environment for custom change
// combiners. It depends only on the stat value model; combiners are exposed to the resolver
// through Manager.Combiner.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes allowed per call when no
// limit is configured.
const DefaultInstructionLimit = 100_000

// opBudget is the context a VM runs under. The interpreter polls Done once per opcode, so
// counting polls counts opcodes.
type opBudget struct {
	context.Context
	stop context.CancelFunc
	left *atomic.Int64
}

func (b *opBudget) Done() <-chan struct{} {
	if b.left.Add(-1) <= 0 {
		b.stop()
	}
	return b.Context.Done()
}

// newOpBudget derives from parent a context that is cancelled after ops opcodes or when
// parent ends, whichever comes first.
//
// Precondition: ops > 0.
func newOpBudget(parent context.Context, ops int) (context.Context, context.CancelFunc) {
	inner, stop := context.WithCancel(parent)
	b := &opBudget{Context: inner, stop: stop, left: &atomic.Int64{}}
	b.left.Store(int64(ops))
	return b, stop
}

func effectiveLimit(instLimit int) int {
	if instLimit <= 0 {
		return DefaultInstructionLimit
	}
	return instLimit
}

// NewSandboxedState returns a VM for combiner scripts. Only the base, table, string and math
// libraries are opened, the globals that reach files or other chunks (dofile, loadfile, load,
// collectgarbage, require) are cleared, and loading a script may spend at most instLimit
// opcodes. Calls get their own budget from withBudget.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: Returns a non-nil LState ready for RegisterModules and DoFile.
// The caller owns the LState and must call L.Close() when done.
func NewSandboxedState(instLimit int) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	ctx, _ := newOpBudget(context.Background(), effectiveLimit(instLimit)) //nolint:govet // cancel fires automatically when limit is reached
	L.SetContext(ctx)
	return L
}

// withBudget installs a fresh instruction budget derived from ctx on L and returns a
// function restoring an unlimited context.
func withBudget(ctx context.Context, L *lua.LState, instLimit int) func() {
	cctx, cancel := newOpBudget(ctx, effectiveLimit(instLimit))
	L.SetContext(cctx)
	return func() {
		cancel()
		L.RemoveContext()
	}
}
