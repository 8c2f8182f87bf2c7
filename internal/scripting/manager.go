package scripting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/demonlord/internal/game/resolver"
	"github.com/cory-johannsen/demonlord/internal/game/stats"
)

// CombinerPrefix marks Lua globals that implement custom combiners: combine_<name>.
const CombinerPrefix = "combine_"

// Manager owns one sandboxed LState holding every loaded script.
//
// Manager is safe for concurrent use. The LState is single-threaded, so calls are
// serialised; each call runs under its own instruction budget.
type Manager struct {
	mu        sync.Mutex
	state     *lua.LState
	instLimit int
	logger    *zap.Logger
}

// NewManager creates a Manager with no scripts loaded.
//
// Precondition: logger must be non-nil; instLimit >= 0, 0 uses DefaultInstructionLimit.
// Postcondition: Returns a non-nil Manager.
func NewManager(instLimit int, logger *zap.Logger) *Manager {
	if logger == nil {
		panic("scripting: NewManager requires a logger")
	}
	return &Manager{instLimit: instLimit, logger: logger}
}

// LoadDir creates a fresh sandboxed VM, registers the engine.* modules, then executes every
// *.lua file in scriptDir in lexicographic order. The new VM replaces the previous one only
// when every file loads.
//
// Precondition: scriptDir must be a readable directory.
func (m *Manager) LoadDir(scriptDir string) error {
	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q: %w", scriptDir, err)
	}
	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	L := NewSandboxedState(m.instLimit)
	m.RegisterModules(L)
	for _, path := range luaFiles {
		done := withBudget(context.Background(), L, m.instLimit)
		err := L.DoFile(path)
		done()
		if err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}

	m.mu.Lock()
	old := m.state
	m.state = L
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}
	m.logger.Info("scripts loaded", zap.String("dir", scriptDir), zap.Int("files", len(luaFiles)))
	return nil
}

// errNoFunction is returned when a global is not a function or no scripts are loaded.
type errNoFunction string

func (e errNoFunction) Error() string { return fmt.Sprintf("no Lua function %q", string(e)) }

// call runs global fn with the arguments built by args under the manager lock.
func (m *Manager) call(ctx context.Context, fn string, args func(*lua.LState) []lua.LValue) (lua.LValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return lua.LNil, errNoFunction(fn)
	}
	L := m.state
	f, ok := L.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return lua.LNil, errNoFunction(fn)
	}
	done := withBudget(ctx, L, m.instLimit)
	defer done()
	if err := L.CallByParam(lua.P{Fn: f, NRet: 1, Protect: true}, args(L)...); err != nil {
		return lua.LNil, err
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// CombinerNames returns the names of every loaded combine_<name> function in lexicographic
// order.
func (m *Manager) CombinerNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil
	}
	var names []string
	m.state.G.Global.ForEach(func(k, v lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok || v.Type() != lua.LTFunction {
			return
		}
		if name, found := strings.CutPrefix(string(key), CombinerPrefix); found && name != "" {
			names = append(names, name)
		}
	})
	sort.Strings(names)
	return names
}

// Combiner adapts the Lua function combine_<name>(current, delta, mode, path, subject) into
// a resolver combiner. The function is looked up on every call so reloads take effect.
func (m *Manager) Combiner(name string) resolver.Combiner {
	fn := CombinerPrefix + name
	return func(ctx context.Context, in resolver.CustomInput) (stats.Value, error) {
		ret, err := m.call(ctx, fn, func(L *lua.LState) []lua.LValue {
			return []lua.LValue{
				ToLua(L, in.Current),
				ToLua(L, in.Delta),
				lua.LString(in.Change.Mode.String()),
				lua.LString(in.Path),
				lua.LString(in.SubjectID),
			}
		})
		if err != nil {
			return stats.Value{}, fmt.Errorf("scripting: %s on %q: %w", fn, in.Path, err)
		}
		if ret == lua.LNil {
			return stats.Value{}, fmt.Errorf("scripting: %s returned nil for %q", fn, in.Path)
		}
		v, err := FromLua(ret)
		if err != nil {
			return stats.Value{}, fmt.Errorf("scripting: %s result for %q: %w", fn, in.Path, err)
		}
		return v, nil
	}
}

// Register installs every loaded combiner into customs and returns their names.
func (m *Manager) Register(customs *resolver.Customs) []string {
	names := m.CombinerNames()
	for _, name := range names {
		customs.Register(name, m.Combiner(name))
	}
	return names
}

// Close releases the VM. Subsequent calls behave as if no scripts were loaded.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != nil {
		m.state.Close()
		m.state = nil
	}
}
