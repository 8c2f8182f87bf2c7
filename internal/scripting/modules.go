package scripting

import (
	"math"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers the engine.* Lua tables into L:
//
//	engine.log.debug|info|warn|error(msg)
//	engine.math.clamp(x, lo, hi)
//	engine.array.contains(tbl, v)
//	engine.array.union(a, b)
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()
	L.SetField(engine, "log", m.logModule(L))
	L.SetField(engine, "math", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"clamp": luaClamp,
	}))
	L.SetField(engine, "array", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"contains": luaContains,
		"union":    luaUnion,
	}))
	L.SetGlobal("engine", engine)
}

func (m *Manager) logModule(L *lua.LState) *lua.LTable {
	logAt := func(fn func(string, ...zap.Field)) lua.LGFunction {
		return func(L *lua.LState) int {
			fn(L.CheckString(1), zap.String("source", "lua"))
			return 0
		}
	}
	return L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"debug": logAt(m.logger.Debug),
		"info":  logAt(m.logger.Info),
		"warn":  logAt(m.logger.Warn),
		"error": logAt(m.logger.Error),
	})
}

func luaClamp(L *lua.LState) int {
	x := float64(L.CheckNumber(1))
	lo := float64(L.CheckNumber(2))
	hi := float64(L.CheckNumber(3))
	L.Push(lua.LNumber(math.Min(math.Max(x, lo), hi)))
	return 1
}

func luaContains(L *lua.LState) int {
	tbl := L.CheckTable(1)
	v := L.CheckAny(2)
	for i := 1; i <= tbl.Len(); i++ {
		if L.Equal(tbl.RawGetInt(i), v) {
			L.Push(lua.LTrue)
			return 1
		}
	}
	L.Push(lua.LFalse)
	return 1
}

// luaUnion returns the elements of a followed by the elements of b not already present.
func luaUnion(L *lua.LState) int {
	a := L.CheckTable(1)
	b := L.CheckTable(2)
	out := L.NewTable()
	seen := make(map[lua.LValue]bool)
	for _, tbl := range []*lua.LTable{a, b} {
		for i := 1; i <= tbl.Len(); i++ {
			v := tbl.RawGetInt(i)
			if seen[v] {
				continue
			}
			seen[v] = true
			out.Append(v)
		}
	}
	L.Push(out)
	return 1
}
