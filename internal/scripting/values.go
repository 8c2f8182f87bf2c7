package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/cory-johannsen/demonlord/internal/game/stats"
)

// ToLua converts a statistic value into a Lua value. Arrays become 1-indexed tables and an
// unset value becomes nil.
func ToLua(L *lua.LState, v stats.Value) lua.LValue {
	switch v.Kind {
	case stats.KindNumber:
		return lua.LNumber(v.Number)
	case stats.KindBoolean:
		return lua.LBool(v.Bool)
	case stats.KindString:
		return lua.LString(v.Str)
	case stats.KindArray:
		tbl := L.NewTable()
		for _, it := range v.Items {
			tbl.Append(ToLua(L, it))
		}
		return tbl
	default:
		return lua.LNil
	}
}

// FromLua converts a Lua return value into a statistic value. Tables are read as arrays in
// index order.
//
// Postcondition: Returns an error for nil, functions, and other non-data values.
func FromLua(lv lua.LValue) (stats.Value, error) {
	switch v := lv.(type) {
	case lua.LNumber:
		return stats.Number(float64(v)), nil
	case lua.LBool:
		return stats.Bool(bool(v)), nil
	case lua.LString:
		return stats.String(string(v)), nil
	case *lua.LTable:
		items := make([]stats.Value, 0, v.Len())
		for i := 1; i <= v.Len(); i++ {
			it, err := FromLua(v.RawGetInt(i))
			if err != nil {
				return stats.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			items = append(items, it)
		}
		return stats.Array(items...), nil
	default:
		return stats.Value{}, fmt.Errorf("unsupported Lua value of type %s", lv.Type())
	}
}
