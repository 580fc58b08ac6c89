package luart

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/lunadap/lunadap/internal/adapter/runtime"
)

// Frame implements runtime.Frame over a gopher-lua call frame captured at
// the moment the owning thread stopped. All access to L/dbg is marshaled
// through the tracer's pause gate, since the goroutine that may safely
// touch them is the one currently blocked in the line hook, not whichever
// goroutine (the session kernel's) is calling these methods.
type Frame struct {
	tracer *Tracer
	L      *lua.LState
	dbg    *lua.Debug
	level  int
}

func (f *Frame) Source() string {
	if f.dbg == nil {
		return ""
	}
	// gopher-lua reports file chunks with Lua's "@path" chunkname
	// convention; strip the marker so Source matches the plain path the
	// session kernel used to set breakpoints.
	if len(f.dbg.Source) > 0 && f.dbg.Source[0] == '@' {
		return f.dbg.Source[1:]
	}
	return f.dbg.Source
}

func (f *Frame) Line() int {
	if f.dbg == nil {
		return 0
	}
	return f.dbg.CurrentLine
}

func (f *Frame) FuncName() string {
	if f.dbg == nil {
		return ""
	}
	return f.dbg.Name
}

// Receiver derives the class-like name of a "self" first local; gopher-lua
// tables have no built-in class name, so this reports the string stored in
// `self.__class_name`, or "" when the first local is not a `self` table
// carrying that field. That is enough for the candidate-name precedence
// in spec §4.4 to include a qualified match for table-based "methods".
func (f *Frame) Receiver() string {
	val, err := f.tracer.sendPauseRequest(func(L *lua.LState, dbg *lua.Debug) (any, error) {
		name, lv := L.GetLocal(dbg, 1)
		if name != "self" || lv == lua.LNil {
			return "", nil
		}
		if tbl, ok := lv.(*lua.LTable); ok {
			if clsName := tbl.RawGetString("__class_name"); clsName != lua.LNil {
				return clsName.String(), nil
			}
		}
		return "", nil
	})
	if err != nil {
		return ""
	}
	s, _ := val.(string)
	return s
}

func (f *Frame) Locals() map[string]any {
	val, err := f.tracer.sendPauseRequest(func(L *lua.LState, dbg *lua.Debug) (any, error) {
		out := make(map[string]any)
		for i := 1; ; i++ {
			name, lv := L.GetLocal(dbg, i)
			if name == "" {
				break
			}
			out[name] = fromLua(f.tracer, lv)
		}
		return out, nil
	})
	if err != nil {
		return map[string]any{}
	}
	m, _ := val.(map[string]any)
	return m
}

func (f *Frame) Globals() map[string]any {
	val, err := f.tracer.sendPauseRequest(func(L *lua.LState, dbg *lua.Debug) (any, error) {
		out := make(map[string]any)
		globals := L.Get(lua.GlobalsIndex)
		tbl, ok := globals.(*lua.LTable)
		if !ok {
			return out, nil
		}
		tbl.ForEach(func(k, v lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				out[string(ks)] = fromLua(f.tracer, v)
			}
		})
		return out, nil
	})
	if err != nil {
		return map[string]any{}
	}
	m, _ := val.(map[string]any)
	return m
}

func (f *Frame) SetLocal(name string, value any) error {
	_, err := f.tracer.sendPauseRequest(func(L *lua.LState, dbg *lua.Debug) (any, error) {
		for i := 1; ; i++ {
			n, _ := L.GetLocal(dbg, i)
			if n == "" {
				return nil, fmt.Errorf("no local named %q in this frame", name)
			}
			if n == name {
				L.SetLocal(dbg, i, toLua(L, value))
				return nil, nil
			}
		}
	})
	return err
}

func (f *Frame) Evaluate(expr string) (any, error) {
	return f.tracer.sendPauseRequest(func(L *lua.LState, dbg *lua.Debug) (any, error) {
		chunk, err := L.LoadString("return " + expr)
		if err != nil {
			return nil, err
		}
		// A loaded chunk sees only globals; give it an environment that
		// resolves the frame's locals first and falls back to globals.
		env := L.NewTable()
		for i := 1; ; i++ {
			name, lv := L.GetLocal(dbg, i)
			if name == "" {
				break
			}
			env.RawSetString(name, lv)
		}
		mt := L.NewTable()
		mt.RawSetString("__index", L.Get(lua.GlobalsIndex))
		L.SetMetatable(env, mt)
		chunk.Env = env
		L.Push(chunk)
		if err := L.PCall(0, 1, nil); err != nil {
			return nil, err
		}
		result := L.Get(-1)
		L.Pop(1)
		return fromLua(f.tracer, result), nil
	})
}

// Parent walks one level further up the Lua call stack, returning nil once
// there is no caller left to report (gopher-lua's GetStack returns false
// past the outermost activation record).
func (f *Frame) Parent() runtime.Frame {
	val, err := f.tracer.sendPauseRequest(func(L *lua.LState, dbg *lua.Debug) (any, error) {
		parentDbg, ok := L.GetStack(f.level + 1)
		if !ok {
			return nil, nil
		}
		if _, err := L.GetInfo("nSl", parentDbg, lua.LNil); err != nil {
			return nil, err
		}
		return parentDbg, nil
	})
	if err != nil || val == nil {
		return nil
	}
	parentDbg, ok := val.(*lua.Debug)
	if !ok {
		return nil
	}
	return &Frame{tracer: f.tracer, L: f.L, dbg: parentDbg, level: f.level + 1}
}

// StackLevel exposes the gopher-lua call-stack depth this frame was
// captured at, used by the in-process backend to walk the full stack.
func (f *Frame) StackLevel() int {
	return f.level
}

func fromLua(tracer *Tracer, v lua.LValue) any {
	switch lv := v.(type) {
	case lua.LBool:
		return bool(lv)
	case lua.LNumber:
		return float64(lv)
	case lua.LString:
		return string(lv)
	case *lua.LTable:
		// Wrapped rather than flattened here: the session's variable
		// machinery expands a runtime.Composite into nested entries only
		// when the client actually requests that variable reference.
		return &luaTable{tracer: tracer, t: lv}
	case *lua.LFunction:
		return "<function>"
	default:
		if v == lua.LNil {
			return nil
		}
		return v.String()
	}
}

// luaTable implements runtime.Composite over a live gopher-lua table,
// letting the session kernel lazily expand nested variables without
// importing yuin/gopher-lua itself.
type luaTable struct {
	tracer *Tracer
	t      *lua.LTable
}

func (w *luaTable) Fields() map[string]any {
	val, err := w.tracer.sendPauseRequest(func(L *lua.LState, dbg *lua.Debug) (any, error) {
		out := make(map[string]any)
		w.t.ForEach(func(k, v lua.LValue) {
			out[k.String()] = fromLua(w.tracer, v)
		})
		return out, nil
	})
	if err != nil {
		return map[string]any{}
	}
	m, _ := val.(map[string]any)
	return m
}

func toLua(L *lua.LState, value any) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}
