package breakpoints

import (
	"fmt"

	"github.com/lunadap/lunadap/internal/adapter/runtime"
)

// fakeFrame is a minimal runtime.Frame double used across this package's
// tests; it evaluates expressions by simple lookup against locals/globals
// rather than a real interpreter, which is all the resolver needs to
// exercise its own control flow.
type fakeFrame struct {
	source   string
	line     int
	funcName string
	receiver string
	locals   map[string]any
	globals  map[string]any
	parent   runtime.Frame
}

func (f *fakeFrame) Source() string   { return f.source }
func (f *fakeFrame) Line() int        { return f.line }
func (f *fakeFrame) FuncName() string { return f.funcName }
func (f *fakeFrame) Receiver() string { return f.receiver }
func (f *fakeFrame) Parent() runtime.Frame { return f.parent }

func (f *fakeFrame) Locals() map[string]any {
	out := make(map[string]any, len(f.locals))
	for k, v := range f.locals {
		out[k] = v
	}
	return out
}

func (f *fakeFrame) Globals() map[string]any {
	out := make(map[string]any, len(f.globals))
	for k, v := range f.globals {
		out[k] = v
	}
	return out
}

func (f *fakeFrame) SetLocal(name string, value any) error {
	if f.locals == nil {
		f.locals = make(map[string]any)
	}
	f.locals[name] = value
	return nil
}

// Evaluate supports bare identifier lookups and the handful of comparison
// expressions the tests use ("x > 100" style), enough to drive the
// resolver's condition-evaluation branch without a real interpreter.
func (f *fakeFrame) Evaluate(expr string) (any, error) {
	if v, ok := f.locals[expr]; ok {
		return v, nil
	}
	if v, ok := f.globals[expr]; ok {
		return v, nil
	}
	var name, op string
	var rhs float64
	if n, _ := fmt.Sscanf(expr, "%s %s %f", &name, &op, &rhs); n == 3 {
		lv, ok := f.locals[name]
		if !ok {
			return nil, fmt.Errorf("undefined variable %q", name)
		}
		lhs, ok := toFloat(lv)
		if !ok {
			return nil, fmt.Errorf("non-numeric variable %q", name)
		}
		switch op {
		case ">":
			return lhs > rhs, nil
		case "<":
			return lhs < rhs, nil
		case ">=":
			return lhs >= rhs, nil
		case "<=":
			return lhs <= rhs, nil
		case "==":
			return lhs == rhs, nil
		}
	}
	return nil, fmt.Errorf("cannot evaluate %q", expr)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
