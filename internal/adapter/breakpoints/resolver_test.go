package breakpoints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunadap/lunadap/internal/adapter/runtime"
)

func TestConditionalBreakpointNeverFires(t *testing.T) {
	tables := NewTables()
	tables.SetLineBreakpoints("prog.lua", []LineBreakpoint{{Line: 10, Condition: "x > 100"}})
	r := NewResolver(tables)

	frame := &fakeFrame{source: "prog.lua", line: 10, locals: map[string]any{"x": 5}}
	decision := r.OnLine(frame, 1)

	assert.Equal(t, runtime.ActionContinue, decision.Action)
}

func TestHitConditionEveryThird(t *testing.T) {
	tables := NewTables()
	tables.SetLineBreakpoints("prog.lua", []LineBreakpoint{{Line: 7, HitCondition: "% 3"}})
	r := NewResolver(tables)

	var stops []int
	for i := 1; i <= 7; i++ {
		frame := &fakeFrame{source: "prog.lua", line: 7}
		decision := r.OnLine(frame, 1)
		if decision.Action == runtime.ActionStop {
			stops = append(stops, i)
		}
	}

	assert.Equal(t, []int{3, 6}, stops)
}

func TestLogPointEmitsNoStop(t *testing.T) {
	tables := NewTables()
	tables.SetLineBreakpoints("prog.lua", []LineBreakpoint{{Line: 4, LogMessage: "x={x}, y={y}"}})
	r := NewResolver(tables)

	frame := &fakeFrame{source: "prog.lua", line: 4, locals: map[string]any{"x": 10, "y": 20}}
	decision := r.OnLine(frame, 1)

	require.Equal(t, runtime.ActionLog, decision.Action)
	assert.Equal(t, "x=10, y=20", decision.LogText)
}

func TestDataBreakpointFiresOnChange(t *testing.T) {
	tables := NewTables()
	tables.SetDataBreakpoints([]DataBreakpoint{{DataID: "frame:1:var:counter", VarName: "counter"}})
	r := NewResolver(tables)

	frame1 := &fakeFrame{source: "prog.lua", line: 1, locals: map[string]any{"counter": 0}}
	decision := r.OnLine(frame1, 1)
	assert.Equal(t, runtime.ActionContinue, decision.Action)

	frame2 := &fakeFrame{source: "prog.lua", line: 2, locals: map[string]any{"counter": 1}}
	decision = r.OnLine(frame2, 1)
	assert.Equal(t, runtime.ActionStop, decision.Action)
	assert.Equal(t, runtime.ReasonDataBreakpoint, decision.Reason)
}

func TestSteppingFlagConsumedOnce(t *testing.T) {
	tables := NewTables()
	r := NewResolver(tables)
	r.ArmStepping(1)

	frame := &fakeFrame{source: "prog.lua", line: 1}
	decision := r.OnLine(frame, 1)
	assert.Equal(t, runtime.ActionStop, decision.Action)
	assert.Equal(t, runtime.ReasonStep, decision.Reason)

	decision = r.OnLine(frame, 1)
	assert.Equal(t, runtime.ActionContinue, decision.Action)
}

func TestFunctionBreakpointCandidateNames(t *testing.T) {
	tables := NewTables()
	tables.SetFunctionBreakpoints([]FunctionBreakpoint{{Name: "Account.withdraw"}})
	r := NewResolver(tables)

	frame := &fakeFrame{funcName: "withdraw", receiver: "Account"}
	decision := r.OnCall(frame, "bank")
	assert.Equal(t, runtime.ActionStop, decision.Action)
}
