package inprocess

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunadap/lunadap/internal/adapter/runtime"
)

type fakeFrame struct {
	source string
	line   int
	name   string
	locals map[string]any
	parent *fakeFrame
}

func (f *fakeFrame) Source() string             { return f.source }
func (f *fakeFrame) Line() int                  { return f.line }
func (f *fakeFrame) FuncName() string           { return f.name }
func (f *fakeFrame) Receiver() string           { return "" }
func (f *fakeFrame) Locals() map[string]any     { return f.locals }
func (f *fakeFrame) Globals() map[string]any    { return map[string]any{} }
func (f *fakeFrame) SetLocal(n string, v any) error {
	f.locals[n] = v
	return nil
}
func (f *fakeFrame) Evaluate(expr string) (any, error) { return f.locals[expr], nil }
func (f *fakeFrame) Parent() runtime.Frame {
	if f.parent == nil {
		return nil
	}
	return f.parent
}

type fakeTracer struct {
	stops chan runtime.StopEvent
	exit  chan runtime.ExitInfo
}

func newFakeTracer() *fakeTracer {
	return &fakeTracer{stops: make(chan runtime.StopEvent, 4), exit: make(chan runtime.ExitInfo, 1)}
}

func (f *fakeTracer) Start(program string, stopOnEntry bool) (<-chan runtime.StopEvent, <-chan runtime.ExitInfo, error) {
	return f.stops, f.exit, nil
}
func (f *fakeTracer) Resume(threadID int64, mode runtime.StepMode) error { return nil }
func (f *fakeTracer) Threads() []runtime.ThreadInfo {
	return []runtime.ThreadInfo{{ID: 1, Name: "main"}}
}
func (f *fakeTracer) Terminate() error { return nil }

type fakeSink struct {
	stopped []runtime.StopEvent
	exited  []runtime.ExitInfo
	output  []string
}

func (s *fakeSink) EmitStopped(ev runtime.StopEvent)        { s.stopped = append(s.stopped, ev) }
func (s *fakeSink) EmitThread(id int64, name string, started bool) {}
func (s *fakeSink) EmitExited(info runtime.ExitInfo)        { s.exited = append(s.exited, info) }
func (s *fakeSink) EmitOutput(category, text string)        { s.output = append(s.output, text) }

func TestBackendForwardsStopEventAndBuildsStackTrace(t *testing.T) {
	tracer := newFakeTracer()
	b := New(tracer)
	sink := &fakeSink{}
	require.NoError(t, b.Start(sink, "prog.lua", nil, false))

	outer := &fakeFrame{source: "prog.lua", line: 1, name: "main", locals: map[string]any{}}
	top := &fakeFrame{source: "prog.lua", line: 5, name: "compute", locals: map[string]any{"x": 42}, parent: outer}
	tracer.stops <- runtime.StopEvent{ThreadID: 1, Reason: runtime.ReasonBreakpoint, TopFrame: top}

	require.Eventually(t, func() bool { return len(sink.stopped) == 1 }, time.Second, 10*time.Millisecond)

	frames, err := b.StackTrace(1)
	require.NoError(t, err)
	require.Len(t, frames, 1) // fakeFrame does not implement stackWalker, so walk stops after one level
	assert.Equal(t, 5, frames[0].Line)

	locals, _, err := b.Scopes(frames[0].Handle)
	require.NoError(t, err)
	assert.Equal(t, 42, locals.Live["x"])
}

func TestBackendForwardsOutputAndExit(t *testing.T) {
	tracer := newFakeTracer()
	b := New(tracer)
	sink := &fakeSink{}
	require.NoError(t, b.Start(sink, "prog.lua", nil, false))

	tracer.stops <- runtime.StopEvent{ThreadID: 1, Text: "hello"}
	close(tracer.stops)
	tracer.exit <- runtime.ExitInfo{ExitCode: 0}
	close(tracer.exit)

	require.Eventually(t, func() bool { return len(sink.exited) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"hello"}, sink.output)
}

func TestEvaluateRequiresStoppedFrame(t *testing.T) {
	b := New(newFakeTracer())
	_, err := b.Evaluate(nil, "x")
	assert.Error(t, err)
}
