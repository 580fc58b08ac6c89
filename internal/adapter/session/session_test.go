package session

import (
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunadap/lunadap/internal/adapter/backend"
	"github.com/lunadap/lunadap/internal/adapter/runtime"
)

// fakeComposite is a minimal runtime.Composite for nested-variable tests.
type fakeComposite struct {
	fields map[string]any
}

func (c *fakeComposite) Fields() map[string]any { return c.fields }

// fakeBackend is a scripted backend.Backend double, standing in for both
// the in-process and external concrete implementations.
type fakeBackend struct {
	frames   []backend.Frame
	locals   map[string]any
	globals  map[string]any
	setCall  func(handle any, name string, value any) (string, error)
	evalCall func(handle any, expr string) (any, error)
}

func (b *fakeBackend) Start(sink backend.EventSink, program string, args []string, stopOnEntry bool) error {
	return nil
}

func (b *fakeBackend) Resume(threadID int64, mode runtime.StepMode) error { return nil }

func (b *fakeBackend) Threads() []runtime.ThreadInfo {
	return []runtime.ThreadInfo{{ID: 1, Name: "main"}}
}

func (b *fakeBackend) StackTrace(threadID int64) ([]backend.Frame, error) {
	return b.frames, nil
}

func (b *fakeBackend) Scopes(handle any) (backend.Variables, backend.Variables, error) {
	return backend.Variables{Live: b.locals}, backend.Variables{Live: b.globals}, nil
}

func (b *fakeBackend) Evaluate(handle any, expr string) (any, error) {
	if b.evalCall != nil {
		return b.evalCall(handle, expr)
	}
	return expr, nil
}

func (b *fakeBackend) SetVariable(handle any, name string, value any) (string, error) {
	if b.setCall != nil {
		return b.setCall(handle, name, value)
	}
	return "", nil
}

func (b *fakeBackend) ExceptionInfo(threadID int64) (*runtime.ExceptionInfo, error) { return nil, nil }

func (b *fakeBackend) Terminate() error { return nil }

var _ backend.Backend = (*fakeBackend)(nil)

// stoppingBackend emits one StopEvent shortly after Start, on its own
// goroutine, the way the in-process and external backends both do.
type stoppingBackend struct {
	fakeBackend
	delay time.Duration
}

func (b *stoppingBackend) Start(sink backend.EventSink, program string, args []string, stopOnEntry bool) error {
	if stopOnEntry {
		go func() {
			time.Sleep(b.delay)
			sink.EmitStopped(runtime.StopEvent{ThreadID: 1, ThreadName: "main", Reason: runtime.ReasonEntry})
		}()
	}
	return nil
}

// neverStopsBackend exits immediately without ever emitting a stop.
type neverStopsBackend struct {
	fakeBackend
}

func (b *neverStopsBackend) Start(sink backend.EventSink, program string, args []string, stopOnEntry bool) error {
	go sink.EmitExited(runtime.ExitInfo{ExitCode: 0})
	return nil
}

func TestNewSessionStartsIdle(t *testing.T) {
	s := New()
	assert.Equal(t, StateIdle, s.State())
	assert.NotEmpty(t, s.ID)
}

func TestInitializeRequiresConnectedState(t *testing.T) {
	s := New()
	_, err := s.Initialize()
	require.Error(t, err)

	s.mu.Lock()
	s.setState(StateConnected)
	s.mu.Unlock()

	caps, err := s.Initialize()
	require.NoError(t, err)
	assert.True(t, caps.SupportsSetVariable)
	assert.Equal(t, StateInitialized, s.State())
}

func TestLaunchAndConfigurationDoneReachesRunning(t *testing.T) {
	s := New()
	s.mu.Lock()
	s.setState(StateInitialized)
	s.mu.Unlock()

	b := &fakeBackend{}
	require.NoError(t, s.Launch(b, "prog.lua", nil, false, false))
	assert.Equal(t, StateConfiguring, s.State())

	require.NoError(t, s.ConfigurationDone())
	assert.Equal(t, StateRunning, s.State())

	select {
	case msg := <-s.Events():
		ev, ok := msg.(*dap.ProcessEvent)
		require.True(t, ok)
		assert.Equal(t, "prog.lua", ev.Body.Name)
	default:
		t.Fatal("expected a queued process event")
	}
}

func TestEmitStoppedTransitionsToStoppedAndEnqueuesEvent(t *testing.T) {
	s := New()
	s.mu.Lock()
	s.setState(StateRunning)
	s.mu.Unlock()

	s.EmitStopped(runtime.StopEvent{ThreadID: 1, ThreadName: "main", Reason: runtime.ReasonBreakpoint})
	assert.Equal(t, StateStopped, s.State())

	msg := <-s.Events()
	ev, ok := msg.(*dap.StoppedEvent)
	require.True(t, ok)
	assert.Equal(t, "breakpoint", ev.Body.Reason)
	assert.Equal(t, 1, ev.Body.ThreadId)
	assert.True(t, ev.Body.AllThreadsStopped)
}

func TestResumeInvalidatesPreviouslyMintedFrameIDs(t *testing.T) {
	s := New()
	s.mu.Lock()
	s.setState(StateStopped)
	s.backend = &fakeBackend{}
	id := s.newFrame(1, backend.Frame{Source: "a.lua", Line: 1})
	s.mu.Unlock()

	_, ok := s.lookupFrame(id)
	require.True(t, ok)

	require.NoError(t, s.Continue(1))

	_, ok = s.lookupFrame(id)
	assert.False(t, ok, "frame id minted before resume must be invalid afterward")
}

func TestStackTraceScopesAndVariablesRoundTrip(t *testing.T) {
	s := New()
	b := &fakeBackend{
		frames: []backend.Frame{{Source: "a.lua", Line: 5, Name: "main", Handle: "h0"}},
		locals: map[string]any{
			"x":     float64(1),
			"table": &fakeComposite{fields: map[string]any{"y": float64(2)}},
		},
		globals: map[string]any{},
	}
	s.mu.Lock()
	s.setState(StateStopped)
	s.backend = b
	s.mu.Unlock()

	frames, total, err := s.StackTrace(1, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, frames, 1)

	locals, globals, err := s.Scopes(frames[0].Id)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, locals.VariablesReference, variableRefStart)
	assert.GreaterOrEqual(t, globals.VariablesReference, variableRefStart)

	vars, err := s.Variables(locals.VariablesReference, 0, 0)
	require.NoError(t, err)
	require.Len(t, vars, 2)

	var tableVar *dap.Variable
	for i := range vars {
		if vars[i].Name == "table" {
			tableVar = &vars[i]
		}
	}
	require.NotNil(t, tableVar)
	require.NotZero(t, tableVar.VariablesReference)

	nested, err := s.Variables(tableVar.VariablesReference, 0, 0)
	require.NoError(t, err)
	require.Len(t, nested, 1)
	assert.Equal(t, "y", nested[0].Name)
}

func TestVariablesRejectsUnknownReference(t *testing.T) {
	s := New()
	_, err := s.Variables(1234, 0, 0)
	assert.Error(t, err)
}

func TestSetVariableParsesLiteralBeforeEvaluating(t *testing.T) {
	s := New()
	var gotValue any
	b := &fakeBackend{
		frames: []backend.Frame{{Source: "a.lua", Line: 5, Handle: "h0"}},
		setCall: func(handle any, name string, value any) (string, error) {
			gotValue = value
			return "42", nil
		},
	}
	s.mu.Lock()
	s.setState(StateStopped)
	s.backend = b
	frameID := s.newFrame(1, b.frames[0])
	s.mu.Unlock()

	locals, _, err := s.Scopes(frameID)
	require.NoError(t, err)

	out, err := s.SetVariable(locals.VariablesReference, "x", "42")
	require.NoError(t, err)
	assert.Equal(t, "42", out.Value)
	assert.Equal(t, int64(42), gotValue)
}

func TestLaunchWithStopOnEntryAwaitsFirstStoppedBeforeReturning(t *testing.T) {
	s := New()
	s.mu.Lock()
	s.setState(StateInitialized)
	s.mu.Unlock()

	b := &stoppingBackend{delay: 20 * time.Millisecond}
	require.NoError(t, s.Launch(b, "prog.lua", nil, true, false))
	assert.Equal(t, StateStopped, s.State(), "Launch must not return before the first stopped event lands")

	msg := <-s.Events()
	_, ok := msg.(*dap.ProcessEvent)
	require.True(t, ok, "process event must be queued ahead of stopped")

	msg = <-s.Events()
	stopped, ok := msg.(*dap.StoppedEvent)
	require.True(t, ok, "stopped event must already be queued once Launch returns")
	assert.Equal(t, "entry", stopped.Body.Reason)
}

func TestLaunchWithStopOnEntryUnblocksOnEarlyExit(t *testing.T) {
	s := New()
	s.mu.Lock()
	s.setState(StateInitialized)
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.Launch(&neverStopsBackend{}, "prog.lua", nil, true, false) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Launch never returned after the debuggee exited without stopping")
	}
}

func TestEnqueueDropsOnceQueueIsSaturated(t *testing.T) {
	s := New()
	for i := 0; i < cap(s.out); i++ {
		s.Enqueue(&dap.OutputEvent{Event: dap.Event{Event: "output"}})
	}

	before := s.overflow.Stats().Dropped
	s.Enqueue(&dap.OutputEvent{Event: dap.Event{Event: "output"}})
	assert.Greater(t, s.overflow.Stats().Dropped, before, "Enqueue must drop and count once the queue is full rather than block forever")
}

func TestDataBreakpointInfoFormatsDataID(t *testing.T) {
	s := New()
	s.mu.Lock()
	s.setState(StateStopped)
	s.backend = &fakeBackend{}
	frameID := s.newFrame(1, backend.Frame{Source: "a.lua", Line: 1})
	s.mu.Unlock()

	dataID, accessTypes, canPersist := s.DataBreakpointInfo("x", frameID)
	assert.Equal(t, "frame:1:var:x", dataID)
	assert.Contains(t, accessTypes, "write")
	assert.False(t, canPersist)
}
