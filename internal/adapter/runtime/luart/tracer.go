package luart

import (
	"fmt"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/lunadap/lunadap/internal/adapter/runtime"
)

// mainThreadID is the stable thread id reported to the session kernel.
// gopher-lua's LState has no concept of OS threads; the debuggee is a
// single Lua call stack, so there is exactly one thread for the lifetime
// of a program (per DESIGN.md's "pause" open-question resolution).
const mainThreadID int64 = 1

// pauseRequest is one piece of work the session kernel wants run against
// the paused frame: reading locals, evaluating an expression, assigning a
// variable. It must run on the goroutine currently blocked inside the
// line hook, since that goroutine alone may touch the LState.
type pauseRequest struct {
	fn     func(L *lua.LState, dbg *lua.Debug) (any, error)
	result chan pauseResult
}

type pauseResult struct {
	value any
	err   error
}

// threadPauseState is the gate one stopped thread blocks on.
type threadPauseState struct {
	resume chan runtime.StepMode
	work   chan *pauseRequest
}

// Tracer implements runtime.Tracer against one gopher-lua interpreter.
type Tracer struct {
	exec     *executor
	resolver runtime.Resolver

	stops chan runtime.StopEvent
	exit  chan runtime.ExitInfo

	mu    sync.Mutex
	gate  *threadPauseState

	module string

	started atomic.Bool
}

// NewTracer builds a Tracer that consults resolver.OnLine on every line
// and call hook event. module is stored on the Tracer but not read: the
// hook never runs a function-breakpoint check, so function breakpoints do
// not stop a program run by this tracer.
func NewTracer(resolver runtime.Resolver, module string) *Tracer {
	return &Tracer{
		exec:     newExecutor(),
		resolver: resolver,
		stops:    make(chan runtime.StopEvent, 16),
		exit:     make(chan runtime.ExitInfo, 1),
		module:   module,
	}
}

// Start installs the line hook and runs program to completion on a
// dedicated goroutine, reporting stop events as they occur. Start returns
// as soon as the goroutine is launched; callers read stops/done to track
// progress.
func (t *Tracer) Start(program string, stopOnEntry bool) (<-chan runtime.StopEvent, <-chan runtime.ExitInfo, error) {
	if !t.started.CompareAndSwap(false, true) {
		return nil, nil, fmt.Errorf("tracer already started")
	}

	if stopOnEntry {
		if armer, ok := t.resolver.(stepArmer); ok {
			armer.ArmStopOnEntry(mainThreadID)
		}
	}

	go t.exec.run()

	go func() {
		err := t.exec.execute(func(L *lua.LState) error {
			L.SetHook(t.onLine, lua.MaskLine|lua.MaskCall, 0)
			return L.DoFile(program)
		})
		exitCode := 0
		if err != nil {
			exitCode = 1
		}
		t.exit <- runtime.ExitInfo{ExitCode: exitCode, Err: err}
		close(t.exit)
		t.exec.close()
	}()

	return t.stops, t.exit, nil
}

// stepArmer is implemented by *breakpoints.Resolver; kept as a narrow
// local interface so luart never imports the breakpoints package (that
// import would run the other way, breakpoints -> runtime, and luart sits
// beside breakpoints as a runtime.Tracer implementation, not above it).
type stepArmer interface {
	ArmStopOnEntry(threadID int64)
	ArmStepping(threadID int64)
}

// onLine is invoked by gopher-lua on the debuggee's own goroutine for
// every line (and call) executed.
func (t *Tracer) onLine(L *lua.LState, dbg *lua.Debug) {
	frame := &Frame{tracer: t, L: L, dbg: dbg}

	decision := t.resolver.OnLine(frame, mainThreadID)

	switch decision.Action {
	case runtime.ActionContinue:
		return
	case runtime.ActionLog:
		t.emitOutput(decision.LogText)
		return
	case runtime.ActionStop:
		t.pauseUntilResumed(frame, decision)
	}
}

// pauseUntilResumed blocks the debuggee's goroutine, services inspection
// requests inline (they are only ever issued while this thread is
// stopped), and returns once the session kernel resumes the thread.
func (t *Tracer) pauseUntilResumed(frame *Frame, decision runtime.Decision) {
	gate := &threadPauseState{
		resume: make(chan runtime.StepMode, 1),
		work:   make(chan *pauseRequest, 8),
	}

	t.mu.Lock()
	t.gate = gate
	t.mu.Unlock()

	t.stops <- runtime.StopEvent{
		ThreadID:    mainThreadID,
		ThreadName:  "main",
		Reason:      decision.Reason,
		Description: decision.Description,
		TopFrame:    frame,
	}

	for {
		select {
		case mode := <-gate.resume:
			if mode == runtime.StepNext || mode == runtime.StepIn || mode == runtime.StepOut {
				if armer, ok := t.resolver.(stepArmer); ok {
					armer.ArmStepping(mainThreadID)
				}
			}
			t.mu.Lock()
			t.gate = nil
			t.mu.Unlock()
			return
		case req := <-gate.work:
			value, err := req.fn(frame.L, frame.dbg)
			req.result <- pauseResult{value: value, err: err}
		}
	}
}

// emitOutput reports a log-point render as a stop-shaped event carrying no
// Reason; the in-process backend recognises Reason=="" as "this is an
// output event, not a stop" and emits a DAP `output` event instead of
// `stopped`.
func (t *Tracer) emitOutput(text string) {
	t.stops <- runtime.StopEvent{ThreadID: mainThreadID, Text: text}
}

// Resume releases the pause gate for threadID with the given stepping mode.
func (t *Tracer) Resume(threadID int64, mode runtime.StepMode) error {
	t.mu.Lock()
	gate := t.gate
	t.mu.Unlock()
	if gate == nil {
		return fmt.Errorf("thread %d is not stopped", threadID)
	}
	select {
	case gate.resume <- mode:
		return nil
	default:
		return fmt.Errorf("thread %d already has a pending resume", threadID)
	}
}

// Threads reports the single synthetic thread this tracer drives.
func (t *Tracer) Threads() []runtime.ThreadInfo {
	t.mu.Lock()
	stopped := t.gate != nil
	t.mu.Unlock()
	return []runtime.ThreadInfo{{ID: mainThreadID, Name: "main", IsStopped: stopped}}
}

// Terminate force-closes the interpreter, unblocking any paused goroutine.
func (t *Tracer) Terminate() error {
	t.mu.Lock()
	gate := t.gate
	t.mu.Unlock()
	if gate != nil {
		select {
		case gate.resume <- runtime.StepContinue:
		default:
		}
	}
	t.exec.close()
	return nil
}

// sendPauseRequest is used by Frame to marshal work onto the paused
// goroutine. Returns an error if the thread is not currently paused.
func (t *Tracer) sendPauseRequest(fn func(L *lua.LState, dbg *lua.Debug) (any, error)) (any, error) {
	t.mu.Lock()
	gate := t.gate
	t.mu.Unlock()
	if gate == nil {
		return nil, fmt.Errorf("thread is not stopped")
	}
	req := &pauseRequest{fn: fn, result: make(chan pauseResult, 1)}
	gate.work <- req
	res := <-req.result
	return res.value, res.err
}
