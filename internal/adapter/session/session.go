// Package session implements the session kernel (C7): it owns one debuggee
// backend, the thread/frame/variable-reference tables, the breakpoint
// tables, and the single-writer outbound event queue, and drives the
// lifecycle state machine of spec §4.7. Grounded on
// docker-buildx/dap/server.go's errgroup-driven read/write loops and
// docker-buildx/dap/variables.go's variableReferences allocator, adapted
// from buildkit solve steps to runtime.Frame-backed stack frames.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-dap"
	"github.com/google/uuid"

	"github.com/lunadap/lunadap/internal/adapter/backend"
	"github.com/lunadap/lunadap/internal/adapter/breakpoints"
	"github.com/lunadap/lunadap/internal/adapter/protocol"
	"github.com/lunadap/lunadap/internal/adapter/runtime"
	"github.com/lunadap/lunadap/internal/logging"
	"github.com/lunadap/lunadap/internal/workers"
)

// enqueueBlockDuration bounds how long Enqueue blocks a producer goroutine
// (a tracer callback, the IPC reader) before treating the outbound queue as
// saturated (spec §9's mpsc design note: "block the producer briefly, then
// drop with a telemetry event").
const enqueueBlockDuration = 50 * time.Millisecond

// State is one node of the lifecycle state machine (spec §4.7).
type State int

const (
	StateIdle State = iota
	StateConnected
	StateInitialized
	StateConfiguring
	StateRunning
	StateStopped
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnected:
		return "Connected"
	case StateInitialized:
		return "Initialized"
	case StateConfiguring:
		return "Configuring"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// variableRefStart is where the allocator begins (spec §4.7): "starts at
// 1000" so small values stay free for frame ids and other internal uses.
const variableRefStart = 1000

// frameEntry is one arena slot for a live or reconstructed stack frame.
// generation pins the entry to the stop that minted it; any resume bumps
// Session.generation, and a lookup against a stale generation fails
// explicitly rather than returning dangling state (spec §3's "weak
// reference... becomes invalid and lookups fail explicitly", generalized
// via the arena+generation-index design note of spec §9).
type frameEntry struct {
	generation int
	threadID   int64
	handle     any
	source     string
	line       int
	name       string
}

// Session owns one accepted client connection end to end: exactly one
// Backend, one set of breakpoint tables, and the thread/frame/variable
// tables spec §3 describes. All table mutation funnels through s.mu, the
// single reentrant-in-spirit lock spec §5 calls for (methods here never
// call back into another exported Session method while holding it).
type Session struct {
	ID string

	mu    sync.Mutex
	state State

	backend backend.Backend
	tables  *breakpoints.Tables
	resolver *breakpoints.Resolver

	threads map[int64]*threadState

	generation  int
	nextFrameID int
	frames      map[int]*frameEntry

	nextVarRef int
	varRefs    map[int]*varRefEntry

	lastException map[int64]*runtime.ExceptionInfo

	noDebug bool
	module  string
	sources map[string]bool

	seq protocol.SeqAssigner
	out chan dap.Message

	// firstStop is closed exactly once, by whichever of EmitStopped or
	// EmitExited fires first after a launch/attach; Launch blocks on it
	// when armed with stopOnEntry (spec §4.8: "emit process event; if
	// stopOnEntry, await first stopped").
	firstStop     chan struct{}
	firstStopOnce sync.Once

	// overflow counts events Enqueue had to drop; logger reports them.
	// Both default to working no-ops (a running pool, a discarding logger)
	// so a Session is usable without SetLogger.
	overflow *workers.Pool
	logger   *log.Logger
}

type threadState struct {
	id        int64
	name      string
	isStopped bool
}

// New constructs a Session in State Idle, before a client has even
// connected. The caller transitions to Connected once the transport
// accepts.
func New() *Session {
	tables := breakpoints.NewTables()
	return &Session{
		ID:            uuid.NewString(),
		state:         StateIdle,
		tables:        tables,
		resolver:      breakpoints.NewResolver(tables),
		threads:       make(map[int64]*threadState),
		frames:        make(map[int]*frameEntry),
		varRefs:       make(map[int]*varRefEntry),
		nextVarRef:    variableRefStart,
		lastException: make(map[int64]*runtime.ExceptionInfo),
		sources:       make(map[string]bool),
		out:           make(chan dap.Message, 64),
		firstStop:     make(chan struct{}),
		overflow:      workers.New(1, 0),
		logger:        logging.Discard(),
	}
}

// SetLogger points diagnostic output (today, just overflow drops) at l
// instead of the default discarding logger.
func (s *Session) SetLogger(l *log.Logger) {
	s.logger = l
}

// Resolver returns the breakpoint resolver this session's tables feed, for
// backend construction (the in-process backend's tracer evaluates stop
// conditions against it directly rather than through the session).
func (s *Session) Resolver() *breakpoints.Resolver {
	return s.resolver
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.state = st
}

// Events returns the outbound queue the session's writer drains. Messages
// enqueued here have their Seq assigned at dequeue time by protocol.Assign,
// matching spec §4.7 ("sequence numbers are assigned at dequeue time").
func (s *Session) Events() <-chan dap.Message {
	return s.out
}

// Enqueue submits msg to the single-writer outbound queue. Safe to call
// from any goroutine: this is the thread-safe handoff spec §4.7 and §9's
// "bounded mpsc channel" design note call for between tracer callbacks, the
// IPC reader, and the session's own request handlers. A full queue never
// blocks its caller indefinitely: Enqueue blocks briefly, then drops msg
// and records the drop, so a saturated queue cannot wedge a tracer
// callback running on the debuggee's own goroutine (spec §9: "block the
// producer briefly, then drop with a telemetry event").
func (s *Session) Enqueue(msg dap.Message) {
	select {
	case s.out <- msg:
		return
	default:
	}

	timer := time.NewTimer(enqueueBlockDuration)
	defer timer.Stop()
	select {
	case s.out <- msg:
	case <-timer.C:
		s.overflow.DropOverflow()
		s.logger.Warn("dropping outbound event, queue saturated", "type", fmt.Sprintf("%T", msg))
	}
}

// DequeueAndAssignSeq is called by the transport writer loop exactly once
// per outbound message; it exists as a method (rather than inlining
// protocol.Assign at every call site) so the single place seq numbers are
// minted is visible from the Session's own API surface.
func (s *Session) DequeueAndAssignSeq(msg dap.Message) {
	protocol.Assign(&s.seq, msg)
}

// newFrame mints a session-unique, strictly increasing frame id for one
// backend.Frame observed at the current generation (spec §3 invariant).
func (s *Session) newFrame(threadID int64, bf backend.Frame) int {
	s.nextFrameID++
	id := s.nextFrameID
	s.frames[id] = &frameEntry{
		generation: s.generation,
		threadID:   threadID,
		handle:     bf.Handle,
		source:     bf.Source,
		line:       bf.Line,
		name:       bf.Name,
	}
	if bf.Source != "" {
		s.sources[bf.Source] = true
	}
	return id
}

// lookupFrame returns the entry for id if it is still valid at the current
// generation, or ok=false if it was invalidated by a resume since (spec §8
// invariant 4) or never existed.
func (s *Session) lookupFrame(id int) (*frameEntry, bool) {
	e, ok := s.frames[id]
	if !ok || e.generation != s.generation {
		return nil, false
	}
	return e, true
}

// invalidateFrames bumps the generation counter, statically invalidating
// every frame id minted since the last stop without needing to walk or
// clear the map (spec §9 "arena+generation-index").
func (s *Session) invalidateFrames() {
	s.generation++
}

// --- backend.EventSink ---

// EmitStopped forwards a backend stop event as a DAP `stopped` event and
// records the stopping thread, matching spec §4.5's "signals the session
// via a thread-safe channel".
func (s *Session) EmitStopped(ev runtime.StopEvent) {
	s.mu.Lock()
	th, ok := s.threads[ev.ThreadID]
	if !ok {
		th = &threadState{id: ev.ThreadID, name: ev.ThreadName}
		s.threads[ev.ThreadID] = th
	}
	th.isStopped = true
	if ev.ThreadName != "" {
		th.name = ev.ThreadName
	}
	if ev.Reason == runtime.ReasonException {
		s.lastException[ev.ThreadID] = &runtime.ExceptionInfo{
			Description: ev.Description,
			BreakMode:   "always",
			Message:     ev.Description,
		}
	}
	s.setState(StateStopped)
	s.mu.Unlock()

	s.Enqueue(&dap.StoppedEvent{
		Event: dap.Event{Event: "stopped"},
		Body: dap.StoppedEventBody{
			Reason:            string(ev.Reason),
			Description:       ev.Description,
			ThreadId:          int(ev.ThreadID),
			AllThreadsStopped: true,
		},
	})

	// Signaled only after the stopped event is already queued, so a
	// Launch woken by this can never observe "first stop happened" ahead
	// of the event a client would use to confirm it.
	s.firstStopOnce.Do(func() { close(s.firstStop) })
}

// EmitThread forwards a debuggee thread-start/thread-exit observation.
func (s *Session) EmitThread(id int64, name string, started bool) {
	s.mu.Lock()
	if started {
		if _, ok := s.threads[id]; !ok {
			s.threads[id] = &threadState{id: id, name: name}
		}
	} else {
		delete(s.threads, id)
	}
	s.mu.Unlock()

	reason := "exited"
	if started {
		reason = "started"
	}
	s.Enqueue(&dap.ThreadEvent{
		Event: dap.Event{Event: "thread"},
		Body:  dap.ThreadEventBody{Reason: reason, ThreadId: int(id)},
	})
}

// EmitExited forwards the debuggee's termination as `exited`/`terminated`.
func (s *Session) EmitExited(info runtime.ExitInfo) {
	s.mu.Lock()
	s.setState(StateShutdown)
	s.mu.Unlock()

	// A debuggee that exits before ever stopping (a bad program path, a
	// crash on load) must not leave a stopOnEntry launch blocked forever.
	s.firstStopOnce.Do(func() { close(s.firstStop) })

	s.Enqueue(&dap.ExitedEvent{
		Event: dap.Event{Event: "exited"},
		Body:  dap.ExitedEventBody{ExitCode: info.ExitCode},
	})
	s.Enqueue(&dap.TerminatedEvent{Event: dap.Event{Event: "terminated"}})
}

// EmitOutput forwards a category-tagged line of debuggee output.
func (s *Session) EmitOutput(category, text string) {
	s.Enqueue(&dap.OutputEvent{
		Event: dap.Event{Event: "output"},
		Body:  dap.OutputEventBody{Category: category, Output: text},
	})
}

var _ backend.EventSink = (*Session)(nil)

func requireState(s *Session, allowed ...State) error {
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("command not valid in state %s", s.state)
}
