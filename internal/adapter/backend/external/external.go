// Package external implements the external debuggee backend (C6): spawns a
// launcher child process running the same host runtime, and relays DAP-
// shaped commands and stop/thread/exit/output events over a framed IPC
// transport, correlating replies by a monotonically increasing id.
// Grounded on original_source/dapper/launcher_ipc.py's id-correlation
// scheme and internal/procmgr (adapted from the teacher's process
// supervisor) for the child process lifecycle.
package external

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/go-dap"

	"github.com/lunadap/lunadap/internal/adapter/adaperr"
	"github.com/lunadap/lunadap/internal/adapter/backend"
	"github.com/lunadap/lunadap/internal/adapter/framing"
	"github.com/lunadap/lunadap/internal/adapter/runtime"
	"github.com/lunadap/lunadap/internal/ipc"
	"github.com/lunadap/lunadap/internal/procmgr"
)

// Codec is the minimal read/write surface either framing codec satisfies,
// carrying ipc.Envelope JSON payloads inside binary or text frames.
type Codec interface {
	ReadEnvelope() (ipc.Envelope, error)
	WriteEnvelope(ipc.Envelope) error
}

// CommandTimeout bounds how long a correlated command waits for its reply
// (spec §4.6's "fixed timeout (5 seconds)"); DESIGN.md resolves the open
// question of whether this should be configurable by exposing it here
// rather than as an untouchable constant.
var CommandTimeout = 5 * time.Second

type pendingCommand struct {
	result chan ipc.Envelope
}

// Backend relays commands to, and receives events from, a spawned child
// process over Codec.
type Backend struct {
	codec   Codec
	proc    *procmgr.Process
	sink    backend.EventSink
	nextID  atomic.Int64
	pending sync.Map // int64 -> *pendingCommand

	mu      sync.Mutex
	threads map[int64]runtime.ThreadInfo
	exc     map[int64]*runtime.ExceptionInfo

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps an already-connected Codec and the procmgr.Process supervising
// the spawned launcher child.
func New(codec Codec, proc *procmgr.Process) *Backend {
	return &Backend{
		codec:   codec,
		proc:    proc,
		threads: make(map[int64]runtime.ThreadInfo),
		exc:     make(map[int64]*runtime.ExceptionInfo),
		closed:  make(chan struct{}),
	}
}

func (b *Backend) Start(sink backend.EventSink, program string, args []string, stopOnEntry bool) error {
	b.sink = sink
	go b.readLoop()
	return b.sendCommand("launch", map[string]any{
		"program":     program,
		"args":        args,
		"stopOnEntry": stopOnEntry,
	})
}

// readLoop is the dedicated OS-thread-equivalent goroutine spec §5 assigns
// the external backend's IPC reader; it never touches kernel state
// directly, only the sink capability and the pending-command table.
func (b *Backend) readLoop() {
	for {
		env, err := b.codec.ReadEnvelope()
		if err != nil {
			b.failAllPending(fmt.Errorf("IPC connection lost: %w", err))
			return
		}
		switch env.Kind {
		case ipc.KindResponse:
			b.resolvePending(env)
		case ipc.KindEvent:
			b.handleEvent(env)
		}
	}
}

func (b *Backend) resolvePending(env ipc.Envelope) {
	v, ok := b.pending.LoadAndDelete(env.Id)
	if !ok {
		return
	}
	v.(*pendingCommand).result <- env
}

func (b *Backend) handleEvent(env ipc.Envelope) {
	switch env.Name {
	case "stopped":
		var body struct {
			ThreadID    int64  `json:"threadId"`
			ThreadName  string `json:"threadName"`
			Reason      string `json:"reason"`
			Description string `json:"description"`
		}
		if err := env.Decode(&body); err != nil {
			return
		}
		b.mu.Lock()
		b.threads[body.ThreadID] = runtime.ThreadInfo{ID: body.ThreadID, Name: body.ThreadName, IsStopped: true}
		b.mu.Unlock()
		b.sink.EmitStopped(runtime.StopEvent{
			ThreadID:    body.ThreadID,
			ThreadName:  body.ThreadName,
			Reason:      runtime.StopReason(body.Reason),
			Description: body.Description,
			TopFrame:    nil, // external mode has no live frame pointer; StackTrace fetches it remotely
		})
	case "thread":
		var body struct {
			ThreadID int64  `json:"threadId"`
			Name     string `json:"name"`
			Started  bool   `json:"started"`
		}
		if err := env.Decode(&body); err == nil {
			b.sink.EmitThread(body.ThreadID, body.Name, body.Started)
		}
	case "exited":
		var body struct {
			ExitCode int    `json:"exitCode"`
			Error    string `json:"error"`
		}
		_ = env.Decode(&body)
		var err error
		if body.Error != "" {
			err = fmt.Errorf("%s", body.Error)
		}
		b.sink.EmitExited(runtime.ExitInfo{ExitCode: body.ExitCode, Err: err})
	case "output":
		var body struct {
			Category string `json:"category"`
			Output   string `json:"output"`
		}
		if err := env.Decode(&body); err == nil {
			b.sink.EmitOutput(body.Category, body.Output)
		}
	}
}

func (b *Backend) sendCommand(name string, args any) error {
	_, err := b.call(name, args)
	return err
}

// call sends a correlated command and blocks for its reply, bounded by
// CommandTimeout (spec §4.6).
func (b *Backend) call(name string, args any) (ipc.Envelope, error) {
	id := b.nextID.Add(1)
	env, err := ipc.NewCommand(id, name, args)
	if err != nil {
		return ipc.Envelope{}, err
	}

	pc := &pendingCommand{result: make(chan ipc.Envelope, 1)}
	b.pending.Store(id, pc)

	if err := b.codec.WriteEnvelope(env); err != nil {
		b.pending.Delete(id)
		return ipc.Envelope{}, adaperr.Wrap(adaperr.KindIPC, err, fmt.Sprintf("failed to send command %q", name))
	}

	select {
	case resp := <-pc.result:
		if resp.Err != "" {
			return ipc.Envelope{}, adaperr.Debuggee("%s", resp.Err)
		}
		return resp, nil
	case <-time.After(CommandTimeout):
		b.pending.Delete(id)
		return ipc.Envelope{}, adaperr.Timeout("command %q timed out after %s", name, CommandTimeout)
	case <-b.closed:
		return ipc.Envelope{}, adaperr.IPC("Debugger shutdown")
	}
}

func (b *Backend) failAllPending(err error) {
	b.pending.Range(func(key, value any) bool {
		b.pending.Delete(key)
		value.(*pendingCommand).result <- ipc.NewErrorResponse(key.(int64), err.Error())
		return true
	})
}

func (b *Backend) Resume(threadID int64, mode runtime.StepMode) error {
	names := map[runtime.StepMode]string{
		runtime.StepContinue: "continue",
		runtime.StepNext:     "next",
		runtime.StepIn:       "stepIn",
		runtime.StepOut:      "stepOut",
	}
	return b.sendCommand(names[mode], map[string]any{"threadId": threadID})
}

func (b *Backend) Threads() []runtime.ThreadInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]runtime.ThreadInfo, 0, len(b.threads))
	for _, t := range b.threads {
		out = append(out, t)
	}
	return out
}

func (b *Backend) StackTrace(threadID int64) ([]backend.Frame, error) {
	resp, err := b.call("stackTrace", map[string]any{"threadId": threadID})
	if err != nil {
		return nil, err
	}
	var body struct {
		StackFrames []struct {
			Id     int64  `json:"id"`
			Name   string `json:"name"`
			Line   int    `json:"line"`
			Source struct {
				Path string `json:"path"`
			} `json:"source"`
		} `json:"stackFrames"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	out := make([]backend.Frame, 0, len(body.StackFrames))
	for _, f := range body.StackFrames {
		out = append(out, backend.Frame{Source: f.Source.Path, Line: f.Line, Name: f.Name, Handle: f.Id})
	}
	return out, nil
}

func (b *Backend) Scopes(handle any) (locals, globals backend.Variables, err error) {
	remoteFrameID, _ := handle.(int64)
	resp, err := b.call("variables", map[string]any{"frameId": remoteFrameID})
	if err != nil {
		return backend.Variables{}, backend.Variables{}, err
	}
	var body struct {
		Locals  []dap.Variable `json:"locals"`
		Globals []dap.Variable `json:"globals"`
	}
	if err := resp.Decode(&body); err != nil {
		return backend.Variables{}, backend.Variables{}, err
	}
	return backend.Variables{Cached: body.Locals}, backend.Variables{Cached: body.Globals}, nil
}

func (b *Backend) Evaluate(frameHandle any, expr string) (any, error) {
	remoteFrameID, _ := frameHandle.(int64)
	resp, err := b.call("evaluate", map[string]any{"frameId": remoteFrameID, "expression": expr})
	if err != nil {
		return nil, err
	}
	var body struct {
		Result string `json:"result"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	return body.Result, nil
}

func (b *Backend) SetVariable(frameHandle any, name string, value any) (string, error) {
	remoteFrameID, _ := frameHandle.(int64)
	resp, err := b.call("setVariable", map[string]any{"frameId": remoteFrameID, "name": name, "value": value})
	if err != nil {
		return "", err
	}
	var body struct {
		Value string `json:"value"`
	}
	if err := resp.Decode(&body); err != nil {
		return "", err
	}
	return body.Value, nil
}

func (b *Backend) ExceptionInfo(threadID int64) (*runtime.ExceptionInfo, error) {
	b.mu.Lock()
	info, ok := b.exc[threadID]
	b.mu.Unlock()
	if ok {
		return info, nil
	}
	resp, err := b.call("exceptionInfo", map[string]any{"threadId": threadID})
	if err != nil {
		return nil, err
	}
	var out runtime.ExceptionInfo
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Terminate tells the child to terminate, fails every pending future per
// spec §4.6/§5 ("Debugger shutdown"), and stops the supervised process.
func (b *Backend) Terminate() error {
	b.closeOnce.Do(func() { close(b.closed) })
	b.failAllPending(fmt.Errorf("Debugger shutdown"))
	_ = b.sendCommand("terminate", nil)
	if b.proc != nil {
		return b.proc.Stop()
	}
	return nil
}
