// Package backend defines the capability the session kernel drives without
// caring whether the debuggee runs in-process or as an external subprocess
// (spec components C5/C6). internal/adapter/backend/inprocess and
// internal/adapter/backend/external are the two concrete implementations.
package backend

import (
	"github.com/google/go-dap"

	"github.com/lunadap/lunadap/internal/adapter/runtime"
)

// EventSink is the one-way callback capability a Backend is handed at Start.
// It is deliberately thin — the backend never sees the session that owns
// it, only this capability, breaking the session<->backend reference cycle
// spec.md's design notes call out.
type EventSink interface {
	EmitStopped(ev runtime.StopEvent)
	EmitThread(id int64, name string, started bool)
	EmitExited(info runtime.ExitInfo)
	EmitOutput(category, text string)
}

// Frame is one stack frame as reported by a Backend, before the session
// kernel assigns it a session-unique frame id. Handle is opaque to the
// kernel: the in-process backend stores the live runtime.Frame there, the
// external backend stores the remote numeric frame id the child process
// uses internally.
type Frame struct {
	Source string
	Line   int
	Name   string
	Handle any
}

// Variables is the result of resolving one variable reference. Exactly one
// of Live or Cached is populated, matching spec.md §3's "object" vs.
// "cached list" variable-reference kinds: Live holds real values keyed by
// name (in-process mode, values read straight from the live frame), Cached
// holds a pre-materialised dap.Variable slice (external mode, already
// shaped by the child process over IPC).
type Variables struct {
	Live   map[string]any
	Cached []dap.Variable
}

// Backend drives one debuggee program to completion and answers inspection
// requests while it is stopped.
type Backend interface {
	// Start launches program and begins forwarding stop/thread/exit/output
	// events to sink.
	Start(sink EventSink, program string, args []string, stopOnEntry bool) error

	// Resume releases threadID with the given stepping mode.
	Resume(threadID int64, mode runtime.StepMode) error

	// Threads lists currently known threads.
	Threads() []runtime.ThreadInfo

	// StackTrace returns the frames for threadID, outermost last, while it
	// is stopped.
	StackTrace(threadID int64) ([]Frame, error)

	// Scopes resolves the locals/globals variable sets for a frame handle
	// previously returned by StackTrace.
	Scopes(handle any) (locals, globals Variables, err error)

	// Evaluate runs expr against a frame handle's namespaces. frameHandle
	// may be nil for a global/REPL-style evaluation.
	Evaluate(frameHandle any, expr string) (any, error)

	// SetVariable assigns name to value within a frame handle's namespace
	// and returns the resulting value formatted for display.
	SetVariable(frameHandle any, name string, value any) (string, error)

	// ExceptionInfo returns the details recorded at the last exception
	// break on threadID, or nil if none is recorded.
	ExceptionInfo(threadID int64) (*runtime.ExceptionInfo, error)

	// Terminate stops the debuggee unconditionally and releases resources.
	Terminate() error
}
