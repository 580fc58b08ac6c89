// Package inprocess implements the in-process debuggee backend (C5): it
// installs a runtime.Tracer on the debuggee's own interpreter and answers
// stack/variable/evaluate requests directly against live frames, with no
// IPC hop. Grounded on docker-buildx/dap/thread.go's pause/resume channel,
// generalized from buildkit solve steps to runtime.Frame.
package inprocess

import (
	"fmt"

	"github.com/lunadap/lunadap/internal/adapter/backend"
	"github.com/lunadap/lunadap/internal/adapter/runtime"
)

// stackWalker is implemented by runtime.Frame values that can additionally
// report their own call-stack depth, letting Backend reconstruct the full
// stack by repeatedly calling Parent(). Only runtime/luart's *Frame
// satisfies this today; a Frame that doesn't is treated as a single-level
// stack.
type stackWalker interface {
	StackLevel() int
}

// Backend wraps a runtime.Tracer, adapting its single-frame stop events
// into the backend.Backend surface the session kernel drives.
type Backend struct {
	tracer runtime.Tracer
	sink   backend.EventSink

	topFrames map[int64]runtime.Frame // threadID -> frame at last stop
	lastExc   map[int64]*runtime.ExceptionInfo
}

// New wraps tracer. tracer must not have been started yet.
func New(tracer runtime.Tracer) *Backend {
	return &Backend{
		tracer:    tracer,
		topFrames: make(map[int64]runtime.Frame),
		lastExc:   make(map[int64]*runtime.ExceptionInfo),
	}
}

func (b *Backend) Start(sink backend.EventSink, program string, args []string, stopOnEntry bool) error {
	b.sink = sink
	stops, exit, err := b.tracer.Start(program, stopOnEntry)
	if err != nil {
		return err
	}
	go b.forward(stops, exit)
	return nil
}

func (b *Backend) forward(stops <-chan runtime.StopEvent, exit <-chan runtime.ExitInfo) {
	for {
		select {
		case ev, ok := <-stops:
			if !ok {
				stops = nil
				continue
			}
			if ev.Reason == "" {
				b.sink.EmitOutput("console", ev.Text)
				continue
			}
			b.topFrames[ev.ThreadID] = ev.TopFrame
			if ev.Reason == runtime.ReasonException {
				b.lastExc[ev.ThreadID] = &runtime.ExceptionInfo{
					Description: ev.Description,
					BreakMode:   "always",
				}
			}
			b.sink.EmitStopped(ev)
		case info, ok := <-exit:
			if !ok {
				return
			}
			b.sink.EmitExited(info)
			return
		}
	}
}

func (b *Backend) Resume(threadID int64, mode runtime.StepMode) error {
	delete(b.topFrames, threadID)
	return b.tracer.Resume(threadID, mode)
}

func (b *Backend) Threads() []runtime.ThreadInfo {
	return b.tracer.Threads()
}

func (b *Backend) StackTrace(threadID int64) ([]backend.Frame, error) {
	top, ok := b.topFrames[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %d is not stopped", threadID)
	}

	var out []backend.Frame
	for f := top; f != nil; f = f.Parent() {
		out = append(out, backend.Frame{
			Source: f.Source(),
			Line:   f.Line(),
			Name:   displayName(f),
			Handle: f,
		})
		if _, ok := f.(stackWalker); !ok {
			break
		}
	}
	return out, nil
}

func displayName(f runtime.Frame) string {
	if name := f.FuncName(); name != "" {
		return name
	}
	return "<module>"
}

func (b *Backend) Scopes(handle any) (locals, globals backend.Variables, err error) {
	frame, ok := handle.(runtime.Frame)
	if !ok {
		return backend.Variables{}, backend.Variables{}, fmt.Errorf("invalid frame handle")
	}
	return backend.Variables{Live: frame.Locals()}, backend.Variables{Live: frame.Globals()}, nil
}

func (b *Backend) Evaluate(frameHandle any, expr string) (any, error) {
	frame, ok := frameHandle.(runtime.Frame)
	if !ok {
		return nil, fmt.Errorf("evaluate requires a stopped frame")
	}
	return frame.Evaluate(expr)
}

func (b *Backend) SetVariable(frameHandle any, name string, value any) (string, error) {
	frame, ok := frameHandle.(runtime.Frame)
	if !ok {
		return "", fmt.Errorf("setVariable requires a stopped frame")
	}
	if err := frame.SetLocal(name, value); err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", value), nil
}

func (b *Backend) ExceptionInfo(threadID int64) (*runtime.ExceptionInfo, error) {
	info, ok := b.lastExc[threadID]
	if !ok {
		return nil, fmt.Errorf("no exception recorded for thread %d", threadID)
	}
	return info, nil
}

func (b *Backend) Terminate() error {
	return b.tracer.Terminate()
}
