package session

import (
	"sort"

	"github.com/google/go-dap"

	"github.com/lunadap/lunadap/internal/adapter/adaperr"
	"github.com/lunadap/lunadap/internal/adapter/runtime"
)

// resume is the shared body of continue/next/stepIn/stepOut: it
// invalidates every frame id minted since the last stop (spec §8
// invariant 4) before releasing the thread, and transitions back to
// Running.
func (s *Session) resume(threadID int64, mode runtime.StepMode) error {
	s.mu.Lock()
	if err := requireState(s, StateStopped); err != nil {
		s.mu.Unlock()
		return adaperr.Protocol("%s", err)
	}
	s.invalidateFrames()
	b := s.backend
	s.setState(StateRunning)
	if th, ok := s.threads[threadID]; ok {
		th.isStopped = false
	}
	s.mu.Unlock()

	if err := b.Resume(threadID, mode); err != nil {
		return adaperr.Debuggee("%s", err)
	}
	return nil
}

func (s *Session) Continue(threadID int64) error { return s.resume(threadID, runtime.StepContinue) }
func (s *Session) Next(threadID int64) error     { return s.resume(threadID, runtime.StepNext) }
func (s *Session) StepIn(threadID int64) error   { return s.resume(threadID, runtime.StepIn) }
func (s *Session) StepOut(threadID int64) error  { return s.resume(threadID, runtime.StepOut) }

// Pause is best-effort only (DESIGN.md resolves spec §9's open question:
// no in-process interrupt mechanism exists, so a thread already running
// cannot be asynchronously halted; a client-visible `pause` against a
// running thread simply fails rather than silently doing nothing).
func (s *Session) Pause(threadID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadID]; !ok {
		return adaperr.Protocol("unknown thread %d", threadID)
	}
	return adaperr.Debuggee("pause is not supported for a running thread")
}

// Threads returns the current thread list, querying the backend for
// threads the kernel hasn't separately observed via an EmitThread/
// EmitStopped call.
func (s *Session) Threads() []dap.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]bool, len(s.threads))
	out := make([]dap.Thread, 0, len(s.threads))
	for id, th := range s.threads {
		out = append(out, dap.Thread{Id: int(id), Name: th.name})
		seen[id] = true
	}
	if s.backend != nil {
		for _, t := range s.backend.Threads() {
			if seen[t.ID] {
				continue
			}
			out = append(out, dap.Thread{Id: int(t.ID), Name: t.Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

// StackTrace returns a page of frames for threadID, minting fresh frame
// ids at the session's current generation (spec §3/§4.8).
func (s *Session) StackTrace(threadID int64, startFrame, levels int) ([]dap.StackFrame, int, error) {
	s.mu.Lock()
	if err := requireState(s, StateStopped); err != nil {
		s.mu.Unlock()
		return nil, 0, adaperr.Protocol("%s", err)
	}
	b := s.backend
	s.mu.Unlock()

	bframes, err := b.StackTrace(threadID)
	if err != nil {
		return nil, 0, adaperr.Debuggee("%s", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(bframes)
	end := total
	if levels > 0 && startFrame+levels < end {
		end = startFrame + levels
	}
	if startFrame > end {
		startFrame = end
	}

	out := make([]dap.StackFrame, 0, end-startFrame)
	for _, bf := range bframes[startFrame:end] {
		id := s.newFrame(threadID, bf)
		out = append(out, dap.StackFrame{
			Id:     id,
			Name:   bf.Name,
			Line:   bf.Line,
			Column: 1,
			Source: &dap.Source{Path: bf.Source, Name: baseName(bf.Source)},
		})
	}
	return out, total, nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
