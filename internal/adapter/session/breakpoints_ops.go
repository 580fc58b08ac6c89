package session

import (
	"fmt"

	"github.com/lunadap/lunadap/internal/adapter/breakpoints"
)

// SetBreakpoints replaces the line-breakpoint table for source wholesale
// (spec §4.8 `setBreakpoints`, §3 invariant "fully replaced by each
// request"). The returned entries carry Verified for the dispatcher to
// shape into dap.Breakpoint responses.
func (s *Session) SetBreakpoints(source string, specs []breakpoints.LineBreakpoint) []*breakpoints.LineBreakpoint {
	return s.tables.SetLineBreakpoints(source, specs)
}

// SetFunctionBreakpoints replaces the function-breakpoint table wholesale.
func (s *Session) SetFunctionBreakpoints(specs []breakpoints.FunctionBreakpoint) []*breakpoints.FunctionBreakpoint {
	return s.tables.SetFunctionBreakpoints(specs)
}

// SetExceptionBreakpoints replaces the raised/uncaught exception flags.
func (s *Session) SetExceptionBreakpoints(flags breakpoints.ExceptionFlags) {
	s.tables.SetExceptionFlags(flags)
}

// SetDataBreakpoints replaces the data-watch table wholesale.
func (s *Session) SetDataBreakpoints(specs []breakpoints.DataBreakpoint) []*breakpoints.DataBreakpoint {
	return s.tables.SetDataBreakpoints(specs)
}

// DataBreakpointInfo mints the dataId for watching name from frameID's
// scope, in the "frame:{frameId}:var:{name}" form spec §4.8 fixes so a
// later setDataBreakpoints call can reconstruct what is being watched.
func (s *Session) DataBreakpointInfo(name string, frameID int) (dataID string, accessTypes []string, canPersist bool) {
	s.mu.Lock()
	_, ok := s.lookupFrame(frameID)
	s.mu.Unlock()
	if !ok {
		return "", nil, false
	}
	return fmt.Sprintf("frame:%d:var:%s", frameID, name), []string{"write"}, false
}
