package session

import (
	"github.com/google/go-dap"

	"github.com/lunadap/lunadap/internal/adapter/adaperr"
	"github.com/lunadap/lunadap/internal/adapter/backend"
)

// Capabilities is returned from Initialize; its fields mirror exactly the
// capability set spec §6 requires, independent of whatever the concrete
// go-dap InitializeResponse shape happens to default to.
func Capabilities() dap.Capabilities {
	return dap.Capabilities{
		SupportsConfigurationDoneRequest: true,
		SupportsFunctionBreakpoints:      true,
		SupportsConditionalBreakpoints:   true,
		SupportsHitConditionalBreakpoints: true,
		SupportsEvaluateForHovers:        true,
		SupportsSetVariable:              true,
		SupportsRestartRequest:           true,
		SupportsExceptionInfoRequest:     true,
		SupportsLogPoints:                true,
		SupportsLoadedSourcesRequest:     true,
		SupportsModulesRequest:           true,
		SupportsDataBreakpoints:          true,
		SupportsDataBreakpointInfo:       true,
		SupportTerminateDebuggee:         true,
		ExceptionBreakpointFilters: []dap.ExceptionBreakpointsFilter{
			{Filter: "raised", Label: "Raised Exceptions"},
			{Filter: "uncaught", Label: "Uncaught Exceptions", Default: true},
		},
	}
}

// Initialize transitions Connected -> Initialized. The `initialized` event
// is the caller's responsibility to send after the response, per spec §5's
// ordering exception for this one command.
func (s *Session) Initialize() (dap.Capabilities, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := requireState(s, StateConnected); err != nil {
		return dap.Capabilities{}, adaperr.Protocol("%s", err)
	}
	s.setState(StateInitialized)
	return Capabilities(), nil
}

// BeginConfiguring transitions Initialized -> Configuring, entered by
// either `launch` or `attach` before the debuggee actually starts running.
func (s *Session) beginConfiguring() error {
	if err := requireState(s, StateInitialized); err != nil {
		return adaperr.Protocol("%s", err)
	}
	s.setState(StateConfiguring)
	return nil
}

// Launch selects b as the session's backend and starts program running.
// b must already be constructed for the requested mode (in-process or
// external); backend construction is the request dispatcher's
// responsibility (spec §4.8 "Select backend; start debuggee"), since it
// alone knows about concrete Tracer/IPC wiring.
func (s *Session) Launch(b backend.Backend, program string, args []string, stopOnEntry, noDebug bool) error {
	s.mu.Lock()
	if err := s.beginConfiguring(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.backend = b
	s.noDebug = noDebug
	s.module = program
	s.mu.Unlock()

	armStopOnEntry := stopOnEntry && !noDebug
	if err := b.Start(s, program, args, armStopOnEntry); err != nil {
		return adaperr.Wrap(adaperr.KindConfiguration, err, "launch failed")
	}

	s.Enqueue(&dap.ProcessEvent{
		Event: dap.Event{Event: "process"},
		Body:  dap.ProcessEventBody{Name: program, StartMethod: "launch"},
	})

	// spec §4.8: "emit process event; if stopOnEntry, await first
	// stopped" before the launch response goes out, so a client never
	// observes "launched" ahead of "stopped at entry". firstStop is
	// likewise closed by EmitExited, so a debuggee that dies before ever
	// stopping does not wedge the launch response forever.
	if armStopOnEntry {
		<-s.firstStop
	}
	return nil
}

// Attach connects to an already-running debuggee via b, which must be an
// external backend: spec §3's invariant "attach is never in_process".
func (s *Session) Attach(b backend.Backend, useIPC bool) error {
	if !useIPC {
		return adaperr.Configuration("attach requires useIpc")
	}
	s.mu.Lock()
	if err := s.beginConfiguring(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.backend = b
	s.mu.Unlock()

	if err := b.Start(s, "", nil, false); err != nil {
		return adaperr.Wrap(adaperr.KindConfiguration, err, "attach failed")
	}
	s.Enqueue(&dap.ProcessEvent{
		Event: dap.Event{Event: "process"},
		Body:  dap.ProcessEventBody{Name: "attached", StartMethod: "attach"},
	})
	return nil
}

// ConfigurationDone releases the debuggee from its initialisation barrier,
// transitioning Configuring -> Running.
func (s *Session) ConfigurationDone() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := requireState(s, StateConfiguring); err != nil {
		return adaperr.Protocol("%s", err)
	}
	s.setState(StateRunning)
	return nil
}

// Terminate stops the debuggee unconditionally and transitions to
// Shutdown. Every state accepts terminate/disconnect (spec §4.7).
func (s *Session) Terminate() error {
	s.mu.Lock()
	b := s.backend
	s.setState(StateShutdown)
	s.mu.Unlock()

	s.overflow.Close()

	if b == nil {
		return nil
	}
	if err := b.Terminate(); err != nil {
		return adaperr.Wrap(adaperr.KindDebuggee, err, "terminate failed")
	}
	return nil
}

// Disconnect is Terminate's client-initiated twin: same effect on the
// backend and lifecycle state, distinguished only so the dispatcher can
// report which command drove the shutdown.
func (s *Session) Disconnect() error {
	return s.Terminate()
}

// Restart stops the current debuggee, emits `terminated` with restart=true,
// and transitions to Shutdown; spec §4.7 does not have the kernel itself
// relaunch, only signal the client's driver to do so.
func (s *Session) Restart() error {
	if err := s.Terminate(); err != nil {
		return err
	}
	s.Enqueue(&dap.TerminatedEvent{
		Event: dap.Event{Event: "terminated"},
		Body:  dap.TerminatedEventBody{Restart: true},
	})
	return nil
}
