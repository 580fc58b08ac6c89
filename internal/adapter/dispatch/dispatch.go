// Package dispatch implements the request dispatcher (C8): a total
// function from DAP command name to session-kernel operation. Grounded on
// docker-buildx/dap/server.go's handle switch, generalized so every
// handler returns a well-formed response rather than writing it directly,
// letting internal/adapter/session own the single outbound writer.
package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-dap"

	"github.com/lunadap/lunadap/internal/adapter/adaperr"
	"github.com/lunadap/lunadap/internal/adapter/probe"
	"github.com/lunadap/lunadap/internal/adapter/protocol"
	"github.com/lunadap/lunadap/internal/adapter/session"
	"github.com/lunadap/lunadap/internal/security"
)

// Dispatcher routes every inbound DAP request to the operation on Session
// it names, building the appropriate debuggee backend for launch/attach
// (the one piece of backend-construction knowledge session itself is
// deliberately kept free of), and rate-limits the handful of commands that
// reach the Lua evaluator.
type Dispatcher struct {
	session  *session.Session
	config   BackendConfig
	limiter  *security.Limiter
	injector *probe.Injector
}

// New builds a Dispatcher for s, using config to decide how launch/attach
// constructs a concrete backend.Backend. It also owns the bytecode probe
// injector (C9): no concrete instruction-stream rewriter ships in this
// repository, so it runs probe.NoopTransformer until a real one is plugged
// in, but the cache it clears on every breakpoint-set update is real.
func New(s *session.Session, config BackendConfig) *Dispatcher {
	maxJobs := config.ProbeMaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 4
	}
	return &Dispatcher{
		session:  s,
		config:   config,
		limiter:  security.NewLimiter(),
		injector: probe.New(probe.NoopTransformer{}, maxJobs, nil),
	}
}

// Close releases resources the Dispatcher owns across the lifetime of one
// session (today, just the probe injector's validator pool).
func (d *Dispatcher) Close() {
	d.injector.Close()
}

// Handle implements session.Handler: it never panics and never returns a
// malformed response, matching spec §8 invariant "on any error during a
// handler, the session must still emit a well-formed response with the
// originating request_seq."
func (d *Dispatcher) Handle(req *dap.Request) dap.Message {
	defer func() {
		// A handler panic must still surface as a response, not a crashed
		// connection; recovery happens here rather than per-handler.
		if r := recover(); r != nil {
			d.session.Enqueue(protocol.NewErrorResponse(req, fmt.Sprintf("internal error: %v", r)))
		}
	}()

	fn, ok := handlers[req.Command]
	if !ok {
		return protocol.NewErrorResponse(req, fmt.Sprintf("unsupported command %q", req.Command))
	}

	resp, err := fn(d, req)
	if err != nil {
		return errorResponse(req, err)
	}
	return resp
}

// errorResponse shapes err into {success:false, message:...}; a *adaperr.Error
// contributes its Kind as additional context, any other error its plain
// message (spec §4.8/§8: never a bare panic, always request_seq-tagged).
func errorResponse(req *dap.Request, err error) dap.Message {
	if ae, ok := adaperr.As(err); ok {
		return protocol.NewErrorResponse(req, fmt.Sprintf("%s: %s", ae.Kind, ae.Message))
	}
	return protocol.NewErrorResponse(req, err.Error())
}

type handlerFunc func(d *Dispatcher, req *dap.Request) (dap.Message, error)

var handlers = map[string]handlerFunc{
	"initialize":             (*Dispatcher).handleInitialize,
	"launch":                 (*Dispatcher).handleLaunch,
	"attach":                 (*Dispatcher).handleAttach,
	"setBreakpoints":         (*Dispatcher).handleSetBreakpoints,
	"setFunctionBreakpoints": (*Dispatcher).handleSetFunctionBreakpoints,
	"setExceptionBreakpoints": (*Dispatcher).handleSetExceptionBreakpoints,
	"setDataBreakpoints":     (*Dispatcher).handleSetDataBreakpoints,
	"dataBreakpointInfo":     (*Dispatcher).handleDataBreakpointInfo,
	"configurationDone":      (*Dispatcher).handleConfigurationDone,
	"continue":               (*Dispatcher).handleContinue,
	"next":                   (*Dispatcher).handleNext,
	"stepIn":                 (*Dispatcher).handleStepIn,
	"stepOut":                (*Dispatcher).handleStepOut,
	"pause":                  (*Dispatcher).handlePause,
	"threads":                (*Dispatcher).handleThreads,
	"stackTrace":             (*Dispatcher).handleStackTrace,
	"scopes":                 (*Dispatcher).handleScopes,
	"variables":              (*Dispatcher).handleVariables,
	"setVariable":            (*Dispatcher).handleSetVariable,
	"evaluate":               (*Dispatcher).handleEvaluate,
	"exceptionInfo":          (*Dispatcher).handleExceptionInfo,
	"disconnect":             (*Dispatcher).handleDisconnect,
	"terminate":              (*Dispatcher).handleTerminate,
	"restart":                (*Dispatcher).handleRestart,
	"loadedSources":          (*Dispatcher).handleLoadedSources,
	"modules":                (*Dispatcher).handleModules,
	"source":                 (*Dispatcher).handleSource,
}

func decodeArgs(req *dap.Request, v any) error {
	if len(req.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Arguments, v); err != nil {
		return adaperr.Protocol("malformed arguments for %q: %s", req.Command, err)
	}
	return nil
}

// handleInitialize special-cases the one command spec §5 orders
// differently: the `initialized` event must follow the response, so both
// are enqueued here, in order, and nil is returned so Handle's caller
// does not enqueue the response a second time.
func (d *Dispatcher) handleInitialize(req *dap.Request) (dap.Message, error) {
	caps, err := d.session.Initialize()
	if err != nil {
		return nil, err
	}
	resp := &dap.InitializeResponse{Response: protocol.NewResponse(req), Body: caps}
	d.session.Enqueue(resp)
	d.session.Enqueue(protocol.NewEvent("initialized"))
	return nil, nil
}

func (d *Dispatcher) handleConfigurationDone(req *dap.Request) (dap.Message, error) {
	if err := d.session.ConfigurationDone(); err != nil {
		return nil, err
	}
	return &dap.ConfigurationDoneResponse{Response: protocol.NewResponse(req)}, nil
}

func (d *Dispatcher) handleDisconnect(req *dap.Request) (dap.Message, error) {
	if err := d.session.Disconnect(); err != nil {
		return nil, err
	}
	return &dap.DisconnectResponse{Response: protocol.NewResponse(req)}, nil
}

func (d *Dispatcher) handleTerminate(req *dap.Request) (dap.Message, error) {
	if err := d.session.Terminate(); err != nil {
		return nil, err
	}
	return &dap.TerminateResponse{Response: protocol.NewResponse(req)}, nil
}

func (d *Dispatcher) handleRestart(req *dap.Request) (dap.Message, error) {
	if err := d.session.Restart(); err != nil {
		return nil, err
	}
	return &dap.RestartResponse{Response: protocol.NewResponse(req)}, nil
}
