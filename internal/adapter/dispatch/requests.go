package dispatch

import (
	"os"
	"strings"

	"github.com/google/go-dap"

	"github.com/lunadap/lunadap/internal/adapter/adaperr"
	"github.com/lunadap/lunadap/internal/adapter/breakpoints"
	"github.com/lunadap/lunadap/internal/adapter/protocol"
	"github.com/lunadap/lunadap/internal/security"
)

func (d *Dispatcher) handleSetBreakpoints(req *dap.Request) (dap.Message, error) {
	var args dap.SetBreakpointsArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	if err := security.ValidateSourcePath(args.Source.Path); err != nil {
		return nil, adaperr.Validation("%s", err)
	}

	specs := make([]breakpoints.LineBreakpoint, len(args.Breakpoints))
	for i, b := range args.Breakpoints {
		specs[i] = breakpoints.LineBreakpoint{
			Line:         b.Line,
			Condition:    b.Condition,
			HitCondition: b.HitCondition,
			LogMessage:   b.LogMessage,
		}
	}

	resolved := d.session.SetBreakpoints(args.Source.Path, specs)
	d.injector.ClearCache()
	body := dap.SetBreakpointsResponseBody{Breakpoints: make([]dap.Breakpoint, len(resolved))}
	for i, bp := range resolved {
		body.Breakpoints[i] = dap.Breakpoint{
			Verified: bp.Verified,
			Line:     bp.Line,
			Source:   &dap.Source{Path: args.Source.Path},
		}
	}
	return &dap.SetBreakpointsResponse{Response: protocol.NewResponse(req), Body: body}, nil
}

func (d *Dispatcher) handleSetFunctionBreakpoints(req *dap.Request) (dap.Message, error) {
	var args dap.SetFunctionBreakpointsArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}

	specs := make([]breakpoints.FunctionBreakpoint, len(args.Breakpoints))
	for i, b := range args.Breakpoints {
		specs[i] = breakpoints.FunctionBreakpoint{
			Name:         b.Name,
			Condition:    b.Condition,
			HitCondition: b.HitCondition,
		}
	}

	resolved := d.session.SetFunctionBreakpoints(specs)
	d.injector.ClearCache()
	body := dap.SetFunctionBreakpointsResponseBody{Breakpoints: make([]dap.Breakpoint, len(resolved))}
	for i, bp := range resolved {
		body.Breakpoints[i] = dap.Breakpoint{Verified: true, Message: bp.Name}
	}
	return &dap.SetFunctionBreakpointsResponse{Response: protocol.NewResponse(req), Body: body}, nil
}

func (d *Dispatcher) handleSetExceptionBreakpoints(req *dap.Request) (dap.Message, error) {
	var args dap.SetExceptionBreakpointsArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}

	flags := breakpoints.ExceptionFlags{}
	for _, filter := range args.Filters {
		switch filter {
		case "raised":
			flags.Raised = true
		case "uncaught":
			flags.Uncaught = true
		}
	}
	d.session.SetExceptionBreakpoints(flags)
	return &dap.SetExceptionBreakpointsResponse{Response: protocol.NewResponse(req)}, nil
}

func (d *Dispatcher) handleSetDataBreakpoints(req *dap.Request) (dap.Message, error) {
	var args dap.SetDataBreakpointsArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	if !d.limiter.Allow("setDataBreakpoints") {
		return nil, adaperr.Validation("setDataBreakpoints rate limit exceeded")
	}

	specs := make([]breakpoints.DataBreakpoint, len(args.Breakpoints))
	for i, b := range args.Breakpoints {
		// dataId is "frame:{fid}:var:{name}"; the watched variable is the
		// part after ":var:".
		varName := b.DataId
		if j := strings.Index(b.DataId, ":var:"); j >= 0 {
			varName = b.DataId[j+len(":var:"):]
		}
		specs[i] = breakpoints.DataBreakpoint{
			DataID:       b.DataId,
			VarName:      varName,
			Condition:    b.Condition,
			HitCondition: b.HitCondition,
		}
	}

	resolved := d.session.SetDataBreakpoints(specs)
	body := dap.SetDataBreakpointsResponseBody{Breakpoints: make([]dap.Breakpoint, len(resolved))}
	for i := range resolved {
		body.Breakpoints[i] = dap.Breakpoint{Verified: true}
	}
	return &dap.SetDataBreakpointsResponse{Response: protocol.NewResponse(req), Body: body}, nil
}

func (d *Dispatcher) handleDataBreakpointInfo(req *dap.Request) (dap.Message, error) {
	var args dap.DataBreakpointInfoArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}

	dataID, accessTypes, canPersist := d.session.DataBreakpointInfo(args.Name, args.VariablesReference)
	body := dap.DataBreakpointInfoResponseBody{
		DataId:      dataID,
		Description: args.Name,
		CanPersist:  canPersist,
	}
	for _, at := range accessTypes {
		body.AccessTypes = append(body.AccessTypes, dap.DataBreakpointAccessType(at))
	}
	return &dap.DataBreakpointInfoResponse{Response: protocol.NewResponse(req), Body: body}, nil
}

func (d *Dispatcher) handleContinue(req *dap.Request) (dap.Message, error) {
	var args dap.ContinueArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	if err := d.session.Continue(int64(args.ThreadId)); err != nil {
		return nil, err
	}
	return &dap.ContinueResponse{Response: protocol.NewResponse(req)}, nil
}

func (d *Dispatcher) handleNext(req *dap.Request) (dap.Message, error) {
	var args dap.NextArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	if err := d.session.Next(int64(args.ThreadId)); err != nil {
		return nil, err
	}
	return &dap.NextResponse{Response: protocol.NewResponse(req)}, nil
}

func (d *Dispatcher) handleStepIn(req *dap.Request) (dap.Message, error) {
	var args dap.StepInArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	if err := d.session.StepIn(int64(args.ThreadId)); err != nil {
		return nil, err
	}
	return &dap.StepInResponse{Response: protocol.NewResponse(req)}, nil
}

func (d *Dispatcher) handleStepOut(req *dap.Request) (dap.Message, error) {
	var args dap.StepOutArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	if err := d.session.StepOut(int64(args.ThreadId)); err != nil {
		return nil, err
	}
	return &dap.StepOutResponse{Response: protocol.NewResponse(req)}, nil
}

func (d *Dispatcher) handlePause(req *dap.Request) (dap.Message, error) {
	var args dap.PauseArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	if err := d.session.Pause(int64(args.ThreadId)); err != nil {
		return nil, err
	}
	return &dap.PauseResponse{Response: protocol.NewResponse(req)}, nil
}

func (d *Dispatcher) handleThreads(req *dap.Request) (dap.Message, error) {
	body := dap.ThreadsResponseBody{Threads: d.session.Threads()}
	return &dap.ThreadsResponse{Response: protocol.NewResponse(req), Body: body}, nil
}

func (d *Dispatcher) handleStackTrace(req *dap.Request) (dap.Message, error) {
	var args dap.StackTraceArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	frames, total, err := d.session.StackTrace(int64(args.ThreadId), args.StartFrame, args.Levels)
	if err != nil {
		return nil, err
	}
	body := dap.StackTraceResponseBody{StackFrames: frames, TotalFrames: total}
	return &dap.StackTraceResponse{Response: protocol.NewResponse(req), Body: body}, nil
}

func (d *Dispatcher) handleScopes(req *dap.Request) (dap.Message, error) {
	var args dap.ScopesArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	locals, globals, err := d.session.Scopes(args.FrameId)
	if err != nil {
		return nil, err
	}
	body := dap.ScopesResponseBody{Scopes: []dap.Scope{locals, globals}}
	return &dap.ScopesResponse{Response: protocol.NewResponse(req), Body: body}, nil
}

func (d *Dispatcher) handleVariables(req *dap.Request) (dap.Message, error) {
	var args dap.VariablesArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	vars, err := d.session.Variables(args.VariablesReference, args.Start, args.Count)
	if err != nil {
		return nil, err
	}
	body := dap.VariablesResponseBody{Variables: vars}
	return &dap.VariablesResponse{Response: protocol.NewResponse(req), Body: body}, nil
}

func (d *Dispatcher) handleSetVariable(req *dap.Request) (dap.Message, error) {
	var args dap.SetVariableArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	if !d.limiter.Allow("setVariable") {
		return nil, adaperr.Validation("setVariable rate limit exceeded")
	}
	v, err := d.session.SetVariable(args.VariablesReference, args.Name, args.Value)
	if err != nil {
		return nil, err
	}
	body := dap.SetVariableResponseBody{
		Value:              v.Value,
		Type:               v.Type,
		VariablesReference: v.VariablesReference,
	}
	return &dap.SetVariableResponse{Response: protocol.NewResponse(req), Body: body}, nil
}

func (d *Dispatcher) handleEvaluate(req *dap.Request) (dap.Message, error) {
	var args dap.EvaluateArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	if !d.limiter.Allow("evaluate") {
		return nil, adaperr.Validation("evaluate rate limit exceeded")
	}
	if err := security.ValidateExpression(args.Expression); err != nil {
		return nil, adaperr.Validation("%s", err)
	}
	body, err := d.session.Evaluate(args.Expression, args.FrameId)
	if err != nil {
		return nil, err
	}
	return &dap.EvaluateResponse{Response: protocol.NewResponse(req), Body: body}, nil
}

func (d *Dispatcher) handleLoadedSources(req *dap.Request) (dap.Message, error) {
	body := dap.LoadedSourcesResponseBody{Sources: d.session.LoadedSources()}
	return &dap.LoadedSourcesResponse{Response: protocol.NewResponse(req), Body: body}, nil
}

func (d *Dispatcher) handleModules(req *dap.Request) (dap.Message, error) {
	modules := d.session.Modules()
	body := dap.ModulesResponseBody{Modules: modules, TotalModules: len(modules)}
	return &dap.ModulesResponse{Response: protocol.NewResponse(req), Body: body}, nil
}

// handleSource answers spec.md's `source` ({source.path} or
// {sourceReference}) request by reading the named file straight off disk:
// every dap.Source this adapter hands out (sources.go, stack frames) is
// path-identified, never sourceReference-identified, so there is no
// registry to resolve a bare reference against.
func (d *Dispatcher) handleSource(req *dap.Request) (dap.Message, error) {
	var args dap.SourceArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}

	path := ""
	if args.Source != nil {
		path = args.Source.Path
	}
	if path == "" {
		return nil, adaperr.Validation("source requires source.path; sourceReference is not supported")
	}
	if err := security.ValidateSourcePath(path); err != nil {
		return nil, adaperr.Validation("%s", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, adaperr.Wrap(adaperr.KindDebuggee, err, "failed to read source")
	}

	body := dap.SourceResponseBody{Content: string(content), MimeType: "text/x-lua"}
	return &dap.SourceResponse{Response: protocol.NewResponse(req), Body: body}, nil
}

func (d *Dispatcher) handleExceptionInfo(req *dap.Request) (dap.Message, error) {
	var args dap.ExceptionInfoArguments
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	body, err := d.session.ExceptionInfo(int64(args.ThreadId))
	if err != nil {
		return nil, err
	}
	return &dap.ExceptionInfoResponse{Response: protocol.NewResponse(req), Body: body}, nil
}
