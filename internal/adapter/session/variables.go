package session

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/go-dap"

	"github.com/lunadap/lunadap/internal/adapter/adaperr"
	"github.com/lunadap/lunadap/internal/adapter/backend"
	"github.com/lunadap/lunadap/internal/adapter/runtime"
)

// varRefEntry is one minted variable reference (spec §3's three kinds,
// unified behind a single lazily-evaluated resolve closure, generalizing
// docker-buildx/dap/variables.go's variableReferences.New/sync.OnceValue
// pattern). frameID is 0 for references not tied to a particular stopped
// frame (a top-level evaluate with no frameId).
type varRefEntry struct {
	frameID int
	resolve func() ([]dap.Variable, error)
}

// newVarRef mints the next strictly increasing reference (spec §4.7:
// "starts at 1000... never reused").
func (s *Session) newVarRef(frameID int, resolve func() ([]dap.Variable, error)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextVarRef
	s.nextVarRef++
	s.varRefs[id] = &varRefEntry{frameID: frameID, resolve: resolve}
	return id
}

// scopeResolver builds the resolve closure for a Locals/Globals scope
// reference, re-validating frame liveness at resolve time rather than at
// mint time, since the client may hold the reference across a resume.
func (s *Session) scopeResolver(frameID int, vars backend.Variables) func() ([]dap.Variable, error) {
	return func() ([]dap.Variable, error) {
		if frameID != 0 {
			s.mu.Lock()
			_, ok := s.lookupFrame(frameID)
			s.mu.Unlock()
			if !ok {
				return nil, adaperr.Protocol("frame %d is no longer valid", frameID)
			}
		}
		if vars.Live != nil {
			return s.flattenFields(frameID, vars.Live), nil
		}
		return vars.Cached, nil
	}
}

// flattenFields converts a map of live values into display dap.Variables,
// minting a fresh nested reference for any runtime.Composite value so its
// own fields expand lazily on the next `variables` request (spec §3's
// "object" kind).
func (s *Session) flattenFields(frameID int, fields map[string]any) []dap.Variable {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]dap.Variable, 0, len(names))
	for _, name := range names {
		out = append(out, s.variableFor(frameID, name, fields[name]))
	}
	return out
}

func (s *Session) variableFor(frameID int, name string, value any) dap.Variable {
	if composite, ok := value.(runtime.Composite); ok {
		ref := s.newVarRef(frameID, func() ([]dap.Variable, error) {
			return s.flattenFields(frameID, composite.Fields()), nil
		})
		return dap.Variable{Name: name, Value: "{...}", Type: "table", VariablesReference: ref}
	}
	return dap.Variable{Name: name, Value: fmt.Sprintf("%v", value), Type: goType(value)}
}

func goType(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	default:
		return ""
	}
}

// Scopes resolves the Locals/Globals scope references for a previously
// minted stack frame (spec §4.8 `scopes`).
func (s *Session) Scopes(frameID int) (locals, globals dap.Scope, err error) {
	s.mu.Lock()
	entry, ok := s.lookupFrame(frameID)
	if !ok {
		s.mu.Unlock()
		return dap.Scope{}, dap.Scope{}, adaperr.Protocol("invalid frame id %d", frameID)
	}
	b := s.backend
	handle := entry.handle
	s.mu.Unlock()

	localVars, globalVars, err := b.Scopes(handle)
	if err != nil {
		return dap.Scope{}, dap.Scope{}, adaperr.Debuggee("%s", err)
	}

	localsRef := s.newVarRef(frameID, s.scopeResolver(frameID, localVars))
	globalsRef := s.newVarRef(frameID, s.scopeResolver(frameID, globalVars))
	return dap.Scope{Name: "Locals", PresentationHint: "locals", VariablesReference: localsRef},
		dap.Scope{Name: "Globals", PresentationHint: "globals", VariablesReference: globalsRef},
		nil
}

// Variables dereferences ref, optionally paging the result (spec §4.8
// `variables`). An invalid reference is a well-formed error (spec §8
// invariant 5), never a panic.
func (s *Session) Variables(ref, start, count int) ([]dap.Variable, error) {
	s.mu.Lock()
	entry, ok := s.varRefs[ref]
	s.mu.Unlock()
	if !ok {
		return nil, adaperr.Protocol("invalid variables reference %d", ref)
	}

	vars, err := entry.resolve()
	if err != nil {
		return nil, err
	}

	if start > 0 || count > 0 {
		end := len(vars)
		if count > 0 && start+count < end {
			end = start + count
		}
		if start > end {
			start = end
		}
		vars = vars[start:end]
	}
	return vars, nil
}

// parseLiteral attempts to read raw as a Lua-ish literal: nil, a bool, an
// integer, a float, or a quoted string. ok is false when none apply, per
// spec §4.8's "parse value as literal... if that fails" fallthrough.
func parseLiteral(raw string) (any, bool) {
	switch raw {
	case "nil", "null":
		return nil, true
	case "true":
		return true, true
	case "false":
		return false, true
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, true
	}
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw[1 : len(raw)-1], true
	}
	return nil, false
}

// SetVariable assigns name within the frame scope ref identifies (spec
// §4.8 `setVariable`): literal parse, then expression evaluation, then
// raw string, in that order.
func (s *Session) SetVariable(ref int, name, rawValue string) (dap.Variable, error) {
	s.mu.Lock()
	entry, ok := s.varRefs[ref]
	s.mu.Unlock()
	if !ok || entry.frameID == 0 {
		return dap.Variable{}, adaperr.Protocol("setVariable requires a scope variables reference")
	}

	s.mu.Lock()
	frame, ok := s.lookupFrame(entry.frameID)
	b := s.backend
	s.mu.Unlock()
	if !ok {
		return dap.Variable{}, adaperr.Protocol("frame %d is no longer valid", entry.frameID)
	}

	value, ok := parseLiteral(rawValue)
	if !ok {
		if evaluated, err := b.Evaluate(frame.handle, rawValue); err == nil {
			value = evaluated
		} else {
			value = rawValue
		}
	}

	display, err := b.SetVariable(frame.handle, name, value)
	if err != nil {
		return dap.Variable{}, adaperr.Debuggee("%s", err)
	}
	return dap.Variable{Name: name, Value: display}, nil
}

// Evaluate runs expr against frameId's namespaces, or with no frame
// context when frameID is 0 (spec §4.8 `evaluate`).
func (s *Session) Evaluate(expr string, frameID int) (dap.EvaluateResponseBody, error) {
	s.mu.Lock()
	var handle any
	if frameID != 0 {
		entry, ok := s.lookupFrame(frameID)
		if !ok {
			s.mu.Unlock()
			return dap.EvaluateResponseBody{}, adaperr.Protocol("frame %d is no longer valid", frameID)
		}
		handle = entry.handle
	}
	b := s.backend
	s.mu.Unlock()

	if b == nil {
		return dap.EvaluateResponseBody{}, adaperr.Protocol("no active debuggee")
	}

	result, err := b.Evaluate(handle, expr)
	if err != nil {
		return dap.EvaluateResponseBody{}, adaperr.Debuggee("%s", err)
	}

	body := dap.EvaluateResponseBody{Result: fmt.Sprintf("%v", result), Type: goType(result)}
	if composite, ok := result.(runtime.Composite); ok {
		body.Result = "{...}"
		body.VariablesReference = s.newVarRef(frameID, func() ([]dap.Variable, error) {
			return s.flattenFields(frameID, composite.Fields()), nil
		})
	}
	return body, nil
}

// ExceptionInfo returns the details recorded at the last exception stop on
// threadID, preferring the kernel's own record and falling back to the
// backend's (the external backend may cache its own copy).
func (s *Session) ExceptionInfo(threadID int64) (dap.ExceptionInfoResponseBody, error) {
	s.mu.Lock()
	info, ok := s.lastException[threadID]
	b := s.backend
	s.mu.Unlock()

	if !ok && b != nil {
		if remote, err := b.ExceptionInfo(threadID); err == nil && remote != nil {
			info, ok = remote, true
		}
	}
	if !ok || info == nil {
		return dap.ExceptionInfoResponseBody{}, adaperr.Protocol("no exception recorded for thread %d", threadID)
	}

	return dap.ExceptionInfoResponseBody{
		ExceptionId: info.ExceptionID,
		Description: info.Description,
		BreakMode:   info.BreakMode,
		Details: &dap.ExceptionDetails{
			Message:      info.Message,
			TypeName:     info.TypeName,
			FullTypeName: info.FullTypeName,
			StackTrace:   strings.Join(info.StackTrace, "\n"),
		},
	}, nil
}
