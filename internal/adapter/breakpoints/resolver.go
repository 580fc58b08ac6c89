// Package breakpoints implements the breakpoint resolution engine (C4):
// conditional, hit-count, log-point, and data-watch evaluation against a
// live runtime.Frame, returning one of STOP / CONTINUE / LOG per spec §4.4.
// Grounded on the original debugger's DebuggerBDB.user_line and its
// _check_data_watch_changes / _handle_regular_breakpoint helpers.
package breakpoints

import (
	"fmt"
	"reflect"

	"github.com/lunadap/lunadap/internal/adapter/runtime"
)

// Resolver implements runtime.Resolver against one session's breakpoint
// Tables. Per-thread stepping/entry flags live alongside the tables it
// wraps, so OnLine matches runtime.Resolver's signature exactly and any
// Tracer can call it directly without threading extra state through.
type Resolver struct {
	tables *Tables
}

// NewResolver wraps an existing Tables instance.
func NewResolver(tables *Tables) *Resolver {
	return &Resolver{tables: tables}
}

// ArmStepping marks threadID to stop at its very next line event with
// reason "step" (spec §4.4 step 4), consumed one-shot. Called by the
// session kernel when handling next/stepIn/stepOut.
func (r *Resolver) ArmStepping(threadID int64) {
	r.tables.mu.Lock()
	defer r.tables.mu.Unlock()
	r.threadState(threadID).stepping = true
}

// ArmStopOnEntry marks threadID to stop at the first line of the program
// with reason "entry", consumed one-shot. Called once at launch when
// stopOnEntry was requested.
func (r *Resolver) ArmStopOnEntry(threadID int64) {
	r.tables.mu.Lock()
	defer r.tables.mu.Unlock()
	r.threadState(threadID).stopOnEntry = true
}

// threadState returns (creating if necessary) the stepping state for
// threadID. Caller must hold tables.mu.
func (r *Resolver) threadState(threadID int64) *threadStepState {
	if r.tables.threadSteps == nil {
		r.tables.threadSteps = make(map[int64]*threadStepState)
	}
	st, ok := r.tables.threadSteps[threadID]
	if !ok {
		st = &threadStepState{}
		r.tables.threadSteps[threadID] = st
	}
	return st
}

// OnLine runs the five-step algorithm of spec §4.4 for one line event and
// returns the resolver's verdict. Stepping and StopOnEntry are both
// one-shot flags, cleared once consumed, matching the original's
// `self.stepping = False` / `self.stop_on_entry = False`.
func (r *Resolver) OnLine(frame runtime.Frame, threadID int64) runtime.Decision {
	key := frameKey{threadID: threadID, frameID: int64(uintptrOf(frame))}

	// Step 1-2: data watch changes take priority, and the snapshot is
	// always refreshed regardless of whether this resolves to a stop.
	changed := r.checkDataWatchChange(frame, key)
	r.updateWatchSnapshot(frame, key)

	if changed != "" && r.shouldStopForDataBreakpoint(changed, frame) {
		return runtime.Decision{
			Action:      runtime.ActionStop,
			Reason:      runtime.ReasonDataBreakpoint,
			Description: fmt.Sprintf("%s changed", changed),
		}
	}

	// Step 3: regular line breakpoint at this exact (source, line).
	if bp := r.tables.LineBreakpointAt(frame.Source(), frame.Line()); bp != nil {
		bp.Hits++
		if bp.HitCondition != "" && !EvaluateHitCondition(bp.HitCondition, bp.Hits) {
			return runtime.Decision{Action: runtime.ActionContinue}
		}
		if bp.LogMessage != "" {
			return runtime.Decision{
				Action:  runtime.ActionLog,
				LogText: FormatLogMessage(bp.LogMessage, frame),
			}
		}
		if bp.Condition != "" {
			ok, err := evalCondition(frame, bp.Condition)
			if err == nil && !ok {
				return runtime.Decision{Action: runtime.ActionContinue}
			}
		}
		return runtime.Decision{Action: runtime.ActionStop, Reason: runtime.ReasonBreakpoint}
	}

	// Step 4: stepping/entry fallback, consumed one-shot.
	r.tables.mu.Lock()
	state := r.threadState(threadID)
	stopOnEntry := state.stopOnEntry
	stepping := state.stepping
	if stopOnEntry {
		state.stopOnEntry = false
	} else if stepping {
		state.stepping = false
	}
	r.tables.mu.Unlock()

	if stopOnEntry {
		return runtime.Decision{Action: runtime.ActionStop, Reason: runtime.ReasonEntry}
	}
	if stepping {
		return runtime.Decision{Action: runtime.ActionStop, Reason: runtime.ReasonStep}
	}

	return runtime.Decision{Action: runtime.ActionContinue}
}

// OnCall checks a function breakpoint at call time against the candidate
// names derived from frame (spec §4.4's closing paragraph).
func (r *Resolver) OnCall(frame runtime.Frame, module string) runtime.Decision {
	candidates := FunctionCandidateNames(frame, module)
	if len(candidates) == 0 {
		return runtime.Decision{Action: runtime.ActionContinue}
	}
	bp := r.tables.FunctionBreakpointFor(candidates)
	if bp == nil {
		return runtime.Decision{Action: runtime.ActionContinue}
	}
	bp.Hits++
	if bp.HitCondition != "" && !EvaluateHitCondition(bp.HitCondition, bp.Hits) {
		return runtime.Decision{Action: runtime.ActionContinue}
	}
	if bp.Condition != "" {
		ok, err := evalCondition(frame, bp.Condition)
		if err == nil && !ok {
			return runtime.Decision{Action: runtime.ActionContinue}
		}
	}
	return runtime.Decision{Action: runtime.ActionStop, Reason: runtime.ReasonBreakpoint}
}

func evalCondition(frame runtime.Frame, expr string) (bool, error) {
	val, err := frame.Evaluate(expr)
	if err != nil {
		return false, err
	}
	truthy, ok := val.(bool)
	if !ok {
		// Non-boolean conditions are permissive, matching the original's
		// bare `bool(eval(...))` coercion; a Frame implementation is
		// expected to already coerce, but guard defensively here too.
		return val != nil, nil
	}
	return truthy, nil
}

func (r *Resolver) checkDataWatchChange(frame runtime.Frame, key frameKey) string {
	names := r.tables.WatchedNames()
	if len(names) == 0 {
		return ""
	}
	locals := frame.Locals()

	r.tables.mu.Lock()
	defer r.tables.mu.Unlock()

	prior := r.tables.lastLocalsByFrame[key]
	for _, name := range names {
		newVal, present := locals[name]
		if !present {
			continue
		}
		var oldVal any
		haveOld := false
		if prior != nil {
			if v, ok := prior[name]; ok {
				oldVal, haveOld = v, true
			}
		}
		if !haveOld {
			if v, ok := r.tables.lastGlobalWatch[name]; ok {
				oldVal, haveOld = v, true
			}
		}
		if haveOld && !valuesEqual(oldVal, newVal) {
			return name
		}
	}
	return ""
}

func (r *Resolver) updateWatchSnapshot(frame runtime.Frame, key frameKey) {
	names := r.tables.WatchedNames()
	if len(names) == 0 {
		return
	}
	locals := frame.Locals()

	r.tables.mu.Lock()
	defer r.tables.mu.Unlock()

	snapshot := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := locals[name]; ok {
			snapshot[name] = v
			r.tables.lastGlobalWatch[name] = v
		}
	}
	r.tables.lastLocalsByFrame[key] = snapshot
}

func (r *Resolver) shouldStopForDataBreakpoint(changedName string, frame runtime.Frame) bool {
	metas := r.tables.DataBreakpointsFor(changedName)
	if len(metas) == 0 {
		// No metadata means default stop semantics, matching the
		// original's `return not metas`.
		return true
	}
	for _, m := range metas {
		m.Hits++
		if m.HitCondition != "" && !EvaluateHitCondition(m.HitCondition, m.Hits) {
			continue
		}
		if m.Condition != "" {
			ok, err := evalCondition(frame, m.Condition)
			if err != nil || !ok {
				continue
			}
		}
		return true
	}
	return false
}

func valuesEqual(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// uintptrOf derives a stable per-frame identity for snapshot keying without
// requiring Frame to expose a dedicated id method, mirroring the original's
// use of `id(frame)`. Concrete Frame implementations are pointer-backed, so
// reflect.Value.Pointer() gives a stable, comparable identity for the
// lifetime of the frame.
func uintptrOf(f runtime.Frame) uintptr {
	v := reflect.ValueOf(f)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		return v.Pointer()
	}
	return 0
}
