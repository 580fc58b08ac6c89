package breakpoints

import "sync"

// LineBreakpoint is one entry of the per-(source,line) breakpoint table.
type LineBreakpoint struct {
	Line         int
	Condition    string
	HitCondition string
	LogMessage   string
	Hits         int
	Verified     bool
}

// FunctionBreakpoint is one entry of the function-breakpoint table, keyed
// by the name or qualified name the client supplied.
type FunctionBreakpoint struct {
	Name         string
	Condition    string
	HitCondition string
	Hits         int
}

// DataBreakpoint is one entry of the data-watch table, keyed by dataId of
// the form "frame:{fid}:var:{name}" (spec §3, §4.8 dataBreakpointInfo).
type DataBreakpoint struct {
	DataID       string
	VarName      string
	Condition    string
	HitCondition string
	Hits         int
}

// ExceptionFlags are the two exception-breakpoint booleans (spec §3).
type ExceptionFlags struct {
	Raised   bool
	Uncaught bool
}

// Tables holds every breakpoint table for one session, guarded by a single
// mutex shared with the thread/frame/variable-reference tables the session
// kernel owns (spec §5 "guarded by one reentrant mutex"); here the mutex is
// local because breakpoints has no dependency on the kernel package, and
// the kernel takes its own lock around calls into this type.
type Tables struct {
	mu sync.Mutex

	lineBreakpoints map[string]map[int]*LineBreakpoint // source -> line -> bp
	funcBreakpoints map[string]*FunctionBreakpoint
	dataBreakpoints map[string]*DataBreakpoint
	exceptionFlags  ExceptionFlags

	// dataWatchNames is the set of bare variable names being watched,
	// derived from dataBreakpoints' VarName fields, mirroring the Python
	// original's separate data_watch_names set used for the cheap
	// per-frame-locals scan before consulting metadata.
	dataWatchNames map[string]struct{}

	lastLocalsByFrame map[frameKey]map[string]any
	lastGlobalWatch   map[string]any

	threadSteps map[int64]*threadStepState
}

type frameKey struct {
	threadID int64
	frameID  int64
}

// threadStepState is one thread's one-shot stepping/entry flags, read and
// cleared by Resolver.OnLine, armed by Resolver.ArmStepping/ArmStopOnEntry.
type threadStepState struct {
	stepping    bool
	stopOnEntry bool
}

// NewTables constructs an empty set of breakpoint tables.
func NewTables() *Tables {
	return &Tables{
		lineBreakpoints:   make(map[string]map[int]*LineBreakpoint),
		funcBreakpoints:   make(map[string]*FunctionBreakpoint),
		dataBreakpoints:   make(map[string]*DataBreakpoint),
		dataWatchNames:    make(map[string]struct{}),
		lastLocalsByFrame: make(map[frameKey]map[string]any),
		lastGlobalWatch:   make(map[string]any),
	}
}

// SetLineBreakpoints fully replaces the table for source (spec §3 invariant:
// "fully replaced by each setBreakpoints request"), returning the new
// entries in the order given so the caller can report per-entry Verified.
func (t *Tables) SetLineBreakpoints(source string, specs []LineBreakpoint) []*LineBreakpoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	table := make(map[int]*LineBreakpoint, len(specs))
	out := make([]*LineBreakpoint, 0, len(specs))
	for _, spec := range specs {
		bp := spec
		bp.Verified = true
		table[bp.Line] = &bp
		out = append(out, &bp)
	}
	t.lineBreakpoints[source] = table
	return out
}

// LineBreakpointAt returns the breakpoint for (source, line), if any.
func (t *Tables) LineBreakpointAt(source string, line int) *LineBreakpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	table := t.lineBreakpoints[source]
	if table == nil {
		return nil
	}
	return table[line]
}

// SetFunctionBreakpoints fully replaces the function-breakpoint table.
func (t *Tables) SetFunctionBreakpoints(specs []FunctionBreakpoint) []*FunctionBreakpoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	table := make(map[string]*FunctionBreakpoint, len(specs))
	out := make([]*FunctionBreakpoint, 0, len(specs))
	for _, spec := range specs {
		bp := spec
		table[bp.Name] = &bp
		out = append(out, &bp)
	}
	t.funcBreakpoints = table
	return out
}

// FunctionBreakpointFor returns the first matching entry among candidates,
// in the precedence order the caller supplies (spec §4.4: bare name,
// module.func, Class.func, module.Class.func).
func (t *Tables) FunctionBreakpointFor(candidates []string) *FunctionBreakpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, name := range candidates {
		if bp, ok := t.funcBreakpoints[name]; ok {
			return bp
		}
	}
	return nil
}

// SetDataBreakpoints fully replaces the data-watch table.
func (t *Tables) SetDataBreakpoints(specs []DataBreakpoint) []*DataBreakpoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	table := make(map[string]*DataBreakpoint, len(specs))
	names := make(map[string]struct{}, len(specs))
	out := make([]*DataBreakpoint, 0, len(specs))
	for _, spec := range specs {
		bp := spec
		table[bp.DataID] = &bp
		names[bp.VarName] = struct{}{}
		out = append(out, &bp)
	}
	t.dataBreakpoints = table
	t.dataWatchNames = names
	return out
}

// DataBreakpointsFor returns every watch entry for a given variable name.
func (t *Tables) DataBreakpointsFor(varName string) []*DataBreakpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*DataBreakpoint
	for _, bp := range t.dataBreakpoints {
		if bp.VarName == varName {
			out = append(out, bp)
		}
	}
	return out
}

// SetExceptionFlags replaces the two exception-breakpoint booleans.
func (t *Tables) SetExceptionFlags(flags ExceptionFlags) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exceptionFlags = flags
}

// ExceptionFlags returns the current exception-breakpoint booleans.
func (t *Tables) ExceptionFlags() ExceptionFlags {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exceptionFlags
}

// ClearForSource removes all line-breakpoint metadata for a source path,
// used when a source is reloaded or its breakpoints are cleared outright.
func (t *Tables) ClearForSource(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lineBreakpoints, source)
}

// WatchedNames returns a snapshot of the variable names currently watched
// by any data breakpoint.
func (t *Tables) WatchedNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.dataWatchNames))
	for n := range t.dataWatchNames {
		out = append(out, n)
	}
	return out
}
