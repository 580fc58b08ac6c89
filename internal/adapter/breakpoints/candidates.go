package breakpoints

import "github.com/lunadap/lunadap/internal/adapter/runtime"

// FunctionCandidateNames returns the set of names tested against the
// function-breakpoint table for a call into frame, in the precedence order
// spec §4.4 fixes: bare name, module.name, Class.name, module.Class.name.
// Mirrors get_function_candidate_names from the original debugger.
func FunctionCandidateNames(frame runtime.Frame, module string) []string {
	funcName := frame.FuncName()
	if funcName == "" {
		return nil
	}

	out := []string{funcName}
	if module != "" {
		out = append(out, module+"."+funcName)
	}
	if class := frame.Receiver(); class != "" {
		out = append(out, class+"."+funcName)
		if module != "" {
			out = append(out, module+"."+class+"."+funcName)
		}
	}
	return out
}
