package session

import (
	"sort"

	"github.com/google/go-dap"
)

// LoadedSources enumerates every source path observed in a stack frame so
// far (spec.md names the command without detail; the original's
// test_loaded_sources.py treats it as a thin enumeration over what's been
// seen, which is what this does — there is no separate source registry to
// consult ahead of a stop).
func (s *Session) LoadedSources() []dap.Source {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.sources))
	for p := range s.sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]dap.Source, 0, len(paths))
	for _, p := range paths {
		out = append(out, dap.Source{Path: p, Name: baseName(p)})
	}
	return out
}

// Modules returns the single Lua chunk launched for this session (Lua has
// no separate module system here, so "modules" degenerates to the one
// program file, matching test_modules_feature.py's expectation of a
// one-element list once a debuggee is running).
func (s *Session) Modules() []dap.Module {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.module == "" {
		return nil
	}
	return []dap.Module{{Id: s.module, Name: baseName(s.module), Path: s.module}}
}
