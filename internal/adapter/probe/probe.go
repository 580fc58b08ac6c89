// Package probe implements the bytecode probe injector (C9): an optional
// fast path that rewrites a compiled code unit to insert per-line probe
// calls instead of relying on the tracer's per-line hook for every line in
// a hot function. The language-specific rewriter itself is out of scope
// (spec.md treats it as an opaque "instruction-stream transformer" — an
// external collaborator); this package owns the safety validator, the
// cache, and the fallback behavior around whatever transformer is plugged
// in. Grounded on original_source/dapper/_frame_eval/bytecode_safety.py
// (validate_code_object/safe_replace_code) for the two checks, and the
// teacher's workers/pool.go shape (adapted as internal/workers) for
// bounding concurrent validator runs.
package probe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lunadap/lunadap/internal/workers"
)

// CodeUnit is the host-neutral shape a transformer operates on: an opaque
// instruction stream plus the one numeric property the safety validator
// checks, the maximum stack size the interpreter must reserve for it.
type CodeUnit struct {
	Instructions []byte
	StackSize    int
}

// Transformer rewrites original to insert probe call sequences at the
// instruction offsets corresponding to lines (spec.md §4.9: "LOAD_CONST
// <line>; CALL <probe>; POP"). No concrete transformer ships in this
// repository for any real bytecode format; probe/testtransform exists only
// to exercise the validator and cache in tests.
type Transformer interface {
	Transform(original CodeUnit, lines []int) (CodeUnit, error)
}

// MaxStackSizeDelta bounds how much a rewrite may grow the stack relative
// to the original unit (spec.md §4.9 default of 16).
const MaxStackSizeDelta = 16

// NoopTransformer is the Transformer an Injector runs when no concrete
// instruction-stream rewriter has been wired in: it returns original
// unmodified, so Inject never produces a fast-path rewrite, but the
// validator pool, cache, and telemetry around it stay live and exercised
// (in particular, ClearCache on breakpoint-set updates). Swap in a real
// transformer to turn the fast path on.
type NoopTransformer struct{}

// Transform implements Transformer.
func (NoopTransformer) Transform(original CodeUnit, _ []int) (CodeUnit, error) {
	return original, nil
}

// ValidationFailure describes why a rewrite was rejected, reported through
// Telemetry rather than surfaced to the DAP client (spec.md §7: on
// failure, fall back to the original code unit and continue the session).
type ValidationFailure struct {
	Source string
	Name   string
	Reason string
}

// Telemetry receives structured reasons for rejected rewrites. The zero
// value (nil) is valid and simply drops events.
type Telemetry func(ValidationFailure)

// validate runs the two safety checks spec.md §4.9 names: the rewritten
// instruction stream must be non-empty (stand-in for "fully decodable" —
// the concrete decodability check belongs to whichever real transformer is
// plugged in, since only it knows its own instruction encoding), and the
// stack-size delta must be within [0, MaxStackSizeDelta].
func validate(original, modified CodeUnit) []string {
	var errs []string

	if len(modified.Instructions) == 0 {
		errs = append(errs, "instruction stream not decodable: empty output")
	}

	delta := modified.StackSize - original.StackSize
	switch {
	case delta < 0:
		errs = append(errs, fmt.Sprintf("stacksize decreased by %d (original=%d, modified=%d)", -delta, original.StackSize, modified.StackSize))
	case delta > MaxStackSizeDelta:
		errs = append(errs, fmt.Sprintf("stacksize grew by %d which exceeds the maximum allowed delta of %d (original=%d, modified=%d)", delta, MaxStackSizeDelta, original.StackSize, modified.StackSize))
	}

	return errs
}

// cacheKey matches spec.md §4.9's "(source, name, first-line, sorted
// line-set)".
type cacheKey struct {
	source    string
	name      string
	firstLine int
	lineSet   string
}

func newCacheKey(source, name string, firstLine int, lines []int) cacheKey {
	sorted := make([]int, len(lines))
	copy(sorted, lines)
	sort.Ints(sorted)

	parts := make([]string, len(sorted))
	for i, l := range sorted {
		parts[i] = fmt.Sprintf("%d", l)
	}
	return cacheKey{source: source, name: name, firstLine: firstLine, lineSet: strings.Join(parts, ",")}
}

// Injector owns the transformer, the validator-run pool, the rewrite
// cache, and telemetry reporting. One Injector is shared across a session
// (rewrites for different functions can validate concurrently, bounded by
// the pool).
type Injector struct {
	transformer Transformer
	telemetry   Telemetry
	pool        *workers.Pool

	mu    sync.Mutex
	cache map[cacheKey]CodeUnit
}

// New builds an Injector around transformer, running up to
// maxConcurrentJobs validator passes at once.
func New(transformer Transformer, maxConcurrentJobs int, telemetry Telemetry) *Injector {
	return &Injector{
		transformer: transformer,
		telemetry:   telemetry,
		pool:        workers.New(maxConcurrentJobs, 0),
		cache:       make(map[cacheKey]CodeUnit),
	}
}

// Inject returns the fast-path rewrite of original for lines, or original
// unmodified if the cache has nothing yet and validation fails. A cache
// hit never re-runs the transformer or the validator.
func (inj *Injector) Inject(ctx context.Context, source, name string, firstLine int, lines []int, original CodeUnit) CodeUnit {
	key := newCacheKey(source, name, firstLine, lines)

	inj.mu.Lock()
	if cached, ok := inj.cache[key]; ok {
		inj.mu.Unlock()
		return cached
	}
	inj.mu.Unlock()

	result := inj.pool.SubmitAndWait(fmt.Sprintf("%s:%s:%d", source, name, firstLine), func(context.Context) (any, error) {
		return inj.transformer.Transform(original, lines)
	})

	if result.Error != nil {
		inj.report(source, name, fmt.Sprintf("transform failed: %s", result.Error))
		return original
	}

	modified := result.Data.(CodeUnit)
	if errs := validate(original, modified); len(errs) > 0 {
		inj.report(source, name, strings.Join(errs, "; "))
		return original
	}

	inj.mu.Lock()
	inj.cache[key] = modified
	inj.mu.Unlock()
	return modified
}

func (inj *Injector) report(source, name, reason string) {
	if inj.telemetry == nil {
		return
	}
	inj.telemetry(ValidationFailure{Source: source, Name: name, Reason: reason})
}

// ClearCache drops every cached rewrite (spec.md §4.9: "exposes a
// cache-clear operation used on breakpoint-set updates" — a changed line
// set invalidates any rewrite keyed by the old one).
func (inj *Injector) ClearCache() {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.cache = make(map[cacheKey]CodeUnit)
}

// Close releases the Injector's validator pool.
func (inj *Injector) Close() {
	inj.pool.Close()
}
