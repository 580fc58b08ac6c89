// Package testtransform is a trivial probe.Transformer that exists only to
// exercise the validator and cache in tests: no real bytecode format ships
// in this repository (spec.md treats the instruction-stream transformer as
// an external collaborator). It simulates "LOAD_CONST <line>; CALL
// <probe>; POP" by appending three placeholder bytes per requested line
// and growing the reported stack size by one per probe call, which is
// exactly the shape the safety validator is meant to catch when it grows
// too large.
package testtransform

import (
	"github.com/lunadap/lunadap/internal/adapter/probe"
)

// Transformer is the trivial stand-in transformer.
type Transformer struct {
	// StackCostPerProbe lets tests drive the validator's stack-delta check
	// past MaxStackSizeDelta by setting this above 1.
	StackCostPerProbe int
}

// Transform implements probe.Transformer.
func (t Transformer) Transform(original probe.CodeUnit, lines []int) (probe.CodeUnit, error) {
	cost := t.StackCostPerProbe
	if cost == 0 {
		cost = 1
	}

	out := append([]byte(nil), original.Instructions...)
	for _, line := range lines {
		out = append(out, byte(line), 0xCA, 0x11) // LOAD_CONST <line>; CALL <probe>; POP stand-in
	}

	return probe.CodeUnit{
		Instructions: out,
		StackSize:    original.StackSize + cost*len(lines),
	}, nil
}
