// Package special dispatches non-fusable ops: gather, scatter, shape,
// and the prng_step/prng_state/prng_value triplet. PRNG handling does a
// forward scan with an ident-rewrite fallback and two hard-error cases,
// expressed as chained if/early-continue control flow with no nested
// handler objects.
package special

import (
	"github.com/gomlx/exceptions"

	"github.com/c00lrain/plaidml/internal/ir"
	"github.com/c00lrain/plaidml/internal/usedef"
)

// HandlePRNGStep processes a prng_step op at opIdx, scanning forward for
// the prng_state and prng_value ops that consume its output. It mutates
// prog in place: a step op gains extra Function.Params naming its
// companion outputs, an unused state op is rewritten to an ident of the
// step's state input, and computed is updated for every op it resolves.
//
// Panics with a PrngMisuse message (caught at the compiler boundary) when
// the step's prng_value is used but no prng_state consumes it. The other
// hard-error case, a prng_state/prng_value with no preceding prng_step,
// is detected by CheckOrphan.
func HandlePRNGStep(opIdx int, prog *ir.Program, ud *usedef.UseDef, computed map[int]bool) {
	step := &prog.Ops[opIdx]

	var stateIdx, valueIdx = -1, -1
	for c := range ud.UsesOf(step.Output) {
		switch prog.Ops[c].Function.Fn {
		case "prng_state":
			stateIdx = c
		case "prng_value":
			valueIdx = c
		}
	}

	switch {
	case stateIdx >= 0 && valueIdx >= 0:
		step.Function.Params = append(step.Function.Params,
			prog.Ops[stateIdx].Output, prog.Ops[valueIdx].Output)
		computed[stateIdx] = true
		computed[valueIdx] = true

	case stateIdx >= 0 && valueIdx < 0:
		// Only the value is unused: rewrite state to a plain ident of the
		// step's state input and let the normal elementwise/unification
		// path handle it.
		stateOp := &prog.Ops[stateIdx]
		stateOp.Function = ir.Function{Fn: "ident"}
		stateOp.Inputs = []string{step.Inputs[0]}
		delete(computed, stateIdx)

	case stateIdx < 0 && valueIdx >= 0:
		exceptions.Panicf("PrngMisuse: prng_step output %q has prng_value but no prng_state", step.Output)

	default:
		// Neither consumer present: nothing to do, the step stands alone.
	}
}

// CheckOrphan panics with PrngMisuse if op (a prng_state or prng_value)
// has no preceding prng_step producing its input.
func CheckOrphan(op ir.Op, prog *ir.Program, ud *usedef.UseDef) {
	if len(op.Inputs) == 0 {
		exceptions.Panicf("PrngMisuse: %s has no input", op.Function.Fn)
	}
	defIdx, ok := ud.DefOf(op.Inputs[0])
	if !ok || prog.Ops[defIdx].Function.Fn != "prng_step" {
		exceptions.Panicf("PrngMisuse: %s %q not preceded by prng_step", op.Function.Fn, op.Output)
	}
}

// IsPRNGGroupMember reports whether fn is one of the three PRNG ops
// handled as a group rather than dispatched individually.
func IsPRNGGroupMember(fn string) bool {
	return fn == "prng_step" || fn == "prng_state" || fn == "prng_value"
}
