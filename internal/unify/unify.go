// Package unify computes, and then integrates, the maximal set of
// downstream elementwise ops fusable into a producer's kernel, using a
// set/frontier DFS over the consumer graph.
package unify

import (
	"github.com/c00lrain/plaidml/internal/ir"
	"github.com/c00lrain/plaidml/internal/usedef"
)

// DifferentSize reports whether a and b have different elem_size, the
// rejection test for a fusion candidate's output shape.
func DifferentSize(a, b ir.TensorShape) bool {
	return a.ElemSize() != b.ElemSize()
}

// BroadcastCompatible reports whether a tensor of shape `input` can be
// read as if it had shape `output`: identical elem_size, or, when input
// has fewer dims, its dims right-align under broadcasting (each input dim
// is 1 or equal to the corresponding output dim).
func BroadcastCompatible(input, output ir.TensorShape) bool {
	if input.ElemSize() == output.ElemSize() {
		return true
	}
	if len(input.Dims) > len(output.Dims) {
		return false
	}
	offset := len(output.Dims) - len(input.Dims)
	for i, d := range input.Dims {
		od := output.Dims[offset+i]
		if d.Size != 1 && d.Size != od.Size {
			return false
		}
	}
	return true
}

// tensorInputs returns the subset of op.Inputs that vars resolves to a
// TENSOR binding (as opposed to a scalar/const reference).
func tensorInputs(op ir.Op, vars ir.Bindings) []string {
	var out []string
	for _, in := range op.Inputs {
		if b, ok := vars[in]; ok && b.Tag == ir.TENSOR {
			out = append(out, in)
		}
	}
	return out
}

// OpCanBeUnified reports whether candidate may join the fused region
// rooted at an op whose output has shape rootShape.
func OpCanBeUnified(candidate ir.Op, rootShape ir.TensorShape, vars ir.Bindings) bool {
	if candidate.Tag != ir.FUNCTION || candidate.Function.IsSpecial() {
		return false
	}
	for _, in := range tensorInputs(candidate, vars) {
		if !BroadcastCompatible(vars[in].Shape, rootShape) {
			return false
		}
	}
	if out, ok := vars[candidate.Output]; ok {
		if DifferentSize(out.Shape, rootShape) {
			return false
		}
	}
	return true
}

// ConnectedComponents computes the maximal fusable set U rooted at
// rootOpIdx: a DFS frontier over consumers, each explored via an atomic
// candidate closure that either commits in full or aborts in full.
func ConnectedComponents(rootOpIdx int, prog *ir.Program, ud *usedef.UseDef, rootShape ir.TensorShape, vars ir.Bindings, computed map[int]bool) map[int]bool {
	U := map[int]bool{rootOpIdx: true}
	frontier := []int{rootOpIdx}

	canUnify := func(i int) bool {
		return OpCanBeUnified(prog.Ops[i], rootShape, vars)
	}

	for len(frontier) > 0 {
		u := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		for c := range ud.UsesOf(prog.Ops[u].Output) {
			if U[c] || computed[c] || !canUnify(c) {
				continue
			}
			closure, ok := candidateClosure(c, rootOpIdx, prog, ud, U, computed, canUnify)
			if !ok {
				continue
			}
			for i := range closure {
				U[i] = true
				frontier = append(frontier, i)
			}
		}
	}
	return U
}

// candidateClosure computes the atomic candidate set C starting from
// start: a DFS over C's tensor inputs, adding any input op i >= rootOpIdx
// not already accounted for, aborting the whole closure if any such op
// fails OpCanBeUnified.
func candidateClosure(start, rootOpIdx int, prog *ir.Program, ud *usedef.UseDef, U, computed map[int]bool, canUnify func(int) bool) (map[int]bool, bool) {
	C := map[int]bool{start: true}
	stack := []int{start}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, in := range prog.Ops[cur].Inputs {
			i, isOp := ud.DefOf(in)
			if !isOp || i < rootOpIdx {
				continue
			}
			if U[i] || C[i] || computed[i] {
				continue
			}
			if prog.Ops[i].Tag == ir.CONSTANT {
				continue
			}
			if !canUnify(i) {
				return nil, false
			}
			C[i] = true
			stack = append(stack, i)
		}
	}
	return C, true
}
