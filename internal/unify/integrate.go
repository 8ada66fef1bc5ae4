package unify

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/c00lrain/plaidml/internal/ir"
	"github.com/c00lrain/plaidml/internal/usedef"
)

// IntegrateInput bundles the context Integrate needs: the fusable set U,
// the root's place in the program, and the in-progress flat contraction
// it is folding post-ops into. Boundary-input bookkeeping (iterate
// boundary tensors, branch on role, accumulate) follows the same
// candidate-loop shape used elsewhere in this planner.
type IntegrateInput struct {
	U           map[int]bool
	RootOpIdx   int
	Prog        *ir.Program
	UseDef      *usedef.UseDef
	Vars        ir.Bindings
	VarRewrites *ir.VarRewrites
	Flat        *ir.FlatContraction

	// OutPoly is the contraction's output index polynomial, one entry per
	// output tensor dimension, as emitted by Compile.
	OutPoly []ir.Polynomial

	// KernelInputs names tensors already registered as inputs of this
	// kernel's post-ops; mutated as new boundary inputs are discovered. The
	// contraction's own operands are not part of it (they live in
	// Flat.InputNames).
	KernelInputs map[string]bool

	ProgramInputs  map[string]bool
	ProgramOutputs map[string]bool

	// Computed is mutated: every op in U is marked computed once the walk
	// commits.
	Computed map[int]bool
}

// Integrate walks U in program order, elides reshape/ident where safe,
// rewrites inputs through a local rewrite map, folds the remaining ops
// into Flat.PostOps, derives Flat.PostOpInputs strides, computes
// Flat.KernelOutputs, and returns the war_safe_reads set.
func Integrate(in IntegrateInput) (map[string]bool, error) {
	localRewrites := map[string]string{}
	warSafeReads := map[string]bool{}
	postContractionInputs := map[string]bool{}

	lookupLocal := func(name string) string {
		for {
			next, ok := localRewrites[name]
			if !ok {
				return name
			}
			name = next
		}
	}

	ordered := make([]int, 0, len(in.U))
	for i := range in.U {
		ordered = append(ordered, i)
	}
	sort.Ints(ordered)

	for _, opIdx := range ordered {
		op := in.Prog.Ops[opIdx]

		// Elision applies to any reshape/ident in U, including the root
		// itself: ConnectedComponents seeds U with rootOpIdx, and a root
		// op can be a reshape of a raw program input with no producing
		// contraction (dispatched via dispatchElementwise).
		if op.Function.Fn == "reshape" || op.Function.Fn == "ident" {
			elided, err := tryElideReshape(in, opIdx, op, lookupLocal, localRewrites)
			if err != nil {
				return nil, err
			}
			if elided {
				continue
			}
		}

		// The root itself is already represented by in.Flat; it never
		// becomes one of its own post-ops, but its output still needs the
		// same KernelOutputs bookkeeping as every other op in U.
		if opIdx != in.RootOpIdx {
			newOp := ir.Op{
				Output:   op.Output,
				Tag:      op.Tag,
				Function: op.Function,
				Inputs:   make([]string, len(op.Inputs)),
			}
			for i, rawIn := range op.Inputs {
				rewritten := lookupLocal(rawIn)
				newOp.Inputs[i] = rewritten

				definer, isOp := in.UseDef.DefOf(rawIn)
				definedInU := isOp && in.U[definer]
				if definedInU {
					continue
				}
				if b, ok := in.Vars[rewritten]; ok && b.Tag == ir.TENSOR {
					warSafeReads[rewritten] = true
					postContractionInputs[rewritten] = true
				}
			}
			in.Flat.PostOps = append(in.Flat.PostOps, newOp)
		}

		rewrittenOut := lookupLocal(op.Output)
		isKernelInput := in.KernelInputs[rewrittenOut]
		consumedOutsideU := false
		for c := range in.UseDef.UsesOf(op.Output) {
			if !in.U[c] {
				consumedOutsideU = true
				break
			}
		}
		if !isKernelInput && (in.ProgramOutputs[op.Output] || consumedOutsideU) {
			in.Flat.KernelOutputs = append(in.Flat.KernelOutputs, rewrittenOut)
		}
	}

	if in.Flat.PostOpInputs == nil {
		in.Flat.PostOpInputs = map[string]ir.FlatTensorAccess{}
	}
	outShape := in.Vars[in.Flat.Output].Shape
	for name := range postContractionInputs {
		if in.KernelInputs[name] {
			continue
		}
		access, err := derivePostOpAccess(name, in.Vars, outShape, in.OutPoly, in.Flat)
		if err != nil {
			return nil, err
		}
		in.Flat.PostOpInputs[name] = access
		in.KernelInputs[name] = true
	}

	for i := range in.U {
		in.Computed[i] = true
	}

	return warSafeReads, nil
}

// tryElideReshape tries to elide a reshape/ident op by recording a
// rewrite instead of a PostOp. It returns true when the op is elided.
func tryElideReshape(in IntegrateInput, opIdx int, op ir.Op, lookupLocal func(string) string, localRewrites map[string]string) (bool, error) {
	inName := op.Inputs[0]
	inBinding, ok := in.Vars[inName]
	if !ok {
		return false, errors.Errorf("ShapeLookupMissing: %s", inName)
	}
	if inBinding.Tag != ir.TENSOR {
		return false, errors.Errorf("ReshapeNonTensor: %s is not a tensor", inName)
	}
	outBinding, ok := in.Vars[op.Output]
	if !ok {
		return false, errors.Errorf("ShapeLookupMissing: %s", op.Output)
	}
	if inBinding.Shape.ByteSize() != outBinding.Shape.ByteSize() ||
		inBinding.Shape.ElemSize() != outBinding.Shape.ElemSize() {
		return false, errors.Errorf("InvalidReshape: %s -> %s size mismatch", inName, op.Output)
	}

	resolved := in.VarRewrites.Lookup(lookupLocal(inName))
	elide := !in.ProgramOutputs[op.Output] || (!in.ProgramOutputs[resolved] && !in.ProgramInputs[resolved])
	if !elide {
		return false, nil
	}
	in.VarRewrites.Insert(op.Output, resolved)
	localRewrites[op.Output] = resolved
	in.Computed[opIdx] = true
	return true, nil
}

// derivePostOpAccess derives a post-op-input's FlatTensorAccess: right-
// align its shape against the output index polynomials, accumulating
// stride*polynomial contributions for each non-broadcast dimension, then
// floor each index symbol's coefficient.
func derivePostOpAccess(name string, vars ir.Bindings, outShape ir.TensorShape, outPoly []ir.Polynomial, flat *ir.FlatContraction) (ir.FlatTensorAccess, error) {
	b, ok := vars[name]
	if !ok {
		return ir.FlatTensorAccess{}, errors.Errorf("ShapeLookupMissing: %s", name)
	}
	shape := b.Shape
	if shape.ElemSize() == outShape.ElemSize() {
		shape = outShape
	}

	p := ir.ZeroPolynomial()
	offset := len(outPoly) - len(shape.Dims)
	for i, d := range shape.Dims {
		od := outShape.Dims[offset+i]
		if d.Size != 1 || od.Size == 1 {
			p = p.Add(outPoly[offset+i].Scale(d.Stride))
		}
	}

	strides := make([]int64, len(flat.Names))
	for i, idx := range flat.Names {
		strides[i] = p.Floor(idx)
	}

	return ir.FlatTensorAccess{
		Strides:          strides,
		GlobalIndexLimit: shape.ElemSize(),
		Type:             shape.Type,
	}, nil
}
