package compiler

import (
	"fmt"

	"github.com/c00lrain/plaidml/internal/ir"
	"github.com/c00lrain/plaidml/internal/simplify"
)

// simplifierFor returns the simplifier this compile uses. Always the
// intended (non-buggy) semantics in production; tests exercise
// simplify.NewBuggy directly to pin the discriminating regression
// scenario.
func simplifierFor(st *driverState) *simplify.Simplifier {
	return simplify.New()
}

// synthesizeTrivialFlat builds a one-index-per-dimension FlatContraction
// for a pure-elementwise op, shaped like its output: one index per
// dimension, with strides taken straight from the shape.
func synthesizeTrivialFlat(output string, shape ir.TensorShape) *ir.FlatContraction {
	n := len(shape.Dims)
	names := make([]string, n)
	ranges := make([]int64, n)
	strides := make([]int64, n)
	for i, d := range shape.Dims {
		names[i] = fmt.Sprintf("i%d", i)
		ranges[i] = int64(d.Size)
		strides[i] = d.Stride
	}
	return &ir.FlatContraction{
		Names:  names,
		Ranges: ranges,
		Access: []ir.FlatTensorAccess{{
			Strides:          strides,
			GlobalIndexLimit: shape.ElemSize(),
			Type:             shape.Type,
		}},
		GenerateContraction: false,
		Vector:              1,
		AggVec:              1,
	}
}

// identityOutPoly builds the per-dimension output index polynomial for a
// synthesized trivial flat contraction: dimension d is exactly index
// name[d] (coefficient 1), matching synthesizeTrivialFlat's one-index-
// per-dim convention.
func identityOutPoly(flat *ir.FlatContraction) []ir.Polynomial {
	polys := make([]ir.Polynomial, len(flat.Names))
	for i, name := range flat.Names {
		polys[i] = ir.NewPolynomial(name)
	}
	return polys
}
