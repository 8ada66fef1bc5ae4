package refimpl

import (
	"github.com/pkg/errors"

	"github.com/c00lrain/plaidml/internal/ir"
)

// Compile lowers a single Contraction into a FlatContraction.
// Every TensorSpec's per-dimension IndexPoly is turned into a linear
// stride contribution: Strides[idx] += coeff * shape.Dims[d].Stride for
// every (coeff, idx) term of dimension d's polynomial, and Offset
// accumulates each dimension's constant term the same way. This is a
// general affine lowering: it is not restricted to one-index-per-
// dimension contractions (it also handles multi-term affine accesses),
// but index *ranges* are still inferred under the simplified
// one-index-per-dimension convention documented on BindProgram.
func (d *Default) Compile(c ir.Contraction, vars ir.Bindings) (*ir.FlatContraction, []ir.Polynomial, error) {
	specs := c.Specs()
	if len(specs) < 2 || len(specs) > 4 {
		return nil, nil, errors.Errorf("UnsupportedContractionArity: contraction has %d tensor specs", len(specs))
	}

	shapes := make([]ir.TensorShape, len(specs))
	for i, s := range specs {
		b, ok := vars[s.ID]
		if !ok {
			return nil, nil, errors.Errorf("ShapeLookupMissing: %s", s.ID)
		}
		shapes[i] = b.Shape
	}

	names := orderedIndexNames(specs)
	ranges := inferRanges(names, specs, shapes)

	access := make([]ir.FlatTensorAccess, len(specs))
	for i, s := range specs {
		access[i] = computeAccess(s, shapes[i], names)
	}

	constraints := make([]ir.FlatConstraint, len(c.Constraints))
	for i, cons := range c.Constraints {
		lhs := make([]int64, len(names))
		for _, t := range cons.LHS {
			lhs[indexOf(names, t.Index)] += t.Coeff
		}
		constraints[i] = ir.FlatConstraint{LHS: lhs, RHS: cons.RHS}
	}

	outPoly := make([]ir.Polynomial, len(c.Output.Indices))
	for d, poly := range c.Output.Indices {
		p := ir.ZeroPolynomial()
		for _, t := range poly.Terms {
			p = p.Add(ir.NewPolynomial(t.Index).Scale(t.Coeff))
		}
		outPoly[d] = p
	}

	inputNames := make([]string, len(specs)-1)
	for i, s := range specs[1:] {
		inputNames[i] = s.ID
	}

	flat := &ir.FlatContraction{
		Names:       names,
		Ranges:      ranges,
		Access:      access,
		InputNames:  inputNames,
		Constraints: constraints,
		AggVec:      1,
		Vector:      1,
	}
	return flat, outPoly, nil
}

// orderedIndexNames lists every index name appearing across specs, in
// first-appearance order (output first, then inputs in TensorSpec order).
func orderedIndexNames(specs []ir.TensorSpec) []string {
	seen := map[string]bool{}
	var names []string
	for _, s := range specs {
		for _, poly := range s.Indices {
			for _, t := range poly.Terms {
				if !seen[t.Index] {
					seen[t.Index] = true
					names = append(names, t.Index)
				}
			}
		}
	}
	return names
}

// inferRanges derives each index's loop range under the
// one-index-per-dimension convention (see collectSimpleRanges); any index
// that never appears alone in a dimension defaults to range 1.
func inferRanges(names []string, specs []ir.TensorSpec, shapes []ir.TensorShape) []int64 {
	simple := map[string]int{}
	for i, s := range specs {
		collectSimpleRanges(s, shapes[i], simple)
	}
	ranges := make([]int64, len(names))
	for i, n := range names {
		if r, ok := simple[n]; ok {
			ranges[i] = int64(r)
		} else {
			ranges[i] = 1
		}
	}
	return ranges
}

// computeAccess lowers one TensorSpec against its resolved shape into a
// FlatTensorAccess over the flat index space named by names.
func computeAccess(spec ir.TensorSpec, shape ir.TensorShape, names []string) ir.FlatTensorAccess {
	strides := make([]int64, len(names))
	var offset int64
	for d, poly := range spec.Indices {
		if d >= len(shape.Dims) {
			continue
		}
		stride := shape.Dims[d].Stride
		offset += poly.Constant * stride
		for _, t := range poly.Terms {
			strides[indexOf(names, t.Index)] += t.Coeff * stride
		}
	}
	return ir.FlatTensorAccess{
		Offset:           offset,
		Strides:          strides,
		GlobalIndexLimit: shape.ElemSize(),
		Type:             shape.Type,
	}
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
