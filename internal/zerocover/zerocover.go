// Package zerocover decides whether a contraction's output region is
// written exhaustively and exactly once, in a single pass over its
// accesses.
package zerocover

import (
	"sort"

	"github.com/c00lrain/plaidml/internal/ir"
)

// NeedsZero reports whether flat's output region requires a prelude
// zero/copy kernel before the contraction runs.
func NeedsZero(flat *ir.FlatContraction) bool {
	out := flat.Access[0]

	if out.Offset != 0 {
		return true
	}
	for _, s := range out.Strides {
		if s < 0 {
			return true
		}
	}
	for _, c := range flat.Constraints {
		if isOutputOnly(c, out) {
			return true
		}
	}
	return isContiguousTiling(flat, out)
}

// isOutputOnly reports whether every nonzero-coefficient index of c has a
// zero output stride: such a constraint restricts only output-irrelevant
// indices, so it cannot guarantee full output coverage.
func isOutputOnly(c ir.FlatConstraint, out ir.FlatTensorAccess) bool {
	for i, coeff := range c.LHS {
		if coeff != 0 && out.Strides[i] != 0 {
			return false
		}
	}
	return true
}

type strideRange struct {
	stride int64
	rang   int64
}

// isContiguousTiling sorts the non-zero-stride output indices ascending by
// stride and walks them, requiring each to exactly tile the space covered
// by the indices before it, ending at global_index_limit. It returns
// whether the tiling is *not* contiguous (i.e. NeedsZero should be true).
func isContiguousTiling(flat *ir.FlatContraction, out ir.FlatTensorAccess) bool {
	var pairs []strideRange
	for i, s := range out.Strides {
		if s != 0 {
			pairs = append(pairs, strideRange{stride: s, rang: flat.Ranges[i]})
		}
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].stride < pairs[b].stride })

	cur := int64(1)
	for _, p := range pairs {
		if cur != p.stride {
			return true
		}
		cur *= p.rang
	}
	return cur != out.GlobalIndexLimit
}
