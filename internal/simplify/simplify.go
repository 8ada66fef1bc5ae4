// Package simplify collapses contiguous nested index pairs of a
// FlatContraction into a single index, merging adjacent loop dimensions
// whenever doing so leaves every access's addressing unchanged.
package simplify

import (
	"fmt"

	"github.com/c00lrain/plaidml/internal/ir"
)

// Simplifier drives Once to a fixed point. BuggyIsSafe selects between
// the correct "perfect_match || both_zeros" safety check (the default,
// false) and a degenerate "perfect_match || perfect_match" variant that
// makes the both-zeros disjunct dead code — kept only so a regression
// test can pin the scenario the two variants disagree on.
type Simplifier struct {
	BuggyIsSafe bool
}

// New returns a Simplifier implementing the intended (non-buggy) semantics.
func New() *Simplifier {
	return &Simplifier{}
}

// NewBuggy returns a Simplifier reproducing the original's degenerate
// is_safe check, for regression testing only.
func NewBuggy() *Simplifier {
	return &Simplifier{BuggyIsSafe: true}
}

// Once attempts a single merge and reports whether it changed flat.
// Bails out immediately if flat has any constraints, since a constraint
// may reference an index non-trivially and merging would invalidate it.
func (s *Simplifier) Once(flat *ir.FlatContraction) bool {
	if len(flat.Constraints) > 0 {
		return false
	}
	n := len(flat.Names)
	out := flat.Access[0]
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			si, sj := out.Strides[i], out.Strides[j]
			if si == 0 || sj == 0 {
				continue
			}
			if si != flat.Ranges[j]*sj {
				continue
			}
			if !s.allAccessesSafe(flat, i, j, si, sj) {
				continue
			}
			s.merge(flat, i, j)
			return true
		}
	}
	return false
}

func (s *Simplifier) allAccessesSafe(flat *ir.FlatContraction, i, j int, si, sj int64) bool {
	for a := 1; a < len(flat.Access); a++ {
		if !s.isSafe(flat.Access[a], i, j, si, sj) {
			return false
		}
	}
	for _, pa := range flat.PostOpInputs {
		if !s.isSafe(pa, i, j, si, sj) {
			return false
		}
	}
	return true
}

func (s *Simplifier) isSafe(a ir.FlatTensorAccess, i, j int, si, sj int64) bool {
	perfectMatch := a.Strides[i] == si && a.Strides[j] == sj
	if s.BuggyIsSafe {
		return perfectMatch
	}
	bothZeros := a.Strides[i] == 0 && a.Strides[j] == 0
	return perfectMatch || bothZeros
}

// merge collapses index i into index j: names[j] <- names[i]+"_"+names[j],
// ranges[j] <- ranges[i]*ranges[j], then drops entry i everywhere.
func (s *Simplifier) merge(flat *ir.FlatContraction, i, j int) {
	flat.Names[j] = fmt.Sprintf("%s_%s", flat.Names[i], flat.Names[j])
	flat.Ranges[j] = flat.Ranges[i] * flat.Ranges[j]

	flat.Names = append(flat.Names[:i], flat.Names[i+1:]...)
	flat.Ranges = append(flat.Ranges[:i], flat.Ranges[i+1:]...)

	for a := range flat.Access {
		acc := &flat.Access[a]
		acc.Strides = append(acc.Strides[:i], acc.Strides[i+1:]...)
	}
	for k, pa := range flat.PostOpInputs {
		pa.Strides = append(pa.Strides[:i], pa.Strides[i+1:]...)
		flat.PostOpInputs[k] = pa
	}
}

// Run drives Once to a fixed point: repeat until a pass makes no further
// change. Worst case O(n^3) in the number of indices.
func (s *Simplifier) Run(flat *ir.FlatContraction) {
	for s.Once(flat) {
	}
}
