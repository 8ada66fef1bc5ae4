// Package usedef builds the UseDef index: for every variable, who defines
// it and who uses it, in a single pass over the program's ops.
package usedef

import "github.com/c00lrain/plaidml/internal/ir"

// UseDef is a pair of indexes built once per program.
type UseDef struct {
	// OpDefs maps a variable name to the op index that defines it. No
	// entry exists for program inputs.
	OpDefs map[string]int

	// Uses maps a variable name to the set of op indices that consume it
	// as an input.
	Uses map[string]map[int]bool
}

// Build performs a single pass over prog.Ops, recording op_defs[op.output]
// and appending to uses[v] for each input v.
func Build(prog *ir.Program) *UseDef {
	ud := &UseDef{
		OpDefs: make(map[string]int, len(prog.Ops)),
		Uses:   make(map[string]map[int]bool),
	}
	for i, op := range prog.Ops {
		if op.Output != "" {
			ud.OpDefs[op.Output] = i
		}
		for _, in := range op.Inputs {
			set, ok := ud.Uses[in]
			if !ok {
				set = make(map[int]bool)
				ud.Uses[in] = set
			}
			set[i] = true
		}
	}
	return ud
}

// UsesOf returns the (possibly empty) set of op indices that consume v.
func (ud *UseDef) UsesOf(v string) map[int]bool {
	return ud.Uses[v]
}

// DefOf returns the op index that defines v, and whether one exists.
func (ud *UseDef) DefOf(v string) (int, bool) {
	i, ok := ud.OpDefs[v]
	return i, ok
}
