// Package compiler drives the whole-program compile: it walks a Program
// op by op, dispatches contractions through the simplifier/zero-cover/
// unification stages, and hands off codegen to a Collaborators bundle.
// Progress is logged when a compile starts and ends, with a periodic
// heartbeat line in between.
package compiler

import "github.com/c00lrain/plaidml/internal/ir"

// TileCandidate is one scored tile-size choice from TileOptimize.
type TileCandidate struct {
	Score    float64
	TileSize []int64
}

// TileStats is ComputeTileStats's result.
type TileStats struct {
	WorkGroups int64
	InnerLoops int64
	MemRead    int64
	MemWrite   int64
	TrueOps    int64
}

// Collaborators bundles the cost-model and codegen interfaces the
// planner depends on. internal/refimpl provides the reference
// implementation this compiler is tested against; a device-backed
// implementation could satisfy the same interface with real codegen.
type Collaborators interface {
	// BindProgram resolves shapes for every variable in prog, possibly
	// refining prog in place to propagate shape inference.
	BindProgram(prog *ir.Program, inputs, outputs ir.ShapeMap) (ir.Bindings, error)

	// Compile lowers a single contraction into a FlatContraction, also
	// returning the output's per-dimension index polynomials.
	Compile(c ir.Contraction, vars ir.Bindings) (*ir.FlatContraction, []ir.Polynomial, error)

	GenZero(shape ir.TensorShape, name, kname string) ir.KernelInfo
	GenCopy(shape ir.TensorShape, dst, src, kname string) ir.KernelInfo
	GenSpecial(op ir.Op, vars ir.Bindings, kname string, settings ir.HardwareSettings) ir.KernelInfo

	Vectorize(flat *ir.FlatContraction, vecSize int) *ir.FlatContraction

	TileOptimize(settings ir.HardwareSettings, flat *ir.FlatContraction, onlyOne bool, vars ir.Bindings) []TileCandidate

	GenContract(kname string, settings ir.HardwareSettings, flat *ir.FlatContraction, tile []int64, vars ir.Bindings, inputs []string) ir.KernelInfo

	ComputeTileStats(settings ir.HardwareSettings, flat *ir.FlatContraction, tile []int64, vars ir.Bindings) TileStats

	Simplify(kernels []ir.KernelInfo) []ir.KernelInfo
}
