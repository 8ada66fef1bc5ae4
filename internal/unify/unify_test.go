package unify

import (
	"testing"

	"github.com/c00lrain/plaidml/internal/ir"
	"github.com/c00lrain/plaidml/internal/usedef"
)

func shape(sizes ...int) ir.TensorShape {
	dims := make([]ir.Dim, len(sizes))
	stride := int64(1)
	for i := len(sizes) - 1; i >= 0; i-- {
		dims[i] = ir.Dim{Size: sizes[i], Stride: stride}
		stride *= int64(sizes[i])
	}
	return ir.TensorShape{Type: "float32", Dims: dims}
}

func TestBroadcastCompatible(t *testing.T) {
	out := shape(4, 8)
	if !BroadcastCompatible(shape(4, 8), out) {
		t.Error("identical shapes should be broadcast compatible")
	}
	if !BroadcastCompatible(shape(8), out) {
		t.Error("a right-aligned 1-D bias of matching trailing dim should be broadcast compatible")
	}
	if BroadcastCompatible(shape(3), out) {
		t.Error("a 1-D vector of mismatched size should not be broadcast compatible")
	}
	if BroadcastCompatible(shape(4, 8, 2), out) {
		t.Error("an input with more dims than output should never be broadcast compatible")
	}
}

func TestOpCanBeUnifiedRejectsSpecialAndContraction(t *testing.T) {
	vars := ir.Bindings{"x": {Tag: ir.TENSOR, Shape: shape(4, 8)}}
	root := shape(4, 8)

	if OpCanBeUnified(ir.Op{Tag: ir.CONTRACTION, Output: "x", Inputs: []string{"x"}}, root, vars) {
		t.Error("a CONTRACTION op should never be unifiable")
	}
	if OpCanBeUnified(ir.Op{Tag: ir.FUNCTION, Function: ir.Function{Fn: "gather"}, Inputs: []string{"x"}}, root, vars) {
		t.Error("a special function (gather) should never be unifiable")
	}
}

func TestOpCanBeUnifiedRejectsSizeMismatch(t *testing.T) {
	vars := ir.Bindings{
		"x": {Tag: ir.TENSOR, Shape: shape(4, 8)},
		"y": {Tag: ir.TENSOR, Shape: shape(16)},
	}
	root := shape(4, 8)
	op := ir.Op{Output: "y", Tag: ir.FUNCTION, Function: ir.Function{Fn: "relu"}, Inputs: []string{"x"}}
	if OpCanBeUnified(op, root, vars) {
		t.Error("an op whose output elem_size differs from the root's should not be unifiable")
	}
}

func TestConnectedComponentsFusesLinearChain(t *testing.T) {
	// op0: contraction producing "mm" (4x8)
	// op1: relu(mm) -> "r"
	// op2: bias_add(r, bias) -> "s" (bias broadcasts)
	prog := &ir.Program{Ops: []ir.Op{
		{Output: "mm", Tag: ir.CONTRACTION},
		{Output: "r", Tag: ir.FUNCTION, Function: ir.Function{Fn: "relu"}, Inputs: []string{"mm"}},
		{Output: "s", Tag: ir.FUNCTION, Function: ir.Function{Fn: "add"}, Inputs: []string{"r", "bias"}},
	}}
	vars := ir.Bindings{
		"mm":   {Tag: ir.TENSOR, Shape: shape(4, 8)},
		"r":    {Tag: ir.TENSOR, Shape: shape(4, 8)},
		"s":    {Tag: ir.TENSOR, Shape: shape(4, 8)},
		"bias": {Tag: ir.TENSOR, Shape: shape(8)},
	}
	ud := usedef.Build(prog)
	root := vars["mm"].Shape

	U := ConnectedComponents(0, prog, ud, root, vars, map[int]bool{})
	for _, i := range []int{0, 1, 2} {
		if !U[i] {
			t.Errorf("ConnectedComponents missing op %d, want the whole relu->add chain fused", i)
		}
	}
}

func TestConnectedComponentsStopsAtIncompatibleOp(t *testing.T) {
	// op1's output shape (16) differs in elem_size from the root (4x8=32),
	// so it must not be fused, and nothing downstream of it either.
	prog := &ir.Program{Ops: []ir.Op{
		{Output: "mm", Tag: ir.CONTRACTION},
		{Output: "bad", Tag: ir.FUNCTION, Function: ir.Function{Fn: "reduce"}, Inputs: []string{"mm"}},
	}}
	vars := ir.Bindings{
		"mm":  {Tag: ir.TENSOR, Shape: shape(4, 8)},
		"bad": {Tag: ir.TENSOR, Shape: shape(16)},
	}
	ud := usedef.Build(prog)
	U := ConnectedComponents(0, prog, ud, vars["mm"].Shape, vars, map[int]bool{})
	if U[1] {
		t.Error("ConnectedComponents fused an op with a size-incompatible output")
	}
}

func TestConnectedComponentsSkipsAlreadyComputed(t *testing.T) {
	prog := &ir.Program{Ops: []ir.Op{
		{Output: "mm", Tag: ir.CONTRACTION},
		{Output: "r", Tag: ir.FUNCTION, Function: ir.Function{Fn: "relu"}, Inputs: []string{"mm"}},
	}}
	vars := ir.Bindings{
		"mm": {Tag: ir.TENSOR, Shape: shape(4, 8)},
		"r":  {Tag: ir.TENSOR, Shape: shape(4, 8)},
	}
	ud := usedef.Build(prog)
	U := ConnectedComponents(0, prog, ud, vars["mm"].Shape, vars, map[int]bool{1: true})
	if U[1] {
		t.Error("ConnectedComponents should not re-fuse an op already marked computed")
	}
}
