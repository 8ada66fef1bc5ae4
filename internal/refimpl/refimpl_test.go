package refimpl

import (
	"testing"

	"github.com/c00lrain/plaidml/internal/ir"
)

func term(idx string) ir.IndexPoly {
	return ir.IndexPoly{Terms: []ir.IndexTerm{{Coeff: 1, Index: idx}}}
}

func matmulProgram() (*ir.Program, ir.ShapeMap, ir.ShapeMap) {
	prog := &ir.Program{Ops: []ir.Op{
		{
			Output: "O",
			Tag:    ir.CONTRACTION,
			Inputs: []string{"A", "B"},
			Contraction: ir.Contraction{
				Agg:    "+",
				Output: ir.TensorSpec{ID: "O", Indices: []ir.IndexPoly{term("i"), term("j")}},
				Inputs: []ir.TensorSpec{
					{ID: "A", Indices: []ir.IndexPoly{term("i"), term("k")}},
					{ID: "B", Indices: []ir.IndexPoly{term("k"), term("j")}},
				},
			},
		},
	}}
	inputs := ir.ShapeMap{
		"A": shape(4, 3),
		"B": shape(3, 8),
	}
	outputs := ir.ShapeMap{}
	return prog, inputs, outputs
}

func shape(sizes ...int) ir.TensorShape {
	dims := make([]ir.Dim, len(sizes))
	stride := int64(1)
	for i := len(sizes) - 1; i >= 0; i-- {
		dims[i] = ir.Dim{Size: sizes[i], Stride: stride}
		stride *= int64(sizes[i])
	}
	return ir.TensorShape{Type: "float32", Dims: dims}
}

func TestBindProgramInfersMatmulOutputShape(t *testing.T) {
	prog, inputs, outputs := matmulProgram()
	d := New()
	vars, err := d.BindProgram(prog, inputs, outputs)
	if err != nil {
		t.Fatalf("BindProgram() error: %v", err)
	}
	o, ok := vars["O"]
	if !ok || o.Tag != ir.TENSOR {
		t.Fatal("BindProgram did not bind O to a tensor")
	}
	if len(o.Shape.Dims) != 2 || o.Shape.Dims[0].Size != 4 || o.Shape.Dims[1].Size != 8 {
		t.Errorf("O shape = %+v, want [4 8]", o.Shape.Dims)
	}
}

func TestBindProgramAuthoritativeOutputShape(t *testing.T) {
	prog, inputs, _ := matmulProgram()
	outputs := ir.ShapeMap{"O": shape(4, 8)}
	d := New()
	vars, err := d.BindProgram(prog, inputs, outputs)
	if err != nil {
		t.Fatalf("BindProgram() error: %v", err)
	}
	if got := vars["O"].Shape.ElemSize(); got != 32 {
		t.Errorf("O.ElemSize() = %d, want 32", got)
	}
}

func TestCompileMatmulAccessPattern(t *testing.T) {
	prog, inputs, outputs := matmulProgram()
	d := New()
	vars, err := d.BindProgram(prog, inputs, outputs)
	if err != nil {
		t.Fatalf("BindProgram() error: %v", err)
	}

	flat, outPoly, err := d.Compile(prog.Ops[0].Contraction, vars)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	if len(flat.Names) != 3 {
		t.Fatalf("Names = %v, want 3 indices (i, j, k)", flat.Names)
	}
	idx := map[string]int{}
	for i, n := range flat.Names {
		idx[n] = i
	}
	wantRanges := map[string]int64{"i": 4, "j": 8, "k": 3}
	for name, want := range wantRanges {
		i, ok := idx[name]
		if !ok {
			t.Fatalf("index %q missing from Names %v", name, flat.Names)
		}
		if flat.Ranges[i] != want {
			t.Errorf("range(%s) = %d, want %d", name, flat.Ranges[i], want)
		}
	}

	out := flat.Access[0]
	if out.Strides[idx["i"]] != 8 || out.Strides[idx["j"]] != 1 || out.Strides[idx["k"]] != 0 {
		t.Errorf("output strides = %v (idx=%v), want i:8 j:1 k:0", out.Strides, idx)
	}

	a := flat.Access[1]
	if a.Strides[idx["i"]] != 3 || a.Strides[idx["k"]] != 1 || a.Strides[idx["j"]] != 0 {
		t.Errorf("A strides = %v (idx=%v), want i:3 k:1 j:0", a.Strides, idx)
	}

	if len(outPoly) != 2 {
		t.Fatalf("outPoly has %d entries, want 2", len(outPoly))
	}
	if outPoly[0].Floor("i") != 1 || outPoly[1].Floor("j") != 1 {
		t.Errorf("outPoly = %+v, want coefficient 1 on i and j respectively", outPoly)
	}
}

func TestCompileRejectsBadArity(t *testing.T) {
	d := New()
	c := ir.Contraction{Output: ir.TensorSpec{ID: "O"}}
	_, _, err := d.Compile(c, ir.Bindings{"O": {Tag: ir.TENSOR, Shape: shape(4)}})
	if err == nil {
		t.Error("Compile() with only an output spec should error: fewer than 2 tensor specs")
	}
}

func TestParseReshapeDims(t *testing.T) {
	dims, err := parseReshapeDims([]string{"4", "8"})
	if err != nil {
		t.Fatalf("parseReshapeDims() error: %v", err)
	}
	if len(dims) != 2 || dims[0].Size != 4 || dims[1].Size != 8 {
		t.Errorf("dims = %+v, want [4 8]", dims)
	}

	if _, err := parseReshapeDims([]string{"not-a-number"}); err == nil {
		t.Error("parseReshapeDims() should error on a non-numeric entry")
	}
}

func TestInferFunctionBindingReshape(t *testing.T) {
	prog := &ir.Program{Ops: []ir.Op{
		{Output: "r", Tag: ir.FUNCTION, Function: ir.Function{Fn: "reshape", Params: []string{"32"}}, Inputs: []string{"x"}},
	}}
	d := New()
	vars, err := d.BindProgram(prog, ir.ShapeMap{"x": shape(4, 8)}, ir.ShapeMap{})
	if err != nil {
		t.Fatalf("BindProgram() error: %v", err)
	}
	r := vars["r"]
	if len(r.Shape.Dims) != 1 || r.Shape.Dims[0].Size != 32 {
		t.Errorf("reshape result dims = %+v, want [32]", r.Shape.Dims)
	}
}

func TestInferFunctionBindingInvalidReshapeElemCountMismatch(t *testing.T) {
	prog := &ir.Program{Ops: []ir.Op{
		{Output: "r", Tag: ir.FUNCTION, Function: ir.Function{Fn: "reshape", Params: []string{"31"}}, Inputs: []string{"x"}},
	}}
	d := New()
	_, err := d.BindProgram(prog, ir.ShapeMap{"x": shape(4, 8)}, ir.ShapeMap{})
	if err == nil {
		t.Error("BindProgram() should error: 31 != 32 elements")
	}
}
