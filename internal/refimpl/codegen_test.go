package refimpl

import (
	"testing"

	"github.com/c00lrain/plaidml/internal/ir"
)

func TestGenZeroAndGenCopy(t *testing.T) {
	d := New()
	s := shape(4, 8)

	z := d.GenZero(s, "out", "kz")
	if z.Name != "kz" || len(z.Outputs) != 1 || z.Outputs[0] != "out" {
		t.Errorf("GenZero() = %+v, want Name kz, Outputs [out]", z)
	}
	if z.TotBytes != s.ByteSize() {
		t.Errorf("GenZero().TotBytes = %d, want %d", z.TotBytes, s.ByteSize())
	}

	c := d.GenCopy(s, "dst", "src", "kc")
	if len(c.Inputs) != 1 || c.Inputs[0] != "src" || len(c.Outputs) != 1 || c.Outputs[0] != "dst" {
		t.Errorf("GenCopy() = %+v, want Inputs [src] Outputs [dst]", c)
	}
	if c.TotBytes != 2*s.ByteSize() {
		t.Errorf("GenCopy().TotBytes = %d, want %d (read + write)", c.TotBytes, 2*s.ByteSize())
	}
}

func TestGenSpecialIncludesPRNGCompanions(t *testing.T) {
	d := New()
	vars := ir.Bindings{
		"seed": {Tag: ir.TENSOR, Shape: shape(4)},
		"st":   {Tag: ir.TENSOR, Shape: shape(4)},
		"val":  {Tag: ir.TENSOR, Shape: shape(4)},
	}
	op := ir.Op{
		Output:   "step",
		Tag:      ir.FUNCTION,
		Function: ir.Function{Fn: "prng_step", Params: []string{"st", "val"}},
		Inputs:   []string{"seed"},
	}
	k := d.GenSpecial(op, vars, "kp", ir.HardwareSettings{})
	if len(k.Outputs) != 3 {
		t.Fatalf("Outputs = %v, want step + 2 companions", k.Outputs)
	}
	found := map[string]bool{}
	for _, o := range k.Outputs {
		found[o] = true
	}
	if !found["step"] || !found["st"] || !found["val"] {
		t.Errorf("Outputs = %v, want [step st val]", k.Outputs)
	}
}

func TestGenContractCarriesFlatAndStats(t *testing.T) {
	d := New()
	flat := simpleFlat()
	flat.Output = "O"
	flat.KernelOutputs = []string{"O"}
	settings := ir.HardwareSettings{}

	k := d.GenContract("k1", settings, flat, []int64{4, 8}, nil, []string{"A", "B"})
	if k.Flat != flat {
		t.Error("GenContract() should retain the FlatContraction it was generated from")
	}
	if len(k.Outputs) != 1 || k.Outputs[0] != "O" {
		t.Errorf("Outputs = %v, want [O]", k.Outputs)
	}
	if len(k.Inputs) != 2 {
		t.Errorf("Inputs = %v, want 2 entries", k.Inputs)
	}
	if k.TotFlops != 32 {
		t.Errorf("TotFlops = %d, want 32 (4*8 true ops)", k.TotFlops)
	}
}

func TestGenContractFallsBackToFlatOutputWhenNoKernelOutputs(t *testing.T) {
	d := New()
	flat := simpleFlat()
	flat.Output = "O"

	k := d.GenContract("k1", ir.HardwareSettings{}, flat, nil, nil, nil)
	if len(k.Outputs) != 1 || k.Outputs[0] != "O" {
		t.Errorf("Outputs = %v, want [O] (falls back to flat.Output)", k.Outputs)
	}
}

func TestSimplifyCanonicalizesOrdering(t *testing.T) {
	d := New()
	kernels := []ir.KernelInfo{
		{Inputs: []string{"b", "a"}, Outputs: []string{"z", "y"}},
	}
	out := d.Simplify(kernels)
	if out[0].Inputs[0] != "a" || out[0].Inputs[1] != "b" {
		t.Errorf("Inputs = %v, want sorted [a b]", out[0].Inputs)
	}
	if out[0].Outputs[0] != "y" || out[0].Outputs[1] != "z" {
		t.Errorf("Outputs = %v, want sorted [y z]", out[0].Outputs)
	}
}
