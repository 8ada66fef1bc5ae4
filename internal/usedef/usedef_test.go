package usedef

import (
	"testing"

	"github.com/c00lrain/plaidml/internal/ir"
)

func TestBuildDefAndUses(t *testing.T) {
	prog := &ir.Program{Ops: []ir.Op{
		{Output: "a", Tag: ir.CONTRACTION},
		{Output: "b", Tag: ir.FUNCTION, Inputs: []string{"a"}},
		{Output: "c", Tag: ir.FUNCTION, Inputs: []string{"a", "b"}},
	}}
	ud := Build(prog)

	if idx, ok := ud.DefOf("a"); !ok || idx != 0 {
		t.Errorf("DefOf(a) = (%d, %v), want (0, true)", idx, ok)
	}
	if idx, ok := ud.DefOf("b"); !ok || idx != 1 {
		t.Errorf("DefOf(b) = (%d, %v), want (1, true)", idx, ok)
	}
	if _, ok := ud.DefOf("input_only"); ok {
		t.Error("DefOf(input_only) should report false: it is never defined by an op")
	}

	usesA := ud.UsesOf("a")
	if !usesA[1] || !usesA[2] {
		t.Errorf("UsesOf(a) = %v, want {1, 2}", usesA)
	}
	usesB := ud.UsesOf("b")
	if !usesB[2] || len(usesB) != 1 {
		t.Errorf("UsesOf(b) = %v, want {2}", usesB)
	}
	if got := ud.UsesOf("c"); len(got) != 0 {
		t.Errorf("UsesOf(c) = %v, want empty (c is never consumed)", got)
	}
}
