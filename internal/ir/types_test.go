package ir

import "testing"

func TestTensorShapeElemAndByteSize(t *testing.T) {
	s := TensorShape{Type: "float32", Dims: []Dim{{Size: 4, Stride: 8}, {Size: 8, Stride: 1}}}
	if got := s.ElemSize(); got != 32 {
		t.Errorf("ElemSize() = %d, want 32", got)
	}
	if got := s.ByteSize(); got != 128 {
		t.Errorf("ByteSize() = %d, want 128", got)
	}
}

func TestTensorShapeByteSizeByType(t *testing.T) {
	cases := []struct {
		typ  string
		want int64
	}{
		{"uint8", 1},
		{"float16", 2},
		{"float32", 4},
		{"float64", 8},
		{"unknown_type", 4},
	}
	for _, c := range cases {
		s := TensorShape{Type: c.typ, Dims: []Dim{{Size: 2}}}
		if got := s.ByteSize(); got != 2*c.want {
			t.Errorf("ByteSize(%s) = %d, want %d", c.typ, got, 2*c.want)
		}
	}
}

func TestFunctionIsSpecial(t *testing.T) {
	if !(Function{Fn: "prng_step"}).IsSpecial() {
		t.Error("prng_step should be special")
	}
	if !(Function{Fn: "gather"}).IsSpecial() {
		t.Error("gather should be special")
	}
	if (Function{Fn: "relu"}).IsSpecial() {
		t.Error("relu should not be special")
	}
}

func TestContractionSpecsOutputFirst(t *testing.T) {
	c := Contraction{
		Output: TensorSpec{ID: "O"},
		Inputs: []TensorSpec{{ID: "A"}, {ID: "B"}},
	}
	specs := c.Specs()
	if len(specs) != 3 || specs[0].ID != "O" || specs[1].ID != "A" || specs[2].ID != "B" {
		t.Errorf("Specs() = %+v, want [O A B]", specs)
	}
}

func TestFlatContractionKeyStringStable(t *testing.T) {
	f1 := &FlatContraction{
		Names:  []string{"i", "j"},
		Ranges: []int64{4, 8},
		Access: []FlatTensorAccess{{Offset: 0, Strides: []int64{8, 1}}},
	}
	f2 := &FlatContraction{
		Names:  []string{"i", "j"},
		Ranges: []int64{4, 8},
		Access: []FlatTensorAccess{{Offset: 0, Strides: []int64{8, 1}}},
	}
	if f1.KeyString() != f2.KeyString() {
		t.Errorf("KeyString() not stable across equal FlatContractions: %q != %q", f1.KeyString(), f2.KeyString())
	}

	f3 := &FlatContraction{
		Names:  []string{"i", "j"},
		Ranges: []int64{4, 9},
		Access: []FlatTensorAccess{{Offset: 0, Strides: []int64{8, 1}}},
	}
	if f1.KeyString() == f3.KeyString() {
		t.Error("KeyString() should differ when ranges differ")
	}
}
