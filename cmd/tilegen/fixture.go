package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/c00lrain/plaidml/internal/ir"
)

// fixture is the CLI-only, JSON-friendly wire format for a compile job.
// The core planner never touches disk itself; this schema exists solely
// so tilegen can load a job and drive the planner from it.
type fixture struct {
	Inputs     map[string]tensorShapeJSON `json:"inputs"`
	Outputs    map[string]tensorShapeJSON `json:"outputs"`
	Ops        []opJSON                   `json:"ops"`
	TileTrials int                        `json:"tile_trials"`
}

type tensorShapeJSON struct {
	Type string `json:"type"`
	Dims []int  `json:"dims"`
}

type opJSON struct {
	Output      string          `json:"output"`
	Tag         string          `json:"tag"` // "contraction" | "function" | "constant"
	Inputs      []string        `json:"inputs"`
	Contraction *contractionJSON `json:"contraction,omitempty"`
	Fn          string          `json:"fn,omitempty"`
	ConstantVal interface{}     `json:"constant_val,omitempty"`
}

type contractionJSON struct {
	Agg         string             `json:"agg"`
	Output      tensorSpecJSON     `json:"output"`
	Inputs      []tensorSpecJSON   `json:"inputs"`
	UseDefault  string             `json:"use_default,omitempty"`
	Constraints []constraintJSON   `json:"constraints,omitempty"`
}

type tensorSpecJSON struct {
	ID      string          `json:"id"`
	Indices [][]indexTermJSON `json:"indices"`
}

type indexTermJSON struct {
	Coeff    int64  `json:"coeff"`
	Index    string `json:"index,omitempty"`
	Constant int64  `json:"constant,omitempty"`
}

type constraintJSON struct {
	LHS []indexTermJSON `json:"lhs"`
	RHS int64           `json:"rhs"`
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading fixture file")
	}
	var f fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parsing fixture JSON")
	}
	return &f, nil
}

func (f *fixture) toShapeMap(m map[string]tensorShapeJSON) ir.ShapeMap {
	out := ir.ShapeMap{}
	for name, s := range m {
		out[name] = toTensorShape(s)
	}
	return out
}

func toTensorShape(s tensorShapeJSON) ir.TensorShape {
	dims := make([]ir.Dim, len(s.Dims))
	stride := int64(1)
	for i := len(s.Dims) - 1; i >= 0; i-- {
		dims[i] = ir.Dim{Size: s.Dims[i], Stride: stride}
		stride *= int64(s.Dims[i])
	}
	return ir.TensorShape{Type: s.Type, Dims: dims}
}

func toIndexPoly(terms []indexTermJSON) ir.IndexPoly {
	var poly ir.IndexPoly
	for _, t := range terms {
		if t.Index == "" {
			poly.Constant += t.Constant
			continue
		}
		poly.Terms = append(poly.Terms, ir.IndexTerm{Coeff: t.Coeff, Index: t.Index})
	}
	return poly
}

func toTensorSpec(s tensorSpecJSON) ir.TensorSpec {
	spec := ir.TensorSpec{ID: s.ID, Indices: make([]ir.IndexPoly, len(s.Indices))}
	for i, terms := range s.Indices {
		spec.Indices[i] = toIndexPoly(terms)
	}
	return spec
}

func (f *fixture) toProgram() (*ir.Program, error) {
	prog := &ir.Program{Ops: make([]ir.Op, len(f.Ops))}
	for i, oj := range f.Ops {
		op := ir.Op{Output: oj.Output, Inputs: oj.Inputs, ConstantVal: oj.ConstantVal}
		switch oj.Tag {
		case "contraction":
			op.Tag = ir.CONTRACTION
			if oj.Contraction == nil {
				return nil, errors.Errorf("op %q tagged contraction has no contraction body", oj.Output)
			}
			cj := oj.Contraction
			c := ir.Contraction{
				Agg:        cj.Agg,
				Output:     toTensorSpec(cj.Output),
				UseDefault: cj.UseDefault,
			}
			for _, in := range cj.Inputs {
				c.Inputs = append(c.Inputs, toTensorSpec(in))
			}
			for _, cons := range cj.Constraints {
				fc := ir.Constraint{RHS: cons.RHS}
				for _, t := range cons.LHS {
					fc.LHS = append(fc.LHS, ir.IndexTerm{Coeff: t.Coeff, Index: t.Index})
				}
				c.Constraints = append(c.Constraints, fc)
			}
			op.Contraction = c
		case "function":
			op.Tag = ir.FUNCTION
			op.Function = ir.Function{Fn: oj.Fn}
		case "constant":
			op.Tag = ir.CONSTANT
		default:
			return nil, errors.Errorf("op %q has unrecognized tag %q", oj.Output, oj.Tag)
		}
		prog.Ops[i] = op
	}
	return prog, nil
}
