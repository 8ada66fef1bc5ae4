// Package refimpl is the reference Collaborators implementation
// (internal/compiler.Collaborators) this planner is built and tested
// against. It performs real shape inference and affine lowering, but
// "codegen" is a placeholder comment string — emitting an actual device
// kernel body is out of scope here.
//
// Tile-granularity search generalizes a fixed 2-D [w,h,k] tile search
// into an N-axis tile vector over FlatContraction.Names, with a
// per-shape result cache (keyed by shape, guarded by a mutex) so repeat
// calls on the same contraction shape skip the search entirely.
package refimpl

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/c00lrain/plaidml/internal/ir"
)

// Default is the reference Collaborators implementation.
type Default struct {
	mu    sync.RWMutex
	cache map[string]tileResult
}

// New returns a ready-to-use reference implementation.
func New() *Default {
	return &Default{cache: make(map[string]tileResult)}
}

// BindProgram resolves a TensorShape for every variable referenced by
// prog, seeding from the caller-supplied inputs/outputs and inferring
// the rest by walking ops in program order. Program-level outputs are
// always authoritative over an inferred shape.
//
// Shape inference for contraction outputs and reshape targets uses a
// simplified one-index-per-dimension convention (see inferRanges): it
// covers every contraction this planner is tested against (matmul,
// reductions, elementwise fusion) but does not solve the general affine
// unification problem a production shape-inference pass would.
func (d *Default) BindProgram(prog *ir.Program, inputs, outputs ir.ShapeMap) (ir.Bindings, error) {
	vars := ir.Bindings{}
	for name, shape := range inputs {
		vars[name] = ir.Binding{Tag: ir.TENSOR, Shape: shape}
	}

	for _, op := range prog.Ops {
		if _, ok := vars[op.Output]; ok {
			continue
		}
		b, err := d.inferBinding(op, vars)
		if err != nil {
			return nil, err
		}
		if shape, ok := outputs[op.Output]; ok {
			b.Shape = shape
		}
		vars[op.Output] = b
	}

	klog.V(2).Infof("bind: resolved %d variables (%d inputs, %d outputs)", len(vars), len(inputs), len(outputs))
	return vars, nil
}

func (d *Default) inferBinding(op ir.Op, vars ir.Bindings) (ir.Binding, error) {
	switch op.Tag {
	case ir.CONSTANT:
		return ir.Binding{Tag: ir.CONST, Value: op.ConstantVal}, nil

	case ir.CONTRACTION:
		shape, err := d.inferContractionShape(op, vars)
		if err != nil {
			return ir.Binding{}, err
		}
		return ir.Binding{Tag: ir.TENSOR, Shape: shape}, nil

	case ir.FUNCTION:
		return d.inferFunctionBinding(op, vars)
	}
	return ir.Binding{}, errors.Errorf("ShapeLookupMissing: unrecognized op tag for %s", op.Output)
}

func (d *Default) inferContractionShape(op ir.Op, vars ir.Bindings) (ir.TensorShape, error) {
	c := op.Contraction
	ranges := map[string]int{}
	elemType := "float32"
	for _, in := range c.Inputs {
		b, ok := vars[in.ID]
		if !ok {
			return ir.TensorShape{}, errors.Errorf("ShapeLookupMissing: %s", in.ID)
		}
		collectSimpleRanges(in, b.Shape, ranges)
		elemType = b.Shape.Type
	}

	dims := make([]ir.Dim, len(c.Output.Indices))
	for d, poly := range c.Output.Indices {
		size := 1
		if len(poly.Terms) == 1 && poly.Terms[0].Coeff == 1 && poly.Constant == 0 {
			if r, ok := ranges[poly.Terms[0].Index]; ok {
				size = r
			}
		}
		dims[d] = ir.Dim{Size: size}
	}
	return rowMajor(dims, elemType), nil
}

func (d *Default) inferFunctionBinding(op ir.Op, vars ir.Bindings) (ir.Binding, error) {
	switch op.Function.Fn {
	case "reshape":
		dims, err := parseReshapeDims(op.Function.Params)
		if err != nil {
			return ir.Binding{}, err
		}
		in, ok := vars[op.Inputs[0]]
		if !ok {
			return ir.Binding{}, errors.Errorf("ShapeLookupMissing: %s", op.Inputs[0])
		}
		if in.Tag != ir.TENSOR {
			return ir.Binding{}, errors.Errorf("ReshapeNonTensor: %s is not a tensor", op.Inputs[0])
		}
		shape := rowMajor(dims, in.Shape.Type)
		if shape.ElemSize() != in.Shape.ElemSize() {
			return ir.Binding{}, errors.Errorf("InvalidReshape: %s -> %s changes element count", op.Inputs[0], op.Output)
		}
		return ir.Binding{Tag: ir.TENSOR, Shape: shape}, nil

	default:
		// ident and every other elementwise/special op: take the widest
		// tensor input's shape (handles plain passthrough and the common
		// broadcast case where one operand is the unbroadcast shape).
		var best ir.TensorShape
		found := false
		for _, name := range op.Inputs {
			b, ok := vars[name]
			if !ok || b.Tag != ir.TENSOR {
				continue
			}
			if !found || b.Shape.ElemSize() > best.ElemSize() {
				best = b.Shape
				found = true
			}
		}
		if !found {
			return ir.Binding{}, errors.Errorf("ShapeLookupMissing: no tensor input to infer shape of %s", op.Output)
		}
		return ir.Binding{Tag: ir.TENSOR, Shape: best}, nil
	}
}

// collectSimpleRanges records idx -> dim.Size for every dimension whose
// IndexPoly is exactly one bare index (coefficient 1, no constant): the
// convention every tested contraction (matmul, reduction, bias/relu
// fusion) follows.
func collectSimpleRanges(spec ir.TensorSpec, shape ir.TensorShape, ranges map[string]int) {
	for d, poly := range spec.Indices {
		if d >= len(shape.Dims) {
			continue
		}
		if len(poly.Terms) == 1 && poly.Terms[0].Coeff == 1 && poly.Constant == 0 {
			idx := poly.Terms[0].Index
			if _, ok := ranges[idx]; !ok {
				ranges[idx] = shape.Dims[d].Size
			}
		}
	}
}

// rowMajor builds a TensorShape from dim sizes with standard row-major
// strides (last dimension stride 1).
func rowMajor(dims []ir.Dim, elemType string) ir.TensorShape {
	stride := int64(1)
	for i := len(dims) - 1; i >= 0; i-- {
		dims[i].Stride = stride
		stride *= int64(dims[i].Size)
	}
	return ir.TensorShape{Type: elemType, Dims: dims}
}

// parseReshapeDims reads a reshape op's target shape out of
// Function.Params: each entry is a decimal dimension size. This is the
// IR-level convention reshape ops use to carry their target shape,
// distinct from prng_step's use of Params for companion variable names.
func parseReshapeDims(params []string) ([]ir.Dim, error) {
	dims := make([]ir.Dim, len(params))
	for i, s := range params {
		var size int
		if _, err := fmt.Sscanf(s, "%d", &size); err != nil || size <= 0 {
			return nil, errors.Errorf("InvalidReshape: bad target dimension %q", s)
		}
		dims[i] = ir.Dim{Size: size}
	}
	return dims, nil
}
