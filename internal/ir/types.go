// Package ir defines the data model shared by every planner stage: the
// source Program and its Bindings, the lowered FlatContraction loop-nest
// form, and the KernelInfo/KernelList the driver loop produces.
package ir

// OpTag distinguishes the three kinds of Op in a Program.
type OpTag int

const (
	CONTRACTION OpTag = iota
	FUNCTION
	CONSTANT
)

func (t OpTag) String() string {
	switch t {
	case CONTRACTION:
		return "CONTRACTION"
	case FUNCTION:
		return "FUNCTION"
	case CONSTANT:
		return "CONSTANT"
	default:
		return "UNKNOWN"
	}
}

// specialFuncs are FUNCTION ops handled by internal/special rather than
// fused as ordinary elementwise operations.
var specialFuncs = map[string]bool{
	"prng_step":  true,
	"prng_state": true,
	"prng_value": true,
	"gather":     true,
	"scatter":    true,
	"shape":      true,
}

// Function is the body of a FUNCTION op: a name plus extra parameters
// (PRNG grouping appends companion variable names here).
type Function struct {
	Fn     string
	Params []string
}

// IsSpecial reports whether this function is dispatched by internal/special
// instead of being eligible for unification.
func (f Function) IsSpecial() bool {
	return specialFuncs[f.Fn]
}

// Op is one operation in a Program. Exactly one of Contraction or Function
// is meaningful, selected by Tag.
type Op struct {
	Output       string
	Tag          OpTag
	Inputs       []string
	Contraction  Contraction
	Function     Function
	ConstantVal  interface{}
}

// Program is an ordered sequence of Ops.
type Program struct {
	Ops []Op
}

// BindingTag distinguishes what a variable resolves to.
type BindingTag int

const (
	TENSOR BindingTag = iota
	CONST
	STRING
	INT
	FLOAT
)

// Dim is one dimension of a TensorShape: its size and the stride (in
// elements) used to compute a linear offset.
type Dim struct {
	Size   int
	Stride int64
}

// TensorShape is a tensor's element type plus its dimensions.
type TensorShape struct {
	Type string
	Dims []Dim
}

// ElemSize is the product of dimension sizes.
func (s TensorShape) ElemSize() int64 {
	var n int64 = 1
	for _, d := range s.Dims {
		n *= int64(d.Size)
	}
	return n
}

// ByteSize is ElemSize times the element width implied by Type. Only a
// handful of element types are modeled; anything else is treated as 4 bytes
// (the common float32/int32 case), since no component needs exact sizes
// for types outside that set.
func (s TensorShape) ByteSize() int64 {
	return s.ElemSize() * elemWidth(s.Type)
}

func elemWidth(t string) int64 {
	switch t {
	case "int8", "uint8", "bool":
		return 1
	case "int16", "uint16", "float16":
		return 2
	case "int64", "uint64", "float64":
		return 8
	default:
		return 4
	}
}

// Binding is what a variable name resolves to.
type Binding struct {
	Tag    BindingTag
	Shape  TensorShape
	Value  interface{}
}

// Bindings maps variable names to their resolved Binding.
type Bindings map[string]Binding

// ShapeMap maps variable names (program inputs/outputs) to their shape.
type ShapeMap map[string]TensorShape

// TensorSpec is one tensor reference inside a Contraction: a variable id
// plus one index polynomial per dimension. Each dimension's polynomial is
// kept in the structural source form IndexPoly (coefficient/index-name
// terms plus a constant, e.g. "i+k" is two terms), not as a Polynomial.
type TensorSpec struct {
	ID      string
	Indices []IndexPoly
}

// IndexPoly is a single index-polynomial term list for one TensorSpec
// dimension: a sum of (coefficient, index-name) terms plus a constant.
type IndexPoly struct {
	Terms    []IndexTerm
	Constant int64
}

// IndexTerm is one coefficient*indexName term of an IndexPoly.
type IndexTerm struct {
	Coeff int64
	Index string
}

// Constraint is a source-level affine inequality `Σ lhs[i]*idx[i] < rhs`,
// expressed over index names rather than positions (resolved to positions
// during Compile).
type Constraint struct {
	LHS []IndexTerm
	RHS int64
}

// Contraction is the source form of a single contraction op: a combining
// operator, an output TensorSpec, input TensorSpecs, and optional
// use_default / constraints.
type Contraction struct {
	Agg         string // "+", "*", "max", "min", "assign" ...
	Output      TensorSpec
	Inputs      []TensorSpec
	UseDefault  string
	Constraints []Constraint
}

// Specs returns output followed by inputs, matching the original's
// `c.specs` (slot 0 = output) used for arity checks.
func (c Contraction) Specs() []TensorSpec {
	specs := make([]TensorSpec, 0, 1+len(c.Inputs))
	specs = append(specs, c.Output)
	specs = append(specs, c.Inputs...)
	return specs
}

// FlatTensorAccess is one positional tensor's access pattern within a
// FlatContraction: slot 0 is always the output.
type FlatTensorAccess struct {
	Offset           int64
	Strides          []int64
	GlobalIndexLimit int64
	Vector           int
	Type             string
}

// FlatConstraint is an affine inequality over the flat contraction's
// indices: Σ LHS[i]*idx[i] < RHS.
type FlatConstraint struct {
	LHS []int64
	RHS int64
}

// FlatContraction is the lowered, loop-nest representation of a single
// contraction (or, for a pure-elementwise op, a synthetic loop-nest shaped
// like the op's output).
type FlatContraction struct {
	Names  []string
	Ranges []int64

	// Access[0] is the output; Access[1:] are the contraction's inputs in
	// TensorSpec order.
	Access []FlatTensorAccess

	// InputNames holds the variable name behind each of Access[1:], in the
	// same order; empty for a synthesized pure-elementwise flat, which has
	// no contraction operands of its own.
	InputNames []string

	Constraints []FlatConstraint

	AggVec int
	Vector int

	// GenerateContraction is false for pure-elementwise pseudo-kernels.
	GenerateContraction bool

	PostOps []Op

	// PostOpInputs maps an extra tensor name to its FlatTensorAccess,
	// expressed in this kernel's own index space.
	PostOpInputs map[string]FlatTensorAccess

	KernelOutputs []string

	// Output is the contraction's own output variable name.
	Output string

	// Agg is carried from the source Contraction for collaborators that
	// need the combining operator (e.g. to emit reduction code); it plays
	// no role in planning itself.
	Agg string
}

// KeyString returns a stable textual key for the flat shape + access
// pattern, suitable as a cache/dedup key (teacher's autotune cache keys on
// shape the same way; see internal/refimpl).
func (f *FlatContraction) KeyString() string {
	var b []byte
	for i, name := range f.Names {
		b = append(b, name...)
		b = append(b, ':')
		b = appendInt(b, f.Ranges[i])
		b = append(b, ',')
	}
	for _, a := range f.Access {
		b = append(b, '|')
		b = appendInt(b, a.Offset)
		for _, s := range a.Strides {
			b = append(b, ';')
			b = appendInt(b, s)
		}
	}
	return string(b)
}

func appendInt(b []byte, v int64) []byte {
	if v < 0 {
		b = append(b, '-')
		v = -v
	}
	if v == 0 {
		return append(b, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(b, tmp[i:]...)
}

// KernelInfo is a FlatContraction after planning, enriched with the
// information the runtime/caller needs to execute or inspect it.
type KernelInfo struct {
	Name    string
	Source  string // placeholder device-source text; see internal/refimpl
	Inputs  []string
	Outputs []string
	Key     string

	TileSize   []int64
	Settings   HardwareSettings
	TotBytes   int64
	TotFlops   int64
	Candidates []KernelInfo

	// WarSafeReads names variables read from outside this kernel's fused
	// region: a concurrency contract for the downstream runtime.
	WarSafeReads map[string]bool

	// Flat is retained for collaborators/tests that need the lowered form
	// a kernel was generated from; it is nil for GenZero/GenCopy/GenSpecial
	// kernels, which have no loop nest of their own.
	Flat *FlatContraction
}

// HardwareSettings describes the target device the cost model plans
// against: a hardware description that includes at least a vector size.
type HardwareSettings struct {
	Name               string `json:"name"`
	VecSize            int    `json:"vec_size"`
	FastMemoryCapacity int64  `json:"fast_memory_capacity"`
	SlowMemoryBandwidth int64 `json:"slow_memory_bandwidth"`
	NativeGranularity  int    `json:"native_granularity"`
	TileTrials         int    `json:"tile_trials"`
}

// KernelList is the full output of a compile.
type KernelList struct {
	Kernels []KernelInfo

	// VarRewrites is the union-find-lite name->name map accumulated across
	// the whole compile.
	VarRewrites *VarRewrites

	Types ShapeMap
}
