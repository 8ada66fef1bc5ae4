package compiler

import (
	"fmt"
	"strings"
	"time"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/c00lrain/plaidml/internal/ir"
	"github.com/c00lrain/plaidml/internal/special"
	"github.com/c00lrain/plaidml/internal/unify"
	"github.com/c00lrain/plaidml/internal/usedef"
	"github.com/c00lrain/plaidml/internal/zerocover"
)

// GenerateProgram is the primary entry point: it compiles prog into a
// KernelList, dispatching every op through its appropriate pipeline and
// handing codegen off to collab.
//
// Any fatal condition is raised deep in the planner via exceptions.Panicf
// and caught once here, so no partial KernelList is ever returned.
func GenerateProgram(prog *ir.Program, inputs, outputs ir.ShapeMap, settings ir.HardwareSettings, id string, tileTrials int, collab Collaborators) (ir.KernelList, error) {
	var result ir.KernelList
	kid := sanitizeID(id)

	err := exceptions.TryCatch[error](func() {
		result = runCompile(prog, inputs, outputs, settings, kid, tileTrials, collab)
	})
	if err != nil {
		return ir.KernelList{}, err
	}
	return result, nil
}

// sanitizeID prefixes "kernel_" and replaces every non-alphanumeric
// character with '_', so the result is always a valid identifier base.
func sanitizeID(id string) string {
	var b strings.Builder
	b.WriteString("kernel_")
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

type driverState struct {
	prog       *ir.Program
	vars       ir.Bindings
	ud         *usedef.UseDef
	computed   map[int]bool
	varRw      *ir.VarRewrites
	settings   ir.HardwareSettings
	tileTrials int
	collab     Collaborators
	kid        string
	n          int
	kernels    []ir.KernelInfo
	inputSet   map[string]bool
	outputSet  map[string]bool
}

func runCompile(prog *ir.Program, inputs, outputs ir.ShapeMap, settings ir.HardwareSettings, kid string, tileTrials int, collab Collaborators) ir.KernelList {
	vars, err := collab.BindProgram(prog, inputs, outputs)
	if err != nil {
		exceptions.Panicf("%s: %v", ShapeLookupMissing, err)
	}

	st := &driverState{
		prog:       prog,
		vars:       vars,
		ud:         usedef.Build(prog),
		computed:   map[int]bool{},
		varRw:      ir.NewVarRewrites(),
		settings:   settings,
		tileTrials: tileTrials,
		collab:     collab,
		kid:        kid,
		inputSet:   map[string]bool{},
		outputSet:  map[string]bool{},
	}
	for name := range inputs {
		st.inputSet[name] = true
	}
	for name := range outputs {
		st.outputSet[name] = true
	}

	klog.V(1).Infof("compile %s: %d ops, %d inputs, %d outputs", kid, len(prog.Ops), len(inputs), len(outputs))
	start := time.Now()
	lastHeartbeat := start

	for i := range prog.Ops {
		if st.computed[i] {
			continue
		}
		if time.Since(lastHeartbeat) > 2*time.Second {
			klog.V(1).Infof("compile %s: op %d/%d, %d kernels so far", kid, i, len(prog.Ops), len(st.kernels))
			lastHeartbeat = time.Now()
		}
		st.dispatch(i)
	}

	klog.V(1).Infof("compile %s: done in %s, %d kernels", kid, time.Since(start), len(st.kernels))

	types := pruneTypes(vars, st.kernels)
	return ir.KernelList{
		Kernels:     collab.Simplify(st.kernels),
		VarRewrites: st.varRw,
		Types:       types,
	}
}

func (st *driverState) dispatch(i int) {
	op := st.prog.Ops[i]
	switch op.Tag {
	case ir.CONSTANT:
		st.computed[i] = true

	case ir.CONTRACTION:
		st.dispatchContraction(i, op)

	case ir.FUNCTION:
		if op.Function.IsSpecial() {
			st.dispatchSpecial(i, op)
		} else {
			st.dispatchElementwise(i, op)
		}
	}
}

func (st *driverState) dispatchContraction(i int, op ir.Op) {
	specs := op.Contraction.Specs()
	if len(specs) < 2 || len(specs) > 4 {
		exceptions.Panicf("%s: contraction at op %d has %d tensor specs", UnsupportedContractionArity, i, len(specs))
	}

	flat, outPoly, err := st.collab.Compile(op.Contraction, st.vars)
	if err != nil {
		exceptions.Panicf("%v", err)
	}
	flat.GenerateContraction = true
	flat.Output = op.Output
	flat.Agg = op.Contraction.Agg

	if zerocover.NeedsZero(flat) {
		st.emitZeroOrCopy(op, flat)
		st.computed[i] = true
		st.wrapAndEmit(flat, nil)
		return
	}

	outShape := st.vars[op.Output].Shape
	U := unify.ConnectedComponents(i, st.prog, st.ud, outShape, st.vars, st.computed)
	warSafe := st.integrate(U, i, flat, outPoly)
	st.wrapAndEmit(flat, warSafe)
}

func (st *driverState) dispatchElementwise(i int, op ir.Op) {
	outShape := st.vars[op.Output].Shape
	flat := synthesizeTrivialFlat(op.Output, outShape)
	flat.Output = op.Output

	U := unify.ConnectedComponents(i, st.prog, st.ud, outShape, st.vars, st.computed)
	outPoly := identityOutPoly(flat)
	warSafe := st.integrate(U, i, flat, outPoly)
	st.wrapAndEmit(flat, warSafe)
}

func (st *driverState) dispatchSpecial(i int, op ir.Op) {
	switch op.Function.Fn {
	case "prng_step":
		special.HandlePRNGStep(i, st.prog, st.ud, st.computed)
		op = st.prog.Ops[i]
	case "prng_state", "prng_value":
		special.CheckOrphan(op, st.prog, st.ud)
	}
	if st.computed[i] {
		return
	}
	name := st.kernelName()
	kernel := st.collab.GenSpecial(op, st.vars, name, st.settings)
	st.kernels = append(st.kernels, kernel)
	st.computed[i] = true
}

func (st *driverState) integrate(U map[int]bool, rootIdx int, flat *ir.FlatContraction, outPoly []ir.Polynomial) map[string]bool {
	kernelInputs := map[string]bool{}
	warSafe, err := unify.Integrate(unify.IntegrateInput{
		U:              U,
		RootOpIdx:      rootIdx,
		Prog:           st.prog,
		UseDef:         st.ud,
		Vars:           st.vars,
		VarRewrites:    st.varRw,
		Flat:           flat,
		OutPoly:        outPoly,
		KernelInputs:   kernelInputs,
		ProgramInputs:  st.inputSet,
		ProgramOutputs: st.outputSet,
		Computed:       st.computed,
	})
	if err != nil {
		exceptions.Panicf("%v", err)
	}
	return warSafe
}

func (st *driverState) emitZeroOrCopy(op ir.Op, flat *ir.FlatContraction) {
	outShape := st.vars[op.Output].Shape
	name := st.kernelName()
	var kernel ir.KernelInfo
	if op.Contraction.UseDefault != "" {
		kernel = st.collab.GenCopy(outShape, op.Output, op.Contraction.UseDefault, "copy_"+name)
	} else {
		kernel = st.collab.GenZero(outShape, op.Output, "zero_"+name)
	}
	st.kernels = append(st.kernels, kernel)
	flat.KernelOutputs = append(flat.KernelOutputs, op.Output)
}

// wrapAndEmit implements ContractionWrap: simplify to a fixed point,
// vectorize by halving, pick the best tile and up to tileTrials-1
// runner-ups, and emit the resulting KernelInfo(s).
func (st *driverState) wrapAndEmit(flat *ir.FlatContraction, warSafe map[string]bool) {
	if !flat.GenerateContraction && len(flat.PostOps) == 0 {
		return
	}

	simp := simplifierFor(st)
	simp.Run(flat)

	vec := flat
	for vecSize := st.settings.VecSize; vecSize >= 1 && vec.AggVec == 1; vecSize /= 2 {
		if candidate := st.collab.Vectorize(vec, vecSize); candidate != nil {
			vec = candidate
		}
		if vecSize == 1 {
			break
		}
	}

	candidates := st.collab.TileOptimize(st.settings, vec, false, st.vars)
	if len(candidates) == 0 {
		candidates = []TileCandidate{{TileSize: nil}}
	}

	name := st.kernelName()
	inputs := kernelInputNames(vec)
	primary := st.collab.GenContract(name, st.settings, vec, candidates[0].TileSize, st.vars, inputs)
	primary.Flat = vec
	primary.WarSafeReads = warSafe

	maxCandidates := st.tileTrials - 1
	for i := 1; i < len(candidates) && i <= maxCandidates; i++ {
		extra := st.collab.GenContract(fmt.Sprintf("%s_alt%d", name, i), st.settings, vec, candidates[i].TileSize, st.vars, inputs)
		primary.Candidates = append(primary.Candidates, extra)
	}

	st.kernels = append(st.kernels, primary)
}

func (st *driverState) kernelName() string {
	st.n++
	return fmt.Sprintf("%s_%d", st.kid, st.n)
}

func kernelInputNames(flat *ir.FlatContraction) []string {
	seen := make(map[string]bool, len(flat.InputNames)+len(flat.PostOpInputs))
	names := make([]string, 0, len(flat.InputNames)+len(flat.PostOpInputs))
	for _, name := range flat.InputNames {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for name := range flat.PostOpInputs {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func pruneTypes(vars ir.Bindings, kernels []ir.KernelInfo) ir.ShapeMap {
	referenced := map[string]bool{}
	for _, k := range kernels {
		for _, n := range k.Inputs {
			referenced[n] = true
		}
		for _, n := range k.Outputs {
			referenced[n] = true
		}
	}
	types := ir.ShapeMap{}
	for name := range referenced {
		if b, ok := vars[name]; ok && b.Tag == ir.TENSOR {
			types[name] = b.Shape
		}
	}
	return types
}
