package refimpl

import (
	"sort"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/c00lrain/plaidml/internal/compiler"
	"github.com/c00lrain/plaidml/internal/ir"
)

// tileResult is what the per-shape cache stores: the full ranked
// candidate list for a flat contraction's key, so repeated compiles of
// the same shape skip straight to a cached answer (gemm_autotune.go's
// GemmAutotuner.cache[shape] pattern).
type tileResult struct {
	candidates []compiler.TileCandidate
}

// Vectorize attempts to pack vecSize elements of the contiguous
// (stride-1) output axis into a single vector lane. Returns nil if no
// axis is stride-1 and evenly divisible by vecSize, leaving flat
// unvectorized (the driver then tries the next-smaller vecSize).
func (d *Default) Vectorize(flat *ir.FlatContraction, vecSize int) *ir.FlatContraction {
	if vecSize <= 1 || len(flat.Access) == 0 {
		return nil
	}
	out := flat.Access[0]
	for i, s := range out.Strides {
		if s == 1 && flat.Ranges[i]%int64(vecSize) == 0 {
			clone := cloneFlat(flat)
			clone.Vector = vecSize
			clone.AggVec = vecSize
			return clone
		}
	}
	return nil
}

func cloneFlat(flat *ir.FlatContraction) *ir.FlatContraction {
	clone := *flat
	clone.Names = append([]string(nil), flat.Names...)
	clone.Ranges = append([]int64(nil), flat.Ranges...)
	clone.InputNames = append([]string(nil), flat.InputNames...)
	clone.Access = make([]ir.FlatTensorAccess, len(flat.Access))
	for i, a := range flat.Access {
		clone.Access[i] = a
		clone.Access[i].Strides = append([]int64(nil), a.Strides...)
	}
	clone.Constraints = append([]ir.FlatConstraint(nil), flat.Constraints...)
	clone.PostOps = append([]ir.Op(nil), flat.PostOps...)
	if flat.PostOpInputs != nil {
		clone.PostOpInputs = make(map[string]ir.FlatTensorAccess, len(flat.PostOpInputs))
		for k, v := range flat.PostOpInputs {
			clone.PostOpInputs[k] = v
		}
	}
	clone.KernelOutputs = append([]string(nil), flat.KernelOutputs...)
	return &clone
}

// TileOptimize searches tile sizes per axis (doubling/halving from
// settings.NativeGranularity, across an arbitrary number of axes) and
// ranks them by estimated cost. Results are cached per flat-contraction
// shape.
func (d *Default) TileOptimize(settings ir.HardwareSettings, flat *ir.FlatContraction, onlyOne bool, vars ir.Bindings) []compiler.TileCandidate {
	key := flat.KeyString()

	d.mu.RLock()
	cached, ok := d.cache[key]
	d.mu.RUnlock()
	if !ok {
		candidates := d.searchTiles(settings, flat)
		d.mu.Lock()
		d.cache[key] = tileResult{candidates: candidates}
		d.mu.Unlock()
		cached = d.cache[key]
		if len(cached.candidates) > 0 {
			stats := d.computeTileStats(settings, flat, cached.candidates[0].TileSize)
			klog.V(2).Infof("tile search %s: %d candidates, best score %.1f (%s traffic)",
				key, len(cached.candidates), bestScore(cached.candidates), humanizeBytes(stats.MemRead+stats.MemWrite))
		}
	}

	if onlyOne && len(cached.candidates) > 0 {
		return cached.candidates[:1]
	}
	return cached.candidates
}

func bestScore(cands []compiler.TileCandidate) float64 {
	if len(cands) == 0 {
		return 0
	}
	return cands[0].Score
}

func (d *Default) searchTiles(settings ir.HardwareSettings, flat *ir.FlatContraction) []compiler.TileCandidate {
	n := len(flat.Ranges)
	if n == 0 {
		return nil
	}
	native := settings.NativeGranularity
	if native <= 0 {
		native = 1
	}

	axisCandidates := make([][]int64, n)
	for i, r := range flat.Ranges {
		axisCandidates[i] = dimCandidates(int64(native), r)
	}

	var tiles [][]int64
	var build func(i int, cur []int64)
	build = func(i int, cur []int64) {
		if i == n {
			tiles = append(tiles, append([]int64(nil), cur...))
			return
		}
		for _, v := range axisCandidates[i] {
			build(i+1, append(cur, v))
		}
	}
	build(0, make([]int64, 0, n))

	scored := make([]compiler.TileCandidate, 0, len(tiles))
	for _, t := range tiles {
		stats := d.computeTileStats(settings, flat, t)
		if stats.MemRead+stats.MemWrite > settings.FastMemoryCapacity && settings.FastMemoryCapacity > 0 {
			continue
		}
		score := estimateLatency(settings, stats)
		scored = append(scored, compiler.TileCandidate{Score: score, TileSize: t})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score < scored[j].Score })
	return scored
}

// dimCandidates generates native size, doublings up to the axis range,
// and halvings down to native/8 or 1.
func dimCandidates(native, axisRange int64) []int64 {
	set := map[int64]bool{}
	clamp := func(v int64) int64 {
		if v > axisRange {
			return axisRange
		}
		if v < 1 {
			return 1
		}
		return v
	}
	set[clamp(native)] = true
	set[axisRange] = true
	for v := native * 2; v <= axisRange; v *= 2 {
		set[v] = true
	}
	floor := native / 8
	if floor < 1 {
		floor = 1
	}
	for v := native / 2; v >= floor; v /= 2 {
		set[clamp(v)] = true
	}
	out := make([]int64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ComputeTileStats estimates a tile size's work-group count, inner-loop
// trip count, and memory traffic across an N-axis tile vector.
func (d *Default) ComputeTileStats(settings ir.HardwareSettings, flat *ir.FlatContraction, tile []int64, vars ir.Bindings) compiler.TileStats {
	return d.computeTileStats(settings, flat, tile)
}

func (d *Default) computeTileStats(settings ir.HardwareSettings, flat *ir.FlatContraction, tile []int64) compiler.TileStats {
	var workGroups, innerLoops, trueOps int64 = 1, 1, 1
	for i, r := range flat.Ranges {
		t := int64(1)
		if i < len(tile) && tile[i] > 0 {
			t = tile[i]
		}
		workGroups *= ceilDiv(r, t)
		innerLoops *= t
		trueOps *= r
	}

	var memRead, memWrite int64
	for i, a := range flat.Access {
		bytesPerElem := elemWidthFor(a.Type)
		tileBytes := innerLoops * bytesPerElem
		if i == 0 {
			memWrite += tileBytes * workGroups
		} else {
			memRead += tileBytes * workGroups
		}
	}
	for _, a := range flat.PostOpInputs {
		memRead += innerLoops * elemWidthFor(a.Type) * workGroups
	}

	return compiler.TileStats{
		WorkGroups: workGroups,
		InnerLoops: innerLoops,
		MemRead:    memRead,
		MemWrite:   memWrite,
		TrueOps:    trueOps,
	}
}

func elemWidthFor(t string) int64 {
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

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// estimateLatency converts memory traffic into a latency score using the
// hardware's slow-memory bandwidth: a "bytes over bandwidth" estimate.
func estimateLatency(settings ir.HardwareSettings, stats compiler.TileStats) float64 {
	if settings.SlowMemoryBandwidth <= 0 {
		return float64(stats.MemRead + stats.MemWrite)
	}
	bytes := stats.MemRead + stats.MemWrite
	return float64(bytes) / float64(settings.SlowMemoryBandwidth)
}

// humanizeBytes formats the traffic figure in TileOptimize's diagnostic
// log line; kept here next to the cost model that produces the numbers
// it formats.
func humanizeBytes(n int64) string {
	return humanize.Bytes(uint64(n))
}
