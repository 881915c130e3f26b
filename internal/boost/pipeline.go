// Package boost implements the per-level best-split finder: the streaming
// feature pipeline, its level and tree orchestrators, and the node-stat
// bookkeeping they share. CUDA streams and kernels are modeled by
// pkg/device's simulated stream and atomic-cell primitives; everything
// else here is a direct, precision- and gradient-kind-generic port of the
// algorithm the pipeline runs.
package boost

import (
	"context"
	"math"

	"github.com/gogbdt/gbdt/internal/dataset"
	"github.com/gogbdt/gbdt/pkg/device"
	"github.com/gogbdt/gbdt/pkg/gain"
	"github.com/gogbdt/gbdt/pkg/parallel"
)

// Slot is one PipelineSlot: a simulated stream, a scratch arena, and the
// buffers a feature pass reuses across features and levels within this
// slot's lifetime.
type Slot[F gain.Float, S gain.Stat[F, S]] struct {
	Stream *device.Stream
	Arena  *device.Arena

	segments   []uint32
	positions  []int
	gradSorted []S
	fvalue     []float64
	reducer    LeafReducer[F]
}

// NewSlot allocates a slot with its own simulated stream.
func NewSlot[F gain.Float, S gain.Stat[F, S]](streamBuffer int) *Slot[F, S] {
	return &Slot[F, S]{
		Stream: device.NewStream(streamBuffer),
		Arena:  &device.Arena{},
	}
}

// Close releases the slot's stream goroutine.
func (s *Slot[F, S]) Close() { s.Stream.Close() }

// LeafCandidate is one feature pass's result for a single leaf.
type LeafCandidate[F gain.Float, S gain.Stat[F, S]] struct {
	Found       bool
	Gain        F
	SplitValue  F   // dense only; meaningless when SplitByTrue
	SplitByTrue bool
	Left        S // dense: reconstructed from fvalue/scan index; sparse: the true-side stat
}

// FeatureResult is a feature pass's complete per-leaf output.
type FeatureResult[F gain.Float, S gain.Stat[F, S]] struct {
	FID     int32
	PerLeaf []LeafCandidate[F, S]
}

// Pipeline runs FeaturePipeline passes over a dataset for one gradient
// kind/precision instantiation, cycling overlap_depth slots.
type Pipeline[F gain.Float, S gain.Stat[F, S]] struct {
	Data       *dataset.Matrix
	Slots      []*Slot[F, S]
	NewReducer func(leaves int) LeafReducer[F]
	PoolConfig parallel.PoolConfig
}

// NewPipeline allocates `overlap` slots, each with its own simulated stream.
func NewPipeline[F gain.Float, S gain.Stat[F, S]](data *dataset.Matrix, overlap int, newReducer func(int) LeafReducer[F]) *Pipeline[F, S] {
	slots := make([]*Slot[F, S], overlap)
	for i := range slots {
		slots[i] = NewSlot[F, S](4)
	}
	return &Pipeline[F, S]{
		Data:       data,
		Slots:      slots,
		NewReducer: newReducer,
		PoolConfig: parallel.DefaultPoolConfig(),
	}
}

// Close tears down every slot's stream.
func (p *Pipeline[F, S]) Close() {
	for _, s := range p.Slots {
		s.Close()
	}
}

// LaunchDense queues a dense feature pass on the given slot's stream. It
// does not block; call Synchronize to read PerLeaf results afterward. Steps
// follow the documented stage order: permute row-to-leaf by the feature's
// sort permutation, stable-sort by (leaf, position), permute gradients and
// values into sorted order, exclusive-scan the gradients, then evaluate
// gain per sort-position with an atomic-max-with-index reduction per leaf.
func (p *Pipeline[F, S]) LaunchDense(
	slotIdx int, fid int32, level int,
	rowToLeaf []int32, grad []S,
	parentSum []S, parentCount []int64,
	leaves int, identity S, lambda, minHess F, minLeaf int64,
) *FeatureResult[F, S] {
	slot := p.Slots[slotIdx%len(p.Slots)]
	result := &FeatureResult[F, S]{FID: fid, PerLeaf: make([]LeafCandidate[F, S], leaves)}

	slot.Stream.Launch(func() {
		col := p.Data.Dense[fid]
		n := p.Data.Rows

		if cap(slot.segments) < n {
			slot.segments = make([]uint32, n)
		}
		slot.segments = slot.segments[:n]
		for i, rowIdx := range col.Perm {
			slot.segments[i] = uint32(rowToLeaf[rowIdx])
		}

		order := device.RadixSortStable(slot.segments, level+1)
		segmentsSorted := device.ApplyOrderUint32(slot.segments, order)

		positions := make([]int, n)
		for i, o := range order {
			positions[i] = int(col.Perm[o])
		}
		slot.positions = positions

		if cap(slot.gradSorted) < n {
			slot.gradSorted = make([]S, n)
		}
		slot.gradSorted = slot.gradSorted[:n]
		for i, rowIdx := range positions {
			slot.gradSorted[i] = grad[rowIdx]
		}

		if cap(slot.fvalue) < n+1 {
			slot.fvalue = make([]float64, n+1)
		}
		slot.fvalue = slot.fvalue[:n+1]
		slot.fvalue[0] = math.Inf(-1)
		for i, rowIdx := range positions {
			slot.fvalue[i+1] = col.Values[rowIdx]
		}

		sum := device.ExclusiveScan[F, S](slot.gradSorted, identity)

		if slot.reducer == nil || slot.reducer.Len() != leaves {
			slot.reducer = p.NewReducer(leaves)
		}
		for leaf := 0; leaf < leaves; leaf++ {
			slot.reducer.Reset(leaf)
		}

		indices := make([]int, n)
		for i := range indices {
			indices[i] = i
		}
		_, _ = parallel.ForEach(context.Background(), indices, p.PoolConfig, func(_ context.Context, i int) error {
			if slot.fvalue[i+1] == slot.fvalue[i] {
				return nil
			}
			segment := int(segmentsSorted[i])
			leftSum := sum[i].Sub(parentSum[segment])
			leftCount := int64(i) - parentCount[segment]
			totalSum := parentSum[segment+1].Sub(parentSum[segment])
			totalCount := parentCount[segment+1] - parentCount[segment]

			g, ok := gain.Evaluate[F, S](leftSum, totalSum, leftCount, totalCount, minLeaf, minHess, lambda)
			if ok && g > 0 {
				slot.reducer.Update(segment, g, uint32(i))
			}
			return nil
		})

		for leaf := 0; leaf < leaves; leaf++ {
			bestGain, idx, found := slot.reducer.Result(leaf)
			if !found {
				continue
			}
			if !isFinite(sum[idx]) {
				continue
			}
			result.PerLeaf[leaf] = LeafCandidate[F, S]{
				Found:      true,
				Gain:       bestGain,
				SplitValue: F(0.5 * (slot.fvalue[idx] + slot.fvalue[idx+1])),
				Left:       sum[idx].Sub(parentSum[leaf]),
			}
		}
	})
	return result
}

// LaunchSparse queues a sparse feature pass: routes work through the same
// slot/stream machinery but skips the sort's permutation stage for values,
// since a sparse feature carries no per-row magnitude to permute — only
// membership.
func (p *Pipeline[F, S]) LaunchSparse(
	slotIdx int, fid int32, level int,
	rowToLeaf []int32, grad []S,
	sparseTrueCountByLeaf []int64,
	parentSum []S, parentCount []int64,
	leaves int, identity S, lambda, minHess F, minLeaf int64,
) *FeatureResult[F, S] {
	slot := p.Slots[slotIdx%len(p.Slots)]
	result := &FeatureResult[F, S]{FID: fid, PerLeaf: make([]LeafCandidate[F, S], leaves)}
	sparseIdx := fid - int32(p.Data.ColumnsDense)

	slot.Stream.Launch(func() {
		col := p.Data.Sparse[sparseIdx]
		segments := make([]uint32, len(col.TrueRows))
		for i, r := range col.TrueRows {
			segments[i] = uint32(rowToLeaf[r])
		}
		order := device.RadixSortStable(segments, level+1)
		segmentsSorted := device.ApplyOrderUint32(segments, order)

		gradSorted := make([]S, len(col.TrueRows))
		for i, o := range order {
			gradSorted[i] = grad[col.TrueRows[o]]
		}

		leafSum := make([]S, leaves)
		for i := range leafSum {
			leafSum[i] = identity
		}
		i := 0
		for leaf := 0; leaf < leaves; leaf++ {
			count := sparseTrueCountByLeaf[leaf]
			acc := identity
			for c := int64(0); c < count && i < len(gradSorted); c++ {
				if int(segmentsSorted[i]) != leaf {
					break
				}
				acc = acc.Add(gradSorted[i])
				i++
			}
			leafSum[leaf] = acc
		}

		for leaf := 0; leaf < leaves; leaf++ {
			leftCount := sparseTrueCountByLeaf[leaf]
			totalSum := parentSum[leaf+1].Sub(parentSum[leaf])
			totalCount := parentCount[leaf+1] - parentCount[leaf]
			g, ok := gain.Evaluate[F, S](leafSum[leaf], totalSum, leftCount, totalCount, minLeaf, minHess, lambda)
			if ok && g > 0 {
				result.PerLeaf[leaf] = LeafCandidate[F, S]{
					Found:       true,
					Gain:        g,
					SplitByTrue: true,
					Left:        leafSum[leaf],
				}
			}
		}
	})
	return result
}

// Synchronize blocks until every kernel queued on the given slot has
// completed.
func (p *Pipeline[F, S]) Synchronize(slotIdx int) {
	p.Slots[slotIdx%len(p.Slots)].Stream.Synchronize()
}

func isFinite[F gain.Float, S gain.Stat[F, S]](s S) bool {
	switch v := any(s).(type) {
	case gain.GradOnly[float32]:
		return device.IsFiniteGradOnly(v)
	case gain.GradOnly[float64]:
		return device.IsFiniteGradOnly(v)
	case gain.GradHess[float32]:
		return device.IsFiniteGradHess(v)
	case gain.GradHess[float64]:
		return device.IsFiniteGradHess(v)
	default:
		return true
	}
}
