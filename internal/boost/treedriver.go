package boost

import (
	"context"
	"math/rand"

	"github.com/gogbdt/gbdt/internal/tree"
	"github.com/gogbdt/gbdt/pkg/gain"
	"github.com/gogbdt/gbdt/pkg/parallel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TreeDriver grows one regression tree: it seeds level 0, iterates
// LevelDriver for depth-1 levels propagating node statistics and the
// row-to-leaf map between levels, and finally writes leaf weights.
type TreeDriver[F gain.Float, S gain.Stat[F, S]] struct {
	Pipeline *Pipeline[F, S]
	Param    TreeParam
	Identity S
	Level    *LevelDriver[F, S]
}

// NewTreeDriver builds a driver bound to a pipeline, its hyperparameters,
// and a seeded RNG shared with its LevelDriver for column subsampling.
func NewTreeDriver[F gain.Float, S gain.Stat[F, S]](p *Pipeline[F, S], param TreeParam, identity S, rng *rand.Rand) *TreeDriver[F, S] {
	return &TreeDriver[F, S]{
		Pipeline: p,
		Param:    param,
		Identity: identity,
		Level:    NewLevelDriver(p, param, identity, rng),
	}
}

type sparseCell struct {
	FID  int32
	Leaf int32
}

// GrowTree trains one tree against grad (length data.Rows) restricted to
// the tree-level column subset treeColumns (already filtered by
// colsample_bytree).
func (d *TreeDriver[F, S]) GrowTree(ctx context.Context, grad []S, treeColumns []int32) *tree.RegTree {
	ctx, span := tracer.Start(ctx, "boost.tree.grow", trace.WithAttributes(
		attribute.Int("gbdt.depth", d.Param.Depth),
		attribute.Int("gbdt.rows", d.Pipeline.Data.Rows),
	))
	defer span.End()

	data := d.Pipeline.Data
	rowToLeaf := make([]int32, data.Rows)

	total := d.sumGrad(grad)
	leafStats := []LeafStat[F, S]{{Count: int64(data.Rows), SumGrad: total}}

	sparseCounts := map[int32][]int64{}
	for fid := data.ColumnsDense; fid < data.Columns(); fid++ {
		sparseCounts[int32(fid)] = []int64{int64(data.Sparse[fid-data.ColumnsDense].CountTrue())}
	}

	depth := d.Param.Depth
	rt := tree.NewRegTree(depth)

	for level := 0; level < depth-1; level++ {
		splits := d.Level.RunLevel(ctx, level, rowToLeaf, grad, leafStats, treeColumns, sparseCounts)

		offset := tree.HeapOffset(level)
		for leaf, sp := range splits {
			rt.Nodes[offset+leaf] = tree.Node{
				FID:         sp.FID,
				Threshold:   float64(sp.SplitValue),
				SplitByTrue: sp.SplitByTrue,
			}
		}

		nextStats := make([]LeafStat[F, S], 2*len(leafStats))
		for leaf, sp := range splits {
			parent := leafStats[leaf]
			nextStats[2*leaf] = LeafStat[F, S]{Count: sp.Count, SumGrad: sp.SumGrad}
			nextStats[2*leaf+1] = LeafStat[F, S]{
				Count:   parent.Count - sp.Count,
				SumGrad: parent.SumGrad.Sub(sp.SumGrad),
			}
		}
		leafStats = nextStats

		d.rewriteRowToLeaf(rowToLeaf, splits)
		sparseCounts = d.rebuildSparseStats(rowToLeaf, len(leafStats))
	}

	lastOffset := tree.HeapOffset(depth - 1)
	for leaf, ls := range leafStats {
		w := gain.LeafWeight[F, S](ls.SumGrad, F(d.Param.Lambda), F(d.Param.Alpha))
		rt.Nodes[lastOffset+leaf].Weight = float64(w) * d.Param.Eta
	}
	return rt
}

// sumGrad reduces grad to a single aggregate using per-chunk partials
// merged in a final pass, matching the host-side parallel reduction the
// design calls for when seeding level 0.
func (d *TreeDriver[F, S]) sumGrad(grad []S) S {
	return parallel.ReduceChunks[S, S](context.Background(), grad, d.Pipeline.PoolConfig,
		func(_ context.Context, chunk []S, _ int) S {
			acc := d.Identity
			for _, g := range chunk {
				acc = acc.Add(g)
			}
			return acc
		},
		func(partials []S) S {
			acc := d.Identity
			for _, p := range partials {
				acc = acc.Add(p)
			}
			return acc
		},
	)
}

// rewriteRowToLeaf routes every row to its level's left or right child
// according to the chosen split, resolving sparse membership via the
// row's sorted true-feature list.
func (d *TreeDriver[F, S]) rewriteRowToLeaf(rowToLeaf []int32, splits []SplitRecord[F, S]) {
	data := d.Pipeline.Data
	rows := make([]int, data.Rows)
	for i := range rows {
		rows[i] = i
	}
	_, _ = parallel.ForEach(context.Background(), rows, d.Pipeline.PoolConfig, func(_ context.Context, r int) error {
		leaf := rowToLeaf[r]
		sp := splits[leaf]
		goLeft := true
		switch {
		case sp.SplitByTrue:
			goLeft = data.RowHasSparse(r, sp.FID-int32(data.ColumnsDense))
		case sp.FID >= 0 && int(sp.FID) < data.ColumnsDense:
			goLeft = data.Dense[sp.FID].Values[r] <= float64(sp.SplitValue)
		}
		if goLeft {
			rowToLeaf[r] = 2 * leaf
		} else {
			rowToLeaf[r] = 2*leaf + 1
		}
		return nil
	})
}

// rebuildSparseStats recomputes the per-(feature,leaf) true-row count from
// scratch by scanning every row's sparse membership once, with per-worker
// local tables merged by parallel.AggregateByKey — the host-side "per-thread
// tables, critical-section merge" the design mandates.
func (d *TreeDriver[F, S]) rebuildSparseStats(rowToLeaf []int32, leaves int) map[int32][]int64 {
	data := d.Pipeline.Data
	if data.ColumnsSparse == 0 {
		return map[int32][]int64{}
	}

	type entry struct {
		Row int
		FID int32
	}
	var entries []entry
	for r := 0; r < data.Rows; r++ {
		for _, fid := range data.RowSparseTrue[r] {
			entries = append(entries, entry{Row: r, FID: fid + int32(data.ColumnsDense)})
		}
	}

	counts := parallel.AggregateByKey[entry, sparseCell, int64](
		context.Background(), entries, d.Pipeline.PoolConfig,
		func(e entry) (sparseCell, int64) {
			return sparseCell{FID: e.FID, Leaf: rowToLeaf[e.Row]}, 1
		},
		func(a, b int64) int64 { return a + b },
	)

	result := make(map[int32][]int64, data.ColumnsSparse)
	for fid := data.ColumnsDense; fid < data.Columns(); fid++ {
		result[int32(fid)] = make([]int64, leaves)
	}
	for k, v := range counts {
		result[k.FID][k.Leaf] = v
	}
	return result
}
