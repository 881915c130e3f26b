package boost

import (
	"context"
	"math"
	"math/rand"

	"github.com/gogbdt/gbdt/pkg/gain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/gogbdt/gbdt/internal/boost")

// LevelDriver orchestrates one tree level across its pipeline's slots:
// building parent prefix arrays, sampling the feature subset, pipelining
// feature passes with overlap_depth concurrency, and reducing results into
// the per-leaf best split.
type LevelDriver[F gain.Float, S gain.Stat[F, S]] struct {
	Pipeline *Pipeline[F, S]
	Param    TreeParam
	Identity S
	Lambda   F
	MinHess  F
	MinLeaf  int64
	Rng      *rand.Rand
}

// NewLevelDriver constructs a driver bound to a pipeline and the tree's
// hyperparameters.
func NewLevelDriver[F gain.Float, S gain.Stat[F, S]](p *Pipeline[F, S], param TreeParam, identity S, rng *rand.Rand) *LevelDriver[F, S] {
	return &LevelDriver[F, S]{
		Pipeline: p,
		Param:    param,
		Identity: identity,
		Lambda:   F(param.Lambda),
		MinHess:  F(param.MinChildWeight),
		MinLeaf:  param.MinLeafSize,
		Rng:      rng,
	}
}

// RunLevel executes one tree level and returns the chosen (or degenerate)
// split for every live leaf.
func (d *LevelDriver[F, S]) RunLevel(
	ctx context.Context,
	level int,
	rowToLeaf []int32,
	grad []S,
	leafStats []LeafStat[F, S],
	treeColumns []int32,
	sparseTrueCountByLeaf map[int32][]int64,
) []SplitRecord[F, S] {
	ctx, span := tracer.Start(ctx, "boost.level.run", trace.WithAttributes(
		attribute.Int("gbdt.level", level),
		attribute.Int("gbdt.leaves", len(leafStats)),
	))
	defer span.End()

	leaves := len(leafStats)
	bestSplit := make([]SplitRecord[F, S], leaves)
	for i := range bestSplit {
		bestSplit[i] = SplitRecord[F, S]{FID: -1}
	}

	parentSum := make([]S, leaves+1)
	parentCount := make([]int64, leaves+1)
	parentSum[0] = d.Identity
	for i, ls := range leafStats {
		parentSum[i+1] = parentSum[i].Add(ls.SumGrad)
		parentCount[i+1] = parentCount[i] + ls.Count
	}

	func() {
		_, pipelineSpan := tracer.Start(ctx, "boost.pipeline.run", trace.WithAttributes(
			attribute.Int("gbdt.features", len(treeColumns)),
			attribute.Int("gbdt.overlap", len(d.Pipeline.Slots)),
		))
		defer pipelineSpan.End()

		take := d.sampleColumns(treeColumns)
		overlap := len(d.Pipeline.Slots)
		results := make([]*FeatureResult[F, S], len(take))

		launch := func(j int) {
			fid := take[j]
			if int(fid) < d.Pipeline.Data.ColumnsDense {
				results[j] = d.Pipeline.LaunchDense(j, fid, level, rowToLeaf, grad, parentSum, parentCount, leaves, d.Identity, d.Lambda, d.MinHess, d.MinLeaf)
			} else {
				counts := sparseTrueCountByLeaf[fid]
				results[j] = d.Pipeline.LaunchSparse(j, fid, level, rowToLeaf, grad, counts, parentSum, parentCount, leaves, d.Identity, d.Lambda, d.MinHess, d.MinLeaf)
			}
		}

		for j := 0; j < len(take); j++ {
			if j == 0 {
				for i := 0; i < overlap && i < len(take); i++ {
					launch(i)
				}
			} else if j+overlap-1 < len(take) {
				launch(j + overlap - 1)
			}
			d.Pipeline.Synchronize(j)
			d.reduce(bestSplit, results[j], leaves)
		}
	}()

	for leaf := 0; leaf < leaves; leaf++ {
		if !bestSplit[leaf].Chosen() {
			bestSplit[leaf] = SplitRecord[F, S]{
				FID:        0,
				Gain:       0,
				SplitValue: F(math.Inf(1)),
				Count:      leafStats[leaf].Count,
				SumGrad:    leafStats[leaf].SumGrad,
			}
		}
	}
	return bestSplit
}

// reduce applies the split-selection rule: a feature pass's per-leaf
// candidate replaces the running best only if it strictly improves on the
// recorded gain. Features are reduced in schedule order, not completion
// order, so ties resolve first-writer-wins as the concurrency model
// requires.
func (d *LevelDriver[F, S]) reduce(bestSplit []SplitRecord[F, S], result *FeatureResult[F, S], leaves int) {
	if result == nil {
		return
	}
	for leaf := 0; leaf < leaves; leaf++ {
		c := result.PerLeaf[leaf]
		if !c.Found || c.Gain <= bestSplit[leaf].Gain {
			continue
		}
		bestSplit[leaf] = SplitRecord[F, S]{
			FID:         result.FID,
			Gain:        c.Gain,
			SplitValue:  c.SplitValue,
			SplitByTrue: c.SplitByTrue,
			Count:       c.Left.Count(),
			SumGrad:     c.Left,
		}
	}
}

// sampleColumns picks a random permutation prefix of treeColumns sized to
// colsample_bylevel, implementing the per-level resampling on top of the
// tree's already-sampled colsample_bytree subset.
func (d *LevelDriver[F, S]) sampleColumns(treeColumns []int32) []int32 {
	take := int(d.Param.ColsampleByLevel * float64(len(treeColumns)))
	if take <= 0 {
		take = 1
	}
	if take > len(treeColumns) {
		take = len(treeColumns)
	}
	perm := d.Rng.Perm(len(treeColumns))
	out := make([]int32, take)
	for i := 0; i < take; i++ {
		out[i] = treeColumns[perm[i]]
	}
	return out
}
