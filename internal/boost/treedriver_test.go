package boost

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogbdt/gbdt/internal/dataset"
	"github.com/gogbdt/gbdt/internal/tree"
	"github.com/gogbdt/gbdt/pkg/gain"
)

func growTestTree(t *testing.T, data *dataset.Matrix, grad []gain.GradOnly[float32], overlap int, seed uint64) *tree.RegTree {
	t.Helper()
	param := TreeParam{
		Depth:            2,
		MinLeafSize:      1,
		Lambda:           0,
		Eta:              1,
		ColsampleByTree:  1,
		ColsampleByLevel: 1,
		LabelsCount:      1,
		Objective:        ObjectiveLinearRegression,
	}
	p := NewPipeline[float32, gain.GradOnly[float32]](data, overlap, func(n int) LeafReducer[float32] {
		return NewFloat32Reducers(n)
	})
	t.Cleanup(p.Close)

	driver := NewTreeDriver[float32, gain.GradOnly[float32]](p, param, gain.GradOnly[float32]{}, rand.New(rand.NewSource(int64(seed))))
	treeColumns := make([]int32, data.Columns())
	for i := range treeColumns {
		treeColumns[i] = int32(i)
	}
	return driver.GrowTree(context.Background(), grad, treeColumns)
}

// S1 at the tree level: a single split level should reproduce the same
// chosen threshold and per-child statistics GrowTree derives from it.
func TestGrowTreeSingleLevelPerfectSplit(t *testing.T) {
	data := newSingleDenseMatrix(t, []float64{1, 2, 3, 4})
	grad := gradOnly32(-1, -1, 1, 1)

	rt := growTestTree(t, data, grad, 1, 7)

	require.Equal(t, int32(0), rt.Nodes[0].FID)
	assert.InDelta(t, 2.5, rt.Nodes[0].Threshold, 1e-6)
	assert.False(t, rt.Nodes[0].SplitByTrue)

	out := make([]float64, 4)
	rt.Predict(data, out)
	// left leaf (rows 0,1) and right leaf (rows 2,3) get distinct weights.
	assert.Equal(t, out[0], out[1])
	assert.Equal(t, out[2], out[3])
	assert.NotEqual(t, out[0], out[2])
}

// S6: identical inputs and seed produce identical trees regardless of
// overlap_depth.
func TestGrowTreeDeterministicAcrossOverlap(t *testing.T) {
	data := newSingleDenseMatrix(t, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	grad := gradOnly32(-3, -2, -1, -0.5, 0.5, 1, 2, 3)

	var trees []*tree.RegTree
	for _, overlap := range []int{1, 2, 4} {
		trees = append(trees, growTestTree(t, data, grad, overlap, 42))
	}

	for i := 1; i < len(trees); i++ {
		assert.Equal(t, trees[0].Nodes, trees[i].Nodes, "tree must be identical across overlap_depth %v", i)
	}
}

func TestGrowTreeDegenerateSplitWhenNoGain(t *testing.T) {
	data := newSingleDenseMatrix(t, []float64{1, 2, 3, 4})
	grad := gradOnly32(1, 1, 1, 1) // equal gradients: every candidate gain is zero

	rt := growTestTree(t, data, grad, 1, 3)

	assert.Equal(t, int32(0), rt.Nodes[0].FID)
	assert.True(t, math.IsInf(rt.Nodes[0].Threshold, 1))
}
