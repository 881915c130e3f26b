package boost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogbdt/gbdt/internal/dataset"
	"github.com/gogbdt/gbdt/pkg/gain"
)

func newSingleDenseMatrix(t *testing.T, values []float64) *dataset.Matrix {
	t.Helper()
	m := dataset.NewMatrix(len(values), []dataset.DenseColumn{dataset.NewDenseColumn(values)}, nil)
	require.NoError(t, m.Init())
	return m
}

func gradOnly32(v ...float32) []gain.GradOnly[float32] {
	out := make([]gain.GradOnly[float32], len(v))
	for i, g := range v {
		out[i] = gain.GradOnly[float32]{G: g, N: 1}
	}
	return out
}

func newTestPipeline(t *testing.T, data *dataset.Matrix, overlap int) *Pipeline[float32, gain.GradOnly[float32]] {
	t.Helper()
	p := NewPipeline[float32, gain.GradOnly[float32]](data, overlap, func(n int) LeafReducer[float32] {
		return NewFloat32Reducers(n)
	})
	t.Cleanup(p.Close)
	return p
}

// S1: perfect split.
func TestLaunchDensePerfectSplit(t *testing.T) {
	data := newSingleDenseMatrix(t, []float64{1, 2, 3, 4})
	grad := gradOnly32(-1, -1, 1, 1)
	p := newTestPipeline(t, data, 1)

	parentSum := []gain.GradOnly[float32]{{}, {G: 0, N: 4}}
	parentCount := []int64{0, 4}
	rowToLeaf := []int32{0, 0, 0, 0}

	result := p.LaunchDense(0, 0, 0, rowToLeaf, grad, parentSum, parentCount, 1, gain.GradOnly[float32]{}, 0, 0, 1)
	p.Synchronize(0)

	require.True(t, result.PerLeaf[0].Found)
	assert.InDelta(t, 2.5, result.PerLeaf[0].SplitValue, 1e-6)
	assert.Equal(t, int64(2), result.PerLeaf[0].Left.Count())
	assert.InDelta(t, -2, result.PerLeaf[0].Left.GradSum(), 1e-6)
}

// S2: min_leaf guard rejects every candidate.
func TestLaunchDenseMinLeafGuard(t *testing.T) {
	data := newSingleDenseMatrix(t, []float64{1, 2, 3, 4})
	grad := gradOnly32(-1, -1, 1, 1)
	p := newTestPipeline(t, data, 1)

	parentSum := []gain.GradOnly[float32]{{}, {G: 0, N: 4}}
	parentCount := []int64{0, 4}
	rowToLeaf := []int32{0, 0, 0, 0}

	result := p.LaunchDense(0, 0, 0, rowToLeaf, grad, parentSum, parentCount, 1, gain.GradOnly[float32]{}, 0, 0, 3)
	p.Synchronize(0)

	assert.False(t, result.PerLeaf[0].Found)
}

// S3 shape: with equal gradients every candidate ties at gain zero, since
// each side's mean gradient equals the parent's.
func TestLaunchDenseTieYieldsNoGain(t *testing.T) {
	data := newSingleDenseMatrix(t, []float64{1, 2, 3, 4})
	grad := gradOnly32(1, 1, 1, 1)
	p := newTestPipeline(t, data, 1)

	parentSum := []gain.GradOnly[float32]{{}, {G: 4, N: 4}}
	parentCount := []int64{0, 4}
	rowToLeaf := []int32{0, 0, 0, 0}

	result := p.LaunchDense(0, 0, 0, rowToLeaf, grad, parentSum, parentCount, 1, gain.GradOnly[float32]{}, 0, 0, 1)
	p.Synchronize(0)

	assert.False(t, result.PerLeaf[0].Found)
}

// S5: sparse split.
func TestLaunchSparseSplit(t *testing.T) {
	m := dataset.NewMatrix(4, nil, []dataset.SparseColumn{dataset.NewSparseColumn([]int32{0, 2})})
	require.NoError(t, m.Init())

	grad := gradOnly32(-1, 0, -1, 2)
	p := NewPipeline[float32, gain.GradOnly[float32]](m, 1, func(n int) LeafReducer[float32] {
		return NewFloat32Reducers(n)
	})
	t.Cleanup(p.Close)

	parentSum := []gain.GradOnly[float32]{{}, {G: 0, N: 4}}
	parentCount := []int64{0, 4}
	rowToLeaf := []int32{0, 0, 0, 0}

	result := p.LaunchSparse(0, 0, 0, rowToLeaf, grad, []int64{2}, parentSum, parentCount, 1, gain.GradOnly[float32]{}, 0, 0, 1)
	p.Synchronize(0)

	require.True(t, result.PerLeaf[0].Found)
	assert.True(t, result.PerLeaf[0].SplitByTrue)
	assert.InDelta(t, -2, result.PerLeaf[0].Left.GradSum(), 1e-6)
	assert.Equal(t, int64(2), result.PerLeaf[0].Left.Count())
}
