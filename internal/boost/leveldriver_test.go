package boost

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gogbdt/gbdt/pkg/gain"
)

func gradHess32(gh ...[2]float32) []gain.GradHess[float32] {
	out := make([]gain.GradHess[float32], len(gh))
	for i, v := range gh {
		out[i] = gain.GradHess[float32]{G: v[0], H: v[1], N: 1}
	}
	return out
}

// TestGrowTreeHessianGuardAcceptsNextBest runs the S4 hessian-guard scenario
// end to end through GrowTree/RunLevel instead of as a bare gain.Evaluate
// unit test: row 0 alone has the largest raw gain (its tiny Hessian makes
// Quadratic blow up), but that candidate threshold puts row 0's H=0.01
// alone on one side, below min_hess, so it is rejected. The next threshold
// has zero gain (both sides' gradients cancel) and is also rejected. Only
// the last candidate clears both guards, and GrowTree must fall through to
// it rather than stopping at the first rejection.
func TestGrowTreeHessianGuardAcceptsNextBest(t *testing.T) {
	data := newSingleDenseMatrix(t, []float64{1, 2, 3, 4})
	grad := gradHess32(
		[2]float32{10, 0.01},
		[2]float32{-10, 0.01},
		[2]float32{1, 1},
		[2]float32{-1, 1},
	)

	param := TreeParam{
		Depth:            2,
		MinLeafSize:      1,
		MinChildWeight:   0.5,
		Lambda:           0,
		Eta:              1,
		ColsampleByTree:  1,
		ColsampleByLevel: 1,
		LabelsCount:      1,
		Objective:        ObjectiveLogisticRegression,
	}
	p := NewPipeline[float32, gain.GradHess[float32]](data, 1, func(n int) LeafReducer[float32] {
		return NewFloat32Reducers(n)
	})
	t.Cleanup(p.Close)

	driver := NewTreeDriver[float32, gain.GradHess[float32]](p, param, gain.GradHess[float32]{}, rand.New(rand.NewSource(1)))
	treeColumns := []int32{0}

	rt := driver.GrowTree(context.Background(), grad, treeColumns)

	assert.Equal(t, int32(0), rt.Nodes[0].FID)
	assert.InDelta(t, 3.5, rt.Nodes[0].Threshold, 1e-6)
	assert.False(t, math.IsInf(rt.Nodes[0].Threshold, 1), "a feasible split exists and must be preferred over the degenerate no-split leaf")

	out := make([]float64, 4)
	rt.Predict(data, out)
	assert.Equal(t, out[0], out[1])
	assert.Equal(t, out[1], out[2])
	assert.NotEqual(t, out[2], out[3])
}
