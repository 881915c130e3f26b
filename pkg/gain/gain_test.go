package gain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreSymmetricUnderExchange(t *testing.T) {
	total := GradHess[float64]{G: 3.5, H: 9.0, N: 10}
	left := GradHess[float64]{G: 1.2, H: 4.0, N: 4}

	lhs := Score[float64, GradHess[float64]](left, total, 0.1)
	rhs := Score[float64, GradHess[float64]](total.Sub(left), total, 0.1)

	assert.InDelta(t, lhs, rhs, 1e-12)
}

func TestScoreReducesToVarianceReductionForm(t *testing.T) {
	// min_leaf=1, min_hess=0, lambda=0, alpha=0: the evaluator should
	// reduce to Gl^2/Hl + Gr^2/Hr - Gt^2/Ht.
	left := GradHess[float64]{G: 2.0, H: 5.0, N: 3}
	total := GradHess[float64]{G: 6.0, H: 11.0, N: 8}
	right := total.Sub(left)

	want := left.G*left.G/left.H + right.G*right.G/right.H - total.G*total.G/total.H
	got, ok := Evaluate[float64, GradHess[float64]](left, total, left.N, total.N, 1, 0, 0)

	require.True(t, ok)
	assert.InDelta(t, want, got, 1e-9)
}

func TestEvaluateRejectsBelowMinLeaf(t *testing.T) {
	left := GradOnly[float64]{G: -1, N: 1}
	total := GradOnly[float64]{G: 0, N: 4}

	_, ok := Evaluate[float64, GradOnly[float64]](left, total, left.N, total.N, 3, 0, 0)
	assert.False(t, ok)
}

func TestEvaluateRejectsHessianGuard(t *testing.T) {
	left := GradHess[float64]{G: -1, H: 0.05, N: 2}
	total := GradHess[float64]{G: 1, H: 10, N: 8}

	_, ok := Evaluate[float64, GradHess[float64]](left, total, left.N, total.N, 1, 0.1, 0)
	assert.False(t, ok)
}

func TestEvaluateRejectsNonPositiveGain(t *testing.T) {
	// Symmetric tie: both sides carry the parent's mean gradient, so the
	// gain is exactly 0.
	left := GradOnly[float64]{G: 0, N: 2}
	total := GradOnly[float64]{G: 0, N: 4}

	_, ok := Evaluate[float64, GradOnly[float64]](left, total, left.N, total.N, 1, 0, 0)
	assert.False(t, ok)
}

func TestLeafWeightGradOnly(t *testing.T) {
	s := GradOnly[float64]{G: -4, N: 2}
	w := LeafWeight[float64, GradOnly[float64]](s, 1.0, 0.5)
	// sign_shrink(-4, 0.5) = -3.5; w = -(-3.5)/(2+1) = 3.5/3
	assert.InDelta(t, 3.5/3.0, w, 1e-12)
}

func TestLeafWeightGradHess(t *testing.T) {
	s := GradHess[float64]{G: 4, H: 3, N: 5}
	w := LeafWeight[float64, GradHess[float64]](s, 0.5, 1.0)
	// sign_shrink(4, 1) = 3; w = -3/(3+0.5)
	assert.InDelta(t, -3.0/3.5, w, 1e-12)
}

func TestQuadraticHandlesZeroDenominator(t *testing.T) {
	s := GradHess[float64]{G: 1, H: 0, N: 0}
	got := s.Quadratic(0)
	assert.Equal(t, float64(0), got)
	assert.False(t, math.IsNaN(got))
}

func TestFloat32Variant(t *testing.T) {
	left := GradOnly[float32]{G: -1, N: 1}
	total := GradOnly[float32]{G: 0, N: 4}
	got, ok := Evaluate[float32, GradOnly[float32]](left, total, left.N, total.N, 1, 0, 0)
	require.True(t, ok)
	assert.Greater(t, got, float32(0))
}
