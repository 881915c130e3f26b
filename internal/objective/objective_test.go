package objective

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinearRegressionRoundTrip(t *testing.T) {
	var o LinearRegression
	y := []float64{-3.2, 0, 1.5, 42}
	assert.Equal(t, y, o.FromInternal(o.IntoInternal(y)))
}

func TestLinearRegressionGradientIsResidual(t *testing.T) {
	var o LinearRegression
	grad, hess := o.UpdateGrad([]float64{1, 2}, []float64{1.5, 1.5})
	assert.Equal(t, []float64{0.5, -0.5}, grad)
	assert.Nil(t, hess)
	assert.False(t, o.SecondOrder())
	assert.Equal(t, 1, o.LabelsCount())
}

func TestLogisticRegressionGradHess(t *testing.T) {
	var o LogisticRegression
	grad, hess := o.UpdateGrad([]float64{1, 0}, []float64{0, 0})
	// sigmoid(0) = 0.5 for both rows
	assert.InDelta(t, -0.5, grad[0], 1e-9)
	assert.InDelta(t, 0.5, grad[1], 1e-9)
	assert.InDelta(t, 0.25, hess[0], 1e-9)
	assert.InDelta(t, 0.25, hess[1], 1e-9)
	assert.True(t, o.SecondOrder())
}

func TestLogisticFromInternalIsSigmoid(t *testing.T) {
	var o LogisticRegression
	out := o.FromInternal([]float64{0})
	assert.InDelta(t, 0.5, out[0], 1e-9)
}

// TestLogisticRoundTripDoesNotApplyToLabels documents that, unlike
// LinearRegression, LogisticRegression's IntoInternal/FromInternal are not
// round-trip inverses: IntoInternal leaves a {0,1} label untouched for
// UpdateGrad, while FromInternal maps a margin score through the sigmoid.
// Feeding a label through both lands on sigmoid(label), not the label.
func TestLogisticRoundTripDoesNotApplyToLabels(t *testing.T) {
	var o LogisticRegression
	y := []float64{0, 1}
	got := o.FromInternal(o.IntoInternal(y))
	assert.InDelta(t, sigmoid(0), got[0], 1e-9)
	assert.InDelta(t, sigmoid(1), got[1], 1e-9)
	assert.NotEqual(t, y, got)
}

func TestSoftMaxOneVsAllLabelsCount(t *testing.T) {
	o := SoftMaxOneVsAll{Classes: 3}
	assert.Equal(t, 3, o.LabelsCount())
	assert.True(t, o.SecondOrder())

	grad, hess := o.UpdateGrad([]float64{1, 0, 0}, []float64{0, 0, 0})
	assert.Len(t, grad, 3)
	assert.Len(t, hess, 3)
}
