package boost

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogbdt/gbdt/internal/dataset"
	"github.com/gogbdt/gbdt/internal/objective"
)

func linearDataset(t *testing.T) (*dataset.Matrix, []float64) {
	t.Helper()
	n := 32
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i)
		y[i] = 2*float64(i) + 1
	}
	data := dataset.NewMatrix(n, []dataset.DenseColumn{dataset.NewDenseColumn(x)}, nil)
	require.NoError(t, data.Init())
	return data, y
}

func TestEnsembleFitReducesResiduals(t *testing.T) {
	data, y := linearDataset(t)

	param := TreeParam{
		Depth:            4,
		MinLeafSize:      1,
		Lambda:           0.1,
		Eta:              0.3,
		ColsampleByTree:  1,
		ColsampleByLevel: 1,
		LabelsCount:      1,
		Objective:        ObjectiveLinearRegression,
	}
	cfg := InternalConfiguration{Seed: 7, Overlap: 2}

	ens := NewEnsemble(param, cfg, objective.LinearRegression{})

	var rounds []float64
	err := ens.Fit(context.Background(), data, y, 10, func(round, treesSoFar int, meanAbsGrad float64) {
		rounds = append(rounds, meanAbsGrad)
		assert.Equal(t, round+1, treesSoFar)
	})
	require.NoError(t, err)
	require.Len(t, rounds, 10)
	assert.Less(t, rounds[len(rounds)-1], rounds[0])

	pred := ens.Predict(data)
	require.Len(t, pred, len(y))

	var sqErr float64
	for i := range pred {
		d := pred[i] - y[i]
		sqErr += d * d
	}
	assert.Less(t, sqErr/float64(len(y)), 50.0)
}

func TestEnsembleFitLogisticLabelsCount(t *testing.T) {
	data, _ := linearDataset(t)
	y := make([]float64, data.Rows)
	for i := range y {
		if i%2 == 0 {
			y[i] = 1
		}
	}

	param := TreeParam{
		Depth:            3,
		MinLeafSize:      1,
		Lambda:           1,
		Eta:              0.3,
		ColsampleByTree:  1,
		ColsampleByLevel: 1,
		LabelsCount:      1,
		Objective:        ObjectiveLogisticRegression,
	}
	cfg := InternalConfiguration{Seed: 1, Overlap: 1}

	ens := NewEnsemble(param, cfg, objective.LogisticRegression{})
	require.NoError(t, ens.Fit(context.Background(), data, y, 5, nil))

	pred := ens.Predict(data)
	for _, p := range pred {
		assert.False(t, math.IsNaN(p))
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}
