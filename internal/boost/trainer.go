package boost

import (
	"context"
	"math/rand"

	"github.com/gogbdt/gbdt/internal/dataset"
	"github.com/gogbdt/gbdt/internal/tree"
	"github.com/gogbdt/gbdt/pkg/gain"
)

// Trainer grows trees from gradients (and, for second-order objectives,
// Hessians) handed over as flat float64 slices — the shape an Objective
// produces. It hides which of the four (gradient-kind × precision)
// instantiations backs it; NewTrainer selects the instantiation once, at
// first use, per the design's template-explosion note.
type Trainer interface {
	GrowTree(ctx context.Context, grad, hess []float64, treeColumns []int32) *tree.RegTree
	Predict(data *dataset.Matrix, t *tree.RegTree, yOut []float64)
}

// NewTrainer validates the configuration and returns the Trainer
// instantiation matching param.Objective's gradient kind and
// cfg.DoublePrecision.
func NewTrainer(data *dataset.Matrix, param TreeParam, cfg InternalConfiguration) (Trainer, error) {
	if err := Validate(param, cfg, data.Columns()); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(int64(cfg.Seed)))

	gradOnly := param.Objective == ObjectiveLinearRegression
	switch {
	case gradOnly && !cfg.DoublePrecision:
		return newGradOnlyTrainer[float32](data, param, cfg, rng), nil
	case gradOnly && cfg.DoublePrecision:
		return newGradOnlyTrainer[float64](data, param, cfg, rng), nil
	case !gradOnly && !cfg.DoublePrecision:
		return newGradHessTrainer[float32](data, param, cfg, rng), nil
	default:
		return newGradHessTrainer[float64](data, param, cfg, rng), nil
	}
}

// genericTrainer adapts one (F, S) instantiation of TreeDriver to the
// precision-agnostic Trainer interface.
type genericTrainer[F gain.Float, S gain.Stat[F, S]] struct {
	driver *TreeDriver[F, S]
	pack   func(g, h float64) S
}

func (t *genericTrainer[F, S]) GrowTree(ctx context.Context, grad, hess []float64, treeColumns []int32) *tree.RegTree {
	packed := make([]S, len(grad))
	for i := range grad {
		h := 0.0
		if hess != nil {
			h = hess[i]
		}
		packed[i] = t.pack(grad[i], h)
	}
	return t.driver.GrowTree(ctx, packed, treeColumns)
}

func (t *genericTrainer[F, S]) Predict(data *dataset.Matrix, rt *tree.RegTree, yOut []float64) {
	rt.Predict(data, yOut)
}

func newGradOnlyTrainer[F gain.Float](data *dataset.Matrix, param TreeParam, cfg InternalConfiguration, rng *rand.Rand) *genericTrainer[F, gain.GradOnly[F]] {
	identity := gain.GradOnly[F]{}
	pipeline := NewPipeline[F, gain.GradOnly[F]](data, cfg.Overlap, newReducerFactory[F]())
	return &genericTrainer[F, gain.GradOnly[F]]{
		driver: NewTreeDriver[F, gain.GradOnly[F]](pipeline, param, identity, rng),
		pack: func(g, _ float64) gain.GradOnly[F] {
			return gain.GradOnly[F]{G: F(g), N: 1}
		},
	}
}

func newGradHessTrainer[F gain.Float](data *dataset.Matrix, param TreeParam, cfg InternalConfiguration, rng *rand.Rand) *genericTrainer[F, gain.GradHess[F]] {
	identity := gain.GradHess[F]{}
	pipeline := NewPipeline[F, gain.GradHess[F]](data, cfg.Overlap, newReducerFactory[F]())
	return &genericTrainer[F, gain.GradHess[F]]{
		driver: NewTreeDriver[F, gain.GradHess[F]](pipeline, param, identity, rng),
		pack: func(g, h float64) gain.GradHess[F] {
			return gain.GradHess[F]{G: F(g), H: F(h), N: 1}
		},
	}
}

// newReducerFactory picks the precision-appropriate LeafReducer
// constructor: the packed single-CAS cell for float32, the two-phase
// fallback for float64.
func newReducerFactory[F gain.Float]() func(int) LeafReducer[F] {
	var zero F
	switch any(zero).(type) {
	case float32:
		return func(leaves int) LeafReducer[F] {
			return any(NewFloat32Reducers(leaves)).(LeafReducer[F])
		}
	default:
		return func(leaves int) LeafReducer[F] {
			return any(NewFloat64Reducers(leaves)).(LeafReducer[F])
		}
	}
}
