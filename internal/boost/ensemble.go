package boost

import (
	"context"
	"math/rand"

	"github.com/gogbdt/gbdt/internal/dataset"
	"github.com/gogbdt/gbdt/internal/objective"
	"github.com/gogbdt/gbdt/internal/tree"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Ensemble is a trained (or training) additive model: a base score plus a
// sequence of trees, each tree's contribution scaled by eta and folded in
// one boosting round at a time.
type Ensemble struct {
	Param     TreeParam
	Cfg       InternalConfiguration
	Objective objective.Objective
	Trees     [][]*tree.RegTree // one slice per label (1 for regression, K for one-vs-all)
	BaseScore float64
}

// NewEnsemble builds an untrained ensemble bound to an objective and its
// tree/trainer hyperparameters.
func NewEnsemble(param TreeParam, cfg InternalConfiguration, obj objective.Objective) *Ensemble {
	return &Ensemble{
		Param:     param,
		Cfg:       cfg,
		Objective: obj,
		BaseScore: param.InitialY,
	}
}

// RoundHook is invoked after every completed boosting round with the
// round index, the total number of trees grown so far across all labels,
// and the round's mean absolute gradient (a cheap proxy for training loss
// that needs no objective-specific loss function).
type RoundHook func(round int, treesSoFar int, meanAbsGrad float64)

// Fit runs `rounds` boosting iterations against data and labels y (length
// data.Rows, or data.Rows*labels_count for one-vs-all). Each round builds
// one tree per label: the objective refreshes gradients from the current
// prediction, a Trainer grows a tree against them, and the tree's
// (eta-scaled) predictions are folded additively into the running score.
// onRound may be nil; it fires once per round after every label's tree has
// been folded in, letting a caller persist per-round progress.
func (e *Ensemble) Fit(ctx context.Context, data *dataset.Matrix, y []float64, rounds int, onRound RoundHook) error {
	ctx, span := tracer.Start(ctx, "boost.ensemble.fit", trace.WithAttributes(
		attribute.Int("gbdt.rounds", rounds),
		attribute.String("gbdt.objective", string(e.Param.Objective)),
	))
	defer span.End()

	trainer, err := NewTrainer(data, e.Param, e.Cfg)
	if err != nil {
		return err
	}

	labels := e.Objective.LabelsCount()
	n := data.Rows
	yInternal := e.Objective.IntoInternal(y)

	pred := make([]float64, labels*n)
	for i := range pred {
		pred[i] = e.BaseScore
	}

	rng := rand.New(rand.NewSource(int64(e.Cfg.Seed)))
	treeColumns := sampleColumnsByTree(data.Columns(), e.Param.ColsampleByTree, rng)

	e.Trees = make([][]*tree.RegTree, labels)
	buf := make([]float64, n)

	for round := 0; round < rounds; round++ {
		grad, hess := e.Objective.UpdateGrad(yInternal, pred)

		for label := 0; label < labels; label++ {
			labelGrad := grad[label*n : (label+1)*n]
			var labelHess []float64
			if hess != nil {
				labelHess = hess[label*n : (label+1)*n]
			}

			rt := trainer.GrowTree(ctx, labelGrad, labelHess, treeColumns)

			trainer.Predict(data, rt, buf)
			for i := 0; i < n; i++ {
				pred[label*n+i] += buf[i]
			}
			e.Trees[label] = append(e.Trees[label], rt)
		}

		if onRound != nil {
			var absSum float64
			for _, g := range grad {
				if g < 0 {
					absSum -= g
				} else {
					absSum += g
				}
			}
			treesSoFar := 0
			for _, trees := range e.Trees {
				treesSoFar += len(trees)
			}
			onRound(round, treesSoFar, absSum/float64(len(grad)))
		}
	}
	return nil
}

// Predict runs every accumulated tree for every label and maps the summed
// internal-space score back through the objective.
func (e *Ensemble) Predict(data *dataset.Matrix) []float64 {
	labels := e.Objective.LabelsCount()
	n := data.Rows
	out := make([]float64, labels*n)
	for i := range out {
		out[i] = e.BaseScore
	}

	buf := make([]float64, n)
	for label := 0; label < labels; label++ {
		for _, rt := range e.Trees[label] {
			rt.Predict(data, buf)
			for i := 0; i < n; i++ {
				out[label*n+i] += buf[i]
			}
		}
	}
	return e.Objective.FromInternal(out)
}

// sampleColumnsByTree picks the colsample_bytree subset once, shared by
// every level of every tree in a round, per the design's per-tree/per-level
// sampling split.
func sampleColumnsByTree(columns int, ratio float64, rng *rand.Rand) []int32 {
	take := int(ratio * float64(columns))
	if take <= 0 {
		take = 1
	}
	if take > columns {
		take = columns
	}
	perm := rng.Perm(columns)
	out := make([]int32, take)
	for i := 0; i < take; i++ {
		out[i] = int32(perm[i])
	}
	return out
}
