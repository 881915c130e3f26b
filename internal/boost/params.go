package boost

import (
	"fmt"

	"github.com/gogbdt/gbdt/pkg/errors"
)

// Objective names the differentiable objective that produces gradients.
type Objective string

const (
	ObjectiveLinearRegression   Objective = "linear_regression"
	ObjectiveLogisticRegression Objective = "logistic_regression"
	ObjectiveSoftMaxOneVsAll    Objective = "softmax_one_vs_all"
)

// TreeParam bundles the per-tree hyperparameters.
type TreeParam struct {
	Depth            int
	MinLeafSize      int64
	MinChildWeight   float64
	Gamma            float64
	Lambda           float64
	Alpha            float64
	Eta              float64
	ColsampleByTree  float64
	ColsampleByLevel float64
	InitialY         float64
	LabelsCount      int
	Objective        Objective
}

// InternalConfiguration bundles engine-level, non-statistical knobs.
type InternalConfiguration struct {
	Seed            uint64
	Overlap         int
	DoublePrecision bool
}

// Validate checks TreeParam and InternalConfiguration against a dataset's
// column count, returning the configuration errors the trainer must report
// fatally at initialization.
func Validate(tp TreeParam, cfg InternalConfiguration, columns int) error {
	if tp.Depth < 2 || tp.Depth > 64 {
		return errors.New(errors.CodeConfigError, fmt.Sprintf("unsupported depth %d: must be in [2, 64]", tp.Depth))
	}
	if tp.Depth+1 > 64 {
		return errors.New(errors.CodeConfigError, fmt.Sprintf("unsupported depth %d: depth+1 exceeds 64 bits", tp.Depth))
	}
	byTree := int(tp.ColsampleByTree * float64(columns))
	if byTree == 0 {
		return errors.New(errors.CodeConfigError, "sampling too small: colsample_bytree selects zero columns")
	}
	byLevel := int(tp.ColsampleByTree * tp.ColsampleByLevel * float64(columns))
	if byLevel == 0 {
		return errors.New(errors.CodeConfigError, "sampling too small: colsample_bytree*colsample_bylevel selects zero columns")
	}
	switch tp.Objective {
	case ObjectiveLinearRegression, ObjectiveLogisticRegression, ObjectiveSoftMaxOneVsAll:
	default:
		return errors.New(errors.CodeConfigError, fmt.Sprintf("unknown objective %q", tp.Objective))
	}
	if cfg.Overlap < 1 {
		return errors.New(errors.CodeConfigError, "overlap must be at least 1")
	}
	return nil
}
