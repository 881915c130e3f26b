package boost

import (
	"encoding/json"
	"fmt"

	"github.com/gogbdt/gbdt/internal/objective"
	"github.com/gogbdt/gbdt/internal/tree"
)

// Checkpoint is the on-disk/on-bucket representation of a trained Ensemble:
// everything NewEnsemble needs to reconstruct the objective plus the raw
// tree heaps Fit accumulated. Objective is rebuilt from Param.Objective and
// Param.LabelsCount rather than serialized directly, since
// objective.Objective carries no state beyond the one-vs-all class count.
type Checkpoint struct {
	Param     TreeParam             `json:"param"`
	Cfg       InternalConfiguration `json:"cfg"`
	BaseScore float64               `json:"base_score"`
	Trees     [][]*tree.RegTree     `json:"trees"`
}

// EncodeEnsemble serializes a trained Ensemble to JSON.
func EncodeEnsemble(e *Ensemble) ([]byte, error) {
	cp := Checkpoint{
		Param:     e.Param,
		Cfg:       e.Cfg,
		BaseScore: e.BaseScore,
		Trees:     e.Trees,
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("boost: encode checkpoint: %w", err)
	}
	return data, nil
}

// DecodeEnsemble reconstructs a usable Ensemble (objective included) from a
// checkpoint produced by EncodeEnsemble.
func DecodeEnsemble(data []byte) (*Ensemble, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("boost: decode checkpoint: %w", err)
	}

	obj, err := objectiveFor(cp.Param)
	if err != nil {
		return nil, err
	}

	return &Ensemble{
		Param:     cp.Param,
		Cfg:       cp.Cfg,
		Objective: obj,
		Trees:     cp.Trees,
		BaseScore: cp.BaseScore,
	}, nil
}

// NewObjective rebuilds the stateless Objective implementation matching a
// TreeParam's configured objective name. Callers building an Ensemble from
// scratch (rather than decoding a Checkpoint) use this to turn a
// config-supplied objective name into the concrete type NewEnsemble needs.
func NewObjective(param TreeParam) (objective.Objective, error) {
	return objectiveFor(param)
}

// objectiveFor rebuilds the stateless Objective implementation matching a
// TreeParam's configured objective name.
func objectiveFor(param TreeParam) (objective.Objective, error) {
	switch param.Objective {
	case ObjectiveLinearRegression:
		return objective.LinearRegression{}, nil
	case ObjectiveLogisticRegression:
		return objective.LogisticRegression{}, nil
	case ObjectiveSoftMaxOneVsAll:
		return objective.SoftMaxOneVsAll{Classes: param.LabelsCount}, nil
	default:
		return nil, fmt.Errorf("boost: unknown objective %q in checkpoint", param.Objective)
	}
}
