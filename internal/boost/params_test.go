package boost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	pkgerrors "github.com/gogbdt/gbdt/pkg/errors"
)

func baseParam() TreeParam {
	return TreeParam{
		Depth:            3,
		MinLeafSize:      1,
		ColsampleByTree:  1,
		ColsampleByLevel: 1,
		Eta:              0.3,
		LabelsCount:      1,
		Objective:        ObjectiveLinearRegression,
	}
}

func TestValidateRejectsUnsupportedDepth(t *testing.T) {
	p := baseParam()
	p.Depth = 1
	err := Validate(p, InternalConfiguration{Overlap: 1}, 10)
	assert.Equal(t, pkgerrors.CodeConfigError, pkgerrors.GetErrorCode(err))
}

func TestValidateRejectsSamplingTooSmall(t *testing.T) {
	p := baseParam()
	p.ColsampleByTree = 0.01
	err := Validate(p, InternalConfiguration{Overlap: 1}, 10)
	assert.Error(t, err)
}

func TestValidateRejectsUnknownObjective(t *testing.T) {
	p := baseParam()
	p.Objective = "not-a-real-objective"
	err := Validate(p, InternalConfiguration{Overlap: 1}, 10)
	assert.Error(t, err)
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	p := baseParam()
	err := Validate(p, InternalConfiguration{Overlap: 2}, 10)
	assert.NoError(t, err)
}
