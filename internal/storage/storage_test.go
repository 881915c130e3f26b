package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckpointKey(t *testing.T) {
	assert.Equal(t, "run-123/ensemble.json", CheckpointKey("run-123"))
}

func TestValidateConfig_NilConfig(t *testing.T) {
	err := ValidateConfig(nil)
	assert.Error(t, err)
}
