package testfixtures

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("apply")

	assert.Equal(t, "apply-1", gen.Next())
	assert.Equal(t, "apply-2", gen.NextFunc()())
	assert.Equal(t, uint64(2), gen.Issued())
}

func TestIDGeneratorDefaults(t *testing.T) {
	gen := NewIDGenerator("")
	assert.Equal(t, "run-1", gen.Next())

	var none *IDGenerator
	assert.Equal(t, "", none.NextFunc()())
}
