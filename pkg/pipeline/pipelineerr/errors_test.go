package pipelineerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	a := Transient("timeout", nil)
	b := Transient("different message", nil)
	assert.True(t, errors.Is(a, b))

	c := Permanent("rejected", nil)
	assert.False(t, errors.Is(a, c))
}

func TestDefaultRetryability(t *testing.T) {
	assert.True(t, Transient("x", nil).Retryable)
	assert.True(t, RateLimited("x", nil).Retryable)
	assert.False(t, Validation("x", nil).Retryable)
	assert.False(t, Permanent("x", nil).Retryable)
}

func TestToRecordProjectsFields(t *testing.T) {
	err := Validation("bad input", nil).WithContext(map[string]string{"field": "title"})
	rec := err.ToRecord()
	assert.Equal(t, "Validation", rec.Kind)
	assert.Equal(t, "bad input", rec.Message)
	assert.False(t, rec.Retryable)
	assert.Equal(t, "title", rec.Context["field"])
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Transient("wrapped", cause)
	assert.ErrorIs(t, err, cause)
}
