package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowErrorFormatting(t *testing.T) {
	err := NewError(ErrCodeValidation, "source stream must not be nil")
	assert.Equal(t, "[VALIDATION_ERROR] source stream must not be nil", err.Error())

	err = err.WithFlow("map(double)")
	assert.Equal(t, "[VALIDATION_ERROR] flow map(double): source stream must not be nil", err.Error())
}

func TestFlowErrorf(t *testing.T) {
	err := NewErrorf(ErrCodeRetryExhausted, "all %d attempts failed", 3)
	assert.Equal(t, ErrCodeRetryExhausted, err.Code)
	assert.Equal(t, "all 3 attempts failed", err.Message)
}

func TestFlowErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrCodeExecution, "upstream failed").WithCause(cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestFlowErrorDetails(t *testing.T) {
	err := NewError(ErrCodeCircuitOpen, "circuit breaker is open").WithDetails(map[string]any{
		"failure_count": 5,
		"state":         "OPEN",
	})
	assert.Equal(t, 5, err.Details["failure_count"])
}
