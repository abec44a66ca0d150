package errors

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a breaker that opens after 3 failures
	cb := NewCircuitBreaker("text", WithMaxFailures(3), WithResetTimeout(time.Minute))

	// When: three calls fail
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return stderrors.New("refused") })
	}

	// Then: the breaker is open and rejects calls without running them
	assert.Equal(t, StateOpen, cb.State())
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.False(t, called)
	assert.True(t, IsCode(err, ErrCodeBackendUnavailable))
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("vector", WithMaxFailures(1), WithResetTimeout(time.Second))
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return stderrors.New("down") })
	require.Equal(t, StateOpen, cb.State())

	// When: the reset timeout passes
	now = now.Add(2 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Then: a successful trial call closes the breaker
	err := cb.Execute(func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("vector", WithMaxFailures(2), WithResetTimeout(time.Second))
	cb.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return stderrors.New("down") })
	}
	now = now.Add(2 * time.Second)

	_ = cb.Execute(func() error { return stderrors.New("still down") })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitExecute_IgnoresNonRetryableErrors(t *testing.T) {
	cb := NewCircuitBreaker("vector", WithMaxFailures(1))

	_, err := CircuitExecute(cb, func() (int, error) {
		return 0, PayloadTooLarge("guard")
	})

	assert.Error(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitExecute_NilBreaker(t *testing.T) {
	got, err := CircuitExecute[int](nil, func() (int, error) { return 5, nil })
	assert.NoError(t, err)
	assert.Equal(t, 5, got)
}
