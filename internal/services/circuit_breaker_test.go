package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestCircuitBreaker_Execute(t *testing.T) {
	breaker := NewCircuitBreaker("test-breaker", DefaultCircuitBreakerConfig(), nil, quietLogger())

	err := breaker.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "closed", breaker.State())
	assert.Equal(t, uint32(1), breaker.Counts().TotalSuccesses)
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	config := CircuitBreakerConfig{FailureThreshold: 3, MaxRequests: 1, Timeout: time.Hour}
	breaker := NewCircuitBreaker("test-breaker", config, nil, quietLogger())
	boom := errors.New("connection refused")

	for i := 0; i < 3; i++ {
		err := breaker.Execute(context.Background(), func(ctx context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.True(t, breaker.IsOpen())

	called := false
	err := breaker.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	config := CircuitBreakerConfig{FailureThreshold: 1, MaxRequests: 1, Timeout: 20 * time.Millisecond}
	breaker := NewCircuitBreaker("test-breaker", config, nil, quietLogger())

	_ = breaker.Execute(context.Background(), func(ctx context.Context) error { return errors.New("down") })
	require.True(t, breaker.IsOpen())

	assert.Eventually(t, func() bool { return breaker.State() == "half-open" }, time.Second, 5*time.Millisecond)
	require.NoError(t, breaker.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	assert.Equal(t, "closed", breaker.State())
}

func TestCircuitBreaker_IgnoredErrors(t *testing.T) {
	notFound := errors.New("not found")
	config := CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour}
	breaker := NewCircuitBreaker("test-breaker", config, func(err error) bool {
		return errors.Is(err, notFound)
	}, quietLogger())

	for i := 0; i < 5; i++ {
		err := breaker.Execute(context.Background(), func(ctx context.Context) error { return notFound })
		assert.ErrorIs(t, err, notFound)
	}
	assert.False(t, breaker.IsOpen())
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	breaker := NewCircuitBreaker("test-breaker", DefaultCircuitBreakerConfig(), nil, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := breaker.Execute(ctx, func(ctx context.Context) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint32(0), breaker.Counts().Requests)
}

func TestCircuitBreaker_TimeoutDuringCallIsNotAFailure(t *testing.T) {
	config := CircuitBreakerConfig{FailureThreshold: 1, MaxRequests: 1, Timeout: time.Hour}
	breaker := NewCircuitBreaker("test-breaker", config, nil, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return fmt.Errorf("query price_history: %w", ctx.Err())
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	cancelled, stop := context.WithCancel(context.Background())
	err = breaker.Execute(cancelled, func(ctx context.Context) error {
		stop()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	assert.False(t, breaker.IsOpen())
	assert.Equal(t, uint32(0), breaker.Counts().ConsecutiveFailures)
	assert.Equal(t, uint32(2), breaker.Counts().TotalSuccesses)
}
