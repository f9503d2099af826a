package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold uint32        `json:"failure_threshold"` // Consecutive failures before opening
	MaxRequests      uint32        `json:"max_requests"`      // Requests allowed in half-open state
	Interval         time.Duration `json:"interval"`          // Closed-state window after which counts reset
	Timeout          time.Duration `json:"timeout"`           // Open duration before trying half-open
}

// DefaultCircuitBreakerConfig returns the breaker settings used for price loads.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		MaxRequests:      1,
		Interval:         5 * time.Minute,
		Timeout:          time.Minute,
	}
}

// CircuitBreaker guards calls to the price history store.
type CircuitBreaker struct {
	name   string
	cb     *gobreaker.CircuitBreaker
	logger logrus.FieldLogger
}

// NewCircuitBreaker creates a breaker. Context cancellation and deadline
// errors never count as failures, nor do errors for which isSuccessful
// returns true. isSuccessful may be nil.
func NewCircuitBreaker(name string, config CircuitBreakerConfig, isSuccessful func(error) bool, logger logrus.FieldLogger) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	breaker := &CircuitBreaker{name: name, logger: logger}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breaker.logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"old_state":       from.String(),
				"new_state":       to.String(),
			}).Info("Circuit breaker state changed")
		},
	}
	settings.IsSuccessful = func(err error) bool {
		switch {
		case err == nil:
			return true
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return true
		case isSuccessful != nil:
			return isSuccessful(err)
		}
		return false
	}
	breaker.cb = gobreaker.NewCircuitBreaker(settings)
	return breaker
}

// Execute runs fn under breaker protection. A cancelled context is returned
// without touching the breaker counts.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		b.logger.WithFields(logrus.Fields{
			"circuit_breaker": b.name,
			"state":           b.cb.State().String(),
		}).Warn("Circuit breaker is open, rejecting request")
	}
	return err
}

// State returns the breaker state name: "closed", "half-open" or "open".
func (b *CircuitBreaker) State() string {
	return b.cb.State().String()
}

// IsOpen returns true if the circuit breaker is open
func (b *CircuitBreaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// Counts returns the request counters of the current generation.
func (b *CircuitBreaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}
