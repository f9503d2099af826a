package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-quant/internal/config"
	"github.com/irfndi/celebrum-quant/internal/logging"
	"github.com/irfndi/celebrum-quant/internal/models"
)

// CycleRunner executes one forecast cycle.
type CycleRunner interface {
	Run(ctx context.Context) (*models.ForecastResult, error)
}

// SchedulerConfig controls cycle cadence and retries.
type SchedulerConfig struct {
	Interval     time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	CycleTimeout time.Duration
}

// NewSchedulerConfig extracts the scheduling fields from cfg.
func NewSchedulerConfig(cfg config.QuantConfig) SchedulerConfig {
	return SchedulerConfig{
		Interval:     cfg.Interval,
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		CycleTimeout: cfg.CycleTimeout,
	}
}

// Scheduler runs forecast cycles periodically and on demand.
type Scheduler struct {
	runner    CycleRunner
	publisher Publisher
	config    SchedulerConfig
	target    string
	logger    logrus.FieldLogger

	trigger  chan struct{}
	inFlight atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler creates a scheduler. publisher may be nil.
func NewScheduler(runner CycleRunner, publisher Publisher, target string, config SchedulerConfig, logger logrus.FieldLogger) *Scheduler {
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		runner:    runner,
		publisher: publisher,
		config:    config,
		target:    target,
		logger:    logger.WithField("component", "scheduler"),
		trigger:   make(chan struct{}, 1),
	}
}

// Start runs a cycle immediately and then one per interval until Stop or
// ctx is cancelled. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.logger.WithFields(logrus.Fields{
		"target":      s.target,
		"interval":    s.config.Interval.String(),
		"max_retries": s.config.MaxRetries,
	}).Info("Starting forecast scheduler")

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop cancels the loop and waits for an in-flight cycle to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Forecast scheduler stopped")
}

// Trigger requests an out-of-band cycle. It returns false when a request is
// already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// InFlight reports whether a cycle is currently running.
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}

// SchedulerStatus is the scheduler section of the health report.
type SchedulerStatus struct {
	Running  bool   `json:"running"`
	InFlight bool   `json:"in_flight"`
	Interval string `json:"interval"`
}

// Status reports whether the loop is running and a cycle is executing.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SchedulerStatus{
		Running:  running,
		InFlight: s.InFlight(),
		Interval: s.config.Interval.String(),
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	var cycles sync.WaitGroup
	defer cycles.Wait()

	spawn := func() {
		if !s.inFlight.CompareAndSwap(false, true) {
			s.logger.Debug("Cycle already in flight, skipping")
			return
		}
		cycles.Add(1)
		go func() {
			defer cycles.Done()
			defer s.inFlight.Store(false)
			s.RunCycle(ctx)
		}()
	}

	spawn()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			spawn()
		case <-s.trigger:
			spawn()
		}
	}
}

// RunCycle executes one cycle with retries and reports whether it
// succeeded. After the last failed attempt a CycleFailure is published.
func (s *Scheduler) RunCycle(ctx context.Context) bool {
	runID := uuid.NewString()
	logger := s.logger.WithField("run_id", runID)

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		start := time.Now()
		err := s.attempt(ctx)
		logging.LogForecastCycle(logger, s.target, attempt, time.Since(start).Milliseconds(), err)
		if err == nil {
			return true
		}
		lastErr = err
		if ctx.Err() != nil {
			return false
		}

		if attempt < s.config.MaxRetries {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(s.config.RetryDelay):
			}
		}
	}

	logger.WithError(lastErr).WithField("attempts", s.config.MaxRetries).Error("Forecast cycle exhausted retries")
	if s.publisher != nil {
		s.publisher.Publish(TopicError, models.CycleFailure{
			Timestamp: time.Now().UnixMilli(),
			Message:   lastErr.Error(),
			RetryIn:   s.config.Interval.Milliseconds(),
		})
	}
	return false
}

func (s *Scheduler) attempt(ctx context.Context) error {
	if s.config.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CycleTimeout)
		defer cancel()
	}
	_, err := s.runner.Run(ctx)
	return err
}
