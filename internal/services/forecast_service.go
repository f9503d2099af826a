package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/irfndi/celebrum-quant/internal/config"
	"github.com/irfndi/celebrum-quant/internal/database"
	"github.com/irfndi/celebrum-quant/internal/metrics"
	"github.com/irfndi/celebrum-quant/internal/models"
	"github.com/irfndi/celebrum-quant/internal/quant"
	"github.com/irfndi/celebrum-quant/internal/telemetry"
)

// Topics published to subscribers.
const (
	TopicAnalytics = "quant.analytics"
	TopicError     = "quant.error"
)

// SeriesLoader reads price history for one ticker.
type SeriesLoader interface {
	LoadSeries(ctx context.Context, ticker string, since time.Time) (quant.PriceSeries, error)
}

// ForecastStore keeps the latest published forecast per target.
type ForecastStore interface {
	Get(ctx context.Context, target string) (*models.ForecastResult, bool)
	Set(ctx context.Context, target string, result *models.ForecastResult) error
}

// Publisher fans a payload out to subscribers of topic.
type Publisher interface {
	Publish(topic string, payload interface{})
}

// ForecastService runs forecast cycles over stored price history.
type ForecastService struct {
	cfg       config.QuantConfig
	engine    *quant.Engine
	loader    SeriesLoader
	store     ForecastStore
	publisher Publisher
	recorder  *metrics.Recorder
	tracer    *telemetry.BusinessTracer
	breaker   *CircuitBreaker
	logger    logrus.FieldLogger
	now       func() time.Time

	mu     sync.RWMutex
	latest *models.ForecastResult
}

// NewForecastService wires a service. store, publisher and recorder may be nil.
func NewForecastService(
	cfg config.QuantConfig,
	loader SeriesLoader,
	store ForecastStore,
	publisher Publisher,
	recorder *metrics.Recorder,
	logger logrus.FieldLogger,
) (*ForecastService, error) {
	engine, err := quant.NewEngine(cfg.EngineParams())
	if err != nil {
		return nil, fmt.Errorf("invalid engine parameters: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "forecast_service")

	return &ForecastService{
		cfg:       cfg,
		engine:    engine,
		loader:    loader,
		store:     store,
		publisher: publisher,
		recorder:  recorder,
		tracer:    telemetry.NewBusinessTracer(nil),
		breaker: NewCircuitBreaker("price_history", DefaultCircuitBreakerConfig(), func(err error) bool {
			return errors.Is(err, database.ErrSeriesNotFound)
		}, logger),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Target returns the configured forecast target.
func (s *ForecastService) Target() string { return s.cfg.Target }

// Run executes one forecast cycle for the configured target and publishes
// the result. A failed target load or a fatal engine error aborts the cycle;
// unavailable macro series are dropped with a diagnostic.
func (s *ForecastService) Run(ctx context.Context) (*models.ForecastResult, error) {
	start := s.now()
	ctx, span := s.tracer.TraceForecastCycle(ctx, s.cfg.Target, s.cfg.Macros)
	defer span.End()

	input, loadDiags, err := s.loadInput(ctx)
	if err != nil {
		s.tracer.RecordError(span, err)
		s.recordCycle("failure", start)
		return nil, err
	}

	forecast, err := s.engine.Run(input)
	if err != nil {
		s.tracer.RecordError(span, err)
		s.recordCycle("failure", start)
		return nil, fmt.Errorf("forecast %s: %w", s.cfg.Target, err)
	}
	forecast.Diagnostics = append(loadDiags, forecast.Diagnostics...)

	result := models.NewForecastResult(forecast)
	s.setLatest(result)

	if s.store != nil {
		if err := s.store.Set(ctx, s.cfg.Target, result); err != nil {
			s.logger.WithError(err).Warn("Failed to cache forecast")
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(TopicAnalytics, result)
	}

	s.tracer.RecordForecast(span, telemetry.ForecastSummary{
		CurrentPrice:   forecast.CurrentPrice,
		AdjustedDrift:  forecast.Drift.Adjusted,
		StepVolatility: forecast.Drift.StepVolatility,
		MacroCount:     len(forecast.Macros),
		Diagnostics:    len(forecast.Diagnostics),
	})
	if s.recorder != nil {
		s.recorder.RecordForecast(s.cfg.Target, forecast.CurrentPrice, forecast.Drift.Adjusted, forecast.Drift.StepVolatility)
	}
	s.recordDiagnostics(forecast.Diagnostics)

	outcome := "success"
	if len(forecast.Diagnostics) > 0 {
		outcome = "degraded"
	}
	s.recordCycle(outcome, start)

	s.logger.WithFields(logrus.Fields{
		"target":         s.cfg.Target,
		"current_price":  result.CurrentPrice,
		"adjusted_drift": result.Meta.AdjustedDrift,
		"macros":         len(result.MacroBreakdown),
		"diagnostics":    len(result.Diagnostics),
	}).Info("Forecast published")
	return result, nil
}

// Compute runs the engine over caller-supplied series without touching the
// store or subscribers. Invalid requests return *utils.ValidationError.
func (s *ForecastService) Compute(req *models.ForecastRequest) (*models.ForecastResult, error) {
	input, err := req.ToInput()
	if err != nil {
		return nil, err
	}
	forecast, err := s.engine.Run(input)
	if err != nil {
		return nil, err
	}
	s.recordDiagnostics(forecast.Diagnostics)
	return models.NewForecastResult(forecast), nil
}

// Latest returns the most recent forecast, preferring the shared store over
// the copy held by this process.
func (s *ForecastService) Latest(ctx context.Context) (*models.ForecastResult, bool) {
	if s.store != nil {
		result, ok := s.store.Get(ctx, s.cfg.Target)
		if s.recorder != nil {
			s.recorder.RecordCacheLookup(ok)
		}
		if ok {
			return result, true
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != nil
}

// ForecastStatus is the service section of the health report.
type ForecastStatus struct {
	Target              string     `json:"target"`
	Breaker             string     `json:"breaker"`
	BreakerOpen         bool       `json:"breaker_open"`
	ConsecutiveFailures uint32     `json:"consecutive_failures"`
	LastForecastAt      *time.Time `json:"last_forecast_at,omitempty"`
}

// Status reports the load breaker and the age of the in-process forecast.
func (s *ForecastService) Status() ForecastStatus {
	status := ForecastStatus{
		Target:              s.cfg.Target,
		Breaker:             s.breaker.State(),
		BreakerOpen:         s.breaker.IsOpen(),
		ConsecutiveFailures: s.breaker.Counts().ConsecutiveFailures,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest != nil {
		at := s.latest.GeneratedAt()
		status.LastForecastAt = &at
	}
	return status
}

func (s *ForecastService) setLatest(result *models.ForecastResult) {
	s.mu.Lock()
	s.latest = result
	s.mu.Unlock()
}

// loadInput fetches the target and every macro concurrently.
func (s *ForecastService) loadInput(ctx context.Context) (quant.Input, []quant.Diagnostic, error) {
	since := s.now().Add(-s.cfg.Lookback())

	var target quant.PriceSeries
	macros := make([]quant.PriceSeries, len(s.cfg.Macros))
	loaded := make([]bool, len(s.cfg.Macros))
	diags := make([]*quant.Diagnostic, len(s.cfg.Macros))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		series, err := s.load(gctx, s.cfg.Target, since)
		if err != nil {
			return fmt.Errorf("load target %s: %w", s.cfg.Target, err)
		}
		target = series
		return nil
	})
	for i, ticker := range s.cfg.Macros {
		g.Go(func() error {
			series, err := s.load(gctx, ticker, since)
			if err != nil {
				s.logger.WithError(err).WithField("ticker", ticker).Warn("Macro series unavailable")
				diags[i] = &quant.Diagnostic{
					Kind:    quant.KindMissingMacroSeries,
					Stage:   "load",
					Ticker:  ticker,
					Message: err.Error(),
				}
				return nil
			}
			macros[i] = series
			loaded[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return quant.Input{}, nil, err
	}

	input := quant.Input{Target: target}
	var out []quant.Diagnostic
	for i := range s.cfg.Macros {
		if loaded[i] {
			input.Macros = append(input.Macros, macros[i])
		} else if diags[i] != nil {
			out = append(out, *diags[i])
		}
	}
	return input, out, nil
}

func (s *ForecastService) load(ctx context.Context, ticker string, since time.Time) (quant.PriceSeries, error) {
	ctx, span := s.tracer.TraceSeriesLoad(ctx, ticker)
	defer span.End()

	var series quant.PriceSeries
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		series, err = s.loader.LoadSeries(ctx, ticker, since)
		return err
	})
	if err != nil {
		s.tracer.RecordError(span, err)
		return quant.PriceSeries{}, err
	}
	return series, nil
}

func (s *ForecastService) recordDiagnostics(diags []quant.Diagnostic) {
	if s.recorder == nil {
		return
	}
	for _, d := range diags {
		s.recorder.RecordDiagnostic(string(d.Kind))
	}
}

func (s *ForecastService) recordCycle(outcome string, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordCycle(outcome, s.now().Sub(start))
	}
}
