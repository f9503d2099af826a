package services

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-quant/internal/config"
	"github.com/irfndi/celebrum-quant/internal/models"
	"github.com/irfndi/celebrum-quant/internal/quant"
)

// MockSeriesLoader implements SeriesLoader for testing
type MockSeriesLoader struct {
	mock.Mock
}

func (m *MockSeriesLoader) LoadSeries(ctx context.Context, ticker string, since time.Time) (quant.PriceSeries, error) {
	args := m.Called(ctx, ticker, since)
	return args.Get(0).(quant.PriceSeries), args.Error(1)
}

// MockPublisher records published payloads
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, payload interface{}) {
	m.Called(topic, payload)
}

// MockCycleRunner implements CycleRunner for testing
type MockCycleRunner struct {
	mock.Mock
}

func (m *MockCycleRunner) Run(ctx context.Context) (*models.ForecastResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ForecastResult), args.Error(1)
}

type memoryStore struct {
	mu      sync.Mutex
	results map[string]*models.ForecastResult
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{results: map[string]*models.ForecastResult{}}
}

func (s *memoryStore) Get(_ context.Context, target string) (*models.ForecastResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[target]
	return r, ok
}

func (s *memoryStore) Set(_ context.Context, target string, result *models.ForecastResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.results[target] = result
	return nil
}

func testQuantConfig() config.QuantConfig {
	p := quant.DefaultParams()
	return config.QuantConfig{
		Target:       "BTC-USD",
		Macros:       []string{"DX-Y.NYB", "^TNX"},
		LookbackDays: 180,
		Interval:     time.Hour,
		MaxRetries:   3,
		RetryDelay:   time.Millisecond,
		CycleTimeout: time.Second,
		Smoother: config.SmootherConfig{
			ObservationNoise: p.ObservationNoise,
			ProcessNoise:     p.ProcessNoise,
		},
		MinObservations:  p.MinObservations,
		ZScoreWindow:     p.ZScoreWindow,
		TrendWindow:      p.TrendWindow,
		VolatilityWindow: p.VolatilityWindow,
		Horizon:          p.Horizon,
		MacroDamping:     p.MacroDamping,
		DragScale:        p.DragScale,
		SigmaMin:         p.SigmaMin,
		SigmaMax:         p.SigmaMax,
		SigmaStep:        p.SigmaStep,
	}
}

func testSeries(t *testing.T, ticker string, n int, start, phase float64) quant.PriceSeries {
	t.Helper()
	day := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	points := make([]quant.Observation, n)
	for i := range points {
		points[i] = quant.Observation{
			Date:  day.AddDate(0, 0, i),
			Price: start * math.Exp(0.002*float64(i)+0.03*math.Sin(float64(i)*0.7+phase)),
		}
	}
	s, err := quant.NewPriceSeries(ticker, points)
	require.NoError(t, err)
	return s
}
