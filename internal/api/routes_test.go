package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/irfndi/celebrum-quant/internal/api/handlers"
	"github.com/irfndi/celebrum-quant/internal/config"
	"github.com/irfndi/celebrum-quant/internal/metrics"
	"github.com/irfndi/celebrum-quant/internal/models"
)

type fakeProvider struct {
	latest *models.ForecastResult
}

func (f *fakeProvider) Latest(context.Context) (*models.ForecastResult, bool) {
	return f.latest, f.latest != nil
}

func (f *fakeProvider) Compute(*models.ForecastRequest) (*models.ForecastResult, error) {
	return &models.ForecastResult{CurrentPrice: 1}, nil
}

type fakeTrigger struct{}

func (fakeTrigger) Trigger() bool { return true }

type fakeStream struct{ hits int }

func (f *fakeStream) ServeWS(w http.ResponseWriter, r *http.Request) {
	f.hits++
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func setupTestRouter(t *testing.T, provider *fakeProvider, stream *fakeStream) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reg := prometheus.NewRegistry()
	metrics.New(reg).RecordCycle("success", 0)

	var streamer Streamer
	if stream != nil {
		streamer = stream
	}

	router := gin.New()
	SetupRoutes(router, config.ServerConfig{
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   0.001,
		RateLimitBurst: 2,
	}, Dependencies{
		Health:   handlers.NewHealthHandler("test", nil),
		Forecast: handlers.NewForecastHandler(provider, fakeTrigger{}, logger),
		Stream:   streamer,
		Gatherer: reg,
	})
	return router
}

func TestSetupRoutes(t *testing.T) {
	stream := &fakeStream{}
	router := setupTestRouter(t, &fakeProvider{}, stream)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/live", "", http.StatusOK},
		{http.MethodGet, "/api/v1/quant/forecast", "", http.StatusNotFound},
		{http.MethodPost, "/api/v1/quant/refresh", "", http.StatusAccepted},
		{http.MethodGet, "/ws", "", http.StatusSwitchingProtocols},
		{http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, w.Code)
		})
	}
	assert.Equal(t, 1, stream.hits)
}

func TestMetricsEndpoint(t *testing.T) {
	router := setupTestRouter(t, &fakeProvider{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `quant_forecast_cycles_total{outcome="success"} 1`)
}

func TestComputeRateLimited(t *testing.T) {
	router := setupTestRouter(t, &fakeProvider{}, nil)
	body := `{"target":{"ticker":"BTC-USD","points":[{"date":"2024-05-01","price":1}]}}`

	var codes []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quant/forecast", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestLatestForecastServed(t *testing.T) {
	router := setupTestRouter(t, &fakeProvider{latest: &models.ForecastResult{CurrentPrice: 42}}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/quant/forecast", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"currentPrice":42`)
}
