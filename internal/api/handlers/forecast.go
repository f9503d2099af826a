package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-quant/internal/middleware"
	"github.com/irfndi/celebrum-quant/internal/models"
	"github.com/irfndi/celebrum-quant/internal/quant"
	"github.com/irfndi/celebrum-quant/internal/utils"
)

// ForecastProvider serves stored and on-demand forecasts.
type ForecastProvider interface {
	Latest(ctx context.Context) (*models.ForecastResult, bool)
	Compute(req *models.ForecastRequest) (*models.ForecastResult, error)
}

// CycleTrigger requests an out-of-band forecast cycle.
type CycleTrigger interface {
	Trigger() bool
}

// ForecastHandler exposes the forecast endpoints.
type ForecastHandler struct {
	provider ForecastProvider
	trigger  CycleTrigger
	logger   logrus.FieldLogger
}

// NewForecastHandler creates a handler. trigger may be nil, in which case
// refresh requests are rejected with 503.
func NewForecastHandler(provider ForecastProvider, trigger CycleTrigger, logger logrus.FieldLogger) *ForecastHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ForecastHandler{
		provider: provider,
		trigger:  trigger,
		logger:   logger.WithField("component", "forecast_handler"),
	}
}

// GetLatest returns the most recent scheduled forecast with its generation
// time as Last-Modified.
func (h *ForecastHandler) GetLatest(c *gin.Context) {
	result, ok := h.provider.Latest(c.Request.Context())
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorRecord{Error: "no forecast available yet"})
		return
	}
	c.Header("Last-Modified", result.GeneratedAt().Format(http.TimeFormat))
	c.JSON(http.StatusOK, result)
}

// Compute runs a forecast over the series in the request body.
func (h *ForecastHandler) Compute(c *gin.Context) {
	var req models.ForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorRecord{Error: "invalid request body: " + err.Error()})
		return
	}
	middleware.AddSpanAttribute(c, "quant.target", req.Target.Ticker)
	middleware.AddSpanAttribute(c, "quant.macro_count", len(req.Macros))

	result, err := h.provider.Compute(&req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			middleware.RecordError(c, err, "forecast failed")
			h.logger.WithError(err).WithField("target", req.Target.Ticker).Error("On-demand forecast failed")
		}
		c.JSON(status, models.NewErrorRecord(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// Refresh queues a scheduled cycle to run now.
func (h *ForecastHandler) Refresh(c *gin.Context) {
	if h.trigger == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorRecord{Error: "scheduler is not running"})
		return
	}
	queued := h.trigger.Trigger()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "queued": queued})
}

func statusFor(err error) int {
	switch {
	case utils.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, quant.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
