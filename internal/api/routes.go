package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/irfndi/celebrum-quant/internal/api/handlers"
	"github.com/irfndi/celebrum-quant/internal/config"
	"github.com/irfndi/celebrum-quant/internal/middleware"
)

// Streamer upgrades a request into a push subscription.
type Streamer interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Dependencies carries the handlers mounted by SetupRoutes. Stream and
// Gatherer may be nil, which leaves /ws and /metrics unmounted.
type Dependencies struct {
	Health   *handlers.HealthHandler
	Forecast *handlers.ForecastHandler
	Stream   Streamer
	Gatherer prometheus.Gatherer
}

func SetupRoutes(router *gin.Engine, cfg config.ServerConfig, deps Dependencies) {
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	router.GET("/health", deps.Health.HealthCheck)
	router.GET("/live", deps.Health.LivenessCheck)

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	if deps.Stream != nil {
		router.GET("/ws", gin.WrapF(deps.Stream.ServeWS))
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	v1 := router.Group("/api/v1")
	{
		quant := v1.Group("/quant")
		{
			quant.GET("/forecast", deps.Forecast.GetLatest)
			quant.POST("/forecast", middleware.RateLimit(limiter), deps.Forecast.Compute)
			quant.POST("/refresh", middleware.RateLimit(limiter), deps.Forecast.Refresh)
		}
	}
}
