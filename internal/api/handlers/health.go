package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"
)

var startTime = time.Now()

// HealthChecker is a dependency that can report its availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusFunc returns a JSON-encodable snapshot of a component's runtime state.
type StatusFunc func() interface{}

// HealthHandler reports dependency status and host memory.
type HealthHandler struct {
	checks   map[string]HealthChecker
	statuses map[string]StatusFunc
	version  string
}

type MemoryStats struct {
	TotalMB     uint64  `json:"total_mb"`
	AvailableMB uint64  `json:"available_mb"`
	UsedPercent float64 `json:"used_percent"`
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]string      `json:"services"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Memory    *MemoryStats           `json:"memory,omitempty"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
}

// NewHealthHandler creates a handler. A nil checker is reported as
// "disabled" and does not degrade the status.
func NewHealthHandler(version string, checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks, statuses: make(map[string]StatusFunc), version: version}
}

// WithStatus adds a component snapshot under details.<name>.
func (h *HealthHandler) WithStatus(name string, status StatusFunc) *HealthHandler {
	h.statuses[name] = status
	return h
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := "healthy"
	services := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if check == nil {
			services[name] = "disabled"
			continue
		}
		if err := check.HealthCheck(ctx); err != nil {
			services[name] = "unhealthy: " + err.Error()
			status = "degraded"
			continue
		}
		services[name] = "healthy"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  services,
		Version:   h.version,
		Uptime:    time.Since(startTime).String(),
	}
	if len(h.statuses) > 0 {
		response.Details = make(map[string]interface{}, len(h.statuses))
		for name, status := range h.statuses {
			response.Details[name] = status()
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		response.Memory = &MemoryStats{
			TotalMB:     vm.Total / 1024 / 1024,
			AvailableMB: vm.Available / 1024 / 1024,
			UsedPercent: vm.UsedPercent,
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// Liveness check for container restarts
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
