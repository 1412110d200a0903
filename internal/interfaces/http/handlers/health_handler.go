package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewbill/keysvc/internal/application"
	"github.com/crewbill/keysvc/internal/application/dto"
	"github.com/crewbill/keysvc/pkg/logger"
)

// HealthHandler exposes liveness, readiness and the rotation-subsystem
// health report.
type HealthHandler struct {
	health *application.HealthService
	logger logger.Logger
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(health *application.HealthService, log logger.Logger) *HealthHandler {
	return &HealthHandler{
		health: health,
		logger: log.WithComponent("health_handler"),
	}
}

// Live handles GET /health/live. It answers as long as the process serves.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /health/ready. Readiness follows the rotation-subsystem
// health: a service that cannot sign tokens should not receive traffic.
func (h *HealthHandler) Ready(c *gin.Context) {
	report, err := h.health.Check(c.Request.Context())
	if err != nil {
		dto.SendError(c, err)
		return
	}
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Status handles GET /api/v1/keys/health and returns the full report with
// warnings, regardless of health.
func (h *HealthHandler) Status(c *gin.Context) {
	report, err := h.health.Check(c.Request.Context())
	if err != nil {
		dto.SendError(c, err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, report)
}
