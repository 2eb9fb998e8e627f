// Package api provides HTTP handlers for the audit ledger.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ReadinessCheck is one dependency probed by the readiness endpoint. A failing
// optional check degrades readiness without failing it.
type ReadinessCheck struct {
	Name     string
	Checker  HealthChecker
	Optional bool
}

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	svc       LedgerService
	checks    []ReadinessCheck
	log       *logrus.Logger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler with the given dependencies.
func NewHealthHandler(svc LedgerService, checks []ReadinessCheck, log *logrus.Logger, version string) *HealthHandler {
	return &HealthHandler{
		svc:       svc,
		checks:    checks,
		log:       log,
		version:   version,
		startTime: time.Now(),
	}
}

// readinessResponse is the JSON payload returned by the readiness endpoint.
type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// healthResponse is the JSON payload returned by the health/liveness endpoint.
type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	ChainLength   int     `json:"chain_length"`
	PendingEvents int     `json:"pending_events"`
	TipHash       string  `json:"tip_hash"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Liveness handles GET /api/v1/health.
func (h *HealthHandler) Liveness(c *gin.Context) {
	resp := healthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}

	if h.svc != nil {
		st := h.svc.Status()
		resp.ChainLength = st.ChainLength
		resp.PendingEvents = st.PendingCount
		resp.TipHash = st.Tip.BlockHash
	}

	c.JSON(http.StatusOK, resp)
}

// Readiness handles GET /api/v1/ready.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := map[string]string{"ledger": "ok"}
	status := "ready"
	statusCode := http.StatusOK

	if h.svc == nil {
		checks["ledger"] = "error"
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	for _, chk := range h.checks {
		if err := chk.Checker.HealthCheck(ctx); err != nil {
			fields := logrus.Fields{"check": chk.Name, "optional": chk.Optional}
			if chk.Optional {
				h.log.WithFields(fields).WithError(err).Warn("health.check_degraded")
				checks[chk.Name] = "degraded"

				continue
			}

			h.log.WithFields(fields).WithError(err).Error("health.check_failed")
			checks[chk.Name] = "error"
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable

			continue
		}

		checks[chk.Name] = "ok"
	}

	c.JSON(statusCode, readinessResponse{
		Status: status,
		Checks: checks,
	})
}
