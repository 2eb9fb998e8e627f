package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/middleware"
	"github.com/persistorai/auditledger/internal/models"
	"github.com/persistorai/auditledger/internal/service"
)

// EventHandler serves audit event endpoints.
type EventHandler struct {
	svc LedgerService
	log *logrus.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(svc LedgerService, log *logrus.Logger) *EventHandler {
	return &EventHandler{svc: svc, log: log}
}

// appendResponse is returned by Append.
type appendResponse struct {
	Event   *models.AuditEvent `json:"event"`
	Warning string             `json:"warning,omitempty"`
}

// Append handles POST /api/v1/events. An event that was recorded but whose
// triggered seal failed is answered with 202 and a warning.
func (h *EventHandler) Append(c *gin.Context) {
	var req models.AppendEventRequest
	if err := models.DecodeJSONFrom(c.Request.Body, &req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	ev, err := h.svc.AppendEvent(c.Request.Context(), req)
	if err != nil && !errors.Is(err, service.ErrSealDeferred) {
		respondServiceError(c, h.log, "api.append_failed", err)

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":     "event.append",
		"principal":  middleware.Principal(c),
		"event_id":   ev.EventID,
		"event_type": ev.EventType,
	}).Info("audit")

	if err != nil {
		c.JSON(http.StatusAccepted, appendResponse{Event: ev, Warning: err.Error()})

		return
	}

	c.JSON(http.StatusCreated, appendResponse{Event: ev})
}

// List handles GET /api/v1/events.
func (h *EventHandler) List(c *gin.Context) {
	opts, err := parseQueryOpts(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	events, hasMore, err := h.svc.ListEvents(c.Request.Context(), opts)
	if err != nil {
		respondServiceError(c, h.log, "api.list_events_failed", err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "has_more": hasMore})
}

// Proof handles GET /api/v1/events/:id/proof.
func (h *EventHandler) Proof(c *gin.Context) {
	id := c.Param("id")
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	proof, err := h.svc.Proof(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, "api.proof_failed", err)

		return
	}

	c.JSON(http.StatusOK, proof)
}
