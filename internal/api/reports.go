package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/middleware"
)

// defaultReportWindow is used when the caller gives no start.
const defaultReportWindow = 30 * 24 * time.Hour

// ReportHandler serves compliance reports.
type ReportHandler struct {
	reports ReportGenerator
	log     *logrus.Logger
	now     func() time.Time
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(reports ReportGenerator, log *logrus.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, log: log, now: time.Now}
}

// Generate handles GET /api/v1/reports/:standard?start=&end=. The window
// defaults to the last 30 days ending now.
func (h *ReportHandler) Generate(c *gin.Context) {
	standard := strings.ToUpper(strings.TrimSpace(c.Param("standard")))

	start, err := parseTime("start", c.Query("start"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	end, err := parseEnd("end", c.Query("end"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	if end == nil {
		now := h.now().UTC()
		end = &now
	}

	if start == nil {
		s := end.Add(-defaultReportWindow)
		start = &s
	}

	report, err := h.reports.Generate(c.Request.Context(), standard, *start, *end)
	if err != nil {
		respondServiceError(c, h.log, "api.report_failed", err)

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":    "report.generate",
		"principal": middleware.Principal(c),
		"standard":  standard,
		"events":    report.TotalEvents,
	}).Info("audit")

	c.JSON(http.StatusOK, report)
}
