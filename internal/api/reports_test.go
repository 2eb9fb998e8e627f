package api_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/persistorai/auditledger/internal/api"
	"github.com/persistorai/auditledger/internal/models"
)

func TestReportGenerate_DefaultWindow(t *testing.T) {
	t.Parallel()

	var gotStandard string
	var gotStart, gotEnd time.Time
	reports := &mockReports{
		generateFn: func(_ context.Context, standard string, start, end time.Time) (*models.ComplianceReport, error) {
			gotStandard, gotStart, gotEnd = standard, start, end
			return &models.ComplianceReport{ComplianceStandard: standard}, nil
		},
	}

	r := newTestRouter()
	r.GET("/reports/:standard", api.NewReportHandler(reports, testLogger()).Generate)

	w := doRequest(r, http.MethodGet, "/reports/gdpr", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if gotStandard != "GDPR" {
		t.Errorf("standard = %q, want GDPR", gotStandard)
	}

	if d := gotEnd.Sub(gotStart); d != 30*24*time.Hour {
		t.Errorf("window = %v, want 30 days", d)
	}
}

func TestReportGenerate_ExplicitRange(t *testing.T) {
	t.Parallel()

	var gotStart, gotEnd time.Time
	reports := &mockReports{
		generateFn: func(_ context.Context, standard string, start, end time.Time) (*models.ComplianceReport, error) {
			gotStart, gotEnd = start, end
			return &models.ComplianceReport{ComplianceStandard: standard}, nil
		},
	}

	r := newTestRouter()
	r.GET("/reports/:standard", api.NewReportHandler(reports, testLogger()).Generate)

	w := doRequest(r, http.MethodGet, "/reports/SOX?start=2026-01-01&end=2026-02-01T00:00:00Z", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if !gotStart.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) || !gotEnd.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("range = %v - %v", gotStart, gotEnd)
	}
}

func TestReportGenerate_DateOnlyEndCoversWholeDay(t *testing.T) {
	t.Parallel()

	var gotStart, gotEnd time.Time
	reports := &mockReports{
		generateFn: func(_ context.Context, standard string, start, end time.Time) (*models.ComplianceReport, error) {
			gotStart, gotEnd = start, end
			return &models.ComplianceReport{ComplianceStandard: standard}, nil
		},
	}

	r := newTestRouter()
	r.GET("/reports/:standard", api.NewReportHandler(reports, testLogger()).Generate)

	w := doRequest(r, http.MethodGet, "/reports/SOX?start=2026-01-31&end=2026-01-31", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	wantEnd := time.Date(2026, 1, 31, 23, 59, 59, 999999999, time.UTC)
	if !gotStart.Equal(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)) || !gotEnd.Equal(wantEnd) {
		t.Errorf("range = %v - %v, want the whole of 2026-01-31", gotStart, gotEnd)
	}
}

func TestReportGenerate_Errors(t *testing.T) {
	t.Parallel()

	reports := &mockReports{
		generateFn: func(context.Context, string, time.Time, time.Time) (*models.ComplianceReport, error) {
			return nil, fmt.Errorf("%w: report end is before start", models.ErrInvalidQuery)
		},
	}

	r := newTestRouter()
	r.GET("/reports/:standard", api.NewReportHandler(reports, testLogger()).Generate)

	for _, path := range []string{
		"/reports/SOX?start=01/02/2026",
		"/reports/SOX?end=soon",
		"/reports/SOX?start=2026-02-01&end=2026-01-01",
	} {
		if w := doRequest(r, http.MethodGet, path, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}
