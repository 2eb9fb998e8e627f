package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/persistorai/auditledger/internal/api"
	"github.com/persistorai/auditledger/internal/httputil"
	"github.com/persistorai/auditledger/internal/models"
	"github.com/persistorai/auditledger/internal/service"
)

func decodeError(t *testing.T, body []byte) httputil.ErrorBody {
	t.Helper()

	var e httputil.ErrorBody
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("invalid error JSON: %v", err)
	}

	return e
}

func TestEventAppend_Created(t *testing.T) {
	t.Parallel()

	var got models.AppendEventRequest
	svc := &mockLedger{
		appendFn: func(_ context.Context, req models.AppendEventRequest) (*models.AuditEvent, error) {
			got = req
			return testEvent("AE_1"), nil
		},
	}

	r := newTestRouter()
	r.POST("/events", api.NewEventHandler(svc, testLogger()).Append)

	w := doRequest(r, http.MethodPost, "/events", `{"event_type":"claim_paid","entity_id":"CLM-1","severity":"high"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	if got.EntityID != "CLM-1" || got.EventType != "claim_paid" {
		t.Errorf("request passed to service = %+v", got)
	}

	var resp struct {
		Event   models.AuditEvent `json:"event"`
		Warning string            `json:"warning"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if resp.Event.EventID != "AE_1" || resp.Warning != "" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestEventAppend_KeepsLargeIntegerDetails(t *testing.T) {
	t.Parallel()

	var got models.AppendEventRequest
	svc := &mockLedger{
		appendFn: func(_ context.Context, req models.AppendEventRequest) (*models.AuditEvent, error) {
			got = req
			return testEvent("AE_1"), nil
		},
	}

	r := newTestRouter()
	r.POST("/events", api.NewEventHandler(svc, testLogger()).Append)

	w := doRequest(r, http.MethodPost, "/events",
		`{"event_type":"payment_processed","entity_id":"PAY-1","details":{"ledger_ref":9007199254740993}}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	if ref := got.Details["ledger_ref"]; ref != json.Number("9007199254740993") {
		t.Errorf("ledger_ref = %#v, want exact json.Number", ref)
	}
}

func TestEventAppend_SealDeferred(t *testing.T) {
	t.Parallel()

	svc := &mockLedger{
		appendFn: func(context.Context, models.AppendEventRequest) (*models.AuditEvent, error) {
			return testEvent("AE_2"), fmt.Errorf("%w: %w", service.ErrSealDeferred, models.ErrSealingTimeout)
		},
	}

	r := newTestRouter()
	r.POST("/events", api.NewEventHandler(svc, testLogger()).Append)

	w := doRequest(r, http.MethodPost, "/events", `{"event_type":"claim_paid","entity_id":"CLM-1"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if resp["warning"] == nil || resp["warning"] == "" {
		t.Errorf("expected a warning, got %v", resp)
	}
}

func TestEventAppend_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"malformed body", `{"event_type":`, nil, http.StatusBadRequest, api.ErrCodeInvalidRequest},
		{"trailing data", `{"event_type":"claim_paid","entity_id":"x"} {}`, nil, http.StatusBadRequest, api.ErrCodeInvalidRequest},
		{"validation", `{"event_type":"claim_paid"}`, models.ErrMissingField("entity_id"), http.StatusBadRequest, api.ErrCodeValidationError},
		{"signing", `{"event_type":"claim_paid","entity_id":"x"}`, fmt.Errorf("persisting: %w", models.ErrSigningService), http.StatusBadGateway, api.ErrCodeSigningError},
		{"internal", `{"event_type":"claim_paid","entity_id":"x"}`, fmt.Errorf("database down"), http.StatusInternalServerError, api.ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockLedger{
				appendFn: func(context.Context, models.AppendEventRequest) (*models.AuditEvent, error) {
					return nil, tt.err
				},
			}

			r := newTestRouter()
			r.POST("/events", api.NewEventHandler(svc, testLogger()).Append)

			w := doRequest(r, http.MethodPost, "/events", tt.body)

			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}

			if e := decodeError(t, w.Body.Bytes()); e.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, e.Code)
			}
		})
	}
}

func TestEventList_PassesFilters(t *testing.T) {
	t.Parallel()

	var got models.QueryOpts
	svc := &mockLedger{
		listFn: func(_ context.Context, opts models.QueryOpts) ([]models.AuditEvent, bool, error) {
			got = opts
			return []models.AuditEvent{*testEvent("AE_1")}, true, nil
		},
	}

	r := newTestRouter()
	r.GET("/events", api.NewEventHandler(svc, testLogger()).List)

	w := doRequest(r, http.MethodGet,
		"/events?entity_id=CLM-1&event_type=claim_paid&compliance_tag=SOX&start=2026-03-01&end=2026-03-02T00:00:00Z&limit=10&offset=5", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if got.EntityID != "CLM-1" || got.EventType != models.EventClaimPaid || got.ComplianceTag != "SOX" {
		t.Errorf("filters = %+v", got)
	}

	if got.Start == nil || got.Start.Day() != 1 || got.End == nil || got.End.Day() != 2 {
		t.Errorf("time range = %v - %v", got.Start, got.End)
	}

	if got.Limit != 10 || got.Offset != 5 {
		t.Errorf("page = %d/%d, want 10/5", got.Limit, got.Offset)
	}

	var resp struct {
		Events  []models.AuditEvent `json:"events"`
		HasMore bool                `json:"has_more"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if len(resp.Events) != 1 || !resp.HasMore {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestEventList_DateOnlyEndIsInclusive(t *testing.T) {
	t.Parallel()

	var got models.QueryOpts
	svc := &mockLedger{
		listFn: func(_ context.Context, opts models.QueryOpts) ([]models.AuditEvent, bool, error) {
			got = opts
			return nil, false, nil
		},
	}

	r := newTestRouter()
	r.GET("/events", api.NewEventHandler(svc, testLogger()).List)

	w := doRequest(r, http.MethodGet, "/events?start=2026-03-01&end=2026-03-01", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if got.Start == nil || got.End == nil {
		t.Fatalf("time range = %v - %v", got.Start, got.End)
	}

	afternoon := models.AuditEvent{Timestamp: got.Start.Add(15*time.Hour + 30*time.Minute)}
	if !got.Matches(&afternoon) {
		t.Errorf("end=2026-03-01 excludes an event at %v (end %v)", afternoon.Timestamp, got.End)
	}

	nextDay := models.AuditEvent{Timestamp: got.Start.Add(24 * time.Hour)}
	if got.Matches(&nextDay) {
		t.Errorf("end=2026-03-01 includes an event at %v", nextDay.Timestamp)
	}
}

func TestEventList_BadParams(t *testing.T) {
	t.Parallel()

	svc := &mockLedger{
		listFn: func(context.Context, models.QueryOpts) ([]models.AuditEvent, bool, error) {
			return nil, false, fmt.Errorf("%w: unknown event type", models.ErrInvalidQuery)
		},
	}

	r := newTestRouter()
	r.GET("/events", api.NewEventHandler(svc, testLogger()).List)

	for _, path := range []string{
		"/events?start=yesterday",
		"/events?limit=-1",
		"/events?offset=abc",
		"/events?event_type=bogus",
	} {
		w := doRequest(r, http.MethodGet, path, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestEventProof(t *testing.T) {
	t.Parallel()

	svc := &mockLedger{
		proofFn: func(_ context.Context, id string) (*models.MerkleProof, error) {
			switch id {
			case "AE_sealed":
				return &models.MerkleProof{EventID: id, BlockNumber: 3}, nil
			case "AE_pending":
				return nil, fmt.Errorf("event %s: %w", id, models.ErrEventPending)
			default:
				return nil, fmt.Errorf("event %s: %w", id, models.ErrNotFound)
			}
		},
	}

	r := newTestRouter()
	r.GET("/events/:id/proof", api.NewEventHandler(svc, testLogger()).Proof)

	tests := map[string]int{
		"/events/AE_sealed/proof":  http.StatusOK,
		"/events/AE_pending/proof": http.StatusConflict,
		"/events/AE_missing/proof": http.StatusNotFound,
	}

	for path, want := range tests {
		if w := doRequest(r, http.MethodGet, path, ""); w.Code != want {
			t.Errorf("%s: expected %d, got %d", path, want, w.Code)
		}
	}
}
