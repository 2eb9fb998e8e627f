package models_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/persistorai/auditledger/internal/models"
)

func ptr[T any](v T) *T { return &v }

func assertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func assertErrorContains(t *testing.T, err error, want string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error containing %q, got nil", want)
	}

	if !strings.Contains(err.Error(), want) {
		t.Errorf("expected error containing %q, got %q", want, err.Error())
	}
}

func TestAppendEventRequest_Validate(t *testing.T) {
	valid := func() models.AppendEventRequest {
		return models.AppendEventRequest{EventType: "claim_paid", EntityID: "CLM-1", Description: "paid"}
	}

	tests := []struct {
		name    string
		mutate  func(r *models.AppendEventRequest)
		wantErr string
	}{
		{name: "valid", mutate: func(*models.AppendEventRequest) {}},
		{name: "valid with severity", mutate: func(r *models.AppendEventRequest) { r.Severity = "critical" }},
		{name: "missing entity", mutate: func(r *models.AppendEventRequest) { r.EntityID = "" }, wantErr: "entity_id is required"},
		{name: "missing type", mutate: func(r *models.AppendEventRequest) { r.EventType = "" }, wantErr: "event_type is required"},
		{name: "unknown type", mutate: func(r *models.AppendEventRequest) { r.EventType = "bogus" }, wantErr: "unknown event type"},
		{name: "unknown severity", mutate: func(r *models.AppendEventRequest) { r.Severity = "urgent" }, wantErr: "unknown severity"},
		{name: "entity too long", mutate: func(r *models.AppendEventRequest) { r.EntityID = strings.Repeat("x", 256) }, wantErr: "exceeds maximum length"},
		{name: "description too long", mutate: func(r *models.AppendEventRequest) { r.Description = strings.Repeat("x", 10001) }, wantErr: "exceeds maximum length"},
		{name: "empty tag", mutate: func(r *models.AppendEventRequest) { r.ComplianceTags = []string{""} }, wantErr: "compliance tags"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := valid()
			tc.mutate(&req)

			err := req.Validate()
			if tc.wantErr != "" {
				assertErrorContains(t, err, tc.wantErr)

				if !errors.Is(err, models.ErrInvalidEvent) {
					t.Errorf("expected ErrInvalidEvent, got %v", err)
				}

				return
			}
			assertNoError(t, err)
		})
	}
}

func TestSeverity_Rank(t *testing.T) {
	if !(models.SeverityLow.Rank() < models.SeverityMedium.Rank() &&
		models.SeverityMedium.Rank() < models.SeverityHigh.Rank() &&
		models.SeverityHigh.Rank() < models.SeverityCritical.Rank()) {
		t.Fatal("severity order is not low < medium < high < critical")
	}

	if models.Severity("nope").Valid() {
		t.Error("unknown severity reported valid")
	}
}

func TestParseSeverity_DefaultsToMedium(t *testing.T) {
	sev, err := models.ParseSeverity("")
	assertNoError(t, err)

	if sev != models.SeverityMedium {
		t.Errorf("got %q, want medium", sev)
	}
}

func TestAuditEvent_Clone(t *testing.T) {
	orig := models.AuditEvent{
		EventID:        "AE_1",
		EntityID:       "P-1",
		Details:        map[string]any{"amount": 10},
		ComplianceTags: []string{"SOX"},
	}

	cp := orig.Clone()
	cp.Details["amount"] = 99
	cp.ComplianceTags[0] = "GDPR"

	if orig.Details["amount"] != 10 {
		t.Error("clone shares details map with original")
	}

	if orig.ComplianceTags[0] != "SOX" {
		t.Error("clone shares tag slice with original")
	}
}

func TestAuditEvent_CloneNestedDetails(t *testing.T) {
	orig := models.AuditEvent{
		EventID: "AE_1",
		Details: map[string]any{
			"claim": map[string]any{"amount": 100},
			"items": []any{map[string]any{"sku": "A"}, "loose"},
		},
	}

	cp := orig.Clone()
	cp.Details["claim"].(map[string]any)["amount"] = 1
	cp.Details["items"].([]any)[0].(map[string]any)["sku"] = "B"
	cp.Details["items"].([]any)[1] = "moved"

	if got := orig.Details["claim"].(map[string]any)["amount"]; got != 100 {
		t.Errorf("nested object shared with clone: amount = %v", got)
	}

	items := orig.Details["items"].([]any)
	if got := items[0].(map[string]any)["sku"]; got != "A" {
		t.Errorf("object inside array shared with clone: sku = %v", got)
	}
	if items[1] != "loose" {
		t.Errorf("array shared with clone: items[1] = %v", items[1])
	}
}

func TestCloneDetails_Nil(t *testing.T) {
	if got := models.CloneDetails(nil); got != nil {
		t.Errorf("CloneDetails(nil) = %v, want nil", got)
	}
}

func TestDecodeJSON_KeepsLargeIntegers(t *testing.T) {
	var req models.AppendEventRequest
	body := []byte(`{"entity_id":"P-1","details":{"a":9007199254740993,"b":9007199254740992,"c":{"d":1.50}}}`)

	if err := models.DecodeJSON(body, &req); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}

	if got := req.Details["a"]; got != json.Number("9007199254740993") {
		t.Errorf("a = %#v, want json.Number 9007199254740993", got)
	}
	if got := req.Details["b"]; got != json.Number("9007199254740992") {
		t.Errorf("b = %#v, want json.Number 9007199254740992", got)
	}
	if got := req.Details["c"].(map[string]any)["d"]; got != json.Number("1.50") {
		t.Errorf("c.d = %#v, want json.Number 1.50", got)
	}
}

func TestDecodeJSON_RejectsTrailingData(t *testing.T) {
	var v map[string]any
	if err := models.DecodeJSON([]byte(`{"a":1} {"b":2}`), &v); err == nil {
		t.Fatal("expected error for trailing value")
	}
	if err := models.DecodeJSON([]byte(`{"a":`), &v); err == nil {
		t.Fatal("expected error for truncated input")
	}
}

func TestQueryOpts_Matches(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := models.AuditEvent{
		EntityID:       "CLM-9",
		EventType:      models.EventFraudDetected,
		UserID:         "u1",
		AgentID:        "fraud-agent",
		Timestamp:      at,
		ComplianceTags: []string{"AML", "SOX"},
	}

	tests := []struct {
		name string
		opts models.QueryOpts
		want bool
	}{
		{"no filters", models.QueryOpts{}, true},
		{"entity match", models.QueryOpts{EntityID: "CLM-9"}, true},
		{"entity miss", models.QueryOpts{EntityID: "CLM-1"}, false},
		{"type match", models.QueryOpts{EventType: models.EventFraudDetected}, true},
		{"type miss", models.QueryOpts{EventType: models.EventClaimPaid}, false},
		{"user miss", models.QueryOpts{UserID: "u2"}, false},
		{"agent match", models.QueryOpts{AgentID: "fraud-agent"}, true},
		{"start inclusive", models.QueryOpts{Start: ptr(at)}, true},
		{"end inclusive", models.QueryOpts{End: ptr(at)}, true},
		{"after end", models.QueryOpts{End: ptr(at.Add(-time.Second))}, false},
		{"before start", models.QueryOpts{Start: ptr(at.Add(time.Second))}, false},
		{"tag match", models.QueryOpts{ComplianceTag: "AML"}, true},
		{"tag miss", models.QueryOpts{ComplianceTag: "GDPR"}, false},
		{"and of filters", models.QueryOpts{EntityID: "CLM-9", ComplianceTag: "GDPR"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.opts.Matches(&ev); got != tc.want {
				t.Errorf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBlock_HeaderAndClone(t *testing.T) {
	b := &models.Block{
		BlockNumber: 3,
		Events:      []models.AuditEvent{{EventID: "a"}, {EventID: "b"}},
		BlockHash:   "abc",
	}

	h := b.Header()
	if h.EventCount != 2 || h.BlockHash != "abc" || h.BlockNumber != 3 {
		t.Errorf("unexpected header %+v", h)
	}

	cp := b.Clone()
	cp.Events[0].EventID = "changed"

	if b.Events[0].EventID != "a" {
		t.Error("clone shares events with original")
	}
}
