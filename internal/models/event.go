// Package models defines data types for the audit ledger.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"
)

// EventType names the business action an audit event records.
type EventType string

// Known event types.
const (
	EventPolicyCreated    EventType = "policy_created"
	EventPolicyModified   EventType = "policy_modified"
	EventPolicyCancelled  EventType = "policy_cancelled"
	EventClaimSubmitted   EventType = "claim_submitted"
	EventClaimProcessed   EventType = "claim_processed"
	EventClaimApproved    EventType = "claim_approved"
	EventClaimRejected    EventType = "claim_rejected"
	EventClaimPaid        EventType = "claim_paid"
	EventFraudDetected    EventType = "fraud_detected"
	EventComplianceCheck  EventType = "compliance_check"
	EventUserAccess       EventType = "user_access"
	EventDataModified     EventType = "data_modified"
	EventPaymentProcessed EventType = "payment_processed"
	EventAIDecision       EventType = "ai_decision"
)

// EventTypes lists every known event type in declaration order.
var EventTypes = []EventType{
	EventPolicyCreated, EventPolicyModified, EventPolicyCancelled,
	EventClaimSubmitted, EventClaimProcessed, EventClaimApproved,
	EventClaimRejected, EventClaimPaid, EventFraudDetected,
	EventComplianceCheck, EventUserAccess, EventDataModified,
	EventPaymentProcessed, EventAIDecision,
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return slices.Contains(EventTypes, t)
}

// ParseEventType converts a string into a known EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, s)
	}

	return t, nil
}

// Severity is the ordered importance of an event.
type Severity string

// Severity levels, lowest first.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns the position of s in the severity order, or -1 if unknown.
func (s Severity) Rank() int {
	return slices.Index(Severities, s)
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// ParseSeverity converts a string into a Severity. Empty input yields medium.
func ParseSeverity(s string) (Severity, error) {
	if s == "" {
		return SeverityMedium, nil
	}

	sev := Severity(s)
	if !sev.Valid() {
		return "", fmt.Errorf("%w: unknown severity %q", ErrInvalidEvent, s)
	}

	return sev, nil
}

// AuditEvent is one append-only fact recorded in the ledger.
type AuditEvent struct {
	EventID        string         `json:"event_id"`
	EventType      EventType      `json:"event_type"`
	Timestamp      time.Time      `json:"timestamp"`
	UserID         string         `json:"user_id,omitempty"`
	AgentID        string         `json:"agent_id,omitempty"`
	EntityID       string         `json:"entity_id"`
	Description    string         `json:"description"`
	Details        map[string]any `json:"details"`
	Severity       Severity       `json:"severity"`
	IPAddress      string         `json:"ip_address,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	ComplianceTags []string       `json:"compliance_tags"`
}

// Validate checks the invariants every stored event must satisfy.
func (e *AuditEvent) Validate() error {
	if e.EventID == "" {
		return ErrMissingField("event_id")
	}

	if e.EntityID == "" {
		return ErrMissingField("entity_id")
	}

	if !e.EventType.Valid() {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, e.EventType)
	}

	if !e.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidEvent, e.Severity)
	}

	return nil
}

// HasTag reports whether the event carries the given compliance tag.
func (e *AuditEvent) HasTag(tag string) bool {
	return slices.Contains(e.ComplianceTags, tag)
}

// Clone returns a copy that shares no mutable state with e.
func (e *AuditEvent) Clone() AuditEvent {
	out := *e
	out.Details = CloneDetails(e.Details)
	out.ComplianceTags = slices.Clone(e.ComplianceTags)

	return out
}

// CloneDetails deep-copies a details map, descending into nested objects and arrays.
func CloneDetails(d map[string]any) map[string]any {
	if d == nil {
		return nil
	}

	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneDetails(t)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}

// DecodeJSON decodes data into v, keeping numbers as json.Number so integers
// beyond float64 precision survive unchanged.
func DecodeJSON(data []byte, v any) error {
	return DecodeJSONFrom(bytes.NewReader(data), v)
}

// DecodeJSONFrom is DecodeJSON over a stream. Trailing data after the first
// value is rejected.
func DecodeJSONFrom(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}

	if dec.More() {
		return errors.New("unexpected data after JSON value")
	}

	return nil
}

// AppendEventRequest is the payload for recording a new audit event.
type AppendEventRequest struct {
	EventType      string         `json:"event_type"`
	EntityID       string         `json:"entity_id"`
	Description    string         `json:"description"`
	Details        map[string]any `json:"details,omitempty"`
	Severity       string         `json:"severity,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	AgentID        string         `json:"agent_id,omitempty"`
	IPAddress      string         `json:"ip_address,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	ComplianceTags []string       `json:"compliance_tags,omitempty"`
}

// Field limits for AppendEventRequest.
const (
	maxEntityIDLen    = 255
	maxActorLen       = 255
	maxDescriptionLen = 10000
	maxTagLen         = 64
	maxTags           = 32
)

// Validate checks that required fields are present and within limits.
func (r *AppendEventRequest) Validate() error {
	if r.EntityID == "" {
		return ErrMissingField("entity_id")
	}

	if len(r.EntityID) > maxEntityIDLen {
		return ErrFieldTooLong("entity_id", maxEntityIDLen)
	}

	if r.EventType == "" {
		return ErrMissingField("event_type")
	}

	if _, err := ParseEventType(r.EventType); err != nil {
		return err
	}

	if _, err := ParseSeverity(r.Severity); err != nil {
		return err
	}

	if len(r.UserID) > maxActorLen {
		return ErrFieldTooLong("user_id", maxActorLen)
	}

	if len(r.AgentID) > maxActorLen {
		return ErrFieldTooLong("agent_id", maxActorLen)
	}

	if len(r.Description) > maxDescriptionLen {
		return ErrFieldTooLong("description", maxDescriptionLen)
	}

	if len(r.ComplianceTags) > maxTags {
		return fmt.Errorf("%w: at most %d compliance tags allowed", ErrInvalidEvent, maxTags)
	}

	for _, tag := range r.ComplianceTags {
		if tag == "" || len(tag) > maxTagLen {
			return fmt.Errorf("%w: compliance tags must be 1-%d characters", ErrInvalidEvent, maxTagLen)
		}
	}

	return nil
}
