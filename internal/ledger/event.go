package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/persistorai/auditledger/internal/models"
)

// TagResolver returns the default compliance tags of an event type.
type TagResolver interface {
	TagsFor(t models.EventType) []string
}

// EventFactory builds AuditEvents with generated ids, timestamps and
// compliance tags.
type EventFactory struct {
	tags TagResolver
	now  func() time.Time
}

// NewEventFactory creates an EventFactory. A nil resolver adds no default tags.
func NewEventFactory(tags TagResolver) *EventFactory {
	return &EventFactory{tags: tags, now: time.Now}
}

// NewEvent validates req and turns it into an AuditEvent ready to append.
func (f *EventFactory) NewEvent(req models.AppendEventRequest) (models.AuditEvent, error) {
	if err := req.Validate(); err != nil {
		return models.AuditEvent{}, err
	}

	eventType, err := models.ParseEventType(req.EventType)
	if err != nil {
		return models.AuditEvent{}, err
	}

	severity, err := models.ParseSeverity(req.Severity)
	if err != nil {
		return models.AuditEvent{}, err
	}

	ts := f.now().UTC().Truncate(Precision)

	details := req.Details
	if details == nil {
		details = map[string]any{}
	}

	var defaults []string
	if f.tags != nil {
		defaults = f.tags.TagsFor(eventType)
	}

	return models.AuditEvent{
		EventID:        newEventID(ts),
		EventType:      eventType,
		Timestamp:      ts,
		UserID:         req.UserID,
		AgentID:        req.AgentID,
		EntityID:       req.EntityID,
		Description:    req.Description,
		Details:        details,
		Severity:       severity,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		ComplianceTags: mergeTags(req.ComplianceTags, defaults),
	}, nil
}

// newEventID returns "AE_<yyyyMMddHHmmss>_<8 uppercase hex>".
func newEventID(ts time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("AE_%s_%s", ts.UTC().Format("20060102150405"), suffix)
}

// mergeTags returns caller tags followed by defaults, first occurrence wins.
func mergeTags(caller, defaults []string) []string {
	out := make([]string, 0, len(caller)+len(defaults))
	for _, tag := range slices.Concat(caller, defaults) {
		if !slices.Contains(out, tag) {
			out = append(out, tag)
		}
	}

	return out
}
