package models

import "time"

// QueryOpts holds filters for querying audit events. Zero values mean "no filter";
// all supplied filters must match.
type QueryOpts struct {
	EntityID      string
	EventType     EventType
	UserID        string
	AgentID       string
	Start         *time.Time
	End           *time.Time
	ComplianceTag string
	Limit         int
	Offset        int
}

// Matches reports whether e satisfies every filter in opts. Limit and Offset are ignored.
func (o *QueryOpts) Matches(e *AuditEvent) bool {
	if o.EntityID != "" && e.EntityID != o.EntityID {
		return false
	}

	if o.EventType != "" && e.EventType != o.EventType {
		return false
	}

	if o.UserID != "" && e.UserID != o.UserID {
		return false
	}

	if o.AgentID != "" && e.AgentID != o.AgentID {
		return false
	}

	if o.Start != nil && e.Timestamp.Before(*o.Start) {
		return false
	}

	if o.End != nil && e.Timestamp.After(*o.End) {
		return false
	}

	if o.ComplianceTag != "" && !e.HasTag(o.ComplianceTag) {
		return false
	}

	return true
}
