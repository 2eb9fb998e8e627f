package store

import (
	"context"

	"github.com/persistorai/auditledger/internal/models"
)

// eventColumns lists the columns selected for event queries.
const eventColumns = `event_id, event_type, occurred_at, user_id, agent_id, entity_id,
	description, details, details_encrypted, severity, ip_address, user_agent,
	compliance_tags, block_number, position`

// eventRow is a scanned ledger_events row.
type eventRow struct {
	event       models.AuditEvent
	blockNumber *int64
	position    *int32
}

// scanEvent scans one row selected with eventColumns and decodes its details.
func (b *Base) scanEvent(ctx context.Context, scan func(dest ...any) error) (*eventRow, error) {
	var (
		r          eventRow
		plain      []byte
		ciphertext *string
	)

	err := scan(
		&r.event.EventID,
		&r.event.EventType,
		&r.event.Timestamp,
		&r.event.UserID,
		&r.event.AgentID,
		&r.event.EntityID,
		&r.event.Description,
		&plain,
		&ciphertext,
		&r.event.Severity,
		&r.event.IPAddress,
		&r.event.UserAgent,
		&r.event.ComplianceTags,
		&r.blockNumber,
		&r.position,
	)
	if err != nil {
		return nil, err
	}

	r.event.Timestamp = r.event.Timestamp.UTC()

	details, err := b.decodeDetails(ctx, r.event.EventID, plain, ciphertext)
	if err != nil {
		return nil, err
	}
	r.event.Details = details

	return &r, nil
}
