package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// EventService records and reads audit events.
type EventService struct {
	c *Client
}

// eventListResponse wraps the paginated event list response.
type eventListResponse struct {
	Events  []AuditEvent `json:"events"`
	HasMore bool         `json:"has_more"`
}

// Append records an event. A result with a non-empty Warning means the event
// was stored but not yet sealed.
func (s *EventService) Append(ctx context.Context, req *AppendEventRequest) (*AppendResult, error) {
	var res AppendResult
	if err := s.c.post(ctx, "/api/v1/events", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// List returns events matching opts, oldest first.
func (s *EventService) List(ctx context.Context, opts *EventListOptions) ([]AuditEvent, bool, error) {
	params := url.Values{}
	if opts != nil {
		setIf(params, "entity_id", opts.EntityID)
		setIf(params, "event_type", opts.EventType)
		setIf(params, "user_id", opts.UserID)
		setIf(params, "agent_id", opts.AgentID)
		setIf(params, "compliance_tag", opts.ComplianceTag)
		if opts.Start != nil {
			params.Set("start", opts.Start.UTC().Format(time.RFC3339Nano))
		}
		if opts.End != nil {
			params.Set("end", opts.End.UTC().Format(time.RFC3339Nano))
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			params.Set("offset", strconv.Itoa(opts.Offset))
		}
	}
	var resp eventListResponse
	if err := s.c.get(ctx, "/api/v1/events", params, &resp); err != nil {
		return nil, false, err
	}
	return resp.Events, resp.HasMore, nil
}

// Proof returns the Merkle inclusion proof of a sealed event.
func (s *EventService) Proof(ctx context.Context, eventID string) (*MerkleProof, error) {
	var proof MerkleProof
	if err := s.c.get(ctx, "/api/v1/events/"+url.PathEscape(eventID)+"/proof", nil, &proof); err != nil {
		return nil, err
	}
	return &proof, nil
}

func setIf(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}
