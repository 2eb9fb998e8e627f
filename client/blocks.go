package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// BlockService reads and seals blocks.
type BlockService struct {
	c *Client
}

type blockListResponse struct {
	Blocks  []BlockHeader `json:"blocks"`
	HasMore bool          `json:"has_more"`
}

// List returns block headers, oldest first.
func (s *BlockService) List(ctx context.Context, limit, offset int) ([]BlockHeader, bool, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	var resp blockListResponse
	if err := s.c.get(ctx, "/api/v1/blocks", params, &resp); err != nil {
		return nil, false, err
	}
	return resp.Blocks, resp.HasMore, nil
}

// Get returns block n with its events.
func (s *BlockService) Get(ctx context.Context, n uint64) (*Block, error) {
	var b Block
	if err := s.c.get(ctx, "/api/v1/blocks/"+strconv.FormatUint(n, 10), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Seal seals every pending event into a new block. IsConflict reports an
// empty pending buffer.
func (s *BlockService) Seal(ctx context.Context) (*BlockHeader, error) {
	var h BlockHeader
	if err := s.c.post(ctx, "/api/v1/blocks/seal", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ChainService checks chain integrity.
type ChainService struct {
	c *Client
}

// Verify runs a full chain verification.
func (s *ChainService) Verify(ctx context.Context) (*VerificationReport, error) {
	var r VerificationReport
	if err := s.c.get(ctx, "/api/v1/chain/verify", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Status returns the chain length, pending count and tip.
func (s *ChainService) Status(ctx context.Context) (*ChainStatus, error) {
	var st ChainStatus
	if err := s.c.get(ctx, "/api/v1/chain/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ReportService generates compliance reports.
type ReportService struct {
	c *Client
}

// Generate builds a report for standard. Zero times let the server pick its
// default window.
func (s *ReportService) Generate(ctx context.Context, standard string, start, end time.Time) (*ComplianceReport, error) {
	params := url.Values{}
	if !start.IsZero() {
		params.Set("start", start.UTC().Format(time.RFC3339Nano))
	}
	if !end.IsZero() {
		params.Set("end", end.UTC().Format(time.RFC3339Nano))
	}
	var r ComplianceReport
	if err := s.c.get(ctx, "/api/v1/reports/"+url.PathEscape(standard), params, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
