// Package service sits between the transports (HTTP, Kafka) and the ledger.
package service

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/ledger"
	"github.com/persistorai/auditledger/internal/models"
)

// Paging limits for list operations.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// Chain is the ledger surface the service depends on.
type Chain interface {
	Append(ctx context.Context, ev models.AuditEvent) (string, error)
	Flush(ctx context.Context) (*models.Block, error)
	Blocks() []*models.Block
	Block(n uint64) (*models.Block, error)
	Pending() []models.AuditEvent
	Tip() models.BlockHeader
	Proof(eventID string) (*models.MerkleProof, error)
	Verify(ctx context.Context) models.VerificationReport
	Query(opts models.QueryOpts) iter.Seq[models.AuditEvent]
}

// EventBuilder turns caller input into a complete AuditEvent.
type EventBuilder interface {
	NewEvent(req models.AppendEventRequest) (models.AuditEvent, error)
}

// ReportCache records verification reports keyed by tip hash. A miss is
// (nil, nil).
type ReportCache interface {
	Get(ctx context.Context, tipHash string) (*models.VerificationReport, error)
	Put(ctx context.Context, report *models.VerificationReport) error
}

// ChainStatus summarises the ledger for health and stats endpoints.
type ChainStatus struct {
	ChainLength  int                `json:"chain_length"`
	PendingCount int                `json:"pending_events"`
	Tip          models.BlockHeader `json:"tip"`
}

// LedgerService validates requests, appends events and serves reads.
type LedgerService struct {
	chain  Chain
	events EventBuilder
	cache  ReportCache
	log    *logrus.Logger
}

// NewLedgerService creates a LedgerService. cache may be nil.
func NewLedgerService(chain Chain, events EventBuilder, cache ReportCache, log *logrus.Logger) *LedgerService {
	return &LedgerService{chain: chain, events: events, cache: cache, log: log}
}

// ErrSealDeferred marks an append whose event was stored as pending but whose
// triggered seal failed. The event will be sealed by a later append or flush.
var ErrSealDeferred = errors.New("event accepted, sealing deferred")

// AppendEvent builds an event from req and appends it. When the event was
// buffered but the seal it triggered failed, the event is returned together
// with an error wrapping both ErrSealDeferred and the seal failure.
func (s *LedgerService) AppendEvent(ctx context.Context, req models.AppendEventRequest) (*models.AuditEvent, error) {
	ev, err := s.events.NewEvent(req)
	if err != nil {
		return nil, err
	}

	id, err := s.chain.Append(ctx, ev)
	if id == "" {
		return nil, err
	}

	fields := logrus.Fields{
		"event_id":   id,
		"event_type": ev.EventType,
		"entity_id":  ev.EntityID,
		"severity":   ev.Severity,
	}

	if err != nil {
		s.log.WithFields(fields).WithError(err).Warn("ledger.event_seal_deferred")
		return &ev, fmt.Errorf("%w: %w", ErrSealDeferred, err)
	}

	s.log.WithFields(fields).Debug("ledger.event_appended")

	return &ev, nil
}

// ListEvents returns one page of events matching opts and whether more follow.
func (s *LedgerService) ListEvents(_ context.Context, opts models.QueryOpts) ([]models.AuditEvent, bool, error) {
	if err := normalizePage(&opts.Limit, &opts.Offset); err != nil {
		return nil, false, err
	}

	if opts.EventType != "" && !opts.EventType.Valid() {
		return nil, false, fmt.Errorf("%w: unknown event type %q", models.ErrInvalidQuery, opts.EventType)
	}

	if opts.Start != nil && opts.End != nil && opts.End.Before(*opts.Start) {
		return nil, false, fmt.Errorf("%w: end is before start", models.ErrInvalidQuery)
	}

	events, more := ledger.Collect(s.chain.Query(opts), opts.Offset, opts.Limit)

	return events, more, nil
}

// Query streams every event matching opts, oldest first.
func (s *LedgerService) Query(opts models.QueryOpts) iter.Seq[models.AuditEvent] {
	return s.chain.Query(opts)
}

// Proof returns the Merkle inclusion proof of a sealed event.
func (s *LedgerService) Proof(_ context.Context, eventID string) (*models.MerkleProof, error) {
	return s.chain.Proof(eventID)
}

// ListBlocks returns headers of blocks starting at offset, newest last.
func (s *LedgerService) ListBlocks(_ context.Context, limit, offset int) ([]models.BlockHeader, bool, error) {
	if err := normalizePage(&limit, &offset); err != nil {
		return nil, false, err
	}

	blocks := s.chain.Blocks()
	if offset >= len(blocks) {
		return []models.BlockHeader{}, false, nil
	}

	end := min(offset+limit, len(blocks))
	headers := make([]models.BlockHeader, 0, end-offset)
	for _, b := range blocks[offset:end] {
		headers = append(headers, b.Header())
	}

	return headers, end < len(blocks), nil
}

// Block returns block n with its events.
func (s *LedgerService) Block(_ context.Context, n uint64) (*models.Block, error) {
	return s.chain.Block(n)
}

// Seal seals every pending event now.
func (s *LedgerService) Seal(ctx context.Context) (*models.Block, error) {
	return s.chain.Flush(ctx)
}

// Verify checks the whole chain. The report is always recomputed from the
// blocks in memory, then recorded as the latest result for the current tip.
func (s *LedgerService) Verify(ctx context.Context) models.VerificationReport {
	report := s.chain.Verify(ctx)
	if !report.IsValid {
		s.log.WithFields(logrus.Fields{"errors": len(report.Errors), "tip_hash": report.TipHash}).Error("ledger.integrity_violation")
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, &report); err != nil {
			s.log.WithError(err).Warn("verify.cache_write_failed")
		}
	}

	return report
}

// LastVerification returns the report recorded by the most recent Verify for
// the current tip, or nil when there is none. It describes a past run and is
// never a substitute for Verify.
func (s *LedgerService) LastVerification(ctx context.Context) *models.VerificationReport {
	if s.cache == nil {
		return nil
	}

	report, err := s.cache.Get(ctx, s.chain.Tip().BlockHash)
	if err != nil {
		s.log.WithError(err).Warn("verify.cache_read_failed")
		return nil
	}

	return report
}

// Status returns the chain length, pending count and tip.
func (s *LedgerService) Status() ChainStatus {
	return ChainStatus{
		ChainLength:  len(s.chain.Blocks()),
		PendingCount: len(s.chain.Pending()),
		Tip:          s.chain.Tip(),
	}
}

// normalizePage applies defaults and bounds to limit and offset.
func normalizePage(limit, offset *int) error {
	if *limit < 0 || *offset < 0 {
		return fmt.Errorf("%w: limit and offset must not be negative", models.ErrInvalidQuery)
	}

	if *limit == 0 {
		*limit = DefaultPageSize
	}
	*limit = min(*limit, MaxPageSize)

	return nil
}
