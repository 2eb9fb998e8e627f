package api

import (
	"context"
	"time"

	"github.com/persistorai/auditledger/internal/models"
	"github.com/persistorai/auditledger/internal/service"
)

// LedgerService defines the ledger operations used by the handlers.
type LedgerService interface {
	AppendEvent(ctx context.Context, req models.AppendEventRequest) (*models.AuditEvent, error)
	ListEvents(ctx context.Context, opts models.QueryOpts) ([]models.AuditEvent, bool, error)
	Proof(ctx context.Context, eventID string) (*models.MerkleProof, error)
	ListBlocks(ctx context.Context, limit, offset int) ([]models.BlockHeader, bool, error)
	Block(ctx context.Context, n uint64) (*models.Block, error)
	Seal(ctx context.Context) (*models.Block, error)
	Verify(ctx context.Context) models.VerificationReport
	LastVerification(ctx context.Context) *models.VerificationReport
	Status() service.ChainStatus
}

// ReportGenerator builds compliance reports.
type ReportGenerator interface {
	Generate(ctx context.Context, standard string, start, end time.Time) (*models.ComplianceReport, error)
}

// HealthChecker is a dependency that can be pinged.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
