package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/persistorai/auditledger/internal/metrics"
	"github.com/persistorai/auditledger/internal/models"
	"github.com/persistorai/auditledger/internal/tracing"
)

// VerifyChain walks blocks in order and reports every integrity break it finds.
// It never stops at the first problem and never returns an error: signer
// failures are reported as data like any other break.
func VerifyChain(ctx context.Context, blocks []*models.Block, signer Signer, difficulty int) models.VerificationReport {
	ctx, end := tracing.StartSpan(ctx, "ledger.verify", attribute.Int("blocks", len(blocks)))

	report := models.VerificationReport{
		Errors:      []models.VerificationError{},
		Warnings:    []string{},
		TotalBlocks: len(blocks),
		VerifiedAt:  time.Now().UTC(),
	}

	if len(blocks) == 0 {
		report.Warnings = append(report.Warnings, "chain is empty")
	} else if len(blocks) == 1 {
		report.Warnings = append(report.Warnings, "chain contains only the genesis block")
	}

	target := strings.Repeat("0", max(difficulty, 0))

	for i, b := range blocks {
		report.TotalEvents += len(b.Events)
		report.Errors = append(report.Errors, verifyBlock(ctx, b, i, signer)...)

		if i > 0 && b.PreviousHash != blocks[i-1].BlockHash {
			report.Errors = append(report.Errors, models.VerificationError{
				BlockNumber: b.BlockNumber,
				Kind:        models.IntegrityLinkage,
				Message: fmt.Sprintf("previous_hash %s does not match hash %s of block %d",
					b.PreviousHash, blocks[i-1].BlockHash, blocks[i-1].BlockNumber),
			})
		}

		if !strings.HasPrefix(b.BlockHash, target) {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("block %d hash does not meet the current difficulty %d", b.BlockNumber, difficulty))
		}
	}

	if len(blocks) > 0 {
		report.TipHash = blocks[len(blocks)-1].BlockHash
	}

	report.IsValid = len(report.Errors) == 0
	metrics.VerificationErrors.Set(float64(len(report.Errors)))

	var spanErr error
	if !report.IsValid {
		spanErr = fmt.Errorf("chain verification found %d errors", len(report.Errors))
	}
	end(spanErr)

	return report
}

// verifyBlock runs the checks that need only the block itself and its position.
func verifyBlock(ctx context.Context, b *models.Block, position int, signer Signer) []models.VerificationError {
	var errs []models.VerificationError

	fail := func(kind, format string, args ...any) {
		errs = append(errs, models.VerificationError{
			BlockNumber: b.BlockNumber,
			Kind:        kind,
			Message:     fmt.Sprintf(format, args...),
		})
	}

	if b.BlockNumber != uint64(position) {
		fail(models.IntegrityBlockNumber, "block at position %d has number %d", position, b.BlockNumber)
	}

	if position == 0 && b.PreviousHash != models.GenesisPreviousHash {
		fail(models.IntegrityGenesis, "genesis previous_hash is %q", b.PreviousHash)
	}

	if len(b.Events) == 0 {
		fail(models.IntegrityEmptyBlock, "block contains no events")
	}

	if computed := BlockHash(b); computed != b.BlockHash {
		fail(models.IntegrityBlockHash, "stored hash %s, recomputed %s", b.BlockHash, computed)
	}

	ok, err := signer.Verify(ctx, []byte(b.BlockHash), b.Signature)
	switch {
	case err != nil:
		fail(models.IntegritySignerFailed, "signature check failed: %v", err)
	case !ok:
		fail(models.IntegritySignature, "signature does not match block hash")
	}

	root, err := MerkleRoot(b.Events)
	switch {
	case err != nil:
		fail(models.IntegrityMerkleRoot, "recomputing merkle root: %v", err)
	case root != b.MerkleRoot:
		fail(models.IntegrityMerkleRoot, "stored root %s, recomputed %s", b.MerkleRoot, root)
	}

	return errs
}
