package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/persistorai/auditledger/internal/metrics"
	"github.com/persistorai/auditledger/internal/models"
	"github.com/persistorai/auditledger/internal/tracing"
)

// Signer produces and checks opaque signatures over block hashes.
type Signer interface {
	Sign(ctx context.Context, data []byte) (string, error)
	Verify(ctx context.Context, data []byte, signature string) (bool, error)
}

// Sealing defaults.
const (
	DefaultDifficulty    = 2
	DefaultMaxIterations = 1_000_000
)

// ctxCheckInterval is how many nonce attempts pass between context checks.
const ctxCheckInterval = 4096

// SealerConfig controls the proof-of-work search.
type SealerConfig struct {
	// Difficulty is the number of leading '0' hex digits a block hash needs.
	Difficulty int
	// MaxIterations caps the number of nonces tried before ErrSealingTimeout.
	MaxIterations uint64
}

// Sealer turns a batch of events into a signed, proof-of-work sealed block.
type Sealer struct {
	signer  Signer
	target  string
	maxIter uint64
	log     *logrus.Logger
	now     func() time.Time
}

// NewSealer creates a Sealer. A negative Difficulty or zero MaxIterations falls
// back to the default.
func NewSealer(signer Signer, cfg SealerConfig, log *logrus.Logger) *Sealer {
	if cfg.Difficulty < 0 {
		cfg.Difficulty = DefaultDifficulty
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}

	return &Sealer{
		signer:  signer,
		target:  strings.Repeat("0", cfg.Difficulty),
		maxIter: cfg.MaxIterations,
		log:     log,
		now:     time.Now,
	}
}

// Signer returns the signing service used to sign and verify blocks.
func (s *Sealer) Signer() Signer {
	return s.signer
}

// Difficulty returns the configured number of leading zero hex digits.
func (s *Sealer) Difficulty() int {
	return len(s.target)
}

// MeetsDifficulty reports whether hash satisfies the sealer's target.
func (s *Sealer) MeetsDifficulty(hash string) bool {
	return strings.HasPrefix(hash, s.target)
}

// Seal builds block blockNumber on top of previousHash from events. It never
// returns a partially populated block: on any error the result is nil.
func (s *Sealer) Seal(
	ctx context.Context, blockNumber uint64, previousHash string, events []models.AuditEvent,
) (_ *models.Block, err error) {
	if len(events) == 0 {
		return nil, models.ErrEmptyBatch
	}

	ctx, end := tracing.StartSpan(ctx, "ledger.seal",
		attribute.Int64("block_number", int64(blockNumber)),
		attribute.Int("event_count", len(events)),
	)
	defer func() { end(err) }()

	start := time.Now()

	root, err := MerkleRoot(events)
	if err != nil {
		return nil, fmt.Errorf("computing merkle root: %w", err)
	}

	block := &models.Block{
		BlockNumber:  blockNumber,
		Timestamp:    s.now().UTC().Truncate(Precision),
		PreviousHash: previousHash,
		Events:       events,
		MerkleRoot:   root,
	}

	nonce, hash, err := s.mine(ctx, block)
	if err != nil {
		return nil, err
	}
	block.Nonce = nonce
	block.BlockHash = hash

	sig, err := s.signer.Sign(ctx, []byte(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrSigningService, err)
	}
	block.Signature = sig

	metrics.SealDuration.Observe(time.Since(start).Seconds())
	metrics.NonceIterations.Observe(float64(nonce + 1))

	return block, nil
}

// mine searches nonces from zero until the block hash meets the difficulty target.
func (s *Sealer) mine(ctx context.Context, b *models.Block) (uint64, string, error) {
	enc := newHeaderEncoding(b.BlockNumber, b.MerkleRoot, b.PreviousHash, b.Timestamp)

	for nonce := uint64(0); nonce < s.maxIter; nonce++ {
		if nonce%ctxCheckInterval == 0 && nonce > 0 {
			if err := ctx.Err(); err != nil {
				return 0, "", fmt.Errorf("nonce search cancelled: %w", err)
			}
		}

		if hash := enc.hash(nonce); s.MeetsDifficulty(hash) {
			return nonce, hash, nil
		}
	}

	return 0, "", fmt.Errorf("%w: no hash with %d leading zeros in %d attempts",
		models.ErrSealingTimeout, len(s.target), s.maxIter)
}

// failureReason maps a seal error to a low-cardinality metric label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrSealingTimeout):
		return "timeout"
	case errors.Is(err, models.ErrSigningService):
		return "signing"
	case errors.Is(err, models.ErrEmptyBatch):
		return "empty_batch"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "persist"
	}
}
