package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/metrics"
	"github.com/persistorai/auditledger/internal/models"
)

// DefaultBlockSize is the number of pending events that triggers a seal.
const DefaultBlockSize = 100

// Persister durably stores pending events and sealed blocks.
type Persister interface {
	SavePending(ctx context.Context, ev models.AuditEvent) error
	SaveBlock(ctx context.Context, b *models.Block) error
}

// Observer is told about every newly sealed block. BlockSealed must not block
// and must not mutate the block.
type Observer interface {
	BlockSealed(b *models.Block)
}

// pendingBlock marks an indexed event that has not been sealed yet.
const pendingBlock = -1

// location is where an event lives: a chain index and position, or pending.
type location struct {
	block int
	pos   int
}

// Ledger is the append-only chain of sealed blocks plus the pending buffer.
// All writes are serialised; reads work on snapshots.
type Ledger struct {
	mu        sync.RWMutex
	sealer    *Sealer
	blockSize int
	persister Persister
	observers []Observer
	log       *logrus.Logger
	now       func() time.Time

	chain   []*models.Block
	pending []models.AuditEvent
	index   map[string]location

	restoreBlocks  []*models.Block
	restorePending []models.AuditEvent
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithBlockSize sets the pending count that triggers sealing.
func WithBlockSize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.blockSize = n
		}
	}
}

// WithPersister stores pending events and blocks through p.
func WithPersister(p Persister) Option {
	return func(l *Ledger) { l.persister = p }
}

// WithObserver registers an observer for sealed blocks.
func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observers = append(l.observers, o) }
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithClock overrides the clock used for the genesis event.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithRestore starts the ledger from a previously persisted chain instead of
// creating a new genesis block.
func WithRestore(blocks []*models.Block, pending []models.AuditEvent) Option {
	return func(l *Ledger) {
		l.restoreBlocks = blocks
		l.restorePending = pending
	}
}

// New creates a ledger. Without a restored chain it seals and persists a
// genesis block.
func New(ctx context.Context, sealer *Sealer, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		sealer:    sealer,
		blockSize: DefaultBlockSize,
		log:       logrus.StandardLogger(),
		now:       time.Now,
		index:     make(map[string]location),
	}

	for _, opt := range opts {
		opt(l)
	}

	if len(l.restoreBlocks) > 0 {
		if err := l.restore(); err != nil {
			return nil, err
		}
	} else if err := l.createGenesis(ctx); err != nil {
		return nil, err
	}

	l.restoreBlocks, l.restorePending = nil, nil
	l.updateGauges()

	return l, nil
}

// GenesisEvent returns the event sealed into block 0.
func GenesisEvent(ts time.Time) models.AuditEvent {
	return models.AuditEvent{
		EventID:     "GENESIS_001",
		EventType:   models.EventComplianceCheck,
		Timestamp:   ts.UTC().Truncate(Precision),
		UserID:      "SYSTEM",
		AgentID:     "AUDIT_AGENT",
		EntityID:    "PLATFORM",
		Description: "audit ledger initialized",
		Details: map[string]any{
			"platform":             "auditledger",
			"version":              "1.0.0",
			"compliance_standards": []any{"GDPR", "HIPAA", "SOX", "PCI-DSS"},
		},
		Severity:       models.SeverityMedium,
		ComplianceTags: []string{"INITIALIZATION", "COMPLIANCE", "GDPR", "HIPAA"},
	}
}

func (l *Ledger) createGenesis(ctx context.Context) error {
	block, err := l.sealer.Seal(ctx, 0, models.GenesisPreviousHash, []models.AuditEvent{GenesisEvent(l.now())})
	if err != nil {
		return fmt.Errorf("sealing genesis block: %w", err)
	}

	if l.persister != nil {
		if err := l.persister.SaveBlock(ctx, block); err != nil {
			return fmt.Errorf("persisting genesis block: %w", err)
		}
	}

	l.appendBlock(block)
	l.log.WithFields(logrus.Fields{
		"block_hash": block.BlockHash,
		"nonce":      block.Nonce,
	}).Info("ledger.genesis_created")

	return nil
}

func (l *Ledger) restore() error {
	for i, b := range l.restoreBlocks {
		if b.BlockNumber != uint64(i) {
			return fmt.Errorf("restoring chain: block at position %d has number %d", i, b.BlockNumber)
		}
		l.appendBlock(b)
	}

	for _, ev := range l.restorePending {
		if _, dup := l.index[ev.EventID]; dup {
			return fmt.Errorf("restoring chain: duplicate event id %s", ev.EventID)
		}
		l.index[ev.EventID] = location{block: pendingBlock, pos: len(l.pending)}
		l.pending = append(l.pending, ev)
	}

	l.log.WithFields(logrus.Fields{
		"blocks":  len(l.chain),
		"pending": len(l.pending),
	}).Info("ledger.restored")

	return nil
}

// appendBlock adds a sealed block to the chain and indexes its events.
func (l *Ledger) appendBlock(b *models.Block) {
	idx := len(l.chain)
	l.chain = append(l.chain, b)
	for pos := range b.Events {
		l.index[b.Events[pos].EventID] = location{block: idx, pos: pos}
	}
}

// Append validates ev, buffers it and seals the buffer once it reaches the block
// size. When sealing fails the event stays pending and the returned error wraps
// the seal failure alongside the event id.
func (l *Ledger) Append(ctx context.Context, ev models.AuditEvent) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}

	ev = ev.Clone()
	ev.Timestamp = ev.Timestamp.UTC().Truncate(Precision)

	l.mu.Lock()
	buffered, block, err := l.appendLocked(ctx, ev)
	l.mu.Unlock()

	if block != nil {
		l.notify(block)
	}

	if !buffered {
		return "", err
	}

	return ev.EventID, err
}

func (l *Ledger) appendLocked(ctx context.Context, ev models.AuditEvent) (bool, *models.Block, error) {
	if _, dup := l.index[ev.EventID]; dup {
		return false, nil, fmt.Errorf("%w: duplicate event id %s", models.ErrInvalidEvent, ev.EventID)
	}

	if l.persister != nil {
		if err := l.persister.SavePending(ctx, ev); err != nil {
			return false, nil, fmt.Errorf("persisting pending event: %w", err)
		}
	}

	l.index[ev.EventID] = location{block: pendingBlock, pos: len(l.pending)}
	l.pending = append(l.pending, ev)
	metrics.PendingEvents.Set(float64(len(l.pending)))

	if len(l.pending) < l.blockSize {
		return true, nil, nil
	}

	block, err := l.sealLocked(ctx)
	if err != nil {
		return true, nil, fmt.Errorf("event %s buffered, sealing failed: %w", ev.EventID, err)
	}

	return true, block, nil
}

// Flush seals every pending event into a block regardless of the block size.
func (l *Ledger) Flush(ctx context.Context) (*models.Block, error) {
	l.mu.Lock()
	block, err := l.sealLocked(ctx)
	l.mu.Unlock()

	if err != nil {
		return nil, err
	}

	l.notify(block)

	return block, nil
}

// sealLocked seals the whole pending buffer on top of the tip. The buffer is only
// cleared once the block is persisted and appended. Callers hold l.mu.
func (l *Ledger) sealLocked(ctx context.Context) (*models.Block, error) {
	if len(l.pending) == 0 {
		return nil, models.ErrEmptyBatch
	}

	tip := l.chain[len(l.chain)-1]
	batch := make([]models.AuditEvent, len(l.pending))
	copy(batch, l.pending)

	block, err := l.sealer.Seal(ctx, tip.BlockNumber+1, tip.BlockHash, batch)
	if err == nil && l.persister != nil {
		if perr := l.persister.SaveBlock(ctx, block); perr != nil {
			block, err = nil, fmt.Errorf("persisting block: %w", perr)
		}
	}

	if err != nil {
		metrics.SealFailures.WithLabelValues(failureReason(err)).Inc()
		l.log.WithFields(logrus.Fields{
			"block_number": tip.BlockNumber + 1,
			"pending":      len(l.pending),
			"error":        err,
		}).Error("ledger.seal_failed")

		return nil, err
	}

	l.appendBlock(block)
	l.pending = nil
	l.updateGauges()
	metrics.BlocksSealed.Inc()

	l.log.WithFields(logrus.Fields{
		"block_number": block.BlockNumber,
		"block_hash":   block.BlockHash,
		"events":       len(block.Events),
		"nonce":        block.Nonce,
	}).Info("ledger.block_sealed")

	return block, nil
}

func (l *Ledger) notify(b *models.Block) {
	for _, o := range l.observers {
		o.BlockSealed(b)
	}
}

func (l *Ledger) updateGauges() {
	metrics.ChainLength.Set(float64(len(l.chain)))
	metrics.PendingEvents.Set(float64(len(l.pending)))
}

// ChainLength returns the number of sealed blocks, genesis included.
func (l *Ledger) ChainLength() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.chain)
}

// Blocks returns a snapshot of the chain. The blocks are shared and must be
// treated as read-only.
func (l *Ledger) Blocks() []*models.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*models.Block, len(l.chain))
	copy(out, l.chain)

	return out
}

// Block returns a copy of block n.
func (l *Ledger) Block(n uint64) (*models.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n >= uint64(len(l.chain)) {
		return nil, fmt.Errorf("block %d: %w", n, models.ErrNotFound)
	}

	return l.chain[n].Clone(), nil
}

// Pending returns a copy of the events waiting to be sealed.
func (l *Ledger) Pending() []models.AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.AuditEvent, len(l.pending))
	for i := range l.pending {
		out[i] = l.pending[i].Clone()
	}

	return out
}

// Tip returns the header of the most recent block.
func (l *Ledger) Tip() models.BlockHeader {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.chain[len(l.chain)-1].Header()
}

// Proof returns a Merkle inclusion proof for a sealed event.
func (l *Ledger) Proof(eventID string) (*models.MerkleProof, error) {
	l.mu.RLock()
	loc, ok := l.index[eventID]
	var block *models.Block
	if ok && loc.block != pendingBlock {
		block = l.chain[loc.block]
	}
	l.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("event %s: %w", eventID, models.ErrNotFound)
	}

	if block == nil {
		return nil, fmt.Errorf("event %s: %w", eventID, models.ErrEventPending)
	}

	leaves, err := LeafHashes(block.Events)
	if err != nil {
		return nil, err
	}

	path, err := BuildProof(leaves, loc.pos)
	if err != nil {
		return nil, err
	}

	return &models.MerkleProof{
		EventID:     eventID,
		BlockNumber: block.BlockNumber,
		BlockHash:   block.BlockHash,
		MerkleRoot:  block.MerkleRoot,
		LeafHash:    leaves[loc.pos],
		LeafIndex:   loc.pos,
		Path:        path,
	}, nil
}

// Verify checks the integrity of a snapshot of the chain.
func (l *Ledger) Verify(ctx context.Context) models.VerificationReport {
	return VerifyChain(ctx, l.Blocks(), l.sealer.Signer(), l.sealer.Difficulty())
}
