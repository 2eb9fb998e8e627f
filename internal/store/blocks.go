package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/persistorai/auditledger/internal/models"
	"github.com/persistorai/auditledger/internal/tracing"
)

// BlockStore persists pending events and sealed blocks.
type BlockStore struct {
	Base
}

// NewBlockStore creates a BlockStore.
func NewBlockStore(base Base) *BlockStore {
	return &BlockStore{Base: base}
}

const insertEventSQL = `
	INSERT INTO ledger_events (
		event_id, event_type, occurred_at, user_id, agent_id, entity_id,
		description, details, details_encrypted, severity, ip_address, user_agent,
		compliance_tags, block_number, position
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

func (s *BlockStore) eventArgs(ctx context.Context, ev *models.AuditEvent, block *int64, pos *int32) ([]any, error) {
	plain, ciphertext, err := s.encodeDetails(ctx, ev.EventID, ev.Details)
	if err != nil {
		return nil, err
	}

	tags := ev.ComplianceTags
	if tags == nil {
		tags = []string{}
	}

	return []any{
		ev.EventID, string(ev.EventType), ev.Timestamp.UTC(), ev.UserID, ev.AgentID, ev.EntityID,
		ev.Description, plain, ciphertext, string(ev.Severity), ev.IPAddress, ev.UserAgent,
		tags, block, pos,
	}, nil
}

// SavePending stores an event that has not been sealed yet.
func (s *BlockStore) SavePending(ctx context.Context, ev models.AuditEvent) (err error) {
	ctx, end := tracing.StartSpan(ctx, "store.save_pending")
	defer func() { end(err) }()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	args, err := s.eventArgs(ctx, &ev, nil, nil)
	if err != nil {
		return err
	}

	if _, err := s.Pool.Exec(ctx, insertEventSQL, args...); err != nil {
		return fmt.Errorf("inserting pending event %s: %w", ev.EventID, err)
	}

	return nil
}

// SaveBlock stores a sealed block and assigns its events to it in one
// transaction. Events already saved as pending are moved into the block; any
// other event is inserted.
func (s *BlockStore) SaveBlock(ctx context.Context, b *models.Block) (err error) {
	ctx, end := tracing.StartSpan(ctx, "store.save_block",
		attribute.Int64("block_number", int64(b.BlockNumber)),
		attribute.Int("event_count", len(b.Events)),
	)
	defer func() { end(err) }()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_blocks (block_number, block_hash, previous_hash, merkle_root, nonce, sealed_at, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		int64(b.BlockNumber), b.BlockHash, b.PreviousHash, b.MerkleRoot, int64(b.Nonce), b.Timestamp.UTC(), b.Signature,
	)
	if err != nil {
		return fmt.Errorf("inserting block %d: %w", b.BlockNumber, err)
	}

	blockNumber := int64(b.BlockNumber)
	batch := &pgx.Batch{}

	for i := range b.Events {
		pos := int32(i)
		args, err := s.eventArgs(ctx, &b.Events[i], &blockNumber, &pos)
		if err != nil {
			return err
		}

		batch.Queue(insertEventSQL+`
			ON CONFLICT (event_id) DO UPDATE
			SET block_number = EXCLUDED.block_number, position = EXCLUDED.position
			WHERE ledger_events.block_number IS NULL`, args...)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range b.Events {
		tag, err := results.Exec()
		if err != nil {
			results.Close() //nolint:errcheck // the exec error is the one worth returning.
			return fmt.Errorf("assigning event %s to block %d: %w", b.Events[i].EventID, b.BlockNumber, err)
		}

		if tag.RowsAffected() != 1 {
			results.Close() //nolint:errcheck // the conflict is the one worth returning.
			return fmt.Errorf("event %s is already sealed in another block", b.Events[i].EventID)
		}
	}

	if err := results.Close(); err != nil {
		return fmt.Errorf("closing batch for block %d: %w", b.BlockNumber, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing block %d: %w", b.BlockNumber, err)
	}

	return nil
}

// LoadChain returns every sealed block in order with its events, plus the
// pending events in arrival order.
func (s *BlockStore) LoadChain(ctx context.Context) (_ []*models.Block, _ []models.AuditEvent, err error) {
	ctx, end := tracing.StartSpan(ctx, "store.load_chain")
	defer func() { end(err) }()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only transaction.

	blocks, err := s.loadBlocks(ctx, tx)
	if err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, "SELECT "+eventColumns+` FROM ledger_events
		ORDER BY block_number NULLS LAST, position, seq`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var pending []models.AuditEvent

	for rows.Next() {
		r, err := s.scanEvent(ctx, rows.Scan)
		if err != nil {
			return nil, nil, fmt.Errorf("scanning event: %w", err)
		}

		if r.blockNumber == nil {
			pending = append(pending, r.event)
			continue
		}

		n := *r.blockNumber
		if n < 0 || n >= int64(len(blocks)) {
			return nil, nil, fmt.Errorf("event %s references missing block %d", r.event.EventID, n)
		}
		blocks[n].Events = append(blocks[n].Events, r.event)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating events: %w", err)
	}

	s.Log.WithField("blocks", len(blocks)).WithField("pending", len(pending)).Debug("chain loaded")

	return blocks, pending, nil
}

func (s *BlockStore) loadBlocks(ctx context.Context, tx pgx.Tx) ([]*models.Block, error) {
	rows, err := tx.Query(ctx, `
		SELECT block_number, block_hash, previous_hash, merkle_root, nonce, sealed_at, signature
		FROM ledger_blocks ORDER BY block_number`)
	if err != nil {
		return nil, fmt.Errorf("querying blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*models.Block

	for rows.Next() {
		var (
			b      models.Block
			number int64
			nonce  int64
		)

		if err := rows.Scan(&number, &b.BlockHash, &b.PreviousHash, &b.MerkleRoot, &nonce, &b.Timestamp, &b.Signature); err != nil {
			return nil, fmt.Errorf("scanning block: %w", err)
		}

		if number != int64(len(blocks)) {
			return nil, fmt.Errorf("block sequence gap: expected %d, found %d", len(blocks), number)
		}

		b.BlockNumber = uint64(number)
		b.Nonce = uint64(nonce)
		b.Timestamp = b.Timestamp.UTC()
		blocks = append(blocks, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating blocks: %w", err)
	}

	return blocks, nil
}
