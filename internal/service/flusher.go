package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/models"
)

// Flushable seals whatever is pending.
type Flushable interface {
	Flush(ctx context.Context) (*models.Block, error)
}

// Flusher seals pending events on a fixed interval so quiet ledgers do not
// hold events unsealed indefinitely.
type Flusher struct {
	target   Flushable
	interval time.Duration
	log      *logrus.Logger
}

// NewFlusher creates a Flusher.
func NewFlusher(target Flushable, interval time.Duration, log *logrus.Logger) *Flusher {
	return &Flusher{target: target, interval: interval, log: log}
}

// Run flushes every interval until ctx is cancelled. A non-positive interval
// returns immediately.
func (f *Flusher) Run(ctx context.Context) {
	if f.interval <= 0 {
		return
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.flush(ctx)
		}
	}
}

func (f *Flusher) flush(ctx context.Context) {
	b, err := f.target.Flush(ctx)
	switch {
	case errors.Is(err, models.ErrEmptyBatch):
		return
	case err != nil:
		f.log.WithError(err).Warn("flusher.flush_failed")
	default:
		f.log.WithFields(logrus.Fields{
			"block_number": b.BlockNumber,
			"events":       len(b.Events),
		}).Info("flusher.block_sealed")
	}
}
