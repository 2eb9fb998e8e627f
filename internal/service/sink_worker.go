package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/metrics"
	"github.com/persistorai/auditledger/internal/models"
)

// sinkWriteTimeout bounds one sink write.
const sinkWriteTimeout = 30 * time.Second

// Sink receives every sealed block for secondary storage or search.
type Sink interface {
	Name() string
	WriteBlock(ctx context.Context, b *models.Block) error
}

// SinkWorker fans sealed blocks out to sinks from a single goroutine so the
// ledger never waits on outside systems.
type SinkWorker struct {
	sinks []Sink
	log   *logrus.Logger
	jobs  chan *models.Block
}

// NewSinkWorker creates a SinkWorker with the given queue capacity.
func NewSinkWorker(sinks []Sink, log *logrus.Logger, queueSize int) *SinkWorker {
	if queueSize <= 0 {
		queueSize = 256
	}

	return &SinkWorker{
		sinks: sinks,
		log:   log,
		jobs:  make(chan *models.Block, queueSize),
	}
}

// BlockSealed queues b. It never blocks; when the queue is full the block is
// dropped for the sinks only, the ledger itself is unaffected.
func (w *SinkWorker) BlockSealed(b *models.Block) {
	if len(w.sinks) == 0 {
		return
	}

	select {
	case w.jobs <- b:
		metrics.SinkQueueDepth.Set(float64(len(w.jobs)))
	default:
		metrics.SinkFailures.WithLabelValues("queue_full").Inc()
		w.log.WithField("block_number", b.BlockNumber).Warn("sink.queue_full")
	}
}

// Run processes blocks until ctx is cancelled, then drains what is queued.
func (w *SinkWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case b := <-w.jobs:
			w.process(ctx, b)
		}
	}
}

func (w *SinkWorker) drain() {
	for {
		select {
		case b := <-w.jobs:
			w.process(context.Background(), b)
		default:
			return
		}
	}
}

func (w *SinkWorker) process(ctx context.Context, b *models.Block) {
	metrics.SinkQueueDepth.Set(float64(len(w.jobs)))

	for _, s := range w.sinks {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkWriteTimeout)
		err := s.WriteBlock(writeCtx, b)
		cancel()

		if err != nil {
			metrics.SinkFailures.WithLabelValues(s.Name()).Inc()
			w.log.WithFields(logrus.Fields{
				"sink":         s.Name(),
				"block_number": b.BlockNumber,
				"error":        err,
			}).Error("sink.write_failed")
			continue
		}

		w.log.WithFields(logrus.Fields{
			"sink":         s.Name(),
			"block_number": b.BlockNumber,
		}).Debug("sink.block_written")
	}
}
