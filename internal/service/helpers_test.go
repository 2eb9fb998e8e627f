package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/compliance"
	"github.com/persistorai/auditledger/internal/crypto"
	"github.com/persistorai/auditledger/internal/ledger"
	"github.com/persistorai/auditledger/internal/models"
)

const testHexKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// toggleSigner wraps the real signer and can be switched to fail.
type toggleSigner struct {
	inner *crypto.Signer
	fail  atomic.Bool
}

func (s *toggleSigner) Sign(ctx context.Context, data []byte) (string, error) {
	if s.fail.Load() {
		return "", errors.New("signer unavailable")
	}
	return s.inner.Sign(ctx, data)
}

func (s *toggleSigner) Verify(ctx context.Context, data []byte, sig string) (bool, error) {
	return s.inner.Verify(ctx, data, sig)
}

func newToggleSigner(t *testing.T) *toggleSigner {
	t.Helper()

	provider, err := crypto.NewStaticProvider(testHexKey)
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}

	return &toggleSigner{inner: crypto.NewSigner(provider)}
}

func newTestChain(t *testing.T, signer ledger.Signer, blockSize int) *ledger.Ledger {
	t.Helper()

	sealer := ledger.NewSealer(signer, ledger.SealerConfig{Difficulty: 1}, quietLogger())

	l, err := ledger.New(context.Background(), sealer,
		ledger.WithBlockSize(blockSize), ledger.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("creating ledger: %v", err)
	}

	return l
}

func newTestService(t *testing.T, blockSize int, cache ReportCache) (*LedgerService, *ledger.Ledger, *toggleSigner) {
	t.Helper()

	signer := newToggleSigner(t)
	chain := newTestChain(t, signer, blockSize)
	factory := ledger.NewEventFactory(compliance.DefaultTagTable())

	return NewLedgerService(chain, factory, cache, quietLogger()), chain, signer
}

func appendReq(entity string) models.AppendEventRequest {
	return models.AppendEventRequest{
		EventType:   string(models.EventUserAccess),
		EntityID:    entity,
		Description: "record read",
		UserID:      "user-1",
		Severity:    string(models.SeverityLow),
	}
}

// mapCache is an in-memory ReportCache.
type mapCache struct {
	mu      sync.Mutex
	reports map[string]models.VerificationReport
	gets    int
	puts    int
}

func newMapCache() *mapCache {
	return &mapCache{reports: map[string]models.VerificationReport{}}
}

func (c *mapCache) Get(_ context.Context, tip string) (*models.VerificationReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gets++
	r, ok := c.reports[tip]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (c *mapCache) Put(_ context.Context, r *models.VerificationReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.puts++
	c.reports[r.TipHash] = *r
	return nil
}

// recordingSink collects written block numbers.
type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	blocks []uint64
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) WriteBlock(_ context.Context, b *models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks = append(s.blocks, b.BlockNumber)
	return s.err
}

func (s *recordingSink) written() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]uint64, len(s.blocks))
	copy(out, s.blocks)
	return out
}
