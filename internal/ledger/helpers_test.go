package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/models"
)

var errSignerDown = errors.New("signer unavailable")

// fakeSigner signs with a keyed SHA-256 and can be switched into a failing mode.
type fakeSigner struct {
	mu      sync.Mutex
	fail    bool
	signs   int
	verifyE error
}

func (s *fakeSigner) Sign(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signs++
	if s.fail {
		return "", errSignerDown
	}

	return fakeSignature(data), nil
}

func (s *fakeSigner) Verify(_ context.Context, data []byte, signature string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.verifyE != nil {
		return false, s.verifyE
	}

	return signature == fakeSignature(data), nil
}

func (s *fakeSigner) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *fakeSigner) signCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signs
}

func fakeSignature(data []byte) string {
	sum := sha256.Sum256(append([]byte("test-key:"), data...))
	return hex.EncodeToString(sum[:])
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fixedClock returns a clock that advances one second per call from a fixed start.
func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestSealer(t *testing.T, signer Signer) *Sealer {
	t.Helper()

	s := NewSealer(signer, SealerConfig{Difficulty: 1, MaxIterations: 100_000}, testLogger())
	s.now = fixedClock()

	return s
}

func newTestLedger(t *testing.T, signer Signer, blockSize int, opts ...Option) *Ledger {
	t.Helper()

	opts = append([]Option{
		WithBlockSize(blockSize),
		WithLogger(testLogger()),
		WithClock(fixedClock()),
	}, opts...)

	l, err := New(context.Background(), newTestSealer(t, signer), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return l
}

var testBase = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func testEvent(i int) models.AuditEvent {
	types := []models.EventType{
		models.EventPolicyCreated, models.EventClaimProcessed, models.EventFraudDetected,
		models.EventUserAccess, models.EventPaymentProcessed,
	}

	return models.AuditEvent{
		EventID:     fmt.Sprintf("AE_TEST_%04d", i),
		EventType:   types[i%len(types)],
		Timestamp:   testBase.Add(time.Duration(i) * time.Minute),
		UserID:      fmt.Sprintf("user-%d", i%3),
		EntityID:    fmt.Sprintf("POL-%d", i%4),
		Description: fmt.Sprintf("event %d", i),
		Details:     map[string]any{"amount": i * 100, "nested": map[string]any{"b": 1, "a": "x"}},
		Severity:    models.SeverityMedium,
		ComplianceTags: []string{
			"SOX",
		},
	}
}

// fakePersister records what the ledger asks it to store.
type fakePersister struct {
	mu      sync.Mutex
	pending []models.AuditEvent
	blocks  []*models.Block
	failErr error
}

func (p *fakePersister) SavePending(_ context.Context, ev models.AuditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failErr != nil {
		return p.failErr
	}
	p.pending = append(p.pending, ev)

	return nil
}

func (p *fakePersister) SaveBlock(_ context.Context, b *models.Block) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failErr != nil {
		return p.failErr
	}
	p.blocks = append(p.blocks, b)
	p.pending = nil

	return nil
}

// recordingObserver collects sealed block numbers.
type recordingObserver struct {
	mu     sync.Mutex
	sealed []uint64
}

func (o *recordingObserver) BlockSealed(b *models.Block) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sealed = append(o.sealed, b.BlockNumber)
}

func (o *recordingObserver) numbers() []uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]uint64(nil), o.sealed...)
}
