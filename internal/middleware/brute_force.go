package middleware

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/metrics"
)

const (
	bruteForceCleanup    = 60 * time.Second
	bruteForceMaxRecords = 10000
)

// BruteForceConfig sets the lockout policy. Zero fields take defaults.
type BruteForceConfig struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

func (c BruteForceConfig) withDefaults() BruteForceConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Window <= 0 {
		c.Window = 15 * time.Minute
	}
	if c.Lockout <= 0 {
		c.Lockout = 5 * time.Minute
	}
	return c
}

type failureRecord struct {
	attempts  int
	firstFail time.Time
	lockedAt  time.Time
}

// BruteForceGuard counts authentication failures per key hash and locks out
// keys that fail too often within the window.
type BruteForceGuard struct {
	cfg BruteForceConfig
	log *logrus.Logger
	now func() time.Time

	mu      sync.Mutex
	records map[string]*failureRecord
}

// NewBruteForceGuard creates a guard whose cleanup goroutine stops with ctx.
func NewBruteForceGuard(ctx context.Context, cfg BruteForceConfig, log *logrus.Logger) *BruteForceGuard {
	g := &BruteForceGuard{
		cfg:     cfg.withDefaults(),
		log:     log,
		now:     time.Now,
		records: make(map[string]*failureRecord),
	}
	go g.cleanupLoop(ctx)
	return g
}

// IsBlocked reports whether apiKey is currently locked out.
func (g *BruteForceGuard) IsBlocked(apiKey string) bool {
	kh := hashKey(apiKey)

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[kh]
	return ok && !rec.lockedAt.IsZero() && g.now().Sub(rec.lockedAt) < g.cfg.Lockout
}

// RecordFailure records a failed authentication attempt for apiKey.
func (g *BruteForceGuard) RecordFailure(apiKey string) {
	kh := hashKey(apiKey)
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[kh]
	if !ok || now.Sub(rec.firstFail) > g.cfg.Window {
		g.records[kh] = &failureRecord{attempts: 1, firstFail: now}
		return
	}

	rec.attempts++
	if rec.attempts >= g.cfg.MaxAttempts && rec.lockedAt.IsZero() {
		rec.lockedAt = now
		metrics.ErrorsTotal.WithLabelValues("auth_lockout").Inc()
		g.log.WithField("key_hash", kh[:16]).Warn("auth.locked_out")
	}
}

// ResetKey clears failure tracking for a key after a successful login.
func (g *BruteForceGuard) ResetKey(apiKey string) {
	kh := hashKey(apiKey)

	g.mu.Lock()
	delete(g.records, kh)
	g.mu.Unlock()
}

func (g *BruteForceGuard) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(bruteForceCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.cleanup()
		}
	}
}

// cleanup drops expired lockouts and stale windows, then trims the oldest
// records beyond the cap.
func (g *BruteForceGuard) cleanup() {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	for k, rec := range g.records {
		locked := !rec.lockedAt.IsZero()
		if (locked && now.Sub(rec.lockedAt) >= g.cfg.Lockout) || (!locked && now.Sub(rec.firstFail) >= g.cfg.Window) {
			delete(g.records, k)
		}
	}

	excess := len(g.records) - bruteForceMaxRecords
	if excess <= 0 {
		return
	}

	keys := make([]string, 0, len(g.records))
	for k := range g.records {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return g.records[a].firstFail.Compare(g.records[b].firstFail)
	})
	for _, k := range keys[:excess] {
		delete(g.records, k)
	}
}

// BruteForce returns middleware that rejects requests from locked-out keys.
func BruteForce(guard *BruteForceGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey := ExtractBearerToken(c); apiKey != "" && guard.IsBlocked(apiKey) {
			respondError(c, http.StatusTooManyRequests, "rate_limited", "too many failed authentication attempts")
			return
		}

		c.Next()
	}
}
