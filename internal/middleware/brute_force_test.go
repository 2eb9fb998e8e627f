package middleware_test

import (
	"context"
	"testing"

	"github.com/persistorai/auditledger/internal/middleware"
)

func newTestGuard(t *testing.T, cfg middleware.BruteForceConfig) *middleware.BruteForceGuard {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return middleware.NewBruteForceGuard(ctx, cfg, quietLogger())
}

func TestBruteForce_BlocksAtMaxAttempts(t *testing.T) {
	t.Parallel()

	guard := newTestGuard(t, middleware.BruteForceConfig{})

	for range 4 {
		guard.RecordFailure("badkey")
	}
	if guard.IsBlocked("badkey") {
		t.Fatal("key should not be blocked before the fifth failure")
	}

	guard.RecordFailure("badkey")
	if !guard.IsBlocked("badkey") {
		t.Fatal("key should be blocked after five failures")
	}
}

func TestBruteForce_ResetClearsFailures(t *testing.T) {
	t.Parallel()

	guard := newTestGuard(t, middleware.BruteForceConfig{MaxAttempts: 3})

	guard.RecordFailure("key1")
	guard.RecordFailure("key1")
	guard.ResetKey("key1")
	guard.RecordFailure("key1")

	if guard.IsBlocked("key1") {
		t.Fatal("key should not be blocked after reset")
	}
}

func TestBruteForce_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	guard := newTestGuard(t, middleware.BruteForceConfig{MaxAttempts: 1})

	guard.RecordFailure("a")

	if !guard.IsBlocked("a") {
		t.Error("a should be blocked")
	}
	if guard.IsBlocked("b") {
		t.Error("b should not be blocked")
	}
}
