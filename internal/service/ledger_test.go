package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/persistorai/auditledger/internal/models"
)

func TestAppendEvent_BuildsAndSeals(t *testing.T) {
	t.Parallel()

	svc, chain, _ := newTestService(t, 2, nil)
	ctx := context.Background()

	ev, err := svc.AppendEvent(ctx, appendReq("ACC-1"))
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if ev.EventID == "" || !ev.HasTag("GDPR") {
		t.Fatalf("event = %+v, want id and default GDPR tag", ev)
	}

	if _, err := svc.AppendEvent(ctx, appendReq("ACC-2")); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if got := chain.ChainLength(); got != 2 {
		t.Errorf("chain length = %d, want 2", got)
	}
}

func TestAppendEvent_Invalid(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, 10, nil)

	req := appendReq("")
	if _, err := svc.AppendEvent(context.Background(), req); !errors.Is(err, models.ErrInvalidEvent) {
		t.Fatalf("err = %v, want ErrInvalidEvent", err)
	}
}

func TestAppendEvent_SealDeferred(t *testing.T) {
	t.Parallel()

	svc, chain, signer := newTestService(t, 1, nil)
	signer.fail.Store(true)

	ev, err := svc.AppendEvent(context.Background(), appendReq("ACC-1"))
	if !errors.Is(err, ErrSealDeferred) || !errors.Is(err, models.ErrSigningService) {
		t.Fatalf("err = %v, want ErrSealDeferred wrapping ErrSigningService", err)
	}
	if ev == nil {
		t.Fatal("deferred append should still return the event")
	}
	if got := len(chain.Pending()); got != 1 {
		t.Errorf("pending = %d, want 1", got)
	}

	signer.fail.Store(false)
	if _, err := svc.Seal(context.Background()); err != nil {
		t.Fatalf("Seal after recovery: %v", err)
	}
	if _, err := svc.Proof(context.Background(), ev.EventID); err != nil {
		t.Errorf("proof after recovery: %v", err)
	}
}

func TestListEvents_PagingAndValidation(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, 100, nil)
	ctx := context.Background()

	for _, entity := range []string{"A", "B", "A", "A"} {
		if _, err := svc.AppendEvent(ctx, appendReq(entity)); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	page, more, err := svc.ListEvents(ctx, models.QueryOpts{EntityID: "A", Limit: 2})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(page) != 2 || !more {
		t.Errorf("page = %d more = %v, want 2 true", len(page), more)
	}

	page, more, err = svc.ListEvents(ctx, models.QueryOpts{EntityID: "A", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(page) != 1 || more {
		t.Errorf("second page = %d more = %v, want 1 false", len(page), more)
	}

	start := time.Now()
	end := start.Add(-time.Hour)

	invalid := []models.QueryOpts{
		{Limit: -1},
		{Offset: -5},
		{EventType: "bogus"},
		{Start: &start, End: &end},
	}
	for _, opts := range invalid {
		if _, _, err := svc.ListEvents(ctx, opts); !errors.Is(err, models.ErrInvalidQuery) {
			t.Errorf("ListEvents(%+v) err = %v, want ErrInvalidQuery", opts, err)
		}
	}
}

func TestListBlocks(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, 1, nil)
	ctx := context.Background()

	for range 3 {
		if _, err := svc.AppendEvent(ctx, appendReq("X")); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	headers, more, err := svc.ListBlocks(ctx, 2, 1)
	if err != nil {
		t.Fatalf("ListBlocks: %v", err)
	}
	if len(headers) != 2 || !more || headers[0].BlockNumber != 1 {
		t.Fatalf("headers = %+v more = %v", headers, more)
	}

	headers, more, err = svc.ListBlocks(ctx, 10, 10)
	if err != nil || len(headers) != 0 || more {
		t.Errorf("past the end = %d, %v, %v", len(headers), more, err)
	}
}

func TestVerify_ReportsTamperingBelowUnchangedTip(t *testing.T) {
	t.Parallel()

	cache := newMapCache()
	svc, chain, _ := newTestService(t, 1, cache)
	ctx := context.Background()

	for _, entity := range []string{"A", "B"} {
		if _, err := svc.AppendEvent(ctx, appendReq(entity)); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	first := svc.Verify(ctx)
	if !first.IsValid {
		t.Fatalf("fresh chain invalid: %+v", first.Errors)
	}

	chain.Blocks()[1].Events[0].Description = "forged"

	second := svc.Verify(ctx)
	if second.IsValid {
		t.Fatal("tampered block below the tip reported valid")
	}
	if second.TipHash != first.TipHash {
		t.Errorf("tip changed from %s to %s", first.TipHash, second.TipHash)
	}

	found := false
	for _, e := range second.Errors {
		if e.BlockNumber == 1 && e.Kind == models.IntegrityMerkleRoot {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a merkle root error on block 1, got %+v", second.Errors)
	}

	if last := svc.LastVerification(ctx); last == nil || last.IsValid {
		t.Errorf("LastVerification = %+v, want the invalid report", last)
	}
}

func TestLastVerification(t *testing.T) {
	t.Parallel()

	cache := newMapCache()
	svc, _, _ := newTestService(t, 1, cache)
	ctx := context.Background()

	if last := svc.LastVerification(ctx); last != nil {
		t.Fatalf("LastVerification before any run = %+v, want nil", last)
	}

	first := svc.Verify(ctx)
	last := svc.LastVerification(ctx)
	if last == nil || last.TipHash != first.TipHash {
		t.Fatalf("LastVerification = %+v, want report for %s", last, first.TipHash)
	}

	if _, err := svc.AppendEvent(ctx, appendReq("X")); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if last := svc.LastVerification(ctx); last != nil {
		t.Errorf("LastVerification after a new block = %+v, want nil", last)
	}
	if cache.puts != 1 {
		t.Errorf("puts = %d, want 1", cache.puts)
	}

	noCache, _, _ := newTestService(t, 1, nil)
	noCache.Verify(ctx)
	if last := noCache.LastVerification(ctx); last != nil {
		t.Errorf("LastVerification without a cache = %+v, want nil", last)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, 10, nil)

	if _, err := svc.AppendEvent(context.Background(), appendReq("X")); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	st := svc.Status()
	if st.ChainLength != 1 || st.PendingCount != 1 || st.Tip.BlockNumber != 0 {
		t.Errorf("status = %+v", st)
	}
}
