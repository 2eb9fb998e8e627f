package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/persistorai/auditledger/internal/api"
	"github.com/persistorai/auditledger/internal/models"
	"github.com/persistorai/auditledger/internal/service"
)

func TestBlockList(t *testing.T) {
	t.Parallel()

	var gotLimit, gotOffset int
	svc := &mockLedger{
		listBlocksFn: func(_ context.Context, limit, offset int) ([]models.BlockHeader, bool, error) {
			gotLimit, gotOffset = limit, offset
			return []models.BlockHeader{{BlockNumber: 0}, {BlockNumber: 1}}, false, nil
		},
	}

	r := newTestRouter()
	r.GET("/blocks", api.NewBlockHandler(svc, testLogger()).List)

	w := doRequest(r, http.MethodGet, "/blocks?limit=2", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if gotLimit != 2 || gotOffset != 0 {
		t.Errorf("page = %d/%d, want 2/0", gotLimit, gotOffset)
	}
}

func TestBlockGet(t *testing.T) {
	t.Parallel()

	svc := &mockLedger{
		blockFn: func(_ context.Context, n uint64) (*models.Block, error) {
			if n > 1 {
				return nil, fmt.Errorf("block %d: %w", n, models.ErrNotFound)
			}
			return &models.Block{BlockNumber: n, Events: []models.AuditEvent{*testEvent("AE_1")}}, nil
		},
	}

	r := newTestRouter()
	r.GET("/blocks/:number", api.NewBlockHandler(svc, testLogger()).Get)

	w := doRequest(r, http.MethodGet, "/blocks/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var b models.Block
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if b.BlockNumber != 1 || len(b.Events) != 1 {
		t.Errorf("unexpected block %+v", b)
	}

	if w := doRequest(r, http.MethodGet, "/blocks/7", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing block: expected 404, got %d", w.Code)
	}

	if w := doRequest(r, http.MethodGet, "/blocks/-1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("negative number: expected 400, got %d", w.Code)
	}
}

func TestBlockSeal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"sealed", nil, http.StatusCreated, ""},
		{"nothing pending", models.ErrEmptyBatch, http.StatusConflict, api.ErrCodeEmptyBatch},
		{"nonce cap", models.ErrSealingTimeout, http.StatusServiceUnavailable, api.ErrCodeSealingTimeout},
		{"signer down", fmt.Errorf("%w: vault sealed", models.ErrSigningService), http.StatusBadGateway, api.ErrCodeSigningError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockLedger{
				sealFn: func(context.Context) (*models.Block, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &models.Block{BlockNumber: 4, Events: []models.AuditEvent{*testEvent("AE_1")}}, nil
				},
			}

			r := newTestRouter()
			r.POST("/blocks/seal", api.NewBlockHandler(svc, testLogger()).Seal)

			w := doRequest(r, http.MethodPost, "/blocks/seal", "")
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}

			if tt.code != "" {
				if e := decodeError(t, w.Body.Bytes()); e.Code != tt.code {
					t.Errorf("expected code %q, got %q", tt.code, e.Code)
				}
				return
			}

			var h models.BlockHeader
			if err := json.Unmarshal(w.Body.Bytes(), &h); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if h.BlockNumber != 4 || h.EventCount != 1 {
				t.Errorf("unexpected header %+v", h)
			}
		})
	}
}

func TestChainVerify_InvalidChainIsStillOK(t *testing.T) {
	t.Parallel()

	svc := &mockLedger{
		verifyFn: func(context.Context) models.VerificationReport {
			return models.VerificationReport{
				IsValid: false,
				Errors: []models.VerificationError{
					{BlockNumber: 2, Kind: models.IntegrityBlockHash, Message: "stored hash differs"},
				},
				TotalBlocks: 3,
			}
		},
	}

	r := newTestRouter()
	r.GET("/chain/verify", api.NewBlockHandler(svc, testLogger()).Verify)

	w := doRequest(r, http.MethodGet, "/chain/verify", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var report models.VerificationReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if report.IsValid || len(report.Errors) != 1 || report.Errors[0].Kind != models.IntegrityBlockHash {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestChainStatus_IncludesLastVerification(t *testing.T) {
	t.Parallel()

	status := service.ChainStatus{ChainLength: 3, Tip: models.BlockHeader{BlockNumber: 2, BlockHash: "00ab"}}

	tests := []struct {
		name string
		last *models.VerificationReport
	}{
		{"none recorded", nil},
		{"recorded", &models.VerificationReport{IsValid: false, TipHash: "00ab", TotalBlocks: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockLedger{
				statusFn: func() service.ChainStatus { return status },
				lastFn:   func(context.Context) *models.VerificationReport { return tt.last },
			}

			r := newTestRouter()
			r.GET("/chain/status", api.NewBlockHandler(svc, testLogger()).Status)

			w := doRequest(r, http.MethodGet, "/chain/status", "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}

			var resp map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}

			if resp["chain_length"] != float64(3) {
				t.Errorf("chain_length = %v, want 3", resp["chain_length"])
			}

			last, ok := resp["last_verification"].(map[string]any)
			if tt.last == nil {
				if ok {
					t.Errorf("unexpected last_verification %v", last)
				}
				return
			}
			if !ok || last["tip_hash"] != "00ab" || last["is_valid"] != false {
				t.Errorf("last_verification = %v", resp["last_verification"])
			}
		})
	}
}
