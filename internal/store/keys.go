package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/auditledger/internal/models"
)

// KeyStore maps API keys to principals. Only SHA-256 hashes of keys are stored.
type KeyStore struct {
	Base
}

// NewKeyStore creates a KeyStore.
func NewKeyStore(base Base) *KeyStore {
	return &KeyStore{Base: base}
}

func hashKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// LookupPrincipal returns the principal of an active API key.
func (s *KeyStore) LookupPrincipal(ctx context.Context, apiKey string) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var principal string

	err := s.Pool.QueryRow(ctx,
		"SELECT principal FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL",
		hashKey(apiKey),
	).Scan(&principal)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("api key: %w", models.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("looking up principal by API key: %w", err)
	}

	return principal, nil
}

// EnsureKey registers apiKey for principal if it is not known yet.
func (s *KeyStore) EnsureKey(ctx context.Context, apiKey, principal string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.Pool.Exec(ctx,
		"INSERT INTO api_keys (key_hash, principal) VALUES ($1, $2) ON CONFLICT (key_hash) DO NOTHING",
		hashKey(apiKey), principal,
	)
	if err != nil {
		return fmt.Errorf("registering API key for %s: %w", principal, err)
	}

	return nil
}

// RevokeKey marks apiKey as revoked.
func (s *KeyStore) RevokeKey(ctx context.Context, apiKey string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx,
		"UPDATE api_keys SET revoked_at = now() WHERE key_hash = $1 AND revoked_at IS NULL",
		hashKey(apiKey),
	)
	if err != nil {
		return fmt.Errorf("revoking API key: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key: %w", models.ErrNotFound)
	}

	return nil
}
