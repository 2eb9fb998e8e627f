package crypto

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// StaticProvider derives one key per purpose from a single hex-encoded master
// key. Intended for single-node deployments and tests.
type StaticProvider struct {
	master []byte
}

// NewStaticProvider creates a StaticProvider from a hex-encoded 32-byte key.
func NewStaticProvider(hexKey string) (*StaticProvider, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/static: invalid hex key: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("crypto/static: key must be 32 bytes, got %d", len(key))
	}

	return &StaticProvider{master: key}, nil
}

// GetKey returns HMAC-SHA256(master, name), so each purpose gets its own key.
func (p *StaticProvider) GetKey(_ context.Context, name string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("crypto/static: key name is required")
	}

	mac := hmac.New(sha256.New, p.master)
	mac.Write([]byte("auditledger/" + name))

	return mac.Sum(nil), nil
}
