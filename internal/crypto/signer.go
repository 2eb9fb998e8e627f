package crypto

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Signer signs block hashes with HMAC-SHA256 under the KeySigning key.
type Signer struct {
	keys KeyProvider
}

// NewSigner creates a Signer backed by the given key provider.
func NewSigner(keys KeyProvider) *Signer {
	return &Signer{keys: keys}
}

func (s *Signer) mac(ctx context.Context, data []byte) ([]byte, error) {
	key, err := s.keys.GetKey(ctx, KeySigning)
	if err != nil {
		return nil, fmt.Errorf("crypto: get signing key: %w", err)
	}

	m := hmac.New(sha256.New, key)
	m.Write(data)

	return m.Sum(nil), nil
}

// Sign returns the hex-encoded MAC of data.
func (s *Signer) Sign(ctx context.Context, data []byte) (string, error) {
	sum, err := s.mac(ctx, data)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(sum), nil
}

// Verify reports whether signature is the MAC of data. A malformed signature is
// a mismatch, not an error; errors mean the key could not be loaded.
func (s *Signer) Verify(ctx context.Context, data []byte, signature string) (bool, error) {
	want, err := s.mac(ctx, data)
	if err != nil {
		return false, err
	}

	got, err := hex.DecodeString(signature)
	if err != nil {
		return false, nil //nolint:nilerr // malformed signatures simply do not match.
	}

	return hmac.Equal(got, want), nil
}
