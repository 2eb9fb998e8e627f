// Package crypto provides block signing and AES-256-GCM encryption of event
// details, keyed through a KeyProvider.
package crypto

import "context"

// Key names requested from a KeyProvider.
const (
	KeySigning = "signing"
	KeyDetails = "details"
)

// KeyProvider returns 32-byte keys by purpose.
type KeyProvider interface {
	// GetKey returns the 32-byte key registered under name.
	GetKey(ctx context.Context, name string) ([]byte, error)
}
