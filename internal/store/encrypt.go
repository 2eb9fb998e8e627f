package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/persistorai/auditledger/internal/models"
)

// encodeDetails returns the values for the details and details_encrypted columns.
// Exactly one of them is non-nil.
func (b *Base) encodeDetails(ctx context.Context, eventID string, details map[string]any) ([]byte, *string, error) {
	if details == nil {
		details = map[string]any{}
	}

	plain, err := json.Marshal(details)
	if err != nil {
		return nil, nil, fmt.Errorf("marshalling details of %s: %w", eventID, err)
	}

	if b.Crypto == nil {
		return plain, nil, nil
	}

	ciphertext, err := b.Crypto.Encrypt(ctx, eventID, plain)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypting details of %s: %w", eventID, err)
	}

	return nil, &ciphertext, nil
}

// decodeDetails reverses encodeDetails.
func (b *Base) decodeDetails(ctx context.Context, eventID string, plain []byte, ciphertext *string) (map[string]any, error) {
	if ciphertext != nil {
		if b.Crypto == nil {
			return nil, fmt.Errorf("event %s has encrypted details but no crypto service is configured", eventID)
		}

		var err error
		plain, err = b.Crypto.Decrypt(ctx, eventID, *ciphertext)
		if err != nil {
			return nil, fmt.Errorf("decrypting details of %s: %w", eventID, err)
		}
	}

	details := map[string]any{}
	if len(plain) == 0 {
		return details, nil
	}

	if err := models.DecodeJSON(plain, &details); err != nil {
		return nil, fmt.Errorf("unmarshalling details of %s: %w", eventID, err)
	}

	return details, nil
}
