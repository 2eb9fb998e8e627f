// Package ledger implements the hash-chained audit ledger: canonical hashing,
// Merkle roots, proof-of-work sealing, chain verification and queries.
package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/persistorai/auditledger/internal/models"
)

// timestampLayout is the canonical timestamp encoding. Timestamps are always UTC
// and truncated to microseconds so they survive a PostgreSQL round trip unchanged.
const timestampLayout = time.RFC3339Nano

// Precision is the resolution all ledger timestamps are truncated to.
const Precision = time.Microsecond

// StableJSON encodes v as JSON with object keys sorted at every depth, no
// insignificant whitespace and HTML escaping disabled.
// Integers within 64 bits keep their exact digits; every other number is
// written in its shortest float64 form, so 1.50, 1.5 and 15e-1 hash alike.
func StableJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}

	var generic any
	if err := models.DecodeJSON(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonical: normalize: %w", err)
	}

	if generic, err = canonicalNumbers(generic); err != nil {
		return nil, fmt.Errorf("canonical: normalize: %w", err)
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("canonical: encode: %w", err)
	}

	return bytes.TrimSpace(buf.Bytes()), nil
}

// canonicalNumbers rewrites every json.Number in v in place.
func canonicalNumbers(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		return canonicalNumber(t)
	case map[string]any:
		for k, e := range t {
			n, err := canonicalNumbers(e)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
	case []any:
		for i, e := range t {
			n, err := canonicalNumbers(e)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
	}

	return v, nil
}

func canonicalNumber(n json.Number) (any, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u, nil
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("number %s out of range", s)
	}

	return f, nil
}

// hashHex returns the hex-encoded SHA-256 of data.
func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalTime formats t in the canonical layout.
func canonicalTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// EventHash returns the leaf hash of an event: SHA-256 over its canonical JSON.
func EventHash(e *models.AuditEvent) (string, error) {
	cp := e.Clone()
	cp.Timestamp = cp.Timestamp.UTC()

	if cp.Details == nil {
		cp.Details = map[string]any{}
	}
	if cp.ComplianceTags == nil {
		cp.ComplianceTags = []string{}
	}

	data, err := StableJSON(cp)
	if err != nil {
		return "", fmt.Errorf("hashing event %s: %w", e.EventID, err)
	}

	return hashHex(data), nil
}

// headerEncoding splits the canonical block header around the nonce so the
// proof-of-work loop only formats an integer per attempt. Keys are in sorted order:
// block_number, merkle_root, nonce, previous_hash, timestamp.
type headerEncoding struct {
	prefix []byte
	suffix []byte
	buf    []byte
}

func newHeaderEncoding(blockNumber uint64, merkleRoot, previousHash string, ts time.Time) *headerEncoding {
	prefix := `{"block_number":` + strconv.FormatUint(blockNumber, 10) +
		`,"merkle_root":` + strconv.Quote(merkleRoot) +
		`,"nonce":`
	suffix := `,"previous_hash":` + strconv.Quote(previousHash) +
		`,"timestamp":` + strconv.Quote(canonicalTime(ts)) + `}`

	return &headerEncoding{prefix: []byte(prefix), suffix: []byte(suffix)}
}

// hash returns the block hash for the given nonce.
func (h *headerEncoding) hash(nonce uint64) string {
	h.buf = append(h.buf[:0], h.prefix...)
	h.buf = strconv.AppendUint(h.buf, nonce, 10)
	h.buf = append(h.buf, h.suffix...)

	return hashHex(h.buf)
}

// BlockHash recomputes the hash of a block from its header fields.
func BlockHash(b *models.Block) string {
	return newHeaderEncoding(b.BlockNumber, b.MerkleRoot, b.PreviousHash, b.Timestamp).hash(b.Nonce)
}
