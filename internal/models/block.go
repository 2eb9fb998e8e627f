package models

import (
	"strings"
	"time"
)

// GenesisPreviousHash is the previous_hash of block 0.
var GenesisPreviousHash = strings.Repeat("0", 64)

// Block is an ordered, sealed batch of audit events.
type Block struct {
	BlockNumber  uint64       `json:"block_number"`
	Timestamp    time.Time    `json:"timestamp"`
	PreviousHash string       `json:"previous_hash"`
	Events       []AuditEvent `json:"events"`
	MerkleRoot   string       `json:"merkle_root"`
	Nonce        uint64       `json:"nonce"`
	BlockHash    string       `json:"block_hash"`
	Signature    string       `json:"signature"`
}

// BlockHeader is a block without its events, used for listings.
type BlockHeader struct {
	BlockNumber  uint64    `json:"block_number"`
	Timestamp    time.Time `json:"timestamp"`
	PreviousHash string    `json:"previous_hash"`
	MerkleRoot   string    `json:"merkle_root"`
	Nonce        uint64    `json:"nonce"`
	BlockHash    string    `json:"block_hash"`
	Signature    string    `json:"signature"`
	EventCount   int       `json:"event_count"`
}

// Header returns the block's header summary.
func (b *Block) Header() BlockHeader {
	return BlockHeader{
		BlockNumber:  b.BlockNumber,
		Timestamp:    b.Timestamp,
		PreviousHash: b.PreviousHash,
		MerkleRoot:   b.MerkleRoot,
		Nonce:        b.Nonce,
		BlockHash:    b.BlockHash,
		Signature:    b.Signature,
		EventCount:   len(b.Events),
	}
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() *Block {
	out := *b
	out.Events = make([]AuditEvent, len(b.Events))
	for i := range b.Events {
		out.Events[i] = b.Events[i].Clone()
	}

	return &out
}

// ProofStep is one sibling hash on a Merkle inclusion path.
type ProofStep struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"`
}

// MerkleProof proves that an event is included in a sealed block.
type MerkleProof struct {
	EventID     string      `json:"event_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash"`
	MerkleRoot  string      `json:"merkle_root"`
	LeafHash    string      `json:"leaf_hash"`
	LeafIndex   int         `json:"leaf_index"`
	Path        []ProofStep `json:"path"`
}
