package ledger

import (
	"fmt"

	"github.com/persistorai/auditledger/internal/models"
)

// emptyRoot is the root of an empty batch: SHA-256 of the empty byte string.
var emptyRoot = hashHex(nil)

// hashPair combines two hex hashes into their parent.
func hashPair(left, right string) string {
	return hashHex([]byte(left + right))
}

// LeafHashes returns the leaf hash of every event, in order.
func LeafHashes(events []models.AuditEvent) ([]string, error) {
	leaves := make([]string, len(events))
	for i := range events {
		h, err := EventHash(&events[i])
		if err != nil {
			return nil, err
		}
		leaves[i] = h
	}

	return leaves, nil
}

// MerkleRoot computes the Merkle root of an ordered event batch. On every level
// with an odd number of nodes the last node is paired with itself.
func MerkleRoot(events []models.AuditEvent) (string, error) {
	leaves, err := LeafHashes(events)
	if err != nil {
		return "", err
	}

	return RootFromLeaves(leaves), nil
}

// RootFromLeaves folds leaf hashes into a Merkle root.
func RootFromLeaves(leaves []string) string {
	if len(leaves) == 0 {
		return emptyRoot
	}

	level := append([]string(nil), leaves...)
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(level[i], right))
		}
		level = next
	}

	return level[0]
}

// BuildProof returns the sibling path from leaf index to the root.
func BuildProof(leaves []string, index int) ([]models.ProofStep, error) {
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", index, len(leaves))
	}

	var path []models.ProofStep

	level := append([]string(nil), leaves...)
	idx := index
	for len(level) > 1 {
		sibling := idx ^ 1
		if sibling >= len(level) {
			sibling = idx
		}
		path = append(path, models.ProofStep{Hash: level[sibling], Left: sibling < idx})

		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(level[i], right))
		}
		level = next
		idx /= 2
	}

	return path, nil
}

// VerifyProof recomputes the root from a leaf and its path and compares it with root.
func VerifyProof(leaf string, path []models.ProofStep, root string) bool {
	h := leaf
	for _, step := range path {
		if step.Left {
			h = hashPair(step.Hash, h)
		} else {
			h = hashPair(h, step.Hash)
		}
	}

	return h == root
}
