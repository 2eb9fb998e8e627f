package client

import (
	"github.com/persistorai/auditledger/internal/ledger"
	"github.com/persistorai/auditledger/internal/models"
)

// Verify recomputes the Merkle root from the leaf and path and reports whether
// it matches the proof's root. It does not contact the server.
func (p *MerkleProof) Verify() bool {
	path := make([]models.ProofStep, len(p.Path))
	for i, s := range p.Path {
		path[i] = models.ProofStep{Hash: s.Hash, Left: s.Left}
	}
	return ledger.VerifyProof(p.LeafHash, path, p.MerkleRoot)
}
