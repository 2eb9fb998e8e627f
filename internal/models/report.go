package models

import "time"

// Verification error kinds.
const (
	IntegrityBlockHash    = "block_hash_mismatch"
	IntegritySignature    = "invalid_signature"
	IntegrityMerkleRoot   = "merkle_root_mismatch"
	IntegrityLinkage      = "previous_hash_mismatch"
	IntegrityBlockNumber  = "block_number_mismatch"
	IntegrityGenesis      = "invalid_genesis"
	IntegrityEmptyBlock   = "empty_block"
	IntegritySignerFailed = "signature_check_failed"
)

// VerificationError describes one integrity break found in the chain.
type VerificationError struct {
	BlockNumber uint64 `json:"block_number"`
	Kind        string `json:"kind"`
	Message     string `json:"message"`
}

// VerificationReport is the outcome of walking the whole chain.
type VerificationReport struct {
	IsValid     bool                `json:"is_valid"`
	Errors      []VerificationError `json:"errors"`
	Warnings    []string            `json:"warnings"`
	TotalBlocks int                 `json:"total_blocks"`
	TotalEvents int                 `json:"total_events"`
	TipHash     string              `json:"tip_hash"`
	VerifiedAt  time.Time           `json:"verified_at"`
}

// ReportPeriod is the inclusive time window a compliance report covers.
type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ComplianceReport aggregates audit events for one compliance standard.
type ComplianceReport struct {
	ComplianceStandard  string             `json:"compliance_standard"`
	ReportPeriod        ReportPeriod       `json:"report_period"`
	TotalEvents         int                `json:"total_events"`
	EventSummary        map[EventType]int  `json:"event_summary"`
	SeverityBreakdown   map[Severity]int   `json:"severity_breakdown"`
	ComplianceMetrics   map[string]any     `json:"compliance_metrics"`
	BlockchainIntegrity VerificationReport `json:"blockchain_integrity"`
	Recommendations     []string           `json:"recommendations"`
	GeneratedAt         time.Time          `json:"generated_at"`
}
