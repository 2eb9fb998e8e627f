package client

import "time"

// AuditEvent is one recorded event.
type AuditEvent struct {
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	Timestamp      time.Time      `json:"timestamp"`
	UserID         string         `json:"user_id,omitempty"`
	AgentID        string         `json:"agent_id,omitempty"`
	EntityID       string         `json:"entity_id"`
	Description    string         `json:"description"`
	Details        map[string]any `json:"details"`
	Severity       string         `json:"severity"`
	IPAddress      string         `json:"ip_address,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	ComplianceTags []string       `json:"compliance_tags"`
}

// AppendEventRequest is the payload for recording an event.
type AppendEventRequest struct {
	EventType      string         `json:"event_type"`
	EntityID       string         `json:"entity_id"`
	Description    string         `json:"description,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Severity       string         `json:"severity,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	AgentID        string         `json:"agent_id,omitempty"`
	IPAddress      string         `json:"ip_address,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	ComplianceTags []string       `json:"compliance_tags,omitempty"`
}

// AppendResult is the outcome of appending an event. Warning is set when the
// event was recorded but the seal it triggered failed; it will be sealed later.
type AppendResult struct {
	Event   AuditEvent `json:"event"`
	Warning string     `json:"warning,omitempty"`
}

// EventListOptions filters event listings. Zero values mean no filter.
type EventListOptions struct {
	EntityID      string
	EventType     string
	UserID        string
	AgentID       string
	ComplianceTag string
	Start         *time.Time
	End           *time.Time
	Limit         int
	Offset        int
}

// ProofStep is one sibling hash on a Merkle path.
type ProofStep struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"`
}

// MerkleProof proves an event is part of a sealed block.
type MerkleProof struct {
	EventID     string      `json:"event_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash"`
	MerkleRoot  string      `json:"merkle_root"`
	LeafHash    string      `json:"leaf_hash"`
	LeafIndex   int         `json:"leaf_index"`
	Path        []ProofStep `json:"path"`
}

// BlockHeader summarises a sealed block.
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

// Block is a sealed block with its events.
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

// VerificationError is one integrity break.
type VerificationError struct {
	BlockNumber uint64 `json:"block_number"`
	Kind        string `json:"kind"`
	Message     string `json:"message"`
}

// VerificationReport is the result of verifying the chain.
type VerificationReport struct {
	IsValid     bool                `json:"is_valid"`
	Errors      []VerificationError `json:"errors"`
	Warnings    []string            `json:"warnings"`
	TotalBlocks int                 `json:"total_blocks"`
	TotalEvents int                 `json:"total_events"`
	TipHash     string              `json:"tip_hash"`
	VerifiedAt  time.Time           `json:"verified_at"`
}

// ChainStatus is the chain length, pending count and tip. LastVerification is
// the server's most recent report for the current tip, if any.
type ChainStatus struct {
	ChainLength      int                 `json:"chain_length"`
	PendingEvents    int                 `json:"pending_events"`
	Tip              BlockHeader         `json:"tip"`
	LastVerification *VerificationReport `json:"last_verification,omitempty"`
}

// ReportPeriod is the window a report covers.
type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ComplianceReport summarises events for one compliance standard.
type ComplianceReport struct {
	ComplianceStandard  string             `json:"compliance_standard"`
	ReportPeriod        ReportPeriod       `json:"report_period"`
	TotalEvents         int                `json:"total_events"`
	EventSummary        map[string]int     `json:"event_summary"`
	SeverityBreakdown   map[string]int     `json:"severity_breakdown"`
	ComplianceMetrics   map[string]any     `json:"compliance_metrics"`
	BlockchainIntegrity VerificationReport `json:"blockchain_integrity"`
	Recommendations     []string           `json:"recommendations"`
	GeneratedAt         time.Time          `json:"generated_at"`
}

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	ChainLength   int     `json:"chain_length"`
	PendingEvents int     `json:"pending_events"`
	TipHash       string  `json:"tip_hash"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ReadyResponse is returned by the readiness endpoint.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
