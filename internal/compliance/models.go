package compliance

import "time"

// Status is the outcome of a compliance check. There is no rejecting status:
// flagging is monitoring, not blocking.
type Status string

const (
	StatusApproved Status = "approved"
	StatusFlagged  Status = "flagged"
)

// TransferFacts carries everything the risk rules need to score a proposed
// transfer. It is assembled by the pipelines before any state changes, so
// scoring is a pure function of these fields.
type TransferFacts struct {
	TransferID string
	SenderID   string
	ReceiverID string
	TokenID    string
	Value      int64
	Anonymous  bool
	Timestamp  time.Time
}

// Result of scoring one transfer.
type Result struct {
	Approved           bool
	Status             Status
	Reason             string
	RiskScore          float64
	RequiresEscalation bool
}

// AMLEntry records a flagged transfer in the AML registry. Escalated and
// AuthorityNotified are set at creation, never later; nothing else mutates.
type AMLEntry struct {
	TransferID        string    `json:"transaction_id"`
	SenderWalletID    string    `json:"sender_wallet_id"`
	ReceiverWalletID  string    `json:"receiver_wallet_id"`
	TokenID           string    `json:"token_id"`
	Amount            int64     `json:"amount"`
	Timestamp         time.Time `json:"timestamp"`
	Reason            string    `json:"reason"`
	RiskScore         float64   `json:"risk_score"`
	Escalated         bool      `json:"escalated"`
	AuthorityNotified bool      `json:"authority_notified"`
}

// Statistics aggregates the AML registry.
type Statistics struct {
	TotalFlagged       int     `json:"total_flagged_transactions"`
	HighRisk           int     `json:"high_risk_transactions"`
	Escalated          int     `json:"escalated_transactions"`
	AuthorityContacted bool    `json:"authority_contacted"`
	AverageRiskScore   float64 `json:"average_risk_score"`
}

// Report is the exported AML report document.
type Report struct {
	ExportTimestamp time.Time  `json:"export_timestamp"`
	TotalEntries    int        `json:"total_entries"`
	HighRiskCount   int        `json:"high_risk_count"`
	EscalatedCount  int        `json:"escalated_count"`
	Entries         []AMLEntry `json:"entries"`
}
