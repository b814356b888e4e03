package transfer

import "time"

// Status is the transfer state machine: pending to completed on the happy
// path, pending to failed on any validation or execution error. Completed
// records are immutable.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Transfer is one online settlement between two wallets. Anonymous is true
// iff a voucher was supplied and accepted.
type Transfer struct {
	ID         string    `json:"transaction_id"`
	SenderID   string    `json:"sender_wallet_id"`
	ReceiverID string    `json:"receiver_wallet_id"`
	TokenID    string    `json:"token_id"`
	VoucherID  string    `json:"voucher_id,omitempty"`
	Anonymous  bool      `json:"is_anonymous"`
	Status     Status    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	AMLFlagged bool      `json:"aml_flagged"`
	AMLReason  string    `json:"aml_reason,omitempty"`
	Signature  string    `json:"signature,omitempty"`
}

// signingPayload is the transfer record without its signature field, in
// canonical field order. The sender signs this; verification recomputes it.
type signingPayload struct {
	TransferID string    `json:"transaction_id"`
	SenderID   string    `json:"sender_wallet_id"`
	ReceiverID string    `json:"receiver_wallet_id"`
	TokenID    string    `json:"token_id"`
	VoucherID  string    `json:"voucher_id,omitempty"`
	Anonymous  bool      `json:"is_anonymous"`
	Status     Status    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	AMLFlagged bool      `json:"aml_flagged"`
	AMLReason  string    `json:"aml_reason,omitempty"`
}

func payloadOf(t *Transfer) signingPayload {
	return signingPayload{
		TransferID: t.ID,
		SenderID:   t.SenderID,
		ReceiverID: t.ReceiverID,
		TokenID:    t.TokenID,
		VoucherID:  t.VoucherID,
		Anonymous:  t.Anonymous,
		Status:     t.Status,
		Timestamp:  t.Timestamp,
		AMLFlagged: t.AMLFlagged,
		AMLReason:  t.AMLReason,
	}
}

// Statistics aggregates the engine's transfer history.
type Statistics struct {
	Total               int     `json:"total_transactions"`
	Anonymous           int     `json:"anonymous_transactions"`
	NonAnonymous        int     `json:"non_anonymous_transactions"`
	AMLFlagged          int     `json:"aml_flagged_transactions"`
	Completed           int     `json:"completed_transactions"`
	Failed              int     `json:"failed_transactions"`
	SuccessRate         float64 `json:"success_rate"`
	AnonymousPercentage float64 `json:"anonymous_percentage"`
}
