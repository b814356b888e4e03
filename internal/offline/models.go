package offline

import "time"

// Status is the offline transfer state machine. A record moves pending to
// signed once both parties have countersigned, then signed to synced or
// failed at the single synchronization point. Nothing stateful happens
// before sync.
type Status string

const (
	StatusPending Status = "pending"
	StatusSigned  Status = "signed"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// Transfer is an agreement struck between two peers without ledger access.
// Value and Anonymous are snapshots taken at creation time so the parties
// sign over fixed terms; ownership, voucher burn and the ledger append are
// all deferred to Sync.
type Transfer struct {
	ID                string    `json:"offline_id"`
	SenderID          string    `json:"sender_wallet_id"`
	ReceiverID        string    `json:"receiver_wallet_id"`
	TokenID           string    `json:"token_id"`
	Value             int64     `json:"value"`
	SenderSignature   string    `json:"sender_signature,omitempty"`
	ReceiverSignature string    `json:"receiver_signature,omitempty"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"created_timestamp"`
	SyncedAt          time.Time `json:"synced_timestamp,omitzero"`
	VoucherID         string    `json:"voucher_id,omitempty"`
	Anonymous         bool      `json:"is_anonymous"`
}

// signingPayload is the canonical document both peers sign. It carries only
// the agreed terms, never the signatures or mutable status fields.
type signingPayload struct {
	OfflineID  string `json:"offline_id"`
	SenderID   string `json:"sender_wallet_id"`
	ReceiverID string `json:"receiver_wallet_id"`
	TokenID    string `json:"token_id"`
	Value      int64  `json:"value"`
	VoucherID  string `json:"voucher_id,omitempty"`
	Anonymous  bool   `json:"is_anonymous"`
}

func payloadOf(t *Transfer) signingPayload {
	return signingPayload{
		OfflineID:  t.ID,
		SenderID:   t.SenderID,
		ReceiverID: t.ReceiverID,
		TokenID:    t.TokenID,
		Value:      t.Value,
		VoucherID:  t.VoucherID,
		Anonymous:  t.Anonymous,
	}
}

// Statistics aggregates the manager's transfer population by state.
type Statistics struct {
	Total       int     `json:"total_offline_transactions"`
	Pending     int     `json:"pending_transactions"`
	Signed      int     `json:"signed_transactions"`
	Synced      int     `json:"synced_transactions"`
	Failed      int     `json:"failed_transactions"`
	SyncRate    float64 `json:"sync_rate"`
	FailureRate float64 `json:"failure_rate"`
}

// exportDoc is the on-disk shape of an offline export.
type exportDoc struct {
	ExportedAt time.Time  `json:"export_timestamp"`
	Total      int        `json:"total_transactions"`
	Statistics Statistics `json:"statistics"`
	Transfers  []Transfer `json:"transactions"`
}
