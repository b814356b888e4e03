package ledger

import "time"

// Classification partitions ledger entries for privacy-aware auditing.
// Precedence at record time: AML-flagged over anonymous over non-anonymous.
type Classification string

const (
	ClassAnonymous    Classification = "anonymous"
	ClassNonAnonymous Classification = "non_anonymous"
	ClassAMLFlagged   Classification = "aml_flagged"
)

// TransferSummary is the single shared shape both settlement pipelines hand
// to the ledger. Online transfers and reconciled offline transfers build the
// same summary, so the ledger never needs to know which pipeline settled it.
type TransferSummary struct {
	TransferID string
	SenderID   string
	ReceiverID string
	TokenID    string
	VoucherID  string
	Anonymous  bool
	AMLFlagged bool
	AMLReason  string
	Status     string
	Timestamp  time.Time
}

// Classify applies the classification precedence.
func (s TransferSummary) Classify() Classification {
	switch {
	case s.AMLFlagged:
		return ClassAMLFlagged
	case s.Anonymous:
		return ClassAnonymous
	default:
		return ClassNonAnonymous
	}
}

// Metadata is the free-form tail of a ledger entry.
type Metadata struct {
	VoucherID string `json:"voucher_id,omitempty"`
	Status    string `json:"status"`
	AMLReason string `json:"aml_reason,omitempty"`
}

// Entry is one append-only ledger record. Entry ids are monotonically
// increasing and never reused or reassigned.
type Entry struct {
	ID               int64          `json:"entry_id"`
	TransferID       string         `json:"transaction_id"`
	SenderWalletID   string         `json:"sender_wallet_id"`
	ReceiverWalletID string         `json:"receiver_wallet_id"`
	TokenID          string         `json:"token_id"`
	Value            int64          `json:"value"`
	Anonymous        bool           `json:"is_anonymous"`
	Classification   Classification `json:"entry_type"`
	Timestamp        time.Time      `json:"timestamp"`
	Metadata         Metadata       `json:"metadata"`
}

// InvolvesWallet reports whether the wallet is the entry's sender or
// receiver.
func (e Entry) InvolvesWallet(walletID string) bool {
	return e.SenderWalletID == walletID || e.ReceiverWalletID == walletID
}

// Filter combines query predicates with AND semantics. Nil/zero fields do not
// constrain.
type Filter struct {
	Classification *Classification
	WalletID       string
	TransferID     string
	MinValue       *int64
	MaxValue       *int64
	From           *time.Time
	To             *time.Time
}

func (f Filter) matches(e Entry) bool {
	if f.Classification != nil && e.Classification != *f.Classification {
		return false
	}
	if f.WalletID != "" && !e.InvolvesWallet(f.WalletID) {
		return false
	}
	if f.TransferID != "" && e.TransferID != f.TransferID {
		return false
	}
	if f.MinValue != nil && e.Value < *f.MinValue {
		return false
	}
	if f.MaxValue != nil && e.Value > *f.MaxValue {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// Statistics aggregates the ledger by classification.
type Statistics struct {
	TotalEntries             int     `json:"total_entries"`
	AnonymousEntries         int     `json:"anonymous_entries"`
	NonAnonymousEntries      int     `json:"non_anonymous_entries"`
	AMLFlaggedEntries        int     `json:"aml_flagged_entries"`
	TotalValue               int64   `json:"total_value"`
	AnonymousValue           int64   `json:"anonymous_value"`
	NonAnonymousValue        int64   `json:"non_anonymous_value"`
	AMLFlaggedValue          int64   `json:"aml_flagged_value"`
	AnonymousPercentage      float64 `json:"anonymous_percentage"`
	ValueAnonymousPercentage float64 `json:"value_anonymous_percentage"`
}

// snapshotInfo is the header of the persisted ledger file.
type snapshotInfo struct {
	Created           time.Time `json:"created"`
	TotalEntries      int       `json:"total_entries"`
	AnonymousCount    int       `json:"anonymous_count"`
	NonAnonymousCount int       `json:"non_anonymous_count"`
	AMLFlaggedCount   int       `json:"aml_flagged_count"`
}

// snapshot is the persisted ledger document, rewritten in full after every
// append.
type snapshot struct {
	LedgerInfo snapshotInfo `json:"ledger_info"`
	Entries    []Entry      `json:"entries"`
}
