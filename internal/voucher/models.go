package voucher

import "time"

// IssuedBy is the authority tag bound into every voucher signature.
const IssuedBy = "compliance-authority"

// Voucher is a single-use authorization letting one transfer be recorded
// without identifying the sender/receiver pair to auditors. Used is monotonic
// false to true exactly once; redemption is the only mutation.
type Voucher struct {
	ID               string    `json:"voucher_id"`
	Signature        string    `json:"signature"`
	ValueLimit       int64     `json:"value_limit"`
	IssuedToWalletID string    `json:"issued_to_wallet_id"`
	IssuedBy         string    `json:"issued_by"`
	IssuedAt         time.Time `json:"issue_timestamp"`
	Used             bool      `json:"is_used"`
	UsedInTransfer   string    `json:"used_in_transaction,omitempty"`
}

// UsableFor reports whether the voucher can cover a transfer of the given
// value: not yet used and value within the spend limit.
func (v *Voucher) UsableFor(value int64) bool {
	return !v.Used && value <= v.ValueLimit
}

// signingPayload is the canonical voucher payload the authority signs.
// Field order is fixed; changing it invalidates every issued signature.
type signingPayload struct {
	VoucherID        string    `json:"voucher_id"`
	ValueLimit       int64     `json:"value_limit"`
	IssuedToWalletID string    `json:"issued_to_wallet_id"`
	IssuedBy         string    `json:"issued_by"`
	IssuedAt         time.Time `json:"issue_timestamp"`
}
