package token

import "time"

// IssuedBy is the issuing authority tag stamped on every minted token.
const IssuedBy = "ECB"

// Denominations are the standard token values in whole currency units.
// Issuance accepts any positive value; these are the ones the mint uses.
var Denominations = []int64{1, 5, 10, 20, 50, 100}

// IsStandardDenomination reports whether v is one of the mint's denominations.
func IsStandardDenomination(v int64) bool {
	for _, d := range Denominations {
		if v == d {
			return true
		}
	}
	return false
}

// Token is a unit of value with exactly one owning wallet at a time.
// Ownership changes only through Ledger.Transfer; tokens are never destroyed.
type Token struct {
	ID            string    `json:"token_id"`
	Value         int64     `json:"value"`
	OwnerWalletID string    `json:"owner_wallet_id"`
	IssuedBy      string    `json:"issued_by"`
	IssuedAt      time.Time `json:"issue_timestamp"`
}
