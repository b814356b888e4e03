package wallet

// Wallet holds fungible-value tokens and single-use anonymity vouchers.
// Key material is opaque: the public key is a one-way digest of the private
// key, and both are used only for deterministic signing and verification.
type Wallet struct {
	ID           string
	PublicKey    string
	TokenIDs     map[string]struct{}
	VoucherCount int

	// privateKey never leaves the package. Signing happens through the
	// Registry so callers cannot extract it.
	privateKey string
}

// HoldsToken reports whether the wallet's balance includes the token.
func (w *Wallet) HoldsToken(tokenID string) bool {
	_, ok := w.TokenIDs[tokenID]
	return ok
}

// Redacted is the externally visible view of a wallet. It is what status
// surfaces and exports see; the private key is structurally absent.
type Redacted struct {
	ID           string   `json:"wallet_id"`
	PublicKey    string   `json:"public_key"`
	TokenIDs     []string `json:"token_balance"`
	VoucherCount int      `json:"voucher_balance"`
}

// Redacted returns the wallet's public view with a sorted token list.
func (w *Wallet) Redacted() Redacted {
	return Redacted{
		ID:           w.ID,
		PublicKey:    w.PublicKey,
		TokenIDs:     sortedTokenIDs(w.TokenIDs),
		VoucherCount: w.VoucherCount,
	}
}
