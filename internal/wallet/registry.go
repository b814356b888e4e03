package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"veilpay/internal/platform/canonical"
	dErrors "veilpay/pkg/domain-errors"
	"veilpay/pkg/platform/sentinel"
)

// Registry owns wallet identities, key material, and per-wallet token and
// voucher balances. All mutation goes through the registry under one lock so
// two concurrent transfers can never both observe and act on the same
// pre-mutation balance.
type Registry struct {
	mu      sync.RWMutex
	wallets map[string]*Wallet
}

func NewRegistry() *Registry {
	return &Registry{wallets: make(map[string]*Wallet)}
}

// Create mints a new wallet with freshly generated key material. The public
// key is a digest of the private key, so distinct wallets are guaranteed
// distinct keys.
func (r *Registry) Create(_ context.Context) (*Wallet, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate key material")
	}
	privateKey := hex.EncodeToString(buf)

	w := &Wallet{
		ID:         uuid.NewString(),
		PublicKey:  canonical.SumHex([]byte(privateKey)),
		TokenIDs:   make(map[string]struct{}),
		privateKey: privateKey,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[w.ID] = w
	return snapshot(w), nil
}

// Get returns a point-in-time copy of the wallet.
func (r *Registry) Get(_ context.Context, walletID string) (*Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", walletID, sentinel.ErrNotFound)
	}
	return snapshot(w), nil
}

func (r *Registry) Exists(_ context.Context, walletID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.wallets[walletID]
	return ok
}

// List returns copies of all wallets in creation-independent (id) order.
func (r *Registry) List(_ context.Context) []*Wallet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Wallet, 0, len(r.wallets))
	for _, w := range r.wallets {
		out = append(out, snapshot(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddToken adds a token id to the owner's balance. Idempotent.
func (r *Registry) AddToken(_ context.Context, ownerID, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[ownerID]
	if !ok {
		return fmt.Errorf("wallet %s: %w", ownerID, sentinel.ErrNotFound)
	}
	w.TokenIDs[tokenID] = struct{}{}
	return nil
}

// RemoveToken removes a token id from the owner's balance. Idempotent.
func (r *Registry) RemoveToken(_ context.Context, ownerID, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[ownerID]
	if !ok {
		return fmt.Errorf("wallet %s: %w", ownerID, sentinel.ErrNotFound)
	}
	delete(w.TokenIDs, tokenID)
	return nil
}

// AddVouchers raises the owner's voucher count by n.
func (r *Registry) AddVouchers(_ context.Context, ownerID string, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[ownerID]
	if !ok {
		return fmt.Errorf("wallet %s: %w", ownerID, sentinel.ErrNotFound)
	}
	w.VoucherCount += n
	return nil
}

// UseVoucher decrements the owner's voucher count. Returns false, with no
// error, when the balance is already zero.
func (r *Registry) UseVoucher(_ context.Context, ownerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[ownerID]
	if !ok {
		return false, fmt.Errorf("wallet %s: %w", ownerID, sentinel.ErrNotFound)
	}
	if w.VoucherCount == 0 {
		return false, nil
	}
	w.VoucherCount--
	return true, nil
}

// Sign returns a deterministic digest of the canonical payload and the
// wallet's private key. It stands in for a real signature scheme and must
// stay a pure function of its inputs: the offline protocol relies on both
// parties reproducing byte-identical signatures from byte-identical payloads.
func (r *Registry) Sign(_ context.Context, walletID string, payload any) (string, error) {
	r.mu.RLock()
	w, ok := r.wallets[walletID]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("wallet %s: %w", walletID, sentinel.ErrNotFound)
	}
	sig, err := canonical.KeyedDigest(payload, w.privateKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not sign payload")
	}
	return sig, nil
}

// VerifySignature recomputes the expected signature and compares.
func (r *Registry) VerifySignature(ctx context.Context, walletID string, payload any, signature string) (bool, error) {
	expected, err := r.Sign(ctx, walletID, payload)
	if err != nil {
		return false, err
	}
	return expected == signature, nil
}

func snapshot(w *Wallet) *Wallet {
	tokens := make(map[string]struct{}, len(w.TokenIDs))
	for id := range w.TokenIDs {
		tokens[id] = struct{}{}
	}
	return &Wallet{
		ID:           w.ID,
		PublicKey:    w.PublicKey,
		TokenIDs:     tokens,
		VoucherCount: w.VoucherCount,
		privateKey:   w.privateKey,
	}
}

func sortedTokenIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
