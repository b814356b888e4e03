package voucher

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"veilpay/internal/platform/canonical"
	"veilpay/internal/platform/logger"
	"veilpay/internal/platform/metrics"
	dErrors "veilpay/pkg/domain-errors"
)

// WalletDirectory is the narrow wallet capability the authority needs.
type WalletDirectory interface {
	Exists(ctx context.Context, walletID string) bool
	AddVouchers(ctx context.Context, ownerID string, n int) error
	UseVoucher(ctx context.Context, ownerID string) (bool, error)
}

// Authority issues and redeems anonymity vouchers. Each voucher is bound to
// one wallet and one spend limit, and carries a deterministic authority
// signature so tampering is detectable.
type Authority struct {
	mu       sync.Mutex
	vouchers map[string]*Voucher
	wallets  WalletDirectory
	secret   string
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// Option configures an Authority.
type Option func(*Authority)

func WithLogger(log zerolog.Logger) Option {
	return func(a *Authority) { a.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authority) { a.metrics = m }
}

// NewAuthority builds an Authority signing with the process-wide secret.
func NewAuthority(wallets WalletDirectory, secret string, opts ...Option) *Authority {
	a := &Authority{
		vouchers: make(map[string]*Voucher),
		wallets:  wallets,
		secret:   secret,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Issue creates a voucher bound to the wallet and spend limit, signs it, and
// credits the wallet's voucher count.
func (a *Authority) Issue(ctx context.Context, walletID string, limit int64) (*Voucher, error) {
	if limit <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "voucher limit must be positive")
	}
	if !a.wallets.Exists(ctx, walletID) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "wallet %s does not exist", walletID)
	}

	v := &Voucher{
		ID:               uuid.NewString(),
		ValueLimit:       limit,
		IssuedToWalletID: walletID,
		IssuedBy:         IssuedBy,
		IssuedAt:         time.Now().UTC(),
	}
	sig, err := canonical.KeyedDigest(payloadOf(v), a.secret)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not sign voucher")
	}
	v.Signature = sig

	a.mu.Lock()
	a.vouchers[v.ID] = v
	a.mu.Unlock()

	if err := a.wallets.AddVouchers(ctx, walletID, 1); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not credit voucher")
	}

	a.metrics.IncVouchersIssued()
	a.log.Debug().Str("voucher_id", v.ID).Str("wallet_id", walletID).
		Int64("limit", limit).Msg("voucher issued")
	return copyVoucher(v), nil
}

// Redeem consumes a voucher for a transfer of the given value. Marking the
// voucher used, recording the consuming transfer, and decrementing the
// issuing wallet's count happen together or not at all.
func (a *Authority) Redeem(ctx context.Context, voucherID, transferID string, value int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	v, ok := a.vouchers[voucherID]
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "voucher %s does not exist", voucherID)
	}
	if v.Used {
		return dErrors.Newf(dErrors.CodeVoucherRejected, "voucher %s already used", voucherID)
	}
	if value > v.ValueLimit {
		return dErrors.Newf(dErrors.CodeVoucherRejected,
			"voucher %s cannot cover value %d (limit %d)", voucherID, value, v.ValueLimit)
	}

	used, err := a.wallets.UseVoucher(ctx, v.IssuedToWalletID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not debit voucher count")
	}
	if !used {
		return dErrors.Newf(dErrors.CodeVoucherRejected,
			"wallet %s has no voucher balance", v.IssuedToWalletID)
	}

	v.Used = true
	v.UsedInTransfer = transferID

	a.metrics.IncVouchersRedeemed()
	a.log.Debug().Str("voucher_id", voucherID).Str("transfer_id", transferID).
		Msg("voucher redeemed")
	return nil
}

// Get returns a copy of the voucher.
func (a *Authority) Get(_ context.Context, voucherID string) (*Voucher, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.vouchers[voucherID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "voucher %s does not exist", voucherID)
	}
	return copyVoucher(v), nil
}

// VerifySignature recomputes the authority digest over the stored voucher
// fields and compares it with the stored signature, detecting tampering.
func (a *Authority) VerifySignature(_ context.Context, voucherID string) (bool, error) {
	a.mu.Lock()
	v, ok := a.vouchers[voucherID]
	a.mu.Unlock()
	if !ok {
		return false, dErrors.Newf(dErrors.CodeNotFound, "voucher %s does not exist", voucherID)
	}
	expected, err := canonical.KeyedDigest(payloadOf(v), a.secret)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "could not recompute signature")
	}
	return expected == v.Signature, nil
}

// ByWallet returns all vouchers issued to a wallet.
func (a *Authority) ByWallet(_ context.Context, walletID string) []*Voucher {
	return a.filter(func(v *Voucher) bool { return v.IssuedToWalletID == walletID })
}

// AvailableByWallet returns the wallet's unused vouchers.
func (a *Authority) AvailableByWallet(_ context.Context, walletID string) []*Voucher {
	return a.filter(func(v *Voucher) bool { return v.IssuedToWalletID == walletID && !v.Used })
}

// Used returns every redeemed voucher.
func (a *Authority) Used(_ context.Context) []*Voucher {
	return a.filter(func(v *Voucher) bool { return v.Used })
}

// Unused returns every voucher still available.
func (a *Authority) Unused(_ context.Context) []*Voucher {
	return a.filter(func(v *Voucher) bool { return !v.Used })
}

// ListAll returns every voucher in the system.
func (a *Authority) ListAll(_ context.Context) []*Voucher {
	return a.filter(func(*Voucher) bool { return true })
}

func (a *Authority) filter(keep func(*Voucher) bool) []*Voucher {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*Voucher
	for _, v := range a.vouchers {
		if keep(v) {
			out = append(out, copyVoucher(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func payloadOf(v *Voucher) signingPayload {
	return signingPayload{
		VoucherID:        v.ID,
		ValueLimit:       v.ValueLimit,
		IssuedToWalletID: v.IssuedToWalletID,
		IssuedBy:         v.IssuedBy,
		IssuedAt:         v.IssuedAt,
	}
}

func copyVoucher(v *Voucher) *Voucher {
	c := *v
	return &c
}
