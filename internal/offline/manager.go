// Package offline manages peer-to-peer transfers agreed without ledger
// access. Creation and countersigning are pure bookkeeping; every stateful
// effect (ownership move, voucher burn, audit append) happens at the single
// sync point.
package offline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"veilpay/internal/ledger"
	"veilpay/internal/platform/exportfile"
	"veilpay/internal/platform/logger"
	"veilpay/internal/platform/metrics"
	"veilpay/internal/token"
	"veilpay/internal/voucher"
	dErrors "veilpay/pkg/domain-errors"
)

type Wallets interface {
	Exists(ctx context.Context, walletID string) bool
	Sign(ctx context.Context, walletID string, payload any) (string, error)
}

type Tokens interface {
	Get(ctx context.Context, tokenID string) (*token.Token, error)
	Transfer(ctx context.Context, tokenID, fromID, toID string) error
}

type Vouchers interface {
	Get(ctx context.Context, voucherID string) (*voucher.Voucher, error)
	Redeem(ctx context.Context, voucherID, transferID string, value int64) error
}

type Recorder interface {
	Record(ctx context.Context, summary ledger.TransferSummary) (int64, error)
}

// Manager tracks offline transfers through their lifecycle and reconciles
// them against the online components at sync time.
type Manager struct {
	mu        sync.Mutex
	transfers map[string]*Transfer

	wallets    Wallets
	tokens     Tokens
	vouchers   Vouchers
	auditTrail Recorder

	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

func NewManager(wallets Wallets, tokens Tokens, vouchers Vouchers, auditTrail Recorder, opts ...Option) *Manager {
	m := &Manager{
		transfers:  make(map[string]*Transfer),
		wallets:    wallets,
		tokens:     tokens,
		vouchers:   vouchers,
		auditTrail: auditTrail,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create validates the proposed transfer and records the agreed terms. The
// token's current value and the anonymity decision are snapshotted into the
// record; nothing is moved, redeemed, or appended yet.
func (m *Manager) Create(ctx context.Context, senderID, receiverID, tokenID, voucherID string) (*Transfer, error) {
	if senderID == "" || receiverID == "" || tokenID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "sender, receiver, and token id are required")
	}
	if senderID == receiverID {
		return nil, dErrors.New(dErrors.CodeValidation, "sender and receiver cannot be the same")
	}
	if !m.wallets.Exists(ctx, senderID) || !m.wallets.Exists(ctx, receiverID) {
		return nil, dErrors.New(dErrors.CodeValidation, "one or both wallets do not exist")
	}

	tok, err := m.tokens.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if tok.OwnerWalletID != senderID {
		return nil, dErrors.Newf(dErrors.CodeNotOwner, "wallet %s does not own token %s", senderID, tokenID)
	}

	anonymous := false
	if voucherID != "" {
		v, err := m.vouchers.Get(ctx, voucherID)
		if err != nil {
			return nil, err
		}
		if v.IssuedToWalletID != senderID {
			return nil, dErrors.Newf(dErrors.CodeVoucherRejected,
				"voucher %s does not belong to sender", voucherID)
		}
		if !v.UsableFor(tok.Value) {
			return nil, dErrors.Newf(dErrors.CodeVoucherRejected,
				"voucher %s cannot be used for value %d", voucherID, tok.Value)
		}
		anonymous = true
	}

	t := &Transfer{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		TokenID:    tokenID,
		Value:      tok.Value,
		VoucherID:  voucherID,
		Anonymous:  anonymous,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	m.mu.Lock()
	m.transfers[t.ID] = t
	m.mu.Unlock()

	m.log.Info().
		Str("offline_id", t.ID).
		Int64("value", t.Value).
		Bool("anonymous", t.Anonymous).
		Msg("offline transfer created")
	return copyTransfer(t), nil
}

// Sign records a participant's countersignature. The signature must equal
// the wallet's deterministic signature over the canonical offline payload;
// anything else, including a non-participant wallet, is rejected. Once both
// slots are filled the transfer becomes signed. Signatures are accepted only
// while the transfer is pending: signed, synced, and failed records are
// immutable.
func (m *Manager) Sign(ctx context.Context, offlineID, walletID, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transfers[offlineID]
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "offline transfer %s does not exist", offlineID)
	}
	if t.Status != StatusPending {
		return dErrors.Newf(dErrors.CodeValidation,
			"offline transfer %s is %s, signatures are accepted only while pending", offlineID, t.Status)
	}
	if walletID != t.SenderID && walletID != t.ReceiverID {
		return dErrors.Newf(dErrors.CodeSignatureMismatch,
			"wallet %s is not a participant in offline transfer %s", walletID, offlineID)
	}

	expected, err := m.wallets.Sign(ctx, walletID, payloadOf(t))
	if err != nil {
		return err
	}
	if signature != expected {
		return dErrors.Newf(dErrors.CodeSignatureMismatch,
			"signature from wallet %s does not match offline transfer %s", walletID, offlineID)
	}

	if walletID == t.SenderID {
		t.SenderSignature = signature
	} else {
		t.ReceiverSignature = signature
	}
	if t.SenderSignature != "" && t.ReceiverSignature != "" {
		t.Status = StatusSigned
		m.log.Info().Str("offline_id", t.ID).Msg("offline transfer fully signed")
	}
	return nil
}

// Sync reconciles a fully signed transfer against the online state: token
// ownership moves, the voucher (if any) is burned, and the audit trail gets
// an entry carrying the offline id and the agreement timestamp. Any
// execution failure marks the record failed and returns false without an
// error; the token move and voucher burn are individually atomic but not
// jointly transactional, same as online settlement.
func (m *Manager) Sync(ctx context.Context, offlineID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transfers[offlineID]
	if !ok {
		return false, dErrors.Newf(dErrors.CodeNotFound, "offline transfer %s does not exist", offlineID)
	}
	if t.Status != StatusSigned {
		return false, dErrors.Newf(dErrors.CodeValidation,
			"offline transfer %s is %s, only signed transfers can sync", offlineID, t.Status)
	}

	if err := m.tokens.Transfer(ctx, t.TokenID, t.SenderID, t.ReceiverID); err != nil {
		return m.failLocked(t, err), nil
	}
	if t.VoucherID != "" {
		if err := m.vouchers.Redeem(ctx, t.VoucherID, t.ID, t.Value); err != nil {
			return m.failLocked(t, err), nil
		}
	}
	if _, err := m.auditTrail.Record(ctx, ledger.TransferSummary{
		TransferID: t.ID,
		SenderID:   t.SenderID,
		ReceiverID: t.ReceiverID,
		TokenID:    t.TokenID,
		VoucherID:  t.VoucherID,
		Anonymous:  t.Anonymous,
		Status:     "completed",
		Timestamp:  t.CreatedAt,
	}); err != nil {
		return m.failLocked(t, err), nil
	}

	t.Status = StatusSynced
	t.SyncedAt = time.Now().UTC()
	m.metrics.IncOfflineSynced()
	m.log.Info().Str("offline_id", t.ID).Msg("offline transfer synced")
	return true, nil
}

// failLocked marks the transfer failed. Always returns false so callers can
// tail-call it.
func (m *Manager) failLocked(t *Transfer, err error) bool {
	t.Status = StatusFailed
	m.log.Warn().
		Str("offline_id", t.ID).
		Err(err).
		Msg("offline sync failed")
	return false
}

func (m *Manager) Get(_ context.Context, offlineID string) (*Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[offlineID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "offline transfer %s does not exist", offlineID)
	}
	return copyTransfer(t), nil
}

func (m *Manager) ByWallet(_ context.Context, walletID string) []*Transfer {
	return m.filter(func(t *Transfer) bool {
		return t.SenderID == walletID || t.ReceiverID == walletID
	})
}

func (m *Manager) Pending(_ context.Context) []*Transfer {
	return m.filter(func(t *Transfer) bool { return t.Status == StatusPending })
}

func (m *Manager) Signed(_ context.Context) []*Transfer {
	return m.filter(func(t *Transfer) bool { return t.Status == StatusSigned })
}

func (m *Manager) Synced(_ context.Context) []*Transfer {
	return m.filter(func(t *Transfer) bool { return t.Status == StatusSynced })
}

func (m *Manager) Failed(_ context.Context) []*Transfer {
	return m.filter(func(t *Transfer) bool { return t.Status == StatusFailed })
}

func (m *Manager) ListAll(_ context.Context) []*Transfer {
	return m.filter(func(*Transfer) bool { return true })
}

func (m *Manager) Statistics(_ context.Context) Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Statistics{Total: len(m.transfers)}
	for _, t := range m.transfers {
		switch t.Status {
		case StatusPending:
			stats.Pending++
		case StatusSigned:
			stats.Signed++
		case StatusSynced:
			stats.Synced++
		case StatusFailed:
			stats.Failed++
		}
	}
	if stats.Total > 0 {
		stats.SyncRate = float64(stats.Synced) / float64(stats.Total) * 100
		stats.FailureRate = float64(stats.Failed) / float64(stats.Total) * 100
	}
	return stats
}

// Export writes every offline transfer plus current statistics to a JSON
// file. An empty path picks a timestamped name in dir.
func (m *Manager) Export(ctx context.Context, path, dir string) (string, error) {
	stats := m.Statistics(ctx)
	all := m.ListAll(ctx)

	transfers := make([]Transfer, 0, len(all))
	for _, t := range all {
		transfers = append(transfers, *t)
	}

	target := exportfile.Resolve(path, dir, "offline_transactions", time.Now())
	doc := exportDoc{
		ExportedAt: time.Now().UTC(),
		Total:      len(transfers),
		Statistics: stats,
		Transfers:  transfers,
	}
	if err := exportfile.WriteJSON(target, doc); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "offline export failed")
	}
	return target, nil
}

func (m *Manager) filter(keep func(*Transfer) bool) []*Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Transfer
	for _, t := range m.transfers {
		if keep(t) {
			out = append(out, copyTransfer(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func copyTransfer(t *Transfer) *Transfer {
	c := *t
	return &c
}
