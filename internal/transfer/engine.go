// Package transfer orchestrates online settlements: validation, AML scoring,
// atomic ownership movement, voucher redemption, signing, and the audit
// ledger append.
package transfer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"veilpay/internal/compliance"
	"veilpay/internal/ledger"
	"veilpay/internal/platform/logger"
	"veilpay/internal/platform/metrics"
	"veilpay/internal/token"
	"veilpay/internal/voucher"
	dErrors "veilpay/pkg/domain-errors"
)

// The engine declares the narrow capability it needs from each collaborator;
// the concrete registries satisfy these at assembly time.

type Wallets interface {
	Exists(ctx context.Context, walletID string) bool
	Sign(ctx context.Context, walletID string, payload any) (string, error)
	VerifySignature(ctx context.Context, walletID string, payload any, signature string) (bool, error)
}

type Tokens interface {
	Get(ctx context.Context, tokenID string) (*token.Token, error)
	Transfer(ctx context.Context, tokenID, fromID, toID string) error
}

type Vouchers interface {
	Get(ctx context.Context, voucherID string) (*voucher.Voucher, error)
	Redeem(ctx context.Context, voucherID, transferID string, value int64) error
}

type Scorer interface {
	Score(ctx context.Context, facts compliance.TransferFacts) compliance.Result
}

type Recorder interface {
	Record(ctx context.Context, summary ledger.TransferSummary) (int64, error)
}

// Engine executes online transfers and keeps their history.
type Engine struct {
	mu        sync.Mutex
	transfers map[string]*Transfer

	wallets    Wallets
	tokens     Tokens
	vouchers   Vouchers
	scorer     Scorer
	auditTrail Recorder

	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(wallets Wallets, tokens Tokens, vouchers Vouchers, scorer Scorer, auditTrail Recorder, opts ...Option) *Engine {
	e := &Engine{
		transfers:  make(map[string]*Transfer),
		wallets:    wallets,
		tokens:     tokens,
		vouchers:   vouchers,
		scorer:     scorer,
		auditTrail: auditTrail,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute settles a transfer of tokenID from sender to receiver, optionally
// spending a voucher to make it anonymous.
//
// Validation (no mutations) runs first; execution then moves ownership,
// redeems the voucher, and signs. A failure after the token moved but before
// the voucher redeemed is not rolled back: the two act on disjoint resources
// and are individually atomic but not jointly transactional. The transfer is
// marked failed and the error surfaces to the caller, who may retry with a
// fresh attempt.
func (e *Engine) Execute(ctx context.Context, senderID, receiverID, tokenID, voucherID string) (*Transfer, error) {
	// Step 1: structural validation before touching any state.
	if senderID == "" || receiverID == "" || tokenID == "" {
		e.metrics.IncTransfersFailed()
		return nil, dErrors.New(dErrors.CodeValidation, "sender, receiver, and token id are required")
	}
	if senderID == receiverID {
		e.metrics.IncTransfersFailed()
		return nil, dErrors.New(dErrors.CodeValidation, "sender and receiver cannot be the same")
	}
	if !e.wallets.Exists(ctx, senderID) || !e.wallets.Exists(ctx, receiverID) {
		e.metrics.IncTransfersFailed()
		return nil, dErrors.New(dErrors.CodeValidation, "one or both wallets do not exist")
	}

	// Step 2: the sender must own the token.
	tok, err := e.tokens.Get(ctx, tokenID)
	if err != nil {
		e.metrics.IncTransfersFailed()
		return nil, err
	}
	if tok.OwnerWalletID != senderID {
		e.metrics.IncTransfersFailed()
		return nil, dErrors.Newf(dErrors.CodeNotOwner, "wallet %s does not own token %s", senderID, tokenID)
	}

	// Step 3: voucher usability decides anonymity.
	anonymous := false
	if voucherID != "" {
		v, err := e.vouchers.Get(ctx, voucherID)
		if err != nil {
			e.metrics.IncTransfersFailed()
			return nil, err
		}
		if v.IssuedToWalletID != senderID {
			e.metrics.IncTransfersFailed()
			return nil, dErrors.Newf(dErrors.CodeVoucherRejected,
				"voucher %s does not belong to sender", voucherID)
		}
		if !v.UsableFor(tok.Value) {
			e.metrics.IncTransfersFailed()
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
		VoucherID:  voucherID,
		Anonymous:  anonymous,
		Status:     StatusPending,
		Timestamp:  time.Now().UTC(),
	}

	// Step 4: risk scoring against the not-yet-committed transfer.
	// Flagging is monitoring only; it never blocks settlement.
	result := e.scorer.Score(ctx, compliance.TransferFacts{
		TransferID: t.ID,
		SenderID:   t.SenderID,
		ReceiverID: t.ReceiverID,
		TokenID:    t.TokenID,
		Value:      tok.Value,
		Anonymous:  t.Anonymous,
		Timestamp:  t.Timestamp,
	})
	t.AMLFlagged = result.Status == compliance.StatusFlagged
	t.AMLReason = result.Reason

	// Step 5: execution. Ownership first, then voucher, then signature.
	if err := e.tokens.Transfer(ctx, tokenID, senderID, receiverID); err != nil {
		return nil, e.fail(t, dErrors.Wrap(err, dErrors.CodeExecutionFailure, "token transfer failed"))
	}
	if voucherID != "" {
		if err := e.vouchers.Redeem(ctx, voucherID, t.ID, tok.Value); err != nil {
			return nil, e.fail(t, dErrors.Wrap(err, dErrors.CodeExecutionFailure, "voucher redemption failed"))
		}
	}
	// The sender signs the settled record so that later verification
	// recomputes over exactly the payload that was signed.
	t.Status = StatusCompleted
	sig, err := e.wallets.Sign(ctx, senderID, payloadOf(t))
	if err != nil {
		return nil, e.fail(t, dErrors.Wrap(err, dErrors.CodeExecutionFailure, "could not sign transfer"))
	}
	t.Signature = sig

	// Step 6: record and store.
	if _, err := e.auditTrail.Record(ctx, e.summaryOf(t)); err != nil {
		return nil, e.fail(t, dErrors.Wrap(err, dErrors.CodeExecutionFailure, "ledger append failed"))
	}

	e.store(t)
	e.metrics.IncTransfersCompleted()
	e.log.Info().Str("transfer_id", t.ID).Str("sender", senderID).Str("receiver", receiverID).
		Bool("anonymous", t.Anonymous).Bool("aml_flagged", t.AMLFlagged).
		Msg("transfer completed")
	return copyTransfer(t), nil
}

// fail marks the transfer failed, keeps it queryable, and hands the error
// back to the caller. Partial mutations that already committed stay.
func (e *Engine) fail(t *Transfer, err error) error {
	t.Status = StatusFailed
	t.Signature = ""
	e.store(t)
	e.metrics.IncTransfersFailed()
	e.log.Error().Err(err).Str("transfer_id", t.ID).Msg("transfer failed")
	return err
}

func (e *Engine) summaryOf(t *Transfer) ledger.TransferSummary {
	return ledger.TransferSummary{
		TransferID: t.ID,
		SenderID:   t.SenderID,
		ReceiverID: t.ReceiverID,
		TokenID:    t.TokenID,
		VoucherID:  t.VoucherID,
		Anonymous:  t.Anonymous,
		AMLFlagged: t.AMLFlagged,
		AMLReason:  t.AMLReason,
		Status:     string(t.Status),
		Timestamp:  t.Timestamp,
	}
}

func (e *Engine) store(t *Transfer) {
	e.mu.Lock()
	e.transfers[t.ID] = t
	e.mu.Unlock()
}

// Get returns the transfer with the given id.
func (e *Engine) Get(_ context.Context, transferID string) (*Transfer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.transfers[transferID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "transfer %s does not exist", transferID)
	}
	return copyTransfer(t), nil
}

// ByWallet returns all transfers a wallet participated in.
func (e *Engine) ByWallet(_ context.Context, walletID string) []*Transfer {
	return e.filter(func(t *Transfer) bool {
		return t.SenderID == walletID || t.ReceiverID == walletID
	})
}

// Anonymous returns all voucher-backed transfers.
func (e *Engine) Anonymous(_ context.Context) []*Transfer {
	return e.filter(func(t *Transfer) bool { return t.Anonymous })
}

// NonAnonymous returns all fully auditable transfers.
func (e *Engine) NonAnonymous(_ context.Context) []*Transfer {
	return e.filter(func(t *Transfer) bool { return !t.Anonymous })
}

// AMLFlagged returns all transfers flagged for monitoring.
func (e *Engine) AMLFlagged(_ context.Context) []*Transfer {
	return e.filter(func(t *Transfer) bool { return t.AMLFlagged })
}

// Completed returns all settled transfers.
func (e *Engine) Completed(_ context.Context) []*Transfer {
	return e.filter(func(t *Transfer) bool { return t.Status == StatusCompleted })
}

// Failed returns all transfers that failed during execution.
func (e *Engine) Failed(_ context.Context) []*Transfer {
	return e.filter(func(t *Transfer) bool { return t.Status == StatusFailed })
}

// ListAll returns every transfer the engine has seen.
func (e *Engine) ListAll(_ context.Context) []*Transfer {
	return e.filter(func(*Transfer) bool { return true })
}

// Statistics aggregates the transfer history.
func (e *Engine) Statistics(ctx context.Context) Statistics {
	all := e.ListAll(ctx)
	stats := Statistics{Total: len(all)}
	for _, t := range all {
		if t.Anonymous {
			stats.Anonymous++
		} else {
			stats.NonAnonymous++
		}
		if t.AMLFlagged {
			stats.AMLFlagged++
		}
		switch t.Status {
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(stats.Total) * 100
		stats.AnonymousPercentage = float64(stats.Anonymous) / float64(stats.Total) * 100
	}
	return stats
}

// VerifySignature independently recomputes the sender's expected signature
// over the transfer payload without its signature field and compares.
func (e *Engine) VerifySignature(ctx context.Context, transferID string) (bool, error) {
	t, err := e.Get(ctx, transferID)
	if err != nil {
		return false, err
	}
	if t.Signature == "" {
		return false, nil
	}
	return e.wallets.VerifySignature(ctx, t.SenderID, payloadOf(t), t.Signature)
}

func (e *Engine) filter(keep func(*Transfer) bool) []*Transfer {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*Transfer
	for _, t := range e.transfers {
		if keep(t) {
			out = append(out, copyTransfer(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func copyTransfer(t *Transfer) *Transfer {
	c := *t
	return &c
}
