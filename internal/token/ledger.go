package token

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	dErrors "veilpay/pkg/domain-errors"
)

// WalletDirectory is the narrow wallet capability the token ledger needs:
// existence checks and balance set updates. The concrete wallet registry
// satisfies it at assembly time.
type WalletDirectory interface {
	Exists(ctx context.Context, walletID string) bool
	AddToken(ctx context.Context, ownerID, tokenID string) error
	RemoveToken(ctx context.Context, ownerID, tokenID string) error
}

// Ledger owns token records and their current owning wallet, and enforces
// single ownership: at any instant exactly one wallet owns a token.
type Ledger struct {
	mu      sync.Mutex
	tokens  map[string]*Token
	wallets WalletDirectory
}

func NewLedger(wallets WalletDirectory) *Ledger {
	return &Ledger{tokens: make(map[string]*Token), wallets: wallets}
}

// Issue mints a token of the given value to a wallet.
func (l *Ledger) Issue(ctx context.Context, value int64, ownerID string) (*Token, error) {
	if value <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "token value must be positive")
	}
	if !l.wallets.Exists(ctx, ownerID) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "wallet %s does not exist", ownerID)
	}

	t := &Token{
		ID:            uuid.NewString(),
		Value:         value,
		OwnerWalletID: ownerID,
		IssuedBy:      IssuedBy,
		IssuedAt:      time.Now().UTC(),
	}

	l.mu.Lock()
	l.tokens[t.ID] = t
	l.mu.Unlock()

	if err := l.wallets.AddToken(ctx, ownerID, t.ID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not credit issued token")
	}
	return copyToken(t), nil
}

// Transfer atomically moves ownership of a token between wallets: the owner
// field, the sender's balance, and the receiver's balance change inside one
// critical section so no snapshot can observe a token with no owner or two.
func (l *Ledger) Transfer(ctx context.Context, tokenID, fromID, toID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tokens[tokenID]
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "token %s does not exist", tokenID)
	}
	if t.OwnerWalletID != fromID {
		return dErrors.Newf(dErrors.CodeNotOwner, "wallet %s does not own token %s", fromID, tokenID)
	}
	if !l.wallets.Exists(ctx, fromID) || !l.wallets.Exists(ctx, toID) {
		return dErrors.New(dErrors.CodeNotFound, "one or both wallets do not exist")
	}

	if err := l.wallets.RemoveToken(ctx, fromID, tokenID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeExecutionFailure, "could not debit sender")
	}
	if err := l.wallets.AddToken(ctx, toID, tokenID); err != nil {
		// Restore the sender's balance so the failed transfer leaves no
		// ownerless token behind.
		if restoreErr := l.wallets.AddToken(ctx, fromID, tokenID); restoreErr != nil {
			err = errors.Join(err, restoreErr)
		}
		return dErrors.Wrap(err, dErrors.CodeExecutionFailure, "could not credit receiver")
	}
	t.OwnerWalletID = toID
	return nil
}

// Get returns a copy of the token.
func (l *Ledger) Get(_ context.Context, tokenID string) (*Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[tokenID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "token %s does not exist", tokenID)
	}
	return copyToken(t), nil
}

// Value reports a token's value, or false when the token is unknown.
// This is the lookup capability the audit ledger records settled values with.
func (l *Ledger) Value(_ context.Context, tokenID string) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[tokenID]
	if !ok {
		return 0, false
	}
	return t.Value, true
}

// ByOwner returns all tokens currently owned by a wallet.
func (l *Ledger) ByOwner(_ context.Context, walletID string) []*Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*Token
	for _, t := range l.tokens {
		if t.OwnerWalletID == walletID {
			out = append(out, copyToken(t))
		}
	}
	sortTokens(out)
	return out
}

// TotalValue sums the values of all tokens a wallet owns.
func (l *Ledger) TotalValue(ctx context.Context, walletID string) int64 {
	var total int64
	for _, t := range l.ByOwner(ctx, walletID) {
		total += t.Value
	}
	return total
}

// ListAll returns copies of every token in the system.
func (l *Ledger) ListAll(_ context.Context) []*Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Token, 0, len(l.tokens))
	for _, t := range l.tokens {
		out = append(out, copyToken(t))
	}
	sortTokens(out)
	return out
}

func copyToken(t *Token) *Token {
	c := *t
	return &c
}

func sortTokens(ts []*Token) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
}
