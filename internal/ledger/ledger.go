// Package ledger implements the append-only, privacy-partitioned audit
// ledger. Settled transfers from both pipelines end here; the persisted JSON
// snapshot is loaded at startup and rewritten in full after every append.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"veilpay/internal/platform/canonical"
	"veilpay/internal/platform/logger"
	"veilpay/internal/platform/metrics"
	dErrors "veilpay/pkg/domain-errors"
)

// TokenLookup resolves a token's value at recording time. The token ledger
// satisfies it at assembly; the audit ledger needs nothing else from tokens.
type TokenLookup interface {
	Value(ctx context.Context, tokenID string) (int64, bool)
}

// Ledger is the terminal, append-only sink of the settlement pipeline.
type Ledger struct {
	mu      sync.Mutex
	path    string
	created time.Time
	entries []Entry
	nextID  int64

	tokens  TokenLookup
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// Open loads the ledger snapshot at path, or initializes and writes an empty
// one when the file does not exist.
func Open(path string, tokens TokenLookup, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		created: time.Now().UTC(),
		tokens:  tokens,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := l.persistLocked(); err != nil {
			return nil, fmt.Errorf("initialize ledger %s: %w", path, err)
		}
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", path, err)
	}
	if !snap.LedgerInfo.Created.IsZero() {
		l.created = snap.LedgerInfo.Created
	}
	l.entries = snap.Entries
	sort.Slice(l.entries, func(i, j int) bool { return l.entries[i].ID < l.entries[j].ID })
	for _, e := range l.entries {
		if e.ID >= l.nextID {
			l.nextID = e.ID + 1
		}
	}
	return l, nil
}

// Record classifies and appends a settled transfer, resolving the settled
// value through the token lookup at the moment of recording. The append is
// durable: the snapshot rewrite completes before Record returns, and a failed
// write fails the call without keeping the entry.
func (l *Ledger) Record(ctx context.Context, summary TransferSummary) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	value, ok := l.tokens.Value(ctx, summary.TokenID)
	if !ok {
		value = 0
	}
	ts := summary.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	entry := Entry{
		ID:               l.nextID,
		TransferID:       summary.TransferID,
		SenderWalletID:   summary.SenderID,
		ReceiverWalletID: summary.ReceiverID,
		TokenID:          summary.TokenID,
		Value:            value,
		Anonymous:        summary.Anonymous,
		Classification:   summary.Classify(),
		Timestamp:        ts,
		Metadata: Metadata{
			VoucherID: summary.VoucherID,
			Status:    summary.Status,
			AMLReason: summary.AMLReason,
		},
	}

	l.entries = append(l.entries, entry)
	if err := l.persistLocked(); err != nil {
		l.entries = l.entries[:len(l.entries)-1]
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "durable append failed")
	}
	l.nextID++

	l.metrics.IncLedgerAppends()
	l.log.Debug().Int64("entry_id", entry.ID).Str("transfer_id", entry.TransferID).
		Str("classification", string(entry.Classification)).Msg("ledger entry recorded")
	return entry.ID, nil
}

// Entry returns the entry with the given id.
func (l *Ledger) Entry(_ context.Context, entryID int64) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.ID == entryID {
			return e, nil
		}
	}
	return Entry{}, dErrors.Newf(dErrors.CodeNotFound, "ledger entry %d does not exist", entryID)
}

// ByTransfer returns all entries recorded for a transfer id.
func (l *Ledger) ByTransfer(ctx context.Context, transferID string) []Entry {
	return l.Query(ctx, Filter{TransferID: transferID})
}

// ByWallet returns all entries where the wallet is sender or receiver.
func (l *Ledger) ByWallet(ctx context.Context, walletID string) []Entry {
	return l.Query(ctx, Filter{WalletID: walletID})
}

// ByClassification returns all entries in one privacy partition.
func (l *Ledger) ByClassification(ctx context.Context, c Classification) []Entry {
	return l.Query(ctx, Filter{Classification: &c})
}

// ByValueRange returns entries with min <= value <= max.
func (l *Ledger) ByValueRange(ctx context.Context, min, max int64) []Entry {
	return l.Query(ctx, Filter{MinValue: &min, MaxValue: &max})
}

// ByTimeRange returns entries with from <= timestamp <= to.
func (l *Ledger) ByTimeRange(ctx context.Context, from, to time.Time) []Entry {
	return l.Query(ctx, Filter{From: &from, To: &to})
}

// Query returns entries matching every set predicate, in entry-id order.
func (l *Ledger) Query(_ context.Context, f Filter) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Statistics returns entry counts and value totals per classification.
func (l *Ledger) Statistics(_ context.Context) Statistics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statisticsLocked()
}

func (l *Ledger) statisticsLocked() Statistics {
	var stats Statistics
	stats.TotalEntries = len(l.entries)
	for _, e := range l.entries {
		stats.TotalValue += e.Value
		switch e.Classification {
		case ClassAnonymous:
			stats.AnonymousEntries++
			stats.AnonymousValue += e.Value
		case ClassNonAnonymous:
			stats.NonAnonymousEntries++
			stats.NonAnonymousValue += e.Value
		case ClassAMLFlagged:
			stats.AMLFlaggedEntries++
			stats.AMLFlaggedValue += e.Value
		}
	}
	if stats.TotalEntries > 0 {
		stats.AnonymousPercentage = float64(stats.AnonymousEntries) / float64(stats.TotalEntries) * 100
	}
	if stats.TotalValue > 0 {
		stats.ValueAnonymousPercentage = float64(stats.AnonymousValue) / float64(stats.TotalValue) * 100
	}
	return stats
}

// IntegrityDigest computes a digest over all entries sorted by entry id in
// canonical serialization. Any mutation of any recorded field changes the
// digest; this detects tampering, it does not prevent it.
func (l *Ledger) IntegrityDigest(_ context.Context) (string, error) {
	l.mu.Lock()
	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	l.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	digest, err := canonical.Digest(entries)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not digest ledger")
	}
	return digest, nil
}

// persistLocked rewrites the snapshot file in full. Callers hold l.mu.
func (l *Ledger) persistLocked() error {
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("create ledger %s: %w", l.path, err)
	}
	defer f.Close()

	entries := l.entries
	if entries == nil {
		entries = []Entry{}
	}
	stats := l.statisticsLocked()
	snap := snapshot{
		LedgerInfo: snapshotInfo{
			Created:           l.created,
			TotalEntries:      stats.TotalEntries,
			AnonymousCount:    stats.AnonymousEntries,
			NonAnonymousCount: stats.NonAnonymousEntries,
			AMLFlaggedCount:   stats.AMLFlaggedEntries,
		},
		Entries: entries,
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode ledger %s: %w", l.path, err)
	}
	return f.Sync()
}
