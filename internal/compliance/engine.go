package compliance

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"veilpay/internal/platform/exportfile"
	"veilpay/internal/platform/logger"
	"veilpay/internal/platform/metrics"
	dErrors "veilpay/pkg/domain-errors"
)

// Rule weights accumulate additively; the rules are independent and more than
// one may fire on a single transfer.
const (
	HighValueThreshold = 100

	weightHighValue    = 0.7
	weightNonAnonymous = 0.3
	weightPattern      = 0.5

	// FlagThreshold marks a transfer for monitoring; it never blocks.
	FlagThreshold = 0.5
	// EscalationThreshold additionally notifies the compliance authority.
	EscalationThreshold = 0.8
)

// PatternDetector is the pluggable velocity/behavioral check. The default
// detector never fires; a real deployment would inspect transfer history.
type PatternDetector func(facts TransferFacts) bool

// Engine scores proposed transfers for AML risk and records flagged cases in
// the AML registry.
type Engine struct {
	mu       sync.Mutex
	registry []AMLEntry
	// authorityContacted latches true the first time an escalation happens.
	authorityContacted bool

	detect  PatternDetector
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

func WithPatternDetector(d PatternDetector) Option {
	return func(e *Engine) { e.detect = d }
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		detect: func(TransferFacts) bool { return false },
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score evaluates a proposed transfer against the static rule set. Identical
// facts always produce an identical score and status. A flagged outcome
// appends an AML entry; a score at or above the escalation threshold
// additionally marks that entry escalated and notifies the authority as part
// of the same append. Escalation is a side-channel notification and never
// fails the transfer.
func (e *Engine) Score(_ context.Context, facts TransferFacts) Result {
	score, reasons := e.evaluate(facts)

	status := StatusApproved
	if score >= FlagThreshold {
		status = StatusFlagged
	}
	result := Result{
		Approved:           true, // flag, don't block
		Status:             status,
		Reason:             strings.Join(reasons, "; "),
		RiskScore:          score,
		RequiresEscalation: score >= EscalationThreshold,
	}

	if status == StatusFlagged {
		e.record(facts, result)
	}
	return result
}

// evaluate applies the additive rule chain. Pure domain logic: no I/O, no
// side effects.
func (e *Engine) evaluate(facts TransferFacts) (float64, []string) {
	var score float64
	var reasons []string

	if facts.Value > HighValueThreshold {
		score += weightHighValue
		reasons = append(reasons, "high value transaction")
	}
	if !facts.Anonymous {
		score += weightNonAnonymous
		reasons = append(reasons, "non-anonymous transaction")
	}
	if e.detect(facts) {
		score += weightPattern
		reasons = append(reasons, "suspicious transaction pattern detected")
	}
	return score, reasons
}

func (e *Engine) record(facts TransferFacts, result Result) {
	ts := facts.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	entry := AMLEntry{
		TransferID:       facts.TransferID,
		SenderWalletID:   facts.SenderID,
		ReceiverWalletID: facts.ReceiverID,
		TokenID:          facts.TokenID,
		Amount:           facts.Value,
		Timestamp:        ts,
		Reason:           result.Reason,
		RiskScore:        result.RiskScore,
	}
	if result.RequiresEscalation {
		entry.Escalated = true
		entry.AuthorityNotified = true
	}

	e.mu.Lock()
	e.registry = append(e.registry, entry)
	if entry.Escalated {
		e.authorityContacted = true
	}
	e.mu.Unlock()

	e.metrics.IncAMLFlagged()
	if entry.Escalated {
		e.metrics.IncAMLEscalated()
		e.log.Warn().Str("transfer_id", entry.TransferID).
			Int64("amount", entry.Amount).
			Float64("risk_score", entry.RiskScore).
			Str("reason", entry.Reason).
			Msg("high risk transfer escalated to authority")
	}
}

// Entries returns a copy of the full AML registry.
func (e *Engine) Entries(_ context.Context) []AMLEntry {
	return e.filter(func(AMLEntry) bool { return true })
}

// Flagged returns entries with a risk score strictly above the flag
// threshold.
func (e *Engine) Flagged(_ context.Context) []AMLEntry {
	return e.filter(func(en AMLEntry) bool { return en.RiskScore > FlagThreshold })
}

// HighRisk returns entries at or above the escalation threshold.
func (e *Engine) HighRisk(_ context.Context) []AMLEntry {
	return e.filter(func(en AMLEntry) bool { return en.RiskScore >= EscalationThreshold })
}

// Escalated returns entries that were escalated to the authority.
func (e *Engine) Escalated(_ context.Context) []AMLEntry {
	return e.filter(func(en AMLEntry) bool { return en.Escalated })
}

// Statistics aggregates the registry.
func (e *Engine) Statistics(ctx context.Context) Statistics {
	e.mu.Lock()
	total := len(e.registry)
	var sum float64
	for _, en := range e.registry {
		sum += en.RiskScore
	}
	contacted := e.authorityContacted
	e.mu.Unlock()

	stats := Statistics{
		TotalFlagged:       total,
		HighRisk:           len(e.HighRisk(ctx)),
		Escalated:          len(e.Escalated(ctx)),
		AuthorityContacted: contacted,
	}
	if total > 0 {
		stats.AverageRiskScore = sum / float64(total)
	}
	return stats
}

// BuildReport assembles the full JSON-serializable AML report.
func (e *Engine) BuildReport(ctx context.Context) Report {
	entries := e.Entries(ctx)
	return Report{
		ExportTimestamp: time.Now().UTC(),
		TotalEntries:    len(entries),
		HighRiskCount:   len(e.HighRisk(ctx)),
		EscalatedCount:  len(e.Escalated(ctx)),
		Entries:         entries,
	}
}

// ExportReport writes the AML report to path, or to
// aml_report_<timestamp>.json under dir when path is empty. Returns the
// written filename.
func (e *Engine) ExportReport(ctx context.Context, path, dir string) (string, error) {
	target := exportfile.Resolve(path, dir, "aml_report", time.Now())
	if err := exportfile.WriteJSON(target, e.BuildReport(ctx)); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not export AML report")
	}
	return target, nil
}

func (e *Engine) filter(keep func(AMLEntry) bool) []AMLEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []AMLEntry
	for _, en := range e.registry {
		if keep(en) {
			out = append(out, en)
		}
	}
	return out
}
