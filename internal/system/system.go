// Package system assembles the settlement network: one constructor builds
// every component with its collaborators injected, and a handful of
// operations drive them together for the command surface.
package system

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"veilpay/internal/compliance"
	"veilpay/internal/ledger"
	"veilpay/internal/offline"
	"veilpay/internal/platform/config"
	"veilpay/internal/platform/metrics"
	"veilpay/internal/token"
	"veilpay/internal/transfer"
	"veilpay/internal/voucher"
	"veilpay/internal/wallet"
	dErrors "veilpay/pkg/domain-errors"
)

// System owns every component of a running settlement node.
type System struct {
	Wallets    *wallet.Registry
	Tokens     *token.Ledger
	Vouchers   *voucher.Authority
	Compliance *compliance.Engine
	Ledger     *ledger.Ledger
	Transfers  *transfer.Engine
	Offline    *offline.Manager

	cfg     config.Settings
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a System before its components are built.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer directs metrics registration to reg instead of a private
// registry, typically prometheus.DefaultRegisterer in the launcher.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New wires the full component graph. Construction order follows the
// dependency direction: registries first, then the engines that consume them.
func New(cfg config.Settings, log zerolog.Logger, opts ...Option) (*System, error) {
	o := options{registerer: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(&o)
	}
	mx := metrics.New(o.registerer)

	wallets := wallet.NewRegistry()
	tokens := token.NewLedger(wallets)
	vouchers := voucher.NewAuthority(wallets, cfg.AuthoritySecret,
		voucher.WithLogger(log), voucher.WithMetrics(mx))
	scorer := compliance.NewEngine(
		compliance.WithLogger(log), compliance.WithMetrics(mx))

	auditTrail, err := ledger.Open(cfg.LedgerPath, tokens,
		ledger.WithLogger(log), ledger.WithMetrics(mx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "opening audit ledger")
	}

	transfers := transfer.NewEngine(wallets, tokens, vouchers, scorer, auditTrail,
		transfer.WithLogger(log), transfer.WithMetrics(mx))
	offlineMgr := offline.NewManager(wallets, tokens, vouchers, auditTrail,
		offline.WithLogger(log), offline.WithMetrics(mx))

	return &System{
		Wallets:    wallets,
		Tokens:     tokens,
		Vouchers:   vouchers,
		Compliance: scorer,
		Ledger:     auditTrail,
		Transfers:  transfers,
		Offline:    offlineMgr,
		cfg:        cfg,
		log:        log,
		metrics:    mx,
	}, nil
}

// ExportDir is where reports land when no explicit path is given.
func (s *System) ExportDir() string { return s.cfg.ExportDir }

// Status is a cross-component snapshot for the command surface.
type Status struct {
	Wallets            int   `json:"wallets"`
	Tokens             int   `json:"tokens"`
	TotalTokenValue    int64 `json:"total_token_value"`
	Vouchers           int   `json:"vouchers"`
	AvailableVouchers  int   `json:"available_vouchers"`
	Transfers          int   `json:"transactions"`
	AnonymousTransfers int   `json:"anonymous_transactions"`
	AMLEntries         int   `json:"aml_flagged"`
	OfflineTransfers   int   `json:"offline_transactions"`
	PendingOffline     int   `json:"pending_offline"`
	LedgerEntries      int   `json:"ledger_entries"`
}

// Status gathers counters from every component.
func (s *System) Status(ctx context.Context) Status {
	tokens := s.Tokens.ListAll(ctx)
	var totalValue int64
	for _, t := range tokens {
		totalValue += t.Value
	}
	return Status{
		Wallets:            len(s.Wallets.List(ctx)),
		Tokens:             len(tokens),
		TotalTokenValue:    totalValue,
		Vouchers:           len(s.Vouchers.ListAll(ctx)),
		AvailableVouchers:  len(s.Vouchers.Unused(ctx)),
		Transfers:          len(s.Transfers.ListAll(ctx)),
		AnonymousTransfers: len(s.Transfers.Anonymous(ctx)),
		AMLEntries:         len(s.Compliance.Entries(ctx)),
		OfflineTransfers:   len(s.Offline.ListAll(ctx)),
		PendingOffline:     len(s.Offline.Pending(ctx)),
		LedgerEntries:      s.Ledger.Statistics(ctx).TotalEntries,
	}
}

// ExportAll writes every report the node can produce into the configured
// export directory and returns label to filename. A failing export aborts
// the batch; files already written stay on disk.
func (s *System) ExportAll(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)

	path, err := s.Compliance.ExportReport(ctx, "", s.cfg.ExportDir)
	if err != nil {
		return out, err
	}
	out["aml_report"] = path

	if path, err = s.Ledger.ExportAMLLoggable(ctx, "", s.cfg.ExportDir); err != nil {
		return out, err
	}
	out["aml_loggable"] = path

	if path, err = s.Ledger.ExportVolumeReport(ctx, "", s.cfg.ExportDir); err != nil {
		return out, err
	}
	out["volume_report"] = path

	if path, err = s.Offline.Export(ctx, "", s.cfg.ExportDir); err != nil {
		return out, err
	}
	out["offline_transactions"] = path

	return out, nil
}

// RunDemo exercises a representative slice of the network: plain, anonymous,
// and high-value transfers plus a pending offline agreement. Progress goes
// to the logger.
func (s *System) RunDemo(ctx context.Context) error {
	s.log.Info().Msg("demo: creating wallets")
	w1, err := s.Wallets.Create(ctx)
	if err != nil {
		return err
	}
	w2, err := s.Wallets.Create(ctx)
	if err != nil {
		return err
	}
	w3, err := s.Wallets.Create(ctx)
	if err != nil {
		return err
	}

	s.log.Info().Msg("demo: issuing tokens")
	t1, err := s.Tokens.Issue(ctx, 50, w1.ID)
	if err != nil {
		return err
	}
	t2, err := s.Tokens.Issue(ctx, 100, w2.ID)
	if err != nil {
		return err
	}
	t3, err := s.Tokens.Issue(ctx, 25, w3.ID)
	if err != nil {
		return err
	}

	s.log.Info().Msg("demo: issuing anonymity vouchers")
	if _, err = s.Vouchers.Issue(ctx, w1.ID, 50); err != nil {
		return err
	}
	v2, err := s.Vouchers.Issue(ctx, w2.ID, 100)
	if err != nil {
		return err
	}

	s.log.Info().Msg("demo: plain transfer")
	tx1, err := s.Transfers.Execute(ctx, w1.ID, w2.ID, t1.ID, "")
	if err != nil {
		return err
	}
	s.log.Info().Bool("aml_flagged", tx1.AMLFlagged).Msg("demo: plain transfer settled")

	s.log.Info().Msg("demo: anonymous transfer")
	if _, err = s.Transfers.Execute(ctx, w2.ID, w3.ID, t2.ID, v2.ID); err != nil {
		return err
	}

	s.log.Info().Msg("demo: high-value transfer")
	big, err := s.Tokens.Issue(ctx, 10000, w1.ID)
	if err != nil {
		return err
	}
	tx3, err := s.Transfers.Execute(ctx, w1.ID, w2.ID, big.ID, "")
	if err != nil {
		return err
	}
	s.log.Info().Bool("aml_flagged", tx3.AMLFlagged).Msg("demo: high-value transfer settled")

	s.log.Info().Msg("demo: offline agreement")
	if _, err = s.Offline.Create(ctx, w3.ID, w1.ID, t3.ID, ""); err != nil {
		return err
	}

	status := s.Status(ctx)
	s.log.Info().
		Int("wallets", status.Wallets).
		Int("tokens", status.Tokens).
		Int64("total_token_value", status.TotalTokenValue).
		Int("transactions", status.Transfers).
		Int("aml_entries", status.AMLEntries).
		Int("offline", status.OfflineTransfers).
		Msg("demo: complete")
	return nil
}

// Describe renders the status snapshot the way the command surface prints
// it.
func (st Status) Describe() string {
	return fmt.Sprintf(
		"Wallets: %d\nTokens: %d (value %d)\nVouchers: %d (%d available)\nTransactions: %d (%d anonymous)\nAML entries: %d\nOffline: %d (%d pending)\nLedger entries: %d",
		st.Wallets, st.Tokens, st.TotalTokenValue,
		st.Vouchers, st.AvailableVouchers,
		st.Transfers, st.AnonymousTransfers,
		st.AMLEntries,
		st.OfflineTransfers, st.PendingOffline,
		st.LedgerEntries)
}
