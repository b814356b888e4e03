package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters for the settlement pipeline.
// A nil *Metrics is valid and counts nothing, so components can be built
// without observability in tests.
type Metrics struct {
	TransfersCompleted prometheus.Counter
	TransfersFailed    prometheus.Counter
	AMLFlagged         prometheus.Counter
	AMLEscalated       prometheus.Counter
	VouchersIssued     prometheus.Counter
	VouchersRedeemed   prometheus.Counter
	OfflineSynced      prometheus.Counter
	LedgerAppends      prometheus.Counter
}

// New creates all counters and registers them on reg. Callers own the
// registry lifecycle; passing a fresh registry keeps parallel instances
// from colliding.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransfersCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "veilpay_transfers_completed_total",
			Help: "Total number of settled online transfers",
		}),
		TransfersFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "veilpay_transfers_failed_total",
			Help: "Total number of transfers that failed validation or execution",
		}),
		AMLFlagged: factory.NewCounter(prometheus.CounterOpts{
			Name: "veilpay_aml_flagged_total",
			Help: "Total number of transfers flagged for AML monitoring",
		}),
		AMLEscalated: factory.NewCounter(prometheus.CounterOpts{
			Name: "veilpay_aml_escalated_total",
			Help: "Total number of transfers escalated to the compliance authority",
		}),
		VouchersIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "veilpay_vouchers_issued_total",
			Help: "Total number of anonymity vouchers issued",
		}),
		VouchersRedeemed: factory.NewCounter(prometheus.CounterOpts{
			Name: "veilpay_vouchers_redeemed_total",
			Help: "Total number of anonymity vouchers redeemed",
		}),
		OfflineSynced: factory.NewCounter(prometheus.CounterOpts{
			Name: "veilpay_offline_synced_total",
			Help: "Total number of offline transfers reconciled with the ledger",
		}),
		LedgerAppends: factory.NewCounter(prometheus.CounterOpts{
			Name: "veilpay_ledger_appends_total",
			Help: "Total number of audit ledger entries recorded",
		}),
	}
}

func (m *Metrics) IncTransfersCompleted() { m.inc(func() { m.TransfersCompleted.Inc() }) }
func (m *Metrics) IncTransfersFailed()    { m.inc(func() { m.TransfersFailed.Inc() }) }
func (m *Metrics) IncAMLFlagged()         { m.inc(func() { m.AMLFlagged.Inc() }) }
func (m *Metrics) IncAMLEscalated()       { m.inc(func() { m.AMLEscalated.Inc() }) }
func (m *Metrics) IncVouchersIssued()     { m.inc(func() { m.VouchersIssued.Inc() }) }
func (m *Metrics) IncVouchersRedeemed()   { m.inc(func() { m.VouchersRedeemed.Inc() }) }
func (m *Metrics) IncOfflineSynced()      { m.inc(func() { m.OfflineSynced.Inc() }) }
func (m *Metrics) IncLedgerAppends()      { m.inc(func() { m.LedgerAppends.Inc() }) }

func (m *Metrics) inc(f func()) {
	if m == nil {
		return
	}
	f()
}
