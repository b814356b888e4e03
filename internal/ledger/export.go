package ledger

import (
	"context"
	"time"

	"veilpay/internal/platform/exportfile"
	dErrors "veilpay/pkg/domain-errors"
)

// amlLoggableExport is the AML-relevant subset document: entries auditors may
// see in full, i.e. everything that is not purely anonymous.
type amlLoggableExport struct {
	ExportTimestamp time.Time `json:"export_timestamp"`
	TotalAMLEntries int       `json:"total_aml_entries"`
	Entries         []Entry   `json:"entries"`
}

// volumeReport contrasts anonymous and non-anonymous settlement volume.
type volumeReport struct {
	ReportTimestamp     time.Time  `json:"report_timestamp"`
	Statistics          Statistics `json:"statistics"`
	AnonymousEntries    []Entry    `json:"anonymous_entries"`
	NonAnonymousEntries []Entry    `json:"non_anonymous_entries"`
}

// ExportAMLLoggable writes the union of non-anonymous and AML-flagged entries
// to path, or to aml_loggable_transactions_<timestamp>.json under dir when
// path is empty. Returns the written filename.
func (l *Ledger) ExportAMLLoggable(ctx context.Context, path, dir string) (string, error) {
	entries := append(
		l.ByClassification(ctx, ClassNonAnonymous),
		l.ByClassification(ctx, ClassAMLFlagged)...,
	)
	doc := amlLoggableExport{
		ExportTimestamp: time.Now().UTC(),
		TotalAMLEntries: len(entries),
		Entries:         entries,
	}

	target := exportfile.Resolve(path, dir, "aml_loggable_transactions", time.Now())
	if err := exportfile.WriteJSON(target, doc); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not export AML-loggable entries")
	}
	return target, nil
}

// ExportVolumeReport writes the anonymous-vs-non-anonymous volume report to
// path, or to volume_report_<timestamp>.json under dir when path is empty.
func (l *Ledger) ExportVolumeReport(ctx context.Context, path, dir string) (string, error) {
	doc := volumeReport{
		ReportTimestamp:     time.Now().UTC(),
		Statistics:          l.Statistics(ctx),
		AnonymousEntries:    l.ByClassification(ctx, ClassAnonymous),
		NonAnonymousEntries: l.ByClassification(ctx, ClassNonAnonymous),
	}

	target := exportfile.Resolve(path, dir, "volume_report", time.Now())
	if err := exportfile.WriteJSON(target, doc); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not export volume report")
	}
	return target, nil
}
