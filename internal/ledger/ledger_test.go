package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "veilpay/pkg/domain-errors"
)

// stubTokens is a fixed-value token lookup for ledger tests.
type stubTokens map[string]int64

func (s stubTokens) Value(_ context.Context, tokenID string) (int64, bool) {
	v, ok := s[tokenID]
	return v, ok
}

type LedgerSuite struct {
	suite.Suite
	dir    string
	path   string
	tokens stubTokens
	ledger *Ledger
	ctx    context.Context
}

func (s *LedgerSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.path = filepath.Join(s.dir, "privacy_ledger.json")
	s.tokens = stubTokens{"tok-1": 50, "tok-2": 150, "tok-3": 25}
	var err error
	s.ledger, err = Open(s.path, s.tokens)
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func summary(transferID, tokenID string, anonymous, flagged bool) TransferSummary {
	return TransferSummary{
		TransferID: transferID,
		SenderID:   "w-1",
		ReceiverID: "w-2",
		TokenID:    tokenID,
		Anonymous:  anonymous,
		AMLFlagged: flagged,
		Status:     "completed",
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *LedgerSuite) TestRecord() {
	s.Run("assigns sequential ids and resolves value", func() {
		id1, err := s.ledger.Record(s.ctx, summary("tx-1", "tok-1", false, false))
		s.Require().NoError(err)
		id2, err := s.ledger.Record(s.ctx, summary("tx-2", "tok-2", false, false))
		s.Require().NoError(err)
		s.Equal(id1+1, id2)

		e, err := s.ledger.Entry(s.ctx, id1)
		s.Require().NoError(err)
		s.Equal(int64(50), e.Value)
		s.Equal(ClassNonAnonymous, e.Classification)
	})

	s.Run("classification precedence: flagged over anonymous", func() {
		id, err := s.ledger.Record(s.ctx, summary("tx-3", "tok-1", true, true))
		s.Require().NoError(err)
		e, err := s.ledger.Entry(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(ClassAMLFlagged, e.Classification)

		id, err = s.ledger.Record(s.ctx, summary("tx-4", "tok-1", true, false))
		s.Require().NoError(err)
		e, err = s.ledger.Entry(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(ClassAnonymous, e.Classification)
	})

	s.Run("append is persisted before returning", func() {
		raw, err := os.ReadFile(s.path)
		s.Require().NoError(err)
		var snap snapshot
		s.Require().NoError(json.Unmarshal(raw, &snap))
		s.Len(snap.Entries, 4)
		s.Equal(4, snap.LedgerInfo.TotalEntries)
		s.Equal(1, snap.LedgerInfo.AnonymousCount)
		s.Equal(1, snap.LedgerInfo.AMLFlaggedCount)
	})

	s.Run("unknown entry id", func() {
		_, err := s.ledger.Entry(s.ctx, 999)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *LedgerSuite) TestLoadFromSnapshot() {
	_, err := s.ledger.Record(s.ctx, summary("tx-1", "tok-1", false, false))
	s.Require().NoError(err)
	_, err = s.ledger.Record(s.ctx, summary("tx-2", "tok-2", true, false))
	s.Require().NoError(err)

	reopened, err := Open(s.path, s.tokens)
	s.Require().NoError(err)
	s.Len(reopened.Query(s.ctx, Filter{}), 2)

	// Ids keep increasing past the loaded entries.
	id, err := reopened.Record(s.ctx, summary("tx-3", "tok-3", false, false))
	s.Require().NoError(err)
	s.Equal(int64(2), id)
}

func (s *LedgerSuite) TestQueries() {
	_, err := s.ledger.Record(s.ctx, summary("tx-1", "tok-1", false, false)) // 50
	s.Require().NoError(err)
	_, err = s.ledger.Record(s.ctx, summary("tx-2", "tok-2", false, true)) // 150
	s.Require().NoError(err)
	_, err = s.ledger.Record(s.ctx, summary("tx-3", "tok-3", true, false)) // 25
	s.Require().NoError(err)

	s.Run("by transfer and wallet", func() {
		s.Len(s.ledger.ByTransfer(s.ctx, "tx-2"), 1)
		s.Len(s.ledger.ByWallet(s.ctx, "w-1"), 3)
		s.Empty(s.ledger.ByWallet(s.ctx, "w-9"))
	})

	s.Run("by classification", func() {
		s.Len(s.ledger.ByClassification(s.ctx, ClassNonAnonymous), 1)
		s.Len(s.ledger.ByClassification(s.ctx, ClassAMLFlagged), 1)
		s.Len(s.ledger.ByClassification(s.ctx, ClassAnonymous), 1)
	})

	s.Run("by value range", func() {
		s.Len(s.ledger.ByValueRange(s.ctx, 30, 200), 2)
		s.Len(s.ledger.ByValueRange(s.ctx, 0, 10), 0)
	})

	s.Run("by time range", func() {
		from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		s.Len(s.ledger.ByTimeRange(s.ctx, from, to), 3)
		s.Empty(s.ledger.ByTimeRange(s.ctx, to, to.Add(time.Hour)))
	})

	s.Run("combined filter uses AND semantics", func() {
		flagged := ClassAMLFlagged
		min := int64(100)
		s.Len(s.ledger.Query(s.ctx, Filter{
			Classification: &flagged,
			WalletID:       "w-2",
			MinValue:       &min,
		}), 1)

		anon := ClassAnonymous
		s.Empty(s.ledger.Query(s.ctx, Filter{
			Classification: &anon,
			MinValue:       &min,
		}))
	})

	s.Run("repeated query without writes is stable", func() {
		first := s.ledger.Query(s.ctx, Filter{})
		second := s.ledger.Query(s.ctx, Filter{})
		s.Equal(first, second)
	})
}

func (s *LedgerSuite) TestStatistics() {
	_, err := s.ledger.Record(s.ctx, summary("tx-1", "tok-1", false, false)) // 50
	s.Require().NoError(err)
	_, err = s.ledger.Record(s.ctx, summary("tx-2", "tok-3", true, false)) // 25
	s.Require().NoError(err)

	stats := s.ledger.Statistics(s.ctx)
	s.Equal(2, stats.TotalEntries)
	s.Equal(1, stats.AnonymousEntries)
	s.Equal(1, stats.NonAnonymousEntries)
	s.Equal(int64(75), stats.TotalValue)
	s.Equal(int64(25), stats.AnonymousValue)
	s.InDelta(50.0, stats.AnonymousPercentage, 1e-9)
	s.InDelta(100.0*25.0/75.0, stats.ValueAnonymousPercentage, 1e-9)
}

func (s *LedgerSuite) TestIntegrityDigest() {
	d0, err := s.ledger.IntegrityDigest(s.ctx)
	s.Require().NoError(err)

	s.Run("unchanged without writes", func() {
		again, err := s.ledger.IntegrityDigest(s.ctx)
		s.Require().NoError(err)
		s.Equal(d0, again)
	})

	s.Run("changes on append", func() {
		_, err := s.ledger.Record(s.ctx, summary("tx-1", "tok-1", false, false))
		s.Require().NoError(err)
		d1, err := s.ledger.IntegrityDigest(s.ctx)
		s.Require().NoError(err)
		s.NotEqual(d0, d1)
	})

	s.Run("changes on entry mutation", func() {
		before, err := s.ledger.IntegrityDigest(s.ctx)
		s.Require().NoError(err)

		// Simulated tampering: the digest is for detection, not prevention.
		s.ledger.entries[0].Value++
		after, err := s.ledger.IntegrityDigest(s.ctx)
		s.Require().NoError(err)
		s.NotEqual(before, after)
		s.ledger.entries[0].Value--
	})
}

func (s *LedgerSuite) TestExports() {
	_, err := s.ledger.Record(s.ctx, summary("tx-1", "tok-1", false, false))
	s.Require().NoError(err)
	_, err = s.ledger.Record(s.ctx, summary("tx-2", "tok-2", false, true))
	s.Require().NoError(err)
	_, err = s.ledger.Record(s.ctx, summary("tx-3", "tok-3", true, false))
	s.Require().NoError(err)

	s.Run("AML loggable export holds non-anonymous union flagged", func() {
		path, err := s.ledger.ExportAMLLoggable(s.ctx, "", s.dir)
		s.Require().NoError(err)
		s.Contains(path, "aml_loggable_transactions_")

		raw, err := os.ReadFile(path)
		s.Require().NoError(err)
		var doc amlLoggableExport
		s.Require().NoError(json.Unmarshal(raw, &doc))
		s.Equal(2, doc.TotalAMLEntries)
	})

	s.Run("volume report", func() {
		path, err := s.ledger.ExportVolumeReport(s.ctx, "", s.dir)
		s.Require().NoError(err)
		s.Contains(path, "volume_report_")

		raw, err := os.ReadFile(path)
		s.Require().NoError(err)
		var doc volumeReport
		s.Require().NoError(json.Unmarshal(raw, &doc))
		s.Equal(3, doc.Statistics.TotalEntries)
		s.Len(doc.AnonymousEntries, 1)
		s.Len(doc.NonAnonymousEntries, 1)
	})

	s.Run("explicit path wins over default name", func() {
		target := filepath.Join(s.dir, "custom.json")
		path, err := s.ledger.ExportVolumeReport(s.ctx, target, s.dir)
		s.Require().NoError(err)
		s.Equal(target, path)
		s.FileExists(target)
	})
}
