package offline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"veilpay/internal/ledger"
	"veilpay/internal/token"
	"veilpay/internal/voucher"
	"veilpay/internal/wallet"
	dErrors "veilpay/pkg/domain-errors"
)

type ManagerSuite struct {
	suite.Suite
	wallets    *wallet.Registry
	tokens     *token.Ledger
	vouchers   *voucher.Authority
	auditTrail *ledger.Ledger
	manager    *Manager
	ctx        context.Context
}

func (s *ManagerSuite) SetupTest() {
	s.wallets = wallet.NewRegistry()
	s.tokens = token.NewLedger(s.wallets)
	s.vouchers = voucher.NewAuthority(s.wallets, "test-secret")

	var err error
	s.auditTrail, err = ledger.Open(filepath.Join(s.T().TempDir(), "ledger.json"), s.tokens)
	s.Require().NoError(err)

	s.manager = NewManager(s.wallets, s.tokens, s.vouchers, s.auditTrail)
	s.ctx = context.Background()
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) newWallet() *wallet.Wallet {
	w, err := s.wallets.Create(s.ctx)
	s.Require().NoError(err)
	return w
}

// signAs produces the wallet's deterministic signature over the offline
// payload, the same computation a real device would perform.
func (s *ManagerSuite) signAs(t *Transfer, walletID string) string {
	sig, err := s.wallets.Sign(s.ctx, walletID, payloadOf(t))
	s.Require().NoError(err)
	return sig
}

func (s *ManagerSuite) TestCreateSnapshotsTerms() {
	w1, w2 := s.newWallet(), s.newWallet()
	tok, err := s.tokens.Issue(s.ctx, 20, w1.ID)
	s.Require().NoError(err)

	t, err := s.manager.Create(s.ctx, w1.ID, w2.ID, tok.ID, "")
	s.Require().NoError(err)

	s.Equal(StatusPending, t.Status)
	s.Equal(int64(20), t.Value)
	s.False(t.Anonymous)
	s.False(t.CreatedAt.IsZero())

	unmoved, err := s.tokens.Get(s.ctx, tok.ID)
	s.Require().NoError(err)
	s.Equal(w1.ID, unmoved.OwnerWalletID, "creation must not move ownership")
}

func (s *ManagerSuite) TestCreateValidation() {
	w1, w2 := s.newWallet(), s.newWallet()
	tok, err := s.tokens.Issue(s.ctx, 20, w1.ID)
	s.Require().NoError(err)

	s.Run("missing ids", func() {
		_, err := s.manager.Create(s.ctx, "", w2.ID, tok.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("token not owned by sender", func() {
		_, err := s.manager.Create(s.ctx, w2.ID, w1.ID, tok.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotOwner))
	})

	s.Run("voucher over limit", func() {
		big, err := s.tokens.Issue(s.ctx, 100, w1.ID)
		s.Require().NoError(err)
		small, err := s.vouchers.Issue(s.ctx, w1.ID, 10)
		s.Require().NoError(err)
		_, err = s.manager.Create(s.ctx, w1.ID, w2.ID, big.ID, small.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeVoucherRejected))
	})
}

func (s *ManagerSuite) TestDualSignature() {
	w1, w2 := s.newWallet(), s.newWallet()
	tok, err := s.tokens.Issue(s.ctx, 20, w1.ID)
	s.Require().NoError(err)
	t, err := s.manager.Create(s.ctx, w1.ID, w2.ID, tok.ID, "")
	s.Require().NoError(err)

	s.Require().NoError(s.manager.Sign(s.ctx, t.ID, w1.ID, s.signAs(t, w1.ID)))

	half, err := s.manager.Get(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(StatusPending, half.Status, "one signature is not enough")
	s.NotEmpty(half.SenderSignature)
	s.Empty(half.ReceiverSignature)

	s.Require().NoError(s.manager.Sign(s.ctx, t.ID, w2.ID, s.signAs(t, w2.ID)))

	full, err := s.manager.Get(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(StatusSigned, full.Status)
}

func (s *ManagerSuite) TestSignRejections() {
	w1, w2, w3 := s.newWallet(), s.newWallet(), s.newWallet()
	tok, err := s.tokens.Issue(s.ctx, 20, w1.ID)
	s.Require().NoError(err)
	t, err := s.manager.Create(s.ctx, w1.ID, w2.ID, tok.ID, "")
	s.Require().NoError(err)

	s.Run("unknown offline id", func() {
		err := s.manager.Sign(s.ctx, "missing", w1.ID, s.signAs(t, w1.ID))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("non-participant wallet", func() {
		err := s.manager.Sign(s.ctx, t.ID, w3.ID, s.signAs(t, w3.ID))
		s.True(dErrors.HasCode(err, dErrors.CodeSignatureMismatch))
	})

	s.Run("wrong signature", func() {
		err := s.manager.Sign(s.ctx, t.ID, w1.ID, "not-a-signature")
		s.True(dErrors.HasCode(err, dErrors.CodeSignatureMismatch))
	})

	s.Run("rejections leave the record pending", func() {
		got, err := s.manager.Get(s.ctx, t.ID)
		s.Require().NoError(err)
		s.Equal(StatusPending, got.Status)
		s.Empty(got.SenderSignature)
	})
}

// TestSyncLifecycle walks the full path: create, countersign, sync, and
// checks ownership, voucher state, and the audit entry afterwards.
func (s *ManagerSuite) TestSyncLifecycle() {
	w1, w2 := s.newWallet(), s.newWallet()
	v, err := s.vouchers.Issue(s.ctx, w1.ID, 100)
	s.Require().NoError(err)
	tok, err := s.tokens.Issue(s.ctx, 20, w1.ID)
	s.Require().NoError(err)

	t, err := s.manager.Create(s.ctx, w1.ID, w2.ID, tok.ID, v.ID)
	s.Require().NoError(err)
	s.True(t.Anonymous)

	s.Require().NoError(s.manager.Sign(s.ctx, t.ID, w1.ID, s.signAs(t, w1.ID)))
	s.Require().NoError(s.manager.Sign(s.ctx, t.ID, w2.ID, s.signAs(t, w2.ID)))

	ok, err := s.manager.Sync(s.ctx, t.ID)
	s.Require().NoError(err)
	s.True(ok)

	synced, err := s.manager.Get(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(StatusSynced, synced.Status)
	s.False(synced.SyncedAt.IsZero())

	moved, err := s.tokens.Get(s.ctx, tok.ID)
	s.Require().NoError(err)
	s.Equal(w2.ID, moved.OwnerWalletID)

	spent, err := s.vouchers.Get(s.ctx, v.ID)
	s.Require().NoError(err)
	s.True(spent.Used)
	s.Equal(t.ID, spent.UsedInTransfer)

	entries := s.auditTrail.ByTransfer(s.ctx, t.ID)
	s.Require().Len(entries, 1)
	s.Equal(ledger.ClassAnonymous, entries[0].Classification)
	s.True(entries[0].Timestamp.Equal(t.CreatedAt), "audit entry keeps the agreement time")
}

// TestSyncRequiresSignatures checks the two-phase gate: an unsigned transfer
// cannot reach the ledger and nothing mutates.
func (s *ManagerSuite) TestSyncRequiresSignatures() {
	w1, w2 := s.newWallet(), s.newWallet()
	tok, err := s.tokens.Issue(s.ctx, 20, w1.ID)
	s.Require().NoError(err)
	t, err := s.manager.Create(s.ctx, w1.ID, w2.ID, tok.ID, "")
	s.Require().NoError(err)

	ok, err := s.manager.Sync(s.ctx, t.ID)
	s.False(ok)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	unmoved, err := s.tokens.Get(s.ctx, tok.ID)
	s.Require().NoError(err)
	s.Equal(w1.ID, unmoved.OwnerWalletID)
	s.Empty(s.auditTrail.ByTransfer(s.ctx, t.ID))

	got, err := s.manager.Get(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(StatusPending, got.Status, "a gate rejection is not a sync failure")
}

// TestSyncExecutionFailure spends the token elsewhere between agreement and
// sync; the sync must fail softly and mark the record failed.
func (s *ManagerSuite) TestSyncExecutionFailure() {
	w1, w2, w3 := s.newWallet(), s.newWallet(), s.newWallet()
	tok, err := s.tokens.Issue(s.ctx, 20, w1.ID)
	s.Require().NoError(err)

	t, err := s.manager.Create(s.ctx, w1.ID, w2.ID, tok.ID, "")
	s.Require().NoError(err)
	s.Require().NoError(s.manager.Sign(s.ctx, t.ID, w1.ID, s.signAs(t, w1.ID)))
	s.Require().NoError(s.manager.Sign(s.ctx, t.ID, w2.ID, s.signAs(t, w2.ID)))

	// Conflicting online spend wins the race.
	s.Require().NoError(s.tokens.Transfer(s.ctx, tok.ID, w1.ID, w3.ID))

	ok, err := s.manager.Sync(s.ctx, t.ID)
	s.Require().NoError(err, "execution failures are reported, not raised")
	s.False(ok)

	failed, err := s.manager.Get(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(StatusFailed, failed.Status)
	s.Empty(s.auditTrail.ByTransfer(s.ctx, t.ID))
}

// TestSettledRecordsAreImmutable re-submits valid signatures against signed,
// synced, and failed records; every attempt must be rejected and the status
// must not move.
func (s *ManagerSuite) TestSettledRecordsAreImmutable() {
	w1, w2, w3 := s.newWallet(), s.newWallet(), s.newWallet()
	tok, err := s.tokens.Issue(s.ctx, 20, w1.ID)
	s.Require().NoError(err)

	t, err := s.manager.Create(s.ctx, w1.ID, w2.ID, tok.ID, "")
	s.Require().NoError(err)
	sig1, sig2 := s.signAs(t, w1.ID), s.signAs(t, w2.ID)
	s.Require().NoError(s.manager.Sign(s.ctx, t.ID, w1.ID, sig1))
	s.Require().NoError(s.manager.Sign(s.ctx, t.ID, w2.ID, sig2))

	s.Run("signed record rejects a third signature", func() {
		err := s.manager.Sign(s.ctx, t.ID, w1.ID, sig1)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		got, err := s.manager.Get(s.ctx, t.ID)
		s.Require().NoError(err)
		s.Equal(StatusSigned, got.Status)
	})

	ok, err := s.manager.Sync(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Run("synced record rejects re-signing", func() {
		err := s.manager.Sign(s.ctx, t.ID, w1.ID, sig1)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		got, err := s.manager.Get(s.ctx, t.ID)
		s.Require().NoError(err)
		s.Equal(StatusSynced, got.Status, "a settled record must never leave synced")
	})

	s.Run("failed record rejects re-signing", func() {
		tok2, err := s.tokens.Issue(s.ctx, 20, w1.ID)
		s.Require().NoError(err)
		f, err := s.manager.Create(s.ctx, w1.ID, w2.ID, tok2.ID, "")
		s.Require().NoError(err)
		fsig1, fsig2 := s.signAs(f, w1.ID), s.signAs(f, w2.ID)
		s.Require().NoError(s.manager.Sign(s.ctx, f.ID, w1.ID, fsig1))
		s.Require().NoError(s.manager.Sign(s.ctx, f.ID, w2.ID, fsig2))

		s.Require().NoError(s.tokens.Transfer(s.ctx, tok2.ID, w1.ID, w3.ID))
		ok, err := s.manager.Sync(s.ctx, f.ID)
		s.Require().NoError(err)
		s.Require().False(ok)

		err = s.manager.Sign(s.ctx, f.ID, w1.ID, fsig1)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		got, err := s.manager.Get(s.ctx, f.ID)
		s.Require().NoError(err)
		s.Equal(StatusFailed, got.Status)
	})
}

func (s *ManagerSuite) TestQueriesAndStatistics() {
	w1, w2 := s.newWallet(), s.newWallet()
	tok1, err := s.tokens.Issue(s.ctx, 10, w1.ID)
	s.Require().NoError(err)
	tok2, err := s.tokens.Issue(s.ctx, 20, w1.ID)
	s.Require().NoError(err)

	t1, err := s.manager.Create(s.ctx, w1.ID, w2.ID, tok1.ID, "")
	s.Require().NoError(err)
	_, err = s.manager.Create(s.ctx, w1.ID, w2.ID, tok2.ID, "")
	s.Require().NoError(err)

	s.Require().NoError(s.manager.Sign(s.ctx, t1.ID, w1.ID, s.signAs(t1, w1.ID)))
	s.Require().NoError(s.manager.Sign(s.ctx, t1.ID, w2.ID, s.signAs(t1, w2.ID)))
	ok, err := s.manager.Sync(s.ctx, t1.ID)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Len(s.manager.Pending(s.ctx), 1)
	s.Empty(s.manager.Signed(s.ctx))
	s.Len(s.manager.Synced(s.ctx), 1)
	s.Empty(s.manager.Failed(s.ctx))
	s.Len(s.manager.ByWallet(s.ctx, w2.ID), 2)
	s.Len(s.manager.ListAll(s.ctx), 2)

	stats := s.manager.Statistics(s.ctx)
	s.Equal(2, stats.Total)
	s.Equal(1, stats.Pending)
	s.Equal(1, stats.Synced)
	s.InDelta(50.0, stats.SyncRate, 1e-9)
	s.InDelta(0.0, stats.FailureRate, 1e-9)
}

func (s *ManagerSuite) TestExport() {
	w1, w2 := s.newWallet(), s.newWallet()
	tok, err := s.tokens.Issue(s.ctx, 10, w1.ID)
	s.Require().NoError(err)
	_, err = s.manager.Create(s.ctx, w1.ID, w2.ID, tok.ID, "")
	s.Require().NoError(err)

	dir := s.T().TempDir()
	path, err := s.manager.Export(s.ctx, "", dir)
	s.Require().NoError(err)
	s.FileExists(path)
	s.Contains(filepath.Base(path), "offline_transactions_")
}
