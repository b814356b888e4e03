package system

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"veilpay/internal/platform/config"
	"veilpay/internal/platform/logger"
)

type SystemSuite struct {
	suite.Suite
	sys *System
	dir string
	ctx context.Context
}

func (s *SystemSuite) SetupTest() {
	dir := s.T().TempDir()
	s.dir = dir
	cfg := config.Settings{
		LedgerPath:      filepath.Join(dir, "ledger.json"),
		AuthoritySecret: "test-secret",
		ExportDir:       dir,
		LogLevel:        "info",
	}
	var err error
	s.sys, err = New(cfg, logger.Nop())
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func TestSystemSuite(t *testing.T) {
	suite.Run(t, new(SystemSuite))
}

func (s *SystemSuite) TestDemoPopulatesEveryComponent() {
	s.Require().NoError(s.sys.RunDemo(s.ctx))

	status := s.sys.Status(s.ctx)
	s.Equal(3, status.Wallets)
	s.Equal(4, status.Tokens)
	s.Equal(int64(10175), status.TotalTokenValue)
	s.Equal(2, status.Vouchers)
	s.Equal(1, status.AvailableVouchers)
	s.Equal(3, status.Transfers)
	s.Equal(1, status.AnonymousTransfers)
	s.Equal(1, status.AMLEntries, "only the 10000 value transfer flags")
	s.Equal(1, status.OfflineTransfers)
	s.Equal(1, status.PendingOffline)
	s.Equal(3, status.LedgerEntries)
}

func (s *SystemSuite) TestExportAll() {
	s.Require().NoError(s.sys.RunDemo(s.ctx))

	files, err := s.sys.ExportAll(s.ctx)
	s.Require().NoError(err)
	s.Len(files, 4)
	for label, path := range files {
		s.FileExistsf(path, "export %s", label)
		s.Equalf(s.dir, filepath.Dir(path), "export %s must land in the configured dir", label)
	}
	s.Equal(s.dir, s.sys.ExportDir())
}

func (s *SystemSuite) TestStatusOnEmptySystem() {
	status := s.sys.Status(s.ctx)
	s.Zero(status.Wallets)
	s.Zero(status.Transfers)
	s.NotEmpty(status.Describe())
}
