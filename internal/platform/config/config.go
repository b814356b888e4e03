package config

import "os"

// Settings captures process-level configuration for the settlement network.
type Settings struct {
	// LedgerPath is where the audit ledger snapshot lives.
	LedgerPath string
	// AuthoritySecret signs anonymity vouchers on behalf of the
	// compliance authority.
	AuthoritySecret string
	// ExportDir receives report exports when no explicit path is given.
	ExportDir string
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string
}

// FromEnv builds Settings from environment variables so main stays lean.
func FromEnv() Settings {
	return Settings{
		LedgerPath:      envOr("VEILPAY_LEDGER_PATH", "privacy_ledger.json"),
		AuthoritySecret: envOr("VEILPAY_AUTHORITY_SECRET", "dev-authority-secret-change-in-production"),
		ExportDir:       envOr("VEILPAY_EXPORT_DIR", "."),
		LogLevel:        envOr("VEILPAY_LOG_LEVEL", "info"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
