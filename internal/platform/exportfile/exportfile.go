// Package exportfile writes report documents as indented JSON files.
package exportfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultName returns "<kind>_<YYYYMMDD_HHMMSS>.json", the filename used when
// an export is requested without an explicit path.
func DefaultName(kind string, now time.Time) string {
	return fmt.Sprintf("%s_%s.json", kind, now.Format("20060102_150405"))
}

// Resolve returns path unchanged when given, otherwise the default name for
// kind inside dir.
func Resolve(path, dir, kind string, now time.Time) string {
	if path != "" {
		return path
	}
	return filepath.Join(dir, DefaultName(kind, now))
}

// WriteJSON writes v to path as indented JSON, creating or truncating the
// file. The write is synchronous; it either completes or returns the error.
func WriteJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode export %s: %w", path, err)
	}
	return f.Sync()
}
