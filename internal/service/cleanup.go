package service

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupTemps removes temp files created by the download helpers
// (pdfdl-*.pdf, s3pdf-*.pdf) older than maxAge.
func CleanupTemps(maxAge time.Duration) {
	dir := os.TempDir()
	now := time.Now()
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		name := info.Name()
		if !strings.HasPrefix(name, "pdfdl-") && !strings.HasPrefix(name, "s3pdf-") {
			return nil
		}
		if now.Sub(info.ModTime()) >= maxAge {
			_ = os.Remove(path)
		}
		return nil
	})
}
