package pdf

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to dest all-or-nothing: the content goes to a
// temp file in the destination directory first and is renamed into place on
// success, so a failed write never leaves a partial file behind.
func WriteFileAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pdfmend-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// RenameAtomic moves src into dest. Both paths live on the same filesystem
// during a run, so a plain rename is sufficient.
func RenameAtomic(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
