//go:build windows

package state

import (
	"os"
	"path/filepath"
)

// atomicWriteFile replaces path with data in one step. renameio does not
// support Windows, so the data is staged in a sibling temp file and
// renamed into place (atomic on the same volume).
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return err
	}
	return nil
}
