//go:build !windows

package state

import (
	"os"

	"github.com/google/renameio/v2"
)

// atomicWriteFile replaces path with data in one step, so a crash
// mid-write leaves the previous tree or error-log document intact.
// renameio stages the data in a temp file and renames it into place.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}
