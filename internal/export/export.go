// Package export writes filtered record sets to disk: CSV for
// spreadsheets, JSON for tooling, and compressed archives that the
// archive source can re-open.
package export

import (
	"fmt"
	"os"
)

// toFile runs write against a freshly created file, removing the partial
// output on failure.
func toFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
