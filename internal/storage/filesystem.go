package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Filesystem is the default Storage backend: reads a whole file into memory,
// writes via a temp-file-then-rename so that after a successful Write the
// target path exists with exactly the given bytes, rather than an
// incremental append that only approximates that guarantee.
type Filesystem struct{}

// NewFilesystem returns the default filesystem-backed Storage.
func NewFilesystem() *Filesystem {
	return &Filesystem{}
}

func (f *Filesystem) Read(logicalPath string) ([]byte, error) {
	data, err := os.ReadFile(logicalPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("%w: %v", ErrDenied, err)
	}

	return data, nil
}

func (f *Filesystem) Write(logicalPath string, data []byte) error {
	dir := filepath.Dir(logicalPath)

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: creating directory %s: %v", ErrDenied, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tftp-upload-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDenied, err)
	}

	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()

		return fmt.Errorf("%w: %v", ErrDenied, err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()

		return fmt.Errorf("%w: %v", ErrDenied, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("%w: %v", ErrDenied, err)
	}

	if err := os.Rename(tmpName, logicalPath); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("%w: %v", ErrDenied, err)
	}

	return nil
}
