// Package storage defines the two operations a session needs to fetch and
// persist transfer payloads, and provides a filesystem-backed and an
// in-memory implementation. Storage is never called with a user-controlled
// path directly; callers must pass the canonical path produced by
// internal/pathsafety.
package storage

import "errors"

// Sentinel errors surfaced to the session engine, which maps them onto the
// corresponding TFTP error codes.
var (
	ErrNotFound = errors.New("tftp: storage: file not found")
	ErrDenied   = errors.New("tftp: storage: access denied")
)

// Storage is the injected read/write backend for transfer payloads.
type Storage interface {
	// Read returns the full contents of logicalPath, or ErrNotFound if it
	// does not exist, or ErrDenied if it cannot be read.
	Read(logicalPath string) ([]byte, error)

	// Write persists data at logicalPath. After a nil error the path
	// exists with exactly the given bytes. Returns ErrDenied on failure.
	Write(logicalPath string, data []byte) error
}
