package core

import "io"

// ContentStore provides an interface for opaque content storage backends.
// Content is addressed by its SHA-256 checksum; the core stores and
// returns references, never interprets payloads. All operations stream
// through io.Reader/io.Writer to support large payloads.
type ContentStore interface {
	// Put stores content under its checksum. Idempotent: storing the same
	// checksum multiple times is safe. size is the number of bytes that
	// will be read from r.
	Put(checksum string, r io.Reader, size int64) error

	// Get retrieves content by checksum and writes it to w.
	Get(checksum string, w io.Writer) error

	// ValidateSetup verifies that the backend is accessible and properly
	// configured.
	ValidateSetup() error
}
