package notes

import "io"

// Vault stores encrypted database snapshots.
// All operations use io.Reader/io.Writer for streaming.
type Vault interface {
	// PutSnapshot stores a named snapshot. size is the number of bytes that
	// will be read from r. version is stored alongside for consistency checks.
	PutSnapshot(name string, r io.Reader, size int64, version int64) error

	// GetSnapshot retrieves a named snapshot and writes it to w.
	GetSnapshot(name string, w io.Writer) error

	// GetSnapshotVersion returns the stored version, or 0 if the snapshot does not exist.
	GetSnapshotVersion(name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
