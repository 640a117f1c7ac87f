package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mdnotes/internal/notes"
)

// FileSystemVault stores snapshots in a directory:
//
//	<root>/
//	  snapshots/
//	    <name>.snap      (encrypted database snapshot)
//	    <name>.version   (sync operation id at snapshot time)
type FileSystemVault struct {
	name         string
	root         string
	snapshotsDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	snapshotsDir := filepath.Join(root, "snapshots")
	if err := os.MkdirAll(snapshotsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}
	return &FileSystemVault{name: name, root: root, snapshotsDir: snapshotsDir}, nil
}

func checkSnapshotName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid snapshot name %q", name)
	}
	return nil
}

// PutSnapshot writes the snapshot, then its version file. A reader that
// sees the new version therefore always finds the matching snapshot.
func (v *FileSystemVault) PutSnapshot(name string, r io.Reader, size int64, version int64) error {
	if err := checkSnapshotName(name); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(v.snapshotsDir, name+".snap"), r, size); err != nil {
		return err
	}
	data := strconv.FormatInt(version, 10)
	if err := writeFileAtomic(filepath.Join(v.snapshotsDir, name+".version"), strings.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("writing snapshot version: %w", err)
	}
	return nil
}

func (v *FileSystemVault) GetSnapshot(name string, w io.Writer) error {
	if err := checkSnapshotName(name); err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(v.snapshotsDir, name+".snap"))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("snapshot not found: %s", name)
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

// GetSnapshotVersion returns 0 if no version file exists.
func (v *FileSystemVault) GetSnapshotVersion(name string) (int64, error) {
	if err := checkSnapshotName(name); err != nil {
		return 0, err
	}
	data, err := os.ReadFile(filepath.Join(v.snapshotsDir, name+".version"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup verifies that the snapshot directory exists and is writable.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.snapshotsDir)
	if err != nil {
		return fmt.Errorf("vault directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path is not a directory: %s", v.snapshotsDir)
	}
	f, err := os.CreateTemp(v.snapshotsDir, ".writecheck-*")
	if err != nil {
		return fmt.Errorf("vault directory not writable: %w", err)
	}
	f.Close()
	return os.Remove(f.Name())
}

// writeFileAtomic writes r to destPath through a temp file and rename.
func writeFileAtomic(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

var _ notes.Vault = (*FileSystemVault)(nil)
