package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"mdnotes/internal/notes"
)

// SnapshotName is the vault key under which database snapshots are stored.
const SnapshotName = "db"

// snapshotSource is the part of the database a snapshot needs.
type snapshotSource interface {
	BackupTo(destPath string) error
	MaxSyncOperationID(ctx context.Context) (int64, error)
}

// BackupDatabase copies the database with VACUUM INTO, encrypts the copy and
// uploads it to the vault. The snapshot version is the newest sync operation
// id, so a later startup can tell whether the local database is behind.
func BackupDatabase(ctx context.Context, db snapshotSource, v notes.Vault, enc notes.Encryptor) (int64, error) {
	version, err := db.MaxSyncOperationID(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading snapshot version: %w", err)
	}

	dir, err := os.MkdirTemp("", "mdnotes-snapshot-*")
	if err != nil {
		return 0, fmt.Errorf("creating snapshot directory: %w", err)
	}
	defer os.RemoveAll(dir)

	// VACUUM INTO refuses to overwrite an existing file.
	rawPath := filepath.Join(dir, "mdnotes.db")
	if err := db.BackupTo(rawPath); err != nil {
		return 0, err
	}

	encPath := rawPath + ".age"
	if err := encryptFile(enc, rawPath, encPath); err != nil {
		return 0, err
	}

	f, err := os.Open(encPath)
	if err != nil {
		return 0, fmt.Errorf("opening encrypted snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat encrypted snapshot: %w", err)
	}

	if err := v.PutSnapshot(SnapshotName, f, info.Size(), version); err != nil {
		return 0, fmt.Errorf("uploading snapshot to vault: %w", err)
	}
	return version, nil
}

func encryptFile(enc notes.Encryptor, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening database copy: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating encrypted snapshot: %w", err)
	}
	if err := enc.Encrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	return out.Close()
}

// RestoreDatabase downloads the newest snapshot, unlocks the private key with
// passphrase and writes the decrypted database to dest. dest must not exist.
// It returns the version of the restored snapshot.
func RestoreDatabase(v notes.Vault, enc notes.Encryptor, passphrase, dest string) (int64, error) {
	if _, err := os.Stat(dest); err == nil {
		return 0, fmt.Errorf("refusing to overwrite existing file %s", dest)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("checking destination: %w", err)
	}

	version, err := v.GetSnapshotVersion(SnapshotName)
	if err != nil {
		return 0, fmt.Errorf("reading snapshot version: %w", err)
	}
	if version == 0 {
		return 0, fmt.Errorf("vault has no database snapshot")
	}

	dc, err := enc.Unlock(passphrase)
	if err != nil {
		return 0, fmt.Errorf("unlocking private key: %w", err)
	}

	dir, err := os.MkdirTemp("", "mdnotes-restore-*")
	if err != nil {
		return 0, fmt.Errorf("creating restore directory: %w", err)
	}
	defer os.RemoveAll(dir)

	encPath := filepath.Join(dir, "mdnotes.db.age")
	if err := downloadSnapshot(v, encPath); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return 0, fmt.Errorf("creating destination directory: %w", err)
	}
	partial := dest + ".partial"
	if err := decryptFile(dc, encPath, partial); err != nil {
		os.Remove(partial)
		return 0, err
	}
	if err := os.Rename(partial, dest); err != nil {
		os.Remove(partial)
		return 0, fmt.Errorf("moving restored database into place: %w", err)
	}
	return version, nil
}

func downloadSnapshot(v notes.Vault, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	if err := v.GetSnapshot(SnapshotName, f); err != nil {
		f.Close()
		return fmt.Errorf("downloading snapshot: %w", err)
	}
	return f.Close()
}

func decryptFile(dc notes.DecryptionContext, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating restored database: %w", err)
	}
	if err := dc.Decrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	return out.Close()
}
