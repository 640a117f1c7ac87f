package encryption

import (
	"bytes"
	"fmt"
	"io"

	"mdnotes/internal/notes"
)

// plainHeader marks snapshots written by PlainEncryptor.
var plainHeader = []byte("MDNSNAP\x00")

// PlainEncryptor frames snapshots with a fixed header and does no
// cryptography. It keeps snapshot tests and local development free of key
// management. Unlock accepts any passphrase.
type PlainEncryptor struct{}

var _ notes.Encryptor = PlainEncryptor{}

func NewPlainEncryptor() PlainEncryptor { return PlainEncryptor{} }

func (PlainEncryptor) Setup(string) error { return nil }

func (PlainEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(plainHeader); err != nil {
		return fmt.Errorf("writing snapshot header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (PlainEncryptor) Unlock(string) (notes.DecryptionContext, error) {
	return plainDecryption{}, nil
}

func (PlainEncryptor) IsConfigured() bool { return true }

type plainDecryption struct{}

func (plainDecryption) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(plainHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading snapshot header: %w", err)
	}
	if !bytes.Equal(header, plainHeader) {
		return fmt.Errorf("not a plain snapshot")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
