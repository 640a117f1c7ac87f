package testutil

import (
	"mdnotes/internal/encryption"
	"mdnotes/internal/notes"
)

// NewTestEncryptor returns an encryptor that frames snapshots without
// key material.
func NewTestEncryptor() notes.Encryptor {
	return encryption.NewPlainEncryptor()
}
