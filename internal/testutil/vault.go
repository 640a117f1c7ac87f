package testutil

import (
	"mdnotes/internal/notes"
	"mdnotes/internal/vault"
)

// NewTestVault creates a new in-memory snapshot vault.
func NewTestVault() notes.Vault {
	return vault.NewMemoryVault("test-vault")
}
