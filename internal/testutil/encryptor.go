package testutil

import (
	"nifty-go/internal/encryption"
)

// TestPassphrase unlocks encryptors returned by NewTestEncryptor.
const TestPassphrase = "test-passphrase"

// NewTestEncryptor creates a test encryptor already set up with TestPassphrase.
func NewTestEncryptor() *encryption.TestEncryptor {
	e := encryption.NewTestEncryptor()
	_ = e.Setup(TestPassphrase)
	return e
}
