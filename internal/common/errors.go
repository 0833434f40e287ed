// Package common defines shared constants and sentinel errors used across
// DropLocker components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Access-policy errors.
	ErrUnauthorized = errors.New("unauthorized")

	// Crypto errors. ErrIntegrity means the envelope MAC did not verify:
	// the ciphertext was tampered with, corrupted, or decrypted under the
	// wrong key. It must never be collapsed into ErrCrypto.
	ErrIntegrity = errors.New("integrity check failed")
	ErrCrypto    = errors.New("cipher operation failed")

	// Storage and input errors.
	ErrIO         = errors.New("storage i/o error")
	ErrValidation = errors.New("validation error")
)
