// Package masterkey loads the process-wide master key used to wrap
// per-artifact file keys. The key is loaded once at startup, is immutable
// for the process lifetime, and is never persisted next to artifact data.
package masterkey

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/droplocker/droplocker/internal/common"
	"github.com/droplocker/droplocker/internal/cryptox"
	"golang.org/x/crypto/argon2"
)

const saltFileName = "derivation.salt"

// Provider holds the master key. It is an explicitly constructed, injected
// dependency so tests can swap in a fixed key; it is safe for concurrent
// reads.
type Provider struct {
	key []byte
}

// Key returns the 32-byte master key. Callers must treat the slice as
// read-only.
func (p *Provider) Key() []byte {
	return p.key
}

// FromKey wraps an existing 32-byte key, typically in tests.
func FromKey(key []byte) (*Provider, error) {
	if len(key) != cryptox.KeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes, got %d", common.ErrValidation, cryptox.KeySize, len(key))
	}
	return &Provider{key: key}, nil
}

// FromHex decodes a 64-character hex string into a master key.
func FromHex(s string) (*Provider, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: master key is not valid hex", common.ErrValidation)
	}
	return FromKey(key)
}

// FromPassphrase derives the master key from a passphrase with argon2id.
// The derivation salt lives in dataDir and is created on first use, so
// the same passphrase yields the same key across restarts.
func FromPassphrase(passphrase string, dataDir string) (*Provider, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: empty passphrase", common.ErrValidation)
	}

	salt, err := loadOrCreateSalt(filepath.Join(dataDir, saltFileName))
	if err != nil {
		return nil, err
	}

	key := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, cryptox.KeySize)
	return &Provider{key: key}, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) != cryptox.KeySize {
			return nil, fmt.Errorf("%w: salt file %s has unexpected size %d", common.ErrValidation, path, len(salt))
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: read salt: %v", common.ErrIO, err)
	}

	salt = common.GenerateRandByteArray(cryptox.KeySize)
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("%w: write salt: %v", common.ErrIO, err)
	}
	return salt, nil
}
