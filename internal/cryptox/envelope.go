// Package cryptox implements the envelope format used for everything
// DropLocker stores at rest: AES-256-CBC for confidentiality and
// HMAC-SHA-256 for integrity, serialized as IV ‖ MAC ‖ ciphertext.
//
// The same primitive protects both the bulk payload (under a per-artifact
// file key) and the file key itself (under the process master key). The
// MAC is always verified, in constant time, before any cipher work runs.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/droplocker/droplocker/internal/common"
)

const (
	// KeySize is the only accepted key length (AES-256).
	KeySize = 32

	// IVSize is the AES block size; a fresh random IV is drawn per call.
	IVSize = aes.BlockSize

	// MACSize is the length of the HMAC-SHA-256 tag.
	MACSize = sha256.Size

	// Overhead is the fixed envelope prefix: IV followed by MAC.
	Overhead = IVSize + MACSize
)

// Encrypt seals plaintext under key and returns the envelope
// IV(16) ‖ MAC(32) ‖ ciphertext. The MAC is computed over
// ciphertext ‖ IV with the same key.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", common.ErrValidation, KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}

	iv := common.GenerateRandByteArray(IVSize)
	padded := pad(plaintext, aes.BlockSize)

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	mac := computeMAC(key, ciphertext, iv)

	envelope := make([]byte, 0, Overhead+len(ciphertext))
	envelope = append(envelope, iv...)
	envelope = append(envelope, mac...)
	envelope = append(envelope, ciphertext...)
	return envelope, nil
}

// Decrypt verifies and opens an envelope produced by Encrypt.
//
// The stored MAC is recomputed over the extracted ciphertext ‖ IV and
// compared in constant time; a mismatch yields common.ErrIntegrity and no
// decryption is attempted. Malformed ciphertext lengths and bad padding
// are folded into common.ErrCrypto so padding failures are not
// distinguishable from other cipher errors.
func Decrypt(envelope, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", common.ErrValidation, KeySize, len(key))
	}
	if len(envelope) < Overhead {
		return nil, fmt.Errorf("%w: envelope too short", common.ErrIntegrity)
	}

	iv := envelope[:IVSize]
	mac := envelope[IVSize:Overhead]
	ciphertext := envelope[Overhead:]

	// MAC check comes first. Running the cipher on unauthenticated input
	// would hand an attacker a decryption oracle.
	if !hmac.Equal(mac, computeMAC(key, ciphertext, iv)) {
		return nil, common.ErrIntegrity
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not block-aligned", common.ErrCrypto)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// Wrap encrypts a small secret (the per-artifact file key) under the
// master key. It is the same construction as Encrypt; modelling key
// wrapping as payload encryption keeps a single envelope format at the
// cost of giving the master key the same exposure surface.
func Wrap(secret, masterKey []byte) ([]byte, error) {
	return Encrypt(secret, masterKey)
}

// Unwrap recovers a secret sealed by Wrap.
func Unwrap(envelope, masterKey []byte) ([]byte, error) {
	return Decrypt(envelope, masterKey)
}

func computeMAC(key, ciphertext, iv []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(ciphertext)
	h.Write(iv)
	return h.Sum(nil)
}

// pad applies PKCS#7 padding. Plaintext of any length, including empty,
// always gains at least one padding byte.
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: invalid padded length", common.ErrCrypto)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", common.ErrCrypto)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: invalid padding", common.ErrCrypto)
		}
	}
	return data[:len(data)-n], nil
}
