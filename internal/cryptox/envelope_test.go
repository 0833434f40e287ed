package cryptox

import (
	"bytes"
	"errors"
	"testing"

	"github.com/droplocker/droplocker/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	k := make([]byte, KeySize)
	for i := range k {
		k[i] = b
	}
	return k
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := testKey(0x11)

	payloads := map[string][]byte{
		"empty":       {},
		"single byte": {0x42},
		"block sized": bytes.Repeat([]byte{0xAB}, 16),
		"multi block": bytes.Repeat([]byte("0123456789abcdef"), 17),
		"odd length":  []byte("hello, droplocker"),
	}

	for name, plaintext := range payloads {
		t.Run(name, func(t *testing.T) {
			envelope, err := Encrypt(plaintext, key)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(envelope), Overhead+16)

			got, err := Decrypt(envelope, key)
			require.NoError(t, err)
			assert.Equal(t, plaintext, got)
		})
	}
}

func TestEncrypt_FreshIVPerCall(t *testing.T) {
	key := testKey(0x22)
	plaintext := []byte("same input twice")

	a, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	b, err := Encrypt(plaintext, key)
	require.NoError(t, err)

	assert.NotEqual(t, a[:IVSize], b[:IVSize], "IV must be freshly drawn per call")
	assert.NotEqual(t, a[Overhead:], b[Overhead:], "ciphertexts under distinct IVs must differ")
}

func TestDecrypt_TamperDetection(t *testing.T) {
	key := testKey(0x33)
	envelope, err := Encrypt([]byte("integrity matters"), key)
	require.NoError(t, err)

	// Flip one bit in every region of the envelope in turn.
	for _, idx := range []int{0, IVSize, IVSize + MACSize/2, Overhead, len(envelope) - 1} {
		tampered := bytes.Clone(envelope)
		tampered[idx] ^= 0x01

		_, err := Decrypt(tampered, key)
		assert.ErrorIs(t, err, common.ErrIntegrity, "bit flip at offset %d", idx)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	envelope, err := Encrypt([]byte("secret"), testKey(0x44))
	require.NoError(t, err)

	plaintext, err := Decrypt(envelope, testKey(0x45))
	assert.ErrorIs(t, err, common.ErrIntegrity)
	assert.Nil(t, plaintext)
}

func TestDecrypt_TruncatedEnvelope(t *testing.T) {
	_, err := Decrypt(make([]byte, Overhead-1), testKey(0x55))
	assert.ErrorIs(t, err, common.ErrIntegrity)
}

func TestEncryptDecrypt_RejectBadKeyLength(t *testing.T) {
	_, err := Encrypt([]byte("x"), []byte("short"))
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = Decrypt(make([]byte, Overhead+16), []byte("short"))
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestWrapUnwrap_RoundTrip(t *testing.T) {
	master := testKey(0x66)
	fileKey := common.GenerateRandByteArray(KeySize)

	wrapped, err := Wrap(fileKey, master)
	require.NoError(t, err)

	got, err := Unwrap(wrapped, master)
	require.NoError(t, err)
	assert.Equal(t, fileKey, got)
}

func TestUnwrap_WrongMasterKey(t *testing.T) {
	wrapped, err := Wrap(testKey(0x01), testKey(0x77))
	require.NoError(t, err)

	_, err = Unwrap(wrapped, testKey(0x78))
	assert.ErrorIs(t, err, common.ErrIntegrity)
}

func TestUnpad_Invalid(t *testing.T) {
	cases := [][]byte{
		append(bytes.Repeat([]byte{0}, 15), 0),    // zero padding byte
		append(bytes.Repeat([]byte{0}, 15), 17),   // padding longer than block
		append(bytes.Repeat([]byte{2}, 15), 0x03), // inconsistent padding bytes
	}
	for _, c := range cases {
		_, err := unpad(c, 16)
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrCrypto))
	}
}
