package masterkey

import (
	"encoding/hex"
	"testing"

	"github.com/droplocker/droplocker/internal/common"
	"github.com/droplocker/droplocker/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromKey_RejectsWrongLength(t *testing.T) {
	_, err := FromKey([]byte("too short"))
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestFromHex_RoundTrip(t *testing.T) {
	raw := common.GenerateRandByteArray(cryptox.KeySize)

	p, err := FromHex(hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, p.Key())
}

func TestFromHex_InvalidInput(t *testing.T) {
	_, err := FromHex("not-hex")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = FromHex("abcd") // valid hex, wrong length
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestFromPassphrase_StableAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	p1, err := FromPassphrase("correct horse battery staple", dir)
	require.NoError(t, err)
	p2, err := FromPassphrase("correct horse battery staple", dir)
	require.NoError(t, err)

	assert.Equal(t, p1.Key(), p2.Key(), "same passphrase and salt must derive the same key")
	assert.Len(t, p1.Key(), cryptox.KeySize)
}

func TestFromPassphrase_DifferentPassphrases(t *testing.T) {
	dir := t.TempDir()

	p1, err := FromPassphrase("one", dir)
	require.NoError(t, err)
	p2, err := FromPassphrase("two", dir)
	require.NoError(t, err)

	assert.NotEqual(t, p1.Key(), p2.Key())
}

func TestFromPassphrase_EmptyRejected(t *testing.T) {
	_, err := FromPassphrase("", t.TempDir())
	assert.ErrorIs(t, err, common.ErrValidation)
}
