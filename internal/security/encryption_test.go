package security

import (
	"errors"
	"strings"
	"testing"

	"settlement-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testKeyA = "0000000000000000000000000000000000000000000000000000000000000001"
	testKeyB = "00000000000000000000000000000000000000000000000000000000000000ff"
	tronKey  = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

func newVault(t *testing.T, current string, fallbacks ...string) *KeyVault {
	t.Helper()
	v, err := NewKeyVault(current, fallbacks, zap.NewNop())
	require.NoError(t, err)
	return v
}

func TestKeyVault_RoundTrip(t *testing.T) {
	v := newVault(t, testKeyA)

	ct, err := v.Encrypt(tronKey)
	require.NoError(t, err)

	parts := strings.Split(ct, ":")
	require.Len(t, parts, 2)
	assert.NotContains(t, ct, tronKey)

	pt, err := v.Decrypt(ct, v.KeyHash())
	require.NoError(t, err)
	assert.Equal(t, tronKey, pt)

	pt, err = v.Decrypt(ct, "")
	require.NoError(t, err)
	assert.Equal(t, tronKey, pt)
}

func TestKeyVault_RandomIV(t *testing.T) {
	v := newVault(t, testKeyA)

	a, err := v.Encrypt(tronKey)
	require.NoError(t, err)
	b, err := v.Encrypt(tronKey)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestKeyVault_FallbackKey(t *testing.T) {
	old := newVault(t, testKeyA)
	ct, err := old.Encrypt(tronKey)
	require.NoError(t, err)

	rotated := newVault(t, testKeyB, testKeyA)

	t.Run("by hash", func(t *testing.T) {
		pt, err := rotated.Decrypt(ct, old.KeyHash())
		require.NoError(t, err)
		assert.Equal(t, tronKey, pt)
	})

	t.Run("without hash", func(t *testing.T) {
		pt, err := rotated.Decrypt(ct, "")
		require.NoError(t, err)
		assert.Equal(t, tronKey, pt)
	})

	t.Run("unknown hash", func(t *testing.T) {
		pt, err := rotated.Decrypt(ct, "deadbeef")
		require.NoError(t, err)
		assert.Equal(t, tronKey, pt)
	})
}

func TestKeyVault_NoKeyMatches(t *testing.T) {
	old := newVault(t, testKeyA)
	ct, err := old.Encrypt(tronKey)
	require.NoError(t, err)

	v := newVault(t, testKeyB, "some passphrase")

	_, err = v.Decrypt(ct, old.KeyHash())
	require.Error(t, err)

	var de *domain.DecryptionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 2, de.KeysTried)
	assert.Equal(t, old.KeyHash(), de.KeyHash)
}

func TestKeyVault_MalformedCiphertext(t *testing.T) {
	v := newVault(t, testKeyA)

	for _, ct := range []string{tronKey, "abc", ":", "zz:zz"} {
		_, err := v.Decrypt(ct, "")
		var de *domain.DecryptionError
		assert.True(t, errors.As(err, &de), ct)
	}
	assert.False(t, LooksEncrypted(tronKey))
}

func TestKeyVault_ReEncrypt(t *testing.T) {
	old := newVault(t, testKeyA)
	ct, err := old.Encrypt(tronKey)
	require.NoError(t, err)

	rotated := newVault(t, testKeyB, testKeyA)
	newCT, hash, err := rotated.ReEncrypt(ct, old.KeyHash())
	require.NoError(t, err)
	assert.Equal(t, rotated.KeyHash(), hash)

	current := newVault(t, testKeyB)
	pt, err := current.Decrypt(newCT, hash)
	require.NoError(t, err)
	assert.Equal(t, tronKey, pt)
}

func TestKeyVault_KeyFormats(t *testing.T) {
	hexKey, err := GenerateMasterKey()
	require.NoError(t, err)
	require.Len(t, hexKey, 64)

	// same material in hex and base64 yields the same hash
	b64 := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAE="
	assert.Equal(t, HashKeyString(testKeyA), HashKeyString(b64))
	assert.NotEqual(t, HashKeyString(testKeyA), HashKeyString("passphrase"))

	_, err = NewKeyVault("  ", nil, zap.NewNop())
	var ce *domain.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func TestKeyVault_Bytes(t *testing.T) {
	v := newVault(t, testKeyA)

	ct, err := v.EncryptBytes([]byte("secret"))
	require.NoError(t, err)

	pt, err := v.DecryptBytes(ct)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(pt))
}
