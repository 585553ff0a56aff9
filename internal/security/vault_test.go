package security

import (
	"context"
	"errors"
	"testing"

	"settlement-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestSecretStore_EnvProvider(t *testing.T) {
	env := map[string]string{
		"CRYPTO_ENCRYPTION_KEY":   testKeyB,
		"CRYPTO_FALLBACK_KEYS":    testKeyA + ", ,old-passphrase",
		"TRON_MASTER_PRIVATE_KEY": tronKey,
	}
	store := NewSecretStore(NewEnvSecretProvider(mapLookup(env)), zap.NewNop())
	ctx := context.Background()

	current, fallbacks, err := store.EncryptionKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, testKeyB, current)
	assert.Equal(t, []string{testKeyA, "old-passphrase"}, fallbacks)

	master, err := store.MasterWallet(ctx, domain.NetworkTron, "TMaster")
	require.NoError(t, err)
	assert.Equal(t, tronKey, master.PrivateKey)
	assert.Equal(t, "TMaster", master.Address)

	_, err = store.MasterWallet(ctx, domain.NetworkPolygon, "0xabc")
	var ce *domain.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "POLYGON_MASTER_PRIVATE_KEY", ce.Key)
}

func TestSecretStore_MissingEncryptionKey(t *testing.T) {
	store := NewSecretStore(NewEnvSecretProvider(mapLookup(nil)), zap.NewNop())

	_, _, err := store.EncryptionKeys(context.Background())
	var ce *domain.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "CRYPTO_ENCRYPTION_KEY", ce.Key)
}

func TestFileSecretProvider(t *testing.T) {
	v := newVault(t, testKeyA)
	p, err := NewFileSecretProvider(t.TempDir(), v)
	require.NoError(t, err)

	store := NewSecretStore(p, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.SetSecret(ctx, MasterKeyPath(domain.NetworkPolygon), "0x"+tronKey))

	got, err := store.GetSecret(ctx, MasterKeyPath(domain.NetworkPolygon))
	require.NoError(t, err)
	assert.Equal(t, "0x"+tronKey, got)

	require.NoError(t, store.DeleteSecret(ctx, MasterKeyPath(domain.NetworkPolygon)))
	_, err = store.GetSecret(ctx, MasterKeyPath(domain.NetworkPolygon))
	assert.True(t, errors.Is(err, ErrSecretNotFound))
}

func TestPathToEnvKey(t *testing.T) {
	assert.Equal(t, "TRON_MASTER_PRIVATE_KEY", pathToEnvKey("tron/master-private-key"))
	assert.Equal(t, "CRYPTO_ENCRYPTION_KEY", pathToEnvKey(SecretEncryptionKey))
}
