// internal/security/vault.go
package security

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"settlement-service/internal/domain"

	"go.uber.org/zap"
)

var ErrSecretNotFound = errors.New("secret not found")

// Secret paths
const (
	SecretEncryptionKey = "crypto/encryption-key"
	SecretFallbackKeys  = "crypto/fallback-keys"
)

// MasterKeyPath is the secret path of a network's master wallet private key
func MasterKeyPath(network domain.Network) string {
	switch network {
	case domain.NetworkTron:
		return "tron/master-private-key"
	case domain.NetworkPolygon:
		return "polygon/master-private-key"
	}
	return ""
}

// SecretProvider defines interface for secret storage backends
type SecretProvider interface {
	GetSecret(ctx context.Context, path string) (string, error)
	SetSecret(ctx context.Context, path, value string) error
	DeleteSecret(ctx context.Context, path string) error
}

// SecretStore reads secrets through a provider with a short-lived cache
type SecretStore struct {
	provider   SecretProvider
	cache      map[string]*cachedSecret
	cacheMutex sync.RWMutex
	cacheTTL   time.Duration
	logger     *zap.Logger
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

func NewSecretStore(provider SecretProvider, logger *zap.Logger) *SecretStore {
	return &SecretStore{
		provider: provider,
		cache:    make(map[string]*cachedSecret),
		cacheTTL: 5 * time.Minute,
		logger:   logger,
	}
}

// EncryptionKeys returns the current vault key and the ordered fallback keys
func (s *SecretStore) EncryptionKeys(ctx context.Context) (string, []string, error) {
	current, err := s.GetSecret(ctx, SecretEncryptionKey)
	if err != nil {
		if errors.Is(err, ErrSecretNotFound) {
			return "", nil, &domain.ConfigurationError{Key: pathToEnvKey(SecretEncryptionKey), Reason: "encryption key is required"}
		}
		return "", nil, err
	}

	fallbacks, err := s.GetSecret(ctx, SecretFallbackKeys)
	if err != nil && !errors.Is(err, ErrSecretNotFound) {
		return "", nil, err
	}

	return current, ParseKeyList(fallbacks), nil
}

// MasterWallet loads the master wallet key for a network
func (s *SecretStore) MasterWallet(ctx context.Context, network domain.Network, address string) (*domain.MasterWallet, error) {
	path := MasterKeyPath(network)
	if path == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedNetwork, network)
	}

	key, err := s.GetSecret(ctx, path)
	if err != nil {
		if errors.Is(err, ErrSecretNotFound) {
			return nil, &domain.ConfigurationError{Key: pathToEnvKey(path), Reason: "master wallet private key is required"}
		}
		return nil, err
	}

	return &domain.MasterWallet{Network: network, Address: address, PrivateKey: key}, nil
}

// GetSecret retrieves a secret with caching
func (s *SecretStore) GetSecret(ctx context.Context, path string) (string, error) {
	s.cacheMutex.RLock()
	if cached, ok := s.cache[path]; ok && time.Now().Before(cached.expiresAt) {
		s.cacheMutex.RUnlock()
		return cached.value, nil
	}
	s.cacheMutex.RUnlock()

	s.logger.Debug("fetching secret from provider", zap.String("path", path))
	secret, err := s.provider.GetSecret(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", path, err)
	}

	s.cacheMutex.Lock()
	s.cache[path] = &cachedSecret{
		value:     secret,
		expiresAt: time.Now().Add(s.cacheTTL),
	}
	s.cacheMutex.Unlock()

	return secret, nil
}

// SetSecret stores a secret and invalidates the cached copy
func (s *SecretStore) SetSecret(ctx context.Context, path, value string) error {
	if err := s.provider.SetSecret(ctx, path, value); err != nil {
		return fmt.Errorf("failed to set secret: %w", err)
	}

	s.invalidate(path)
	s.logger.Info("secret updated", zap.String("path", path))
	return nil
}

func (s *SecretStore) DeleteSecret(ctx context.Context, path string) error {
	if err := s.provider.DeleteSecret(ctx, path); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	s.invalidate(path)
	s.logger.Info("secret deleted", zap.String("path", path))
	return nil
}

func (s *SecretStore) invalidate(path string) {
	s.cacheMutex.Lock()
	delete(s.cache, path)
	s.cacheMutex.Unlock()
}

// ============================================================================
// SECRET PROVIDERS
// ============================================================================

// EnvSecretProvider maps secret paths to environment variables
type EnvSecretProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvSecretProvider reads through lookup, os.LookupEnv when nil
func NewEnvSecretProvider(lookup func(string) (string, bool)) *EnvSecretProvider {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &EnvSecretProvider{lookup: lookup}
}

func (p *EnvSecretProvider) GetSecret(ctx context.Context, path string) (string, error) {
	envKey := pathToEnvKey(path)
	value, ok := p.lookup(envKey)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s (env: %s)", ErrSecretNotFound, path, envKey)
	}
	return value, nil
}

func (p *EnvSecretProvider) SetSecret(ctx context.Context, path, value string) error {
	return os.Setenv(pathToEnvKey(path), value)
}

func (p *EnvSecretProvider) DeleteSecret(ctx context.Context, path string) error {
	return os.Unsetenv(pathToEnvKey(path))
}

// ============================================================================
// FILE-BASED PROVIDER
// ============================================================================

// FileSecretProvider stores secrets as files encrypted by a KeyVault
type FileSecretProvider struct {
	baseDir string
	vault   *KeyVault
	mutex   sync.RWMutex
}

func NewFileSecretProvider(baseDir string, vault *KeyVault) (*FileSecretProvider, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create secret directory: %w", err)
	}

	return &FileSecretProvider{
		baseDir: baseDir,
		vault:   vault,
	}, nil
}

func (p *FileSecretProvider) filePath(path string) string {
	return filepath.Join(p.baseDir, filepath.FromSlash(path)+".enc")
}

func (p *FileSecretProvider) GetSecret(ctx context.Context, path string) (string, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	ciphertext, err := os.ReadFile(p.filePath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	plaintext, err := p.vault.DecryptBytes(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return string(plaintext), nil
}

func (p *FileSecretProvider) SetSecret(ctx context.Context, path, value string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	ciphertext, err := p.vault.EncryptBytes([]byte(value))
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}

	filePath := p.filePath(path)
	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(filePath, ciphertext, 0600); err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}

	return nil
}

func (p *FileSecretProvider) DeleteSecret(ctx context.Context, path string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if err := os.Remove(p.filePath(path)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	return nil
}
