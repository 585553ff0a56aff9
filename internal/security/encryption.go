// internal/security/encryption.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"settlement-service/internal/domain"

	"go.uber.org/zap"
)

var errMalformedCiphertext = errors.New("malformed ciphertext: expected iv_hex:ciphertext_hex")

type cipherKey struct {
	raw  []byte
	hash string
}

// KeyVault encrypts wallet private keys with the current key and can decrypt
// anything written under the current or any fallback key.
// Ciphertext format: hex(iv) ":" hex(ciphertext||tag), AES-256-GCM.
type KeyVault struct {
	current   cipherKey
	fallbacks []cipherKey
	logger    *zap.Logger
}

// NewKeyVault creates a vault from the current key and ordered fallback keys.
// Keys may be 64 hex chars, base64 of 32 bytes, or a passphrase (hashed with SHA-256).
func NewKeyVault(currentKey string, fallbackKeys []string, logger *zap.Logger) (*KeyVault, error) {
	if strings.TrimSpace(currentKey) == "" {
		return nil, &domain.ConfigurationError{Key: "CRYPTO_ENCRYPTION_KEY", Reason: "encryption key is required"}
	}

	v := &KeyVault{
		current: newCipherKey(currentKey),
		logger:  logger,
	}

	seen := map[string]bool{v.current.hash: true}
	for _, k := range fallbackKeys {
		if strings.TrimSpace(k) == "" {
			continue
		}
		ck := newCipherKey(k)
		if seen[ck.hash] {
			continue
		}
		seen[ck.hash] = true
		v.fallbacks = append(v.fallbacks, ck)
	}

	logger.Info("key vault initialized",
		zap.String("key_hash", v.current.hash),
		zap.Int("fallback_keys", len(v.fallbacks)))

	return v, nil
}

func newCipherKey(key string) cipherKey {
	raw := deriveKey(key)
	return cipherKey{raw: raw, hash: HashKey(raw)}
}

// KeyHash returns the identifier of the current key, stored next to each ciphertext
func (v *KeyVault) KeyHash() string {
	return v.current.hash
}

// KnowsKey reports whether hash identifies the current or a fallback key
func (v *KeyVault) KnowsKey(hash string) bool {
	if hash == v.current.hash {
		return true
	}
	for _, k := range v.fallbacks {
		if k.hash == hash {
			return true
		}
	}
	return false
}

// Encrypt encrypts plaintext under the current key with a fresh random IV
func (v *KeyVault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext cannot be empty")
	}

	iv, sealed, err := seal(v.current.raw, []byte(plaintext))
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt decrypts ciphertext. When keyHash names a known key it is tried first,
// otherwise the current key and then each fallback are tried in order.
func (v *KeyVault) Decrypt(ciphertext, keyHash string) (string, error) {
	iv, sealed, err := splitCiphertext(ciphertext)
	if err != nil {
		return "", &domain.DecryptionError{KeyHash: keyHash, Err: err}
	}

	tried := 0
	var lastErr error
	for _, k := range v.candidates(keyHash) {
		tried++
		plaintext, err := open(k.raw, iv, sealed)
		if err == nil {
			if k.hash != v.current.hash {
				v.logger.Info("decrypted with fallback key",
					zap.String("key_hash", k.hash))
			}
			return string(plaintext), nil
		}
		lastErr = err
	}

	return "", &domain.DecryptionError{KeyHash: keyHash, KeysTried: tried, Err: lastErr}
}

// ReEncrypt decrypts with whatever key works and re-encrypts under the current key.
// It returns the new ciphertext and the current key hash.
func (v *KeyVault) ReEncrypt(ciphertext, keyHash string) (string, string, error) {
	plaintext, err := v.Decrypt(ciphertext, keyHash)
	if err != nil {
		return "", "", fmt.Errorf("failed to decrypt with old key: %w", err)
	}

	newCiphertext, err := v.Encrypt(plaintext)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt with new key: %w", err)
	}

	return newCiphertext, v.current.hash, nil
}

// EncryptBytes encrypts data under the current key, nonce prepended
func (v *KeyVault) EncryptBytes(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}

	iv, sealed, err := seal(v.current.raw, data)
	if err != nil {
		return nil, err
	}
	return append(iv, sealed...), nil
}

// DecryptBytes reverses EncryptBytes
func (v *KeyVault) DecryptBytes(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("ciphertext cannot be empty")
	}

	gcm, err := newGCM(v.current.raw)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func (v *KeyVault) candidates(keyHash string) []cipherKey {
	all := append([]cipherKey{v.current}, v.fallbacks...)
	if keyHash == "" {
		return all
	}

	// hashed key first, the rest in configured order
	ordered := make([]cipherKey, 0, len(all))
	for _, k := range all {
		if k.hash == keyHash {
			ordered = append(ordered, k)
		}
	}
	for _, k := range all {
		if k.hash != keyHash {
			ordered = append(ordered, k)
		}
	}
	return ordered
}

// ============================================================================
// AES-GCM PRIMITIVES
// ============================================================================

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func seal(key, plaintext []byte) ([]byte, []byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return iv, gcm.Seal(nil, iv, plaintext, nil), nil
}

func open(key, iv, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid iv length %d", len(iv))
	}

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func splitCiphertext(ciphertext string) ([]byte, []byte, error) {
	ivHex, ctHex, ok := strings.Cut(ciphertext, ":")
	if !ok || ivHex == "" || ctHex == "" {
		return nil, nil, errMalformedCiphertext
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: iv: %v", errMalformedCiphertext, err)
	}
	sealed, err := hex.DecodeString(ctHex)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: body: %v", errMalformedCiphertext, err)
	}
	return iv, sealed, nil
}

// LooksEncrypted reports whether s has the iv_hex:ciphertext_hex shape
func LooksEncrypted(s string) bool {
	_, _, err := splitCiphertext(s)
	return err == nil
}

// GenerateMasterKey generates a random 32-byte key, hex encoded
func GenerateMasterKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
