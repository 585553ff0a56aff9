// internal/security/helper.go
package security

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// deriveKey turns a configured key string into 32 bytes of AES-256 key material
func deriveKey(key string) []byte {
	key = strings.TrimSpace(key)

	if len(key) == 64 {
		if raw, err := hex.DecodeString(key); err == nil {
			return raw
		}
	}

	if raw, err := base64.StdEncoding.DecodeString(key); err == nil && len(raw) == 32 {
		return raw
	}

	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

// HashKey identifies key material without revealing it
func HashKey(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// HashKeyString hashes a configured key string the same way the vault does
func HashKeyString(key string) string {
	return HashKey(deriveKey(key))
}

// ParseKeyList splits a comma separated key list, dropping blanks
func ParseKeyList(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func pathToEnvKey(path string) string {
	// "tron/master-private-key" -> "TRON_MASTER_PRIVATE_KEY"
	key := strings.ToUpper(path)
	key = strings.ReplaceAll(key, "/", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}
