package models

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Permission levels for API keys. Admin implies write, write implies read.
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
	PermissionAdmin = "admin"
)

// APIKey is a configured API credential. The raw key value is never stored;
// only its SHA-256 hex hash.
type APIKey struct {
	Name        string   `yaml:"name" json:"name"`
	KeyHash     string   `yaml:"key_hash" json:"key_hash"`
	Permissions []string `yaml:"permissions" json:"permissions"`
	Enabled     bool     `yaml:"enabled" json:"enabled"`
}

// NewAPIKey creates an enabled APIKey from a raw key string.
func NewAPIKey(name, rawKey string, permissions []string) APIKey {
	return APIKey{
		Name:        name,
		KeyHash:     HashAPIKey(rawKey),
		Permissions: permissions,
		Enabled:     true,
	}
}

// GenerateAPIKey produces a new random API key in the format lg_<44 url-safe base64 chars>.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 33) // 33 bytes → 44 base64url chars
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return "lg_" + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashAPIKey computes the SHA-256 hex digest of a raw API key.
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether rawKey hashes to this key's hash, in constant time.
func (ak *APIKey) Matches(rawKey string) bool {
	got := HashAPIKey(rawKey)
	return subtle.ConstantTimeCompare([]byte(got), []byte(ak.KeyHash)) == 1
}

// HasPermission returns true when the key is enabled and possesses the required permission.
func (ak *APIKey) HasPermission(required string) bool {
	if !ak.Enabled {
		return false
	}
	for _, p := range ak.Permissions {
		switch p {
		case "*", PermissionAdmin:
			return true
		case PermissionWrite:
			if required == PermissionRead || required == PermissionWrite {
				return true
			}
		case required:
			return true
		}
	}
	return false
}

func isSHA256Hex(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
