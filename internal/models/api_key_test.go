package models_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginguard/internal/models"
)

func TestGenerateAPIKey(t *testing.T) {
	key, err := models.GenerateAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "lg_"), "key must start with lg_")
	assert.Len(t, key, 47, "lg_ (3) + 44 base64url chars = 47")
}

func TestHashAPIKey(t *testing.T) {
	hash1 := models.HashAPIKey("lg_abc123")
	hash2 := models.HashAPIKey("lg_abc123")
	hash3 := models.HashAPIKey("lg_different")
	assert.Equal(t, hash1, hash2, "same input must produce same hash")
	assert.NotEqual(t, hash1, hash3, "different inputs must produce different hashes")
	assert.Len(t, hash1, 64, "SHA-256 hex is 64 characters")
}

func TestAPIKeyMatches(t *testing.T) {
	key := models.NewAPIKey("ops", "lg_right", []string{models.PermissionRead})
	assert.True(t, key.Matches("lg_right"))
	assert.False(t, key.Matches("lg_wrong"))
	assert.False(t, key.Matches(""))
}

func TestAPIKeyHasPermission(t *testing.T) {
	tests := []struct {
		name        string
		permissions []string
		enabled     bool
		check       string
		want        bool
	}{
		{"admin grants read", []string{"admin"}, true, "read", true},
		{"admin grants write", []string{"admin"}, true, "write", true},
		{"write grants read", []string{"write"}, true, "read", true},
		{"write denied admin", []string{"write"}, true, "admin", false},
		{"read only", []string{"read"}, true, "read", true},
		{"read denied write", []string{"read"}, true, "write", false},
		{"wildcard grants all", []string{"*"}, true, "admin", true},
		{"disabled key denied", []string{"admin"}, false, "read", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := &models.APIKey{Permissions: tt.permissions, Enabled: tt.enabled}
			assert.Equal(t, tt.want, key.HasPermission(tt.check))
		})
	}
}
