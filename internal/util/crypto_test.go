package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	t.Run("prefixes and hex encodes", func(t *testing.T) {
		key, err := GenerateAPIKey("drv")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(key, "drv_"))
		assert.Len(t, key, len("drv_")+48)
	})

	t.Run("defaults prefix", func(t *testing.T) {
		key, err := GenerateAPIKey("")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(key, "key_"))
	})

	t.Run("generates unique keys", func(t *testing.T) {
		key1, _ := GenerateAPIKey("key")
		key2, _ := GenerateAPIKey("key")
		assert.NotEqual(t, key1, key2)
	})
}

func TestHashToken(t *testing.T) {
	t.Run("returns 64 character hex string", func(t *testing.T) {
		hash := HashToken("test-token")
		assert.Len(t, hash, 64)
	})

	t.Run("same input produces same hash", func(t *testing.T) {
		hash1 := HashToken("test-token")
		hash2 := HashToken("test-token")
		assert.Equal(t, hash1, hash2)
	})

	t.Run("different input produces different hash", func(t *testing.T) {
		hash1 := HashToken("token-1")
		hash2 := HashToken("token-2")
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("produces expected SHA-256", func(t *testing.T) {
		assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashToken(""))
	})
}

func TestConstantTimeEqual(t *testing.T) {
	t.Run("returns true for equal strings", func(t *testing.T) {
		assert.True(t, ConstantTimeEqual("abc", "abc"))
	})

	t.Run("returns false for different strings", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("abc", "def"))
	})

	t.Run("returns false for different lengths", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("abc", "abcd"))
	})
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", MaskKey("short"))
	assert.Equal(t, "key_0123****", MaskKey("key_0123456789"))
}
