package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 64 hex chars = 32 bytes
const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestNewAESGCMService_ValidKey(t *testing.T) {
	svc, err := NewAESGCMService(testKey)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestNewAESGCMService_BadKeys(t *testing.T) {
	tests := []struct {
		name   string
		hexKey string
	}{
		{"invalid hex", "zzzz"},
		{"too short", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"},
		{"too long", testKey + "00"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewAESGCMService(tt.hexKey)
			assert.Error(t, err)
			assert.Nil(t, svc)
		})
	}
}

func TestNew_EmptyKeyIsNoop(t *testing.T) {
	svc, err := New("")
	require.NoError(t, err)
	assert.IsType(t, NoopService{}, svc)

	out, err := svc.Encrypt("token")
	require.NoError(t, err)
	assert.Equal(t, "token", out)
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	svc, err := NewAESGCMService(testKey)
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("access-token-12345")
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, "access-token")

	plain, err := svc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "access-token-12345", plain)
}

func TestEncrypt_UniqueNonces(t *testing.T) {
	svc, err := NewAESGCMService(testKey)
	require.NoError(t, err)

	a, err := svc.Encrypt("same")
	require.NoError(t, err)
	b, err := svc.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecrypt_Tampered(t *testing.T) {
	svc, err := NewAESGCMService(testKey)
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("secret")
	require.NoError(t, err)

	last := ciphertext[len(ciphertext)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	_, err = svc.Decrypt(ciphertext[:len(ciphertext)-1] + string(flipped))
	assert.Error(t, err)
}

func TestDecrypt_TooShort(t *testing.T) {
	svc, err := NewAESGCMService(testKey)
	require.NoError(t, err)

	_, err = svc.Decrypt("abcd")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}
