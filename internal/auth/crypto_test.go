package auth

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipherWithIterations("unit-test-secret", 1000)
	require.NoError(t, err)
	return c
}

func TestCipherRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, token := range []string{
		"a",
		"ya29.a0AfH6SMBx-access-token",
		strings.Repeat("refresh-", 64),
		"ünïcödé token ✓",
	} {
		encrypted, err := c.Encrypt(token)
		require.NoError(t, err)
		assert.NotEqual(t, token, encrypted)

		decrypted, err := c.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, token, decrypted)
	}
}

func TestCipherEmptyValues(t *testing.T) {
	c := newTestCipher(t)

	encrypted, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, encrypted)

	decrypted, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, decrypted)
}

func TestCipherLayout(t *testing.T) {
	c := newTestCipher(t)

	encrypted, err := c.Encrypt("token-value")
	require.NoError(t, err)

	raw, err := hex.DecodeString(encrypted)
	require.NoError(t, err)
	assert.Len(t, raw, saltLength+ivLength+tagLength+len("token-value"))
}

func TestCipherUsesFreshSaltPerEncryption(t *testing.T) {
	c := newTestCipher(t)

	first, err := c.Encrypt("same-token")
	require.NoError(t, err)
	second, err := c.Encrypt("same-token")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.NotEqual(t, first[:saltLength*2], second[:saltLength*2])
}

func TestCipherRejectsTampering(t *testing.T) {
	c := newTestCipher(t)

	encrypted, err := c.Encrypt("token-value")
	require.NoError(t, err)

	raw, err := hex.DecodeString(encrypted)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	_, err = c.Decrypt(hex.EncodeToString(raw))
	require.Error(t, err)
}

func TestCipherRejectsWrongSecret(t *testing.T) {
	c := newTestCipher(t)
	other, err := NewCipherWithIterations("another-secret", 1000)
	require.NoError(t, err)

	encrypted, err := c.Encrypt("token-value")
	require.NoError(t, err)

	_, err = other.Decrypt(encrypted)
	require.Error(t, err)
}

func TestCipherRejectsMalformedInput(t *testing.T) {
	c := newTestCipher(t)

	_, err := c.Decrypt("not-hex")
	require.Error(t, err)

	_, err = c.Decrypt("abcd")
	require.ErrorIs(t, err, ErrCiphertextLength)
}

func TestNewCipherRequiresSecret(t *testing.T) {
	_, err := NewCipher("")
	require.ErrorIs(t, err, ErrEmptySecret)
}
