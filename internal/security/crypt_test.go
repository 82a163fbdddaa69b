package security

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hexKey256 = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestEncryptDecryptRoundtrip(t *testing.T) {
	c, err := NewCipher(hexKey256)
	require.NoError(t, err)

	blob, err := c.Encrypt("shpat_example_token_value")
	require.NoError(t, err)
	assert.NotContains(t, blob, "shpat")

	got, err := c.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, "shpat_example_token_value", got)
}

func TestDecryptRejectsTamperedBlob(t *testing.T) {
	c, err := NewCipher(hexKey256)
	require.NoError(t, err)

	blob, err := c.Encrypt("secret")
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.RawURLEncoding.EncodeToString(raw)

	_, err = c.Decrypt(tampered)
	assert.Error(t, err)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	c1, err := NewCipher(hexKey256)
	require.NoError(t, err)
	c2, err := NewCipher("1f1e1d1c1b1a191817161514131211100f0e0d0c0b0a09080706050403020100")
	require.NoError(t, err)

	blob, err := c1.Encrypt("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(blob)
	assert.Error(t, err)
}

func TestDecryptRejectsShortBlob(t *testing.T) {
	c, err := NewCipher(hexKey256)
	require.NoError(t, err)

	_, err = c.Decrypt(base64.RawURLEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestNewCipherKeyEncodings(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	_, err := NewCipher(base64.StdEncoding.EncodeToString(key))
	assert.NoError(t, err, "base64 key")

	_, err = NewCipher(hexKey256)
	assert.NoError(t, err, "hex key")

	_, err = NewCipher("")
	assert.Error(t, err, "empty key")

	_, err = NewCipher("deadbeef")
	assert.Error(t, err, "wrong key length")
}
