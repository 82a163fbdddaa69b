package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const gcmTagSize = 16

var hexKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// Cipher is the secret capability: authenticated encryption for access
// tokens at rest. Blobs are base64url(iv | tag | ciphertext) so they stay
// interchangeable with tokens written by the connect flow.
type Cipher struct {
	key []byte
}

// NewCipher accepts a hex or base64 encoded 128/192/256-bit key.
func NewCipher(encoded string) (*Cipher, error) {
	encoded = strings.Trim(strings.TrimSpace(encoded), `"'`)
	if encoded == "" {
		return nil, errors.New("encryption key is not configured")
	}

	var key []byte
	var err error
	if hexKeyPattern.MatchString(encoded) {
		key, err = hex.DecodeString(encoded)
	} else {
		key, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			key, err = base64.RawStdEncoding.DecodeString(encoded)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}

	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, errors.New("encryption key must decode to a 128/192/256 bit key")
	}
	return &Cipher{key: key}, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	gcm, err := c.newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	out := make([]byte, 0, len(nonce)+gcmTagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Decrypt fails loudly on tampering or a key mismatch; callers treat that
// as a hard error, not a missing token.
func (c *Cipher) Decrypt(blob string) (string, error) {
	raw, err := decodeBlob(blob)
	if err != nil {
		return "", fmt.Errorf("decode token blob: %w", err)
	}

	gcm, err := c.newGCM()
	if err != nil {
		return "", err
	}

	ns := gcm.NonceSize()
	if len(raw) < ns+gcmTagSize {
		return "", errors.New("ciphertext too short")
	}

	nonce := raw[:ns]
	tag := raw[ns : ns+gcmTagSize]
	ct := raw[ns+gcmTagSize:]

	sealed := make([]byte, 0, len(ct)+gcmTagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	pt, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("token decryption failed (key mismatch or tampered blob): %w", err)
	}
	return string(pt), nil
}

func (c *Cipher) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func decodeBlob(blob string) ([]byte, error) {
	blob = strings.TrimSpace(blob)
	if raw, err := base64.RawURLEncoding.DecodeString(blob); err == nil {
		return raw, nil
	}
	return base64.StdEncoding.DecodeString(blob)
}
