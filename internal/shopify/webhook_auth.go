package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// VerifySignature checks the X-Shopify-Hmac-Sha256 header against an
// HMAC-SHA256 of the exact raw body bytes. The body must be verified as
// received: re-serializing parsed JSON produces false negatives.
//
// A missing header or unconfigured secret is a normal rejection, never an
// error. The comparison is length-checked then constant-time so response
// timing leaks nothing about the secret.
func VerifySignature(rawBody []byte, signatureHeader, secret string) bool {
	if signatureHeader == "" || secret == "" {
		return false
	}

	received, err := base64.StdEncoding.DecodeString(signatureHeader)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	expected := mac.Sum(nil)

	if len(received) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare(received, expected) == 1
}

// ComputeSignature returns the base64 digest Shopify would send for the
// body. Exported for tests and local webhook replay tooling.
func ComputeSignature(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
