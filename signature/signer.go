// Package signature provides HMAC-SHA256 webhook signing and verification.
//
// The signature is computed over the exact raw request body bytes and sent
// hex-encoded in the X-Signature header. Receivers recompute the HMAC over
// the bytes as received; any re-serialization of the JSON breaks it.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 signature of body using secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
