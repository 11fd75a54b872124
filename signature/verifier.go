package signature

import "crypto/hmac"

// Verify reports whether sig matches the expected HMAC-SHA256 signature of
// body under secret. Comparison is constant-time.
func Verify(body []byte, secret, sig string) bool {
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(sig))
}
