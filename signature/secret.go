package signature

import (
	"crypto/rand"
	"encoding/hex"
)

// secretPrefix marks signing secrets so they are recognizable in logs
// and config without revealing anything about the key material.
const secretPrefix = "whsec_"

const secretBytes = 32

// GenerateSecret returns a new random signing secret of the form
// "whsec_" followed by 64 hex characters.
func GenerateSecret() string {
	key := make([]byte, secretBytes)
	if _, err := rand.Read(key); err != nil {
		panic("signature: generating secret: " + err.Error())
	}
	return secretPrefix + hex.EncodeToString(key)
}
