package creem

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifySignature checks a Creem webhook signature: HMAC-SHA256 over the raw
// payload, hex-encoded, compared in constant time.
func VerifySignature(payload, signature, secret string) bool {
	if payload == "" || signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
