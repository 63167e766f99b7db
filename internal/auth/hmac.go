package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignBody computes the hex HMAC-SHA256 of a request body under a
// per-device secret. Devices send this in X-Device-Signature.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyBody checks a device signature in constant time. An empty
// secret means the vehicle was registered without signing and any
// signature is rejected.
func VerifyBody(secret string, body []byte, signature string) bool {
	if secret == "" {
		return false
	}
	expected := SignBody(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
