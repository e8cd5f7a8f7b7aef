package httpserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// SignatureVerifier checks the provider's HMAC-SHA256 signature over the
// raw webhook body. The secret is mandatory: constructing a verifier
// without one is a hard error, so the check can never be silently off.
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	if secret == "" {
		return nil, errors.New("webhook secret must not be empty")
	}
	return &SignatureVerifier{secret: []byte(secret)}, nil
}

// Verify compares the hex-encoded signature in constant time.
func (v *SignatureVerifier) Verify(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
