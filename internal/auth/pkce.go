package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// VerifierLength is the number of random bytes drawn for a code verifier.
const VerifierLength = 64

// EncodeBase64URL encodes raw bytes with the URL-safe base64 alphabet and
// no padding, as required for PKCE parameters.
func EncodeBase64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// GenerateVerifier produces a fresh high-entropy code verifier.
func GenerateVerifier() (string, error) {
	buf := make([]byte, VerifierLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating code verifier: %w", err)
	}
	return EncodeBase64URL(buf), nil
}

// DeriveChallenge computes the S256 code challenge for a verifier.
func DeriveChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return EncodeBase64URL(sum[:])
}
