package qr

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// tokenEntropyBytes yields >=192 bits of entropy once base64url-encoded.
const tokenEntropyBytes = 24

// newPrintableToken returns a fresh URL-safe token with at least 192 bits
// of entropy.
func newPrintableToken() (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// randomDigits returns a numeric string of exactly n digits, left-padded
// with zeros, used as a biometric card number candidate.
func randomDigits(n int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generating card number: %w", err)
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
