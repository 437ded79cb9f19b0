// Package otp issues and verifies one-time codes bound to a (subject, purpose) pair.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
)

const codeDigits = 6

var ten = big.NewInt(10)

// GenerateCode returns a 6-digit numeric code (e.g. "042917") from crypto/rand.
func GenerateCode() (string, error) {
	s := make([]byte, codeDigits)
	for i := range s {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		s[i] = '0' + byte(n.Int64())
	}
	return string(s), nil
}

// HashCode returns the hex SHA-256 of code.
func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// CodeEqual compares the hash of the provided code with storedHash in constant time.
func CodeEqual(provided, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashCode(provided)), []byte(storedHash)) == 1
}
