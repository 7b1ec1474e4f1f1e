// Package auth handles admin token hashing and verification.
package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// HashToken produces a bcrypt hash for storing an admin token at rest.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyToken reports whether a presented token matches the stored hash.
func VerifyToken(hash, token string) bool {
	if hash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
