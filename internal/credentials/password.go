// Package credentials holds the low-level secret primitives: password
// hashing, API key generation and verification, TOTP and backup codes.
package credentials

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is pinned explicitly. Lowering it silently weakens every
// stored hash, so any change needs a rehash-on-login migration.
const bcryptCost = 10

// ErrVerification is returned for every hash or code verification failure.
// Callers must not learn whether the stored material was malformed or
// simply did not match.
var ErrVerification = errors.New("credentials: verification failed")

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("credentials: password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored bcrypt hash.
// The comparison is constant-time inside the bcrypt library.
func VerifyPassword(password, hash string) error {
	if hash == "" {
		return ErrVerification
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrVerification
	}
	return nil
}
