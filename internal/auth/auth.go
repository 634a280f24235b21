// Package auth holds password hashing and session token primitives.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// SessionDuration is the lifetime of a regular login.
	SessionDuration = 24 * time.Hour
	// RememberMeDuration is the lifetime of a "remember me" login.
	RememberMeDuration = 30 * 24 * time.Hour

	tokenBytes = 32
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateSessionToken returns a random hex token.
func GenerateSessionToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// LifetimeFor picks the session lifetime for a login.
func LifetimeFor(rememberMe bool) time.Duration {
	if rememberMe {
		return RememberMeDuration
	}
	return SessionDuration
}

// NeedsRenewal reports whether a session with the given lifetime has used
// more than half of it by now.
func NeedsRenewal(expiresAt time.Time, lifetime time.Duration, now time.Time) bool {
	return expiresAt.Sub(now) < lifetime/2
}
