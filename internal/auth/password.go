package auth

import (
	"errors"
	"fmt"
	"net/mail"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 8

// bcrypt ignores input past 72 bytes.
const maxPasswordLength = 72

var (
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("password must be at most %d bytes", maxPasswordLength)
	ErrInvalidEmail     = errors.New("invalid email address")
)

// dummyHash is compared against when no account matches, so a sign-in
// for an unknown address costs the same as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("\x00reel-sync-dummy"), bcrypt.DefaultCost)

// HashPassword validates and hashes a new password.
func HashPassword(password string) (string, error) {
	if len([]rune(password)) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}

	if len(password) > maxPasswordLength {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	return string(hash), nil
}

// CheckPassword reports whether password matches hash. An empty hash is
// checked against a dummy so the call takes the same time.
func CheckPassword(hash, password string) bool {
	h := []byte(hash)
	if len(h) == 0 {
		h = dummyHash
		_ = bcrypt.CompareHashAndPassword(h, []byte(password))

		return false
	}

	return bcrypt.CompareHashAndPassword(h, []byte(password)) == nil
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return ErrInvalidEmail
	}

	return nil
}
