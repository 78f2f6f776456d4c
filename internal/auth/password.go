package auth

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PasswordSymbols is the set of symbols a password may, and must at least once, contain.
const PasswordSymbols = "!@#$%^&*"

const (
	minPasswordLen = 8
	maxPasswordLen = 16
)

// ErrPasswordPolicy is returned by ValidatePassword for any policy violation.
var ErrPasswordPolicy = fmt.Errorf(
	"password must be %d-%d characters and include at least one uppercase letter and one special character (%s)",
	minPasswordLen, maxPasswordLen, PasswordSymbols,
)

// ValidatePassword enforces length, the allowed alphabet, and the
// uppercase and symbol requirements.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return ErrPasswordPolicy
	}
	var upper, symbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case strings.ContainsRune(PasswordSymbols, r):
			symbol = true
		default:
			return ErrPasswordPolicy
		}
	}
	if !upper || !symbol {
		return ErrPasswordPolicy
	}
	return nil
}

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
