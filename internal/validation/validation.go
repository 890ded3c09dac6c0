// Package validation checks account input before it reaches the store.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinPasswordLength = 8
	// MaxPasswordLength is bcrypt's input limit in bytes.
	MaxPasswordLength = 72
	MinNicknameLength = 2
	MaxNicknameLength = 30
	MaxEmailLength    = 254
)

const passwordSpecials = "@$!%*?&#^()_+-=."

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9\-]+(\.[a-zA-Z0-9\-]+)*\.[a-zA-Z]{2,}$`)
	nicknameRegex = regexp.MustCompile(`^[\p{L}\p{N}_-]+$`)
)

// ValidatePassword requires upper and lower case letters, a digit and one of
// passwordSpecials.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must not exceed %d bytes", MaxPasswordLength)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSpecials, r):
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return fmt.Errorf("password must contain at least one uppercase letter")
	case !hasLower:
		return fmt.Errorf("password must contain at least one lowercase letter")
	case !hasDigit:
		return fmt.Errorf("password must contain at least one digit")
	case !hasSpecial:
		return fmt.Errorf("password must contain at least one special character (%s)", passwordSpecials)
	}
	return nil
}

// ValidateNickname checks length in runes and the allowed alphabet.
func ValidateNickname(nickname string) error {
	n := utf8.RuneCountInString(nickname)
	if n < MinNicknameLength {
		return fmt.Errorf("nickname must be at least %d characters long", MinNicknameLength)
	}
	if n > MaxNicknameLength {
		return fmt.Errorf("nickname must not exceed %d characters", MaxNicknameLength)
	}
	if !nicknameRegex.MatchString(nickname) {
		return fmt.Errorf("nickname can only contain letters, numbers, underscores, and hyphens")
	}
	return nil
}

// ValidateEmail checks basic email format
func ValidateEmail(email string) error {
	if len(email) > MaxEmailLength {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// NormalizeEmail lower-cases and trims an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
