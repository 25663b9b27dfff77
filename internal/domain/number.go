package domain

import (
	"math/rand"
	"strings"
)

// Account number prefixes by account type.
const (
	prefixCurrent = "CA"
	prefixSaving  = "SB"

	accountNumberDigits = 12
)

// GenerateAccountNumber produces a candidate account number for the
// given type: "CA" or "SB" followed by 12 random digits. Uniqueness is
// not guaranteed here; the store enforces it at insert time and the
// caller retries on collision.
func GenerateAccountNumber(accountType string) (string, error) {
	var prefix string
	switch strings.ToLower(accountType) {
	case "current":
		prefix = prefixCurrent
	case "saving":
		prefix = prefixSaving
	default:
		return "", ErrInvalidAccountType
	}

	var b strings.Builder
	b.Grow(len(prefix) + accountNumberDigits)
	b.WriteString(prefix)
	for i := 0; i < accountNumberDigits; i++ {
		b.WriteByte(byte('0' + rand.Intn(10)))
	}
	return b.String(), nil
}

// ValidAccountNumber reports whether s has the generated shape:
// a known two-letter prefix followed by exactly 12 digits.
func ValidAccountNumber(s string) bool {
	if len(s) != 2+accountNumberDigits {
		return false
	}
	if p := s[:2]; p != prefixCurrent && p != prefixSaving {
		return false
	}
	for i := 2; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
