package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateAccountNumberPrefixes(t *testing.T) {
	tests := []struct {
		accountType string
		prefix      string
	}{
		{"saving", "SB"},
		{"Saving", "SB"},
		{"SAVING", "SB"},
		{"current", "CA"},
		{"Current", "CA"},
	}

	for _, tc := range tests {
		number, err := GenerateAccountNumber(tc.accountType)
		if err != nil {
			t.Fatalf("GenerateAccountNumber(%q) err=%v", tc.accountType, err)
		}
		if !strings.HasPrefix(number, tc.prefix) {
			t.Errorf("GenerateAccountNumber(%q)=%q, want prefix %q", tc.accountType, number, tc.prefix)
		}
		if len(number) != 14 {
			t.Errorf("GenerateAccountNumber(%q)=%q, want length 14", tc.accountType, number)
		}
		if !ValidAccountNumber(number) {
			t.Errorf("generated number %q fails ValidAccountNumber", number)
		}
	}
}

func TestGenerateAccountNumberUnknownType(t *testing.T) {
	if _, err := GenerateAccountNumber("checking"); !errors.Is(err, ErrInvalidAccountType) {
		t.Fatalf("want ErrInvalidAccountType, got %v", err)
	}
	if _, err := GenerateAccountNumber(""); !errors.Is(err, ErrInvalidAccountType) {
		t.Fatalf("want ErrInvalidAccountType, got %v", err)
	}
}

func TestValidAccountNumber(t *testing.T) {
	tests := []struct {
		number string
		want   bool
	}{
		{"SB123456789012", true},
		{"CA000000000000", true},
		{"XX123456789012", false}, // unknown prefix
		{"SB12345678901", false},  // too short
		{"SB1234567890123", false},
		{"SB12345678901a", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := ValidAccountNumber(tc.number); got != tc.want {
			t.Errorf("ValidAccountNumber(%q)=%v want=%v", tc.number, got, tc.want)
		}
	}
}
