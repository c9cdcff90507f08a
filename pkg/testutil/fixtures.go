package testutil

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// MustDecimal parses a decimal literal, failing the test on malformed input.
func MustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

// Date builds a UTC midnight timestamp for fixture rows.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DatePtr is Date returning a pointer, for nullable date columns.
func DatePtr(year int, month time.Month, day int) *time.Time {
	d := Date(year, month, day)
	return &d
}

// StrPtr returns a pointer to s, for nullable text columns.
func StrPtr(s string) *string {
	return &s
}
