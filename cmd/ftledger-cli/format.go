package main

import (
	"fmt"
	"strings"

	"github.com/Klingon-tech/ftledger/pkg/types"
)

// formatAmount renders base units as a decimal token amount, trimming
// trailing fractional zeros.
func formatAmount(a types.Amount, decimals uint8) string {
	s := a.String()
	d := int(decimals)
	if d == 0 {
		return s
	}
	if len(s) <= d {
		s = strings.Repeat("0", d-len(s)+1) + s
	}
	whole, frac := s[:len(s)-d], strings.TrimRight(s[len(s)-d:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// parseAmount converts a decimal token amount to base units.
func parseAmount(s string, decimals uint8) (types.Amount, error) {
	if s == "" {
		return types.Amount{}, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return types.Amount{}, fmt.Errorf("negative amount")
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac {
		if frac == "" {
			return types.Amount{}, fmt.Errorf("invalid amount %q", s)
		}
		if len(frac) > int(decimals) {
			return types.Amount{}, fmt.Errorf("too many decimal places (max %d)", decimals)
		}
	}
	// Pad to decimals digits.
	frac += strings.Repeat("0", int(decimals)-len(frac))

	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		digits = "0"
	}
	a, err := types.ParseAmount(digits)
	if err != nil {
		return types.Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return a, nil
}
