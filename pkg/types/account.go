package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Account ID length bounds in bytes.
const (
	MinAccountIDLen = 2
	MaxAccountIDLen = 64
)

// ErrInvalidAccountID is returned when an account identifier fails validation.
var ErrInvalidAccountID = errors.New("invalid account id")

// AccountID names a principal holding a balance. Two IDs refer to the same
// account iff their strings are equal; no normalization is applied after
// ParseAccountID accepts them.
type AccountID string

// ParseAccountID validates s and returns it as an AccountID.
//
// Accepted IDs are 2..64 bytes of lowercase letters and digits, split into
// parts by '-', '_' or '.'. Separators may not lead, trail, or follow each
// other (e.g. "alice.near", "token-1_a").
func ParseAccountID(s string) (AccountID, error) {
	if err := validateAccountID(s); err != nil {
		return "", err
	}
	return AccountID(s), nil
}

// MustAccountID is like ParseAccountID but panics on invalid input.
// Intended for constants and tests.
func MustAccountID(s string) AccountID {
	id, err := ParseAccountID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the account ID as a plain string.
func (a AccountID) String() string {
	return string(a)
}

// IsZero returns true for the empty account ID.
func (a AccountID) IsZero() bool {
	return a == ""
}

// Validate reports whether a is a well-formed account ID.
func (a AccountID) Validate() error {
	return validateAccountID(string(a))
}

// UnmarshalJSON decodes and validates an account ID string.
func (a *AccountID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = ""
		return nil
	}
	id, err := ParseAccountID(s)
	if err != nil {
		return err
	}
	*a = id
	return nil
}

func validateAccountID(s string) error {
	if len(s) < MinAccountIDLen || len(s) > MaxAccountIDLen {
		return fmt.Errorf("%w: length %d outside [%d, %d]", ErrInvalidAccountID, len(s), MinAccountIDLen, MaxAccountIDLen)
	}
	lastSep := true // Leading separator is rejected.
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'):
			lastSep = false
		case c == '-' || c == '_' || c == '.':
			if lastSep {
				return fmt.Errorf("%w: misplaced separator at %d in %q", ErrInvalidAccountID, i, s)
			}
			lastSep = true
		default:
			return fmt.Errorf("%w: invalid character %q in %q", ErrInvalidAccountID, c, s)
		}
	}
	if lastSep {
		return fmt.Errorf("%w: trailing separator in %q", ErrInvalidAccountID, s)
	}
	return nil
}
