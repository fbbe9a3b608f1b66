package types

import (
	"encoding/json"
	"fmt"
	"strconv"

	"lukechampine.com/uint128"
)

// AmountSize is the length of a serialized amount in bytes.
const AmountSize = 16

// Amount is an unsigned 128-bit token quantity.
//
// Arithmetic never wraps: CheckedAdd and CheckedSub report whether the
// result is representable and leave the receiver untouched otherwise.
type Amount struct {
	v uint128.Uint128
}

// ZeroAmount is the zero quantity.
var ZeroAmount = Amount{}

// MaxAmount is the largest representable quantity (2^128-1).
var MaxAmount = Amount{v: uint128.Max}

// NewAmount returns an Amount holding v.
func NewAmount(v uint64) Amount {
	return Amount{v: uint128.From64(v)}
}

// AmountFromUint128 wraps a raw uint128 value.
func AmountFromUint128(v uint128.Uint128) Amount {
	return Amount{v: v}
}

// ParseAmount parses a base-10 string into an Amount.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Amount{}, fmt.Errorf("invalid amount %q: not a decimal integer", s)
		}
	}
	v, err := uint128.FromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{v: v}, nil
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromBytes decodes a 16-byte big-endian amount.
func AmountFromBytes(b []byte) (Amount, error) {
	if len(b) != AmountSize {
		return Amount{}, fmt.Errorf("amount must be %d bytes, got %d", AmountSize, len(b))
	}
	return Amount{v: uint128.FromBytesBE(b)}, nil
}

// Bytes returns the 16-byte big-endian encoding of the amount.
func (a Amount) Bytes() []byte {
	b := make([]byte, AmountSize)
	a.v.PutBytesBE(b)
	return b
}

// Uint128 returns the underlying value.
func (a Amount) Uint128() uint128.Uint128 {
	return a.v
}

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(b.v)
}

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool {
	return a.v.Equals(b.v)
}

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool {
	return a.v.Cmp(b.v) < 0
}

// CheckedAdd returns a+b and true, or the zero amount and false on overflow.
func (a Amount) CheckedAdd(b Amount) (Amount, bool) {
	sum := a.v.AddWrap(b.v)
	if sum.Cmp(a.v) < 0 {
		return Amount{}, false
	}
	return Amount{v: sum}, true
}

// CheckedSub returns a-b and true, or the zero amount and false if b > a.
func (a Amount) CheckedSub(b Amount) (Amount, bool) {
	if a.v.Cmp(b.v) < 0 {
		return Amount{}, false
	}
	return Amount{v: a.v.Sub(b.v)}, true
}

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) Amount {
	if a.v.Cmp(b.v) <= 0 {
		return a
	}
	return b
}

// String returns the base-10 representation.
func (a Amount) String() string {
	return a.v.String()
}

// MarshalJSON encodes the amount as a decimal string, since JSON numbers
// cannot carry 128-bit integers losslessly.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a non-negative JSON integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseAmount(s)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", data, err)
	}
	*a = NewAmount(n)
	return nil
}
