package fixed

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Parse converts a human decimal such as "0.05" or "-1000000" into an Int.
// Inputs with more than 18 significant fractional digits are rejected.
func Parse(s string) (Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q: %v", ErrInvalidDecimal, s, err)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests. It panics on error.
func MustParse(s string) Int {
	x, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return x
}

// FromDecimal converts d, failing when it carries sub-10^-18 precision.
func FromDecimal(d decimal.Decimal) (Int, error) {
	shifted := d.Shift(Decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return Zero, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidDecimal, d, Decimals)
	}
	x, err := FromRaw(shifted.BigInt())
	if err != nil {
		return Zero, fmt.Errorf("fixed: from decimal %s: %w", d, err)
	}
	return x, nil
}

// Decimal returns x as an exact shopspring decimal.
func (x Int) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(x.Raw(), -Decimals)
}

// String formats x as a plain decimal with trailing zeros trimmed.
func (x Int) String() string {
	return x.Decimal().String()
}

// RawString returns the scaled integer in base 10.
func (x Int) RawString() string {
	return x.Raw().String()
}

func (x Int) MarshalText() ([]byte, error) {
	return []byte(x.String()), nil
}

func (x *Int) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*x = v
	return nil
}

func (x Int) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(x.String())), nil
}

// UnmarshalJSON accepts both quoted decimals and bare JSON numbers.
func (x *Int) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*x = Zero
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidDecimal, b)
		}
		b = []byte(s)
	}
	return x.UnmarshalText(b)
}

// NullInt is an optional Int. Caps and floors in contract terms use it so
// that "unset" and "zero" stay distinct.
type NullInt struct {
	Value Int
	Valid bool
}

// Some returns a set NullInt.
func Some(x Int) NullInt { return NullInt{Value: x, Valid: true} }

// IsZero reports whether n is unset, which lets omitzero drop it.
func (n NullInt) IsZero() bool { return !n.Valid }

func (n NullInt) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return n.Value.MarshalJSON()
}

func (n *NullInt) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*n = NullInt{}
		return nil
	}
	if err := n.Value.UnmarshalJSON(b); err != nil {
		return err
	}
	n.Valid = true
	return nil
}
