// Package fixed implements signed 256-bit fixed-point numbers with 18
// decimal places. Every operation that can leave the representable range
// reports ErrOverflow instead of wrapping.
package fixed

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional decimal digits carried by Int.
const Decimals = 18

var (
	ErrOverflow       = errors.New("fixed: arithmetic overflow")
	ErrDivisionByZero = errors.New("fixed: division by zero")
	ErrInvalidDecimal = errors.New("fixed: invalid decimal")
)

var (
	scale = uint256.NewInt(1_000_000_000_000_000_000)
	unit  = uint256.NewInt(1)
	// minMagnitude is 2^255, the magnitude of the most negative value.
	minMagnitude = new(uint256.Int).Lsh(uint256.NewInt(1), 255)
)

// Int is a signed fixed-point number: the two's-complement 256-bit integer
// v represents v / 10^18. The zero value is 0 and values compare with ==.
type Int struct {
	v uint256.Int
}

var (
	Zero = Int{}
	One  = Int{v: *uint256.NewInt(1_000_000_000_000_000_000)}
)

// FromInt64 returns n as a fixed-point number (n.000...).
func FromInt64(n int64) Int {
	var mag uint256.Int
	if n < 0 {
		mag.SetUint64(uint64(-(n + 1)) + 1)
	} else {
		mag.SetUint64(uint64(n))
	}
	mag.Mul(&mag, scale)
	if n < 0 {
		mag.Neg(&mag)
	}
	return Int{v: mag}
}

// FromRaw interprets raw as an already scaled integer.
func FromRaw(raw *big.Int) (Int, error) {
	if raw == nil {
		return Zero, nil
	}
	abs := new(big.Int).Abs(raw)
	mag, overflow := uint256.FromBig(abs)
	if overflow {
		return Zero, fmt.Errorf("fixed: from raw %s: %w", raw, ErrOverflow)
	}
	return fromMagnitude(mag, raw.Sign() < 0)
}

// Raw returns the scaled integer backing x.
func (x Int) Raw() *big.Int {
	if !x.negative() {
		return x.v.ToBig()
	}
	mag := x.magnitude()
	return new(big.Int).Neg(mag.ToBig())
}

func (x Int) negative() bool {
	return x.v[3]>>63 == 1
}

// magnitude returns |x| as an unsigned value. The magnitude of the most
// negative number is 2^255, which is representable unsigned.
func (x Int) magnitude() *uint256.Int {
	if !x.negative() {
		return new(uint256.Int).Set(&x.v)
	}
	return new(uint256.Int).Neg(&x.v)
}

func fromMagnitude(mag *uint256.Int, negative bool) (Int, error) {
	if negative {
		if mag.Gt(minMagnitude) {
			return Zero, ErrOverflow
		}
		var out Int
		out.v.Neg(mag)
		return out, nil
	}
	if !mag.Lt(minMagnitude) {
		return Zero, ErrOverflow
	}
	return Int{v: *mag}, nil
}

// Sign returns -1, 0 or +1.
func (x Int) Sign() int {
	switch {
	case x.v.IsZero():
		return 0
	case x.negative():
		return -1
	default:
		return 1
	}
}

// IsZero reports whether x == 0.
func (x Int) IsZero() bool { return x.v.IsZero() }

// Cmp compares x and y and returns -1, 0 or +1.
func (x Int) Cmp(y Int) int {
	switch {
	case x.v.Eq(&y.v):
		return 0
	case x.v.Slt(&y.v):
		return -1
	default:
		return 1
	}
}

func (x Int) LessThan(y Int) bool    { return x.Cmp(y) < 0 }
func (x Int) GreaterThan(y Int) bool { return x.Cmp(y) > 0 }

// Add returns x + y.
func (x Int) Add(y Int) (Int, error) {
	var z Int
	z.v.Add(&x.v, &y.v)
	if x.negative() == y.negative() && z.negative() != x.negative() {
		return Zero, ErrOverflow
	}
	return z, nil
}

// Sub returns x - y.
func (x Int) Sub(y Int) (Int, error) {
	var z Int
	z.v.Sub(&x.v, &y.v)
	if x.negative() != y.negative() && z.negative() != x.negative() {
		return Zero, ErrOverflow
	}
	return z, nil
}

// Neg returns -x. Negating the most negative value overflows.
func (x Int) Neg() (Int, error) {
	return fromMagnitude(x.magnitude(), !x.negative() && !x.IsZero())
}

// Abs returns |x|.
func (x Int) Abs() (Int, error) {
	return fromMagnitude(x.magnitude(), false)
}

// Mul returns x * y rounded toward zero.
func (x Int) Mul(y Int) (Int, error) {
	return mulDiv(x, y, Int{v: *scale})
}

// Div returns x / y rounded toward zero.
func (x Int) Div(y Int) (Int, error) {
	return mulDiv(x, Int{v: *scale}, y)
}

// MulInt multiplies x by the plain integer n.
func (x Int) MulInt(n int64) (Int, error) {
	return mulDiv(x, rawInt(n), Int{v: *unit})
}

// DivInt divides x by the plain integer n.
func (x Int) DivInt(n int64) (Int, error) {
	return mulDiv(x, Int{v: *unit}, rawInt(n))
}

// Min returns the smaller of x and y.
func Min(x, y Int) Int {
	if x.Cmp(y) <= 0 {
		return x
	}
	return y
}

// Max returns the larger of x and y.
func Max(x, y Int) Int {
	if x.Cmp(y) >= 0 {
		return x
	}
	return y
}

// rawInt returns the unscaled integer n as an Int (n / 10^18).
func rawInt(n int64) Int {
	var mag uint256.Int
	if n < 0 {
		mag.SetUint64(uint64(-(n + 1)) + 1)
		mag.Neg(&mag)
	} else {
		mag.SetUint64(uint64(n))
	}
	return Int{v: mag}
}

// mulDiv computes x*y/d over the raw integers with a 512-bit intermediate,
// truncating toward zero like Solidity's signed division.
func mulDiv(x, y, d Int) (Int, error) {
	if d.IsZero() {
		return Zero, ErrDivisionByZero
	}
	negative := x.negative() != y.negative()
	if d.negative() {
		negative = !negative
	}
	q, overflow := new(uint256.Int).MulDivOverflow(x.magnitude(), y.magnitude(), d.magnitude())
	if overflow {
		return Zero, ErrOverflow
	}
	if q.IsZero() {
		return Zero, nil
	}
	return fromMagnitude(q, negative)
}
