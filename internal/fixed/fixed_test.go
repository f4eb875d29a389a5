package fixed

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maxInt() Int {
	raw := new(big.Int).Lsh(big.NewInt(1), 255)
	raw.Sub(raw, big.NewInt(1))
	x, err := FromRaw(raw)
	if err != nil {
		panic(err)
	}
	return x
}

func minInt() Int {
	raw := new(big.Int).Lsh(big.NewInt(1), 255)
	x, err := FromRaw(raw.Neg(raw))
	if err != nil {
		panic(err)
	}
	return x
}

func TestParseAndString(t *testing.T) {
	tests := []struct {
		in   string
		want string
		raw  string
	}{
		{"0", "0", "0"},
		{"1", "1", "1000000000000000000"},
		{"0.05", "0.05", "50000000000000000"},
		{"-1000000", "-1000000", "-1000000000000000000000000"},
		{"1.500", "1.5", "1500000000000000000"},
		{"0.000000000000000001", "0.000000000000000001", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			x, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, x.String())
			assert.Equal(t, tt.raw, x.RawString())
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "0.0000000000000000001", "1e80"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestArithmetic(t *testing.T) {
	a := MustParse("1000000")
	b := MustParse("0.05")

	p, err := a.Mul(b)
	require.NoError(t, err)
	assert.Equal(t, "50000", p.String())

	q, err := a.Div(MustParse("3"))
	require.NoError(t, err)
	assert.Equal(t, "333333.333333333333333333", q.String())

	n, err := MustParse("-7").Div(MustParse("2"))
	require.NoError(t, err)
	assert.Equal(t, "-3.5", n.String())

	// truncation toward zero on both signs
	tiny := MustParse("0.000000000000000001")
	h, err := tiny.Div(MustParse("2"))
	require.NoError(t, err)
	assert.True(t, h.IsZero())
	h, err = tiny.Neg()
	require.NoError(t, err)
	h, err = h.Div(MustParse("2"))
	require.NoError(t, err)
	assert.True(t, h.IsZero())

	m, err := MustParse("2.5").MulInt(-4)
	require.NoError(t, err)
	assert.Equal(t, FromInt64(-10), m)

	d, err := MustParse("10").DivInt(4)
	require.NoError(t, err)
	assert.Equal(t, "2.5", d.String())
}

func TestOverflowDetection(t *testing.T) {
	hi, lo := maxInt(), minInt()

	_, err := hi.Add(Int{v: *unit})
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = lo.Sub(Int{v: *unit})
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = lo.Neg()
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = hi.Mul(MustParse("2"))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = lo.Mul(MustParse("-1"))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = hi.Div(MustParse("0.5"))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = One.Div(Zero)
	assert.ErrorIs(t, err, ErrDivisionByZero)

	// the extremes themselves are representable
	v, err := lo.Mul(One)
	require.NoError(t, err)
	assert.Equal(t, lo, v)
	sum, err := hi.Add(lo)
	require.NoError(t, err)
	assert.Equal(t, "-0.000000000000000001", sum.String())
}

func TestCompare(t *testing.T) {
	a, b := MustParse("-1"), MustParse("2")
	assert.Equal(t, -1, a.Cmp(b))
	assert.Equal(t, 1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(MustParse("-1.0")))
	assert.Equal(t, a, Min(a, b))
	assert.Equal(t, b, Max(a, b))
	assert.Equal(t, -1, a.Sign())
	assert.Equal(t, 0, Zero.Sign())
	assert.True(t, minInt().LessThan(maxInt()))
}

func TestCalcPropagatesFirstError(t *testing.T) {
	v, err := From(MustParse("1000000")).Mul(MustParse("0.05")).Mul(MustParse("0.2")).Add(MustParse("100")).Result()
	require.NoError(t, err)
	assert.Equal(t, "10100", v.String())

	_, err = From(One).Div(Zero).Add(One).Mul(maxInt()).Result()
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = From(maxInt()).Add(maxInt()).Div(Zero).Result()
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestJSON(t *testing.T) {
	type doc struct {
		A Int     `json:"a"`
		B NullInt `json:"b,omitzero"`
		C NullInt `json:"c"`
	}
	out, err := json.Marshal(doc{A: MustParse("-12.5"), C: Some(Zero)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"-12.5","c":"0"}`, string(out))

	var in doc
	require.NoError(t, json.Unmarshal([]byte(`{"a":0.25,"b":"3","c":null}`), &in))
	assert.Equal(t, MustParse("0.25"), in.A)
	assert.Equal(t, Some(FromInt64(3)), in.B)
	assert.False(t, in.C.Valid)
}
