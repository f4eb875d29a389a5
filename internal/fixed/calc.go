package fixed

// Calc threads the first arithmetic error through a chain of operations so
// that payoff formulas read like the algebra they implement:
//
//	v, err := fixed.From(rate).Mul(yf).Mul(notional).Add(accrued).Result()
type Calc struct {
	v   Int
	err error
}

// From starts a calculation at x.
func From(x Int) Calc { return Calc{v: x} }

// Failed starts a calculation that already carries err.
func Failed(err error) Calc { return Calc{err: err} }

func (c Calc) apply(f func(Int) (Int, error)) Calc {
	if c.err != nil {
		return c
	}
	v, err := f(c.v)
	return Calc{v: v, err: err}
}

func (c Calc) Add(y Int) Calc { return c.apply(func(x Int) (Int, error) { return x.Add(y) }) }
func (c Calc) Sub(y Int) Calc { return c.apply(func(x Int) (Int, error) { return x.Sub(y) }) }
func (c Calc) Mul(y Int) Calc { return c.apply(func(x Int) (Int, error) { return x.Mul(y) }) }
func (c Calc) Div(y Int) Calc { return c.apply(func(x Int) (Int, error) { return x.Div(y) }) }

func (c Calc) MulInt(n int64) Calc {
	return c.apply(func(x Int) (Int, error) { return x.MulInt(n) })
}

func (c Calc) DivInt(n int64) Calc {
	return c.apply(func(x Int) (Int, error) { return x.DivInt(n) })
}

func (c Calc) Neg() Calc { return c.apply(Int.Neg) }
func (c Calc) Abs() Calc { return c.apply(Int.Abs) }

func (c Calc) Min(y Int) Calc {
	return c.apply(func(x Int) (Int, error) { return Min(x, y), nil })
}

func (c Calc) Max(y Int) Calc {
	return c.apply(func(x Int) (Int, error) { return Max(x, y), nil })
}

// AddCalc adds the result of another calculation, keeping whichever error
// occurred first.
func (c Calc) AddCalc(o Calc) Calc {
	if c.err != nil {
		return c
	}
	if o.err != nil {
		return o
	}
	return c.Add(o.v)
}

// SubCalc subtracts the result of another calculation.
func (c Calc) SubCalc(o Calc) Calc {
	if c.err != nil {
		return c
	}
	if o.err != nil {
		return o
	}
	return c.Sub(o.v)
}

// Err returns the first error encountered.
func (c Calc) Err() error { return c.err }

// Result returns the value and the first error encountered.
func (c Calc) Result() (Int, error) {
	if c.err != nil {
		return Zero, c.err
	}
	return c.v, nil
}
