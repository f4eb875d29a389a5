package conventions

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PeriodUnit is the unit of a period or cycle.
type PeriodUnit string

const (
	UnitDay      PeriodUnit = "D"
	UnitWeek     PeriodUnit = "W"
	UnitMonth    PeriodUnit = "M"
	UnitQuarter  PeriodUnit = "Q"
	UnitHalfYear PeriodUnit = "H"
	UnitYear     PeriodUnit = "Y"
)

// months returns the number of months in one unit, or 0 for day-based units.
func (u PeriodUnit) months() int {
	switch u {
	case UnitMonth:
		return 1
	case UnitQuarter:
		return 3
	case UnitHalfYear:
		return 6
	case UnitYear:
		return 12
	}
	return 0
}

func (u PeriodUnit) valid() bool {
	switch u {
	case UnitDay, UnitWeek, UnitMonth, UnitQuarter, UnitHalfYear, UnitYear:
		return true
	}
	return false
}

// StubPosition decides what happens to an irregular final period.
type StubPosition string

const (
	StubLong  StubPosition = "LONG"
	StubShort StubPosition = "SHORT"
)

// EndOfMonthConvention decides how anchors on the last day of a month roll.
type EndOfMonthConvention string

const (
	EOMSameDay    EndOfMonthConvention = "SD"
	EOMEndOfMonth EndOfMonthConvention = "EOM"
)

// Period is a length of calendar time such as 3 months or 10 days.
// The zero value is the empty period.
type Period struct {
	Interval int
	Unit     PeriodUnit
}

func (p Period) IsZero() bool { return p.Interval == 0 || p.Unit == "" }

func (p Period) String() string {
	if p.IsZero() {
		return ""
	}
	return strconv.Itoa(p.Interval) + string(p.Unit)
}

// ParsePeriod accepts "3M" or the ISO-like "P3M".
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "P")
	if s == "" {
		return Period{}, nil
	}
	unit := PeriodUnit(s[len(s)-1:])
	if !unit.valid() {
		return Period{}, fmt.Errorf("%w: period unit in %q", ErrUnknownConvention, s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return Period{}, fmt.Errorf("conventions: invalid period %q", s)
	}
	return Period{Interval: n, Unit: unit}, nil
}

func (p Period) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Period) UnmarshalText(b []byte) error {
	v, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Cycle is a recurrence rule: a period plus the stub position of an
// irregular final period. A cycle that is not set, or whose interval is
// zero, generates no cyclic dates.
type Cycle struct {
	Period
	Stub  StubPosition
	IsSet bool
}

// Active reports whether the cycle produces recurring dates.
func (c Cycle) Active() bool {
	return c.IsSet && c.Interval > 0 && c.Unit != ""
}

func (c Cycle) IsZero() bool { return !c.IsSet }

// String formats the cycle in the ACTUS notation "P1ML0": L0 is a short
// stub, L1 a long stub.
func (c Cycle) String() string {
	if !c.IsSet {
		return ""
	}
	stub := "1"
	if c.Stub == StubShort {
		stub = "0"
	}
	return fmt.Sprintf("P%d%sL%s", c.Interval, c.Unit, stub)
}

// ParseCycle accepts "P1ML0" / "P1ML1" as well as the shorthand "1M-"
// (short stub) / "1M+" (long stub). A missing stub means LONG.
func ParseCycle(s string) (Cycle, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Cycle{}, nil
	}
	stub := StubLong
	switch {
	case strings.HasSuffix(s, "L0"), strings.HasSuffix(s, "-"):
		stub = StubShort
		s = strings.TrimSuffix(strings.TrimSuffix(s, "L0"), "-")
	case strings.HasSuffix(s, "L1"), strings.HasSuffix(s, "+"):
		s = strings.TrimSuffix(strings.TrimSuffix(s, "L1"), "+")
	}
	p, err := ParsePeriod(s)
	if err != nil {
		return Cycle{}, fmt.Errorf("conventions: parse cycle: %w", err)
	}
	return Cycle{Period: p, Stub: stub, IsSet: true}, nil
}

func (c Cycle) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Cycle) UnmarshalText(b []byte) error {
	v, err := ParseCycle(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// AddPeriod returns t shifted by p. Month arithmetic clamps to the end of
// the target month, so 31 Jan + 1M is the last day of February.
func AddPeriod(t time.Time, p Period) time.Time {
	return AddPeriodTimes(t, p, 1, EOMSameDay)
}

// AddPeriodTimes returns t + k·p computed directly from t. With EOM and a
// month-based unit, an anchor on the last day of its month lands on the
// last day of every target month.
func AddPeriodTimes(t time.Time, p Period, k int, eom EndOfMonthConvention) time.Time {
	if p.IsZero() || k == 0 {
		return t
	}
	n := p.Interval * k
	switch p.Unit {
	case UnitDay:
		return t.AddDate(0, 0, n)
	case UnitWeek:
		return t.AddDate(0, 0, 7*n)
	}
	months := n * p.Unit.months()
	if eom == EOMEndOfMonth && IsLastDayOfMonth(t) {
		return endOfMonth(t, months)
	}
	return addMonthsClamped(t, months)
}

// SubtractPeriod returns t - p.
func SubtractPeriod(t time.Time, p Period) time.Time {
	return AddPeriodTimes(t, p, -1, EOMSameDay)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	first := time.Date(y, m+time.Month(months), 1, hh, mm, ss, t.Nanosecond(), t.Location())
	if last := lastDayOfMonth(first); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func endOfMonth(t time.Time, months int) time.Time {
	first := addMonthsClamped(time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()), months)
	return time.Date(first.Year(), first.Month(), lastDayOfMonth(first), first.Hour(), first.Minute(), first.Second(), first.Nanosecond(), first.Location())
}
