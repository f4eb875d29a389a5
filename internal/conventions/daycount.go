// Package conventions holds the date arithmetic shared by every contract
// type: day-count fractions, business-day shifting, calendars and period
// (cycle) arithmetic.
package conventions

import (
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/actus/internal/fixed"
)

// DayCountConvention selects how a year fraction is computed.
type DayCountConvention string

const (
	DayCountAA         DayCountConvention = "AA"         // Actual/Actual ISDA
	DayCountA360       DayCountConvention = "A360"       // Actual/360
	DayCountA365       DayCountConvention = "A365"       // Actual/365 fixed
	DayCount30E360     DayCountConvention = "30E360"     // 30E/360 (Eurobond)
	DayCount30E360ISDA DayCountConvention = "30E360ISDA" // 30E/360 ISDA
	DayCount28E336     DayCountConvention = "28E336"     // 28E/336
)

var ErrUnknownConvention = errors.New("conventions: unknown convention")

const secondsPerDay = 86400

// Valid reports whether c names a supported convention.
func (c DayCountConvention) Valid() bool {
	switch c {
	case DayCountAA, DayCountA360, DayCountA365, DayCount30E360, DayCount30E360ISDA, DayCount28E336:
		return true
	}
	return false
}

// YearFraction returns the fraction of a year between start and end under
// the given convention. maturity is only consulted by 30E360ISDA. An end
// that does not lie after start yields zero.
func YearFraction(start, end time.Time, dcc DayCountConvention, maturity time.Time) (fixed.Int, error) {
	if !end.After(start) {
		return fixed.Zero, nil
	}
	start, end = start.UTC(), end.UTC()

	switch dcc {
	case DayCountA360:
		return ratio(actualDays(start, end), 360)
	case DayCountA365:
		return ratio(actualDays(start, end), 365)
	case DayCountAA:
		return actualActualISDA(start, end)
	case DayCount30E360:
		return thirtyE360(start, end)
	case DayCount30E360ISDA:
		return thirtyE360ISDA(start, end, maturity)
	case DayCount28E336:
		return twentyEightE336(start, end)
	default:
		return fixed.Zero, fmt.Errorf("%w: day count %q", ErrUnknownConvention, dcc)
	}
}

// actualDays counts whole elapsed days.
func actualDays(start, end time.Time) int64 {
	return (end.Unix() - start.Unix()) / secondsPerDay
}

func ratio(num, den int64) (fixed.Int, error) {
	return fixed.FromInt64(num).DivInt(den)
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func daysInYear(y int) int64 {
	if isLeap(y) {
		return 366
	}
	return 365
}

func actualActualISDA(start, end time.Time) (fixed.Int, error) {
	y1, y2 := start.Year(), end.Year()
	if y1 == y2 {
		return ratio(actualDays(start, end), daysInYear(y1))
	}
	firstEnd := time.Date(y1+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	lastStart := time.Date(y2, time.January, 1, 0, 0, 0, 0, time.UTC)

	head, err := ratio(actualDays(start, firstEnd), daysInYear(y1))
	if err != nil {
		return fixed.Zero, err
	}
	tail, err := ratio(actualDays(lastStart, end), daysInYear(y2))
	if err != nil {
		return fixed.Zero, err
	}
	return fixed.From(head).Add(tail).Add(fixed.FromInt64(int64(y2 - y1 - 1))).Result()
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsLastDayOfMonth reports whether t falls on the final day of its month.
func IsLastDayOfMonth(t time.Time) bool {
	return t.Day() == lastDayOfMonth(t)
}

func days360(y1, m1, d1, y2, m2, d2 int) int64 {
	return int64((y2-y1)*360 + (m2-m1)*30 + (d2 - d1))
}

func thirtyE360(start, end time.Time) (fixed.Int, error) {
	d1, d2 := min(start.Day(), 30), min(end.Day(), 30)
	return ratio(days360(start.Year(), int(start.Month()), d1, end.Year(), int(end.Month()), d2), 360)
}

func thirtyE360ISDA(start, end, maturity time.Time) (fixed.Int, error) {
	d1, d2 := start.Day(), end.Day()
	if IsLastDayOfMonth(start) {
		d1 = 30
	}
	if IsLastDayOfMonth(end) && !(end.Equal(maturity) && end.Month() == time.February) {
		d2 = 30
	}
	return ratio(days360(start.Year(), int(start.Month()), d1, end.Year(), int(end.Month()), d2), 360)
}

func twentyEightE336(start, end time.Time) (fixed.Int, error) {
	d1, d2 := min(start.Day(), 28), min(end.Day(), 28)
	days := int64((end.Year()-start.Year())*336 + (int(end.Month())-int(start.Month()))*28 + (d2 - d1))
	return ratio(days, 336)
}
