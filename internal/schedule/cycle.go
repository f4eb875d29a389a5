// Package schedule generates contract event dates from cycles and orders
// the resulting event lists.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/actus/internal/conventions"
)

// MaxCycleDates bounds the dates a single cycle may produce.
const MaxCycleDates = 20_000

var ErrTooManyDates = errors.New("schedule: cycle produces too many dates")

// InSegment reports whether t lies in the half-open range [start, end).
// A zero end leaves the range open.
func InSegment(t, start, end time.Time) bool {
	if t.Before(start) {
		return false
	}
	return end.IsZero() || t.Before(end)
}

// ComputeDatesFromCycleSegment returns the dates of a cycle that fall in
// [segStart, segEnd).
//
// Dates are computed as cycleStart + k·period rather than by repeated
// addition so end-of-month rolls do not drift. Generation stops before
// cycleEnd; addEndTime appends cycleEnd itself. When cycleEnd is not on the
// cycle and the stub is LONG, the last regular date is dropped so the final
// period becomes long. The stub is resolved over the whole cycle before
// filtering, which keeps the result independent of how the range is split.
//
// An inactive cycle contributes only cycleStart and, with addEndTime,
// cycleEnd. A zero cycleEnd means the cycle runs until segEnd.
func ComputeDatesFromCycleSegment(
	cycleStart, cycleEnd time.Time,
	cycle conventions.Cycle,
	eom conventions.EndOfMonthConvention,
	addEndTime bool,
	segStart, segEnd time.Time,
) ([]time.Time, error) {
	if cycleStart.IsZero() {
		return nil, nil
	}

	var all []time.Time
	if !cycle.Active() {
		all = append(all, cycleStart)
		if addEndTime && !cycleEnd.IsZero() && !cycleEnd.Equal(cycleStart) {
			all = append(all, cycleEnd)
		}
		return filter(all, segStart, segEnd), nil
	}

	limit := cycleEnd
	openEnded := limit.IsZero()
	if openEnded {
		if segEnd.IsZero() {
			return nil, fmt.Errorf("schedule: open-ended cycle needs a range end")
		}
		limit = segEnd
	}

	for k := 0; ; k++ {
		if k >= MaxCycleDates {
			return nil, fmt.Errorf("%w: %s from %s", ErrTooManyDates, cycle, cycleStart.Format(time.DateOnly))
		}
		d := conventions.AddPeriodTimes(cycleStart, cycle.Period, k, eom)
		if !d.Before(limit) {
			if !openEnded && d.Equal(cycleEnd) {
				// cycle lands exactly on the end: no stub
				break
			}
			if !openEnded && cycle.Stub == conventions.StubLong && len(all) > 1 {
				all = all[:len(all)-1]
			}
			break
		}
		all = append(all, d)
	}

	if addEndTime && !openEnded {
		all = append(all, cycleEnd)
	}
	return filter(all, segStart, segEnd), nil
}

func filter(dates []time.Time, start, end time.Time) []time.Time {
	out := dates[:0:0]
	for _, d := range dates {
		if InSegment(d, start, end) {
			out = append(out, d)
		}
	}
	return out
}
