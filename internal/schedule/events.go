package schedule

import (
	"slices"
	"time"

	"github.com/alanyoungcy/actus/internal/conventions"
	"github.com/alanyoungcy/actus/internal/domain"
)

// Sort orders events in place by (schedule time, type code).
func Sort(events []domain.Event) {
	slices.SortStableFunc(events, compare)
}

func compare(a, b domain.Event) int {
	switch {
	case domain.Less(a, b):
		return -1
	case domain.Less(b, a):
		return 1
	}
	return 0
}

// IsSorted reports whether events are in schedule order.
func IsSorted(events []domain.Event) bool {
	return slices.IsSortedFunc(events, compare)
}

// Dedup drops unset entries and adjacent duplicates from a sorted list.
func Dedup(events []domain.Event) []domain.Event {
	out := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if ev.IsNone() || ev.ScheduleTime.IsZero() {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Equal(ev) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Merge combines several event lists into one sorted, deduplicated list.
func Merge(lists ...[]domain.Event) []domain.Event {
	var all []domain.Event
	for _, l := range lists {
		all = append(all, l...)
	}
	Sort(all)
	return Dedup(all)
}

// Window returns the whole-life range of a contract: from the status date
// to one second past maturity, so the maturity event itself is included.
// Contracts without a maturity use horizon as the range end.
func Window(terms domain.Terms, horizon time.Time) (start, end time.Time) {
	start = terms.StatusDate
	switch {
	case !terms.MaturityDate.IsZero():
		end = terms.MaturityDate.Add(time.Second)
	default:
		end = horizon
	}
	return start, end
}

// Builder accumulates events for one range. Dates outside the range are
// dropped as they are added.
type Builder struct {
	start, end time.Time
	events     []domain.Event
	err        error
}

func NewBuilder(start, end time.Time) *Builder {
	return &Builder{start: start, end: end}
}

// Add schedules a one-off event if t is set and inside the range.
func (b *Builder) Add(typ domain.EventType, t time.Time) {
	if t.IsZero() || !InSegment(t, b.start, b.end) {
		return
	}
	b.events = append(b.events, domain.NewEvent(typ, t))
}

// AddCycle schedules one event per cycle date.
func (b *Builder) AddCycle(
	typ domain.EventType,
	anchor, cycleEnd time.Time,
	cycle conventions.Cycle,
	eom conventions.EndOfMonthConvention,
	addEndTime bool,
) {
	if b.err != nil {
		return
	}
	dates, err := ComputeDatesFromCycleSegment(anchor, cycleEnd, cycle, eom, addEndTime, b.start, b.end)
	if err != nil {
		b.err = err
		return
	}
	for _, d := range dates {
		b.events = append(b.events, domain.NewEvent(typ, d))
	}
}

// AddOffset schedules an event of type typ at each date shifted by p. The
// dates themselves are not range-filtered, only the shifted results.
func (b *Builder) AddOffset(typ domain.EventType, p conventions.Period, dates []time.Time) {
	for _, d := range dates {
		b.Add(typ, conventions.AddPeriod(d, p))
	}
}

// Events returns the sorted, deduplicated schedule.
func (b *Builder) Events() ([]domain.Event, error) {
	if b.err != nil {
		return nil, b.err
	}
	return Merge(b.events), nil
}
