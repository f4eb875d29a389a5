package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/actus/internal/conventions"
	"github.com/alanyoungcy/actus/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func monthly(stub conventions.StubPosition) conventions.Cycle {
	return conventions.Cycle{Period: conventions.Period{Interval: 1, Unit: conventions.UnitMonth}, Stub: stub, IsSet: true}
}

func TestCycleRegular(t *testing.T) {
	got, err := ComputeDatesFromCycleSegment(date(2024, 1, 15), date(2024, 5, 15), monthly(conventions.StubLong),
		conventions.EOMSameDay, true, date(2024, 1, 1), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		date(2024, 1, 15), date(2024, 2, 15), date(2024, 3, 15), date(2024, 4, 15), date(2024, 5, 15),
	}, got)
}

func TestCycleStubs(t *testing.T) {
	start, end := date(2024, 1, 1), date(2024, 4, 20)

	long, err := ComputeDatesFromCycleSegment(start, end, monthly(conventions.StubLong), conventions.EOMSameDay, true, start, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, 1, 1), date(2024, 2, 1), date(2024, 3, 1), end}, long)

	short, err := ComputeDatesFromCycleSegment(start, end, monthly(conventions.StubShort), conventions.EOMSameDay, true, start, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, 1, 1), date(2024, 2, 1), date(2024, 3, 1), date(2024, 4, 1), end}, short)

	noEnd, err := ComputeDatesFromCycleSegment(start, end, monthly(conventions.StubShort), conventions.EOMSameDay, false, start, time.Time{})
	require.NoError(t, err)
	assert.Len(t, noEnd, 4)
}

func TestCycleEndOfMonth(t *testing.T) {
	anchor := date(2024, 1, 31)
	sd, err := ComputeDatesFromCycleSegment(anchor, date(2024, 5, 1), monthly(conventions.StubShort), conventions.EOMSameDay, false, anchor, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, 1, 31), date(2024, 2, 29), date(2024, 3, 31), date(2024, 4, 30)}, sd,
		"anchor-based generation does not drift to the 29th")

	feb := date(2023, 2, 28)
	eom, err := ComputeDatesFromCycleSegment(feb, date(2023, 5, 1), monthly(conventions.StubShort), conventions.EOMEndOfMonth, false, feb, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2023, 2, 28), date(2023, 3, 31), date(2023, 4, 30)}, eom)
}

func TestInactiveCycle(t *testing.T) {
	start, end := date(2024, 1, 1), date(2025, 1, 1)

	got, err := ComputeDatesFromCycleSegment(start, end, conventions.Cycle{}, conventions.EOMSameDay, true, start, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{start, end}, got)

	zero := conventions.Cycle{Period: conventions.Period{Unit: conventions.UnitMonth}, IsSet: true}
	got, err = ComputeDatesFromCycleSegment(start, end, zero, conventions.EOMSameDay, false, start, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{start}, got)

	got, err = ComputeDatesFromCycleSegment(time.Time{}, end, monthly(conventions.StubLong), conventions.EOMSameDay, true, start, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpenEndedCycle(t *testing.T) {
	q := conventions.Cycle{Period: conventions.Period{Interval: 1, Unit: conventions.UnitQuarter}, IsSet: true}
	got, err := ComputeDatesFromCycleSegment(date(2024, 1, 1), time.Time{}, q, conventions.EOMSameDay, false,
		date(2024, 1, 1), date(2025, 1, 1))
	require.NoError(t, err)
	assert.Len(t, got, 4)

	_, err = ComputeDatesFromCycleSegment(date(2024, 1, 1), time.Time{}, q, conventions.EOMSameDay, false,
		date(2024, 1, 1), time.Time{})
	assert.Error(t, err)
}

func TestTooManyDates(t *testing.T) {
	daily := conventions.Cycle{Period: conventions.Period{Interval: 1, Unit: conventions.UnitDay}, IsSet: true}
	_, err := ComputeDatesFromCycleSegment(date(1900, 1, 1), date(2100, 1, 1), daily, conventions.EOMSameDay, false,
		date(1900, 1, 1), time.Time{})
	assert.ErrorIs(t, err, ErrTooManyDates)
}

func TestPartitionProperty(t *testing.T) {
	anchor, end := date(2024, 1, 31), date(2026, 7, 15)
	cyc := monthly(conventions.StubLong)
	whole, err := ComputeDatesFromCycleSegment(anchor, end, cyc, conventions.EOMEndOfMonth, true, anchor, end.Add(time.Second))
	require.NoError(t, err)

	cuts := []time.Time{anchor, date(2024, 3, 31), date(2024, 9, 10), date(2026, 6, 30), end.Add(time.Second)}
	var joined []time.Time
	for i := 0; i+1 < len(cuts); i++ {
		part, err := ComputeDatesFromCycleSegment(anchor, end, cyc, conventions.EOMEndOfMonth, true, cuts[i], cuts[i+1])
		require.NoError(t, err)
		joined = append(joined, part...)
	}
	assert.Equal(t, whole, joined)
}

func TestMergeSortsAndDedups(t *testing.T) {
	t1, t2 := date(2024, 1, 1), date(2024, 2, 1)
	got := Merge(
		[]domain.Event{domain.NewEvent(domain.EventIP, t2), domain.NewEvent(domain.EventIED, t1)},
		[]domain.Event{domain.NewEvent(domain.EventIP, t2), domain.NewEvent(domain.EventFP, t2), {Type: domain.EventMD}},
	)
	assert.Equal(t, []domain.Event{
		domain.NewEvent(domain.EventIED, t1),
		domain.NewEvent(domain.EventFP, t2),
		domain.NewEvent(domain.EventIP, t2),
	}, got)
	assert.True(t, IsSorted(got))
	assert.False(t, IsSorted([]domain.Event{got[2], got[0]}))
}

func TestBuilderFiltersRange(t *testing.T) {
	b := NewBuilder(date(2024, 1, 1), date(2024, 6, 1))
	b.Add(domain.EventIED, date(2023, 12, 31))
	b.Add(domain.EventMD, date(2024, 6, 1))
	b.Add(domain.EventTD, time.Time{})
	b.AddCycle(domain.EventIP, date(2023, 11, 1), date(2024, 12, 1), monthly(conventions.StubLong), conventions.EOMSameDay, true)
	b.AddOffset(domain.EventDV, conventions.Period{Interval: 10, Unit: conventions.UnitDay}, []time.Time{date(2024, 5, 25), date(2023, 12, 25)})

	events, err := b.Events()
	require.NoError(t, err)
	var types []domain.EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventIP, domain.EventDV, domain.EventIP, domain.EventIP, domain.EventIP, domain.EventIP,
	}, types)
	assert.Equal(t, date(2024, 1, 1), events[0].ScheduleTime)
	assert.Equal(t, date(2024, 1, 4), events[1].ScheduleTime)
}

func TestWindow(t *testing.T) {
	terms := domain.Terms{StatusDate: date(2024, 1, 1), MaturityDate: date(2025, 1, 1)}
	start, end := Window(terms, date(2030, 1, 1))
	assert.Equal(t, date(2024, 1, 1), start)
	assert.Equal(t, date(2025, 1, 1).Add(time.Second), end)

	terms.MaturityDate = time.Time{}
	_, end = Window(terms, date(2030, 1, 1))
	assert.Equal(t, date(2030, 1, 1), end)
}
