package conventions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/actus/internal/fixed"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestYearFraction(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		dcc        DayCountConvention
		maturity   time.Time
		want       string
	}{
		{"A365 73 days", time.Unix(0, 0), time.Unix(6307200, 0), DayCountA365, time.Time{}, "0.2"},
		{"A360 90 days", date(2024, 1, 1), date(2024, 3, 31), DayCountA360, time.Time{}, "0.25"},
		{"AA leap year", date(2024, 1, 1), date(2025, 1, 1), DayCountAA, time.Time{}, "1"},
		{"AA across years", date(2023, 7, 2), date(2024, 7, 2), DayCountAA, time.Time{},
			"1.00136986301369863"},
		{"30E360 month ends", date(2024, 1, 31), date(2024, 2, 29), DayCount30E360, time.Time{},
			"0.080555555555555555"},
		{"30E360ISDA feb end", date(2024, 1, 31), date(2024, 2, 29), DayCount30E360ISDA, time.Time{},
			"0.083333333333333333"},
		{"30E360ISDA feb maturity", date(2024, 1, 31), date(2024, 2, 29), DayCount30E360ISDA, date(2024, 2, 29),
			"0.080555555555555555"},
		{"28E336 one month", date(2024, 1, 31), date(2024, 2, 29), DayCount28E336, time.Time{},
			"0.083333333333333333"},
		{"end before start", date(2024, 2, 1), date(2024, 1, 1), DayCountA365, time.Time{}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yf, err := YearFraction(tt.start, tt.end, tt.dcc, tt.maturity)
			require.NoError(t, err)
			assert.Equal(t, tt.want, yf.String())
		})
	}

	_, err := YearFraction(date(2024, 1, 1), date(2024, 2, 1), "ACT/ACT", time.Time{})
	assert.ErrorIs(t, err, ErrUnknownConvention)
}

func TestShiftEventTime(t *testing.T) {
	mf := mondayToFriday{}
	sat := date(2024, 8, 31) // Saturday, last day of the month
	sun := date(2024, 6, 2)  // Sunday, start of the month

	assert.Equal(t, sat, ShiftEventTime(sat, BDCNull, mf))
	assert.Equal(t, date(2024, 9, 2), ShiftEventTime(sat, BDCSCF, mf))
	assert.Equal(t, date(2024, 8, 30), ShiftEventTime(sat, BDCSCMF, mf))
	assert.Equal(t, date(2024, 5, 31), ShiftEventTime(sun, BDCCSP, mf))
	assert.Equal(t, date(2024, 6, 3), ShiftEventTime(sun, BDCSCMP, mf))

	// CS conventions accrue to the unshifted date
	assert.Equal(t, sat, ShiftCalcTime(sat, BDCCSF, mf))
	assert.Equal(t, date(2024, 9, 2), ShiftCalcTime(sat, BDCSCF, mf))
}

func TestHolidayCalendar(t *testing.T) {
	set := NewCalendarSet()
	set.Register("TARGET", NewHolidayCalendar(date(2024, 12, 25), date(2024, 12, 26)))

	cal, err := set.Lookup("TARGET")
	require.NoError(t, err)
	assert.False(t, cal.IsBusinessDay(date(2024, 12, 25)))
	assert.True(t, cal.IsBusinessDay(date(2024, 12, 27)))
	assert.Equal(t, date(2024, 12, 27), ShiftEventTime(date(2024, 12, 25), BDCSCF, cal))

	nc, err := set.Lookup("")
	require.NoError(t, err)
	assert.True(t, nc.IsBusinessDay(date(2024, 12, 25)))

	_, err = set.Lookup("XX")
	assert.ErrorIs(t, err, ErrUnknownConvention)
	assert.Equal(t, []CalendarID{"MF", "NC", "TARGET"}, set.IDs())
}

func TestAddPeriod(t *testing.T) {
	jan31 := date(2023, 1, 31)
	assert.Equal(t, date(2023, 2, 28), AddPeriod(jan31, Period{1, UnitMonth}))
	assert.Equal(t, date(2024, 2, 29), AddPeriod(date(2024, 1, 31), Period{1, UnitMonth}))
	assert.Equal(t, date(2023, 4, 30), AddPeriod(jan31, Period{1, UnitQuarter}))
	assert.Equal(t, date(2023, 2, 14), AddPeriod(jan31, Period{2, UnitWeek}))
	assert.Equal(t, date(2024, 1, 31), AddPeriod(jan31, Period{1, UnitYear}))

	// same-day keeps the anchor day where it exists, EOM rolls to month end
	feb28 := date(2023, 2, 28)
	assert.Equal(t, date(2023, 5, 28), AddPeriodTimes(feb28, Period{1, UnitMonth}, 3, EOMSameDay))
	assert.Equal(t, date(2023, 5, 31), AddPeriodTimes(feb28, Period{1, UnitMonth}, 3, EOMEndOfMonth))
	// EOM never applies to day-based units
	assert.Equal(t, date(2023, 3, 3), AddPeriodTimes(feb28, Period{3, UnitDay}, 1, EOMEndOfMonth))

	assert.Equal(t, date(2022, 12, 31), SubtractPeriod(jan31, Period{1, UnitMonth}))
}

func TestParseCycle(t *testing.T) {
	tests := []struct {
		in   string
		want Cycle
	}{
		{"P1ML0", Cycle{Period{1, UnitMonth}, StubShort, true}},
		{"P3ML1", Cycle{Period{3, UnitMonth}, StubLong, true}},
		{"1Y-", Cycle{Period{1, UnitYear}, StubShort, true}},
		{"6M+", Cycle{Period{6, UnitMonth}, StubLong, true}},
		{"10D", Cycle{Period{10, UnitDay}, StubLong, true}},
		{"", Cycle{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseCycle(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c)
		})
	}

	c, err := ParseCycle("P0ML1")
	require.NoError(t, err)
	assert.True(t, c.IsSet)
	assert.False(t, c.Active())

	_, err = ParseCycle("P1XL1")
	assert.Error(t, err)

	assert.Equal(t, "P1ML0", Cycle{Period{1, UnitMonth}, StubShort, true}.String())
}

func TestRatioPrecision(t *testing.T) {
	yf, err := YearFraction(date(2024, 1, 1), date(2024, 1, 2), DayCountA360, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, fixed.MustParse("0.002777777777777777"), yf)
}
