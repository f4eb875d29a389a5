package conventions

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// BusinessDayConvention controls how a date falling on a non-business day
// is moved. The SC prefix means "shift then calculate": accruals use the
// shifted date. The CS prefix means "calculate then shift": accruals use
// the unshifted date and only the payment date moves.
type BusinessDayConvention string

const (
	BDCNull BusinessDayConvention = "NULL"
	BDCSCF  BusinessDayConvention = "SCF"
	BDCSCMF BusinessDayConvention = "SCMF"
	BDCCSF  BusinessDayConvention = "CSF"
	BDCCSMF BusinessDayConvention = "CSMF"
	BDCSCP  BusinessDayConvention = "SCP"
	BDCSCMP BusinessDayConvention = "SCMP"
	BDCCSP  BusinessDayConvention = "CSP"
	BDCCSMP BusinessDayConvention = "CSMP"
)

func (b BusinessDayConvention) Valid() bool {
	switch b {
	case "", BDCNull, BDCSCF, BDCSCMF, BDCCSF, BDCCSMF, BDCSCP, BDCSCMP, BDCCSP, BDCCSMP:
		return true
	}
	return false
}

func (b BusinessDayConvention) calculateBeforeShift() bool {
	switch b {
	case BDCCSF, BDCCSMF, BDCCSP, BDCCSMP:
		return true
	}
	return false
}

// CalendarID names a business-day calendar.
type CalendarID string

const (
	CalendarNone           CalendarID = "NC"
	CalendarMondayToFriday CalendarID = "MF"
)

// Calendar decides which days are business days.
type Calendar interface {
	IsBusinessDay(t time.Time) bool
}

type noCalendar struct{}

func (noCalendar) IsBusinessDay(time.Time) bool { return true }

type mondayToFriday struct{}

func (mondayToFriday) IsBusinessDay(t time.Time) bool {
	wd := t.UTC().Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// HolidayCalendar is a Monday to Friday calendar with additional closed
// dates.
type HolidayCalendar struct {
	holidays map[civilDate]struct{}
}

type civilDate struct {
	y int
	m time.Month
	d int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.UTC().Date()
	return civilDate{y, m, d}
}

// NewHolidayCalendar builds a calendar from holiday dates. Only the UTC
// calendar day of each entry matters.
func NewHolidayCalendar(holidays ...time.Time) *HolidayCalendar {
	c := &HolidayCalendar{holidays: make(map[civilDate]struct{}, len(holidays))}
	for _, h := range holidays {
		c.holidays[dateOf(h)] = struct{}{}
	}
	return c
}

func (c *HolidayCalendar) IsBusinessDay(t time.Time) bool {
	if !(mondayToFriday{}).IsBusinessDay(t) {
		return false
	}
	_, closed := c.holidays[dateOf(t)]
	return !closed
}

// CalendarSet resolves calendar IDs. NC and MF are always present.
type CalendarSet struct {
	mu        sync.RWMutex
	calendars map[CalendarID]Calendar
}

func NewCalendarSet() *CalendarSet {
	return &CalendarSet{calendars: map[CalendarID]Calendar{
		CalendarNone:           noCalendar{},
		CalendarMondayToFriday: mondayToFriday{},
	}}
}

// Register adds or replaces a calendar.
func (s *CalendarSet) Register(id CalendarID, cal Calendar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendars[id] = cal
}

// Lookup returns the calendar for id. The empty ID resolves to NC.
func (s *CalendarSet) Lookup(id CalendarID) (Calendar, error) {
	if id == "" {
		id = CalendarNone
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cal, ok := s.calendars[id]
	if !ok {
		return nil, fmt.Errorf("%w: calendar %q", ErrUnknownConvention, id)
	}
	return cal, nil
}

// IDs lists the registered calendar IDs in sorted order.
func (s *CalendarSet) IDs() []CalendarID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]CalendarID, 0, len(s.calendars))
	for id := range s.calendars {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ShiftEventTime moves t to the business day dictated by bdc. This is the
// date on which the event is due.
func ShiftEventTime(t time.Time, bdc BusinessDayConvention, cal Calendar) time.Time {
	if t.IsZero() || cal == nil {
		return t
	}
	switch bdc {
	case BDCSCF, BDCCSF:
		return following(t, cal)
	case BDCSCMF, BDCCSMF:
		if f := following(t, cal); f.Month() == t.Month() {
			return f
		}
		return preceding(t, cal)
	case BDCSCP, BDCCSP:
		return preceding(t, cal)
	case BDCSCMP, BDCCSMP:
		if p := preceding(t, cal); p.Month() == t.Month() {
			return p
		}
		return following(t, cal)
	default:
		return t
	}
}

// ShiftCalcTime returns the date used for accrual calculations: the shifted
// date under SC conventions and t itself under CS conventions.
func ShiftCalcTime(t time.Time, bdc BusinessDayConvention, cal Calendar) time.Time {
	if bdc.calculateBeforeShift() {
		return t
	}
	return ShiftEventTime(t, bdc, cal)
}

// maxShiftDays bounds the search so a calendar with no business days
// cannot loop forever.
const maxShiftDays = 366

func following(t time.Time, cal Calendar) time.Time {
	for i := 0; i < maxShiftDays && !cal.IsBusinessDay(t); i++ {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func preceding(t time.Time, cal Calendar) time.Time {
	for i := 0; i < maxShiftDays && !cal.IsBusinessDay(t); i++ {
		t = t.AddDate(0, 0, -1)
	}
	return t
}
