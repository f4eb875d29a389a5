package engine

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/actus/internal/conventions"
	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
	"github.com/alanyoungcy/actus/internal/schedule"
)

var errMissingScalingBase = fmt.Errorf("%w: scalingIndexAtContractDealDate is required for scaling", domain.ErrMalformedTerms)

// base carries what every variant shares: calendar resolution, shifted
// time arithmetic and the credit event transition.
type base struct {
	calendars *conventions.CalendarSet
}

func (b base) calendar(terms domain.Terms) conventions.Calendar {
	cal, err := b.calendars.Lookup(terms.Calendar)
	if err != nil {
		return nil
	}
	return cal
}

func (b base) EventTime(terms domain.Terms, ev domain.Event) time.Time {
	return conventions.ShiftEventTime(ev.ScheduleTime, terms.BusinessDayConvention, b.calendar(terms))
}

func (b base) calcTime(terms domain.Terms, t time.Time) time.Time {
	return conventions.ShiftCalcTime(t, terms.BusinessDayConvention, b.calendar(terms))
}

// yearFraction is the day-count fraction between two calculation times.
// Contracts that carry no day count use A365.
func (b base) yearFraction(terms domain.Terms, from, to time.Time) (fixed.Int, error) {
	dcc := terms.DayCountConvention
	if dcc == "" {
		dcc = conventions.DayCountA365
	}
	yf, err := conventions.YearFraction(b.calcTime(terms, from), b.calcTime(terms, to), dcc, terms.MaturityDate)
	if err != nil {
		return fixed.Zero, fmt.Errorf("%w: %v", domain.ErrMalformedTerms, err)
	}
	return yf, nil
}

func (b base) validate(terms domain.Terms, want ...domain.ContractType) error {
	ok := false
	for _, ct := range want {
		ok = ok || terms.ContractType == ct
	}
	if !ok {
		return fmt.Errorf("%w: %s terms given to %v engine", domain.ErrMalformedTerms, terms.ContractType, want)
	}
	if err := terms.Validate(); err != nil {
		return err
	}
	if _, err := b.calendars.Lookup(terms.Calendar); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedTerms, err)
	}
	return nil
}

// initialState is the part of the initial state common to all variants.
func initialState(terms domain.Terms) domain.State {
	return domain.State{
		StatusDate:                terms.StatusDate,
		ContractPerformance:       domain.PerformancePerformant,
		MaturityDate:              terms.MaturityDate,
		TerminationDate:           terms.TerminationDate,
		InterestScalingMultiplier: fixed.One,
		NotionalScalingMultiplier: fixed.One,
	}
}

// signed applies the role sign to x.
func signed(terms domain.Terms, x fixed.Int) (fixed.Int, error) {
	return x.MulInt(terms.Sign())
}

// anchorOr returns anchor, or start shifted by one cycle period when the
// anchor is unset.
func anchorOr(anchor, start time.Time, cycle conventions.Cycle) time.Time {
	if !anchor.IsZero() || start.IsZero() {
		return anchor
	}
	if !cycle.Active() {
		return time.Time{}
	}
	return conventions.AddPeriod(start, cycle.Period)
}

// scheduleWindow is the whole-life range. It reaches past maturity by the
// settlement period because some variants settle after maturity.
func scheduleWindow(terms domain.Terms, horizon time.Time) (time.Time, time.Time) {
	start, end := schedule.Window(terms, horizon)
	if !terms.MaturityDate.IsZero() && !terms.SettlementPeriod.IsZero() {
		end = conventions.AddPeriod(terms.MaturityDate, terms.SettlementPeriod).Add(time.Second)
	}
	return start, end
}

// marketData builds a market data requirement, or reports none when code
// is empty and the value is optional.
func marketData(code string, t time.Time, required bool) (domain.DataRequirement, bool) {
	if code == "" && !required {
		return domain.DataRequirement{}, false
	}
	return domain.DataRequirement{
		Source:           domain.SourceMarket,
		MarketObjectCode: code,
		Timestamp:        t,
		Required:         required,
	}, true
}

// ApplyCreditEvent moves the performance of a contract whose obligation
// due at missed is still unsettled at now. The non-performing date is
// kept from the first miss. Grace and delinquency periods are measured
// from it; an unset grace period means none, an unset delinquency period
// means the contract never defaults automatically. Performance never
// improves here.
func ApplyCreditEvent(terms domain.Terms, state domain.State, missed, now time.Time) domain.State {
	if state.ContractPerformance.Final() {
		return state
	}
	npd := state.NonPerformingDate
	if npd.IsZero() {
		npd = missed
	}
	next := domain.PerformanceDueButUnpaid
	if now.After(conventions.AddPeriod(npd, terms.GracePeriod)) {
		next = domain.PerformanceDelinquent
	}
	if !terms.DelinquencyPeriod.IsZero() && now.After(conventions.AddPeriod(npd, terms.DelinquencyPeriod)) {
		next = domain.PerformanceDefaulted
	}
	if state.ContractPerformance.AtLeast(next) && state.ContractPerformance != domain.PerformancePerformant {
		next = state.ContractPerformance
	}
	state.NonPerformingDate = npd
	state.ContractPerformance = next
	return state
}

// creditEvent is the CE transition shared by all variants. The external
// data carries the observation time.
func creditEvent(terms domain.Terms, state domain.State, ev domain.Event, ext domain.ExternalData) (domain.State, error) {
	now, err := ext.AsTime()
	if err != nil {
		return domain.State{}, err
	}
	return ApplyCreditEvent(terms, state, ev.ScheduleTime, now), nil
}
