package engine

import (
	"time"

	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
	"github.com/alanyoungcy/actus/internal/schedule"
)

// STK is a stock position: dividends, splits and an optional redemption.
// Stocks have no maturity, so schedules are bounded by the caller's range.
type STK struct {
	base
}

var stkEvents = eventSet(
	domain.EventPRD, domain.EventTD, domain.EventDIF, domain.EventDV, domain.EventSPF, domain.EventSPS,
	domain.EventREF, domain.EventREP, domain.EventCE,
)

func (e *STK) ContractType() domain.ContractType { return domain.ContractSTK }

func (e *STK) Supports(t domain.EventType) bool { return stkEvents[t] }

func (e *STK) ComputeInitialState(terms domain.Terms) (domain.State, error) {
	if err := e.validate(terms, domain.ContractSTK); err != nil {
		return domain.State{}, err
	}
	s := initialState(terms)
	s.Quantity = terms.Quantity
	s.SplitRatio = fixed.One
	if !terms.NonPerformingDate.IsZero() {
		s.NonPerformingDate = terms.NonPerformingDate
		s.ContractPerformance = domain.PerformanceDueButUnpaid
	}
	return s, nil
}

func (e *STK) ComputeSchedule(terms domain.Terms, start, end time.Time) ([]domain.Event, error) {
	if err := e.validate(terms, domain.ContractSTK); err != nil {
		return nil, err
	}
	b := schedule.NewBuilder(start, end)
	b.Add(domain.EventPRD, terms.PurchaseDate)
	b.Add(domain.EventTD, terms.TerminationDate)

	// dividend cycles are open ended; fixings are generated up to the end
	// of the range so payments shifted into it are still found
	if anchor := terms.CycleAnchorDateOfDividend; !anchor.IsZero() && terms.CycleOfDividend.Active() {
		dates, err := schedule.ComputeDatesFromCycleSegment(anchor, time.Time{}, terms.CycleOfDividend, terms.EndOfMonthConvention, false, time.Time{}, end)
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			b.Add(domain.EventDIF, d)
		}
		b.AddOffset(domain.EventDV, terms.SettlementPeriod, dates)
	}

	if !terms.MaturityDate.IsZero() {
		b.Add(domain.EventREF, terms.MaturityDate)
		b.AddOffset(domain.EventREP, terms.SettlementPeriod, []time.Time{terms.MaturityDate})
	}
	return truncate(b, terms)
}

func (e *STK) ExternalDataFor(terms domain.Terms, ev domain.Event) (domain.DataRequirement, bool) {
	switch ev.Type {
	case domain.EventDIF:
		return marketData(terms.MarketObjectCodeOfDividends, ev.ScheduleTime, false)
	case domain.EventSPF:
		return marketData(terms.MarketObjectCodeOfSplits, ev.ScheduleTime, true)
	case domain.EventREF:
		return marketData(terms.MarketObjectCode, ev.ScheduleTime, false)
	}
	return domain.DataRequirement{}, false
}

func (e *STK) ComputePayoffForEvent(terms domain.Terms, s domain.State, ev domain.Event, ext domain.ExternalData) (fixed.Int, error) {
	if !e.Supports(ev.Type) {
		return fixed.Zero, unsupported(terms.ContractType, ev)
	}
	switch ev.Type {
	case domain.EventDV:
		return units(terms, s, s.DividendPaymentAmount)
	case domain.EventREP:
		return units(terms, s, s.ExerciseAmount)
	case domain.EventPRD:
		v, err := units(terms, s, terms.PriceAtPurchaseDate)
		if err != nil {
			return fixed.Zero, err
		}
		return v.Neg()
	case domain.EventTD:
		return units(terms, s, terms.PriceAtTerminationDate)
	}
	return fixed.Zero, nil
}

func (e *STK) ComputeStateForEvent(terms domain.Terms, s domain.State, ev domain.Event, ext domain.ExternalData) (domain.State, error) {
	if !e.Supports(ev.Type) {
		return domain.State{}, unsupported(terms.ContractType, ev)
	}
	t := ev.ScheduleTime
	var err error

	switch ev.Type {
	case domain.EventCE:
		return creditEvent(terms, s, ev, ext)

	case domain.EventDIF:
		if s.DividendPaymentAmount, err = ext.NumberOr(terms.NextDividendPaymentAmount); err != nil {
			return domain.State{}, err
		}
		s.LastDividendFixingDate = t

	case domain.EventDV:
		s.DividendPaymentAmount = fixed.Zero

	case domain.EventSPF:
		if s.SplitRatio, err = ext.AsNumber(); err != nil {
			return domain.State{}, err
		}

	case domain.EventSPS:
		if s.Quantity, err = s.Quantity.Mul(s.SplitRatio); err != nil {
			return domain.State{}, err
		}
		s.SplitRatio = fixed.One

	case domain.EventREF:
		if s.ExerciseAmount, err = redemptionPrice(terms, ext, terms.RedemptionPrice); err != nil {
			return domain.State{}, err
		}

	case domain.EventREP:
		s.ExerciseAmount = fixed.Zero
		s.Quantity = fixed.Zero
		s.ContractPerformance = domain.PerformanceMatured

	case domain.EventTD:
		s.Quantity = fixed.Zero
		s.ContractPerformance = domain.PerformanceTerminated
		s.TerminationDate = t
	}
	s.StatusDate = t
	return s, nil
}
