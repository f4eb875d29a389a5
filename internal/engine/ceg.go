package engine

import (
	"time"

	"github.com/alanyoungcy/actus/internal/conventions"
	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
	"github.com/alanyoungcy/actus/internal/schedule"
)

// CEG is a guarantee over an underlying contract. It is exercised when the
// underlying reaches the covered performance and pays the covered share of
// its exposure. CEC terms are served by the same engine.
type CEG struct {
	base
	ct domain.ContractType
}

var cegEvents = eventSet(
	domain.EventFP, domain.EventPRD, domain.EventTD, domain.EventXD, domain.EventSTD, domain.EventMD, domain.EventCE,
)

func (e *CEG) ContractType() domain.ContractType { return e.ct }

func (e *CEG) Supports(t domain.EventType) bool { return cegEvents[t] }

func (e *CEG) ComputeInitialState(terms domain.Terms) (domain.State, error) {
	if err := e.validate(terms, e.ct); err != nil {
		return domain.State{}, err
	}
	s := initialState(terms)
	var err error
	if s.NotionalPrincipal, err = signed(terms, terms.NotionalPrincipal); err != nil {
		return domain.State{}, err
	}
	s.FeeAccrued = terms.FeeAccrued
	s.ExerciseDate = terms.ExerciseDate
	return s, nil
}

func (e *CEG) ComputeSchedule(terms domain.Terms, start, end time.Time) ([]domain.Event, error) {
	if err := e.validate(terms, e.ct); err != nil {
		return nil, err
	}
	b := schedule.NewBuilder(start, end)
	b.Add(domain.EventPRD, terms.PurchaseDate)
	b.Add(domain.EventTD, terms.TerminationDate)
	if !terms.FeeRate.IsZero() {
		anchor := anchorOr(terms.CycleAnchorDateOfFee, terms.PurchaseDate, terms.CycleOfFee)
		if anchor.IsZero() {
			anchor = anchorOr(terms.CycleAnchorDateOfFee, terms.StatusDate, terms.CycleOfFee)
		}
		b.AddCycle(domain.EventFP, anchor, terms.MaturityDate, terms.CycleOfFee, terms.EndOfMonthConvention, true)
	}
	if !terms.ExerciseDate.IsZero() {
		b.Add(domain.EventXD, terms.ExerciseDate)
		b.Add(domain.EventSTD, conventions.AddPeriod(terms.ExerciseDate, terms.SettlementPeriod))
	}
	b.Add(domain.EventMD, terms.MaturityDate)
	return truncate(b, terms)
}

func (e *CEG) ExternalDataFor(terms domain.Terms, ev domain.Event) (domain.DataRequirement, bool) {
	if ev.Type != domain.EventXD {
		return domain.DataRequirement{}, false
	}
	if terms.GuaranteedExposure == domain.ExposureMarketValue {
		return marketData(terms.MarketObjectCode, ev.ScheduleTime, true)
	}
	return domain.DataRequirement{
		Source:           domain.SourceUnderlying,
		MarketObjectCode: terms.ContractReference.Hex(),
		Timestamp:        ev.ScheduleTime,
		Required:         true,
	}, true
}

// NextUnderlyingEvent exercises the guarantee once the underlying reaches
// the covered performance, then settles it a settlement period later.
func (e *CEG) NextUnderlyingEvent(terms domain.Terms, s domain.State, underlying domain.State) (domain.Event, bool) {
	if s.ContractPerformance.Final() {
		return domain.NoEvent, false
	}
	if s.ExerciseDate.IsZero() {
		if !terms.CreditEventTypeCovered.Triggered(underlying.ContractPerformance) {
			return domain.NoEvent, false
		}
		t := underlying.NonPerformingDate
		if t.IsZero() || t.Before(s.StatusDate) {
			t = s.StatusDate
		}
		return domain.NewEvent(domain.EventXD, t), true
	}
	if !s.ExerciseAmount.IsZero() {
		return domain.NewEvent(domain.EventSTD, conventions.AddPeriod(s.ExerciseDate, terms.SettlementPeriod)), true
	}
	return domain.NoEvent, false
}

// Exposure is the underlying's notional, with its accrued interest for
// notional-plus-interest guarantees.
func (e *CEG) Exposure(terms domain.Terms, underlying domain.State) (fixed.Int, error) {
	if terms.GuaranteedExposure == domain.ExposureNotionalInterest {
		return fixed.From(underlying.NotionalPrincipal).Add(underlying.AccruedInterest).Abs().Result()
	}
	return underlying.NotionalPrincipal.Abs()
}

func (e *CEG) ComputePayoffForEvent(terms domain.Terms, s domain.State, ev domain.Event, ext domain.ExternalData) (fixed.Int, error) {
	if !e.Supports(ev.Type) {
		return fixed.Zero, unsupported(terms.ContractType, ev)
	}
	switch ev.Type {
	case domain.EventFP:
		if terms.FeeBasis == domain.FeeBasisAbsolute {
			return signed(terms, terms.FeeRate)
		}
		yf, err := e.yearFraction(terms, s.StatusDate, ev.ScheduleTime)
		if err != nil {
			return fixed.Zero, err
		}
		return fixed.From(yf).Mul(terms.FeeRate).Mul(s.NotionalPrincipal).Add(s.FeeAccrued).Result()
	case domain.EventPRD:
		return fixed.From(terms.PriceAtPurchaseDate).MulInt(-terms.Sign()).Result()
	case domain.EventTD:
		return signed(terms, terms.PriceAtTerminationDate)
	case domain.EventSTD:
		return fixed.From(s.ExerciseAmount).Add(s.FeeAccrued).MulInt(terms.Sign()).Result()
	}
	return fixed.Zero, nil
}

func (e *CEG) ComputeStateForEvent(terms domain.Terms, s domain.State, ev domain.Event, ext domain.ExternalData) (domain.State, error) {
	if !e.Supports(ev.Type) {
		return domain.State{}, unsupported(terms.ContractType, ev)
	}
	t := ev.ScheduleTime

	switch ev.Type {
	case domain.EventCE:
		return creditEvent(terms, s, ev, ext)

	case domain.EventFP:
		s.FeeAccrued = fixed.Zero

	case domain.EventPRD:
		if terms.FeeBasis != domain.FeeBasisAbsolute {
			s.FeeAccrued = fixed.Zero
		}

	case domain.EventXD:
		exposure, err := ext.AsNumber()
		if err != nil {
			return domain.State{}, err
		}
		if s.ExerciseAmount, err = exposure.Mul(terms.CoverageOfCreditEnhancement); err != nil {
			return domain.State{}, err
		}
		if terms.FeeBasis != domain.FeeBasisAbsolute {
			yf, err := e.yearFraction(terms, s.StatusDate, t)
			if err != nil {
				return domain.State{}, err
			}
			if s.FeeAccrued, err = fixed.From(yf).Mul(terms.FeeRate).Mul(s.NotionalPrincipal).Add(s.FeeAccrued).Result(); err != nil {
				return domain.State{}, err
			}
		}
		s.ExerciseDate = t

	case domain.EventSTD:
		s.NotionalPrincipal = fixed.Zero
		s.ExerciseAmount = fixed.Zero
		s.FeeAccrued = fixed.Zero
		s.ContractPerformance = domain.PerformanceMatured

	case domain.EventTD:
		s.NotionalPrincipal = fixed.Zero
		s.FeeAccrued = fixed.Zero
		s.ContractPerformance = domain.PerformanceTerminated
		s.TerminationDate = t

	case domain.EventMD:
		s.NotionalPrincipal = fixed.Zero
		s.FeeAccrued = fixed.Zero
		s.ContractPerformance = domain.PerformanceMatured
	}
	s.StatusDate = t
	return s, nil
}
