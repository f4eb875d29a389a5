package engine

import (
	"time"

	"github.com/alanyoungcy/actus/internal/conventions"
	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
	"github.com/alanyoungcy/actus/internal/schedule"
)

// COLLA is collateral posted against an underlying contract. Collateral
// is locked at IED, seized up to the outstanding exposure when the
// underlying defaults, and the remainder returned at maturity.
type COLLA struct {
	base
}

var collaEvents = eventSet(
	domain.EventIED, domain.EventXD, domain.EventSTD, domain.EventMD, domain.EventCE,
)

func (e *COLLA) ContractType() domain.ContractType { return domain.ContractCOLLA }

func (e *COLLA) Supports(t domain.EventType) bool { return collaEvents[t] }

func (e *COLLA) ComputeInitialState(terms domain.Terms) (domain.State, error) {
	if err := e.validate(terms, domain.ContractCOLLA); err != nil {
		return domain.State{}, err
	}
	s := initialState(terms)
	s.CollateralAmount = terms.CollateralAmount
	s.ExerciseDate = terms.ExerciseDate
	return s, nil
}

func (e *COLLA) ComputeSchedule(terms domain.Terms, start, end time.Time) ([]domain.Event, error) {
	if err := e.validate(terms, domain.ContractCOLLA); err != nil {
		return nil, err
	}
	b := schedule.NewBuilder(start, end)
	b.Add(domain.EventIED, terms.InitialExchangeDate)
	if !terms.ExerciseDate.IsZero() {
		b.Add(domain.EventXD, terms.ExerciseDate)
		b.Add(domain.EventSTD, conventions.AddPeriod(terms.ExerciseDate, terms.SettlementPeriod))
	}
	b.Add(domain.EventMD, terms.MaturityDate)
	return truncate(b, terms)
}

func (e *COLLA) ExternalDataFor(terms domain.Terms, ev domain.Event) (domain.DataRequirement, bool) {
	if ev.Type != domain.EventXD {
		return domain.DataRequirement{}, false
	}
	return domain.DataRequirement{
		Source:           domain.SourceUnderlying,
		MarketObjectCode: terms.ContractReference.Hex(),
		Timestamp:        ev.ScheduleTime,
		Required:         true,
	}, true
}

// NextUnderlyingEvent seizes collateral once the underlying reaches the
// covered performance.
func (e *COLLA) NextUnderlyingEvent(terms domain.Terms, s domain.State, underlying domain.State) (domain.Event, bool) {
	if s.ContractPerformance.Final() || s.CollateralAmount.IsZero() {
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

// Exposure is the underlying's outstanding notional and accrued interest.
func (e *COLLA) Exposure(terms domain.Terms, underlying domain.State) (fixed.Int, error) {
	return fixed.From(underlying.NotionalPrincipal).Add(underlying.AccruedInterest).Abs().Result()
}

func (e *COLLA) ComputePayoffForEvent(terms domain.Terms, s domain.State, ev domain.Event, ext domain.ExternalData) (fixed.Int, error) {
	if !e.Supports(ev.Type) {
		return fixed.Zero, unsupported(terms.ContractType, ev)
	}
	switch ev.Type {
	case domain.EventIED:
		return signed(terms, s.CollateralAmount)
	case domain.EventSTD:
		return signed(terms, s.ExerciseAmount)
	case domain.EventMD:
		return fixed.From(s.CollateralAmount).MulInt(-terms.Sign()).Result()
	}
	return fixed.Zero, nil
}

func (e *COLLA) ComputeStateForEvent(terms domain.Terms, s domain.State, ev domain.Event, ext domain.ExternalData) (domain.State, error) {
	if !e.Supports(ev.Type) {
		return domain.State{}, unsupported(terms.ContractType, ev)
	}
	t := ev.ScheduleTime

	switch ev.Type {
	case domain.EventCE:
		return creditEvent(terms, s, ev, ext)

	case domain.EventXD:
		exposure, err := ext.AsNumber()
		if err != nil {
			return domain.State{}, err
		}
		if !terms.CoverageOfCreditEnhancement.IsZero() {
			if exposure, err = exposure.Mul(terms.CoverageOfCreditEnhancement); err != nil {
				return domain.State{}, err
			}
		}
		s.ExerciseAmount = fixed.Min(exposure, s.CollateralAmount)
		s.ExerciseDate = t

	case domain.EventSTD:
		var err error
		if s.CollateralAmount, err = s.CollateralAmount.Sub(s.ExerciseAmount); err != nil {
			return domain.State{}, err
		}
		s.ExerciseAmount = fixed.Zero

	case domain.EventMD:
		s.CollateralAmount = fixed.Zero
		s.ContractPerformance = domain.PerformanceMatured
	}
	s.StatusDate = t
	return s, nil
}
