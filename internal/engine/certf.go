package engine

import (
	"time"

	"github.com/alanyoungcy/actus/internal/conventions"
	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
	"github.com/alanyoungcy/actus/internal/schedule"
)

// CERTF is a certificate: units issued at a price, paying coupons and
// redeemed at a fixed or observed redemption price.
type CERTF struct {
	base
}

var certfEvents = eventSet(
	domain.EventISS, domain.EventIED, domain.EventCOF, domain.EventCOP, domain.EventREF, domain.EventREP,
	domain.EventXD, domain.EventPRD, domain.EventTD, domain.EventMD, domain.EventCE,
)

func (e *CERTF) ContractType() domain.ContractType { return domain.ContractCERTF }

func (e *CERTF) Supports(t domain.EventType) bool { return certfEvents[t] }

func (e *CERTF) ComputeInitialState(terms domain.Terms) (domain.State, error) {
	if err := e.validate(terms, domain.ContractCERTF); err != nil {
		return domain.State{}, err
	}
	s := initialState(terms)
	s.NotionalPrincipal = terms.NotionalPrincipal
	s.Quantity = terms.Quantity
	if !terms.NonPerformingDate.IsZero() {
		s.NonPerformingDate = terms.NonPerformingDate
		s.ContractPerformance = domain.PerformanceDueButUnpaid
	}
	return s, nil
}

func (e *CERTF) ComputeSchedule(terms domain.Terms, start, end time.Time) ([]domain.Event, error) {
	if err := e.validate(terms, domain.ContractCERTF); err != nil {
		return nil, err
	}
	b := schedule.NewBuilder(start, end)
	settle := terms.SettlementPeriod

	b.Add(domain.EventISS, terms.IssueDate)
	b.Add(domain.EventIED, terms.InitialExchangeDate)
	b.Add(domain.EventPRD, terms.PurchaseDate)
	b.Add(domain.EventTD, terms.TerminationDate)

	if terms.CouponType != "" && terms.CouponType != domain.CouponNone {
		anchor := anchorOr(terms.CycleAnchorDateOfCoupon, terms.IssueDate, terms.CycleOfCoupon)
		dates, err := schedule.ComputeDatesFromCycleSegment(anchor, terms.MaturityDate, terms.CycleOfCoupon, terms.EndOfMonthConvention, true, time.Time{}, time.Time{})
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			b.Add(domain.EventCOF, d)
		}
		b.AddOffset(domain.EventCOP, settle, dates)
	}

	var fixings []time.Time
	if terms.CycleOfRedemption.Active() {
		anchor := anchorOr(terms.CycleAnchorDateOfRedemption, terms.IssueDate, terms.CycleOfRedemption)
		dates, err := schedule.ComputeDatesFromCycleSegment(anchor, terms.MaturityDate, terms.CycleOfRedemption, terms.EndOfMonthConvention, false, time.Time{}, time.Time{})
		if err != nil {
			return nil, err
		}
		fixings = dates
	}
	if !terms.MaturityDate.IsZero() {
		fixings = append(fixings, terms.MaturityDate)
	}
	for _, d := range fixings {
		b.Add(domain.EventREF, d)
	}
	b.AddOffset(domain.EventREP, settle, fixings)

	if !terms.ExerciseDate.IsZero() {
		b.Add(domain.EventXD, terms.ExerciseDate)
		b.AddOffset(domain.EventREP, settle, []time.Time{terms.ExerciseDate})
	}
	if !terms.MaturityDate.IsZero() {
		b.Add(domain.EventMD, conventions.AddPeriod(terms.MaturityDate, settle))
	}
	return truncate(b, terms)
}

func (e *CERTF) ExternalDataFor(terms domain.Terms, ev domain.Event) (domain.DataRequirement, bool) {
	switch ev.Type {
	case domain.EventCOF:
		if terms.CouponType == domain.CouponFixed {
			return domain.DataRequirement{}, false
		}
		return marketData(terms.MarketObjectCode, ev.ScheduleTime, false)
	case domain.EventREF, domain.EventXD:
		return marketData(terms.MarketObjectCode, ev.ScheduleTime, false)
	}
	return domain.DataRequirement{}, false
}

// units multiplies a per-unit amount by the held quantity and the role sign.
func units(terms domain.Terms, s domain.State, perUnit fixed.Int) (fixed.Int, error) {
	return fixed.From(s.Quantity).Mul(perUnit).MulInt(terms.Sign()).Result()
}

func (e *CERTF) ComputePayoffForEvent(terms domain.Terms, s domain.State, ev domain.Event, ext domain.ExternalData) (fixed.Int, error) {
	if !e.Supports(ev.Type) {
		return fixed.Zero, unsupported(terms.ContractType, ev)
	}
	switch ev.Type {
	case domain.EventISS:
		v, err := units(terms, s, terms.IssuePrice)
		if err != nil {
			return fixed.Zero, err
		}
		return v.Neg()
	case domain.EventCOP:
		return units(terms, s, s.CouponAmountFixed)
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

func (e *CERTF) ComputeStateForEvent(terms domain.Terms, s domain.State, ev domain.Event, ext domain.ExternalData) (domain.State, error) {
	if !e.Supports(ev.Type) {
		return domain.State{}, unsupported(terms.ContractType, ev)
	}
	t := ev.ScheduleTime
	var err error

	switch ev.Type {
	case domain.EventCE:
		return creditEvent(terms, s, ev, ext)

	case domain.EventCOF:
		if s.CouponAmountFixed, err = e.coupon(terms, s, ext); err != nil {
			return domain.State{}, err
		}
		s.LastCouponFixingDate = t

	case domain.EventCOP:
		s.CouponAmountFixed = fixed.Zero

	case domain.EventREF:
		fallback := fixed.Zero
		if t.Equal(terms.MaturityDate) {
			fallback = terms.RedemptionPrice
		}
		if s.ExerciseAmount, err = redemptionPrice(terms, ext, fallback); err != nil {
			return domain.State{}, err
		}

	case domain.EventXD:
		if s.ExerciseAmount, err = redemptionPrice(terms, ext, terms.RedemptionPrice); err != nil {
			return domain.State{}, err
		}
		s.ExerciseDate = t

	case domain.EventREP:
		if !s.ExerciseAmount.IsZero() {
			s.Quantity = fixed.Zero
		}
		s.ExerciseAmount = fixed.Zero

	case domain.EventTD:
		s.Quantity = fixed.Zero
		s.ContractPerformance = domain.PerformanceTerminated
		s.TerminationDate = t

	case domain.EventMD:
		s.Quantity = fixed.Zero
		s.NotionalPrincipal = fixed.Zero
		s.ContractPerformance = domain.PerformanceMatured
	}
	s.StatusDate = t
	return s, nil
}

// coupon fixes the per-unit coupon amount.
func (e *CERTF) coupon(terms domain.Terms, s domain.State, ext domain.ExternalData) (fixed.Int, error) {
	fixedCoupon, err := terms.CouponRate.Mul(s.NotionalPrincipal)
	if err != nil {
		return fixed.Zero, err
	}
	switch terms.CouponType {
	case domain.CouponNone:
		return fixed.Zero, nil
	case domain.CouponFixed:
		return fixedCoupon, nil
	}
	return ext.NumberOr(fixedCoupon)
}

// redemptionPrice is the observed price scaled by the denomination ratio,
// or fallback when nothing was observed.
func redemptionPrice(terms domain.Terms, ext domain.ExternalData, fallback fixed.Int) (fixed.Int, error) {
	if ext.IsNone() {
		return fallback, nil
	}
	price, err := ext.AsNumber()
	if err != nil {
		return fixed.Zero, err
	}
	return price.Mul(terms.Denomination())
}
