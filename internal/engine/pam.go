package engine

import (
	"time"

	"github.com/alanyoungcy/actus/internal/conventions"
	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
	"github.com/alanyoungcy/actus/internal/schedule"
)

// PAM is the principal-at-maturity contract: a single principal exchange
// at IED repaid in full at maturity, with interest, fees, rate resets and
// scaling in between.
type PAM struct {
	base
}

var pamEvents = eventSet(
	domain.EventAD, domain.EventIED, domain.EventFP, domain.EventPP, domain.EventPY,
	domain.EventIP, domain.EventIPCI, domain.EventRRF, domain.EventRR, domain.EventSC,
	domain.EventPRD, domain.EventTD, domain.EventMD, domain.EventCE,
)

func (e *PAM) ContractType() domain.ContractType { return domain.ContractPAM }

func (e *PAM) Supports(t domain.EventType) bool { return pamEvents[t] }

func (e *PAM) ComputeInitialState(terms domain.Terms) (domain.State, error) {
	if err := e.validate(terms, domain.ContractPAM); err != nil {
		return domain.State{}, err
	}
	return e.initialState(terms)
}

func (e *PAM) initialState(terms domain.Terms) (domain.State, error) {
	s := initialState(terms)
	var err error
	if s.NotionalPrincipal, err = signed(terms, terms.NotionalPrincipal); err != nil {
		return domain.State{}, err
	}
	s.NominalInterestRate = terms.NominalInterestRate
	s.InterestCalculationBaseAmount = s.NotionalPrincipal
	if !terms.InterestCalculationBaseAmount.IsZero() {
		if s.InterestCalculationBaseAmount, err = signed(terms, terms.InterestCalculationBaseAmount); err != nil {
			return domain.State{}, err
		}
	}
	// accruals only carry over for contracts already exchanged
	if terms.InitialExchangeDate.Before(terms.StatusDate) {
		s.AccruedInterest = terms.AccruedInterest
		s.FeeAccrued = terms.FeeAccrued
	}
	if !terms.NonPerformingDate.IsZero() {
		s.NonPerformingDate = terms.NonPerformingDate
		s.ContractPerformance = domain.PerformanceDueButUnpaid
	}
	return s, nil
}

func (e *PAM) ComputeSchedule(terms domain.Terms, start, end time.Time) ([]domain.Event, error) {
	if err := e.validate(terms, domain.ContractPAM); err != nil {
		return nil, err
	}
	b := schedule.NewBuilder(start, end)
	e.addPrincipalEvents(b, terms)
	if err := e.addInterestEvents(b, terms, terms.CycleAnchorDateOfInterestPayment, terms.CycleOfInterestPayment); err != nil {
		return nil, err
	}
	if err := e.addRateResetEvents(b, terms); err != nil {
		return nil, err
	}
	e.addFeeAndScalingEvents(b, terms)
	return truncate(b, terms)
}

func (e *PAM) addPrincipalEvents(b *schedule.Builder, terms domain.Terms) {
	b.Add(domain.EventIED, terms.InitialExchangeDate)
	b.Add(domain.EventPRD, terms.PurchaseDate)
	b.Add(domain.EventTD, terms.TerminationDate)
	b.Add(domain.EventMD, terms.MaturityDate)
}

// addInterestEvents schedules IP, or IPCI up to the capitalization end.
func (e *PAM) addInterestEvents(b *schedule.Builder, terms domain.Terms, anchor time.Time, cycle conventions.Cycle) error {
	anchor = anchorOr(anchor, terms.InitialExchangeDate, cycle)
	if anchor.IsZero() {
		return nil
	}
	dates, err := schedule.ComputeDatesFromCycleSegment(anchor, terms.MaturityDate, cycle, terms.EndOfMonthConvention, true, time.Time{}, time.Time{})
	if err != nil {
		return err
	}
	capEnd := terms.CapitalizationEndDate
	for _, d := range dates {
		if !capEnd.IsZero() && !d.After(capEnd) {
			b.Add(domain.EventIPCI, d)
			continue
		}
		b.Add(domain.EventIP, d)
	}
	if !capEnd.IsZero() && capEnd.Before(terms.MaturityDate) {
		b.Add(domain.EventIPCI, capEnd)
	}
	return nil
}

// addRateResetEvents schedules the RR cycle. The first reset after the
// status date is fixed (RRF) when a next reset rate is given.
func (e *PAM) addRateResetEvents(b *schedule.Builder, terms domain.Terms) error {
	anchor := anchorOr(terms.CycleAnchorDateOfRateReset, terms.InitialExchangeDate, terms.CycleOfRateReset)
	if anchor.IsZero() {
		return nil
	}
	dates, err := schedule.ComputeDatesFromCycleSegment(anchor, terms.MaturityDate, terms.CycleOfRateReset, terms.EndOfMonthConvention, false, terms.StatusDate, time.Time{})
	if err != nil {
		return err
	}
	for i, d := range dates {
		if i == 0 && terms.NextResetRate.Valid {
			b.Add(domain.EventRRF, d)
			continue
		}
		b.Add(domain.EventRR, d)
	}
	return nil
}

func (e *PAM) addFeeAndScalingEvents(b *schedule.Builder, terms domain.Terms) {
	if !terms.FeeRate.IsZero() {
		if anchor := anchorOr(terms.CycleAnchorDateOfFee, terms.InitialExchangeDate, terms.CycleOfFee); !anchor.IsZero() {
			b.AddCycle(domain.EventFP, anchor, terms.MaturityDate, terms.CycleOfFee, terms.EndOfMonthConvention, true)
		}
	}
	if terms.ScalingEffect.ScalesInterest() || terms.ScalingEffect.ScalesNotional() {
		if anchor := anchorOr(terms.CycleAnchorDateOfScalingIndex, terms.InitialExchangeDate, terms.CycleOfScalingIndex); !anchor.IsZero() {
			b.AddCycle(domain.EventSC, anchor, terms.MaturityDate, terms.CycleOfScalingIndex, terms.EndOfMonthConvention, false)
		}
	}
}

// truncate drops events before the purchase date and after the
// termination date.
func truncate(b *schedule.Builder, terms domain.Terms) ([]domain.Event, error) {
	events, err := b.Events()
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, ev := range events {
		if !terms.PurchaseDate.IsZero() && ev.ScheduleTime.Before(terms.PurchaseDate) {
			continue
		}
		if !terms.TerminationDate.IsZero() && ev.ScheduleTime.After(terms.TerminationDate) {
			continue
		}
		if !terms.TerminationDate.IsZero() && ev.ScheduleTime.Equal(terms.TerminationDate) && ev.Type > domain.EventTD {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (e *PAM) ExternalDataFor(terms domain.Terms, ev domain.Event) (domain.DataRequirement, bool) {
	switch ev.Type {
	case domain.EventRR:
		return marketData(terms.MarketObjectCodeOfRateReset, ev.ScheduleTime, true)
	case domain.EventSC:
		return marketData(terms.MarketObjectCodeOfScalingIndex, ev.ScheduleTime, true)
	case domain.EventPP:
		return marketData(terms.ObjectCodeOfPrepaymentModel, ev.ScheduleTime, false)
	case domain.EventPY:
		if terms.PenaltyType == domain.PenaltyInterest {
			return marketData(terms.MarketObjectCodeOfRateReset, ev.ScheduleTime, false)
		}
	}
	return domain.DataRequirement{}, false
}

// interestBase is the amount interest accrues on.
func interestBase(terms domain.Terms, s domain.State) fixed.Int {
	switch terms.InterestCalculationBase {
	case domain.InterestBaseNotionalAtIED, domain.InterestBaseNotionalLagged:
		return s.InterestCalculationBaseAmount
	}
	return s.NotionalPrincipal
}

// interestSince returns yf·rate·base from the state's status date to t.
func (e *PAM) interestSince(terms domain.Terms, s domain.State, t time.Time) fixed.Calc {
	yf, err := e.yearFraction(terms, s.StatusDate, t)
	if err != nil {
		return fixed.Failed(err)
	}
	return fixed.From(yf).Mul(s.NominalInterestRate).Mul(interestBase(terms, s))
}

// accrue brings interest and fee accruals forward to t.
func (e *PAM) accrue(terms domain.Terms, s domain.State, t time.Time) (domain.State, error) {
	yf, err := e.yearFraction(terms, s.StatusDate, t)
	if err != nil {
		return domain.State{}, err
	}
	if s.AccruedInterest, err = fixed.From(yf).Mul(s.NominalInterestRate).Mul(interestBase(terms, s)).Add(s.AccruedInterest).Result(); err != nil {
		return domain.State{}, err
	}
	if terms.FeeBasis != domain.FeeBasisAbsolute {
		if s.FeeAccrued, err = fixed.From(yf).Mul(terms.FeeRate).Mul(s.NotionalPrincipal).Add(s.FeeAccrued).Result(); err != nil {
			return domain.State{}, err
		}
	}
	s.StatusDate = t
	return s, nil
}

func (e *PAM) ComputePayoffForEvent(terms domain.Terms, s domain.State, ev domain.Event, ext domain.ExternalData) (fixed.Int, error) {
	if !e.Supports(ev.Type) {
		return fixed.Zero, unsupported(terms.ContractType, ev)
	}
	return e.payoff(terms, s, ev, ext)
}

func (e *PAM) payoff(terms domain.Terms, s domain.State, ev domain.Event, ext domain.ExternalData) (fixed.Int, error) {
	t := ev.ScheduleTime
	sign := terms.Sign()

	switch ev.Type {
	case domain.EventIED:
		return fixed.From(terms.NotionalPrincipal).Add(terms.PremiumDiscountAtIED).MulInt(-sign).Result()

	case domain.EventFP:
		if terms.FeeBasis == domain.FeeBasisAbsolute {
			return signed(terms, terms.FeeRate)
		}
		yf, err := e.yearFraction(terms, s.StatusDate, t)
		if err != nil {
			return fixed.Zero, err
		}
		return fixed.From(yf).Mul(terms.FeeRate).Mul(s.NotionalPrincipal).Add(s.FeeAccrued).Result()

	case domain.EventIP:
		return fixed.From(s.AccruedInterest).AddCalc(e.interestSince(terms, s, t)).Mul(s.InterestScalingMultiplier).Result()

	case domain.EventPP:
		amount, err := e.prepaymentAmount(terms, s, ext)
		if err != nil {
			return fixed.Zero, err
		}
		return signed(terms, amount)

	case domain.EventPY:
		return e.penalty(terms, s, t, ext)

	case domain.EventPRD:
		return fixed.From(terms.PriceAtPurchaseDate).Add(s.AccruedInterest).AddCalc(e.interestSince(terms, s, t)).MulInt(-sign).Result()

	case domain.EventTD:
		return fixed.From(terms.PriceAtTerminationDate).Add(s.AccruedInterest).AddCalc(e.interestSince(terms, s, t)).MulInt(sign).Result()

	case domain.EventMD:
		return s.NotionalScalingMultiplier.Mul(s.NotionalPrincipal)
	}
	return fixed.Zero, nil
}

// prepaymentAmount is the principal prepaid, as a magnitude. Without a
// prepayment model the whole outstanding notional is prepaid.
func (e *PAM) prepaymentAmount(terms domain.Terms, s domain.State, ext domain.ExternalData) (fixed.Int, error) {
	outstanding, err := s.NotionalPrincipal.Abs()
	if err != nil {
		return fixed.Zero, err
	}
	amount, err := ext.NumberOr(outstanding)
	if err != nil {
		return fixed.Zero, err
	}
	return fixed.Min(amount, outstanding), nil
}

func (e *PAM) penalty(terms domain.Terms, s domain.State, t time.Time, ext domain.ExternalData) (fixed.Int, error) {
	switch terms.PenaltyType {
	case domain.PenaltyAbsolute:
		return signed(terms, terms.PenaltyRate)
	case domain.PenaltyNotional:
		yf, err := e.yearFraction(terms, s.StatusDate, t)
		if err != nil {
			return fixed.Zero, err
		}
		return fixed.From(yf).Mul(terms.PenaltyRate).Mul(s.NotionalPrincipal).Result()
	case domain.PenaltyInterest:
		market, err := ext.NumberOr(s.NominalInterestRate)
		if err != nil {
			return fixed.Zero, err
		}
		yf, err := e.yearFraction(terms, s.StatusDate, t)
		if err != nil {
			return fixed.Zero, err
		}
		spread, err := s.NominalInterestRate.Sub(market)
		if err != nil {
			return fixed.Zero, err
		}
		return fixed.From(yf).Mul(s.NotionalPrincipal).Mul(fixed.Max(spread, fixed.Zero)).Result()
	}
	return fixed.Zero, nil
}

func (e *PAM) ComputeStateForEvent(terms domain.Terms, s domain.State, ev domain.Event, ext domain.ExternalData) (domain.State, error) {
	if !e.Supports(ev.Type) {
		return domain.State{}, unsupported(terms.ContractType, ev)
	}
	return e.transition(terms, s, ev, ext)
}

func (e *PAM) transition(terms domain.Terms, s domain.State, ev domain.Event, ext domain.ExternalData) (domain.State, error) {
	t := ev.ScheduleTime

	switch ev.Type {
	case domain.EventCE:
		return creditEvent(terms, s, ev, ext)

	case domain.EventIED:
		var err error
		if s.NotionalPrincipal, err = signed(terms, terms.NotionalPrincipal); err != nil {
			return domain.State{}, err
		}
		s.NominalInterestRate = terms.NominalInterestRate
		s.AccruedInterest = terms.AccruedInterest
		s.InterestCalculationBaseAmount = s.NotionalPrincipal
		s.StatusDate = t
		return s, nil

	case domain.EventMD:
		s.NotionalPrincipal = fixed.Zero
		s.AccruedInterest = fixed.Zero
		s.FeeAccrued = fixed.Zero
		s.InterestCalculationBaseAmount = fixed.Zero
		s.ContractPerformance = domain.PerformanceMatured
		s.StatusDate = t
		return s, nil

	case domain.EventTD:
		s.NotionalPrincipal = fixed.Zero
		s.AccruedInterest = fixed.Zero
		s.FeeAccrued = fixed.Zero
		s.NominalInterestRate = fixed.Zero
		s.InterestCalculationBaseAmount = fixed.Zero
		s.ContractPerformance = domain.PerformanceTerminated
		s.TerminationDate = t
		s.StatusDate = t
		return s, nil
	}

	s, err := e.accrue(terms, s, t)
	if err != nil {
		return domain.State{}, err
	}

	switch ev.Type {
	case domain.EventFP:
		s.FeeAccrued = fixed.Zero

	case domain.EventIP:
		s.AccruedInterest = fixed.Zero

	case domain.EventIPCI:
		if s.NotionalPrincipal, err = s.NotionalPrincipal.Add(s.AccruedInterest); err != nil {
			return domain.State{}, err
		}
		s.AccruedInterest = fixed.Zero

	case domain.EventPP:
		amount, err := e.prepaymentAmount(terms, s, ext)
		if err != nil {
			return domain.State{}, err
		}
		if amount, err = signed(terms, amount); err != nil {
			return domain.State{}, err
		}
		if s.NotionalPrincipal, err = s.NotionalPrincipal.Sub(amount); err != nil {
			return domain.State{}, err
		}

	case domain.EventRR:
		market, err := ext.AsNumber()
		if err != nil {
			return domain.State{}, err
		}
		if s.NominalInterestRate, err = resetRate(terms, s.NominalInterestRate, market); err != nil {
			return domain.State{}, err
		}

	case domain.EventRRF:
		if terms.NextResetRate.Valid {
			s.NominalInterestRate = terms.NextResetRate.Value
		}

	case domain.EventSC:
		if s, err = scale(terms, s, ext); err != nil {
			return domain.State{}, err
		}
	}
	return s, nil
}

// resetRate applies multiplier and spread to the market rate, limits the
// change against the current rate by the period cap and floor, then
// bounds the result by the life cap and floor.
func resetRate(terms domain.Terms, current, market fixed.Int) (fixed.Int, error) {
	rate, err := fixed.From(market).Mul(terms.Multiplier()).Add(terms.RateSpread).Result()
	if err != nil {
		return fixed.Zero, err
	}
	delta, err := rate.Sub(current)
	if err != nil {
		return fixed.Zero, err
	}
	if terms.PeriodCap.Valid {
		delta = fixed.Min(delta, terms.PeriodCap.Value)
	}
	if terms.PeriodFloor.Valid {
		floor, err := terms.PeriodFloor.Value.Neg()
		if err != nil {
			return fixed.Zero, err
		}
		delta = fixed.Max(delta, floor)
	}
	if rate, err = current.Add(delta); err != nil {
		return fixed.Zero, err
	}
	if terms.LifeCap.Valid {
		rate = fixed.Min(rate, terms.LifeCap.Value)
	}
	if terms.LifeFloor.Valid {
		rate = fixed.Max(rate, terms.LifeFloor.Value)
	}
	return rate, nil
}

// scale sets the scaling multipliers from the index ratio.
func scale(terms domain.Terms, s domain.State, ext domain.ExternalData) (domain.State, error) {
	index, err := ext.AsNumber()
	if err != nil {
		return domain.State{}, err
	}
	if !terms.ScalingIndexAtContractDealDate.Valid {
		return domain.State{}, errMissingScalingBase
	}
	ratio, err := index.Div(terms.ScalingIndexAtContractDealDate.Value)
	if err != nil {
		return domain.State{}, err
	}
	if terms.ScalingEffect.ScalesInterest() {
		s.InterestScalingMultiplier = ratio
	}
	if terms.ScalingEffect.ScalesNotional() {
		s.NotionalScalingMultiplier = ratio
	}
	return s, nil
}
