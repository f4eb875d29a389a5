package engine

import (
	"time"

	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
	"github.com/alanyoungcy/actus/internal/schedule"
)

// ANN is the annuity: PAM plus periodic principal redemptions sized so
// that principal and interest together form a constant payment.
type ANN struct {
	PAM
}

var annEvents = eventSet(
	domain.EventAD, domain.EventIED, domain.EventFP, domain.EventPR, domain.EventPP, domain.EventPY,
	domain.EventIP, domain.EventIPCI, domain.EventIPCB, domain.EventRRF, domain.EventRR, domain.EventSC,
	domain.EventPRD, domain.EventTD, domain.EventMD, domain.EventCE,
)

func (e *ANN) ContractType() domain.ContractType { return domain.ContractANN }

func (e *ANN) Supports(t domain.EventType) bool { return annEvents[t] }

func (e *ANN) ComputeInitialState(terms domain.Terms) (domain.State, error) {
	if err := e.validate(terms, domain.ContractANN); err != nil {
		return domain.State{}, err
	}
	s, err := e.PAM.initialState(terms)
	if err != nil {
		return domain.State{}, err
	}
	if !terms.InitialExchangeDate.Before(terms.StatusDate) {
		return s, nil
	}
	if s.NextPrincipalRedemptionPayment, err = e.nextPayment(terms, s, terms.StatusDate); err != nil {
		return domain.State{}, err
	}
	return s, nil
}

func (e *ANN) ComputeSchedule(terms domain.Terms, start, end time.Time) ([]domain.Event, error) {
	if err := e.validate(terms, domain.ContractANN); err != nil {
		return nil, err
	}
	b := schedule.NewBuilder(start, end)
	e.addPrincipalEvents(b, terms)

	prAnchor := anchorOr(terms.CycleAnchorDateOfPrincipalRedemption, terms.InitialExchangeDate, terms.CycleOfPrincipalRedemption)
	b.AddCycle(domain.EventPR, prAnchor, terms.MaturityDate, terms.CycleOfPrincipalRedemption, terms.EndOfMonthConvention, false)

	// interest follows the redemption cycle unless it has its own
	ipAnchor, ipCycle := terms.CycleAnchorDateOfInterestPayment, terms.CycleOfInterestPayment
	if !ipCycle.Active() && ipAnchor.IsZero() {
		ipAnchor, ipCycle = prAnchor, terms.CycleOfPrincipalRedemption
	}
	if err := e.addInterestEvents(b, terms, ipAnchor, ipCycle); err != nil {
		return nil, err
	}
	if terms.InterestCalculationBase == domain.InterestBaseNotionalLagged {
		anchor := anchorOr(terms.CycleAnchorDateOfInterestCalculationBase, terms.InitialExchangeDate, terms.CycleOfInterestCalculationBase)
		b.AddCycle(domain.EventIPCB, anchor, terms.MaturityDate, terms.CycleOfInterestCalculationBase, terms.EndOfMonthConvention, false)
	}
	if err := e.addRateResetEvents(b, terms); err != nil {
		return nil, err
	}
	e.addFeeAndScalingEvents(b, terms)
	return truncate(b, terms)
}

func (e *ANN) ComputePayoffForEvent(terms domain.Terms, s domain.State, ev domain.Event, ext domain.ExternalData) (fixed.Int, error) {
	if !e.Supports(ev.Type) {
		return fixed.Zero, unsupported(terms.ContractType, ev)
	}
	switch ev.Type {
	case domain.EventPR:
		r, err := e.redemption(terms, s, ev.ScheduleTime)
		if err != nil {
			return fixed.Zero, err
		}
		return s.NotionalScalingMultiplier.Mul(r)
	case domain.EventIPCB:
		return fixed.Zero, nil
	}
	return e.payoff(terms, s, ev, ext)
}

// redemption is the signed principal part of the payment due at t: the
// next payment less all interest owed, never more than the outstanding
// notional.
func (e *ANN) redemption(terms domain.Terms, s domain.State, t time.Time) (fixed.Int, error) {
	sign := terms.Sign()
	owed, err := fixed.From(s.NextPrincipalRedemptionPayment).
		Sub(s.AccruedInterest).
		SubCalc(e.interestSince(terms, s, t)).
		MulInt(sign).
		Result()
	if err != nil {
		return fixed.Zero, err
	}
	outstanding, err := s.NotionalPrincipal.MulInt(sign)
	if err != nil {
		return fixed.Zero, err
	}
	return fixed.Min(outstanding, owed).MulInt(sign)
}

func (e *ANN) ComputeStateForEvent(terms domain.Terms, s domain.State, ev domain.Event, ext domain.ExternalData) (domain.State, error) {
	if !e.Supports(ev.Type) {
		return domain.State{}, unsupported(terms.ContractType, ev)
	}
	t := ev.ScheduleTime

	switch ev.Type {
	case domain.EventPR:
		r, err := e.redemption(terms, s, t)
		if err != nil {
			return domain.State{}, err
		}
		if s, err = e.accrue(terms, s, t); err != nil {
			return domain.State{}, err
		}
		if s.NotionalPrincipal, err = s.NotionalPrincipal.Sub(r); err != nil {
			return domain.State{}, err
		}
		if terms.InterestCalculationBase != domain.InterestBaseNotionalLagged && terms.InterestCalculationBase != domain.InterestBaseNotionalAtIED {
			s.InterestCalculationBaseAmount = s.NotionalPrincipal
		}
		return s, nil

	case domain.EventIPCB:
		s, err := e.accrue(terms, s, t)
		if err != nil {
			return domain.State{}, err
		}
		s.InterestCalculationBaseAmount = s.NotionalPrincipal
		return s, nil
	}

	next, err := e.transition(terms, s, ev, ext)
	if err != nil {
		return domain.State{}, err
	}

	switch ev.Type {
	case domain.EventIED:
		if next.NextPrincipalRedemptionPayment, err = e.nextPayment(terms, next, t); err != nil {
			return domain.State{}, err
		}
	case domain.EventRR, domain.EventRRF:
		if next.NextPrincipalRedemptionPayment, err = e.recompute(terms, next, t); err != nil {
			return domain.State{}, err
		}
	case domain.EventPP:
		if terms.PrepaymentEffect == domain.PrepaymentReduceAmount {
			if next.NextPrincipalRedemptionPayment, err = e.recompute(terms, next, t); err != nil {
				return domain.State{}, err
			}
		}
	case domain.EventMD, domain.EventTD:
		next.NextPrincipalRedemptionPayment = fixed.Zero
	}
	return next, nil
}

// nextPayment is the payment given in terms, or the annuity from t when
// terms leave it unset.
func (e *ANN) nextPayment(terms domain.Terms, s domain.State, t time.Time) (fixed.Int, error) {
	if !terms.NextPrincipalRedemptionPayment.IsZero() {
		return signed(terms, terms.NextPrincipalRedemptionPayment)
	}
	return e.recompute(terms, s, t)
}

// recompute sizes the payment for the remaining redemption dates after t.
func (e *ANN) recompute(terms domain.Terms, s domain.State, t time.Time) (fixed.Int, error) {
	n, err := s.NotionalPrincipal.Abs()
	if err != nil {
		return fixed.Zero, err
	}
	a, err := s.AccruedInterest.Abs()
	if err != nil {
		return fixed.Zero, err
	}
	dates, err := redemptionDates(terms, t)
	if err != nil {
		return fixed.Zero, err
	}
	amount, err := e.annuity(terms, dates, n, a, s.NominalInterestRate)
	if err != nil {
		return fixed.Zero, err
	}
	return signed(terms, amount)
}

// redemptionDates returns the redemption dates strictly after t, ending
// with maturity.
func redemptionDates(terms domain.Terms, t time.Time) ([]time.Time, error) {
	cycle := terms.CycleOfPrincipalRedemption
	anchor := anchorOr(terms.CycleAnchorDateOfPrincipalRedemption, terms.InitialExchangeDate, cycle)
	dates, err := schedule.ComputeDatesFromCycleSegment(anchor, terms.MaturityDate, cycle, terms.EndOfMonthConvention, true,
		t.Add(time.Second), time.Time{})
	if err != nil {
		return nil, err
	}
	if n := len(dates); n == 0 && terms.MaturityDate.After(t) {
		dates = append(dates, terms.MaturityDate)
	}
	return dates, nil
}

// annuity computes
//
//	A = (n + a) · Π g_i / (1 + Σ_i Π_{j>=i} g_j),  g_i = 1 + r·Y(t_i, t_i+1)
//
// over the remaining redemption dates. With a single date left the whole
// balance is due.
func (e *ANN) annuity(terms domain.Terms, dates []time.Time, n, a, r fixed.Int) (fixed.Int, error) {
	total, err := n.Add(a)
	if err != nil {
		return fixed.Zero, err
	}
	if len(dates) < 2 {
		return total, nil
	}
	growth := make([]fixed.Int, len(dates)-1)
	for i := range growth {
		yf, err := e.yearFraction(terms, dates[i], dates[i+1])
		if err != nil {
			return fixed.Zero, err
		}
		if growth[i], err = fixed.From(r).Mul(yf).Add(fixed.One).Result(); err != nil {
			return fixed.Zero, err
		}
	}

	// tail products accumulated from the last period backwards
	sum, prod := fixed.One, fixed.One
	for i := len(growth) - 1; i >= 0; i-- {
		if prod, err = prod.Mul(growth[i]); err != nil {
			return fixed.Zero, err
		}
		if sum, err = sum.Add(prod); err != nil {
			return fixed.Zero, err
		}
	}
	return fixed.From(total).Mul(prod).Div(sum).Result()
}
