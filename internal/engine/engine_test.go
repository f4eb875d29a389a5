package engine

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/actus/internal/conventions"
	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func num(s string) fixed.Int { return fixed.MustParse(s) }

func cycle(n int, unit conventions.PeriodUnit) conventions.Cycle {
	return conventions.Cycle{Period: conventions.Period{Interval: n, Unit: unit}, Stub: conventions.StubLong, IsSet: true}
}

func days(n int) conventions.Period {
	return conventions.Period{Interval: n, Unit: conventions.UnitDay}
}

func pamTerms() domain.Terms {
	return domain.Terms{
		ContractType:           domain.ContractPAM,
		ContractRole:           domain.RoleRPA,
		DayCountConvention:     conventions.DayCountA365,
		StatusDate:             date(2023, 12, 15),
		InitialExchangeDate:    date(2024, 1, 1),
		MaturityDate:           date(2025, 1, 1),
		NotionalPrincipal:      num("1000000"),
		NominalInterestRate:    num("0.05"),
		CycleOfInterestPayment: cycle(1, conventions.UnitQuarter),
	}
}

func mustEngine(t *testing.T, ct domain.ContractType) Engine {
	t.Helper()
	e, err := New(ct)
	require.NoError(t, err)
	return e
}

func types(events []domain.Event) []domain.EventType {
	out := make([]domain.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

// epoch-based state used by the reference scenarios; 6,307,200 seconds is
// 73 days, exactly 0.2 years under A365.
var (
	scenarioStart = time.Unix(0, 0).UTC()
	scenarioAt    = time.Unix(6_307_200, 0).UTC()
)

func TestReferenceScenarios(t *testing.T) {
	pam := mustEngine(t, domain.ContractPAM)

	t.Run("fee payment absolute basis", func(t *testing.T) {
		terms := domain.Terms{ContractType: domain.ContractPAM, ContractRole: domain.RoleRPA, FeeBasis: domain.FeeBasisAbsolute, FeeRate: num("5")}
		got, err := pam.ComputePayoffForEvent(terms, domain.State{StatusDate: scenarioStart}, domain.NewEvent(domain.EventFP, scenarioAt), domain.NoData())
		require.NoError(t, err)
		assert.Equal(t, num("5"), got)
	})

	t.Run("fee payment notional basis", func(t *testing.T) {
		terms := domain.Terms{
			ContractType: domain.ContractPAM, ContractRole: domain.RoleRPA,
			DayCountConvention: conventions.DayCountA365, FeeBasis: domain.FeeBasisNotional, FeeRate: num("0.05"),
		}
		s := domain.State{StatusDate: scenarioStart, NotionalPrincipal: num("1000000"), FeeAccrued: num("100")}
		got, err := pam.ComputePayoffForEvent(terms, s, domain.NewEvent(domain.EventFP, scenarioAt), domain.NoData())
		require.NoError(t, err)
		assert.Equal(t, num("10100"), got)
	})

	t.Run("interest payment", func(t *testing.T) {
		terms := domain.Terms{ContractType: domain.ContractPAM, ContractRole: domain.RoleRPA, DayCountConvention: conventions.DayCountA365}
		s := domain.State{
			StatusDate:                scenarioStart,
			NotionalPrincipal:         num("1000000"),
			NominalInterestRate:       num("0.05"),
			InterestScalingMultiplier: num("2"),
			AccruedInterest:           num("100"),
		}
		got, err := pam.ComputePayoffForEvent(terms, s, domain.NewEvent(domain.EventIP, scenarioAt), domain.NoData())
		require.NoError(t, err)
		assert.Equal(t, num("20200"), got)
	})

	t.Run("annuity principal redemption", func(t *testing.T) {
		ann := mustEngine(t, domain.ContractANN)
		terms := domain.Terms{ContractType: domain.ContractANN, ContractRole: domain.RoleRPA, DayCountConvention: conventions.DayCountA365}
		s := domain.State{
			StatusDate:                     scenarioStart,
			NotionalPrincipal:              num("1000000"),
			NominalInterestRate:            num("0.05"),
			NotionalScalingMultiplier:      num("1.1"),
			NextPrincipalRedemptionPayment: num("1000"),
			AccruedInterest:                num("100"),
		}
		got, err := ann.ComputePayoffForEvent(terms, s, domain.NewEvent(domain.EventPR, scenarioAt), domain.NoData())
		require.NoError(t, err)
		assert.Equal(t, num("-10010"), got)
	})

	t.Run("analysis event accrues", func(t *testing.T) {
		terms := domain.Terms{
			ContractType: domain.ContractPAM, ContractRole: domain.RoleRPA,
			DayCountConvention: conventions.DayCountA365, FeeBasis: domain.FeeBasisNotional, FeeRate: num("0.01"),
		}
		s := domain.State{
			StatusDate:          scenarioStart,
			NotionalPrincipal:   num("1000000"),
			NominalInterestRate: num("0.05"),
			AccruedInterest:     num("100"),
			FeeAccrued:          num("10"),
		}
		got, err := pam.ComputeStateForEvent(terms, s, domain.NewEvent(domain.EventAD, scenarioAt), domain.NoData())
		require.NoError(t, err)
		assert.Equal(t, num("10100"), got.AccruedInterest)
		assert.Equal(t, num("2010"), got.FeeAccrued)
		assert.Equal(t, int64(6_307_200), got.StatusDate.Unix())
	})
}

func TestNew(t *testing.T) {
	for _, ct := range []domain.ContractType{
		domain.ContractPAM, domain.ContractANN, domain.ContractCERTF, domain.ContractSTK,
		domain.ContractCEG, domain.ContractCEC, domain.ContractCOLLA,
	} {
		e, err := New(ct)
		require.NoError(t, err)
		assert.Equal(t, ct, e.ContractType())
	}

	_, err := New("SWAPS")
	assert.ErrorIs(t, err, domain.ErrMalformedTerms)

	set := NewSet()
	e, err := set.For(domain.ContractANN)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractANN, e.ContractType())
	_, err = set.For("FXOUT")
	assert.ErrorIs(t, err, domain.ErrMalformedTerms)

	_, ok := e.(CreditEnhancement)
	assert.False(t, ok)
	ceg, err := set.For(domain.ContractCEG)
	require.NoError(t, err)
	_, ok = ceg.(CreditEnhancement)
	assert.True(t, ok)
}

func TestPAMSchedule(t *testing.T) {
	e := mustEngine(t, domain.ContractPAM)
	terms := pamTerms()

	events, err := WholeLifeSchedule(e, terms, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{
		domain.EventIED, domain.EventIP, domain.EventIP, domain.EventIP, domain.EventIP, domain.EventMD,
	}, types(events))
	assert.Equal(t, date(2024, 4, 1), events[1].ScheduleTime)
	assert.Equal(t, date(2025, 1, 1), events[5].ScheduleTime)

	again, err := WholeLifeSchedule(e, terms, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, events, again)
}

func TestPAMScheduleOptionalCycles(t *testing.T) {
	e := mustEngine(t, domain.ContractPAM)
	terms := pamTerms()
	terms.CycleOfRateReset = cycle(6, conventions.UnitMonth)
	terms.MarketObjectCodeOfRateReset = "EURIBOR6M"
	terms.NextResetRate = fixed.Some(num("0.04"))
	terms.FeeRate = num("0.001")
	terms.CycleOfFee = cycle(1, conventions.UnitYear)
	terms.CapitalizationEndDate = date(2024, 4, 1)

	events, err := WholeLifeSchedule(e, terms, time.Time{})
	require.NoError(t, err)

	count := map[domain.EventType]int{}
	for _, ev := range events {
		count[ev.Type]++
	}
	assert.Equal(t, 1, count[domain.EventRRF])
	assert.Equal(t, 0, count[domain.EventRR], "the only reset inside the life is the fixed one")
	assert.Equal(t, 1, count[domain.EventIPCI])
	assert.Equal(t, 3, count[domain.EventIP])
	assert.Equal(t, 1, count[domain.EventFP])
}

func TestSchedulePartition(t *testing.T) {
	e := mustEngine(t, domain.ContractPAM)
	terms := pamTerms()
	terms.CycleOfInterestPayment = cycle(1, conventions.UnitMonth)
	terms.CycleOfRateReset = cycle(3, conventions.UnitMonth)
	terms.MarketObjectCodeOfRateReset = "SOFR"

	start, end := scheduleWindow(terms, time.Time{})
	whole, err := e.ComputeSchedule(terms, start, end)
	require.NoError(t, err)
	require.NotEmpty(t, whole)

	cuts := []time.Time{start, date(2024, 2, 1), date(2024, 2, 20), date(2024, 9, 1), end}
	var joined []domain.Event
	for i := 0; i+1 < len(cuts); i++ {
		part, err := e.ComputeSchedule(terms, cuts[i], cuts[i+1])
		require.NoError(t, err)
		joined = append(joined, part...)
	}
	assert.Equal(t, whole, joined)
}

func TestInitialStateDeterministic(t *testing.T) {
	e := mustEngine(t, domain.ContractPAM)
	terms := pamTerms()
	terms.AccruedInterest = num("12")

	a, err := e.ComputeInitialState(terms)
	require.NoError(t, err)
	b, err := e.ComputeInitialState(terms)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, terms.StatusDate, a.StatusDate)
	assert.Equal(t, num("1000000"), a.NotionalPrincipal)
	assert.True(t, a.AccruedInterest.IsZero(), "accruals are not seeded before the initial exchange")
	assert.Equal(t, domain.PerformancePerformant, a.ContractPerformance)

	terms.ContractRole = domain.RoleRPL
	liability, err := e.ComputeInitialState(terms)
	require.NoError(t, err)
	assert.Equal(t, num("-1000000"), liability.NotionalPrincipal)
}

func TestMalformedTerms(t *testing.T) {
	e := mustEngine(t, domain.ContractPAM)
	terms := pamTerms()
	terms.MaturityDate = time.Time{}
	_, err := e.ComputeInitialState(terms)
	assert.ErrorIs(t, err, domain.ErrMalformedTerms)

	_, err = e.ComputeInitialState(domain.Terms{ContractType: domain.ContractSTK})
	assert.ErrorIs(t, err, domain.ErrMalformedTerms)
}

func TestUnsupportedEvent(t *testing.T) {
	e := mustEngine(t, domain.ContractPAM)
	ev := domain.NewEvent(domain.EventDV, date(2024, 5, 1))
	_, err := e.ComputePayoffForEvent(pamTerms(), domain.State{}, ev, domain.NoData())
	assert.ErrorIs(t, err, domain.ErrUnsupportedEvent)
	_, err = e.ComputeStateForEvent(pamTerms(), domain.State{}, ev, domain.NoData())
	assert.ErrorIs(t, err, domain.ErrUnsupportedEvent)
}

func TestRateReset(t *testing.T) {
	e := mustEngine(t, domain.ContractPAM)
	terms := pamTerms()
	terms.RateSpread = num("0.01")
	s := domain.State{StatusDate: date(2024, 1, 1), NotionalPrincipal: num("1000000"), NominalInterestRate: num("0.05")}
	ev := domain.NewEvent(domain.EventRR, date(2024, 7, 1))

	_, err := e.ComputeStateForEvent(terms, s, ev, domain.Timestamp(date(2024, 7, 1)))
	assert.ErrorIs(t, err, domain.ErrMalformedExternalData)

	_, err = e.ComputeStateForEvent(terms, s, ev, domain.NoData())
	assert.ErrorIs(t, err, domain.ErrDataNotAvailable)

	got, err := e.ComputeStateForEvent(terms, s, ev, domain.Number(num("0.03")))
	require.NoError(t, err)
	assert.Equal(t, num("0.04"), got.NominalInterestRate)
	assert.Equal(t, date(2024, 7, 1), got.StatusDate)
	assert.False(t, got.AccruedInterest.IsZero())

	tests := []struct {
		name   string
		modify func(*domain.Terms)
		market string
		want   string
	}{
		{"uncapped", func(*domain.Terms) {}, "0.10", "0.11"},
		{"period cap", func(t *domain.Terms) { t.PeriodCap = fixed.Some(num("0.02")) }, "0.10", "0.07"},
		{"period floor", func(t *domain.Terms) { t.PeriodFloor = fixed.Some(num("0.01")) }, "0.00", "0.04"},
		{"life cap", func(t *domain.Terms) { t.LifeCap = fixed.Some(num("0.065")) }, "0.10", "0.065"},
		{"life floor", func(t *domain.Terms) { t.LifeFloor = fixed.Some(num("0.02")) }, "0.00", "0.02"},
		{"multiplier", func(t *domain.Terms) { t.RateMultiplier = fixed.Some(num("2")) }, "0.03", "0.07"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := pamTerms()
			terms.RateSpread = num("0.01")
			tt.modify(&terms)
			got, err := resetRate(terms, num("0.05"), num(tt.market))
			require.NoError(t, err)
			assert.Equal(t, num(tt.want), got)
		})
	}
}

func TestScaling(t *testing.T) {
	e := mustEngine(t, domain.ContractPAM)
	terms := pamTerms()
	terms.ScalingEffect = domain.ScalingInterestNotional
	s, err := e.ComputeInitialState(terms)
	require.NoError(t, err)
	ev := domain.NewEvent(domain.EventSC, date(2024, 1, 1))

	_, err = e.ComputeStateForEvent(terms, s, ev, domain.Number(num("110")))
	assert.ErrorIs(t, err, domain.ErrMalformedTerms)

	terms.ScalingIndexAtContractDealDate = fixed.Some(num("100"))
	got, err := e.ComputeStateForEvent(terms, s, ev, domain.Number(num("110")))
	require.NoError(t, err)
	assert.Equal(t, num("1.1"), got.InterestScalingMultiplier)
	assert.Equal(t, num("1.1"), got.NotionalScalingMultiplier)
}

func TestPAMLifecycle(t *testing.T) {
	e := mustEngine(t, domain.ContractPAM)
	terms := pamTerms()
	s, err := e.ComputeInitialState(terms)
	require.NoError(t, err)
	events, err := WholeLifeSchedule(e, terms, time.Time{})
	require.NoError(t, err)

	var total fixed.Int
	for _, ev := range events {
		pof, err := e.ComputePayoffForEvent(terms, s, ev, domain.NoData())
		require.NoError(t, err)
		total, err = total.Add(pof)
		require.NoError(t, err)
		s, err = e.ComputeStateForEvent(terms, s, ev, domain.NoData())
		require.NoError(t, err)
	}
	assert.Equal(t, domain.PerformanceMatured, s.ContractPerformance)
	assert.True(t, s.NotionalPrincipal.IsZero())
	// 366 days at 5% on one million under A365, truncated per period
	assert.Equal(t, "50136.986301369862", total.String())
}

func TestANNAmortizes(t *testing.T) {
	e := mustEngine(t, domain.ContractANN)
	terms := domain.Terms{
		ContractType:               domain.ContractANN,
		ContractRole:               domain.RoleRPA,
		DayCountConvention:         conventions.DayCount30E360,
		StatusDate:                 date(2023, 12, 1),
		InitialExchangeDate:        date(2024, 1, 1),
		MaturityDate:               date(2025, 1, 1),
		NotionalPrincipal:          num("1000"),
		CycleOfPrincipalRedemption: cycle(1, conventions.UnitQuarter),
	}
	s, err := e.ComputeInitialState(terms)
	require.NoError(t, err)
	events, err := WholeLifeSchedule(e, terms, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{
		domain.EventIED,
		domain.EventPR, domain.EventIP,
		domain.EventPR, domain.EventIP,
		domain.EventPR, domain.EventIP,
		domain.EventIP, domain.EventMD,
	}, types(events))

	s, err = e.ComputeStateForEvent(terms, s, events[0], domain.NoData())
	require.NoError(t, err)
	assert.Equal(t, num("250"), s.NextPrincipalRedemptionPayment, "zero-rate annuity splits the notional evenly")

	pof, err := e.ComputePayoffForEvent(terms, s, events[1], domain.NoData())
	require.NoError(t, err)
	assert.Equal(t, num("250"), pof)
	s, err = e.ComputeStateForEvent(terms, s, events[1], domain.NoData())
	require.NoError(t, err)
	assert.Equal(t, num("750"), s.NotionalPrincipal)
}

func TestANNAnnuityFormula(t *testing.T) {
	e := &ANN{PAM: PAM{base: base{calendars: conventions.NewCalendarSet()}}}
	terms := domain.Terms{DayCountConvention: conventions.DayCount30E360}
	dates := []time.Time{date(2024, 1, 1), date(2025, 1, 1), date(2026, 1, 1)}

	// two yearly periods at 10%: 1000·1.21 / (1 + 1.1 + 1.21)
	got, err := e.annuity(terms, dates, num("1000"), fixed.Zero, num("0.1"))
	require.NoError(t, err)
	want, err := fixed.From(num("1210")).Div(num("3.31")).Result()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = e.annuity(terms, dates[:1], num("1000"), num("5"), num("0.1"))
	require.NoError(t, err)
	assert.Equal(t, num("1005"), got)
}

func TestCERTF(t *testing.T) {
	e := mustEngine(t, domain.ContractCERTF)
	terms := domain.Terms{
		ContractType:      domain.ContractCERTF,
		ContractRole:      domain.RoleBUY,
		MarketObjectCode:  "CERT-1",
		StatusDate:        date(2024, 1, 1),
		IssueDate:         date(2024, 1, 2),
		MaturityDate:      date(2025, 1, 2),
		SettlementPeriod:  days(2),
		NotionalPrincipal: num("100"),
		Quantity:          num("10"),
		IssuePrice:        num("98"),
		RedemptionPrice:   num("101"),
		CouponType:        domain.CouponFixed,
		CouponRate:        num("0.04"),
		CycleOfCoupon:     cycle(6, conventions.UnitMonth),
	}
	s, err := e.ComputeInitialState(terms)
	require.NoError(t, err)

	events, err := WholeLifeSchedule(e, terms, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{
		domain.EventISS,
		domain.EventCOF, domain.EventCOP,
		domain.EventCOF, domain.EventREF, domain.EventCOP, domain.EventREP, domain.EventMD,
	}, types(events))
	assert.Equal(t, date(2025, 1, 4), events[len(events)-1].ScheduleTime)

	var flows []fixed.Int
	for _, ev := range events {
		pof, err := e.ComputePayoffForEvent(terms, s, ev, domain.NoData())
		require.NoError(t, err)
		flows = append(flows, pof)
		s, err = e.ComputeStateForEvent(terms, s, ev, domain.NoData())
		require.NoError(t, err)
	}
	assert.Equal(t, num("-980"), flows[0])
	assert.Equal(t, num("40"), flows[2])
	assert.Equal(t, num("1010"), flows[6])
	assert.Equal(t, domain.PerformanceMatured, s.ContractPerformance)

	// observed redemption price scales with the denomination ratio
	terms.DenominationRatio = fixed.Some(num("0.5"))
	got, err := e.ComputeStateForEvent(terms, domain.State{Quantity: num("10")}, domain.NewEvent(domain.EventREF, terms.MaturityDate), domain.Number(num("210")))
	require.NoError(t, err)
	assert.Equal(t, num("105"), got.ExerciseAmount)
}

func TestSTK(t *testing.T) {
	e := mustEngine(t, domain.ContractSTK)
	terms := domain.Terms{
		ContractType:              domain.ContractSTK,
		ContractRole:              domain.RoleBUY,
		StatusDate:                date(2024, 1, 1),
		Quantity:                  num("100"),
		CycleAnchorDateOfDividend: date(2024, 3, 31),
		CycleOfDividend:           cycle(1, conventions.UnitQuarter),
		SettlementPeriod:          days(5),
		NextDividendPaymentAmount: num("0.5"),
		MarketObjectCodeOfSplits:  "ACME-SPLIT",
	}
	_, err := WholeLifeSchedule(e, terms, time.Time{})
	assert.ErrorIs(t, err, domain.ErrMalformedTerms)

	events, err := WholeLifeSchedule(e, terms, date(2025, 1, 1))
	require.NoError(t, err)
	// the December fixing pays after the horizon
	assert.Equal(t, []domain.EventType{
		domain.EventDIF, domain.EventDV, domain.EventDIF, domain.EventDV, domain.EventDIF, domain.EventDV, domain.EventDIF,
	}, types(events))

	s, err := e.ComputeInitialState(terms)
	require.NoError(t, err)
	s, err = e.ComputeStateForEvent(terms, s, events[0], domain.NoData())
	require.NoError(t, err)
	pof, err := e.ComputePayoffForEvent(terms, s, events[1], domain.NoData())
	require.NoError(t, err)
	assert.Equal(t, num("50"), pof)

	req, ok := e.ExternalDataFor(terms, domain.NewEvent(domain.EventSPF, date(2024, 6, 1)))
	require.True(t, ok)
	assert.True(t, req.Required)
	assert.Equal(t, "ACME-SPLIT", req.MarketObjectCode)

	s, err = e.ComputeStateForEvent(terms, s, domain.NewEvent(domain.EventSPF, date(2024, 6, 1)), domain.Number(num("2")))
	require.NoError(t, err)
	s, err = e.ComputeStateForEvent(terms, s, domain.NewEvent(domain.EventSPS, date(2024, 6, 2)), domain.NoData())
	require.NoError(t, err)
	assert.Equal(t, num("200"), s.Quantity)
	assert.Equal(t, fixed.One, s.SplitRatio)
}

func guaranteeTerms() domain.Terms {
	return domain.Terms{
		ContractType:                domain.ContractCEG,
		ContractRole:                domain.RoleBUY,
		ContractReference:           common.HexToHash("0x01"),
		StatusDate:                  date(2024, 1, 1),
		MaturityDate:                date(2026, 1, 1),
		SettlementPeriod:            days(10),
		NotionalPrincipal:           num("1000000"),
		CoverageOfCreditEnhancement: num("0.8"),
		CreditEventTypeCovered:      domain.CreditEventDQ,
		GuaranteedExposure:          domain.ExposureNotionalInterest,
	}
}

func TestCEGExercise(t *testing.T) {
	e := mustEngine(t, domain.ContractCEG)
	ce, ok := e.(CreditEnhancement)
	require.True(t, ok)
	terms := guaranteeTerms()
	s, err := e.ComputeInitialState(terms)
	require.NoError(t, err)

	underlying := domain.State{
		ContractPerformance: domain.PerformanceDueButUnpaid,
		NonPerformingDate:   date(2024, 5, 1),
		NotionalPrincipal:   num("500000"),
		AccruedInterest:     num("2500"),
	}
	_, ok = ce.NextUnderlyingEvent(terms, s, underlying)
	assert.False(t, ok, "DL is below the covered DQ")

	underlying.ContractPerformance = domain.PerformanceDelinquent
	ev, ok := ce.NextUnderlyingEvent(terms, s, underlying)
	require.True(t, ok)
	assert.Equal(t, domain.NewEvent(domain.EventXD, date(2024, 5, 1)), ev)

	req, ok := e.ExternalDataFor(terms, ev)
	require.True(t, ok)
	assert.Equal(t, domain.SourceUnderlying, req.Source)

	exposure, err := ce.Exposure(terms, underlying)
	require.NoError(t, err)
	assert.Equal(t, num("502500"), exposure)

	s, err = e.ComputeStateForEvent(terms, s, ev, domain.Number(exposure))
	require.NoError(t, err)
	assert.Equal(t, num("402000"), s.ExerciseAmount)

	settle, ok := ce.NextUnderlyingEvent(terms, s, underlying)
	require.True(t, ok)
	assert.Equal(t, domain.NewEvent(domain.EventSTD, date(2024, 5, 11)), settle)

	pof, err := e.ComputePayoffForEvent(terms, s, settle, domain.NoData())
	require.NoError(t, err)
	assert.Equal(t, num("402000"), pof)

	s, err = e.ComputeStateForEvent(terms, s, settle, domain.NoData())
	require.NoError(t, err)
	assert.Equal(t, domain.PerformanceMatured, s.ContractPerformance)
	_, ok = ce.NextUnderlyingEvent(terms, s, underlying)
	assert.False(t, ok)
}

func TestCOLLASeizure(t *testing.T) {
	e := mustEngine(t, domain.ContractCOLLA)
	terms := guaranteeTerms()
	terms.ContractType = domain.ContractCOLLA
	terms.ContractRole = domain.RoleCOL
	terms.InitialExchangeDate = date(2024, 1, 1)
	terms.CollateralAmount = num("300000")
	terms.CoverageOfCreditEnhancement = fixed.Zero

	s, err := e.ComputeInitialState(terms)
	require.NoError(t, err)
	events, err := WholeLifeSchedule(e, terms, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{domain.EventIED, domain.EventMD}, types(events))

	pof, err := e.ComputePayoffForEvent(terms, s, events[0], domain.NoData())
	require.NoError(t, err)
	assert.Equal(t, num("300000"), pof)

	xd := domain.NewEvent(domain.EventXD, date(2024, 6, 1))
	s, err = e.ComputeStateForEvent(terms, s, xd, domain.Number(num("502500")))
	require.NoError(t, err)
	assert.Equal(t, num("300000"), s.ExerciseAmount, "seizure is capped by the collateral")

	std := domain.NewEvent(domain.EventSTD, date(2024, 6, 11))
	s, err = e.ComputeStateForEvent(terms, s, std, domain.NoData())
	require.NoError(t, err)
	assert.True(t, s.CollateralAmount.IsZero())
}

func TestApplyCreditEvent(t *testing.T) {
	terms := pamTerms()
	terms.GracePeriod = days(5)
	terms.DelinquencyPeriod = days(30)
	missed := date(2024, 4, 1)
	s := domain.State{ContractPerformance: domain.PerformancePerformant}

	tests := []struct {
		now  time.Time
		want domain.ContractPerformance
	}{
		{date(2024, 4, 2), domain.PerformanceDueButUnpaid},
		{date(2024, 4, 7), domain.PerformanceDelinquent},
		{date(2024, 5, 2), domain.PerformanceDefaulted},
	}
	for _, tt := range tests {
		got := ApplyCreditEvent(terms, s, missed, tt.now)
		assert.Equal(t, tt.want, got.ContractPerformance, tt.now.String())
		assert.Equal(t, missed, got.NonPerformingDate)
	}

	// the first miss keeps its date and performance never improves
	dq := ApplyCreditEvent(terms, s, missed, date(2024, 4, 7))
	again := ApplyCreditEvent(terms, dq, date(2024, 7, 1), date(2024, 4, 8))
	assert.Equal(t, domain.PerformanceDelinquent, again.ContractPerformance)
	assert.Equal(t, missed, again.NonPerformingDate)

	df := domain.State{ContractPerformance: domain.PerformanceDefaulted}
	assert.Equal(t, df, ApplyCreditEvent(terms, df, missed, date(2030, 1, 1)))

	terms.DelinquencyPeriod = conventions.Period{}
	never := ApplyCreditEvent(terms, s, missed, date(2030, 1, 1))
	assert.Equal(t, domain.PerformanceDelinquent, never.ContractPerformance)
}

func TestCreditEventNeedsTimestamp(t *testing.T) {
	e := mustEngine(t, domain.ContractPAM)
	terms := pamTerms()
	ev := domain.NewEvent(domain.EventCE, date(2024, 4, 1))
	_, err := e.ComputeStateForEvent(terms, domain.State{}, ev, domain.Number(fixed.One))
	assert.ErrorIs(t, err, domain.ErrMalformedExternalData)

	got, err := e.ComputeStateForEvent(terms, domain.State{ContractPerformance: domain.PerformancePerformant}, ev, domain.Timestamp(date(2024, 4, 1)))
	require.NoError(t, err)
	assert.Equal(t, domain.PerformanceDueButUnpaid, got.ContractPerformance)
}

func TestEventTimeShift(t *testing.T) {
	e := mustEngine(t, domain.ContractPAM)
	terms := pamTerms()
	terms.BusinessDayConvention = conventions.BDCSCF
	terms.Calendar = conventions.CalendarMondayToFriday
	sat := domain.NewEvent(domain.EventIP, date(2024, 6, 1))
	assert.Equal(t, date(2024, 6, 3), e.EventTime(terms, sat))
}
