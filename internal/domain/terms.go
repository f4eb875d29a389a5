package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/actus/internal/conventions"
	"github.com/alanyoungcy/actus/internal/fixed"
)

// TermsSchemaVersion is written into every Terms record this build creates.
const TermsSchemaVersion = 1

// Terms is the immutable configuration of a contract. Field names follow
// the ACTUS data dictionary.
type Terms struct {
	SchemaVersion int          `json:"schemaVersion"`
	ContractID    string       `json:"contractId,omitzero"`
	ContractType  ContractType `json:"contractType"`
	ContractRole  ContractRole `json:"contractRole"`

	Currency           string `json:"currency,omitzero"`
	SettlementCurrency string `json:"settlementCurrency,omitzero"`

	// Market object codes used to look up external data.
	MarketObjectCode               string `json:"marketObjectCode,omitzero"`
	MarketObjectCodeOfRateReset    string `json:"marketObjectCodeOfRateReset,omitzero"`
	MarketObjectCodeOfScalingIndex string `json:"marketObjectCodeOfScalingIndex,omitzero"`
	MarketObjectCodeOfDividends    string `json:"marketObjectCodeOfDividends,omitzero"`
	MarketObjectCodeOfSplits       string `json:"marketObjectCodeOfSplits,omitzero"`
	ObjectCodeOfPrepaymentModel    string `json:"objectCodeOfPrepaymentModel,omitzero"`

	// ContractReference is the underlying asset covered by CEG and COLLA.
	ContractReference AssetID `json:"contractReference,omitzero"`

	DayCountConvention    conventions.DayCountConvention    `json:"dayCountConvention,omitzero"`
	BusinessDayConvention conventions.BusinessDayConvention `json:"businessDayConvention,omitzero"`
	Calendar              conventions.CalendarID            `json:"calendar,omitzero"`
	EndOfMonthConvention  conventions.EndOfMonthConvention  `json:"endOfMonthConvention,omitzero"`

	StatusDate            time.Time `json:"statusDate"`
	ContractDealDate      time.Time `json:"contractDealDate,omitzero"`
	InitialExchangeDate   time.Time `json:"initialExchangeDate,omitzero"`
	MaturityDate          time.Time `json:"maturityDate,omitzero"`
	IssueDate             time.Time `json:"issueDate,omitzero"`
	PurchaseDate          time.Time `json:"purchaseDate,omitzero"`
	TerminationDate       time.Time `json:"terminationDate,omitzero"`
	CapitalizationEndDate time.Time `json:"capitalizationEndDate,omitzero"`
	ExerciseDate          time.Time `json:"exerciseDate,omitzero"`
	NonPerformingDate     time.Time `json:"nonPerformingDate,omitzero"`

	CycleAnchorDateOfInterestPayment         time.Time `json:"cycleAnchorDateOfInterestPayment,omitzero"`
	CycleAnchorDateOfPrincipalRedemption     time.Time `json:"cycleAnchorDateOfPrincipalRedemption,omitzero"`
	CycleAnchorDateOfRateReset               time.Time `json:"cycleAnchorDateOfRateReset,omitzero"`
	CycleAnchorDateOfFee                     time.Time `json:"cycleAnchorDateOfFee,omitzero"`
	CycleAnchorDateOfScalingIndex            time.Time `json:"cycleAnchorDateOfScalingIndex,omitzero"`
	CycleAnchorDateOfInterestCalculationBase time.Time `json:"cycleAnchorDateOfInterestCalculationBase,omitzero"`
	CycleAnchorDateOfDividend                time.Time `json:"cycleAnchorDateOfDividend,omitzero"`
	CycleAnchorDateOfCoupon                  time.Time `json:"cycleAnchorDateOfCoupon,omitzero"`
	CycleAnchorDateOfRedemption              time.Time `json:"cycleAnchorDateOfRedemption,omitzero"`

	CycleOfInterestPayment         conventions.Cycle `json:"cycleOfInterestPayment,omitzero"`
	CycleOfPrincipalRedemption     conventions.Cycle `json:"cycleOfPrincipalRedemption,omitzero"`
	CycleOfRateReset               conventions.Cycle `json:"cycleOfRateReset,omitzero"`
	CycleOfFee                     conventions.Cycle `json:"cycleOfFee,omitzero"`
	CycleOfScalingIndex            conventions.Cycle `json:"cycleOfScalingIndex,omitzero"`
	CycleOfInterestCalculationBase conventions.Cycle `json:"cycleOfInterestCalculationBase,omitzero"`
	CycleOfDividend                conventions.Cycle `json:"cycleOfDividend,omitzero"`
	CycleOfCoupon                  conventions.Cycle `json:"cycleOfCoupon,omitzero"`
	CycleOfRedemption              conventions.Cycle `json:"cycleOfRedemption,omitzero"`

	SettlementPeriod  conventions.Period `json:"settlementPeriod,omitzero"`
	GracePeriod       conventions.Period `json:"gracePeriod,omitzero"`
	DelinquencyPeriod conventions.Period `json:"delinquencyPeriod,omitzero"`

	NotionalPrincipal              fixed.Int     `json:"notionalPrincipal,omitzero"`
	NominalInterestRate            fixed.Int     `json:"nominalInterestRate,omitzero"`
	AccruedInterest                fixed.Int     `json:"accruedInterest,omitzero"`
	FeeAccrued                     fixed.Int     `json:"feeAccrued,omitzero"`
	FeeRate                        fixed.Int     `json:"feeRate,omitzero"`
	RateSpread                     fixed.Int     `json:"rateSpread,omitzero"`
	RateMultiplier                 fixed.NullInt `json:"rateMultiplier,omitzero"`
	PeriodCap                      fixed.NullInt `json:"periodCap,omitzero"`
	PeriodFloor                    fixed.NullInt `json:"periodFloor,omitzero"`
	LifeCap                        fixed.NullInt `json:"lifeCap,omitzero"`
	LifeFloor                      fixed.NullInt `json:"lifeFloor,omitzero"`
	NextResetRate                  fixed.NullInt `json:"nextResetRate,omitzero"`
	PremiumDiscountAtIED           fixed.Int     `json:"premiumDiscountAtIED,omitzero"`
	PriceAtPurchaseDate            fixed.Int     `json:"priceAtPurchaseDate,omitzero"`
	PriceAtTerminationDate         fixed.Int     `json:"priceAtTerminationDate,omitzero"`
	NextPrincipalRedemptionPayment fixed.Int     `json:"nextPrincipalRedemptionPayment,omitzero"`
	InterestCalculationBaseAmount  fixed.Int     `json:"interestCalculationBaseAmount,omitzero"`
	ScalingIndexAtContractDealDate fixed.NullInt `json:"scalingIndexAtContractDealDate,omitzero"`
	PenaltyRate                    fixed.Int     `json:"penaltyRate,omitzero"`
	CoverageOfCreditEnhancement    fixed.Int     `json:"coverageOfCreditEnhancement,omitzero"`
	CollateralAmount               fixed.Int     `json:"collateralAmount,omitzero"`
	Quantity                       fixed.Int     `json:"quantity,omitzero"`
	NextDividendPaymentAmount      fixed.Int     `json:"nextDividendPaymentAmount,omitzero"`
	DenominationRatio              fixed.NullInt `json:"denominationRatio,omitzero"`
	IssuePrice                     fixed.Int     `json:"issuePrice,omitzero"`
	RedemptionPrice                fixed.Int     `json:"redemptionPrice,omitzero"`
	CouponRate                     fixed.Int     `json:"couponRate,omitzero"`

	FeeBasis                FeeBasis                `json:"feeBasis,omitzero"`
	ScalingEffect           ScalingEffect           `json:"scalingEffect,omitzero"`
	InterestCalculationBase InterestCalculationBase `json:"interestCalculationBase,omitzero"`
	PenaltyType             PenaltyType             `json:"penaltyType,omitzero"`
	PrepaymentEffect        PrepaymentEffect        `json:"prepaymentEffect,omitzero"`
	CreditEventTypeCovered  CreditEventTypeCovered  `json:"creditEventTypeCovered,omitzero"`
	GuaranteedExposure      GuaranteedExposure      `json:"guaranteedExposure,omitzero"`
	CouponType              CouponType              `json:"couponType,omitzero"`
}

// Sign is the role sign applied to cash flows.
func (t Terms) Sign() int64 { return t.ContractRole.Sign() }

// Multiplier returns RateMultiplier, defaulting to one.
func (t Terms) Multiplier() fixed.Int {
	if t.RateMultiplier.Valid {
		return t.RateMultiplier.Value
	}
	return fixed.One
}

// Denomination returns DenominationRatio, defaulting to one.
func (t Terms) Denomination() fixed.Int {
	if t.DenominationRatio.Valid {
		return t.DenominationRatio.Value
	}
	return fixed.One
}

// Validate checks the combination of terms for the contract type and
// returns every problem found, wrapped in ErrMalformedTerms.
func (t Terms) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch t.ContractType {
	case ContractPAM, ContractANN, ContractCEG, ContractCEC, ContractCOLLA, ContractCERTF, ContractSTK:
	default:
		add("contractType %q is not supported", t.ContractType)
	}
	if t.ContractRole.Sign() == 0 {
		add("contractRole %q is not a signed role", t.ContractRole)
	}
	if t.StatusDate.IsZero() {
		add("statusDate is required")
	}
	if t.DayCountConvention != "" && !t.DayCountConvention.Valid() {
		add("dayCountConvention %q is not supported", t.DayCountConvention)
	}
	if !t.BusinessDayConvention.Valid() {
		add("businessDayConvention %q is not supported", t.BusinessDayConvention)
	}
	switch t.EndOfMonthConvention {
	case "", conventions.EOMSameDay, conventions.EOMEndOfMonth:
	default:
		add("endOfMonthConvention %q is not supported", t.EndOfMonthConvention)
	}
	if !t.MaturityDate.IsZero() && !t.InitialExchangeDate.IsZero() && t.MaturityDate.Before(t.InitialExchangeDate) {
		add("maturityDate is before initialExchangeDate")
	}
	if t.LifeCap.Valid && t.LifeFloor.Valid && t.LifeCap.Value.LessThan(t.LifeFloor.Value) {
		add("lifeCap is below lifeFloor")
	}
	if t.FeeBasis != "" && t.FeeBasis != FeeBasisAbsolute && t.FeeBasis != FeeBasisNotional {
		add("feeBasis %q is not supported", t.FeeBasis)
	}
	if t.GracePeriod.Interval < 0 || t.DelinquencyPeriod.Interval < 0 {
		add("grace and delinquency periods must not be negative")
	}

	switch t.ContractType {
	case ContractPAM, ContractANN:
		if t.DayCountConvention == "" {
			add("dayCountConvention is required for %s", t.ContractType)
		}
		if t.InitialExchangeDate.IsZero() {
			add("initialExchangeDate is required for %s", t.ContractType)
		}
		if t.MaturityDate.IsZero() {
			add("maturityDate is required for %s", t.ContractType)
		}
		if t.NotionalPrincipal.Sign() <= 0 {
			add("notionalPrincipal must be positive")
		}
		if t.ContractType == ContractANN && !t.CycleOfPrincipalRedemption.Active() {
			add("cycleOfPrincipalRedemption is required for ANN")
		}
	case ContractCEG, ContractCEC, ContractCOLLA:
		if t.ContractReference == (AssetID{}) {
			add("contractReference is required for %s", t.ContractType)
		}
		if t.CreditEventTypeCovered == "" {
			add("creditEventTypeCovered is required for %s", t.ContractType)
		}
		if t.ContractType == ContractCOLLA && t.CollateralAmount.Sign() <= 0 {
			add("collateralAmount must be positive for COLLA")
		}
		if t.ContractType != ContractCOLLA && t.CoverageOfCreditEnhancement.Sign() <= 0 {
			add("coverageOfCreditEnhancement must be positive for %s", t.ContractType)
		}
	case ContractCERTF, ContractSTK:
		if t.Quantity.Sign() <= 0 {
			add("quantity must be positive for %s", t.ContractType)
		}
		if t.ContractType == ContractCERTF && t.IssueDate.IsZero() {
			add("issueDate is required for CERTF")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrMalformedTerms, errors.Join(errs...))
}
