package domain

import (
	"time"

	"github.com/alanyoungcy/actus/internal/fixed"
)

// State is the mutable snapshot of a contract. Engines never modify a
// State in place; every transition returns a new value.
type State struct {
	StatusDate             time.Time           `json:"statusDate"`
	ContractPerformance    ContractPerformance `json:"contractPerformance"`
	NonPerformingDate      time.Time           `json:"nonPerformingDate,omitzero"`
	MaturityDate           time.Time           `json:"maturityDate,omitzero"`
	ExerciseDate           time.Time           `json:"exerciseDate,omitzero"`
	TerminationDate        time.Time           `json:"terminationDate,omitzero"`
	LastCouponFixingDate   time.Time           `json:"lastCouponFixingDate,omitzero"`
	LastDividendFixingDate time.Time           `json:"lastDividendFixingDate,omitzero"`

	NotionalPrincipal              fixed.Int `json:"notionalPrincipal"`
	AccruedInterest                fixed.Int `json:"accruedInterest"`
	FeeAccrued                     fixed.Int `json:"feeAccrued"`
	NominalInterestRate            fixed.Int `json:"nominalInterestRate"`
	InterestScalingMultiplier      fixed.Int `json:"interestScalingMultiplier"`
	NotionalScalingMultiplier      fixed.Int `json:"notionalScalingMultiplier"`
	NextPrincipalRedemptionPayment fixed.Int `json:"nextPrincipalRedemptionPayment"`
	InterestCalculationBaseAmount  fixed.Int `json:"interestCalculationBaseAmount"`
	ExerciseAmount                 fixed.Int `json:"exerciseAmount"`
	ExerciseQuantity               fixed.Int `json:"exerciseQuantity"`
	Quantity                       fixed.Int `json:"quantity"`
	CouponAmountFixed              fixed.Int `json:"couponAmountFixed"`
	MarginFactor                   fixed.Int `json:"marginFactor"`
	AdjustmentFactor               fixed.Int `json:"adjustmentFactor"`
	DividendPaymentAmount          fixed.Int `json:"dividendPaymentAmount"`
	SplitRatio                     fixed.Int `json:"splitRatio"`
	CollateralAmount               fixed.Int `json:"collateralAmount"`
}

// Performant reports whether the contract is meeting its obligations.
func (s State) Performant() bool {
	return s.ContractPerformance == PerformancePerformant
}
