package domain

// ContractType selects the engine variant.
type ContractType string

const (
	ContractPAM   ContractType = "PAM"   // principal at maturity
	ContractANN   ContractType = "ANN"   // annuity
	ContractCEG   ContractType = "CEG"   // credit enhancement guarantee
	ContractCEC   ContractType = "CEC"   // credit enhancement collateral (legacy name)
	ContractCOLLA ContractType = "COLLA" // collateral
	ContractCERTF ContractType = "CERTF" // certificate
	ContractSTK   ContractType = "STK"   // stock
)

// ContractRole is the side of the contract the asset represents.
type ContractRole string

const (
	RoleRPA  ContractRole = "RPA"  // real position asset
	RoleRPL  ContractRole = "RPL"  // real position liability
	RoleRFL  ContractRole = "RFL"  // receive first leg
	RolePFL  ContractRole = "PFL"  // pay first leg
	RoleRF   ContractRole = "RF"   // receive fix
	RolePF   ContractRole = "PF"   // pay fix
	RoleBUY  ContractRole = "BUY"  // buyer
	RoleSEL  ContractRole = "SEL"  // seller
	RoleCOL  ContractRole = "COL"  // collateral position
	RoleCNO  ContractRole = "CNO"  // close-out netting
	RoleUDL  ContractRole = "UDL"  // underlying
	RoleUDLP ContractRole = "UDLP" // underlying plus
	RoleUDLM ContractRole = "UDLM" // underlying minus
)

// Sign returns +1 for roles that receive the first leg of cash flows and -1
// for roles that pay it. Underlying roles have no sign.
func (r ContractRole) Sign() int64 {
	switch r {
	case RoleRPA, RoleRFL, RoleBUY, RoleRF, RoleCOL, RoleUDLP:
		return 1
	case RoleRPL, RolePFL, RoleSEL, RolePF, RoleCNO, RoleUDLM:
		return -1
	}
	return 0
}

// ContractPerformance is the performance state machine.
type ContractPerformance string

const (
	PerformancePerformant   ContractPerformance = "PF"
	PerformanceDueButUnpaid ContractPerformance = "DL"
	PerformanceDelinquent   ContractPerformance = "DQ"
	PerformanceDefaulted    ContractPerformance = "DF"
	PerformanceMatured      ContractPerformance = "MA"
	PerformanceTerminated   ContractPerformance = "TE"
)

// Final reports whether no further progression is accepted.
func (p ContractPerformance) Final() bool {
	return p == PerformanceDefaulted || p == PerformanceMatured || p == PerformanceTerminated
}

// severity orders the non-performing states. Final states rank highest.
func (p ContractPerformance) severity() int {
	switch p {
	case PerformancePerformant:
		return 0
	case PerformanceDueButUnpaid:
		return 1
	case PerformanceDelinquent:
		return 2
	case PerformanceDefaulted:
		return 3
	}
	return 4
}

// AtLeast reports whether p is at least as severe as q.
func (p ContractPerformance) AtLeast(q ContractPerformance) bool {
	return p.severity() >= q.severity()
}

type FeeBasis string

const (
	FeeBasisAbsolute FeeBasis = "A"
	FeeBasisNotional FeeBasis = "N"
)

// ScalingEffect says whether interest (I) and/or notional (N) are scaled.
type ScalingEffect string

const (
	ScalingNone             ScalingEffect = "000"
	ScalingInterest         ScalingEffect = "I00"
	ScalingNotional         ScalingEffect = "0N0"
	ScalingInterestNotional ScalingEffect = "IN0"
)

func (s ScalingEffect) ScalesInterest() bool {
	return s == ScalingInterest || s == ScalingInterestNotional
}

func (s ScalingEffect) ScalesNotional() bool {
	return s == ScalingNotional || s == ScalingInterestNotional
}

type InterestCalculationBase string

const (
	InterestBaseNotional       InterestCalculationBase = "NT"
	InterestBaseNotionalAtIED  InterestCalculationBase = "NTIED"
	InterestBaseNotionalLagged InterestCalculationBase = "NTL"
)

// CreditEventTypeCovered is the underlying performance that triggers a
// credit enhancement.
type CreditEventTypeCovered string

const (
	CreditEventDL CreditEventTypeCovered = "DL"
	CreditEventDQ CreditEventTypeCovered = "DQ"
	CreditEventDF CreditEventTypeCovered = "DF"
)

// Triggered reports whether an underlying in performance p is covered.
func (c CreditEventTypeCovered) Triggered(p ContractPerformance) bool {
	if c == "" || p.Final() && p != PerformanceDefaulted {
		return false
	}
	return p != PerformancePerformant && p.AtLeast(ContractPerformance(c))
}

// GuaranteedExposure selects what a credit enhancement covers.
type GuaranteedExposure string

const (
	ExposureNotional         GuaranteedExposure = "NO"
	ExposureNotionalInterest GuaranteedExposure = "NI"
	ExposureMarketValue      GuaranteedExposure = "MV"
)

type CouponType string

const (
	CouponNone          CouponType = "NOC"
	CouponFixed         CouponType = "FIX"
	CouponFixedCallable CouponType = "FCN"
	CouponPreferred     CouponType = "PRF"
)

type PenaltyType string

const (
	PenaltyNone     PenaltyType = "O"
	PenaltyAbsolute PenaltyType = "A"
	PenaltyNotional PenaltyType = "N"
	PenaltyInterest PenaltyType = "I"
)

type PrepaymentEffect string

const (
	PrepaymentNone           PrepaymentEffect = "N"
	PrepaymentReduceAmount   PrepaymentEffect = "A"
	PrepaymentReduceMaturity PrepaymentEffect = "M"
)
