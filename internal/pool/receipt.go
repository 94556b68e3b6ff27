package pool

import (
	"math/big"
	"time"
)

// OpKind names an engine operation for receipts and journaling.
type OpKind string

const (
	OpDepositBacking      OpKind = "deposit_backing"
	OpDepositYieldBearing OpKind = "deposit_yield_bearing"
	OpRedeem              OpKind = "redeem"
	OpRedeemToBacking     OpKind = "redeem_to_backing"
)

// AssetKind names which asset an amount is denominated in.
type AssetKind string

const (
	AssetBacking      AssetKind = "backing"
	AssetYieldBearing AssetKind = "yield_bearing"
)

// Receipt reports what one operation actually moved: the amount transferred,
// the fee charged, and the rate used.
type Receipt struct {
	Kind      OpKind    `json:"kind"`
	Holder    string    `json:"holder"`
	AmountIn  *big.Int  `json:"amount_in,omitempty"`
	AssetIn   AssetKind `json:"asset_in,omitempty"`
	AmountOut *big.Int  `json:"amount_out"`
	AssetOut  AssetKind `json:"asset_out"`

	// SharesMinted is set on deposits; the burn fields on redemptions.
	SharesMinted     *big.Int `json:"shares_minted,omitempty"`
	PrincipalsBurned *big.Int `json:"principals_burned,omitempty"`
	YieldsBurned     *big.Int `json:"yields_burned,omitempty"`

	Fee       *big.Int  `json:"fee"`
	RateUsed  *big.Int  `json:"rate_used"`
	Matured   bool      `json:"matured"`
	Timestamp time.Time `json:"timestamp"`
}

// FeeProvider supplies the governed fee fractions, each a 1e18 fixed-point
// value in [0, 1). Read-only from the engine's perspective.
type FeeProvider interface {
	DepositFee() *big.Int
	EarlyRedeemFee() *big.Int
	MaturityRedeemFee() *big.Int
}

// StaticFees is a fixed fee schedule.
type StaticFees struct {
	Deposit        *big.Int
	EarlyRedeem    *big.Int
	MaturityRedeem *big.Int
}

// FeesFromBasisPoints builds a schedule from basis-point values.
func FeesFromBasisPoints(depositBps, earlyRedeemBps, maturityRedeemBps uint64) StaticFees {
	toFraction := func(bps uint64) *big.Int {
		f := new(big.Int).SetUint64(bps)
		return f.Mul(f, big.NewInt(100_000_000_000_000)) // 1 bps = 1e14
	}
	return StaticFees{
		Deposit:        toFraction(depositBps),
		EarlyRedeem:    toFraction(earlyRedeemBps),
		MaturityRedeem: toFraction(maturityRedeemBps),
	}
}

func (f StaticFees) DepositFee() *big.Int { return zeroIfNil(f.Deposit) }

func (f StaticFees) EarlyRedeemFee() *big.Int { return zeroIfNil(f.EarlyRedeem) }

func (f StaticFees) MaturityRedeemFee() *big.Int { return zeroIfNil(f.MaturityRedeem) }

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
