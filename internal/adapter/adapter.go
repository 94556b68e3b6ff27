package adapter

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"yieldsplit/internal/fixedmath"
)

// ErrOperationFailed wraps any failure of a deposit or withdraw against the
// external yield source. The enclosing pool operation must abort as a unit.
var ErrOperationFailed = errors.New("adapter: operation failed")

// ErrUnsupported marks an operation the external source cannot perform at
// all (for example direct withdrawal from Lido).
var ErrUnsupported = errors.New("adapter: operation not supported by source")

// RateSnapshot is an observation of the yield-bearing to backing conversion
// rate in the adapter's declared precision. It is never persisted beyond the
// pool's own rate slots.
type RateSnapshot struct {
	Rate       *big.Int
	Decimals   uint8
	ObservedAt time.Time
}

// Normalized returns the rate rescaled to the internal 1e18 precision.
func (s RateSnapshot) Normalized() (*big.Int, error) {
	return fixedmath.Rescale(s.Rate, s.Decimals, 18)
}

// ProtocolAdapter is the contract every external yield source must satisfy.
// Conversion methods are pure: they use the caller-supplied rate (in the
// internal 1e18 precision) so the engine can apply a frozen historical rate.
type ProtocolAdapter interface {
	Name() string
	RateDecimals() uint8
	BackingDecimals() uint8
	YieldDecimals() uint8

	// CurrentInterestRate returns the stored conversion rate without
	// touching external accrual state.
	CurrentInterestRate(ctx context.Context) (RateSnapshot, error)

	// UpdateInterestRate forces a refresh from the external source. Calling
	// twice within one logical step returns the same value.
	UpdateInterestRate(ctx context.Context) (RateSnapshot, error)

	// DepositToUnderlying moves backing tokens into the source and reports
	// the yield-bearing tokens actually received.
	DepositToUnderlying(ctx context.Context, amount *big.Int) (*big.Int, error)

	// WithdrawFromUnderlyingProtocol redeems yield-bearing tokens and
	// reports the backing tokens actually received.
	WithdrawFromUnderlyingProtocol(ctx context.Context, yieldAmount *big.Int) (*big.Int, error)

	NumAssetsPerYieldToken(yieldAmount, rate *big.Int) (*big.Int, error)
	NumYieldTokensPerAsset(backingAmount, rate *big.Int) (*big.Int, error)
}

// Invoker executes a state-changing contract call and returns its return
// data. Signing and transaction submission live with the caller. value is
// the native amount attached to the call, nil for plain calls.
type Invoker interface {
	Invoke(ctx context.Context, to common.Address, value *big.Int, calldata []byte) ([]byte, error)
}

// Converter implements the pure conversion pair shared by all adapters.
// Both directions truncate so converted outputs never exceed true value.
type Converter struct {
	backingDecimals uint8
	yieldDecimals   uint8
}

func NewConverter(backingDecimals, yieldDecimals uint8) Converter {
	return Converter{backingDecimals: backingDecimals, yieldDecimals: yieldDecimals}
}

func (c Converter) BackingDecimals() uint8 { return c.backingDecimals }

func (c Converter) YieldDecimals() uint8 { return c.yieldDecimals }

// NumAssetsPerYieldToken converts yield-bearing units to backing units at
// the supplied 1e18 rate.
func (c Converter) NumAssetsPerYieldToken(yieldAmount, rate *big.Int) (*big.Int, error) {
	scaled, err := fixedmath.Rescale(yieldAmount, c.yieldDecimals, c.backingDecimals)
	if err != nil {
		return nil, err
	}
	return fixedmath.MulFixed(scaled, rate, false)
}

// NumYieldTokensPerAsset converts backing units to yield-bearing units at
// the supplied 1e18 rate.
func (c Converter) NumYieldTokensPerAsset(backingAmount, rate *big.Int) (*big.Int, error) {
	scaled, err := fixedmath.Rescale(backingAmount, c.backingDecimals, c.yieldDecimals)
	if err != nil {
		return nil, err
	}
	return fixedmath.DivFixed(scaled, rate, false)
}
