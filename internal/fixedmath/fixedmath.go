package fixedmath

import (
	"errors"
	"math/big"
)

// Rates and conversion factors are carried as 1e18 fixed-point integers.
// Amounts are raw token base units and stay within the 256-bit width used
// by every external source this engine talks to.

var (
	ErrDivideByZero    = errors.New("fixedmath: division by zero")
	ErrNumericOverflow = errors.New("fixedmath: result exceeds 256 bits")
)

// One is the internal fixed-point scale (1e18).
var One = Pow10(18)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Pow10 returns 10^n.
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// MulDiv computes a*b/denominator over the full intermediate precision.
// roundUp=false truncates toward zero; roundUp=true rounds away from zero
// on any remainder. The final result must fit in 256 bits.
func MulDiv(a, b, denominator *big.Int, roundUp bool) (*big.Int, error) {
	if denominator == nil || denominator.Sign() == 0 {
		return nil, ErrDivideByZero
	}
	if a == nil || b == nil {
		return big.NewInt(0), nil
	}

	product := new(big.Int).Mul(a, b)
	quo, rem := new(big.Int).QuoRem(product, denominator, new(big.Int))
	if roundUp && rem.Sign() != 0 {
		if quo.Sign() < 0 {
			quo.Sub(quo, big.NewInt(1))
		} else {
			quo.Add(quo, big.NewInt(1))
		}
	}

	if quo.CmpAbs(maxUint256) > 0 {
		return nil, ErrNumericOverflow
	}
	return quo, nil
}

// MulFixed multiplies an amount by a 1e18 fixed-point factor, truncating.
func MulFixed(amount, factor *big.Int, roundUp bool) (*big.Int, error) {
	return MulDiv(amount, factor, One, roundUp)
}

// DivFixed divides an amount by a 1e18 fixed-point factor, truncating.
func DivFixed(amount, factor *big.Int, roundUp bool) (*big.Int, error) {
	return MulDiv(amount, One, factor, roundUp)
}

// Rescale converts a value from one decimal precision to another,
// truncating when precision is lost.
func Rescale(value *big.Int, fromDecimals, toDecimals uint8) (*big.Int, error) {
	if fromDecimals == toDecimals {
		return new(big.Int).Set(value), nil
	}
	if toDecimals > fromDecimals {
		return MulDiv(value, Pow10(toDecimals-fromDecimals), big.NewInt(1), false)
	}
	return MulDiv(value, big.NewInt(1), Pow10(fromDecimals-toDecimals), false)
}
