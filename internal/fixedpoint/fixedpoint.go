// Package fixedpoint implements the decimal arithmetic shared by the pricing,
// tick and position packages. Results that cannot be represented exactly are
// normalized to a fixed number of significant digits so that replaying the
// same event history always produces the same values.
package fixedpoint

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// SignificantDigits is the precision kept by Mul, SafeDiv and Pow.
const SignificantDigits = 34

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
	ten  = big.NewInt(10)
)

// ScaleByDecimals divides a raw token amount by 10^decimals. The result is exact.
func ScaleByDecimals(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// ExponentToDecimal returns 10^decimals.
func ExponentToDecimal(decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil), 0)
}

// SafeDiv returns numerator/denominator, or zero when the denominator is zero.
func SafeDiv(numerator, denominator decimal.Decimal) decimal.Decimal {
	if denominator.IsZero() {
		return Zero
	}
	if numerator.IsZero() {
		return Zero
	}
	precision := SignificantDigits - (magnitude(numerator) - magnitude(denominator)) + 4
	if precision < 0 {
		precision = 0
	}
	return Normalize(numerator.DivRound(denominator, precision))
}

// Mul multiplies and normalizes the product.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return Normalize(a.Mul(b))
}

// Pow raises base to an integer exponent by repeated multiplication.
// A negative exponent yields SafeDiv(1, base^|exp|).
func Pow(base decimal.Decimal, exp int64) decimal.Decimal {
	if exp == 0 {
		return One
	}
	n := exp
	if n < 0 {
		n = -n
	}
	result := base
	for i := int64(1); i < n; i++ {
		result = Mul(result, base)
	}
	if exp < 0 {
		return SafeDiv(One, result)
	}
	return result
}

// Normalize rounds d (half to even) to SignificantDigits significant digits.
func Normalize(d decimal.Decimal) decimal.Decimal {
	excess := int32(d.NumDigits()) - SignificantDigits
	if excess <= 0 {
		return d
	}
	return d.RoundBank(-(d.Exponent() + excess))
}

// magnitude is the power of ten just above the most significant digit.
func magnitude(d decimal.Decimal) int32 {
	return int32(d.NumDigits()) + d.Exponent()
}
