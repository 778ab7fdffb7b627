// Package wad implements the 1e18 fixed-point integer arithmetic shared by
// the debt ledger, the price oracle, and the health factor calculation.
// Division truncates toward zero; callers multiply before dividing so the
// truncation never discards significant digits.
package wad

import "math/big"

// WadDecimals is the decimal scale of stable-asset amounts, USD values and
// health factors.
const WadDecimals = 18

var (
	// Wad is 1e18, one whole unit at the shared scale.
	Wad = mustBigInt("1000000000000000000")
	// MaxUint256 is the largest representable balance. It doubles as the
	// health factor of a debt-free account so that "higher is healthier"
	// comparisons hold without a special case.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// Clone returns a defensive copy; nil reads as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// IsZero reports whether v is nil or zero.
func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

// MulDiv returns floor(a * b / den). A nil operand reads as zero; a zero or
// nil denominator yields zero rather than dividing by zero, which suits the
// engine's "no exposure" readings.
func MulDiv(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, den)
}

// MulWad returns floor(a * b / 1e18).
func MulWad(a, b *big.Int) *big.Int {
	return MulDiv(a, b, Wad)
}

// DivWad returns floor(a * 1e18 / b).
func DivWad(a, b *big.Int) *big.Int {
	return MulDiv(a, Wad, b)
}

// Pow10 returns 10^n.
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// RescaleDecimals converts an amount between decimal scales. Upscaling is
// exact; downscaling truncates.
func RescaleDecimals(amount *big.Int, from, to uint8) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	if from == to {
		return new(big.Int).Set(amount)
	}
	if to > from {
		return new(big.Int).Mul(amount, Pow10(to-from))
	}
	return new(big.Int).Quo(amount, Pow10(from-to))
}

// ToWad rescales an amount with the given decimals to the 1e18 scale.
func ToWad(amount *big.Int, decimals uint8) *big.Int {
	return RescaleDecimals(amount, decimals, WadDecimals)
}

// FromWad rescales a 1e18-scaled amount to the given decimals, truncating.
func FromWad(amount *big.Int, decimals uint8) *big.Int {
	return RescaleDecimals(amount, WadDecimals, decimals)
}
