package amm

import (
	"math/big"
)

// NormalizedDecimals is the fixed-point precision of all internal amounts
const NormalizedDecimals = 18

// Normalize scales an amount with the given decimals to 18-decimal fixed point
func Normalize(amount *big.Int, decimals uint8) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	out := new(big.Int).Set(amount)
	switch {
	case decimals < NormalizedDecimals:
		out.Mul(out, pow10(NormalizedDecimals-int(decimals)))
	case decimals > NormalizedDecimals:
		out.Quo(out, pow10(int(decimals)-NormalizedDecimals))
	}
	return out
}

// Denormalize converts an 18-decimal amount back to the token's native precision
func Denormalize(amount *big.Int, decimals uint8) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	out := new(big.Int).Set(amount)
	switch {
	case decimals < NormalizedDecimals:
		out.Quo(out, pow10(NormalizedDecimals-int(decimals)))
	case decimals > NormalizedDecimals:
		out.Mul(out, pow10(int(decimals)-NormalizedDecimals))
	}
	return out
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
