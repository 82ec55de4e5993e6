// Package amm implements constant-product swap math with a 0.3% fee.
// All arithmetic is integer-only on big.Int.
package amm

import (
	"math/big"
)

var (
	feeNumerator   = big.NewInt(997)
	feeDenominator = big.NewInt(1000)
	feeProduct     = big.NewInt(997 * 1000)
)

// SwapOutput returns floor(amountIn*997*reserveOut / (reserveIn*1000 + amountIn*997)).
// The result is always strictly less than reserveOut.
func SwapOutput(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	if amountIn == nil || reserveIn == nil || reserveOut == nil {
		return new(big.Int)
	}
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int)
	}

	amountInWithFee := new(big.Int).Mul(amountIn, feeNumerator)
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, feeDenominator)
	denominator.Add(denominator, amountInWithFee)

	return numerator.Quo(numerator, denominator)
}

// ChainOutputs applies SwapOutput hop by hop over a flattened [in, out, in, out, ...]
// reserve sequence. The returned slice starts with amountIn and holds the amount
// after every hop.
func ChainOutputs(amountIn *big.Int, reservePath []*big.Int) []*big.Int {
	hops := len(reservePath) / 2
	amounts := make([]*big.Int, 0, hops+1)
	amounts = append(amounts, new(big.Int).Set(amountIn))

	current := amounts[0]
	for i := 0; i < hops; i++ {
		current = SwapOutput(current, reservePath[2*i], reservePath[2*i+1])
		amounts = append(amounts, current)
	}

	return amounts
}

// OptimalCycleInput returns the input that maximizes out-in over a cyclic
// reserve path, or zero when no input is profitable.
//
// Interior hops are folded into two effective reserves (Ea, Eb):
//
//	Ea' = 1000*Ea*Rb / (1000*Rb + 997*Eb)
//	Eb' =  997*Eb*Rc / (1000*Rb + 997*Eb)
//
// and the optimum is floor((sqrt(997*1000*Ea*Eb) - 1000*Ea) / 997).
func OptimalCycleInput(reservePath []*big.Int) *big.Int {
	hops := len(reservePath) / 2
	if hops == 0 {
		return new(big.Int)
	}
	for _, r := range reservePath[:2*hops] {
		if r == nil || r.Sign() <= 0 {
			return new(big.Int)
		}
	}

	ea := new(big.Int).Set(reservePath[0])
	eb := new(big.Int).Set(reservePath[1])

	for i := 1; i < hops; i++ {
		rb := reservePath[2*i]
		rc := reservePath[2*i+1]

		denominator := new(big.Int).Mul(rb, feeDenominator)
		denominator.Add(denominator, new(big.Int).Mul(eb, feeNumerator))

		nextEa := new(big.Int).Mul(ea, rb)
		nextEa.Mul(nextEa, feeDenominator)
		nextEa.Quo(nextEa, denominator)

		nextEb := new(big.Int).Mul(eb, rc)
		nextEb.Mul(nextEb, feeNumerator)
		nextEb.Quo(nextEb, denominator)

		ea, eb = nextEa, nextEb
	}

	if ea.Cmp(eb) >= 0 {
		return new(big.Int)
	}

	x := new(big.Int).Mul(ea, eb)
	x.Mul(x, feeProduct)
	x.Sqrt(x)

	scaledEa := new(big.Int).Mul(ea, feeDenominator)
	if x.Cmp(scaledEa) <= 0 {
		return new(big.Int)
	}

	x.Sub(x, scaledEa)
	return x.Quo(x, feeNumerator)
}

// Profit returns out-in for the given input over a reserve path
func Profit(amountIn *big.Int, reservePath []*big.Int) *big.Int {
	amounts := ChainOutputs(amountIn, reservePath)
	return new(big.Int).Sub(amounts[len(amounts)-1], amountIn)
}
