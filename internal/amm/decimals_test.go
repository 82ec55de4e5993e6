package amm

import (
	"math/big"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		amount   int64
		decimals uint8
		want     string
	}{
		{1, 18, "1"},
		{1, 6, "1000000000000"},
		{123, 0, "123000000000000000000"},
		{5_000_000, 24, "5"},
	}

	for _, c := range cases {
		got := Normalize(big.NewInt(c.amount), c.decimals)
		if got.String() != c.want {
			t.Errorf("Normalize(%d, %d) = %s; want %s", c.amount, c.decimals, got, c.want)
		}
	}

	if got := Normalize(nil, 6); got.Sign() != 0 {
		t.Errorf("Normalize(nil, 6) = %s; want 0", got)
	}
}

func TestDenormalize(t *testing.T) {
	back := Denormalize(Normalize(big.NewInt(42), 6), 6)
	if back.Int64() != 42 {
		t.Errorf("Denormalize(Normalize(42, 6), 6) = %s; want 42", back)
	}

	if got := Denormalize(big.NewInt(3), 20); got.Int64() != 300 {
		t.Errorf("Denormalize(3, 20) = %s; want 300", got)
	}
}
