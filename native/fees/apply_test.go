package fees

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitFloorsFee(t *testing.T) {
	cases := []struct {
		name  string
		gross int64
		bps   uint32
		fee   int64
	}{
		{name: "zero rate", gross: 1_000, bps: 0, fee: 0},
		{name: "ten bps", gross: 10_000, bps: 10, fee: 10},
		{name: "rounds down", gross: 999, bps: 10, fee: 0},
		{name: "two and a half percent", gross: 1_001, bps: 250, fee: 25},
		{name: "full rate", gross: 77, bps: BasisPointsDenominator, fee: 77},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gross := big.NewInt(tc.gross)
			result, err := Split(gross, tc.bps)
			require.NoError(t, err)
			require.Equal(t, 0, result.Fee.Cmp(big.NewInt(tc.fee)))
			sum := new(big.Int).Add(result.Fee, result.Net)
			require.Equal(t, 0, sum.Cmp(gross), "fee and net must sum to gross")
		})
	}
}

func TestSplitNativeTenthOfPercent(t *testing.T) {
	// 10 bps of 10 native units (18 decimals) is 0.01 native.
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	gross := new(big.Int).Mul(big.NewInt(10), unit)
	result, err := Split(gross, 10)
	require.NoError(t, err)
	want := new(big.Int).Div(unit, big.NewInt(100))
	require.Equal(t, want.String(), result.Fee.String())
}

func TestSplitRejectsInvalidInput(t *testing.T) {
	_, err := Split(big.NewInt(1), BasisPointsDenominator+1)
	require.Error(t, err)
	_, err = Split(big.NewInt(-1), 10)
	require.Error(t, err)
}

func TestSplitNilGross(t *testing.T) {
	result, err := Split(nil, 100)
	require.NoError(t, err)
	require.Zero(t, result.Fee.Sign())
	require.Zero(t, result.Net.Sign())
}

func TestTotalsAccumulate(t *testing.T) {
	var totals Totals
	for _, gross := range []int64{1_000, 2_000} {
		res, err := Split(big.NewInt(gross), 100)
		require.NoError(t, err)
		totals.Add(big.NewInt(gross), res)
	}
	require.Equal(t, "3000", totals.Gross.String())
	require.Equal(t, "30", totals.Fee.String())
	require.Equal(t, "2970", totals.Net.String())

	clone := totals.Clone()
	clone.Fee.SetInt64(0)
	require.Equal(t, "30", totals.Fee.String())
}
