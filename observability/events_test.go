package observability

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"nftmarket/core/events"
)

func TestEventRecorderCountsSettlements(t *testing.T) {
	token := common.HexToAddress("0x7777")
	label := labelToken(token.Hex())
	recorder := NewEventRecorder(250)

	beforeSettled := testutil.ToFloat64(Marketplace().settled.WithLabelValues("buy"))
	beforeFees := testutil.ToFloat64(Marketplace().fees.WithLabelValues(label))
	beforeEvents := testutil.ToFloat64(Events().emitted.WithLabelValues(events.TypeBoughtNFT))

	recorder.Emit(events.BoughtNFT{PayToken: token, Price: big.NewInt(100_000)})
	recorder.Emit(events.ResultedAuction{PayToken: token, Price: big.NewInt(0)})

	require.Equal(t, beforeSettled+1, testutil.ToFloat64(Marketplace().settled.WithLabelValues("buy")))
	require.Equal(t, beforeFees+2_500, testutil.ToFloat64(Marketplace().fees.WithLabelValues(label)))
	require.Equal(t, beforeEvents+1, testutil.ToFloat64(Events().emitted.WithLabelValues(events.TypeBoughtNFT)))
	require.Zero(t, testutil.ToFloat64(Marketplace().settled.WithLabelValues("auction")))
}

func TestEventRecorderKeepsTotalsPerToken(t *testing.T) {
	token := common.HexToAddress("0x7777")
	recorder := NewEventRecorder(250)
	recorder.Emit(events.BoughtNFT{PayToken: token, Price: big.NewInt(1_000)})
	recorder.Emit(events.AcceptedNFT{PayToken: token, Price: big.NewInt(500)})
	recorder.Emit(events.BoughtNFT{PayToken: common.Address{}, Price: big.NewInt(40)})
	recorder.Emit(events.ListedNFT{PayToken: token, Price: big.NewInt(9_999)})

	totals := recorder.FeeTotals()
	require.Len(t, totals, 2)
	require.Equal(t, "1500", totals[token].Gross.String())
	require.Equal(t, "37", totals[token].Fee.String())
	require.Equal(t, "1463", totals[token].Net.String())
	require.Equal(t, "1", totals[common.Address{}].Fee.String())

	snapshot := totals[token]
	snapshot.Fee.SetInt64(0)
	require.Equal(t, "37", recorder.FeeTotals()[token].Fee.String())
}

func TestBigToFloatGuards(t *testing.T) {
	require.Zero(t, bigToFloat(nil))
	require.Zero(t, bigToFloat(big.NewInt(-5)))
	require.Equal(t, float64(42), bigToFloat(big.NewInt(42)))
}
