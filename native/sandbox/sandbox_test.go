package sandbox

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"nftmarket/native/marketplace"
	"nftmarket/storage"
)

var (
	market   = common.HexToAddress("0xaa")
	operator = common.HexToAddress("0xbb")
	treasury = common.HexToAddress("0xcc")
	alice    = common.HexToAddress("0xa1")
	coll     = common.HexToAddress("0xc0")
	usd      = common.HexToAddress("0x05")
)

func newSandbox(t *testing.T) *Sandbox {
	t.Helper()
	sb, err := New(storage.NewMemDB(), marketplace.Params{Address: market, Operator: operator, FeeBps: 100, FeeRecipient: treasury})
	require.NoError(t, err)
	return sb
}

func TestApplyGenesisSeedsLedgers(t *testing.T) {
	sb := newSandbox(t)
	require.NoError(t, sb.ApplyGenesis(Genesis{
		Native: []Balance{{Account: alice, Amount: big.NewInt(7)}},
		Tokens: []Token{{
			Address:    usd,
			Symbol:     "USD",
			Decimals:   6,
			Balances:   []Balance{{Account: alice, Amount: big.NewInt(100)}},
			Allowances: []Balance{{Account: alice, Amount: big.NewInt(40)}},
		}},
		Collections: []Collection{{
			Address:         coll,
			Name:            "Art",
			Assets:          []Asset{{ID: uint256.NewInt(5), Owner: alice}},
			MarketApprovals: []common.Address{alice},
		}},
		PayableTokens: []common.Address{usd},
	}))

	native, err := sb.BalanceOf(marketplace.NativeToken, alice)
	require.NoError(t, err)
	require.Equal(t, "7", native.String())
	tokens, err := sb.BalanceOf(usd, alice)
	require.NoError(t, err)
	require.Equal(t, "100", tokens.String())
	allowance, err := sb.Tokens.Allowance(usd, alice, market)
	require.NoError(t, err)
	require.Equal(t, "40", allowance.String())

	ok, err := sb.Assets.IsAuthorized(coll, alice, market, uint256.NewInt(5))
	require.NoError(t, err)
	require.True(t, ok)
	payable, err := sb.Engine.IsPayableToken(usd)
	require.NoError(t, err)
	require.True(t, payable)
	require.Zero(t, sb.Journal.Pending())

	// A second genesis on the same database is ignored.
	require.NoError(t, sb.ApplyGenesis(Genesis{Native: []Balance{{Account: alice, Amount: big.NewInt(1)}}}))
	native, err = sb.BalanceOf(marketplace.NativeToken, alice)
	require.NoError(t, err)
	require.Equal(t, "7", native.String())
}

func TestApplyGenesisRollsBackLedgersOnError(t *testing.T) {
	sb := newSandbox(t)
	err := sb.ApplyGenesis(Genesis{
		Native: []Balance{{Account: alice, Amount: big.NewInt(7)}},
		Collections: []Collection{
			{Address: coll, Name: "Art"},
			{Address: coll, Name: "Duplicate"},
		},
	})
	require.Error(t, err)

	native, err := sb.BalanceOf(marketplace.NativeToken, alice)
	require.NoError(t, err)
	require.Zero(t, native.Sign())
	ok, err := sb.Assets.HasCollection(coll)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCollectionsRejectUnknownContract(t *testing.T) {
	sb := newSandbox(t)
	_, err := sb.Collections().Registry(common.HexToAddress("0xdead"))
	require.Error(t, err)
	_, err = sb.Payments().Ledger(common.HexToAddress("0xdead"))
	require.Error(t, err)
}
