package marketplace_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"nftmarket/core/events"
	"nftmarket/native/marketplace"
	"nftmarket/native/sandbox"
	"nftmarket/storage"
)

const (
	testFeeBps  = 250
	startingBal = 1_000_000
	genesisTime = int64(1_700_000_000)
)

var (
	market     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	operator   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	treasury   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	seller     = common.HexToAddress("0x0000000000000000000000000000000000005e11")
	buyer      = common.HexToAddress("0x000000000000000000000000000000000000b0b0")
	bidder1    = common.HexToAddress("0x000000000000000000000000000000000000b1d1")
	bidder2    = common.HexToAddress("0x000000000000000000000000000000000000b1d2")
	collection = common.HexToAddress("0x000000000000000000000000000000000000c011")
	tokenT     = common.HexToAddress("0x0000000000000000000000000000000000007777")
	unapproved = uint64(10)
)

type recorder struct {
	events []events.Event
}

func (r *recorder) Emit(evt events.Event) { r.events = append(r.events, evt) }

func (r *recorder) types() []string {
	out := make([]string, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.EventType()
	}
	return out
}

func (r *recorder) reset() { r.events = nil }

type harness struct {
	t      *testing.T
	sb     *sandbox.Sandbox
	engine *marketplace.Engine
	rec    *recorder
	now    int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessOn(t, storage.NewMemDB())
}

func newHarnessOn(t *testing.T, db storage.Database) *harness {
	t.Helper()
	sb, err := sandbox.New(db, marketplace.Params{
		Address:      market,
		Operator:     operator,
		FeeBps:       testFeeBps,
		FeeRecipient: treasury,
	})
	require.NoError(t, err)
	h := &harness{t: t, sb: sb, engine: sb.Engine, rec: &recorder{}, now: genesisTime}
	h.engine.SetNowFunc(func() int64 { return h.now })

	participants := []common.Address{buyer, bidder1, bidder2}
	var balances []sandbox.Balance
	for _, p := range participants {
		balances = append(balances, sandbox.Balance{Account: p, Amount: big.NewInt(startingBal)})
	}
	assets := []sandbox.Asset{{ID: uint256.NewInt(unapproved), Owner: buyer}}
	for id := uint64(0); id < 4; id++ {
		assets = append(assets, sandbox.Asset{ID: uint256.NewInt(id), Owner: seller})
	}
	require.NoError(t, sb.ApplyGenesis(sandbox.Genesis{
		Native: balances,
		Tokens: []sandbox.Token{{
			Address:    tokenT,
			Symbol:     "TKN",
			Decimals:   18,
			Balances:   balances,
			Allowances: balances,
		}},
		Collections: []sandbox.Collection{{
			Address:         collection,
			Name:            "Genesis",
			Assets:          assets,
			MarketApprovals: []common.Address{seller},
		}},
		PayableTokens: []common.Address{tokenT, marketplace.NativeToken},
	}))
	h.engine.SetEmitter(h.rec)
	return h
}

func id(n uint64) *uint256.Int { return uint256.NewInt(n) }

func call(caller common.Address) marketplace.Call { return marketplace.Call{Caller: caller} }

func pay(caller common.Address, value int64) marketplace.Call {
	return marketplace.Call{Caller: caller, Value: big.NewInt(value)}
}

func amount(v int64) *big.Int { return big.NewInt(v) }

func (h *harness) balance(tok, account common.Address) int64 {
	h.t.Helper()
	bal, err := h.sb.BalanceOf(tok, account)
	require.NoError(h.t, err)
	return bal.Int64()
}

func (h *harness) owner(n uint64) common.Address {
	h.t.Helper()
	owner, err := h.sb.Assets.OwnerOf(collection, id(n))
	require.NoError(h.t, err)
	return owner
}

func (h *harness) list(n uint64, tok common.Address, price int64) *marketplace.Listing {
	h.t.Helper()
	listing, err := h.engine.ListNFT(call(seller), collection, id(n), tok, amount(price))
	require.NoError(h.t, err)
	return listing
}

func (h *harness) auction(n uint64, tok common.Address, reserve, increment, start, end int64) *marketplace.Auction {
	h.t.Helper()
	auction, err := h.engine.CreateAuction(call(seller), collection, id(n), tok, amount(reserve), amount(increment), start, end)
	require.NoError(h.t, err)
	return auction
}

func requireKind(t *testing.T, err error, kind marketplace.Kind, sentinel error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, marketplace.KindOf(err), "unexpected kind for %v", err)
	if sentinel != nil {
		require.ErrorIs(t, err, sentinel)
	}
}
