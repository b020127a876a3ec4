package marketplace_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"nftmarket/core/events"
	"nftmarket/native/marketplace"
)

func TestListNFTTakesCustody(t *testing.T) {
	h := newHarness(t)
	listing := h.list(0, tokenT, 100_000)

	require.Equal(t, market, h.owner(0))
	require.Equal(t, seller, listing.Seller)
	got, ok, err := h.engine.GetListedNFT(collection, id(0))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "100000", got.Price.String())
	require.Equal(t, listing.Nonce, got.Nonce)

	lc, err := h.engine.AssetState(collection, id(0))
	require.NoError(t, err)
	require.IsType(t, marketplace.Listed{}, lc)
	require.Equal(t, []string{events.TypeListedNFT}, h.rec.types())
}

func TestCancelListedRestoresPreListingState(t *testing.T) {
	h := newHarness(t)
	h.list(1, tokenT, 5_000)

	err := h.engine.CancelListedNFT(call(buyer), collection, id(1))
	requireKind(t, err, marketplace.KindAuthorization, marketplace.ErrNotSeller)

	require.NoError(t, h.engine.CancelListedNFT(call(seller), collection, id(1)))
	require.Equal(t, seller, h.owner(1))
	_, ok, err := h.engine.GetListedNFT(collection, id(1))
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, h.balance(tokenT, market))
	require.Equal(t, []string{events.TypeListedNFT, events.TypeCanceledListedNFT}, h.rec.types())

	err = h.engine.CancelListedNFT(call(seller), collection, id(1))
	requireKind(t, err, marketplace.KindState, marketplace.ErrNoListing)

	// The asset can be listed again after cancellation.
	h.list(1, tokenT, 6_000)
}

func TestBuyNFTWithToken(t *testing.T) {
	h := newHarness(t)
	h.list(0, tokenT, 100_000)
	h.rec.reset()

	require.NoError(t, h.engine.BuyNFT(call(buyer), collection, id(0), tokenT, amount(100_000)))

	require.Equal(t, buyer, h.owner(0))
	_, ok, err := h.engine.GetListedNFT(collection, id(0))
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, int64(startingBal-100_000), h.balance(tokenT, buyer))
	require.Equal(t, int64(97_500), h.balance(tokenT, seller))
	require.Equal(t, int64(2_500), h.balance(tokenT, treasury))
	require.Zero(t, h.balance(tokenT, market))

	require.Len(t, h.rec.events, 1)
	bought, ok := h.rec.events[0].(events.BoughtNFT)
	require.True(t, ok)
	require.Equal(t, seller, bought.Seller)
	require.Equal(t, buyer, bought.Buyer)
	require.Equal(t, "100000", bought.Price.String())
	require.Equal(t, tokenT, bought.PayToken)
}

func TestBuyNFTAcceptsHigherMaxPriceButChargesListing(t *testing.T) {
	h := newHarness(t)
	h.list(0, tokenT, 1_000)
	require.NoError(t, h.engine.BuyNFT(call(buyer), collection, id(0), tokenT, amount(5_000)))
	require.Equal(t, int64(startingBal-1_000), h.balance(tokenT, buyer))
}

func TestBuyNFTNativeRequiresExactValue(t *testing.T) {
	h := newHarness(t)
	h.list(1, marketplace.NativeToken, 500)

	for _, value := range []int64{499, 501, 0} {
		err := h.engine.BuyNFT(pay(buyer, value), collection, id(1), marketplace.NativeToken, nil)
		requireKind(t, err, marketplace.KindPayment, marketplace.ErrValueMismatch)
	}
	require.Equal(t, int64(startingBal), h.balance(marketplace.NativeToken, buyer))
	require.Equal(t, market, h.owner(1))

	require.NoError(t, h.engine.BuyNFT(pay(buyer, 500), collection, id(1), marketplace.NativeToken, nil))
	require.Equal(t, buyer, h.owner(1))
	require.Equal(t, int64(startingBal-500), h.balance(marketplace.NativeToken, buyer))
	require.Equal(t, int64(488), h.balance(marketplace.NativeToken, seller))
	require.Equal(t, int64(12), h.balance(marketplace.NativeToken, treasury))
	require.Zero(t, h.balance(marketplace.NativeToken, market))
}

func TestBuyNFTRejections(t *testing.T) {
	h := newHarness(t)
	h.list(0, tokenT, 1_000)
	h.rec.reset()

	cases := []struct {
		name     string
		call     marketplace.Call
		token    common.Address
		maxPrice *big.Int
		kind     marketplace.Kind
		sentinel error
	}{
		{"wrong token", pay(buyer, 1_000), marketplace.NativeToken, nil, marketplace.KindPayment, marketplace.ErrTokenMismatch},
		{"max price below listing", call(buyer), tokenT, amount(999), marketplace.KindPayment, marketplace.ErrPriceAboveMax},
		{"native value on token path", pay(buyer, 1), tokenT, nil, marketplace.KindPayment, marketplace.ErrUnexpectedValue},
		{"seller buys own listing", call(seller), tokenT, nil, marketplace.KindAuthorization, marketplace.ErrSelfPurchase},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.engine.BuyNFT(tc.call, collection, id(0), tc.token, tc.maxPrice)
			requireKind(t, err, tc.kind, tc.sentinel)
		})
	}

	err := h.engine.BuyNFT(call(buyer), collection, id(3), tokenT, nil)
	requireKind(t, err, marketplace.KindState, marketplace.ErrNoListing)

	require.Equal(t, market, h.owner(0))
	require.Equal(t, int64(startingBal), h.balance(tokenT, buyer))
	require.Empty(t, h.rec.events)
}

func TestBuyNFTInsufficientAllowance(t *testing.T) {
	h := newHarness(t)
	h.list(0, tokenT, 1_000)
	require.NoError(t, h.sb.ApproveToken(buyer, tokenT, amount(999)))

	err := h.engine.BuyNFT(call(buyer), collection, id(0), tokenT, nil)
	requireKind(t, err, marketplace.KindPayment, marketplace.ErrPayment)
	require.Equal(t, market, h.owner(0))
	require.Equal(t, int64(startingBal), h.balance(tokenT, buyer))
	_, ok, err := h.engine.GetListedNFT(collection, id(0))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestListNFTValidation(t *testing.T) {
	h := newHarness(t)
	unknownToken := common.HexToAddress("0x0000000000000000000000000000000000000bad")
	unknownCollection := common.HexToAddress("0x0000000000000000000000000000000000000c0c")

	_, err := h.engine.ListNFT(call(seller), collection, id(0), tokenT, amount(0))
	requireKind(t, err, marketplace.KindValidation, marketplace.ErrZeroPrice)
	_, err = h.engine.ListNFT(call(seller), collection, id(0), unknownToken, amount(1))
	requireKind(t, err, marketplace.KindValidation, marketplace.ErrTokenNotPayable)
	_, err = h.engine.ListNFT(call(seller), unknownCollection, id(0), tokenT, amount(1))
	requireKind(t, err, marketplace.KindValidation, marketplace.ErrUnknownCollection)
	_, err = h.engine.ListNFT(call(buyer), collection, id(0), tokenT, amount(1))
	requireKind(t, err, marketplace.KindAuthorization, marketplace.ErrNotOwner)
	_, err = h.engine.ListNFT(call(buyer), collection, id(unapproved), tokenT, amount(1))
	requireKind(t, err, marketplace.KindAuthorization, marketplace.ErrNotApproved)
	_, err = h.engine.ListNFT(pay(seller, 1), collection, id(0), tokenT, amount(1))
	requireKind(t, err, marketplace.KindPayment, marketplace.ErrUnexpectedValue)

	h.list(0, tokenT, 1)
	_, err = h.engine.ListNFT(call(seller), collection, id(0), tokenT, amount(2))
	requireKind(t, err, marketplace.KindState, marketplace.ErrAlreadyListed)
	require.Equal(t, []string{events.TypeListedNFT}, h.rec.types())
}

func TestListNFTWithSingleApproval(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sb.ApproveAsset(buyer, collection, id(unapproved)))
	_, err := h.engine.ListNFT(call(buyer), collection, id(unapproved), tokenT, amount(10))
	require.NoError(t, err)
	require.Equal(t, market, h.owner(unapproved))
}

func TestAddPayableToken(t *testing.T) {
	h := newHarness(t)
	fresh := common.HexToAddress("0x0000000000000000000000000000000000000f00")

	err := h.engine.AddPayableToken(call(seller), fresh)
	requireKind(t, err, marketplace.KindAuthorization, marketplace.ErrNotOperator)

	ok, err := h.engine.IsPayableToken(fresh)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, h.engine.AddPayableToken(call(operator), fresh))
	require.NoError(t, h.engine.AddPayableToken(call(operator), fresh))
	require.Equal(t, []string{events.TypePayableTokenAdded}, h.rec.types())

	ok, err = h.engine.IsPayableToken(fresh)
	require.NoError(t, err)
	require.True(t, ok)
	tokens, err := h.engine.PayableTokens()
	require.NoError(t, err)
	require.Equal(t, []common.Address{tokenT, marketplace.NativeToken, fresh}, tokens)
}

func TestCustodianCannotBuyWithEscrowedFunds(t *testing.T) {
	h := newHarness(t)
	h.list(0, marketplace.NativeToken, 1_000)
	_, err := h.engine.OfferNFT(pay(bidder1, 1_000), collection, id(0), marketplace.NativeToken, amount(1_000))
	require.NoError(t, err)
	require.Equal(t, int64(1_000), h.balance(marketplace.NativeToken, market))
	h.rec.reset()

	err = h.engine.BuyNFT(pay(market, 1_000), collection, id(0), marketplace.NativeToken, nil)
	requireKind(t, err, marketplace.KindAuthorization, marketplace.ErrCustodianCaller)

	require.Equal(t, market, h.owner(0))
	require.Equal(t, int64(1_000), h.balance(marketplace.NativeToken, market))
	require.Zero(t, h.balance(marketplace.NativeToken, seller))
	_, listed, err := h.engine.GetListedNFT(collection, id(0))
	require.NoError(t, err)
	require.True(t, listed)
	require.Empty(t, h.rec.events)

	require.NoError(t, h.engine.CancelOfferNFT(call(bidder1), collection, id(0)))
	require.Equal(t, int64(startingBal), h.balance(marketplace.NativeToken, bidder1))
}
