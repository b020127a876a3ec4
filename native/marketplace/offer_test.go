package marketplace_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nftmarket/core/events"
	"nftmarket/native/marketplace"
)

func TestOfferThenCancelRefundsExactly(t *testing.T) {
	h := newHarness(t)
	h.list(0, tokenT, 100_000)
	h.rec.reset()

	offer, err := h.engine.OfferNFT(call(buyer), collection, id(0), tokenT, amount(1_000))
	require.NoError(t, err)
	require.Equal(t, buyer, offer.Offerer)
	require.Equal(t, int64(startingBal-1_000), h.balance(tokenT, buyer))
	require.Equal(t, int64(1_000), h.balance(tokenT, market))

	require.NoError(t, h.engine.CancelOfferNFT(call(buyer), collection, id(0)))
	require.Equal(t, int64(startingBal), h.balance(tokenT, buyer))
	require.Zero(t, h.balance(tokenT, market))

	_, ok, err := h.engine.GetOffer(collection, id(0), buyer)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = h.engine.GetListedNFT(collection, id(0))
	require.NoError(t, err)
	require.True(t, ok, "listing stays active")
	require.Equal(t, []string{events.TypeOfferredNFT, events.TypeCanceledOfferredNFT}, h.rec.types())

	canceled := h.rec.events[1].(events.CanceledOfferredNFT)
	require.Equal(t, "1000", canceled.Price.String())
}

func TestAcceptOfferSettlesAndLeavesOtherOffers(t *testing.T) {
	h := newHarness(t)
	h.list(0, tokenT, 100_000)

	_, err := h.engine.OfferNFT(call(bidder1), collection, id(0), tokenT, amount(90_000))
	require.NoError(t, err)
	_, err = h.engine.OfferNFT(pay(bidder2, 80_000), collection, id(0), marketplace.NativeToken, amount(80_000))
	require.NoError(t, err)
	offers, err := h.engine.OffersFor(collection, id(0))
	require.NoError(t, err)
	require.Len(t, offers, 2)
	h.rec.reset()

	err = h.engine.AcceptOfferNFT(call(buyer), collection, id(0), bidder1)
	requireKind(t, err, marketplace.KindAuthorization, marketplace.ErrNotSeller)

	require.NoError(t, h.engine.AcceptOfferNFT(call(seller), collection, id(0), bidder1))
	require.Equal(t, bidder1, h.owner(0))
	require.Equal(t, int64(87_750), h.balance(tokenT, seller))
	require.Equal(t, int64(2_250), h.balance(tokenT, treasury))
	require.Zero(t, h.balance(tokenT, market))
	_, ok, err := h.engine.GetListedNFT(collection, id(0))
	require.NoError(t, err)
	require.False(t, ok)

	require.Len(t, h.rec.events, 1)
	accepted := h.rec.events[0].(events.AcceptedNFT)
	require.Equal(t, bidder1, accepted.Offerer)
	require.Equal(t, seller, accepted.Seller)

	// The losing offer is still escrowed until its owner cancels it.
	remaining, ok, err := h.engine.GetOffer(collection, id(0), bidder2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "80000", remaining.Price.String())
	require.Equal(t, int64(80_000), h.balance(marketplace.NativeToken, market))

	err = h.engine.AcceptOfferNFT(call(seller), collection, id(0), bidder2)
	requireKind(t, err, marketplace.KindState, marketplace.ErrNoListing)

	require.NoError(t, h.engine.CancelOfferNFT(call(bidder2), collection, id(0)))
	require.Equal(t, int64(startingBal), h.balance(marketplace.NativeToken, bidder2))
	require.Zero(t, h.balance(marketplace.NativeToken, market))
}

func TestReofferWithoutCancelIsRejected(t *testing.T) {
	h := newHarness(t)
	h.list(0, tokenT, 100_000)
	_, err := h.engine.OfferNFT(call(buyer), collection, id(0), tokenT, amount(1_000))
	require.NoError(t, err)

	_, err = h.engine.OfferNFT(call(buyer), collection, id(0), tokenT, amount(2_000))
	requireKind(t, err, marketplace.KindState, marketplace.ErrOfferExists)
	require.Equal(t, int64(startingBal-1_000), h.balance(tokenT, buyer))

	require.NoError(t, h.engine.CancelOfferNFT(call(buyer), collection, id(0)))
	_, err = h.engine.OfferNFT(call(buyer), collection, id(0), tokenT, amount(2_000))
	require.NoError(t, err)
	require.Equal(t, int64(startingBal-2_000), h.balance(tokenT, buyer))
}

func TestStaleOfferCannotBeAcceptedButCanBeRefunded(t *testing.T) {
	h := newHarness(t)
	first := h.list(0, tokenT, 100_000)
	_, err := h.engine.OfferNFT(call(bidder1), collection, id(0), tokenT, amount(50_000))
	require.NoError(t, err)

	require.NoError(t, h.engine.CancelListedNFT(call(seller), collection, id(0)))
	second := h.list(0, tokenT, 100_000)
	require.NotEqual(t, first.Nonce, second.Nonce)

	err = h.engine.AcceptOfferNFT(call(seller), collection, id(0), bidder1)
	requireKind(t, err, marketplace.KindState, marketplace.ErrStaleOffer)
	require.Equal(t, market, h.owner(0))

	require.NoError(t, h.engine.CancelOfferNFT(call(bidder1), collection, id(0)))
	require.Equal(t, int64(startingBal), h.balance(tokenT, bidder1))
}

func TestOfferValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.OfferNFT(call(buyer), collection, id(0), tokenT, amount(1))
	requireKind(t, err, marketplace.KindState, marketplace.ErrNoListing)

	h.list(0, tokenT, 100)
	_, err = h.engine.OfferNFT(call(seller), collection, id(0), tokenT, amount(1))
	requireKind(t, err, marketplace.KindAuthorization, marketplace.ErrSelfPurchase)
	_, err = h.engine.OfferNFT(call(buyer), collection, id(0), tokenT, amount(0))
	requireKind(t, err, marketplace.KindValidation, marketplace.ErrZeroPrice)
	_, err = h.engine.OfferNFT(pay(buyer, 10), collection, id(0), marketplace.NativeToken, amount(11))
	requireKind(t, err, marketplace.KindPayment, marketplace.ErrValueMismatch)
	_, err = h.engine.OfferNFT(call(buyer), collection, id(0), tokenT, amount(startingBal+1))
	requireKind(t, err, marketplace.KindPayment, marketplace.ErrPayment)

	err = h.engine.CancelOfferNFT(call(buyer), collection, id(0))
	requireKind(t, err, marketplace.KindState, marketplace.ErrNoOffer)
	err = h.engine.AcceptOfferNFT(call(seller), collection, id(0), buyer)
	requireKind(t, err, marketplace.KindState, marketplace.ErrNoOffer)

	require.Equal(t, int64(startingBal), h.balance(tokenT, buyer))
	require.Equal(t, int64(startingBal), h.balance(marketplace.NativeToken, buyer))
}
