package marketplace_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nftmarket/core/events"
	"nftmarket/native/marketplace"
)

func TestAuctionBiddingScenario(t *testing.T) {
	h := newHarness(t)
	end := h.now + 100
	h.auction(2, tokenT, 10_000, 500, marketplace.StartImmediately, end)
	require.Equal(t, market, h.owner(2))

	require.NoError(t, h.engine.BidPlace(call(bidder1), collection, id(2), amount(10_500)))
	require.Equal(t, int64(startingBal-10_500), h.balance(tokenT, bidder1))

	err := h.engine.BidPlace(call(bidder2), collection, id(2), amount(10_000))
	requireKind(t, err, marketplace.KindValidation, marketplace.ErrBidTooLow)
	err = h.engine.BidPlace(call(bidder2), collection, id(2), amount(10_999))
	requireKind(t, err, marketplace.KindValidation, marketplace.ErrBidTooLow)
	require.Equal(t, int64(startingBal), h.balance(tokenT, bidder2))

	require.NoError(t, h.engine.BidPlace(call(bidder2), collection, id(2), amount(11_000)))
	require.Equal(t, int64(startingBal), h.balance(tokenT, bidder1), "outbid bidder refunded in full")
	require.Equal(t, int64(11_000), h.balance(tokenT, market))

	auction, ok, err := h.engine.GetAuction(collection, id(2))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bidder2, auction.HighestBidder)
	require.Equal(t, "11000", auction.HighestBid.String())

	h.now = end + 1
	h.rec.reset()
	require.NoError(t, h.engine.ResultAuction(call(operator), collection, id(2)))

	require.Equal(t, bidder2, h.owner(2))
	require.Equal(t, int64(10_725), h.balance(tokenT, seller))
	require.Equal(t, int64(275), h.balance(tokenT, treasury))
	require.Zero(t, h.balance(tokenT, market))
	require.Equal(t, int64(startingBal-11_000), h.balance(tokenT, bidder2))
	_, ok, err = h.engine.GetAuction(collection, id(2))
	require.NoError(t, err)
	require.False(t, ok)

	require.Len(t, h.rec.events, 1)
	resulted := h.rec.events[0].(events.ResultedAuction)
	require.True(t, resulted.Sold())
	require.Equal(t, bidder2, resulted.Recipient)
	require.Equal(t, operator, resulted.Caller)
	require.Equal(t, "11000", resulted.Price.String())
}

func TestCancelAuctionWithoutBids(t *testing.T) {
	h := newHarness(t)
	h.auction(3, tokenT, 1_000, 0, marketplace.StartImmediately, h.now+60)

	err := h.engine.CancelAuction(call(buyer), collection, id(3))
	requireKind(t, err, marketplace.KindAuthorization, marketplace.ErrNotCreator)

	require.NoError(t, h.engine.CancelAuction(call(seller), collection, id(3)))
	require.Equal(t, seller, h.owner(3))
	require.Zero(t, h.balance(tokenT, market))
	require.Zero(t, h.balance(tokenT, seller))
	require.Equal(t, []string{events.TypeCreatedAuction, events.TypeCanceledAuction}, h.rec.types())

	err = h.engine.CancelAuction(call(seller), collection, id(3))
	requireKind(t, err, marketplace.KindState, marketplace.ErrNoAuction)
}

func TestCancelAuctionWithBidIsRejected(t *testing.T) {
	h := newHarness(t)
	h.auction(3, tokenT, 1_000, 0, marketplace.StartImmediately, h.now+60)
	require.NoError(t, h.engine.BidPlace(call(buyer), collection, id(3), amount(1_000)))

	err := h.engine.CancelAuction(call(seller), collection, id(3))
	requireKind(t, err, marketplace.KindState, marketplace.ErrAuctionHasBids)
	require.Equal(t, market, h.owner(3))
}

func TestAuctionTimeWindow(t *testing.T) {
	h := newHarness(t)
	start := h.now + 50
	end := h.now + 100
	created := h.auction(1, tokenT, 100, 10, start, end)
	require.Equal(t, start, created.StartTime)

	err := h.engine.BidPlace(call(bidder1), collection, id(1), amount(100))
	requireKind(t, err, marketplace.KindState, marketplace.ErrAuctionNotStarted)

	h.now = start
	require.NoError(t, h.engine.BidPlace(call(bidder1), collection, id(1), amount(100)))

	err = h.engine.ResultAuction(call(seller), collection, id(1))
	requireKind(t, err, marketplace.KindState, marketplace.ErrAuctionNotEnded)

	h.now = end
	require.NoError(t, h.engine.BidPlace(call(bidder2), collection, id(1), amount(110)))
	err = h.engine.ResultAuction(call(seller), collection, id(1))
	requireKind(t, err, marketplace.KindState, marketplace.ErrAuctionNotEnded)

	h.now = end + 1
	err = h.engine.BidPlace(call(bidder1), collection, id(1), amount(500))
	requireKind(t, err, marketplace.KindState, marketplace.ErrAuctionEnded)

	err = h.engine.ResultAuction(call(buyer), collection, id(1))
	requireKind(t, err, marketplace.KindAuthorization, marketplace.ErrNotResulter)
	require.NoError(t, h.engine.ResultAuction(call(seller), collection, id(1)))
	require.Equal(t, bidder2, h.owner(1))
}

func TestCreateAuctionNormalisesStartTime(t *testing.T) {
	h := newHarness(t)
	immediate := h.auction(0, tokenT, 1, 0, marketplace.StartImmediately, h.now+10)
	require.Equal(t, h.now, immediate.StartTime)

	past := h.auction(1, tokenT, 1, 0, h.now-500, h.now+10)
	require.Equal(t, h.now, past.StartTime)

	_, err := h.engine.CreateAuction(call(seller), collection, id(2), tokenT, amount(1), amount(0), marketplace.StartImmediately, h.now)
	requireKind(t, err, marketplace.KindValidation, marketplace.ErrInvalidWindow)
	_, err = h.engine.CreateAuction(call(seller), collection, id(2), tokenT, amount(1), amount(0), h.now+20, h.now+20)
	requireKind(t, err, marketplace.KindValidation, marketplace.ErrInvalidWindow)
	_, err = h.engine.CreateAuction(call(seller), collection, id(2), tokenT, amount(0), amount(0), 0, h.now+20)
	requireKind(t, err, marketplace.KindValidation, marketplace.ErrZeroPrice)
	_, err = h.engine.CreateAuction(call(seller), collection, id(2), tokenT, amount(1), amount(-1), 0, h.now+20)
	requireKind(t, err, marketplace.KindValidation, marketplace.ErrNegativeIncrement)
	require.Equal(t, seller, h.owner(2))
}

func TestListingAndAuctionAreMutuallyExclusive(t *testing.T) {
	h := newHarness(t)
	h.list(0, tokenT, 100)
	h.auction(1, tokenT, 100, 0, 0, h.now+10)

	_, err := h.engine.CreateAuction(call(seller), collection, id(0), tokenT, amount(1), amount(0), 0, h.now+10)
	requireKind(t, err, marketplace.KindState, marketplace.ErrAlreadyListed)
	_, err = h.engine.ListNFT(call(seller), collection, id(1), tokenT, amount(1))
	requireKind(t, err, marketplace.KindState, marketplace.ErrAlreadyListed)

	err = h.engine.BidPlace(call(buyer), collection, id(0), amount(100))
	requireKind(t, err, marketplace.KindState, marketplace.ErrNoAuction)
	_, err = h.engine.OfferNFT(call(buyer), collection, id(1), tokenT, amount(100))
	requireKind(t, err, marketplace.KindState, marketplace.ErrNoListing)
}

func TestResultAuctionWithoutBidsReturnsAsset(t *testing.T) {
	h := newHarness(t)
	h.auction(3, tokenT, 1_000, 0, 0, h.now+10)
	h.now += 11
	h.rec.reset()

	require.NoError(t, h.engine.ResultAuction(call(seller), collection, id(3)))
	require.Equal(t, seller, h.owner(3))
	require.Zero(t, h.balance(tokenT, treasury))

	resulted := h.rec.events[0].(events.ResultedAuction)
	require.False(t, resulted.Sold())
	require.Equal(t, seller, resulted.Recipient)
	_, hasWinner := resulted.Event().Attributes["winner"]
	require.False(t, hasWinner)
}

func TestNativeAuctionRefundsOutbidBidder(t *testing.T) {
	h := newHarness(t)
	h.auction(0, marketplace.NativeToken, 1_000, 100, 0, h.now+10)

	err := h.engine.BidPlace(pay(bidder1, 999), collection, id(0), amount(1_000))
	requireKind(t, err, marketplace.KindPayment, marketplace.ErrValueMismatch)
	err = h.engine.BidPlace(call(bidder1), collection, id(0), amount(1_000))
	requireKind(t, err, marketplace.KindPayment, marketplace.ErrValueMismatch)

	require.NoError(t, h.engine.BidPlace(pay(bidder1, 1_000), collection, id(0), amount(1_000)))
	require.NoError(t, h.engine.BidPlace(pay(bidder2, 1_100), collection, id(0), amount(1_100)))
	require.Equal(t, int64(startingBal), h.balance(marketplace.NativeToken, bidder1))
	require.Equal(t, int64(1_100), h.balance(marketplace.NativeToken, market))
}

func TestCreatorCannotBid(t *testing.T) {
	h := newHarness(t)
	h.auction(0, tokenT, 10, 0, 0, h.now+10)
	err := h.engine.BidPlace(call(seller), collection, id(0), amount(10))
	requireKind(t, err, marketplace.KindAuthorization, marketplace.ErrCreatorBid)
}

func TestFailedBidLeavesEscrowUntouched(t *testing.T) {
	h := newHarness(t)
	h.auction(0, tokenT, 100, 0, 0, h.now+10)
	require.NoError(t, h.engine.BidPlace(call(bidder1), collection, id(0), amount(100)))
	require.NoError(t, h.sb.ApproveToken(bidder2, tokenT, amount(50)))
	h.rec.reset()

	err := h.engine.BidPlace(call(bidder2), collection, id(0), amount(200))
	requireKind(t, err, marketplace.KindPayment, marketplace.ErrPayment)

	auction, _, err := h.engine.GetAuction(collection, id(0))
	require.NoError(t, err)
	require.Equal(t, bidder1, auction.HighestBidder)
	require.Equal(t, int64(100), h.balance(tokenT, market))
	require.Equal(t, int64(startingBal-100), h.balance(tokenT, bidder1))
	require.Equal(t, int64(startingBal), h.balance(tokenT, bidder2))
	require.Empty(t, h.rec.events)
}

func TestCustodianCannotBid(t *testing.T) {
	h := newHarness(t)
	h.auction(0, marketplace.NativeToken, 1_000, 100, 0, h.now+10)
	require.NoError(t, h.engine.BidPlace(pay(bidder1, 1_000), collection, id(0), amount(1_000)))

	err := h.engine.BidPlace(pay(market, 1_100), collection, id(0), amount(1_100))
	requireKind(t, err, marketplace.KindAuthorization, marketplace.ErrCustodianCaller)

	auction, _, err := h.engine.GetAuction(collection, id(0))
	require.NoError(t, err)
	require.Equal(t, bidder1, auction.HighestBidder)
	require.Equal(t, int64(1_000), h.balance(marketplace.NativeToken, market))
}
