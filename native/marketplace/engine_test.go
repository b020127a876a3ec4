package marketplace_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"nftmarket/native/marketplace"
	"nftmarket/storage"
)

// failingLedger rejects outgoing transfers to a single recipient.
type failingLedger struct {
	marketplace.PaymentLedger
	to common.Address
}

func (f failingLedger) Transfer(to common.Address, amount *big.Int) error {
	if to == f.to {
		return errors.New("recipient rejected transfer")
	}
	return f.PaymentLedger.Transfer(to, amount)
}

func failTransfersTo(h *harness, to common.Address) {
	inner := h.sb.Payments()
	h.engine.SetPayments(marketplace.LedgersFunc(func(tok common.Address) (marketplace.PaymentLedger, error) {
		ledger, err := inner.Ledger(tok)
		if err != nil {
			return nil, err
		}
		return failingLedger{PaymentLedger: ledger, to: to}, nil
	}))
}

func TestFailedPayoutRollsBackEverything(t *testing.T) {
	h := newHarness(t)
	h.list(0, tokenT, 100_000)
	h.rec.reset()
	failTransfersTo(h, seller)

	err := h.engine.BuyNFT(call(buyer), collection, id(0), tokenT, nil)
	requireKind(t, err, marketplace.KindPayment, marketplace.ErrPayment)

	require.Equal(t, int64(startingBal), h.balance(tokenT, buyer))
	require.Zero(t, h.balance(tokenT, treasury), "fee leg is reverted")
	require.Zero(t, h.balance(tokenT, market))
	require.Equal(t, market, h.owner(0))
	_, ok, err := h.engine.GetListedNFT(collection, id(0))
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, h.rec.events)
	require.Zero(t, h.sb.Journal.Pending())
}

func TestFailedRefundRollsBackNewBid(t *testing.T) {
	h := newHarness(t)
	h.auction(0, tokenT, 100, 0, 0, h.now+10)
	require.NoError(t, h.engine.BidPlace(call(bidder1), collection, id(0), amount(100)))
	failTransfersTo(h, bidder1)

	err := h.engine.BidPlace(call(bidder2), collection, id(0), amount(150))
	requireKind(t, err, marketplace.KindPayment, marketplace.ErrPayment)

	auction, _, err := h.engine.GetAuction(collection, id(0))
	require.NoError(t, err)
	require.Equal(t, bidder1, auction.HighestBidder)
	require.Equal(t, "100", auction.HighestBid.String())
	require.Equal(t, int64(startingBal), h.balance(tokenT, bidder2))
	require.Equal(t, int64(100), h.balance(tokenT, market))
}

func TestFeePlusPayoutEqualsPrice(t *testing.T) {
	prices := []int64{1, 39, 40, 41, 9_999, 10_000, 123_457, 999_999}
	for i, price := range prices {
		h := newHarness(t)
		n := uint64(i % 4)
		h.list(n, tokenT, price)
		require.NoError(t, h.engine.BuyNFT(call(buyer), collection, id(n), tokenT, nil))

		fee := h.balance(tokenT, treasury)
		payout := h.balance(tokenT, seller)
		require.Equal(t, price, fee+payout, "price %d", price)
		require.Equal(t, price*testFeeBps/10_000, fee, "price %d", price)
	}
}

func TestReadsDoNotMutate(t *testing.T) {
	h := newHarness(t)
	h.list(0, tokenT, 10)
	h.rec.reset()
	for i := 0; i < 3; i++ {
		_, err := h.engine.IsPayableToken(tokenT)
		require.NoError(t, err)
		_, _, err = h.engine.GetListedNFT(collection, id(0))
		require.NoError(t, err)
		_, err = h.engine.OffersFor(collection, id(0))
		require.NoError(t, err)
	}
	require.Empty(t, h.rec.events)
	require.Zero(t, h.sb.Journal.Pending())
}

func TestNewEngineValidatesParams(t *testing.T) {
	_, err := marketplace.NewEngine(marketplace.Params{Address: market, FeeBps: 10_001, FeeRecipient: treasury})
	require.Error(t, err)
	_, err = marketplace.NewEngine(marketplace.Params{Address: market, FeeBps: 10})
	require.Error(t, err)
	_, err = marketplace.NewEngine(marketplace.Params{FeeBps: 10, FeeRecipient: treasury})
	require.Error(t, err)

	engine, err := marketplace.NewEngine(marketplace.Params{Address: market, Operator: operator, FeeBps: 10, FeeRecipient: treasury})
	require.NoError(t, err)
	require.Equal(t, marketplace.PlatformFee{BasisPoints: 10, Recipient: treasury}, engine.PlatformFee())

	err = engine.AddPayableToken(call(operator), tokenT)
	require.Error(t, err)
	require.Equal(t, marketplace.KindUnknown, marketplace.KindOf(err))
}

func TestErrorNamesOperation(t *testing.T) {
	h := newHarness(t)
	err := h.engine.CancelListedNFT(call(seller), collection, id(0))
	var merr *marketplace.Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, "cancelListedNFT", merr.Op)
	require.Equal(t, marketplace.KindState, merr.Kind)
	require.Contains(t, err.Error(), "cancelListedNFT")
	require.Equal(t, "state", merr.Kind.String())
}

// brokenDisk accepts reads but fails every batch once armed.
type brokenDisk struct {
	*storage.MemDB
	armed bool
}

func (d *brokenDisk) WriteBatch(ops []storage.Op) error {
	if d.armed {
		return errors.New("disk unavailable")
	}
	return d.MemDB.WriteBatch(ops)
}

func TestFailedCommitPersistsNothing(t *testing.T) {
	disk := &brokenDisk{MemDB: storage.NewMemDB()}
	h := newHarnessOn(t, disk)
	h.rec.reset()
	disk.armed = true

	_, err := h.engine.ListNFT(call(seller), collection, id(0), tokenT, amount(100))
	require.ErrorContains(t, err, "disk unavailable")
	require.Empty(t, h.rec.events)
	require.Equal(t, seller, h.owner(0))
	_, ok, err := h.engine.GetListedNFT(collection, id(0))
	require.NoError(t, err)
	require.False(t, ok)

	disk.armed = false
	h.list(0, tokenT, 100)
	require.Equal(t, market, h.owner(0))
}

func TestOperationRefusesUncommittedWrites(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sb.Bank.Credit(seller, amount(1)))

	_, err := h.engine.ListNFT(call(seller), collection, id(0), tokenT, amount(100))
	require.ErrorContains(t, err, "uncommitted writes")
	require.Equal(t, marketplace.KindUnknown, marketplace.KindOf(err))

	require.NoError(t, h.sb.Journal.RevertToSnapshot(0))
	h.list(0, tokenT, 100)
}
