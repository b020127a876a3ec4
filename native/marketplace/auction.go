package marketplace

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/core/events"
)

// CreateAuction moves the caller's asset into custody and opens a timed
// auction. A startTime of StartImmediately, or any time not after the current
// clock, opens bidding now.
func (e *Engine) CreateAuction(call Call, contract common.Address, id *uint256.Int, payToken common.Address, reservePrice, minBidIncrement *big.Int, startTime, endTime int64) (*Auction, error) {
	key := NewAssetKey(contract, id)
	var auction *Auction
	err := e.apply("createAuction", call, func() error {
		if err := requireNoValue(call); err != nil {
			return err
		}
		if err := requirePositive(reservePrice); err != nil {
			return err
		}
		increment := cloneBigInt(minBidIncrement)
		if increment.Sign() < 0 {
			return fail(KindValidation, ErrNegativeIncrement)
		}
		now := e.now()
		start := startTime
		if start <= now {
			start = now
		}
		if endTime <= start {
			return failf(KindValidation, ErrInvalidWindow, "start %d, end %d", start, endTime)
		}
		if err := e.requirePayable(payToken); err != nil {
			return err
		}
		reg, err := e.registry(contract)
		if err != nil {
			return err
		}
		if err := e.requireUnlisted(key); err != nil {
			return err
		}
		if err := e.requireCustodyGrant(reg, call.Caller, &key.ID); err != nil {
			return err
		}

		if err := e.moveCustody(reg, call.Caller, e.params.Address, &key.ID); err != nil {
			return err
		}
		auction = &Auction{
			Contract:        contract,
			AssetID:         key.ID,
			Creator:         call.Caller,
			PayToken:        payToken,
			ReservePrice:    cloneBigInt(reservePrice),
			MinBidIncrement: increment,
			StartTime:       start,
			EndTime:         endTime,
			HighestBid:      big.NewInt(0),
		}
		if err := e.state.MarketAssetPut(key, Auctioned{Auction: *auction}); err != nil {
			return err
		}
		e.emit(events.CreatedAuction{
			Contract:        contract,
			AssetID:         key.ID,
			PayToken:        payToken,
			ReservePrice:    cloneBigInt(reservePrice),
			MinBidIncrement: cloneBigInt(increment),
			StartTime:       start,
			EndTime:         endTime,
			Creator:         call.Caller,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return auction.Clone(), nil
}

// CancelAuction returns the asset to its creator. Only auctions without bids
// can be cancelled.
func (e *Engine) CancelAuction(call Call, contract common.Address, id *uint256.Int) error {
	key := NewAssetKey(contract, id)
	return e.apply("cancelAuction", call, func() error {
		if err := requireNoValue(call); err != nil {
			return err
		}
		auction, err := e.activeAuction(key)
		if err != nil {
			return err
		}
		if auction.Creator != call.Caller {
			return fail(KindAuthorization, ErrNotCreator)
		}
		if auction.HasBid() {
			return fail(KindState, ErrAuctionHasBids)
		}
		reg, err := e.registry(contract)
		if err != nil {
			return err
		}

		if err := e.moveCustody(reg, e.params.Address, auction.Creator, &key.ID); err != nil {
			return err
		}
		if err := e.state.MarketAssetPut(key, Unlisted{}); err != nil {
			return err
		}
		e.emit(events.CanceledAuction{Contract: contract, AssetID: key.ID, Creator: auction.Creator})
		return nil
	})
}

// BidPlace escrows bidAmount as the new highest bid and refunds the bid it
// displaces. Bidding is open for start <= now <= end.
func (e *Engine) BidPlace(call Call, contract common.Address, id *uint256.Int, bidAmount *big.Int) error {
	key := NewAssetKey(contract, id)
	return e.apply("bidPlace", call, func() error {
		auction, err := e.activeAuction(key)
		if err != nil {
			return err
		}
		now := e.now()
		if now < auction.StartTime {
			return fail(KindState, ErrAuctionNotStarted)
		}
		if now > auction.EndTime {
			return fail(KindState, ErrAuctionEnded)
		}
		if call.Caller == auction.Creator {
			return fail(KindAuthorization, ErrCreatorBid)
		}
		if err := requirePositive(bidAmount); err != nil {
			return err
		}
		minimum := cloneBigInt(auction.ReservePrice)
		if auction.HasBid() {
			minimum = new(big.Int).Add(auction.HighestBid, auction.MinBidIncrement)
		}
		if bidAmount.Cmp(minimum) < 0 {
			return failf(KindValidation, ErrBidTooLow, "bid %s, minimum %s", bidAmount, minimum)
		}
		if err := checkAttached(call, auction.PayToken, bidAmount); err != nil {
			return err
		}
		if err := e.checkFunds(call.Caller, auction.PayToken, bidAmount); err != nil {
			return err
		}

		if err := e.collect(call.Caller, auction.PayToken, bidAmount); err != nil {
			return err
		}
		if auction.HasBid() {
			if err := e.payOut(auction.PayToken, auction.HighestBidder, auction.HighestBid); err != nil {
				return err
			}
		}
		auction.HighestBidder = call.Caller
		auction.HighestBid = cloneBigInt(bidAmount)
		if err := e.state.MarketAssetPut(key, Auctioned{Auction: *auction}); err != nil {
			return err
		}
		e.emit(events.PlacedBid{
			Contract:  contract,
			AssetID:   key.ID,
			PayToken:  auction.PayToken,
			BidAmount: cloneBigInt(bidAmount),
			Bidder:    call.Caller,
		})
		return nil
	})
}

// ResultAuction closes an auction after its end time. With a bid the creator
// is paid net of the platform fee and the winner receives the asset; without
// one the asset returns to the creator.
func (e *Engine) ResultAuction(call Call, contract common.Address, id *uint256.Int) error {
	key := NewAssetKey(contract, id)
	return e.apply("resultAuction", call, func() error {
		if err := requireNoValue(call); err != nil {
			return err
		}
		auction, err := e.activeAuction(key)
		if err != nil {
			return err
		}
		if call.Caller != e.params.Operator && call.Caller != auction.Creator {
			return fail(KindAuthorization, ErrNotResulter)
		}
		if e.now() <= auction.EndTime {
			return fail(KindState, ErrAuctionNotEnded)
		}
		reg, err := e.registry(contract)
		if err != nil {
			return err
		}

		recipient := auction.Creator
		price := big.NewInt(0)
		if auction.HasBid() {
			if _, err := e.settle(auction.PayToken, auction.Creator, auction.HighestBid); err != nil {
				return err
			}
			recipient = auction.HighestBidder
			price = cloneBigInt(auction.HighestBid)
		}
		if err := e.moveCustody(reg, e.params.Address, recipient, &key.ID); err != nil {
			return err
		}
		if err := e.state.MarketAssetPut(key, Unlisted{}); err != nil {
			return err
		}
		e.emit(events.ResultedAuction{
			Contract:  contract,
			AssetID:   key.ID,
			Creator:   auction.Creator,
			Recipient: recipient,
			PayToken:  auction.PayToken,
			Price:     price,
			Caller:    call.Caller,
		})
		return nil
	})
}

// GetAuction returns the active auction for an asset.
func (e *Engine) GetAuction(contract common.Address, id *uint256.Int) (*Auction, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	lc, err := e.lifecycle(NewAssetKey(contract, id))
	if err != nil {
		return nil, false, err
	}
	auctioned, ok := lc.(Auctioned)
	if !ok {
		return nil, false, nil
	}
	return auctioned.Auction.Clone(), true, nil
}
