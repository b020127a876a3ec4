package marketplace

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/core/events"
)

// ListNFT moves the caller's asset into marketplace custody and opens a
// fixed-price listing for it.
func (e *Engine) ListNFT(call Call, contract common.Address, id *uint256.Int, payToken common.Address, price *big.Int) (*Listing, error) {
	key := NewAssetKey(contract, id)
	var listing *Listing
	err := e.apply("listNFT", call, func() error {
		if err := requireNoValue(call); err != nil {
			return err
		}
		if err := requirePositive(price); err != nil {
			return err
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

		nonce, err := e.state.MarketNextNonce()
		if err != nil {
			return err
		}
		if err := e.moveCustody(reg, call.Caller, e.params.Address, &key.ID); err != nil {
			return err
		}
		listing = &Listing{
			Contract: contract,
			AssetID:  key.ID,
			Seller:   call.Caller,
			PayToken: payToken,
			Price:    cloneBigInt(price),
			Nonce:    nonce,
			ListedAt: e.now(),
		}
		if err := e.state.MarketAssetPut(key, Listed{Listing: *listing}); err != nil {
			return err
		}
		e.emit(events.ListedNFT{
			Contract: contract,
			AssetID:  key.ID,
			PayToken: payToken,
			Price:    cloneBigInt(price),
			Seller:   call.Caller,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listing.Clone(), nil
}

// CancelListedNFT withdraws the caller's listing and returns the asset.
func (e *Engine) CancelListedNFT(call Call, contract common.Address, id *uint256.Int) error {
	key := NewAssetKey(contract, id)
	return e.apply("cancelListedNFT", call, func() error {
		if err := requireNoValue(call); err != nil {
			return err
		}
		listing, err := e.activeListing(key)
		if err != nil {
			return err
		}
		if listing.Seller != call.Caller {
			return fail(KindAuthorization, ErrNotSeller)
		}
		reg, err := e.registry(contract)
		if err != nil {
			return err
		}

		if err := e.moveCustody(reg, e.params.Address, listing.Seller, &key.ID); err != nil {
			return err
		}
		if err := e.state.MarketAssetPut(key, Unlisted{}); err != nil {
			return err
		}
		e.emit(events.CanceledListedNFT{Contract: contract, AssetID: key.ID, Seller: listing.Seller})
		return nil
	})
}

// BuyNFT settles a listing at its price. payToken must be the listing's token.
// On the native path the attached value must equal the price exactly; on the
// token path the price is pulled through the caller's allowance. maxPrice is
// the highest price the buyer accepts; nil accepts the listed price.
func (e *Engine) BuyNFT(call Call, contract common.Address, id *uint256.Int, payToken common.Address, maxPrice *big.Int) error {
	key := NewAssetKey(contract, id)
	return e.apply("buyNFT", call, func() error {
		listing, err := e.activeListing(key)
		if err != nil {
			return err
		}
		if call.Caller == listing.Seller {
			return fail(KindAuthorization, ErrSelfPurchase)
		}
		if payToken != listing.PayToken {
			return failf(KindPayment, ErrTokenMismatch, "listing settles in %s", listing.PayToken.Hex())
		}
		if maxPrice != nil && maxPrice.Cmp(listing.Price) < 0 {
			return failf(KindPayment, ErrPriceAboveMax, "listed at %s, accepted %s", listing.Price, maxPrice)
		}
		if err := checkAttached(call, listing.PayToken, listing.Price); err != nil {
			return err
		}
		if err := e.checkFunds(call.Caller, listing.PayToken, listing.Price); err != nil {
			return err
		}
		reg, err := e.registry(contract)
		if err != nil {
			return err
		}

		if err := e.collect(call.Caller, listing.PayToken, listing.Price); err != nil {
			return err
		}
		if _, err := e.settle(listing.PayToken, listing.Seller, listing.Price); err != nil {
			return err
		}
		if err := e.moveCustody(reg, e.params.Address, call.Caller, &key.ID); err != nil {
			return err
		}
		if err := e.state.MarketAssetPut(key, Unlisted{}); err != nil {
			return err
		}
		e.emit(events.BoughtNFT{
			Contract: contract,
			AssetID:  key.ID,
			PayToken: listing.PayToken,
			Price:    cloneBigInt(listing.Price),
			Seller:   listing.Seller,
			Buyer:    call.Caller,
		})
		return nil
	})
}

// GetListedNFT returns the active listing for an asset.
func (e *Engine) GetListedNFT(contract common.Address, id *uint256.Int) (*Listing, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	lc, err := e.lifecycle(NewAssetKey(contract, id))
	if err != nil {
		return nil, false, err
	}
	listed, ok := lc.(Listed)
	if !ok {
		return nil, false, nil
	}
	return listed.Listing.Clone(), true, nil
}

// AssetState returns the lifecycle of an asset.
func (e *Engine) AssetState(contract common.Address, id *uint256.Int) (Lifecycle, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.lifecycle(NewAssetKey(contract, id))
}
