package marketplace

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/core/events"
)

// OfferNFT escrows price from the caller as an offer on an active listing.
// An offerer holds at most one offer per asset; a second offer must wait
// until the first is cancelled.
func (e *Engine) OfferNFT(call Call, contract common.Address, id *uint256.Int, payToken common.Address, price *big.Int) (*Offer, error) {
	key := NewAssetKey(contract, id)
	var offer *Offer
	err := e.apply("offerNFT", call, func() error {
		if err := requirePositive(price); err != nil {
			return err
		}
		if err := e.requirePayable(payToken); err != nil {
			return err
		}
		listing, err := e.activeListing(key)
		if err != nil {
			return err
		}
		if call.Caller == listing.Seller {
			return fail(KindAuthorization, ErrSelfPurchase)
		}
		_, exists, err := e.state.MarketOfferGet(key, call.Caller)
		if err != nil {
			return err
		}
		if exists {
			return fail(KindState, ErrOfferExists)
		}
		if err := checkAttached(call, payToken, price); err != nil {
			return err
		}
		if err := e.checkFunds(call.Caller, payToken, price); err != nil {
			return err
		}

		if err := e.collect(call.Caller, payToken, price); err != nil {
			return err
		}
		offer = &Offer{
			Contract:     contract,
			AssetID:      key.ID,
			Offerer:      call.Caller,
			PayToken:     payToken,
			Price:        cloneBigInt(price),
			ListingNonce: listing.Nonce,
			CreatedAt:    e.now(),
		}
		if err := e.state.MarketOfferPut(offer); err != nil {
			return err
		}
		e.emit(events.OfferredNFT{
			Contract: contract,
			AssetID:  key.ID,
			PayToken: payToken,
			Price:    cloneBigInt(price),
			Offerer:  call.Caller,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return offer.Clone(), nil
}

// CancelOfferNFT refunds the caller's offer in full. It succeeds whether or
// not the listing the offer was made against is still active.
func (e *Engine) CancelOfferNFT(call Call, contract common.Address, id *uint256.Int) error {
	key := NewAssetKey(contract, id)
	return e.apply("cancelOfferNFT", call, func() error {
		if err := requireNoValue(call); err != nil {
			return err
		}
		offer, ok, err := e.state.MarketOfferGet(key, call.Caller)
		if err != nil {
			return err
		}
		if !ok {
			return fail(KindState, ErrNoOffer)
		}

		if err := e.payOut(offer.PayToken, offer.Offerer, offer.Price); err != nil {
			return err
		}
		if err := e.state.MarketOfferDelete(key, offer.Offerer); err != nil {
			return err
		}
		e.emit(events.CanceledOfferredNFT{
			Contract: contract,
			AssetID:  key.ID,
			PayToken: offer.PayToken,
			Price:    cloneBigInt(offer.Price),
			Offerer:  offer.Offerer,
		})
		return nil
	})
}

// AcceptOfferNFT settles the listing against offerer's escrowed offer. Other
// offers on the asset are left in place for their owners to cancel.
func (e *Engine) AcceptOfferNFT(call Call, contract common.Address, id *uint256.Int, offerer common.Address) error {
	key := NewAssetKey(contract, id)
	return e.apply("acceptOfferNFT", call, func() error {
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
		offer, ok, err := e.state.MarketOfferGet(key, offerer)
		if err != nil {
			return err
		}
		if !ok {
			return fail(KindState, ErrNoOffer)
		}
		if offer.ListingNonce != listing.Nonce {
			return fail(KindState, ErrStaleOffer)
		}
		reg, err := e.registry(contract)
		if err != nil {
			return err
		}

		if _, err := e.settle(offer.PayToken, listing.Seller, offer.Price); err != nil {
			return err
		}
		if err := e.moveCustody(reg, e.params.Address, offer.Offerer, &key.ID); err != nil {
			return err
		}
		if err := e.state.MarketOfferDelete(key, offer.Offerer); err != nil {
			return err
		}
		if err := e.state.MarketAssetPut(key, Unlisted{}); err != nil {
			return err
		}
		e.emit(events.AcceptedNFT{
			Contract: contract,
			AssetID:  key.ID,
			PayToken: offer.PayToken,
			Price:    cloneBigInt(offer.Price),
			Offerer:  offer.Offerer,
			Seller:   listing.Seller,
		})
		return nil
	})
}

// GetOffer returns offerer's offer on an asset.
func (e *Engine) GetOffer(contract common.Address, id *uint256.Int, offerer common.Address) (*Offer, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	offer, ok, err := e.state.MarketOfferGet(NewAssetKey(contract, id), offerer)
	if err != nil || !ok {
		return nil, false, err
	}
	return offer.Clone(), true, nil
}

// OffersFor lists every outstanding offer on an asset, including offers made
// against earlier listings that have not been cancelled.
func (e *Engine) OffersFor(contract common.Address, id *uint256.Int) ([]*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	offers, err := e.state.MarketOffers(NewAssetKey(contract, id))
	if err != nil {
		return nil, err
	}
	out := make([]*Offer, 0, len(offers))
	for _, offer := range offers {
		out = append(out, offer.Clone())
	}
	return out, nil
}
