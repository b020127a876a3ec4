package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/core/types"
)

const (
	TypeListedNFT           = "marketplace.listed"
	TypeCanceledListedNFT   = "marketplace.listing_canceled"
	TypeBoughtNFT           = "marketplace.bought"
	TypeOfferredNFT         = "marketplace.offered"
	TypeCanceledOfferredNFT = "marketplace.offer_canceled"
	TypeAcceptedNFT         = "marketplace.offer_accepted"
	TypeCreatedAuction      = "marketplace.auction_created"
	TypeCanceledAuction     = "marketplace.auction_canceled"
	TypePlacedBid           = "marketplace.bid_placed"
	TypeResultedAuction     = "marketplace.auction_resulted"
	TypePayableTokenAdded   = "marketplace.payable_token_added"
)

// ListedNFT is emitted when an asset enters marketplace custody for a
// fixed-price sale.
type ListedNFT struct {
	Contract common.Address
	AssetID  uint256.Int
	PayToken common.Address
	Price    *big.Int
	Seller   common.Address
}

func (ListedNFT) EventType() string { return TypeListedNFT }

func (e ListedNFT) Event() *types.Event {
	attrs := assetAttributes(e.Contract, e.AssetID)
	attrs["payToken"] = formatAddress(e.PayToken)
	attrs["price"] = formatAmount(e.Price)
	attrs["seller"] = formatAddress(e.Seller)
	return &types.Event{Type: TypeListedNFT, Attributes: attrs}
}

// CanceledListedNFT is emitted when a seller withdraws a listing.
type CanceledListedNFT struct {
	Contract common.Address
	AssetID  uint256.Int
	Seller   common.Address
}

func (CanceledListedNFT) EventType() string { return TypeCanceledListedNFT }

func (e CanceledListedNFT) Event() *types.Event {
	attrs := assetAttributes(e.Contract, e.AssetID)
	attrs["seller"] = formatAddress(e.Seller)
	return &types.Event{Type: TypeCanceledListedNFT, Attributes: attrs}
}

// BoughtNFT is emitted when a listing settles through a direct purchase.
type BoughtNFT struct {
	Contract common.Address
	AssetID  uint256.Int
	PayToken common.Address
	Price    *big.Int
	Seller   common.Address
	Buyer    common.Address
}

func (BoughtNFT) EventType() string { return TypeBoughtNFT }

func (e BoughtNFT) Event() *types.Event {
	attrs := assetAttributes(e.Contract, e.AssetID)
	attrs["payToken"] = formatAddress(e.PayToken)
	attrs["price"] = formatAmount(e.Price)
	attrs["seller"] = formatAddress(e.Seller)
	attrs["buyer"] = formatAddress(e.Buyer)
	return &types.Event{Type: TypeBoughtNFT, Attributes: attrs}
}

// OfferredNFT is emitted once an offer has been escrowed.
type OfferredNFT struct {
	Contract common.Address
	AssetID  uint256.Int
	PayToken common.Address
	Price    *big.Int
	Offerer  common.Address
}

func (OfferredNFT) EventType() string { return TypeOfferredNFT }

func (e OfferredNFT) Event() *types.Event {
	attrs := assetAttributes(e.Contract, e.AssetID)
	attrs["payToken"] = formatAddress(e.PayToken)
	attrs["price"] = formatAmount(e.Price)
	attrs["offerer"] = formatAddress(e.Offerer)
	return &types.Event{Type: TypeOfferredNFT, Attributes: attrs}
}

// CanceledOfferredNFT is emitted when an offerer withdraws and is refunded.
type CanceledOfferredNFT struct {
	Contract common.Address
	AssetID  uint256.Int
	PayToken common.Address
	Price    *big.Int
	Offerer  common.Address
}

func (CanceledOfferredNFT) EventType() string { return TypeCanceledOfferredNFT }

func (e CanceledOfferredNFT) Event() *types.Event {
	attrs := assetAttributes(e.Contract, e.AssetID)
	attrs["payToken"] = formatAddress(e.PayToken)
	attrs["price"] = formatAmount(e.Price)
	attrs["offerer"] = formatAddress(e.Offerer)
	return &types.Event{Type: TypeCanceledOfferredNFT, Attributes: attrs}
}

// AcceptedNFT is emitted when a seller settles a listing against an offer.
type AcceptedNFT struct {
	Contract common.Address
	AssetID  uint256.Int
	PayToken common.Address
	Price    *big.Int
	Offerer  common.Address
	Seller   common.Address
}

func (AcceptedNFT) EventType() string { return TypeAcceptedNFT }

func (e AcceptedNFT) Event() *types.Event {
	attrs := assetAttributes(e.Contract, e.AssetID)
	attrs["payToken"] = formatAddress(e.PayToken)
	attrs["price"] = formatAmount(e.Price)
	attrs["offerer"] = formatAddress(e.Offerer)
	attrs["seller"] = formatAddress(e.Seller)
	return &types.Event{Type: TypeAcceptedNFT, Attributes: attrs}
}

// CreatedAuction is emitted when an asset enters custody for a timed auction.
type CreatedAuction struct {
	Contract        common.Address
	AssetID         uint256.Int
	PayToken        common.Address
	ReservePrice    *big.Int
	MinBidIncrement *big.Int
	StartTime       int64
	EndTime         int64
	Creator         common.Address
}

func (CreatedAuction) EventType() string { return TypeCreatedAuction }

func (e CreatedAuction) Event() *types.Event {
	attrs := assetAttributes(e.Contract, e.AssetID)
	attrs["payToken"] = formatAddress(e.PayToken)
	attrs["reservePrice"] = formatAmount(e.ReservePrice)
	attrs["minBidIncrement"] = formatAmount(e.MinBidIncrement)
	attrs["startTime"] = formatTime(e.StartTime)
	attrs["endTime"] = formatTime(e.EndTime)
	attrs["creator"] = formatAddress(e.Creator)
	return &types.Event{Type: TypeCreatedAuction, Attributes: attrs}
}

// CanceledAuction is emitted when a creator withdraws an auction without bids.
type CanceledAuction struct {
	Contract common.Address
	AssetID  uint256.Int
	Creator  common.Address
}

func (CanceledAuction) EventType() string { return TypeCanceledAuction }

func (e CanceledAuction) Event() *types.Event {
	attrs := assetAttributes(e.Contract, e.AssetID)
	attrs["creator"] = formatAddress(e.Creator)
	return &types.Event{Type: TypeCanceledAuction, Attributes: attrs}
}

// PlacedBid is emitted when a bid becomes the auction's highest bid.
type PlacedBid struct {
	Contract  common.Address
	AssetID   uint256.Int
	PayToken  common.Address
	BidAmount *big.Int
	Bidder    common.Address
}

func (PlacedBid) EventType() string { return TypePlacedBid }

func (e PlacedBid) Event() *types.Event {
	attrs := assetAttributes(e.Contract, e.AssetID)
	attrs["payToken"] = formatAddress(e.PayToken)
	attrs["bidAmount"] = formatAmount(e.BidAmount)
	attrs["bidder"] = formatAddress(e.Bidder)
	return &types.Event{Type: TypePlacedBid, Attributes: attrs}
}

// ResultedAuction is emitted when an auction is closed after its end time.
// Recipient is the winner when a bid settled, otherwise the creator.
type ResultedAuction struct {
	Contract  common.Address
	AssetID   uint256.Int
	Creator   common.Address
	Recipient common.Address
	PayToken  common.Address
	Price     *big.Int
	Caller    common.Address
}

func (ResultedAuction) EventType() string { return TypeResultedAuction }

// Sold reports whether the auction settled against a bid.
func (e ResultedAuction) Sold() bool { return e.Price != nil && e.Price.Sign() > 0 }

func (e ResultedAuction) Event() *types.Event {
	attrs := assetAttributes(e.Contract, e.AssetID)
	attrs["creator"] = formatAddress(e.Creator)
	attrs["recipient"] = formatAddress(e.Recipient)
	if e.Sold() {
		attrs["winner"] = formatAddress(e.Recipient)
	}
	attrs["payToken"] = formatAddress(e.PayToken)
	attrs["price"] = formatAmount(e.Price)
	attrs["caller"] = formatAddress(e.Caller)
	return &types.Event{Type: TypeResultedAuction, Attributes: attrs}
}

// PayableTokenAdded is emitted the first time a settlement asset is registered.
type PayableTokenAdded struct {
	Token common.Address
}

func (PayableTokenAdded) EventType() string { return TypePayableTokenAdded }

func (e PayableTokenAdded) Event() *types.Event {
	return &types.Event{Type: TypePayableTokenAdded, Attributes: map[string]string{
		"token": formatAddress(e.Token),
	}}
}
