package marketplace

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// NativeToken is the payment-token sentinel denoting the chain's native
// currency. It may be registered as payable like any other token.
var NativeToken = common.Address{}

// StartImmediately is the auction start time that opens bidding at creation.
// Any start time at or before the current clock is treated the same way.
const StartImmediately int64 = 0

// AssetKey identifies a single asset within a collection.
type AssetKey struct {
	Contract common.Address
	ID       uint256.Int
}

// NewAssetKey builds a key from a contract and id.
func NewAssetKey(contract common.Address, id *uint256.Int) AssetKey {
	key := AssetKey{Contract: contract}
	if id != nil {
		key.ID = *id
	}
	return key
}

// Call carries the caller identity and the native value attached to an
// operation.
type Call struct {
	Caller common.Address
	Value  *big.Int
}

func (c Call) value() *big.Int {
	if c.Value == nil {
		return big.NewInt(0)
	}
	return c.Value
}

// Listing is a fixed-price sale held in marketplace custody.
type Listing struct {
	Contract common.Address
	AssetID  uint256.Int
	Seller   common.Address
	PayToken common.Address
	Price    *big.Int
	// Nonce distinguishes successive listings of the same asset so offers
	// made against an earlier listing can be told apart.
	Nonce    uint64
	ListedAt int64
}

// Clone returns a deep copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Price = cloneBigInt(l.Price)
	return &clone
}

// Offer is an escrowed bid against an active listing.
type Offer struct {
	Contract     common.Address
	AssetID      uint256.Int
	Offerer      common.Address
	PayToken     common.Address
	Price        *big.Int
	ListingNonce uint64
	CreatedAt    int64
}

// Clone returns a deep copy of the offer.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Price = cloneBigInt(o.Price)
	return &clone
}

// Auction is a timed auction held in marketplace custody. HighestBid is zero
// and HighestBidder is the zero address until the first bid.
type Auction struct {
	Contract        common.Address
	AssetID         uint256.Int
	Creator         common.Address
	PayToken        common.Address
	ReservePrice    *big.Int
	MinBidIncrement *big.Int
	StartTime       int64
	EndTime         int64
	HighestBidder   common.Address
	HighestBid      *big.Int
}

// HasBid reports whether any bid has been placed.
func (a *Auction) HasBid() bool {
	return a != nil && a.HighestBid != nil && a.HighestBid.Sign() > 0
}

// Clone returns a deep copy of the auction.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := *a
	clone.ReservePrice = cloneBigInt(a.ReservePrice)
	clone.MinBidIncrement = cloneBigInt(a.MinBidIncrement)
	clone.HighestBid = cloneBigInt(a.HighestBid)
	return &clone
}

// Lifecycle is the per-asset state. Exactly one of Unlisted, Listed or
// Auctioned applies to any key, so an asset can never be listed and auctioned
// at the same time.
type Lifecycle interface {
	lifecycle()
}

// Unlisted is the lifecycle of an asset the marketplace does not hold.
type Unlisted struct{}

// Listed wraps an active fixed-price listing.
type Listed struct {
	Listing Listing
}

// Auctioned wraps an active auction.
type Auctioned struct {
	Auction Auction
}

func (Unlisted) lifecycle()  {}
func (Listed) lifecycle()    {}
func (Auctioned) lifecycle() {}

// PlatformFee is the process-wide fee configuration.
type PlatformFee struct {
	BasisPoints uint32
	Recipient   common.Address
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
