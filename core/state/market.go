package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"nftmarket/native/marketplace"
	"nftmarket/storage"
)

const (
	lifecycleListed    uint8 = 1
	lifecycleAuctioned uint8 = 2
)

type storedLifecycle struct {
	Kind    uint8
	Payload []byte
}

type storedListing struct {
	Contract common.Address
	AssetID  *big.Int
	Seller   common.Address
	PayToken common.Address
	Price    *big.Int
	Nonce    uint64
	ListedAt uint64
}

type storedAuction struct {
	Contract        common.Address
	AssetID         *big.Int
	Creator         common.Address
	PayToken        common.Address
	ReservePrice    *big.Int
	MinBidIncrement *big.Int
	StartTime       uint64
	EndTime         uint64
	HighestBidder   common.Address
	HighestBid      *big.Int
}

type storedOffer struct {
	Contract     common.Address
	AssetID      *big.Int
	Offerer      common.Address
	PayToken     common.Address
	Price        *big.Int
	ListingNonce uint64
	CreatedAt    uint64
}

// MarketStore persists marketplace records in a key-value database using RLP
// encoding. Pass a storage.Journal to make its writes revertible together with
// the asset and payment ledgers.
type MarketStore struct {
	db storage.Database
}

// NewMarketStore wraps db.
func NewMarketStore(db storage.Database) *MarketStore {
	return &MarketStore{db: db}
}

// MarketAssetGet loads the lifecycle of key. Absent records are Unlisted.
func (s *MarketStore) MarketAssetGet(key marketplace.AssetKey) (marketplace.Lifecycle, error) {
	var record storedLifecycle
	ok, err := storage.GetRLP(s.db, assetKey(key), &record)
	if err != nil {
		return nil, fmt.Errorf("market store: load asset: %w", err)
	}
	if !ok {
		return marketplace.Unlisted{}, nil
	}
	switch record.Kind {
	case lifecycleListed:
		var listing storedListing
		if err := rlp.DecodeBytes(record.Payload, &listing); err != nil {
			return nil, fmt.Errorf("market store: decode listing: %w", err)
		}
		return marketplace.Listed{Listing: listing.toListing()}, nil
	case lifecycleAuctioned:
		var auction storedAuction
		if err := rlp.DecodeBytes(record.Payload, &auction); err != nil {
			return nil, fmt.Errorf("market store: decode auction: %w", err)
		}
		return marketplace.Auctioned{Auction: auction.toAuction()}, nil
	default:
		return nil, fmt.Errorf("market store: unknown lifecycle kind %d", record.Kind)
	}
}

// MarketAssetPut stores the lifecycle of key. Unlisted deletes the record.
func (s *MarketStore) MarketAssetPut(key marketplace.AssetKey, lc marketplace.Lifecycle) error {
	var (
		record storedLifecycle
		err    error
	)
	switch v := lc.(type) {
	case nil, marketplace.Unlisted:
		return s.db.Delete(assetKey(key))
	case marketplace.Listed:
		record.Kind = lifecycleListed
		record.Payload, err = rlp.EncodeToBytes(newStoredListing(&v.Listing))
	case marketplace.Auctioned:
		record.Kind = lifecycleAuctioned
		record.Payload, err = rlp.EncodeToBytes(newStoredAuction(&v.Auction))
	default:
		return fmt.Errorf("market store: unsupported lifecycle %T", lc)
	}
	if err != nil {
		return fmt.Errorf("market store: encode asset: %w", err)
	}
	return storage.PutRLP(s.db, assetKey(key), &record)
}

// MarketOfferGet loads offerer's offer on key.
func (s *MarketStore) MarketOfferGet(key marketplace.AssetKey, offerer common.Address) (*marketplace.Offer, bool, error) {
	var record storedOffer
	ok, err := storage.GetRLP(s.db, offerKey(key, offerer), &record)
	if err != nil {
		return nil, false, fmt.Errorf("market store: load offer: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return record.toOffer(), true, nil
}

// MarketOfferPut stores an offer under its asset and offerer.
func (s *MarketStore) MarketOfferPut(offer *marketplace.Offer) error {
	if offer == nil {
		return errors.New("market store: nil offer")
	}
	key := marketplace.AssetKey{Contract: offer.Contract, ID: offer.AssetID}
	return storage.PutRLP(s.db, offerKey(key, offer.Offerer), newStoredOffer(offer))
}

// MarketOfferDelete removes offerer's offer on key.
func (s *MarketStore) MarketOfferDelete(key marketplace.AssetKey, offerer common.Address) error {
	return s.db.Delete(offerKey(key, offerer))
}

// MarketOffers lists every offer on key ordered by offerer address.
func (s *MarketStore) MarketOffers(key marketplace.AssetKey) ([]*marketplace.Offer, error) {
	var (
		offers  []*marketplace.Offer
		iterErr error
	)
	err := s.db.Iterate(MarketOfferPrefix(key.Contract, key.ID.Bytes32()), func(_, value []byte) bool {
		var record storedOffer
		if err := rlp.DecodeBytes(value, &record); err != nil {
			iterErr = fmt.Errorf("market store: decode offer: %w", err)
			return false
		}
		offers = append(offers, record.toOffer())
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return offers, nil
}

// MarketPayableTokenAdd registers token, recording its registration order.
func (s *MarketStore) MarketPayableTokenAdd(token common.Address) error {
	ok, err := s.MarketPayableTokenHas(token)
	if err != nil || ok {
		return err
	}
	seq, err := s.nextCounter(marketTokenSeqKey)
	if err != nil {
		return err
	}
	return storage.PutRLP(s.db, MarketTokenKey(token), seq)
}

// MarketPayableTokenHas reports whether token is registered.
func (s *MarketStore) MarketPayableTokenHas(token common.Address) (bool, error) {
	return s.db.Has(MarketTokenKey(token))
}

// MarketPayableTokens returns the registered tokens in registration order.
func (s *MarketStore) MarketPayableTokens() ([]common.Address, error) {
	type entry struct {
		token common.Address
		seq   uint64
	}
	var (
		entries []entry
		iterErr error
	)
	err := s.db.Iterate(marketTokenPrefix, func(key, value []byte) bool {
		var seq uint64
		if err := rlp.DecodeBytes(value, &seq); err != nil {
			iterErr = fmt.Errorf("market store: decode token: %w", err)
			return false
		}
		entries = append(entries, entry{token: common.BytesToAddress(key[len(marketTokenPrefix):]), seq: seq})
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	tokens := make([]common.Address, len(entries))
	for i, e := range entries {
		tokens[i] = e.token
	}
	return tokens, nil
}

// MarketNextNonce returns a fresh listing nonce.
func (s *MarketStore) MarketNextNonce() (uint64, error) {
	return s.nextCounter(marketListingNonceKey)
}

func (s *MarketStore) nextCounter(key []byte) (uint64, error) {
	var current uint64
	data, err := s.db.Get(key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return 0, err
	case len(data) != 8:
		return 0, fmt.Errorf("market store: malformed counter %q", key)
	default:
		current = binary.BigEndian.Uint64(data)
	}
	next := current + 1
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := s.db.Put(key, buf[:]); err != nil {
		return 0, err
	}
	return next, nil
}

func assetKey(key marketplace.AssetKey) []byte {
	return MarketAssetKey(key.Contract, key.ID.Bytes32())
}

func offerKey(key marketplace.AssetKey, offerer common.Address) []byte {
	return MarketOfferKey(key.Contract, key.ID.Bytes32(), offerer)
}

func toUnix(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func fromBig(v *big.Int) uint256.Int {
	var out uint256.Int
	if v != nil {
		out.SetFromBig(v)
	}
	return out
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func newStoredListing(l *marketplace.Listing) *storedListing {
	return &storedListing{
		Contract: l.Contract,
		AssetID:  l.AssetID.ToBig(),
		Seller:   l.Seller,
		PayToken: l.PayToken,
		Price:    bigOrZero(l.Price),
		Nonce:    l.Nonce,
		ListedAt: toUnix(l.ListedAt),
	}
}

func (r *storedListing) toListing() marketplace.Listing {
	return marketplace.Listing{
		Contract: r.Contract,
		AssetID:  fromBig(r.AssetID),
		Seller:   r.Seller,
		PayToken: r.PayToken,
		Price:    bigOrZero(r.Price),
		Nonce:    r.Nonce,
		ListedAt: int64(r.ListedAt),
	}
}

func newStoredAuction(a *marketplace.Auction) *storedAuction {
	return &storedAuction{
		Contract:        a.Contract,
		AssetID:         a.AssetID.ToBig(),
		Creator:         a.Creator,
		PayToken:        a.PayToken,
		ReservePrice:    bigOrZero(a.ReservePrice),
		MinBidIncrement: bigOrZero(a.MinBidIncrement),
		StartTime:       toUnix(a.StartTime),
		EndTime:         toUnix(a.EndTime),
		HighestBidder:   a.HighestBidder,
		HighestBid:      bigOrZero(a.HighestBid),
	}
}

func (r *storedAuction) toAuction() marketplace.Auction {
	return marketplace.Auction{
		Contract:        r.Contract,
		AssetID:         fromBig(r.AssetID),
		Creator:         r.Creator,
		PayToken:        r.PayToken,
		ReservePrice:    bigOrZero(r.ReservePrice),
		MinBidIncrement: bigOrZero(r.MinBidIncrement),
		StartTime:       int64(r.StartTime),
		EndTime:         int64(r.EndTime),
		HighestBidder:   r.HighestBidder,
		HighestBid:      bigOrZero(r.HighestBid),
	}
}

func newStoredOffer(o *marketplace.Offer) *storedOffer {
	return &storedOffer{
		Contract:     o.Contract,
		AssetID:      o.AssetID.ToBig(),
		Offerer:      o.Offerer,
		PayToken:     o.PayToken,
		Price:        bigOrZero(o.Price),
		ListingNonce: o.ListingNonce,
		CreatedAt:    toUnix(o.CreatedAt),
	}
}

func (r *storedOffer) toOffer() *marketplace.Offer {
	return &marketplace.Offer{
		Contract:     r.Contract,
		AssetID:      fromBig(r.AssetID),
		Offerer:      r.Offerer,
		PayToken:     r.PayToken,
		Price:        bigOrZero(r.Price),
		ListingNonce: r.ListingNonce,
		CreatedAt:    int64(r.CreatedAt),
	}
}
