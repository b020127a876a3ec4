package server

import (
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/native/fees"
	"nftmarket/native/marketplace"
)

type listingView struct {
	Contract string `json:"contract"`
	AssetID  string `json:"assetId"`
	Seller   string `json:"seller"`
	PayToken string `json:"payToken"`
	Price    string `json:"price"`
	Nonce    uint64 `json:"nonce"`
	ListedAt int64  `json:"listedAt"`
}

type offerView struct {
	Contract     string `json:"contract"`
	AssetID      string `json:"assetId"`
	Offerer      string `json:"offerer"`
	PayToken     string `json:"payToken"`
	Price        string `json:"price"`
	ListingNonce uint64 `json:"listingNonce"`
	CreatedAt    int64  `json:"createdAt"`
}

type auctionView struct {
	Contract        string `json:"contract"`
	AssetID         string `json:"assetId"`
	Creator         string `json:"creator"`
	PayToken        string `json:"payToken"`
	ReservePrice    string `json:"reservePrice"`
	MinBidIncrement string `json:"minBidIncrement"`
	StartTime       int64  `json:"startTime"`
	EndTime         int64  `json:"endTime"`
	HighestBidder   string `json:"highestBidder,omitempty"`
	HighestBid      string `json:"highestBid"`
}

type assetView struct {
	State   string       `json:"state"`
	Listing *listingView `json:"listing,omitempty"`
	Auction *auctionView `json:"auction,omitempty"`
}

func hexAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func idString(id uint256.Int) string {
	return id.Dec()
}

func newListingView(l *marketplace.Listing) *listingView {
	if l == nil {
		return nil
	}
	return &listingView{
		Contract: hexAddress(l.Contract),
		AssetID:  idString(l.AssetID),
		Seller:   hexAddress(l.Seller),
		PayToken: hexAddress(l.PayToken),
		Price:    amountString(l.Price),
		Nonce:    l.Nonce,
		ListedAt: l.ListedAt,
	}
}

func newOfferView(o *marketplace.Offer) *offerView {
	if o == nil {
		return nil
	}
	return &offerView{
		Contract:     hexAddress(o.Contract),
		AssetID:      idString(o.AssetID),
		Offerer:      hexAddress(o.Offerer),
		PayToken:     hexAddress(o.PayToken),
		Price:        amountString(o.Price),
		ListingNonce: o.ListingNonce,
		CreatedAt:    o.CreatedAt,
	}
}

func newAuctionView(a *marketplace.Auction) *auctionView {
	if a == nil {
		return nil
	}
	view := &auctionView{
		Contract:        hexAddress(a.Contract),
		AssetID:         idString(a.AssetID),
		Creator:         hexAddress(a.Creator),
		PayToken:        hexAddress(a.PayToken),
		ReservePrice:    amountString(a.ReservePrice),
		MinBidIncrement: amountString(a.MinBidIncrement),
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		HighestBid:      amountString(a.HighestBid),
	}
	if a.HasBid() {
		view.HighestBidder = hexAddress(a.HighestBidder)
	}
	return view
}

func newAssetView(state marketplace.Lifecycle) assetView {
	switch s := state.(type) {
	case marketplace.Listed:
		l := s.Listing
		return assetView{State: "listed", Listing: newListingView(&l)}
	case marketplace.Auctioned:
		a := s.Auction
		return assetView{State: "auctioned", Auction: newAuctionView(&a)}
	default:
		return assetView{State: "unlisted"}
	}
}

type feeTotalView struct {
	Token string `json:"token"`
	Gross string `json:"gross"`
	Fee   string `json:"fee"`
	Net   string `json:"net"`
}

// newFeeTotalViews orders totals by token address.
func newFeeTotalViews(totals map[common.Address]fees.Totals) []feeTotalView {
	out := make([]feeTotalView, 0, len(totals))
	for tok, t := range totals {
		out = append(out, feeTotalView{
			Token: hexAddress(tok),
			Gross: amountString(t.Gross),
			Fee:   amountString(t.Fee),
			Net:   amountString(t.Net),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

type tokenInfoView struct {
	Token    string `json:"token"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Payable  bool   `json:"payable"`
}
