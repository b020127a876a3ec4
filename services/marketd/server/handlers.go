package server

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"nftmarket/native/marketplace"
	tokenledger "nftmarket/native/token"
	"nftmarket/services/marketd/archive"
)

type statusResponse struct {
	Status string `json:"status"`
}

var okResponse = statusResponse{Status: "ok"}

type addTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleAddPayableToken(w http.ResponseWriter, r *http.Request) {
	var req addTokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeEngineError(w, err)
		return
	}
	call, err := callFrom(r, "")
	if err != nil {
		writeEngineError(w, err)
		return
	}
	token, err := parseToken("token", req.Token)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	err = s.execute(r.Context(), "add_payable_token", hexAddress(call.Caller), func() error {
		return s.engine.AddPayableToken(call, token)
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *Server) handlePayableTokens(w http.ResponseWriter, r *http.Request) {
	var tokens []common.Address
	err := s.read(r.Context(), func() error {
		var err error
		tokens, err = s.engine.PayableTokens()
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, hexAddress(tok))
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tokens": out})
}

type listRequest struct {
	Contract string `json:"contract"`
	AssetID  string `json:"assetId"`
	PayToken string `json:"payToken"`
	Price    string `json:"price"`
	Value    string `json:"value,omitempty"`
}

func (s *Server) handleListNFT(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeEngineError(w, err)
		return
	}
	call, err := callFrom(r, req.Value)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	contract, err := parseAddress("contract", req.Contract)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	id, err := parseAssetID(req.AssetID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	payToken, err := parseToken("payToken", req.PayToken)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var listing *marketplace.Listing
	err = s.execute(r.Context(), "list_nft", hexAddress(call.Caller), func() error {
		var err error
		listing, err = s.engine.ListNFT(call, contract, id, payToken, price)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newListingView(listing))
}

type valueRequest struct {
	Value string `json:"value,omitempty"`
}

func (s *Server) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	s.assetOp(w, r, "cancel_listed_nft", func(call marketplace.Call, contract common.Address, id *uint256.Int) error {
		return s.engine.CancelListedNFT(call, contract, id)
	})
}

type buyRequest struct {
	PayToken string `json:"payToken"`
	MaxPrice string `json:"maxPrice,omitempty"`
	Value    string `json:"value,omitempty"`
}

func (s *Server) handleBuyNFT(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeEngineError(w, err)
		return
	}
	payToken, err := parseToken("payToken", req.PayToken)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	maxPrice, err := parseOptionalAmount("maxPrice", req.MaxPrice)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.assetOpWithValue(w, r, "buy_nft", req.Value, func(call marketplace.Call, contract common.Address, id *uint256.Int) error {
		return s.engine.BuyNFT(call, contract, id, payToken, maxPrice)
	})
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	contract, id, err := assetFromPath(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var (
		listing *marketplace.Listing
		found   bool
	)
	err = s.read(r.Context(), func() error {
		var err error
		listing, found, err = s.engine.GetListedNFT(contract, id)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "no active listing")
		return
	}
	writeJSON(w, http.StatusOK, newListingView(listing))
}

func (s *Server) handleAssetState(w http.ResponseWriter, r *http.Request) {
	contract, id, err := assetFromPath(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var state marketplace.Lifecycle
	err = s.read(r.Context(), func() error {
		var err error
		state, err = s.engine.AssetState(contract, id)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAssetView(state))
}

type offerRequest struct {
	Contract string `json:"contract"`
	AssetID  string `json:"assetId"`
	PayToken string `json:"payToken"`
	Price    string `json:"price"`
	Value    string `json:"value,omitempty"`
}

func (s *Server) handleOfferNFT(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeEngineError(w, err)
		return
	}
	call, err := callFrom(r, req.Value)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	contract, err := parseAddress("contract", req.Contract)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	id, err := parseAssetID(req.AssetID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	payToken, err := parseToken("payToken", req.PayToken)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var offer *marketplace.Offer
	err = s.execute(r.Context(), "offer_nft", hexAddress(call.Caller), func() error {
		var err error
		offer, err = s.engine.OfferNFT(call, contract, id, payToken, price)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOfferView(offer))
}

func (s *Server) handleCancelOffer(w http.ResponseWriter, r *http.Request) {
	s.assetOp(w, r, "cancel_offer_nft", func(call marketplace.Call, contract common.Address, id *uint256.Int) error {
		return s.engine.CancelOfferNFT(call, contract, id)
	})
}

type acceptRequest struct {
	Offerer string `json:"offerer"`
	Value   string `json:"value,omitempty"`
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeEngineError(w, err)
		return
	}
	offerer, err := parseAddress("offerer", req.Offerer)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.assetOpWithValue(w, r, "accept_offer_nft", req.Value, func(call marketplace.Call, contract common.Address, id *uint256.Int) error {
		return s.engine.AcceptOfferNFT(call, contract, id, offerer)
	})
}

func (s *Server) handleGetOffers(w http.ResponseWriter, r *http.Request) {
	contract, id, err := assetFromPath(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var offers []*marketplace.Offer
	err = s.read(r.Context(), func() error {
		var err error
		offers, err = s.engine.OffersFor(contract, id)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]*offerView, 0, len(offers))
	for _, offer := range offers {
		out = append(out, newOfferView(offer))
	}
	writeJSON(w, http.StatusOK, map[string][]*offerView{"offers": out})
}

type auctionRequest struct {
	Contract        string `json:"contract"`
	AssetID         string `json:"assetId"`
	PayToken        string `json:"payToken"`
	ReservePrice    string `json:"reservePrice"`
	MinBidIncrement string `json:"minBidIncrement"`
	StartTime       int64  `json:"startTime"`
	EndTime         int64  `json:"endTime"`
	Value           string `json:"value,omitempty"`
}

func (s *Server) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	var req auctionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeEngineError(w, err)
		return
	}
	call, err := callFrom(r, req.Value)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	contract, err := parseAddress("contract", req.Contract)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	id, err := parseAssetID(req.AssetID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	payToken, err := parseToken("payToken", req.PayToken)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	reserve, err := parseAmount("reservePrice", req.ReservePrice)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	increment := new(big.Int)
	if strings.TrimSpace(req.MinBidIncrement) != "" {
		if increment, err = parseAmount("minBidIncrement", req.MinBidIncrement); err != nil {
			writeEngineError(w, err)
			return
		}
	}
	var auction *marketplace.Auction
	err = s.execute(r.Context(), "create_auction", hexAddress(call.Caller), func() error {
		var err error
		auction, err = s.engine.CreateAuction(call, contract, id, payToken, reserve, increment, req.StartTime, req.EndTime)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAuctionView(auction))
}

func (s *Server) handleCancelAuction(w http.ResponseWriter, r *http.Request) {
	s.assetOp(w, r, "cancel_auction", func(call marketplace.Call, contract common.Address, id *uint256.Int) error {
		return s.engine.CancelAuction(call, contract, id)
	})
}

type bidRequest struct {
	Amount string `json:"amount"`
	Value  string `json:"value,omitempty"`
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	var req bidRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeEngineError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.assetOpWithValue(w, r, "bid_place", req.Value, func(call marketplace.Call, contract common.Address, id *uint256.Int) error {
		return s.engine.BidPlace(call, contract, id, amount)
	})
}

func (s *Server) handleResultAuction(w http.ResponseWriter, r *http.Request) {
	s.assetOp(w, r, "result_auction", func(call marketplace.Call, contract common.Address, id *uint256.Int) error {
		return s.engine.ResultAuction(call, contract, id)
	})
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	contract, id, err := assetFromPath(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var (
		auction *marketplace.Auction
		found   bool
	)
	err = s.read(r.Context(), func() error {
		var err error
		auction, found, err = s.engine.GetAuction(contract, id)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "no active auction")
		return
	}
	writeJSON(w, http.StatusOK, newAuctionView(auction))
}

// assetOp runs an operation addressed by the {contract}/{assetId} path whose
// optional body carries only a native value.
func (s *Server) assetOp(w http.ResponseWriter, r *http.Request, op string, fn func(marketplace.Call, common.Address, *uint256.Int) error) {
	var req valueRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeEngineError(w, err)
		return
	}
	s.assetOpWithValue(w, r, op, req.Value, fn)
}

func (s *Server) assetOpWithValue(w http.ResponseWriter, r *http.Request, op, value string, fn func(marketplace.Call, common.Address, *uint256.Int) error) {
	call, err := callFrom(r, value)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	contract, id, err := assetFromPath(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	err = s.execute(r.Context(), op, hexAddress(call.Caller), func() error {
		return fn(call, contract, id)
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive", "event archive disabled")
		return
	}
	q := r.URL.Query()
	filter := archive.Filter{
		Type:     strings.TrimSpace(q.Get("type")),
		Contract: strings.TrimSpace(q.Get("contract")),
		AssetID:  strings.TrimSpace(q.Get("assetId")),
	}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeEngineError(w, badRequest("after: %v", err))
			return
		}
		filter.AfterSeq = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeEngineError(w, badRequest("limit: invalid value %q", raw))
			return
		}
		filter.Limit = limit
	}
	records, err := s.archive.Query(r.Context(), filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if records == nil {
		records = []archive.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": records})
}

type approveAssetRequest struct {
	Contract string `json:"contract"`
	AssetID  string `json:"assetId"`
}

func (s *Server) handleApproveAsset(w http.ResponseWriter, r *http.Request) {
	var req approveAssetRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeEngineError(w, err)
		return
	}
	call, err := callFrom(r, "")
	if err != nil {
		writeEngineError(w, err)
		return
	}
	contract, err := parseAddress("contract", req.Contract)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	id, err := parseAssetID(req.AssetID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	err = s.exec.Do(r.Context(), func() error {
		if err := s.sandbox.ApproveAsset(call.Caller, contract, id); err != nil {
			return badRequest("approve asset: %v", err)
		}
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type approveTokenRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleApproveToken(w http.ResponseWriter, r *http.Request) {
	var req approveTokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeEngineError(w, err)
		return
	}
	call, err := callFrom(r, "")
	if err != nil {
		writeEngineError(w, err)
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	err = s.exec.Do(r.Context(), func() error {
		if err := s.sandbox.ApproveToken(call.Caller, token, amount); err != nil {
			return badRequest("approve token: %v", err)
		}
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	token, err := parseToken("token", chi.URLParam(r, "token"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var balance *big.Int
	err = s.read(r.Context(), func() error {
		var err error
		balance, err = s.sandbox.BalanceOf(token, account)
		if err != nil {
			return badRequest("balance: %v", err)
		}
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":   hexAddress(token),
		"account": hexAddress(account),
		"balance": amountString(balance),
	})
}

// handleFees reports settlement totals recorded since the daemon started.
func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	views := []feeTotalView{}
	if s.fees != nil {
		views = newFeeTotalViews(s.fees.FeeTotals())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"feeBps": s.engine.PlatformFee().BasisPoints,
		"totals": views,
	})
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	tok, err := parseToken("token", chi.URLParam(r, "token"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if tok == marketplace.NativeToken {
		writeEngineError(w, badRequest("token: native currency has no ledger metadata"))
		return
	}
	var (
		meta    tokenledger.Meta
		payable bool
		missing bool
	)
	err = s.read(r.Context(), func() error {
		var err error
		meta, err = s.sandbox.Tokens.Meta(tok)
		if errors.Is(err, tokenledger.ErrUnknownToken) {
			missing = true
			return nil
		}
		if err != nil {
			return err
		}
		payable, err = s.engine.IsPayableToken(tok)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if missing {
		writeError(w, http.StatusNotFound, "not_found", "unknown token")
		return
	}
	writeJSON(w, http.StatusOK, tokenInfoView{
		Token:    hexAddress(tok),
		Symbol:   meta.Symbol,
		Decimals: meta.Decimals,
		Payable:  payable,
	})
}
