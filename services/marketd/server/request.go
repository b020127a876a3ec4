package server

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"nftmarket/config"
	"nftmarket/native/marketplace"
)

// requestError marks a malformed request, rejected before reaching the
// engine.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...interface{}) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, badRequest("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

// parseToken treats an empty value as the native currency.
func parseToken(field, raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return marketplace.NativeToken, nil
	}
	return parseAddress(field, raw)
}

func parseAmount(field, raw string) (*big.Int, error) {
	amount, err := config.ParseAmount(raw)
	if err != nil {
		return nil, badRequest("%s: %v", field, err)
	}
	return amount, nil
}

// parseOptionalAmount returns nil for an empty value.
func parseOptionalAmount(field, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return parseAmount(field, raw)
}

func parseAssetID(raw string) (*uint256.Int, error) {
	id, err := config.ParseAssetID(raw)
	if err != nil {
		return nil, badRequest("assetId: %v", err)
	}
	return id, nil
}

// assetFromPath reads the {contract}/{assetId} route parameters.
func assetFromPath(r *http.Request) (common.Address, *uint256.Int, error) {
	contract, err := parseAddress("contract", chi.URLParam(r, "contract"))
	if err != nil {
		return common.Address{}, nil, err
	}
	id, err := parseAssetID(chi.URLParam(r, "assetId"))
	if err != nil {
		return common.Address{}, nil, err
	}
	return contract, id, nil
}

// callFrom builds the engine call for the authenticated caller with the
// optional native value.
func callFrom(r *http.Request, value string) (marketplace.Call, error) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		return marketplace.Call{}, badRequest("caller unknown")
	}
	amount, err := parseOptionalAmount("value", value)
	if err != nil {
		return marketplace.Call{}, err
	}
	return marketplace.Call{Caller: caller, Value: amount}, nil
}
