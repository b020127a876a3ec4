package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func formatAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAssetID(id uint256.Int) string {
	return id.Dec()
}

func formatTime(ts int64) string {
	return strconv.FormatInt(ts, 10)
}

func assetAttributes(contract common.Address, id uint256.Int) map[string]string {
	return map[string]string{
		"assetContract": formatAddress(contract),
		"assetId":       formatAssetID(id),
	}
}
