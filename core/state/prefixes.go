package state

var (
	marketAssetPrefix     = []byte("market/asset/")
	marketOfferPrefix     = []byte("market/offer/")
	marketTokenPrefix     = []byte("market/token/")
	marketTokenSeqKey     = []byte("market/token-seq")
	marketListingNonceKey = []byte("market/listing-nonce")
)

// MarketAssetKey returns the storage key of an asset's lifecycle record.
func MarketAssetKey(contract [20]byte, id [32]byte) []byte {
	return concatKey(marketAssetPrefix, contract[:], id[:])
}

// MarketOfferKey returns the storage key of a single offer.
func MarketOfferKey(contract [20]byte, id [32]byte, offerer [20]byte) []byte {
	return concatKey(marketOfferPrefix, contract[:], id[:], offerer[:])
}

// MarketOfferPrefix returns the prefix shared by every offer on an asset.
func MarketOfferPrefix(contract [20]byte, id [32]byte) []byte {
	return concatKey(marketOfferPrefix, contract[:], id[:])
}

// MarketTokenKey returns the registry key of a payable token.
func MarketTokenKey(token [20]byte) []byte {
	return concatKey(marketTokenPrefix, token[:])
}

func concatKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	key := make([]byte, 0, size)
	key = append(key, prefix...)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}
