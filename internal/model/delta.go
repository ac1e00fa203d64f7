package model

import (
	"math/big"
	"sort"
	"strings"
)

// AssetKey identifies an asset inside a DeltaSet: the native sentinel or a
// lowercase token contract address.
type AssetKey string

// NativeAsset is the sentinel key for the chain's native unit.
const NativeAsset AssetKey = "eth"

// AssetForContract builds the key for a token contract address.
func AssetForContract(addr string) AssetKey {
	return AssetKey(strings.ToLower(strings.TrimSpace(addr)))
}

// IsNative reports whether the key is the native sentinel.
func (k AssetKey) IsNative() bool { return k == NativeAsset }

// DeltaSet accumulates signed base-unit balance changes per asset for one
// wallet and one transaction. Positive means inflow to the wallet.
type DeltaSet map[AssetKey]*big.Int

// Add accumulates amount into the asset's running total.
func (d DeltaSet) Add(key AssetKey, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	if cur, ok := d[key]; ok {
		cur.Add(cur, amount)
		return
	}
	d[key] = new(big.Int).Set(amount)
}

// Get returns the accumulated delta for an asset, nil when absent.
func (d DeltaSet) Get(key AssetKey) *big.Int {
	return d[key]
}

// Has reports whether the asset has an established delta, zero included.
func (d DeltaSet) Has(key AssetKey) bool {
	_, ok := d[key]
	return ok
}

// Prune drops assets whose accumulated delta is exactly zero.
func (d DeltaSet) Prune() {
	for key, amount := range d {
		if amount.Sign() == 0 {
			delete(d, key)
		}
	}
}

// Keys returns the asset keys in deterministic order, native first.
func (d DeltaSet) Keys() []AssetKey {
	keys := make([]AssetKey, 0, len(d))
	for key := range d {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].IsNative() != keys[j].IsNative() {
			return keys[i].IsNative()
		}
		return keys[i] < keys[j]
	})
	return keys
}

// NftMove records one NFT quantity change for the wallet. For single
// (non-batch) transfer events the quantity is always +1 or -1.
type NftMove struct {
	Contract string   `json:"contract"`
	TokenID  *big.Int `json:"token_id"`
	Qty      *big.Int `json:"qty"`
}
