package token

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"unicode"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"walletledger/internal/model"
)

// Backend is the chain surface metadata resolution needs.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// symbolAliases normalizes bridged-token symbol spellings.
var symbolAliases = map[string]string{
	"wrapped btc": "WBTC",
	"wbtc.e":      "WBTC",
}

// decimalsBySymbol backs up the decimals() probe for well-known assets.
var decimalsBySymbol = map[string]uint8{
	"WBTC": 8,
	"USDC": 6,
	"USDT": 6,
	"DAI":  18,
	"WETH": 18,
	"ETH":  18,
}

// MetaCache memoizes token metadata for the process lifetime. Contract
// metadata cannot change, so entries are never invalidated.
type MetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewMetaCache() *MetaCache {
	return &MetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *MetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *MetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Resolver resolves symbol/decimals/name for token and NFT contracts,
// memoizing through an injected cache instead of package state.
type Resolver struct {
	backend Backend
	cache   *MetaCache
	logger  *zap.Logger
}

func NewResolver(backend Backend, cache *MetaCache, logger *zap.Logger) *Resolver {
	if cache == nil {
		cache = NewMetaCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{backend: backend, cache: cache, logger: logger}
}

// Meta returns the metadata for a contract, fetching and caching it on
// first use. Probe failures degrade to defaults (symbol UNKNOWN,
// decimals 18) rather than erroring: a display fallback must never sink a
// decoded transaction.
func (r *Resolver) Meta(ctx context.Context, address common.Address) model.TokenMeta {
	if meta, ok := r.cache.Get(address); ok {
		return meta
	}

	meta := r.fetch(ctx, address)
	r.cache.Set(address, meta)
	return meta
}

// DisplayName returns the best label for an NFT collection: the contract
// name, then the symbol, then UNKNOWN.
func (r *Resolver) DisplayName(ctx context.Context, address common.Address) string {
	meta := r.Meta(ctx, address)
	if meta.Name != "" {
		return meta.Name
	}
	if meta.Symbol != "" && meta.Symbol != "UNKNOWN" {
		return meta.Symbol
	}
	return "UNKNOWN"
}

func (r *Resolver) fetch(ctx context.Context, address common.Address) model.TokenMeta {
	meta := model.TokenMeta{Address: address.Hex(), Symbol: "UNKNOWN", Decimals: 18}
	if r.backend == nil {
		return meta
	}

	if symbol, ok := r.callString(ctx, address, "symbol"); ok {
		meta.Symbol = normalizeSymbol(symbol)
	}
	if name, ok := r.callString(ctx, address, "name"); ok {
		meta.Name = strings.TrimSpace(name)
	}

	if decimals, ok := r.callDecimals(ctx, address); ok {
		meta.Decimals = decimals
	} else if known, ok := decimalsBySymbol[strings.ToUpper(meta.Symbol)]; ok {
		meta.Decimals = known
	} else {
		r.logger.Debug("decimals probe failed, defaulting to 18", zap.String("token", address.Hex()))
	}

	return meta
}

func (r *Resolver) callDecimals(ctx context.Context, address common.Address) (uint8, bool) {
	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return 0, false
	}
	values, err := r.call(ctx, address, "decimals", stringABI)
	if err != nil || len(values) == 0 {
		return 0, false
	}
	switch v := values[0].(type) {
	case uint8:
		return v, true
	case *big.Int:
		return uint8(v.Uint64()), true
	default:
		return 0, false
	}
}

// callString tries the string-returning ABI first and falls back to the
// bytes32 variant some older tokens expose.
func (r *Resolver) callString(ctx context.Context, address common.Address, method string) (string, bool) {
	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return "", false
	}
	if values, err := r.call(ctx, address, method, stringABI); err == nil && len(values) > 0 {
		if s, ok := values[0].(string); ok && printable(s) {
			return s, true
		}
	}

	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return "", false
	}
	if values, err := r.call(ctx, address, method, bytes32ABI); err == nil && len(values) > 0 {
		if s, ok := bytes32ToString(values[0]); ok && printable(s) {
			return s, true
		}
	}

	r.logger.Debug("string probe failed", zap.String("token", address.Hex()), zap.String("method", method))
	return "", false
}

func (r *Resolver) call(ctx context.Context, address common.Address, method string, parsed abi.ABI) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &address, Data: data}
	resp, err := r.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func normalizeSymbol(symbol string) string {
	s := strings.TrimSpace(symbol)
	if s == "" {
		return "UNKNOWN"
	}
	if alias, ok := symbolAliases[strings.ToLower(s)]; ok {
		return alias
	}
	return s
}

func printable(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}
