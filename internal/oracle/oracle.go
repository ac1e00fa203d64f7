package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletledger/internal/model"
	"walletledger/internal/token"
)

// ErrUnpriceable marks a pool that matches neither pricing model. The
// driver skips pricing for the affected transaction and keeps going.
var ErrUnpriceable = errors.New("unpriceable pool")

// ratioPrecision is the division precision for ratio math. 18-decimal
// token scales and sub-cent downstream rounding need well over float64
// precision; 50 digits keeps the reciprocal product within 1e-30 of one.
const ratioPrecision = 50

var q192 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 192), 0)

// Backend is the chain surface the oracle needs.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Oracle derives the bidirectional exchange ratio of a two-asset pool at a
// block, hiding the two pricing encodings behind one contract. Pool and
// token metadata are resolved once and cached for the process lifetime.
type Oracle struct {
	backend Backend
	tokens  *token.Resolver
	logger  *zap.Logger

	mu    sync.RWMutex
	pools map[common.Address]model.Pool
}

func New(backend Backend, tokens *token.Resolver, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		backend: backend,
		tokens:  tokens,
		logger:  logger,
		pools:   make(map[common.Address]model.Pool),
	}
}

// ResolvePool detects the pool's pricing model and loads its token
// metadata. The slot0 probe decides: a nonzero packed price means
// concentrated liquidity; otherwise a successful getReserves means
// constant product; anything else is ErrUnpriceable.
func (o *Oracle) ResolvePool(ctx context.Context, address common.Address) (model.Pool, error) {
	o.mu.RLock()
	pool, ok := o.pools[address]
	o.mu.RUnlock()
	if ok {
		return pool, nil
	}

	poolModel, err := o.detectModel(ctx, address)
	if err != nil {
		return model.Pool{}, err
	}

	token0, token1, err := o.poolTokens(ctx, address)
	if err != nil {
		return model.Pool{}, fmt.Errorf("pool tokens: %w", err)
	}

	pool = model.Pool{
		Address: address.Hex(),
		Model:   poolModel,
		Token0:  o.tokens.Meta(ctx, token0),
		Token1:  o.tokens.Meta(ctx, token1),
	}

	o.logger.Info("pool resolved",
		zap.String("pool", pool.Address),
		zap.String("model", string(pool.Model)),
		zap.String("token0", pool.Token0.Symbol),
		zap.String("token1", pool.Token1.Symbol))

	o.mu.Lock()
	o.pools[address] = pool
	o.mu.Unlock()
	return pool, nil
}

func (o *Oracle) detectModel(ctx context.Context, address common.Address) (model.PoolModel, error) {
	if sqrt, err := o.readSqrtPrice(ctx, address, nil); err == nil && sqrt.Sign() > 0 {
		return model.PoolConcentrated, nil
	}
	if _, _, err := o.readReserves(ctx, address, nil); err == nil {
		return model.PoolConstantProduct, nil
	}
	return "", fmt.Errorf("%w: %s matches neither slot0 nor getReserves", ErrUnpriceable, address.Hex())
}

// PriceAt returns both reciprocal ratios between the pool's assets at the
// block: asset0 per asset1 and asset1 per asset0.
func (o *Oracle) PriceAt(ctx context.Context, pool model.Pool, blockNumber uint64) (decimal.Decimal, decimal.Decimal, error) {
	address := common.HexToAddress(pool.Address)
	block := new(big.Int).SetUint64(blockNumber)

	var ratio1Per0 decimal.Decimal
	switch pool.Model {
	case model.PoolConcentrated:
		sqrt, err := o.readSqrtPrice(ctx, address, block)
		if err != nil {
			return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("slot0 at block %d: %w", blockNumber, err)
		}
		if sqrt.Sign() == 0 {
			return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("slot0 at block %d: zero sqrt price", blockNumber)
		}
		// ratio = (sqrtPrice / 2^96)^2, then decimal-adjusted.
		sp := decimal.NewFromBigInt(sqrt, 0)
		ratio1Per0 = sp.Mul(sp).DivRound(q192, ratioPrecision)

	case model.PoolConstantProduct:
		reserve0, reserve1, err := o.readReserves(ctx, address, block)
		if err != nil {
			return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("getReserves at block %d: %w", blockNumber, err)
		}
		if reserve0.Sign() == 0 {
			return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("getReserves at block %d: empty reserve0", blockNumber)
		}
		ratio1Per0 = decimal.NewFromBigInt(reserve1, 0).DivRound(decimal.NewFromBigInt(reserve0, 0), ratioPrecision)

	default:
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("%w: unknown model %q", ErrUnpriceable, pool.Model)
	}

	ratio1Per0 = ratio1Per0.Shift(int32(pool.Token0.Decimals) - int32(pool.Token1.Decimals))
	if ratio1Per0.IsZero() {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("zero ratio at block %d", blockNumber)
	}
	ratio0Per1 := decimal.New(1, 0).DivRound(ratio1Per0, ratioPrecision)
	return ratio0Per1, ratio1Per0, nil
}

// readSqrtPrice reads the first packed word of slot0 directly. Raw slicing
// instead of a full unpack keeps the probe tolerant of pools whose slot0
// trails nonstandard fields.
func (o *Oracle) readSqrtPrice(ctx context.Context, address common.Address, block *big.Int) (*big.Int, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack("slot0")
	if err != nil {
		return nil, fmt.Errorf("pack slot0: %w", err)
	}
	resp, err := o.backend.CallContract(ctx, ethereum.CallMsg{To: &address, Data: data}, block)
	if err != nil {
		return nil, err
	}
	if len(resp) < 32 {
		return nil, fmt.Errorf("slot0 returned %d bytes", len(resp))
	}
	return new(big.Int).SetBytes(resp[:32]), nil
}

func (o *Oracle) readReserves(ctx context.Context, address common.Address, block *big.Int) (*big.Int, *big.Int, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, nil, err
	}
	data, err := parsed.Pack("getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("pack getReserves: %w", err)
	}
	resp, err := o.backend.CallContract(ctx, ethereum.CallMsg{To: &address, Data: data}, block)
	if err != nil {
		return nil, nil, err
	}
	values, err := parsed.Unpack("getReserves", resp)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack getReserves: %w", err)
	}
	if len(values) < 2 {
		return nil, nil, fmt.Errorf("unexpected reserves values: %d", len(values))
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return nil, nil, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return nil, nil, fmt.Errorf("reserve1: %w", err)
	}
	return reserve0, reserve1, nil
}

func (o *Oracle) poolTokens(ctx context.Context, address common.Address) (common.Address, common.Address, error) {
	token0, err := o.callAddress(ctx, address, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := o.callAddress(ctx, address, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return token0, token1, nil
}

func (o *Oracle) callAddress(ctx context.Context, address common.Address, method string) (common.Address, error) {
	parsed, err := PoolABI()
	if err != nil {
		return common.Address{}, err
	}
	data, err := parsed.Pack(method)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := o.backend.CallContract(ctx, ethereum.CallMsg{To: &address, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return common.Address{}, fmt.Errorf("%s returned nothing", method)
	}
	switch v := values[0].(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", values[0])
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
