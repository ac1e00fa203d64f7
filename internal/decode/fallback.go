package decode

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"walletledger/internal/model"
)

// nativeStrategy is one tier of the native-delta fallback chain. A tier
// either resolves a nonzero delta or defers to the next one.
type nativeStrategy struct {
	name string
	run  func(ctx context.Context) (*big.Int, error)
}

// resolveNativeFallback runs the fallback tiers in order: trace sum first,
// then balance diff. Logs and internal transfers have already been tried by
// the time this runs.
func (e *Engine) resolveNativeFallback(ctx context.Context, wallet string, tx model.RawTransaction, receipt *types.Receipt) (*big.Int, bool) {
	if e.backend == nil {
		return nil, false
	}

	strategies := []nativeStrategy{
		{name: "trace", run: func(ctx context.Context) (*big.Int, error) {
			return e.traceNativeDelta(ctx, wallet, tx.Hash)
		}},
		{name: "balance-diff", run: func(ctx context.Context) (*big.Int, error) {
			return e.balanceDiffDelta(ctx, wallet, tx, receipt)
		}},
	}

	for _, strategy := range strategies {
		delta, err := strategy.run(ctx)
		if err != nil {
			e.logger.Debug("native fallback tier failed",
				zap.String("tier", strategy.name),
				zap.String("tx", tx.Hash),
				zap.Error(err))
			continue
		}
		if delta != nil && delta.Sign() != 0 {
			return delta, true
		}
	}
	return nil, false
}

// traceNativeDelta sums value transfers to/from the wallet over the full
// call trace, the top-level call included.
func (e *Engine) traceNativeDelta(ctx context.Context, wallet, txHash string) (*big.Int, error) {
	frames, err := e.backend.CallFrames(ctx, txHash)
	if err != nil {
		return nil, err
	}

	delta := new(big.Int)
	for _, frame := range frames {
		if frame.Value == nil || frame.Value.Sign() <= 0 {
			continue
		}
		if strings.ToLower(frame.To) == wallet {
			delta.Add(delta, frame.Value)
		}
		if strings.ToLower(frame.From) == wallet {
			delta.Sub(delta, frame.Value)
		}
	}
	return delta, nil
}

// balanceDiffDelta computes balance(N) − balance(N−1). When the wallet
// initiated the transaction the raw diff already reflects the fee, so the
// gas cost is added back.
func (e *Engine) balanceDiffDelta(ctx context.Context, wallet string, tx model.RawTransaction, receipt *types.Receipt) (*big.Int, error) {
	blockNumber := tx.BlockNum()
	if blockNumber == 0 {
		return nil, fmt.Errorf("block number unavailable")
	}

	addr := common.HexToAddress(wallet)
	before, err := e.backend.BalanceAt(ctx, addr, new(big.Int).SetUint64(blockNumber-1))
	if err != nil {
		return nil, err
	}
	after, err := e.backend.BalanceAt(ctx, addr, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return nil, err
	}

	delta := new(big.Int).Sub(after, before)
	if strings.ToLower(tx.From) == wallet {
		delta.Add(delta, GasCost(tx, receipt))
	}
	return delta, nil
}
