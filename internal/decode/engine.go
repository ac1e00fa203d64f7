package decode

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"walletledger/internal/model"
)

// Backend is the chain surface the delta engine needs beyond the receipt
// itself: the internal-transfers feed and the two native fallback tiers.
type Backend interface {
	ListInternalTransfers(ctx context.Context, txHash string) ([]model.InternalTransfer, error)
	CallFrames(ctx context.Context, txHash string) ([]model.CallFrame, error)
	BalanceAt(ctx context.Context, addr common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Engine turns a receipt's logs plus the outer transfer fields into signed
// per-asset balance deltas and NFT moves for one wallet. A malformed
// individual log contributes zero and is skipped, never raised.
type Engine struct {
	backend Backend
	logger  *zap.Logger
}

func NewEngine(backend Backend, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{backend: backend, logger: logger}
}

// Decode computes the wallet's deltas for one transaction. A failed receipt
// skips all log interpretation and returns empty sets.
func (e *Engine) Decode(ctx context.Context, wallet common.Address, tx model.RawTransaction, receipt *types.Receipt) (model.DeltaSet, []model.NftMove, error) {
	if receipt == nil {
		return nil, nil, fmt.Errorf("receipt is required")
	}

	deltas := make(model.DeltaSet)
	moves := make([]model.NftMove, 0)
	if receipt.Status != types.ReceiptStatusSuccessful {
		return deltas, moves, nil
	}

	walletHex := strings.ToLower(wallet.Hex())

	// Tier 0: the outer value field, signed by direction. A self-send nets
	// to zero.
	native := new(big.Int)
	if outer := tx.ValueWei(); outer.Sign() > 0 {
		if strings.ToLower(tx.From) == walletHex {
			native.Sub(native, outer)
		}
		if strings.ToLower(tx.To) == walletHex {
			native.Add(native, outer)
		}
	}

	for _, logEntry := range receipt.Logs {
		if logEntry == nil || len(logEntry.Topics) == 0 {
			continue
		}
		e.applyLog(logEntry, walletHex, native, deltas, &moves)
	}

	e.addInternalTransfers(ctx, tx.Hash, walletHex, native)

	if native.Sign() != 0 {
		deltas.Add(model.NativeAsset, native)
	}

	if !deltas.Has(model.NativeAsset) {
		if delta, ok := e.resolveNativeFallback(ctx, walletHex, tx, receipt); ok {
			deltas.Add(model.NativeAsset, delta)
		}
	}

	deltas.Prune()
	return deltas, moves, nil
}

func (e *Engine) applyLog(logEntry *types.Log, wallet string, native *big.Int, deltas model.DeltaSet, moves *[]model.NftMove) {
	contract := strings.ToLower(logEntry.Address.Hex())
	topics := logEntry.Topics

	switch KindOf(topics[0]) {
	case EventTransfer:
		if len(topics) == 4 {
			// ERC721: indexed token id, quantity is always one.
			from := addressFromTopic(topics[1])
			to := addressFromTopic(topics[2])
			tokenID := new(big.Int).SetBytes(topics[3].Bytes())
			if from == wallet {
				*moves = append(*moves, model.NftMove{Contract: contract, TokenID: tokenID, Qty: big.NewInt(-1)})
			}
			if to == wallet {
				*moves = append(*moves, model.NftMove{Contract: contract, TokenID: new(big.Int).Set(tokenID), Qty: big.NewInt(1)})
			}
			return
		}
		if len(topics) == 3 {
			// ERC20: big-endian amount in the data payload.
			if len(logEntry.Data) == 0 {
				return
			}
			amount := new(big.Int).SetBytes(logEntry.Data)
			if amount.Sign() <= 0 {
				return
			}
			from := addressFromTopic(topics[1])
			to := addressFromTopic(topics[2])
			key := model.AssetForContract(contract)
			if from == wallet {
				deltas.Add(key, new(big.Int).Neg(amount))
			}
			if to == wallet {
				deltas.Add(key, amount)
			}
		}

	case EventTransferSingle:
		if len(topics) < 4 || len(logEntry.Data) < 64 {
			return
		}
		tokenID := new(big.Int).SetBytes(logEntry.Data[0:32])
		qty := new(big.Int).SetBytes(logEntry.Data[32:64])
		if qty.Sign() <= 0 {
			return
		}
		from := addressFromTopic(topics[2])
		to := addressFromTopic(topics[3])
		if from == wallet {
			*moves = append(*moves, model.NftMove{Contract: contract, TokenID: tokenID, Qty: new(big.Int).Neg(qty)})
		}
		if to == wallet {
			*moves = append(*moves, model.NftMove{Contract: contract, TokenID: new(big.Int).Set(tokenID), Qty: new(big.Int).Set(qty)})
		}

	case EventTransferBatch:
		if len(topics) < 4 {
			return
		}
		ids, values, err := unpackBatch(logEntry.Data)
		if err != nil || len(ids) != len(values) {
			// Shape mismatch degrades to no entries for this log.
			return
		}
		from := addressFromTopic(topics[2])
		to := addressFromTopic(topics[3])
		for i := range ids {
			if values[i].Sign() <= 0 {
				continue
			}
			if from == wallet {
				*moves = append(*moves, model.NftMove{Contract: contract, TokenID: new(big.Int).Set(ids[i]), Qty: new(big.Int).Neg(values[i])})
			}
			if to == wallet {
				*moves = append(*moves, model.NftMove{Contract: contract, TokenID: new(big.Int).Set(ids[i]), Qty: new(big.Int).Set(values[i])})
			}
		}

	case EventWrapDeposit:
		// Wallet wraps native into the token; the paired ERC20 Transfer
		// log books the token side, so only the native leg moves here.
		if len(topics) < 2 {
			return
		}
		if addressFromTopic(topics[1]) == wallet {
			if amount := new(big.Int).SetBytes(logEntry.Data); amount.Sign() > 0 {
				native.Sub(native, amount)
			}
		}

	case EventWrapWithdrawal:
		if len(topics) < 2 {
			return
		}
		if addressFromTopic(topics[1]) == wallet {
			if amount := new(big.Int).SetBytes(logEntry.Data); amount.Sign() > 0 {
				native.Add(native, amount)
			}
		}
	}
}

func (e *Engine) addInternalTransfers(ctx context.Context, txHash, wallet string, native *big.Int) {
	if e.backend == nil {
		return
	}
	transfers, err := e.backend.ListInternalTransfers(ctx, txHash)
	if err != nil {
		e.logger.Debug("internal transfers unavailable", zap.String("tx", txHash), zap.Error(err))
		return
	}
	for _, transfer := range transfers {
		if transfer.Value == nil || transfer.Value.Sign() <= 0 {
			continue
		}
		if strings.ToLower(transfer.To) == wallet {
			native.Add(native, transfer.Value)
		}
		if strings.ToLower(transfer.From) == wallet {
			native.Sub(native, transfer.Value)
		}
	}
}

// GasCost returns gasUsed × effectiveGasPrice, falling back to the raw
// transaction gas price when the receipt omits the effective price.
func GasCost(tx model.RawTransaction, receipt *types.Receipt) *big.Int {
	if receipt == nil {
		return new(big.Int)
	}
	price := receipt.EffectiveGasPrice
	if price == nil || price.Sign() == 0 {
		price = tx.GasPriceWei()
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), price)
}

func addressFromTopic(topic common.Hash) string {
	return strings.ToLower(common.BytesToAddress(topic.Bytes()).Hex())
}

var (
	batchArgs     abi.Arguments
	batchArgsOnce sync.Once
	batchArgsErr  error
)

func batchArguments() (abi.Arguments, error) {
	batchArgsOnce.Do(func() {
		arrayType, err := abi.NewType("uint256[]", "", nil)
		if err != nil {
			batchArgsErr = err
			return
		}
		batchArgs = abi.Arguments{
			{Name: "ids", Type: arrayType},
			{Name: "values", Type: arrayType},
		}
	})
	return batchArgs, batchArgsErr
}

func unpackBatch(data []byte) ([]*big.Int, []*big.Int, error) {
	args, err := batchArguments()
	if err != nil {
		return nil, nil, err
	}
	values, err := args.Unpack(data)
	if err != nil {
		return nil, nil, err
	}
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("unexpected batch values: %d", len(values))
	}
	ids, ok := values[0].([]*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected ids type %T", values[0])
	}
	amounts, ok := values[1].([]*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected values type %T", values[1])
	}
	return ids, amounts, nil
}
