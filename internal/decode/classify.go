package decode

import (
	"github.com/ethereum/go-ethereum/core/types"

	"walletledger/internal/model"
)

// Classify assigns the economic label for a decoded transaction.
//
// A failed receipt is always "failed". Otherwise known AMM event topics are
// ground truth and win in priority order swap > add_liquidity >
// remove_liquidity, even when the balance shape disagrees. Only when no
// topic matches does the sign pattern of the deltas decide, covering pools
// that emit no canonical events.
func Classify(receipt *types.Receipt, deltas model.DeltaSet) string {
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		return model.TypeFailed
	}

	if label, ok := classifyFromTopics(receipt.Logs); ok {
		return label
	}
	return classifyFromShape(deltas)
}

func classifyFromTopics(logs []*types.Log) (string, bool) {
	var hasAdd, hasRemove bool
	for _, logEntry := range logs {
		if logEntry == nil || len(logEntry.Topics) == 0 {
			continue
		}
		topic0 := logEntry.Topics[0]
		if _, ok := swapTopics[topic0]; ok {
			return model.TypeSwap, true
		}
		if _, ok := addLiquidityTopics[topic0]; ok {
			hasAdd = true
		}
		if _, ok := removeLiquidityTopics[topic0]; ok {
			hasRemove = true
		}
	}
	if hasAdd {
		return model.TypeAddLiquidity, true
	}
	if hasRemove {
		return model.TypeRemoveLiquidity, true
	}
	return "", false
}

func classifyFromShape(deltas model.DeltaSet) string {
	var outs, ins int
	for _, delta := range deltas {
		switch delta.Sign() {
		case -1:
			outs++
		case 1:
			ins++
		}
	}
	switch {
	case outs >= 1 && ins >= 1:
		return model.TypeSwap
	case outs >= 1:
		return model.TypeAddLiquidity
	case ins >= 1:
		return model.TypeRemoveLiquidity
	default:
		return model.TypeUnknown
	}
}
