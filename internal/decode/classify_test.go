package decode

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"walletledger/internal/model"
)

func topicLog(topic0 common.Hash) *types.Log {
	return &types.Log{Topics: []common.Hash{topic0}}
}

func TestClassifyFailedReceipt(t *testing.T) {
	receipt := &types.Receipt{Status: types.ReceiptStatusFailed}
	if got := Classify(receipt, nil); got != model.TypeFailed {
		t.Fatalf("failed receipt classified as %q", got)
	}
	if got := Classify(nil, nil); got != model.TypeFailed {
		t.Fatalf("nil receipt classified as %q", got)
	}
}

func TestClassifyTopicPriority(t *testing.T) {
	tests := []struct {
		name   string
		topics []common.Hash
		want   string
	}{
		{"v3 swap", []common.Hash{topicSwapV3}, model.TypeSwap},
		{"v2 swap", []common.Hash{topicSwapV2}, model.TypeSwap},
		{"v3 mint", []common.Hash{topicMintV3}, model.TypeAddLiquidity},
		{"increase liquidity", []common.Hash{topicIncLiqV3}, model.TypeAddLiquidity},
		{"v2 burn", []common.Hash{topicBurnV2}, model.TypeRemoveLiquidity},
		{"decrease liquidity", []common.Hash{topicDecLiqV3}, model.TypeRemoveLiquidity},
		{"swap beats mint", []common.Hash{topicMintV3, topicSwapV3}, model.TypeSwap},
		{"mint beats burn", []common.Hash{topicBurnV2, topicMintV2}, model.TypeAddLiquidity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := make([]*types.Log, 0, len(tt.topics))
			for _, topic := range tt.topics {
				logs = append(logs, topicLog(topic))
			}
			receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, Logs: logs}
			if got := Classify(receipt, nil); got != tt.want {
				t.Fatalf("classified as %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyTopicWinsOverShape(t *testing.T) {
	// Both-signs deltas look like a swap, but the burn event is ground truth.
	deltas := model.DeltaSet{
		model.NativeAsset:       big.NewInt(-100),
		model.AssetKey("0xabc"): big.NewInt(200),
	}
	receipt := &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs:   []*types.Log{topicLog(topicBurnV3)},
	}
	if got := Classify(receipt, deltas); got != model.TypeRemoveLiquidity {
		t.Fatalf("classified as %q, want %q", got, model.TypeRemoveLiquidity)
	}
}

func TestClassifyShapeFallback(t *testing.T) {
	tests := []struct {
		name   string
		deltas model.DeltaSet
		want   string
	}{
		{
			"both signs",
			model.DeltaSet{model.NativeAsset: big.NewInt(-1), model.AssetKey("0xa"): big.NewInt(1)},
			model.TypeSwap,
		},
		{
			"only outflows",
			model.DeltaSet{model.NativeAsset: big.NewInt(-1), model.AssetKey("0xa"): big.NewInt(-2)},
			model.TypeAddLiquidity,
		},
		{
			"only inflows",
			model.DeltaSet{model.NativeAsset: big.NewInt(1500000000000000000)},
			model.TypeRemoveLiquidity,
		},
		{
			"no deltas",
			model.DeltaSet{},
			model.TypeUnknown,
		},
	}

	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(receipt, tt.deltas); got != tt.want {
				t.Fatalf("classified as %q, want %q", got, tt.want)
			}
		})
	}
}
