package decode

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EventKind tags the transfer event shapes the delta engine understands.
// Dispatch is a table lookup on topic0; adding a shape is a data change.
type EventKind int

const (
	EventUnknown EventKind = iota
	// EventTransfer covers both ERC20 (3 topics) and ERC721 (4 topics);
	// they share a signature and are split by topic count.
	EventTransfer
	EventTransferSingle
	EventTransferBatch
	EventWrapDeposit
	EventWrapWithdrawal
)

func sig(def string) common.Hash {
	return crypto.Keccak256Hash([]byte(def))
}

var (
	topicTransfer       = sig("Transfer(address,address,uint256)")
	topicTransferSingle = sig("TransferSingle(address,address,address,uint256,uint256)")
	topicTransferBatch  = sig("TransferBatch(address,address,address,uint256[],uint256[])")
	topicWrapDeposit    = sig("Deposit(address,uint256)")
	topicWrapWithdrawal = sig("Withdrawal(address,uint256)")

	topicSwapV3   = sig("Swap(address,address,int256,int256,uint160,uint128,int24)")
	topicMintV3   = sig("Mint(address,address,int24,int24,uint128,uint256,uint256)")
	topicBurnV3   = sig("Burn(address,int24,int24,uint128,uint256,uint256)")
	topicIncLiqV3 = sig("IncreaseLiquidity(uint256,uint128,uint256,uint256)")
	topicDecLiqV3 = sig("DecreaseLiquidity(uint256,uint128,uint256,uint256)")
	topicSwapV2   = sig("Swap(address,uint256,uint256,uint256,uint256,address)")
	topicMintV2   = sig("Mint(address,uint256,uint256)")
	topicBurnV2   = sig("Burn(address,uint256,uint256,address)")
)

// transferKinds maps topic0 to the event shape the engine decodes.
var transferKinds = map[common.Hash]EventKind{
	topicTransfer:       EventTransfer,
	topicTransferSingle: EventTransferSingle,
	topicTransferBatch:  EventTransferBatch,
	topicWrapDeposit:    EventWrapDeposit,
	topicWrapWithdrawal: EventWrapWithdrawal,
}

// AMM event families used by the classifier, in priority order
// swap > add_liquidity > remove_liquidity.
var (
	swapTopics = map[common.Hash]struct{}{
		topicSwapV3: {},
		topicSwapV2: {},
	}
	addLiquidityTopics = map[common.Hash]struct{}{
		topicMintV3:   {},
		topicIncLiqV3: {},
		topicMintV2:   {},
	}
	removeLiquidityTopics = map[common.Hash]struct{}{
		topicBurnV3:   {},
		topicDecLiqV3: {},
		topicBurnV2:   {},
	}
)

// KindOf resolves the event shape for a topic0, EventUnknown when the
// signature is not one the engine handles.
func KindOf(topic0 common.Hash) EventKind {
	if kind, ok := transferKinds[topic0]; ok {
		return kind
	}
	return EventUnknown
}
