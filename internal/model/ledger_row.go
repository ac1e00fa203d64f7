package model

// Transaction classification labels.
const (
	TypeSwap            = "swap"
	TypeAddLiquidity    = "add_liquidity"
	TypeRemoveLiquidity = "remove_liquidity"
	TypeFailed          = "failed"
	TypeUnknown         = "unknown"
)

// DecodedTransaction is one row of the decoded ledger. The field order is a
// serialization contract with downstream report stages and must not change.
type DecodedTransaction struct {
	TxHash         string `json:"tx_hash"`
	TxTimestamp    string `json:"tx_timestamp"`
	BlockTime      int64  `json:"block_time"`
	Type           string `json:"type"`
	FromAddress    string `json:"from_address"`
	ToAddress      string `json:"to_address"`
	AmountSent     string `json:"amount_sent"`
	AmountReceived string `json:"amount_received"`
	TotalGasETH    string `json:"total_gas_eth"`
	NftTransfer    string `json:"nft_transfer"`
}

// LedgerColumns is the stable column order of the decoded ledger.
var LedgerColumns = []string{
	"tx_hash", "tx_timestamp", "block_time", "type",
	"from_address", "to_address",
	"amount_sent", "amount_received", "total_gas_eth", "nft_transfer",
}

// PricePoint is one row of the price ledger: the decoded columns preserved
// as-is, plus the block resolved for the transaction's timestamp and both
// reciprocal pool ratios as 18-fractional-digit decimal strings appended
// last.
type PricePoint struct {
	DecodedTransaction
	BlockNumber uint64 `json:"resolved_block"`
	Ratio0Per1  string `json:"ratio_asset0_per_asset1"`
	Ratio1Per0  string `json:"ratio_asset1_per_asset0"`
}
