package model

import (
	"math/big"
	"strconv"
	"strings"
)

// RawTransaction is one row of the upstream raw-transaction ledger.
// Numeric fields arrive as base-10 strings, the way explorer APIs
// serialize them.
type RawTransaction struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	BlockNumber string `json:"blockNumber"`
	BlockHash   string `json:"blockHash"`
	TimeStamp   string `json:"timeStamp"`
	GasPrice    string `json:"gasPrice"`
}

// ValueWei parses the outer native value. Unparseable input counts as zero.
func (tx RawTransaction) ValueWei() *big.Int {
	return parseBig(tx.Value)
}

// GasPriceWei parses the legacy gas price field.
func (tx RawTransaction) GasPriceWei() *big.Int {
	return parseBig(tx.GasPrice)
}

// BlockNum parses the block number, zero when absent.
func (tx RawTransaction) BlockNum() uint64 {
	n, err := strconv.ParseUint(strings.TrimSpace(tx.BlockNumber), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// UnixTime parses the block timestamp, zero when absent.
func (tx RawTransaction) UnixTime() int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(tx.TimeStamp), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseBig(s string) *big.Int {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

// InternalTransfer is a sub-call native value movement reported by the
// internal-transfers feed.
type InternalTransfer struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Value *big.Int `json:"value"`
}

// CallFrame is one call in a full transaction trace, including the
// top-level call.
type CallFrame struct {
	Type  string   `json:"type"`
	From  string   `json:"from"`
	To    string   `json:"to"`
	Value *big.Int `json:"value"`
}
