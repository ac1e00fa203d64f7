package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"walletledger/internal/model"
)

// txListEnvelope is the explorer txlist response shape.
type txListEnvelope struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Result  []model.RawTransaction `json:"result"`
}

// LoadRawTransactions reads the raw transaction input file. Both a bare
// JSON array and the explorer envelope ({"status","message","result"}) are
// accepted.
func LoadRawTransactions(path string) ([]model.RawTransaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var txs []model.RawTransaction
		if err := json.Unmarshal(trimmed, &txs); err != nil {
			return nil, fmt.Errorf("parse input %s: %w", path, err)
		}
		return txs, nil
	}

	var envelope txListEnvelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("parse input %s: %w", path, err)
	}
	return envelope.Result, nil
}
