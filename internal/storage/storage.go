package storage

import (
	"context"

	"walletledger/internal/model"
)

// DecodedStore persists the decoded ledger keyed by transaction hash.
// Saving the same hash again replaces the row, never duplicates it.
type DecodedStore interface {
	LoadDecoded(ctx context.Context) (map[string]model.DecodedTransaction, error)
	SaveDecoded(ctx context.Context, rows []model.DecodedTransaction) error
}

// PriceStore persists price points keyed by transaction hash with the same
// upsert semantics.
type PriceStore interface {
	LoadPrices(ctx context.Context) (map[string]model.PricePoint, error)
	SavePrices(ctx context.Context, points []model.PricePoint) error
}
