package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"walletledger/internal/model"
)

// Store provides Postgres persistence for the decoded and price ledgers.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the ledger tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS decoded_transactions (
			tx_hash          TEXT PRIMARY KEY,
			tx_timestamp     TEXT NOT NULL DEFAULT '',
			block_time       BIGINT NOT NULL DEFAULT 0,
			tx_type          TEXT NOT NULL DEFAULT 'unknown',
			from_address     TEXT NOT NULL DEFAULT '',
			to_address       TEXT NOT NULL DEFAULT '',
			amount_sent      TEXT NOT NULL DEFAULT '',
			amount_received  TEXT NOT NULL DEFAULT '',
			total_gas_eth    TEXT NOT NULL DEFAULT '',
			nft_transfer     TEXT NOT NULL DEFAULT '',
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS price_points (
			tx_hash                  TEXT PRIMARY KEY,
			tx_timestamp             TEXT NOT NULL DEFAULT '',
			block_time               BIGINT NOT NULL DEFAULT 0,
			tx_type                  TEXT NOT NULL DEFAULT 'unknown',
			from_address             TEXT NOT NULL DEFAULT '',
			to_address               TEXT NOT NULL DEFAULT '',
			amount_sent              TEXT NOT NULL DEFAULT '',
			amount_received          TEXT NOT NULL DEFAULT '',
			total_gas_eth            TEXT NOT NULL DEFAULT '',
			nft_transfer             TEXT NOT NULL DEFAULT '',
			resolved_block           BIGINT NOT NULL DEFAULT 0,
			ratio_asset0_per_asset1  TEXT NOT NULL DEFAULT '',
			ratio_asset1_per_asset0  TEXT NOT NULL DEFAULT '',
			updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	return err
}

// LoadDecoded returns all decoded rows keyed by lowercase hash.
func (s *Store) LoadDecoded(ctx context.Context) (map[string]model.DecodedTransaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, tx_timestamp, block_time, tx_type, from_address, to_address,
		       amount_sent, amount_received, total_gas_eth, nft_transfer
		FROM decoded_transactions
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]model.DecodedTransaction)
	for rows.Next() {
		var row model.DecodedTransaction
		if err := rows.Scan(
			&row.TxHash, &row.TxTimestamp, &row.BlockTime, &row.Type,
			&row.FromAddress, &row.ToAddress,
			&row.AmountSent, &row.AmountReceived, &row.TotalGasETH, &row.NftTransfer,
		); err != nil {
			return nil, err
		}
		out[strings.ToLower(row.TxHash)] = row
	}
	return out, rows.Err()
}

// SaveDecoded upserts decoded rows by hash.
func (s *Store) SaveDecoded(ctx context.Context, decoded []model.DecodedTransaction) error {
	if len(decoded) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, row := range decoded {
		batch.Queue(`
			INSERT INTO decoded_transactions (
				tx_hash, tx_timestamp, block_time, tx_type, from_address, to_address,
				amount_sent, amount_received, total_gas_eth, nft_transfer, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
			ON CONFLICT (tx_hash)
			DO UPDATE SET
				tx_timestamp = EXCLUDED.tx_timestamp,
				block_time = EXCLUDED.block_time,
				tx_type = EXCLUDED.tx_type,
				from_address = EXCLUDED.from_address,
				to_address = EXCLUDED.to_address,
				amount_sent = EXCLUDED.amount_sent,
				amount_received = EXCLUDED.amount_received,
				total_gas_eth = EXCLUDED.total_gas_eth,
				nft_transfer = EXCLUDED.nft_transfer,
				updated_at = now()
		`,
			strings.ToLower(row.TxHash),
			row.TxTimestamp,
			row.BlockTime,
			row.Type,
			row.FromAddress,
			row.ToAddress,
			row.AmountSent,
			row.AmountReceived,
			row.TotalGasETH,
			row.NftTransfer,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range decoded {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadPrices returns all price points keyed by lowercase hash.
func (s *Store) LoadPrices(ctx context.Context) (map[string]model.PricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, tx_timestamp, block_time, tx_type, from_address, to_address,
		       amount_sent, amount_received, total_gas_eth, nft_transfer,
		       resolved_block, ratio_asset0_per_asset1, ratio_asset1_per_asset0
		FROM price_points
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]model.PricePoint)
	for rows.Next() {
		var point model.PricePoint
		var resolvedBlock int64
		if err := rows.Scan(
			&point.TxHash, &point.TxTimestamp, &point.BlockTime, &point.Type,
			&point.FromAddress, &point.ToAddress,
			&point.AmountSent, &point.AmountReceived, &point.TotalGasETH, &point.NftTransfer,
			&resolvedBlock, &point.Ratio0Per1, &point.Ratio1Per0,
		); err != nil {
			return nil, err
		}
		point.BlockNumber = uint64(resolvedBlock)
		out[strings.ToLower(point.TxHash)] = point
	}
	return out, rows.Err()
}

// SavePrices upserts price points by hash.
func (s *Store) SavePrices(ctx context.Context, points []model.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, point := range points {
		batch.Queue(`
			INSERT INTO price_points (
				tx_hash, tx_timestamp, block_time, tx_type, from_address, to_address,
				amount_sent, amount_received, total_gas_eth, nft_transfer,
				resolved_block, ratio_asset0_per_asset1, ratio_asset1_per_asset0, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
			ON CONFLICT (tx_hash)
			DO UPDATE SET
				tx_timestamp = EXCLUDED.tx_timestamp,
				block_time = EXCLUDED.block_time,
				tx_type = EXCLUDED.tx_type,
				from_address = EXCLUDED.from_address,
				to_address = EXCLUDED.to_address,
				amount_sent = EXCLUDED.amount_sent,
				amount_received = EXCLUDED.amount_received,
				total_gas_eth = EXCLUDED.total_gas_eth,
				nft_transfer = EXCLUDED.nft_transfer,
				resolved_block = EXCLUDED.resolved_block,
				ratio_asset0_per_asset1 = EXCLUDED.ratio_asset0_per_asset1,
				ratio_asset1_per_asset0 = EXCLUDED.ratio_asset1_per_asset0,
				updated_at = now()
		`,
			strings.ToLower(point.TxHash),
			point.TxTimestamp,
			point.BlockTime,
			point.Type,
			point.FromAddress,
			point.ToAddress,
			point.AmountSent,
			point.AmountReceived,
			point.TotalGasETH,
			point.NftTransfer,
			int64(point.BlockNumber),
			point.Ratio0Per1,
			point.Ratio1Per0,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range points {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
