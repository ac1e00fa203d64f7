package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"walletledger/internal/model"
	"walletledger/internal/oracle"
	"walletledger/internal/storage"
)

// ratioDigits is the fractional precision of the ratio columns.
const ratioDigits = 18

// BlockResolver maps a unix timestamp to the last block at or before it.
type BlockResolver interface {
	Resolve(ctx context.Context, target int64) (uint64, error)
}

// Pricer runs the price stage: for every decoded row without a price point
// it resolves the block nearest the row's timestamp and reads the pool
// ratio at that block. Rows are processed oldest first so consecutive
// timestamps land near each other and the block resolver's hint pays off.
type Pricer struct {
	blocks  BlockResolver
	oracle  *oracle.Oracle
	decoded storage.DecodedStore
	prices  storage.PriceStore
	logger  *zap.Logger
	pool    common.Address
}

func NewPricer(blocks BlockResolver, o *oracle.Oracle, decoded storage.DecodedStore, prices storage.PriceStore, pool common.Address, logger *zap.Logger) *Pricer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pricer{
		blocks:  blocks,
		oracle:  o,
		decoded: decoded,
		prices:  prices,
		logger:  logger,
		pool:    pool,
	}
}

// Run prices every decoded row that has no price point yet and upserts the
// price ledger. A row that cannot be priced is skipped and reported; it
// stays pending for the next run.
func (p *Pricer) Run(ctx context.Context) (Report, error) {
	decoded, err := p.decoded.LoadDecoded(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load decoded ledger: %w", err)
	}
	priced, err := p.prices.LoadPrices(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load price ledger: %w", err)
	}

	var report Report
	pending := make([]model.DecodedTransaction, 0, len(decoded))
	for hash, row := range decoded {
		if _, ok := priced[hash]; ok {
			report.AlreadyDone++
			continue
		}
		pending = append(pending, row)
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].BlockTime != pending[j].BlockTime {
			return pending[i].BlockTime < pending[j].BlockTime
		}
		return pending[i].TxHash < pending[j].TxHash
	})

	p.logger.Info("price start",
		zap.Int("decoded", len(decoded)),
		zap.Int("already_done", report.AlreadyDone),
		zap.Int("pending", len(pending)))

	var pool model.Pool
	if len(pending) > 0 {
		// One pool serves the whole run; failing to resolve it fails the run.
		pool, err = p.oracle.ResolvePool(ctx, p.pool)
		if err != nil {
			return report, fmt.Errorf("resolve pool %s: %w", p.pool.Hex(), err)
		}
	}

	for _, row := range pending {
		point, err := p.priceOne(ctx, pool, row)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			report.FailedHashes = append(report.FailedHashes, row.TxHash)
			p.logger.Warn("price failed", zap.String("tx", row.TxHash), zap.Error(err))
			continue
		}
		priced[strings.ToLower(row.TxHash)] = point
		report.Succeeded++
	}

	points := make([]model.PricePoint, 0, len(priced))
	for _, point := range priced {
		points = append(points, point)
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].BlockTime != points[j].BlockTime {
			return points[i].BlockTime > points[j].BlockTime
		}
		return points[i].TxHash > points[j].TxHash
	})

	if err := p.prices.SavePrices(ctx, points); err != nil {
		return report, fmt.Errorf("save price ledger: %w", err)
	}

	p.logger.Info("price complete",
		zap.Int("already_done", report.AlreadyDone),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("total", len(points)))
	return report, nil
}

func (p *Pricer) priceOne(ctx context.Context, pool model.Pool, row model.DecodedTransaction) (model.PricePoint, error) {
	if row.BlockTime <= 0 {
		return model.PricePoint{}, fmt.Errorf("row has no timestamp")
	}
	block, err := p.blocks.Resolve(ctx, row.BlockTime)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("resolve block for ts %d: %w", row.BlockTime, err)
	}
	ratio01, ratio10, err := p.oracle.PriceAt(ctx, pool, block)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("price at block %d: %w", block, err)
	}
	return model.PricePoint{
		DecodedTransaction: row,
		BlockNumber:        block,
		Ratio0Per1:         ratio01.StringFixed(ratioDigits),
		Ratio1Per0:         ratio10.StringFixed(ratioDigits),
	}, nil
}
