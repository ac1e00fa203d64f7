package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"walletledger/internal/decode"
	"walletledger/internal/model"
	"walletledger/internal/storage"
	"walletledger/internal/token"
)

// Report summarizes one run. Failing hashes stay individually identifiable
// so a rerun can pick them up; they are never silently dropped.
type Report struct {
	AlreadyDone  int
	Succeeded    int
	Failed       int
	FailedHashes []string
}

// ChainSource is the chain surface the decode driver consumes directly.
type ChainSource interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Driver orchestrates the decode stage: receipt fetch, delta decoding,
// classification, and row formatting, with a bounded worker pool over the
// blocking chain client. Reruns are incremental: hashes already in the
// output ledger are skipped before any work happens.
type Driver struct {
	chain   ChainSource
	engine  *decode.Engine
	tokens  *token.Resolver
	store   storage.DecodedStore
	logger  *zap.Logger
	wallet  common.Address
	loc     *time.Location
	workers int
}

func NewDriver(chain ChainSource, engine *decode.Engine, tokens *token.Resolver, store storage.DecodedStore, wallet common.Address, loc *time.Location, workers int, logger *zap.Logger) *Driver {
	if workers <= 0 {
		workers = 4
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		chain:   chain,
		engine:  engine,
		tokens:  tokens,
		store:   store,
		logger:  logger,
		wallet:  wallet,
		loc:     loc,
		workers: workers,
	}
}

// Run decodes every pending raw transaction and upserts the ledger.
// One transaction failing never aborts the batch; its hash is recorded for
// a later rerun.
func (d *Driver) Run(ctx context.Context, rawTxs []model.RawTransaction) (Report, error) {
	existing, err := d.store.LoadDecoded(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load decoded ledger: %w", err)
	}

	var report Report
	seen := make(map[string]struct{})
	pending := make([]model.RawTransaction, 0, len(rawTxs))
	for _, tx := range rawTxs {
		hash := strings.ToLower(strings.TrimSpace(tx.Hash))
		if hash == "" {
			continue
		}
		if _, ok := existing[hash]; ok {
			report.AlreadyDone++
			continue
		}
		if _, ok := seen[hash]; ok {
			continue
		}
		seen[hash] = struct{}{}
		pending = append(pending, tx)
	}

	d.logger.Info("decode start",
		zap.Int("raw", len(rawTxs)),
		zap.Int("already_done", report.AlreadyDone),
		zap.Int("pending", len(pending)))

	var mu sync.Mutex
	group := new(errgroup.Group)
	group.SetLimit(d.workers)

	for _, tx := range pending {
		tx := tx
		group.Go(func() error {
			row, err := d.decodeOne(ctx, tx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				report.FailedHashes = append(report.FailedHashes, tx.Hash)
				d.logger.Warn("decode failed", zap.String("tx", tx.Hash), zap.Error(err))
				return nil
			}
			existing[strings.ToLower(row.TxHash)] = row
			report.Succeeded++
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return report, err
	}

	rows := make([]model.DecodedTransaction, 0, len(existing))
	for _, row := range existing {
		rows = append(rows, row)
	}
	sortRowsNewestFirst(rows)

	if err := d.store.SaveDecoded(ctx, rows); err != nil {
		return report, fmt.Errorf("save decoded ledger: %w", err)
	}

	d.logger.Info("decode complete",
		zap.Int("already_done", report.AlreadyDone),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("total", len(rows)))
	return report, nil
}

func (d *Driver) decodeOne(ctx context.Context, tx model.RawTransaction) (model.DecodedTransaction, error) {
	receipt, err := d.chain.TransactionReceipt(ctx, common.HexToHash(tx.Hash))
	if err != nil {
		return model.DecodedTransaction{}, fmt.Errorf("fetch receipt: %w", err)
	}

	blockTime := tx.UnixTime()
	if blockTime == 0 && tx.BlockNum() > 0 {
		if ts, err := d.chain.BlockTimestamp(ctx, tx.BlockNum()); err == nil {
			blockTime = int64(ts)
		}
	}

	gasStr := decode.GasETH(decode.GasCost(tx, receipt))
	row := model.DecodedTransaction{
		TxHash:      tx.Hash,
		TxTimestamp: decode.FormatLocalTime(blockTime, d.loc),
		BlockTime:   blockTime,
		FromAddress: checksumOrEmpty(tx.From),
		ToAddress:   checksumOrEmpty(tx.To),
		TotalGasETH: gasStr,
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		row.Type = model.TypeFailed
		return row, nil
	}

	deltas, moves, err := d.engine.Decode(ctx, d.wallet, tx, receipt)
	if err != nil {
		return model.DecodedTransaction{}, fmt.Errorf("decode deltas: %w", err)
	}

	row.Type = decode.Classify(receipt, deltas)
	row.AmountSent, row.AmountReceived = decode.BuildSentReceived(ctx, d.tokens, deltas)
	row.NftTransfer = decode.BuildNftField(ctx, d.tokens, moves)
	return row, nil
}

func sortRowsNewestFirst(rows []model.DecodedTransaction) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].BlockTime != rows[j].BlockTime {
			return rows[i].BlockTime > rows[j].BlockTime
		}
		return rows[i].TxHash > rows[j].TxHash
	})
}

func checksumOrEmpty(addr string) string {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return ""
	}
	return common.HexToAddress(addr).Hex()
}
