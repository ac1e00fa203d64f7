package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"walletledger/internal/chain"
	"walletledger/internal/config"
	"walletledger/internal/decode"
	"walletledger/internal/pipeline"
	"walletledger/internal/storage"
	"walletledger/internal/storage/postgres"
	"walletledger/internal/token"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Wallet) {
		return fmt.Errorf("wallet address is required")
	}
	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, cfg.MaxRetries, cfg.RetryBackoff)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	if cfg.ChainID != 0 {
		chainID, err := chainClient.GetChainID(ctx)
		if err != nil {
			return fmt.Errorf("fetch chain id: %w", err)
		}
		if chainID.Uint64() != cfg.ChainID {
			return fmt.Errorf("rpc chain id %d does not match --chain-id %d", chainID.Uint64(), cfg.ChainID)
		}
	}

	store, closeStore, err := openDecodedStore(ctx, cfg.PgDSN, cfg.Out)
	if err != nil {
		return err
	}
	defer closeStore()

	rawTxs, err := storage.LoadRawTransactions(cfg.In)
	if err != nil {
		return err
	}

	tokens := token.NewResolver(chainClient, token.NewMetaCache(), logger)
	engine := decode.NewEngine(chainClient, logger)
	driver := pipeline.NewDriver(chainClient, engine, tokens, store,
		common.HexToAddress(cfg.Wallet), loc, cfg.Workers, logger)

	logger.Info("decode run",
		zap.String("rpc", cfg.RPCURL),
		zap.String("wallet", cfg.Wallet),
		zap.String("in", cfg.In),
		zap.Int("raw", len(rawTxs)),
		zap.Int("workers", cfg.Workers),
	)

	report, err := driver.Run(ctx, rawTxs)
	logReport(logger, report)
	return err
}

func openDecodedStore(ctx context.Context, dsn, outPath string) (storage.DecodedStore, func(), error) {
	if dsn != "" {
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, store.Close, nil
	}
	return storage.NewJsonlLedger(outPath, ""), func() {}, nil
}

func logReport(logger *zap.Logger, report pipeline.Report) {
	fields := []zap.Field{
		zap.Int("already_done", report.AlreadyDone),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	}
	if len(report.FailedHashes) > 0 {
		fields = append(fields, zap.Strings("failed_hashes", report.FailedHashes))
	}
	logger.Info("run report", fields...)
}
