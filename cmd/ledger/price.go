package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"walletledger/internal/blocktime"
	"walletledger/internal/chain"
	"walletledger/internal/config"
	"walletledger/internal/oracle"
	"walletledger/internal/pipeline"
	"walletledger/internal/storage"
	"walletledger/internal/storage/postgres"
	"walletledger/internal/token"
)

func runPrice(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPrice(cfgFile, cmd.Flags())
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
	if !common.IsHexAddress(cfg.Pool) {
		return fmt.Errorf("pool address is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, cfg.MaxRetries, cfg.RetryBackoff)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	decodedStore, priceStore, closeStore, err := openPriceStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens := token.NewResolver(chainClient, token.NewMetaCache(), logger)
	priceOracle := oracle.New(chainClient, tokens, logger)
	blocks := blocktime.NewResolver(chainClient, cfg.Bucket, cfg.ProbeLimit, logger)

	pricer := pipeline.NewPricer(blocks, priceOracle, decodedStore, priceStore,
		common.HexToAddress(cfg.Pool), logger)

	logger.Info("price run",
		zap.String("rpc", cfg.RPCURL),
		zap.String("pool", cfg.Pool),
		zap.Int64("bucket", cfg.Bucket),
		zap.Int("probe_limit", cfg.ProbeLimit),
	)

	report, err := pricer.Run(ctx)
	logReport(logger, report)
	return err
}

func openPriceStores(ctx context.Context, cfg config.PriceConfig) (storage.DecodedStore, storage.PriceStore, func(), error) {
	if cfg.PgDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, store, store.Close, nil
	}
	ledger := storage.NewJsonlLedger(cfg.In, cfg.Out)
	return ledger, ledger, func() {}, nil
}
