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
	"go.uber.org/zap/zapcore"

	"positionScope/internal/chain"
	"positionScope/internal/config"
	"positionScope/internal/dex"
	"positionScope/internal/indexer"
	"positionScope/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Concentrated-liquidity position indexer for Base",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch raw logs of the position manager, factory and pools",
		RunE:  runIndexer,
	}

	runCmd.Flags().String("rpc", "", "Base RPC URL")
	runCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	runCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	runCmd.Flags().StringSlice("address", nil, "contract addresses (comma-separated), replaces the default filters")
	runCmd.Flags().StringSlice("topic0", nil, "topic0 hashes or event signatures (comma-separated), replaces the default filters")
	runCmd.Flags().String("position-manager", config.DefaultPositionManager, "NonfungiblePositionManager address")
	runCmd.Flags().String("factory", config.DefaultFactory, "pool factory address")
	runCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	runCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Int("timestamp-workers", 8, "concurrent block timestamp requests")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("position-manager", config.DefaultPositionManager, "NonfungiblePositionManager address")
	decodeCmd.Flags().String("factory", config.DefaultFactory, "pool factory address")
	decodeCmd.Flags().String("topic0-map", "", "extra pool topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Apply typed events to the position read model",
		RunE:  runProcess,
	}

	processCmd.Flags().String("in", "./data/typed_events.jsonl", "input typed events JSONL")
	processCmd.Flags().String("rpc", "", "Base archive RPC URL for contract reads")
	processCmd.Flags().String("pg-dsn", "", "Postgres DSN, empty keeps entities in memory")
	processCmd.Flags().String("clickhouse-dsn", "", "ClickHouse DSN for position snapshot export")
	processCmd.Flags().String("position-manager", config.DefaultPositionManager, "NonfungiblePositionManager address")
	processCmd.Flags().String("factory", config.DefaultFactory, "pool factory address")
	processCmd.Flags().String("numeraire", config.DefaultNumeraire, "numeraire token address")
	processCmd.Flags().StringSlice("whitelist", config.DefaultWhitelist, "tokens that may price other tokens")
	processCmd.Flags().StringSlice("stable-pools", config.DefaultStablePools, "numeraire/USD pools as pool@fromBlock")
	processCmd.Flags().String("minimum-numeraire-locked", "0.01", "minimum numeraire liquidity for a pricing pool")
	processCmd.Flags().StringSlice("denylist", nil, "position events to ignore as EventName@block")
	processCmd.Flags().String("state-name", "process", "cursor name in indexer_state, committed with each entity batch")
	processCmd.Flags().Uint64("from", 0, "skip events below this block when no cursor is stored")
	processCmd.Flags().Int("batch-size", 1000, "events between checkpoints")
	processCmd.Flags().String("metrics-addr", "", "listen address for /metrics, empty disables")
	processCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(processCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
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

	filters, err := logFilters(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	sink, err := storage.NewJSONLLogSink(cfg.Out)
	if err != nil {
		return err
	}
	defer sink.Close()

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Filters:           filters,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		TimestampWorkers:  cfg.TimestampWorkers,
	}, chainClient, sink, logger)

	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("filters", len(filters)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}

// logFilters returns the custom address/topic0 filter when one is configured,
// and otherwise one filter per read model source: the position manager, the
// factory and every pool.
func logFilters(cfg config.Config) ([]indexer.LogFilter, error) {
	addresses, err := indexer.ParseAddresses(cfg.Addresses)
	if err != nil {
		return nil, err
	}
	topic0, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return nil, err
	}
	if len(addresses) > 0 || len(topic0) > 0 {
		return []indexer.LogFilter{{Name: "custom", Addresses: addresses, Topic0: topic0}}, nil
	}

	managerDecoder, err := dex.NewPositionManagerDecoder()
	if err != nil {
		return nil, err
	}
	factoryDecoder, err := dex.NewFactoryDecoder()
	if err != nil {
		return nil, err
	}
	poolDecoder, err := dex.NewV3PoolDecoder(dex.DecoderConfig{})
	if err != nil {
		return nil, err
	}

	return []indexer.LogFilter{
		{Name: "position-manager", Addresses: []common.Address{cfg.PositionManager}, Topic0: managerDecoder.Topics()},
		{Name: "factory", Addresses: []common.Address{cfg.Factory}, Topic0: factoryDecoder.Topics()},
		{Name: "pools", Topic0: poolDecoder.Topics()},
	}, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
