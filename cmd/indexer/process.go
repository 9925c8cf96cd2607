package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"positionScope/internal/chain"
	"positionScope/internal/config"
	"positionScope/internal/dex"
	"positionScope/internal/metrics"
	"positionScope/internal/pool"
	"positionScope/internal/position"
	"positionScope/internal/pricing"
	"positionScope/internal/process"
	"positionScope/internal/storage/clickhouse"
	"positionScope/internal/storage/postgres"
	"positionScope/internal/store"
	"positionScope/internal/tick"
)

func runProcess(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadProcess(cfgFile, cmd.Flags())
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
	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	if err := verifyContracts(ctx, chainClient, map[string]common.Address{
		"position manager": cfg.PositionManager,
		"factory":          cfg.Factory,
	}); err != nil {
		return err
	}

	entities, closeStores, err := openEntityStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	m := metrics.New("")
	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, m, logger)
		defer shutdown()
	}

	managerClient, err := dex.NewPositionManagerClient(chainClient, cfg.PositionManager, logger)
	if err != nil {
		return err
	}
	factoryClient, err := dex.NewFactoryClient(chainClient, cfg.Factory, logger)
	if err != nil {
		return err
	}

	oracle := pricing.NewOracle(cfg.Pricing, entities)
	spacing := tick.NewSpacingTable(entities)
	pools := pool.NewHandler(entities, oracle, spacing, dex.NewTokenMetaClient(chainClient, logger), logger)
	positions := position.NewManager(position.Config{Denylist: cfg.Denylist}, entities, managerClient, factoryClient, logger)

	processor := process.NewProcessor(process.Config{
		BatchSize: cfg.BatchSize,
		FromBlock: cfg.FromBlock,
		Store:     entities,
	}, pools, positions, m, logger)

	logger.Info("process start",
		zap.String("in", cfg.In),
		zap.String("rpc", cfg.RPCURL),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.Bool("clickhouse", cfg.ClickHouseDSN != ""),
		zap.String("position_manager", cfg.PositionManager.Hex()),
		zap.String("factory", cfg.Factory.Hex()),
		zap.String("numeraire", cfg.Pricing.Numeraire.Hex()),
		zap.Int("whitelist", len(cfg.Pricing.Whitelist)),
		zap.Int("stable_pools", len(cfg.Pricing.StablePools)),
		zap.Int("denylist", cfg.Denylist.Len()),
		zap.Int("batch_size", cfg.BatchSize),
	)

	_, err = processor.Run(ctx, cfg.In)
	return err
}

// openEntityStore returns the write-behind store the handlers share. Batches are
// committed with the cursor to Postgres, or to process memory when no DSN is set,
// and mirrored to ClickHouse when configured.
func openEntityStore(ctx context.Context, cfg config.ProcessConfig, logger *zap.Logger) (*store.BatchStore, func(), error) {
	var (
		base      store.Source
		committer store.Committer
		closers   []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pg.Close)
		checkpoints, err := postgres.NewCheckpoints(pg, cfg.StateName)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		base, committer = pg, checkpoints
	} else {
		logger.Warn("no pg dsn, entities and cursor are kept in memory for this run only")
		mem := store.NewMemoryStore()
		base, committer = mem, mem
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := clickhouse.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		committer = store.NewMirror(committer, clickhouse.NewSnapshotSink(conn))
	}

	return store.NewBatchStore(base, committer), closeAll, nil
}

// verifyContracts fails fast when a configured address holds no code, which
// usually means the RPC serves a different chain.
func verifyContracts(ctx context.Context, client *chain.Client, contracts map[string]common.Address) error {
	for name, address := range contracts {
		ok, err := client.HasCode(ctx, address)
		if err != nil {
			return fmt.Errorf("verify %s: %w", name, err)
		}
		if !ok {
			return fmt.Errorf("%s %s has no code on this chain", name, address.Hex())
		}
	}
	return nil
}

// serveMetrics serves /metrics on addr and returns a shutdown func.
func serveMetrics(addr string, m *metrics.Metrics, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
