// Package indexer fetches raw logs for the read model contracts in block
// ranges and appends them to a log sink.
package indexer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"positionScope/internal/model"
	"positionScope/internal/storage"
)

// LogSource is the chain surface the runner reads from.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// LogFilter is one eth_getLogs query. Empty Addresses matches every emitter,
// which is how pool logs are fetched since pools are created at runtime.
type LogFilter struct {
	Name      string
	Addresses []common.Address
	Topic0    []common.Hash
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Filters           []LogFilter
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	TimestampWorkers  int
}

// Runner streams logs from the chain and writes them to a sink.
type Runner struct {
	cfg        RunConfig
	chain      LogSource
	sink       storage.LogSink
	logger     *zap.Logger
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, source LogSource, sink storage.LogSink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TimestampWorkers <= 0 {
		cfg.TimestampWorkers = 1
	}
	return &Runner{
		cfg:        cfg,
		chain:      source,
		sink:       sink,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the indexing loop. Each range is written to the sink in
// (block, log index) order before its checkpoint is saved.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.sink == nil {
		return fmt.Errorf("log sink is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if err := validateFilters(r.cfg.Filters); err != nil {
		return err
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return err
	}
	if ok {
		if cp.ChainID != 0 && cp.ChainID != chainIDValue {
			return fmt.Errorf("checkpoint is for chain %d, rpc serves chain %d", cp.ChainID, chainIDValue)
		}
		if cp.LastProcessedBlock >= from {
			from = cp.LastProcessedBlock + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
		}
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}

		records, err := r.fetchRange(ctx, chainIDValue, blockRange)
		if err != nil {
			return err
		}

		if err := r.sink.PutLogBatch(ctx, records); err != nil {
			return fmt.Errorf("store logs: %w", err)
		}
		if err := r.checkpoint.Save(chainIDValue, blockRange.To); err != nil {
			return err
		}
		if pruner, ok := r.chain.(interface{ PruneTimestamps(uint64) }); ok {
			pruner.PruneTimestamps(blockRange.To + 1)
		}

		r.logger.Info("batch complete",
			zap.Int("logs", len(records)),
			zap.Uint64("blocks", blockRange.Blocks()),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}

	return nil
}

func validateFilters(filters []LogFilter) error {
	if len(filters) == 0 {
		return fmt.Errorf("at least one log filter is required")
	}
	for i, filter := range filters {
		if len(filter.Addresses) == 0 && len(filter.Topic0) == 0 {
			return fmt.Errorf("filter %d (%s): address or topic0 is required", i, filter.Name)
		}
	}
	return nil
}

// fetchRange runs every filter over blockRange and returns the merged,
// deduplicated and ordered records.
func (r *Runner) fetchRange(ctx context.Context, chainID uint64, blockRange BlockRange) ([]model.LogRecord, error) {
	var merged []types.Log
	for _, filter := range r.cfg.Filters {
		r.logger.Debug("fetch logs",
			zap.String("filter", filter.Name),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
		logs, err := r.filterLogsWithRetry(ctx, filter, blockRange.From, blockRange.To)
		if err != nil {
			return nil, fmt.Errorf("filter logs %s: %w", filter.Name, err)
		}
		merged = append(merged, logs...)
	}

	logs := dedupeLogs(merged)
	sortLogs(logs)

	timestamps, err := r.blockTimestamps(ctx, logs)
	if err != nil {
		return nil, err
	}

	ingestedAt := time.Now().UTC()
	records := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		records = append(records, buildLogRecord(chainID, log, timestamps[log.BlockNumber], ingestedAt))
	}
	return records, nil
}

// blockTimestamps resolves the timestamp of every distinct block in logs
// with at most TimestampWorkers concurrent requests.
func (r *Runner) blockTimestamps(ctx context.Context, logs []types.Log) (map[uint64]uint64, error) {
	blocks := make([]uint64, 0)
	seen := make(map[uint64]struct{})
	for _, log := range logs {
		if _, ok := seen[log.BlockNumber]; ok {
			continue
		}
		seen[log.BlockNumber] = struct{}{}
		blocks = append(blocks, log.BlockNumber)
	}

	values := make([]uint64, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.TimestampWorkers)
	for i, number := range blocks {
		i, number := i, number
		g.Go(func() error {
			ts, err := r.blockTimestampWithRetry(gctx, number)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", number, err)
			}
			values[i] = ts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[uint64]uint64, len(blocks))
	for i, number := range blocks {
		out[number] = values[i]
	}
	return out, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, filter LogFilter, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, filter.Addresses, filter.Topic0)
		if err != nil {
			r.logger.Warn("filter logs failed",
				zap.Error(err),
				zap.String("filter", filter.Name),
				zap.Uint64("from", fromBlock),
				zap.Uint64("to", toBlock),
			)
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}
