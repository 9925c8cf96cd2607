// Package process replays decoded typed events into the entity read model.
package process

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"positionScope/internal/metrics"
	"positionScope/internal/model"
	"positionScope/internal/pool"
	"positionScope/internal/position"
	"positionScope/internal/store"
)

// ErrOutOfOrder is returned when the input goes backwards in chain order.
var ErrOutOfOrder = errors.New("typed events out of order")

// Config controls processing behavior.
type Config struct {
	// BatchSize is the number of applied events between checkpoints.
	BatchSize int
	// FromBlock skips events below this block when no cursor is stored.
	FromBlock uint64
	// Store stages the writes of the handlers and commits them with the cursor.
	// The handlers must write through the same Store.
	Store *store.BatchStore
}

// Stats summarizes one Run.
type Stats struct {
	Total   int
	Applied int
	Dropped int
	Skipped int
	Failed  int
}

// Processor applies typed events one at a time, in chain order.
type Processor struct {
	cfg       Config
	pools     *pool.Handler
	positions *position.Manager
	metrics   *metrics.Metrics
	logger    *zap.Logger

	resume    store.Cursor
	hasResume bool
	cursor    store.Cursor
	hasCursor bool
	pending   int
}

func NewProcessor(cfg Config, pools *pool.Handler, positions *position.Manager, m *metrics.Metrics, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Processor{
		cfg:       cfg,
		pools:     pools,
		positions: positions,
		metrics:   m,
		logger:    logger,
	}
}

// Run processes a typed events JSONL file. Events at or before the stored cursor
// are skipped. Entity writes and the cursor are committed together every BatchSize
// events, so a restart resumes exactly after the last commit. A handler error stops
// the run after committing the events applied before it.
func (p *Processor) Run(ctx context.Context, inputPath string) (Stats, error) {
	var stats Stats
	if p.pools == nil || p.positions == nil {
		return stats, fmt.Errorf("handlers are nil")
	}
	if p.cfg.Store == nil {
		return stats, fmt.Errorf("entity store is nil")
	}
	if err := p.loadCursor(ctx); err != nil {
		return stats, err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return stats, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, p.abort(ctx, err)
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.Failed++
			p.logger.Warn("decode typed event", zap.Error(err))
			continue
		}

		if p.skip(record) {
			stats.Skipped++
			continue
		}
		if p.hasCursor && !before(p.cursor, record) {
			return stats, p.abort(ctx, fmt.Errorf("%w: block %d log %d after block %d log %d",
				ErrOutOfOrder, record.BlockNumber, record.LogIndex, p.cursor.BlockNumber, p.cursor.LogIndex))
		}

		start := time.Now()
		outcome, err := p.Apply(ctx, record)
		if err != nil {
			p.cfg.Store.DiscardEvent()
		} else {
			p.cfg.Store.KeepEvent()
		}
		var payloadErr *PayloadError
		switch {
		case errors.As(err, &payloadErr):
			stats.Failed++
			p.metrics.ObserveEvent(record.EventName, metrics.OutcomeFailed, time.Since(start))
			p.logger.Warn("invalid typed event payload",
				zap.Error(err),
				zap.Uint64("block", record.BlockNumber),
				zap.Uint64("log_index", record.LogIndex),
			)
			continue
		case err != nil:
			p.metrics.ObserveEvent(record.EventName, metrics.OutcomeFailed, time.Since(start))
			return stats, p.abort(ctx, fmt.Errorf("apply %s at block %d log %d: %w",
				record.EventName, record.BlockNumber, record.LogIndex, err))
		}
		p.metrics.ObserveEvent(record.EventName, outcome, time.Since(start))

		switch outcome {
		case metrics.OutcomeApplied:
			stats.Applied++
		case metrics.OutcomeSkipped:
			stats.Skipped++
		default:
			stats.Dropped++
		}

		p.cursor = store.Cursor{BlockNumber: record.BlockNumber, LogIndex: record.LogIndex}
		p.hasCursor = true
		p.pending++
		p.metrics.ObserveBlock(record.BlockNumber)

		if p.pending >= p.cfg.BatchSize {
			if err := p.checkpoint(ctx); err != nil {
				return stats, err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	if err := p.checkpoint(ctx); err != nil {
		return stats, err
	}

	p.logger.Info("process complete",
		zap.Int("total", stats.Total),
		zap.Int("applied", stats.Applied),
		zap.Int("dropped", stats.Dropped),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Uint64("last_block", p.cursor.BlockNumber),
	)
	return stats, nil
}

// Apply dispatches one typed event to its handler and returns the metrics outcome.
// Conversion failures are returned as *PayloadError.
func (p *Processor) Apply(ctx context.Context, record model.TypedEventRecord) (string, error) {
	switch record.EventName {
	case model.EventFeeAmountEnabled:
		ev, err := feeAmountEnabled(record)
		if err != nil {
			return "", err
		}
		return metrics.OutcomeApplied, p.pools.HandleFeeAmountEnabled(ctx, ev)
	case model.EventPoolCreated:
		ev, err := poolCreated(record)
		if err != nil {
			return "", err
		}
		return metrics.OutcomeApplied, p.pools.HandlePoolCreated(ctx, ev)
	case model.EventInitialize:
		ev, err := initialize(record)
		if err != nil {
			return "", err
		}
		return p.poolOutcome(record, p.pools.HandleInitialize(ctx, ev))
	case model.EventMint:
		ev, err := mint(record)
		if err != nil {
			return "", err
		}
		return p.poolOutcome(record, p.pools.HandleMint(ctx, ev))
	case model.EventBurn:
		ev, err := burn(record)
		if err != nil {
			return "", err
		}
		return p.poolOutcome(record, p.pools.HandleBurn(ctx, ev))
	case model.EventSwap:
		ev, err := swap(record)
		if err != nil {
			return "", err
		}
		return p.poolOutcome(record, p.pools.HandleSwap(ctx, ev))
	case model.EventCollect:
		ev, err := poolCollect(record)
		if err != nil {
			return "", err
		}
		return p.poolOutcome(record, p.pools.HandleCollect(ctx, ev))
	case model.EventIncreaseLiquidity:
		ev, err := liquidityChange(record)
		if err != nil {
			return "", err
		}
		return positionOutcome(p.positions.HandleIncreaseLiquidity(ctx, ev))
	case model.EventDecreaseLiquidity:
		ev, err := liquidityChange(record)
		if err != nil {
			return "", err
		}
		return positionOutcome(p.positions.HandleDecreaseLiquidity(ctx, ev))
	case model.EventPositionCollect:
		ev, err := positionCollect(record)
		if err != nil {
			return "", err
		}
		return positionOutcome(p.positions.HandleCollect(ctx, ev))
	case model.EventTransfer:
		ev, err := transfer(record)
		if err != nil {
			return "", err
		}
		return positionOutcome(p.positions.HandleTransfer(ctx, ev))
	default:
		p.logger.Debug("unhandled event", zap.String("event", record.EventName), zap.String("address", record.Address))
		return metrics.OutcomeSkipped, nil
	}
}

// poolOutcome drops pool events of pools outside the read model.
func (p *Processor) poolOutcome(record model.TypedEventRecord, err error) (string, error) {
	if errors.Is(err, pool.ErrUnknownPool) {
		p.logger.Debug("event for unknown pool",
			zap.String("event", record.EventName),
			zap.String("address", record.Address),
			zap.Uint64("block", record.BlockNumber),
		)
		return metrics.OutcomeDropped, nil
	}
	if err != nil {
		return "", err
	}
	return metrics.OutcomeApplied, nil
}

func positionOutcome(outcome position.Outcome, err error) (string, error) {
	if err != nil {
		return "", err
	}
	switch outcome {
	case position.OutcomeApplied:
		return metrics.OutcomeApplied, nil
	case position.OutcomeDenied:
		return metrics.OutcomeDenied, nil
	case position.OutcomeDuplicate:
		return metrics.OutcomeDuplicate, nil
	default:
		return metrics.OutcomeDropped, nil
	}
}

func (p *Processor) skip(record model.TypedEventRecord) bool {
	if record.BlockNumber < p.cfg.FromBlock {
		return true
	}
	return p.hasResume && !before(p.resume, record)
}

// before reports whether the cursor strictly precedes the record.
func before(c store.Cursor, record model.TypedEventRecord) bool {
	if record.BlockNumber == c.BlockNumber && record.LogIndex == c.LogIndex {
		return false
	}
	return !record.Before(c.BlockNumber, c.LogIndex)
}

func (p *Processor) loadCursor(ctx context.Context) error {
	cursor, ok, err := p.cfg.Store.LoadCursor(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if ok {
		p.resume = cursor
		p.hasResume = true
		p.cursor = cursor
		p.logger.Info("resume from cursor",
			zap.Uint64("block", cursor.BlockNumber),
			zap.Uint64("log_index", cursor.LogIndex),
		)
	}
	return nil
}

// checkpoint commits the staged writes of the applied events with the cursor.
func (p *Processor) checkpoint(ctx context.Context) error {
	if p.pending == 0 {
		return nil
	}
	if err := p.cfg.Store.Commit(ctx, p.cursor); err != nil {
		return fmt.Errorf("commit at block %d log %d: %w", p.cursor.BlockNumber, p.cursor.LogIndex, err)
	}
	exported := 0
	if counter, ok := p.cfg.Store.Committer().(interface{ Exported() int }); ok {
		exported = counter.Exported()
	}
	p.metrics.ObserveFlush(exported, time.Now())
	p.pending = 0
	return nil
}

// abort checkpoints what was applied before cause and returns cause.
func (p *Processor) abort(ctx context.Context, cause error) error {
	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	if err := p.checkpoint(saveCtx); err != nil {
		p.logger.Error("checkpoint after failure", zap.Error(err))
	}
	return cause
}
