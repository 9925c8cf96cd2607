// Package position maintains Position entities from position-manager events.
//
// A position is materialized the first time an event references its token id,
// from a positions() call and a factory getPool() call made at the event block.
// Later events mutate it in place and each applied event appends one immutable
// PositionSnapshot keyed by (transaction hash, log index).
package position

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"positionScope/internal/fixedpoint"
	"positionScope/internal/model"
	"positionScope/internal/store"
)

// Reader reads position metadata from the position manager contract.
type Reader interface {
	Position(ctx context.Context, tokenID *big.Int, blockNumber uint64) (Result[Metadata], error)
}

// PoolLocator resolves a pool address through the factory.
type PoolLocator interface {
	Pool(ctx context.Context, token0, token1 common.Address, fee uint32, blockNumber uint64) (Result[common.Address], error)
}

type Config struct {
	Denylist Denylist
}

type Manager struct {
	cfg       Config
	store     store.Store
	positions Reader
	pools     PoolLocator
	logger    *zap.Logger
}

func NewManager(cfg Config, st store.Store, positions Reader, pools PoolLocator, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:       cfg,
		store:     st,
		positions: positions,
		pools:     pools,
		logger:    logger,
	}
}

// mutation applies an event to a position. token0 and token1 are nil for
// events that carry no token amounts.
type mutation func(pos *model.Position, token0, token1 *model.Token)

func (m *Manager) HandleIncreaseLiquidity(ctx context.Context, ev LiquidityChange) (Outcome, error) {
	return m.apply(ctx, KindIncreaseLiquidity, ev.EventMeta, ev.TokenID, true, func(pos *model.Position, token0, token1 *model.Token) {
		pos.Liquidity = new(big.Int).Add(pos.Liquidity, ev.Liquidity)
		pos.DepositedToken0 = pos.DepositedToken0.Add(fixedpoint.ScaleByDecimals(ev.Amount0, token0.Decimals))
		pos.DepositedToken1 = pos.DepositedToken1.Add(fixedpoint.ScaleByDecimals(ev.Amount1, token1.Decimals))
	})
}

func (m *Manager) HandleDecreaseLiquidity(ctx context.Context, ev LiquidityChange) (Outcome, error) {
	return m.apply(ctx, KindDecreaseLiquidity, ev.EventMeta, ev.TokenID, true, func(pos *model.Position, token0, token1 *model.Token) {
		pos.Liquidity = new(big.Int).Sub(pos.Liquidity, ev.Liquidity)
		pos.WithdrawnToken0 = pos.WithdrawnToken0.Add(fixedpoint.ScaleByDecimals(ev.Amount0, token0.Decimals))
		pos.WithdrawnToken1 = pos.WithdrawnToken1.Add(fixedpoint.ScaleByDecimals(ev.Amount1, token1.Decimals))
	})
}

// HandleCollect adds the collected amounts and re-derives collected fees as
// collected minus withdrawn.
func (m *Manager) HandleCollect(ctx context.Context, ev Collect) (Outcome, error) {
	return m.apply(ctx, KindCollect, ev.EventMeta, ev.TokenID, true, func(pos *model.Position, token0, token1 *model.Token) {
		pos.CollectedToken0 = pos.CollectedToken0.Add(fixedpoint.ScaleByDecimals(ev.Amount0, token0.Decimals))
		pos.CollectedToken1 = pos.CollectedToken1.Add(fixedpoint.ScaleByDecimals(ev.Amount1, token1.Decimals))
		pos.CollectedFeesToken0 = pos.CollectedToken0.Sub(pos.WithdrawnToken0)
		pos.CollectedFeesToken1 = pos.CollectedToken1.Sub(pos.WithdrawnToken1)
	})
}

// HandleTransfer records the new owner. Fee growth is not refreshed.
func (m *Manager) HandleTransfer(ctx context.Context, ev Transfer) (Outcome, error) {
	return m.apply(ctx, KindTransfer, ev.EventMeta, ev.TokenID, false, func(pos *model.Position, _, _ *model.Token) {
		pos.Owner = ev.To
	})
}

func (m *Manager) apply(ctx context.Context, kind EventKind, meta EventMeta, tokenID *big.Int, amounts bool, mutate mutation) (Outcome, error) {
	if tokenID == nil {
		return "", fmt.Errorf("%s at block %d: missing token id", kind, meta.BlockNumber)
	}
	positionID := model.PositionID(tokenID)
	logger := m.logger.With(
		zap.String("event", string(kind)),
		zap.String("position", positionID),
		zap.Uint64("block", meta.BlockNumber),
	)

	if m.cfg.Denylist.Contains(kind, meta.BlockNumber) {
		logger.Debug("event denylisted")
		return OutcomeDenied, nil
	}

	snapshotID := model.SnapshotID(meta.TxHash, meta.LogIndex)
	_, seen, err := m.store.PositionSnapshot(ctx, snapshotID)
	if err != nil {
		return "", fmt.Errorf("load snapshot %s: %w", snapshotID, err)
	}
	if seen {
		logger.Debug("event already applied", zap.String("snapshot", snapshotID))
		return OutcomeDuplicate, nil
	}

	pos, created, err := m.loadOrCreate(ctx, positionID, tokenID, meta, logger)
	if err != nil {
		return "", err
	}
	if pos == nil {
		return OutcomeReverted, nil
	}

	var token0, token1 *model.Token
	if amounts {
		token0, err = store.MustToken(ctx, m.store, pos.Token0)
		if err != nil {
			return "", fmt.Errorf("position %s: %w", positionID, err)
		}
		token1, err = store.MustToken(ctx, m.store, pos.Token1)
		if err != nil {
			return "", fmt.Errorf("position %s: %w", positionID, err)
		}
	}

	mutate(pos, token0, token1)

	// A position created by this event already carries fee growth read at this block.
	if amounts && !created {
		if err := m.refreshFeeGrowth(ctx, pos, tokenID, meta.BlockNumber, logger); err != nil {
			return "", err
		}
	}

	// The apply-once guard relies on these two writes landing in the same commit,
	// which store.BatchStore provides.
	if err := m.store.SavePosition(ctx, pos); err != nil {
		return "", fmt.Errorf("save position %s: %w", positionID, err)
	}
	snapshot := pos.Snapshot(snapshotID, meta.BlockNumber, meta.Timestamp, meta.TxHash)
	if err := m.store.SavePositionSnapshot(ctx, snapshot); err != nil {
		return "", fmt.Errorf("save snapshot %s: %w", snapshotID, err)
	}
	return OutcomeApplied, nil
}

// loadOrCreate returns the stored position, or materializes it from chain state.
// A nil position with a nil error means one of the calls reverted.
func (m *Manager) loadOrCreate(ctx context.Context, positionID string, tokenID *big.Int, meta EventMeta, logger *zap.Logger) (*model.Position, bool, error) {
	pos, ok, err := m.store.Position(ctx, positionID)
	if err != nil {
		return nil, false, fmt.Errorf("load position %s: %w", positionID, err)
	}
	if ok {
		return pos, false, nil
	}

	res, err := m.positions.Position(ctx, tokenID, meta.BlockNumber)
	if err != nil {
		return nil, false, fmt.Errorf("positions(%s): %w", positionID, err)
	}
	md, ok := res.Get()
	if !ok {
		logger.Debug("positions call reverted", zap.String("reason", res.Reason()))
		return nil, false, nil
	}

	poolRes, err := m.pools.Pool(ctx, md.Token0, md.Token1, md.Fee, meta.BlockNumber)
	if err != nil {
		return nil, false, fmt.Errorf("getPool for position %s: %w", positionID, err)
	}
	pool, ok := poolRes.Get()
	if !ok {
		logger.Debug("getPool call reverted", zap.String("reason", poolRes.Reason()))
		return nil, false, nil
	}
	if pool == (common.Address{}) {
		logger.Warn("factory returned zero pool address", zap.Uint32("fee", md.Fee))
	}

	return &model.Position{
		ID:                       positionID,
		Pool:                     pool,
		Token0:                   md.Token0,
		Token1:                   md.Token1,
		TickLower:                model.TickID(pool, md.TickLower),
		TickUpper:                model.TickID(pool, md.TickUpper),
		Liquidity:                new(big.Int),
		DepositedToken0:          fixedpoint.Zero,
		DepositedToken1:          fixedpoint.Zero,
		WithdrawnToken0:          fixedpoint.Zero,
		WithdrawnToken1:          fixedpoint.Zero,
		CollectedToken0:          fixedpoint.Zero,
		CollectedToken1:          fixedpoint.Zero,
		CollectedFeesToken0:      fixedpoint.Zero,
		CollectedFeesToken1:      fixedpoint.Zero,
		Transaction:              meta.TxHash,
		FeeGrowthInside0LastX128: copyU256(md.FeeGrowthInside0LastX128),
		FeeGrowthInside1LastX128: copyU256(md.FeeGrowthInside1LastX128),
	}, true, nil
}

// refreshFeeGrowth re-reads fee growth at the event block. A revert keeps the
// previous values.
func (m *Manager) refreshFeeGrowth(ctx context.Context, pos *model.Position, tokenID *big.Int, blockNumber uint64, logger *zap.Logger) error {
	res, err := m.positions.Position(ctx, tokenID, blockNumber)
	if err != nil {
		return fmt.Errorf("refresh fee growth for position %s: %w", pos.ID, err)
	}
	md, ok := res.Get()
	if !ok {
		logger.Debug("fee growth refresh reverted, keeping previous values", zap.String("reason", res.Reason()))
		return nil
	}
	pos.FeeGrowthInside0LastX128 = copyU256(md.FeeGrowthInside0LastX128)
	pos.FeeGrowthInside1LastX128 = copyU256(md.FeeGrowthInside1LastX128)
	return nil
}

func copyU256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
