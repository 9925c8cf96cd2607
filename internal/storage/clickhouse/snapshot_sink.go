package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"positionScope/internal/model"
	"positionScope/internal/store"
)

// SnapshotSink exports position snapshots to the position_snapshots table.
// The table is a ReplacingMergeTree keyed by snapshot id, so resending a batch
// after a failed flush is harmless.
type SnapshotSink struct {
	conn *Conn
}

func NewSnapshotSink(conn *Conn) *SnapshotSink {
	return &SnapshotSink{conn: conn}
}

var _ store.SnapshotSink = (*SnapshotSink)(nil)

func (s *SnapshotSink) WriteSnapshots(ctx context.Context, snapshots []model.PositionSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO position_snapshots (
			id, owner, pool, position, block_number, timestamp, liquidity,
			deposited_token0, deposited_token1, withdrawn_token0, withdrawn_token1,
			collected_fees_token0, collected_fees_token1, transaction,
			fee_growth_inside0_last_x128, fee_growth_inside1_last_x128
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snapshots {
		err = batch.Append(
			snap.ID,
			strings.ToLower(snap.Owner.Hex()),
			strings.ToLower(snap.Pool.Hex()),
			snap.Position,
			snap.BlockNumber,
			snap.Timestamp,
			bigString(snap.Liquidity),
			snap.DepositedToken0.String(),
			snap.DepositedToken1.String(),
			snap.WithdrawnToken0.String(),
			snap.WithdrawnToken1.String(),
			snap.CollectedFeesToken0.String(),
			snap.CollectedFeesToken1.String(),
			strings.ToLower(snap.Transaction.Hex()),
			u256String(snap.FeeGrowthInside0LastX128),
			u256String(snap.FeeGrowthInside1LastX128),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// CountByPosition returns the number of distinct snapshots stored for a position.
func (s *SnapshotSink) CountByPosition(ctx context.Context, position string) (uint64, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `
		SELECT uniqExact(id) FROM position_snapshots WHERE position = ?
	`, position)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return count, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func u256String(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.ToBig().String()
}
