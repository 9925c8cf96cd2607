// Package tick creates Tick entities and maps fee tiers to tick spacing.
package tick

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"positionScope/internal/fixedpoint"
	"positionScope/internal/model"
)

var tickBase = decimal.RequireFromString("1.0001")

// CreateTick builds a tick with prices derived from its index and zeroed
// accumulators. The caller persists it.
func CreateTick(id string, tickIdx int32, pool common.Address, timestamp, blockNumber uint64) *model.Tick {
	price0 := fixedpoint.Pow(tickBase, int64(tickIdx))
	return &model.Tick{
		ID:                    id,
		Pool:                  pool,
		TickIdx:               tickIdx,
		CreatedAtTimestamp:    timestamp,
		CreatedAtBlockNumber:  blockNumber,
		Price0:                price0,
		Price1:                fixedpoint.SafeDiv(fixedpoint.One, price0),
		LiquidityGross:        new(big.Int),
		LiquidityNet:          new(big.Int),
		VolumeToken0:          fixedpoint.Zero,
		VolumeToken1:          fixedpoint.Zero,
		VolumeUSD:             fixedpoint.Zero,
		UntrackedVolumeUSD:    fixedpoint.Zero,
		FeesUSD:               fixedpoint.Zero,
		CollectedFeesToken0:   fixedpoint.Zero,
		CollectedFeesToken1:   fixedpoint.Zero,
		CollectedFeesUSD:      fixedpoint.Zero,
		FeeGrowthOutside0X128: new(uint256.Int),
		FeeGrowthOutside1X128: new(uint256.Int),
	}
}

// ErrUnexpectedFeeTier matches any *UnexpectedFeeTierError via errors.Is.
var ErrUnexpectedFeeTier = errors.New("unexpected fee tier")

// UnexpectedFeeTierError reports a fee tier with no known tick spacing.
type UnexpectedFeeTierError struct {
	FeeTier uint32
}

func (e *UnexpectedFeeTierError) Error() string {
	return fmt.Sprintf("unexpected fee tier %d", e.FeeTier)
}

func (e *UnexpectedFeeTierError) Is(target error) bool {
	return target == ErrUnexpectedFeeTier
}

var staticSpacing = map[uint32]int32{
	10000: 200,
	3000:  60,
	500:   10,
	400:   8,
	300:   6,
	200:   4,
	100:   1,
}

// OverrideStore persists fee tiers enabled after deployment.
type OverrideStore interface {
	FeeTierTickSpacing(ctx context.Context, feeTier uint32) (int32, bool, error)
	SaveFeeTierTickSpacing(ctx context.Context, feeTier uint32, tickSpacing int32) error
}

// SpacingTable resolves tick spacing from the built-in table first and the
// persisted overrides second.
type SpacingTable struct {
	overrides OverrideStore
}

func NewSpacingTable(overrides OverrideStore) *SpacingTable {
	return &SpacingTable{overrides: overrides}
}

// Known reports whether the fee tier is in the built-in table.
func Known(feeTier uint32) bool {
	_, ok := staticSpacing[feeTier]
	return ok
}

// Spacing returns the tick spacing of a fee tier.
func (t *SpacingTable) Spacing(ctx context.Context, feeTier uint32) (int32, error) {
	if spacing, ok := staticSpacing[feeTier]; ok {
		return spacing, nil
	}
	if t.overrides != nil {
		spacing, ok, err := t.overrides.FeeTierTickSpacing(ctx, feeTier)
		if err != nil {
			return 0, fmt.Errorf("load fee tier override: %w", err)
		}
		if ok {
			return spacing, nil
		}
	}
	return 0, &UnexpectedFeeTierError{FeeTier: feeTier}
}

// Register records the tick spacing of a fee tier enabled on the factory.
func (t *SpacingTable) Register(ctx context.Context, feeTier uint32, tickSpacing int32) error {
	if t.overrides == nil {
		return fmt.Errorf("register fee tier %d: no override store", feeTier)
	}
	if err := t.overrides.SaveFeeTierTickSpacing(ctx, feeTier, tickSpacing); err != nil {
		return fmt.Errorf("save fee tier override: %w", err)
	}
	return nil
}
