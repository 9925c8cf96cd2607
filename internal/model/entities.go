package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// BundleID is the key of the singleton Bundle.
const BundleID = "1"

// Token is an ERC20 that appears in at least one pool.
type Token struct {
	ID               common.Address   `json:"id"`
	Symbol           string           `json:"symbol"`
	Name             string           `json:"name"`
	Decimals         uint8            `json:"decimals"`
	DerivedETH       decimal.Decimal  `json:"derived_eth"`
	WhitelistPools   []common.Address `json:"whitelist_pools"`
	TotalValueLocked decimal.Decimal  `json:"total_value_locked"`
	VolumeUSD        decimal.Decimal  `json:"volume_usd"`
}

// Pool is a concentrated-liquidity pool created by the factory.
type Pool struct {
	ID                     common.Address  `json:"id"`
	Token0                 common.Address  `json:"token0"`
	Token1                 common.Address  `json:"token1"`
	FeeTier                uint32          `json:"fee_tier"`
	TickSpacing            int32           `json:"tick_spacing"`
	Liquidity              *big.Int        `json:"liquidity"`
	SqrtPrice              *big.Int        `json:"sqrt_price"`
	Tick                   *int32          `json:"tick,omitempty"`
	Token0Price            decimal.Decimal `json:"token0_price"`
	Token1Price            decimal.Decimal `json:"token1_price"`
	TotalValueLockedToken0 decimal.Decimal `json:"total_value_locked_token0"`
	TotalValueLockedToken1 decimal.Decimal `json:"total_value_locked_token1"`
	VolumeUSD              decimal.Decimal `json:"volume_usd"`
	CreatedAtTimestamp     uint64          `json:"created_at_timestamp"`
	CreatedAtBlockNumber   uint64          `json:"created_at_block_number"`
}

// Bundle holds the numeraire price in USD.
type Bundle struct {
	ID          string          `json:"id"`
	ETHPriceUSD decimal.Decimal `json:"eth_price_usd"`
}

// Position is the read model of a position-manager NFT.
type Position struct {
	ID                       string          `json:"id"`
	Owner                    common.Address  `json:"owner"`
	Pool                     common.Address  `json:"pool"`
	Token0                   common.Address  `json:"token0"`
	Token1                   common.Address  `json:"token1"`
	TickLower                string          `json:"tick_lower"`
	TickUpper                string          `json:"tick_upper"`
	Liquidity                *big.Int        `json:"liquidity"`
	DepositedToken0          decimal.Decimal `json:"deposited_token0"`
	DepositedToken1          decimal.Decimal `json:"deposited_token1"`
	WithdrawnToken0          decimal.Decimal `json:"withdrawn_token0"`
	WithdrawnToken1          decimal.Decimal `json:"withdrawn_token1"`
	CollectedToken0          decimal.Decimal `json:"collected_token0"`
	CollectedToken1          decimal.Decimal `json:"collected_token1"`
	CollectedFeesToken0      decimal.Decimal `json:"collected_fees_token0"`
	CollectedFeesToken1      decimal.Decimal `json:"collected_fees_token1"`
	Transaction              common.Hash     `json:"transaction"`
	FeeGrowthInside0LastX128 *uint256.Int    `json:"fee_growth_inside0_last_x128"`
	FeeGrowthInside1LastX128 *uint256.Int    `json:"fee_growth_inside1_last_x128"`
}

// PositionSnapshot is the immutable state of a Position after one event.
type PositionSnapshot struct {
	ID                       string          `json:"id"`
	Owner                    common.Address  `json:"owner"`
	Pool                     common.Address  `json:"pool"`
	Position                 string          `json:"position"`
	BlockNumber              uint64          `json:"block_number"`
	Timestamp                uint64          `json:"timestamp"`
	Liquidity                *big.Int        `json:"liquidity"`
	DepositedToken0          decimal.Decimal `json:"deposited_token0"`
	DepositedToken1          decimal.Decimal `json:"deposited_token1"`
	WithdrawnToken0          decimal.Decimal `json:"withdrawn_token0"`
	WithdrawnToken1          decimal.Decimal `json:"withdrawn_token1"`
	CollectedFeesToken0      decimal.Decimal `json:"collected_fees_token0"`
	CollectedFeesToken1      decimal.Decimal `json:"collected_fees_token1"`
	Transaction              common.Hash     `json:"transaction"`
	FeeGrowthInside0LastX128 *uint256.Int    `json:"fee_growth_inside0_last_x128"`
	FeeGrowthInside1LastX128 *uint256.Int    `json:"fee_growth_inside1_last_x128"`
}

// Tick is a price boundary of a pool. Prices are fixed at creation.
type Tick struct {
	ID                     string          `json:"id"`
	Pool                   common.Address  `json:"pool"`
	TickIdx                int32           `json:"tick_idx"`
	CreatedAtTimestamp     uint64          `json:"created_at_timestamp"`
	CreatedAtBlockNumber   uint64          `json:"created_at_block_number"`
	Price0                 decimal.Decimal `json:"price0"`
	Price1                 decimal.Decimal `json:"price1"`
	LiquidityGross         *big.Int        `json:"liquidity_gross"`
	LiquidityNet           *big.Int        `json:"liquidity_net"`
	LiquidityProviderCount uint64          `json:"liquidity_provider_count"`
	VolumeToken0           decimal.Decimal `json:"volume_token0"`
	VolumeToken1           decimal.Decimal `json:"volume_token1"`
	VolumeUSD              decimal.Decimal `json:"volume_usd"`
	UntrackedVolumeUSD     decimal.Decimal `json:"untracked_volume_usd"`
	FeesUSD                decimal.Decimal `json:"fees_usd"`
	CollectedFeesToken0    decimal.Decimal `json:"collected_fees_token0"`
	CollectedFeesToken1    decimal.Decimal `json:"collected_fees_token1"`
	CollectedFeesUSD       decimal.Decimal `json:"collected_fees_usd"`
	FeeGrowthOutside0X128  *uint256.Int    `json:"fee_growth_outside0_x128"`
	FeeGrowthOutside1X128  *uint256.Int    `json:"fee_growth_outside1_x128"`
}

// TickID keys a tick by pool and index. Positions reference ticks with the same key.
func TickID(pool common.Address, tickIdx int32) string {
	return fmt.Sprintf("%s#%d", strings.ToLower(pool.Hex()), tickIdx)
}

// SnapshotID keys a position snapshot by the log that produced it.
func SnapshotID(txHash common.Hash, logIndex uint64) string {
	return fmt.Sprintf("%s#%d", strings.ToLower(txHash.Hex()), logIndex)
}

// PositionID keys a position by its NFT token id.
func PositionID(tokenID *big.Int) string {
	return tokenID.String()
}

// Snapshot captures the current state of the position.
func (p *Position) Snapshot(id string, blockNumber, timestamp uint64, tx common.Hash) *PositionSnapshot {
	return &PositionSnapshot{
		ID:                       id,
		Owner:                    p.Owner,
		Pool:                     p.Pool,
		Position:                 p.ID,
		BlockNumber:              blockNumber,
		Timestamp:                timestamp,
		Liquidity:                new(big.Int).Set(p.Liquidity),
		DepositedToken0:          p.DepositedToken0,
		DepositedToken1:          p.DepositedToken1,
		WithdrawnToken0:          p.WithdrawnToken0,
		WithdrawnToken1:          p.WithdrawnToken1,
		CollectedFeesToken0:      p.CollectedFeesToken0,
		CollectedFeesToken1:      p.CollectedFeesToken1,
		Transaction:              tx,
		FeeGrowthInside0LastX128: cloneU256(p.FeeGrowthInside0LastX128),
		FeeGrowthInside1LastX128: cloneU256(p.FeeGrowthInside1LastX128),
	}
}

func cloneU256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
