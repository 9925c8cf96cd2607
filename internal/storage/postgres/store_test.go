package postgres

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"positionScope/internal/model"
	"positionScope/internal/store"
)

var (
	testPool   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testToken0 = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testToken1 = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testOwner  = common.HexToAddress("0x4444444444444444444444444444444444444444")
	testTx     = common.HexToHash("0xabcdef")
)

func TestStore_MissingEntitiesAreNotFound(t *testing.T) {
	pg := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := pg.Token(ctx, testToken0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = pg.Pool(ctx, testPool)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = pg.Bundle(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = pg.Position(ctx, "1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = pg.Tick(ctx, model.TickID(testPool, 60))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = pg.FeeTierTickSpacing(ctx, 100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_TokenPoolBundleRoundTrip(t *testing.T) {
	pg := setupTestStore(t)
	ctx := context.Background()

	token := &model.Token{
		ID:               testToken0,
		Symbol:           "USDC",
		Name:             "USD Coin",
		Decimals:         6,
		DerivedETH:       decimal.RequireFromString("0.000333333333333333333333333333333333"),
		WhitelistPools:   []common.Address{testPool},
		TotalValueLocked: decimal.RequireFromString("1234.5"),
		VolumeUSD:        decimal.Zero,
	}
	commit(t, pg, func(c *store.Changes) { c.Tokens[token.ID] = *token })

	got, ok, err := pg.Token(ctx, testToken0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "USDC", got.Symbol)
	assert.Equal(t, uint8(6), got.Decimals)
	assert.True(t, token.DerivedETH.Equal(got.DerivedETH))
	assert.True(t, token.TotalValueLocked.Equal(got.TotalValueLocked))
	assert.Equal(t, []common.Address{testPool}, got.WhitelistPools)

	tick := int32(-201000)
	sqrt, _ := new(big.Int).SetString("1461446703485210103287273052203988822378723970341", 10)
	pool := &model.Pool{
		ID:                     testPool,
		Token0:                 testToken0,
		Token1:                 testToken1,
		FeeTier:                3000,
		TickSpacing:            60,
		Liquidity:              big.NewInt(12345),
		SqrtPrice:              sqrt,
		Tick:                   &tick,
		Token0Price:            decimal.NewFromInt(2000),
		Token1Price:            decimal.RequireFromString("0.0005"),
		TotalValueLockedToken0: decimal.NewFromInt(10),
		TotalValueLockedToken1: decimal.NewFromInt(20),
		VolumeUSD:              decimal.Zero,
		CreatedAtTimestamp:     1700000000,
		CreatedAtBlockNumber:   12369621,
	}
	commit(t, pg, func(c *store.Changes) { c.Pools[pool.ID] = *pool })

	gotPool, ok, err := pg.Pool(ctx, testPool)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, sqrt.Cmp(gotPool.SqrtPrice))
	require.NotNil(t, gotPool.Tick)
	assert.Equal(t, tick, *gotPool.Tick)
	assert.Equal(t, uint32(3000), gotPool.FeeTier)
	assert.Equal(t, uint64(12369621), gotPool.CreatedAtBlockNumber)

	pool.Tick = nil
	pool.Liquidity = big.NewInt(0)
	commit(t, pg, func(c *store.Changes) { c.Pools[pool.ID] = *pool })
	gotPool, _, err = pg.Pool(ctx, testPool)
	require.NoError(t, err)
	assert.Nil(t, gotPool.Tick)
	assert.Zero(t, gotPool.Liquidity.Sign())

	commit(t, pg, func(c *store.Changes) {
		c.Bundle = &model.Bundle{ID: model.BundleID, ETHPriceUSD: decimal.NewFromInt(3000)}
	})
	bundle, ok, err := pg.Bundle(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(3000).Equal(bundle.ETHPriceUSD))
}

func TestStore_PositionAndSnapshots(t *testing.T) {
	pg := setupTestStore(t)
	ctx := context.Background()

	maxGrowth := new(uint256.Int).SetAllOne()
	position := &model.Position{
		ID:                       "42",
		Owner:                    testOwner,
		Pool:                     testPool,
		Token0:                   testToken0,
		Token1:                   testToken1,
		TickLower:                model.TickID(testPool, -60),
		TickUpper:                model.TickID(testPool, 60),
		Liquidity:                big.NewInt(-5),
		DepositedToken0:          decimal.RequireFromString("1.5"),
		DepositedToken1:          decimal.Zero,
		WithdrawnToken0:          decimal.Zero,
		WithdrawnToken1:          decimal.Zero,
		CollectedToken0:          decimal.Zero,
		CollectedToken1:          decimal.Zero,
		CollectedFeesToken0:      decimal.Zero,
		CollectedFeesToken1:      decimal.Zero,
		Transaction:              testTx,
		FeeGrowthInside0LastX128: maxGrowth,
		FeeGrowthInside1LastX128: uint256.NewInt(7),
	}
	commit(t, pg, func(c *store.Changes) { c.Positions[position.ID] = *position })

	got, ok, err := pg.Position(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(-5), got.Liquidity.Int64())
	assert.True(t, maxGrowth.Eq(got.FeeGrowthInside0LastX128))
	assert.Equal(t, uint64(7), got.FeeGrowthInside1LastX128.Uint64())
	assert.Equal(t, testTx, got.Transaction)
	assert.Equal(t, testOwner, got.Owner)

	snapshot := position.Snapshot(model.SnapshotID(testTx, 3), 100, 1700000000, testTx)
	commit(t, pg, func(c *store.Changes) { c.Snapshots[snapshot.ID] = *snapshot })

	redelivered := *snapshot
	redelivered.BlockNumber = 999
	commit(t, pg, func(c *store.Changes) { c.Snapshots[redelivered.ID] = redelivered })

	gotSnap, ok, err := pg.PositionSnapshot(ctx, snapshot.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(100), gotSnap.BlockNumber)
	assert.Equal(t, "42", gotSnap.Position)

	batch := []model.PositionSnapshot{
		*position.Snapshot(model.SnapshotID(testTx, 4), 101, 1700000012, testTx),
		*position.Snapshot(model.SnapshotID(testTx, 5), 101, 1700000012, testTx),
	}
	commit(t, pg, func(c *store.Changes) {
		for _, snap := range batch {
			c.Snapshots[snap.ID] = snap
		}
	})
	_, ok, err = pg.PositionSnapshot(ctx, batch[1].ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_TickAndFeeTier(t *testing.T) {
	pg := setupTestStore(t)
	ctx := context.Background()

	tick := &model.Tick{
		ID:                     model.TickID(testPool, -60),
		Pool:                   testPool,
		TickIdx:                -60,
		CreatedAtTimestamp:     1,
		CreatedAtBlockNumber:   2,
		Price0:                 decimal.RequireFromString("0.994017964053935617618334582347396"),
		Price1:                 decimal.RequireFromString("1.006017734268818165222997475349225"),
		LiquidityGross:         big.NewInt(100),
		LiquidityNet:           big.NewInt(-100),
		LiquidityProviderCount: 0,
		FeeGrowthOutside0X128:  uint256.NewInt(0),
		FeeGrowthOutside1X128:  uint256.NewInt(0),
	}
	commit(t, pg, func(c *store.Changes) { c.Ticks[tick.ID] = *tick })

	got, ok, err := pg.Tick(ctx, tick.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(-60), got.TickIdx)
	assert.True(t, tick.Price0.Equal(got.Price0))
	assert.Equal(t, int64(-100), got.LiquidityNet.Int64())

	commit(t, pg, func(c *store.Changes) { c.FeeTiers[100] = 1 })
	spacing, ok, err := pg.FeeTierTickSpacing(ctx, 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(1), spacing)
}

func TestCheckpoints_Cursor(t *testing.T) {
	pg := setupTestStore(t)
	ctx := context.Background()

	_, err := NewCheckpoints(pg, "")
	require.Error(t, err)

	cp, err := NewCheckpoints(pg, "process")
	require.NoError(t, err)
	_, ok, err := cp.LoadCursor(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, cursor := range []store.Cursor{{BlockNumber: 100, LogIndex: 7}, {BlockNumber: 101}} {
		changes := store.NewChanges()
		changes.Cursor = &cursor
		require.NoError(t, cp.Commit(ctx, changes))
	}

	cursor, ok, err := cp.LoadCursor(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.Cursor{BlockNumber: 101}, cursor)

	other, err := NewCheckpoints(pg, "replay")
	require.NoError(t, err)
	_, ok, err = other.LoadCursor(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckpoints_CommitRollsBackOnError(t *testing.T) {
	pg := setupTestStore(t)
	ctx := context.Background()
	cp, err := NewCheckpoints(pg, "process")
	require.NoError(t, err)

	position := model.Position{
		ID:                       "9",
		Owner:                    testOwner,
		Pool:                     testPool,
		Token0:                   testToken0,
		Token1:                   testToken1,
		TickLower:                model.TickID(testPool, -60),
		TickUpper:                model.TickID(testPool, 60),
		Liquidity:                big.NewInt(150),
		Transaction:              testTx,
		FeeGrowthInside0LastX128: uint256.NewInt(0),
		FeeGrowthInside1LastX128: uint256.NewInt(0),
	}
	changes := store.NewChanges()
	changes.Positions[position.ID] = position
	snapshot := position.Snapshot(model.SnapshotID(testTx, 1), 10, 1700000000, testTx)
	changes.Snapshots[snapshot.ID] = *snapshot
	// Postgres text columns reject NUL bytes.
	changes.Tokens[testToken0] = model.Token{ID: testToken0, Symbol: "bad\x00", Decimals: 18}
	changes.Cursor = &store.Cursor{BlockNumber: 10, LogIndex: 1}

	require.Error(t, cp.Commit(ctx, changes))

	_, ok, err := pg.Position(ctx, position.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = pg.PositionSnapshot(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = cp.LoadCursor(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	delete(changes.Tokens, testToken0)
	require.NoError(t, cp.Commit(ctx, changes))
	got, ok, err := pg.Position(ctx, position.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(150), got.Liquidity.Int64())
	cursor, ok, err := cp.LoadCursor(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(10), cursor.BlockNumber)
}

// commit writes the changes built by fill through a Checkpoints without a cursor.
func commit(t *testing.T, pg *Store, fill func(c *store.Changes)) {
	t.Helper()
	changes := store.NewChanges()
	fill(changes)
	require.NoError(t, (&Checkpoints{Store: pg, Name: "test"}).Commit(context.Background(), changes))
}
