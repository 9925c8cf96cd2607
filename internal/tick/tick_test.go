package tick

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"positionScope/internal/model"
	"positionScope/internal/store"
)

func TestCreateTickPrices(t *testing.T) {
	pool := common.HexToAddress("0xd0b53d9277642d899df5c87a3966a349a798f224")

	zero := CreateTick(model.TickID(pool, 0), 0, pool, 10, 20)
	assert.True(t, zero.Price0.Equal(decimal.NewFromInt(1)))
	assert.True(t, zero.Price1.Equal(decimal.NewFromInt(1)))

	one := CreateTick(model.TickID(pool, 1), 1, pool, 10, 20)
	assert.True(t, one.Price0.Equal(decimal.RequireFromString("1.0001")))

	neg := CreateTick(model.TickID(pool, -1), -1, pool, 10, 20)
	product := one.Price0.Mul(neg.Price0)
	assert.True(t, product.Sub(decimal.NewFromInt(1)).Abs().LessThan(decimal.New(1, -30)), "product %s", product)
}

func TestCreateTickZeroedAccumulators(t *testing.T) {
	pool := common.HexToAddress("0x4c36388be6f416a29c8d8eee81c771ce6be14b18")
	tk := CreateTick("id", -8870, pool, 1700000000, 12345)

	assert.Equal(t, "id", tk.ID)
	assert.Equal(t, pool, tk.Pool)
	assert.Equal(t, int32(-8870), tk.TickIdx)
	assert.Equal(t, uint64(1700000000), tk.CreatedAtTimestamp)
	assert.Equal(t, uint64(12345), tk.CreatedAtBlockNumber)
	assert.Zero(t, tk.LiquidityGross.Sign())
	assert.Zero(t, tk.LiquidityNet.Sign())
	assert.Zero(t, tk.LiquidityProviderCount)
	assert.True(t, tk.VolumeUSD.IsZero())
	assert.True(t, tk.FeeGrowthOutside0X128.IsZero())
	assert.True(t, tk.FeeGrowthOutside1X128.IsZero())
	assert.True(t, tk.Price0.IsPositive())
	assert.True(t, tk.Price1.GreaterThan(tk.Price0))
}

func TestSpacingStaticTable(t *testing.T) {
	table := NewSpacingTable(store.NewMemoryStore())
	ctx := context.Background()

	cases := map[uint32]int32{10000: 200, 3000: 60, 500: 10, 400: 8, 300: 6, 200: 4, 100: 1}
	for fee, want := range cases {
		got, err := table.Spacing(ctx, fee)
		require.NoError(t, err)
		assert.Equal(t, want, got, "fee %d", fee)
		assert.True(t, Known(fee))
	}
}

func TestSpacingOverride(t *testing.T) {
	ctx := context.Background()
	table := NewSpacingTable(store.NewMemoryStore())

	_, err := table.Spacing(ctx, 2500)
	var feeErr *UnexpectedFeeTierError
	require.True(t, errors.As(err, &feeErr))
	assert.Equal(t, uint32(2500), feeErr.FeeTier)
	assert.True(t, errors.Is(err, ErrUnexpectedFeeTier))

	require.NoError(t, table.Register(ctx, 2500, 50))
	got, err := table.Spacing(ctx, 2500)
	require.NoError(t, err)
	assert.Equal(t, int32(50), got)
	assert.False(t, Known(2500))
}

func TestSpacingStaticWinsOverOverride(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.SaveFeeTierTickSpacing(ctx, 3000, 99))

	got, err := NewSpacingTable(s).Spacing(ctx, 3000)
	require.NoError(t, err)
	assert.Equal(t, int32(60), got)
}

func TestSpacingWithoutOverrideStore(t *testing.T) {
	table := NewSpacingTable(nil)

	_, err := table.Spacing(context.Background(), 7)
	assert.ErrorIs(t, err, ErrUnexpectedFeeTier)
	assert.Error(t, table.Register(context.Background(), 7, 1))
}
