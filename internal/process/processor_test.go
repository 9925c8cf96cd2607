package process

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"positionScope/internal/metrics"
	"positionScope/internal/model"
	"positionScope/internal/pool"
	"positionScope/internal/position"
	"positionScope/internal/pricing"
	"positionScope/internal/store"
	"positionScope/internal/tick"
)

var (
	weth       = common.HexToAddress("0x4200000000000000000000000000000000000006")
	usdc       = common.HexToAddress("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913")
	stablePool = common.HexToAddress("0xd0b53d9277642d899df5c87a3966a349a798f224")
	owner      = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	manager    = common.HexToAddress("0x03a520b32c04bf3beef7beb72e919cf822ed34f1")
	factory    = common.HexToAddress("0x33128a8fc17869897dce68ed026d694621f6fdfd")
)

type fakeTokens struct{}

func (fakeTokens) TokenMeta(_ context.Context, token common.Address) (model.TokenMeta, error) {
	return model.TokenMeta{Address: token.Hex(), Decimals: 18, Symbol: "TKN"}, nil
}

type fakeReader struct {
	calls int
}

func (f *fakeReader) Position(_ context.Context, tokenID *big.Int, _ uint64) (position.Result[position.Metadata], error) {
	f.calls++
	if tokenID.Int64() != 1 {
		return position.Reverted[position.Metadata]("Invalid token ID"), nil
	}
	return position.Ok(position.Metadata{
		Token0:                   weth,
		Token1:                   usdc,
		Fee:                      500,
		TickLower:                -10,
		TickUpper:                10,
		Liquidity:                big.NewInt(0),
		FeeGrowthInside0LastX128: uint256.NewInt(5),
		FeeGrowthInside1LastX128: uint256.NewInt(6),
	}), nil
}

type fakeLocator struct{}

func (fakeLocator) Pool(_ context.Context, _, _ common.Address, _ uint32, _ uint64) (position.Result[common.Address], error) {
	return position.Ok(stablePool), nil
}

// countingCommitter commits into a MemoryStore, failing the next failures commits.
type countingCommitter struct {
	*store.MemoryStore
	commits  int
	failures int
}

func (c *countingCommitter) Commit(ctx context.Context, changes *store.Changes) error {
	if c.failures > 0 {
		c.failures--
		return errors.New("postgres down")
	}
	c.commits++
	return c.MemoryStore.Commit(ctx, changes)
}

type fixture struct {
	store     *store.MemoryStore
	metrics   *metrics.Metrics
	processor *Processor
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	return newFixtureOn(t, cfg, st, st)
}

// newFixtureOn wires a processor over committed state st, committing through committer.
func newFixtureOn(t *testing.T, cfg Config, st *store.MemoryStore, committer store.Committer) *fixture {
	t.Helper()
	entities := store.NewBatchStore(st, committer)
	oracle := pricing.NewOracle(pricing.Config{
		Numeraire:              weth,
		Whitelist:              []common.Address{weth, usdc},
		StablePools:            []pricing.StablePool{{Pool: stablePool}},
		MinimumNumeraireLocked: decimal.RequireFromString("0.01"),
	}, entities)
	logger := zaptest.NewLogger(t)
	pools := pool.NewHandler(entities, oracle, tick.NewSpacingTable(entities), fakeTokens{}, logger)
	positions := position.NewManager(position.Config{Denylist: position.NewDenylist()}, entities, &fakeReader{}, fakeLocator{}, logger)
	m := metrics.New("")
	cfg.Store = entities
	return &fixture{
		store:     st,
		metrics:   m,
		processor: NewProcessor(cfg, pools, positions, m, logger),
	}
}

func typedEvent(block, logIndex uint64, address common.Address, name string, decoded interface{}) model.TypedEvent {
	return model.TypedEvent{
		ChainID:     8453,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)).Hex(),
		LogIndex:    logIndex,
		Address:     address.Hex(),
		EventName:   name,
		Timestamp:   1700000000 + block*2,
		Decoded:     decoded,
	}
}

func lifecycleEvents() []interface{} {
	return []interface{}{
		typedEvent(1, 0, factory, model.EventPoolCreated, model.PoolCreatedEventData{
			Token0: weth.Hex(), Token1: usdc.Hex(), Fee: 500, TickSpacing: 10, Pool: stablePool.Hex(),
		}),
		typedEvent(2, 0, stablePool, model.EventInitialize, model.InitializeEventData{
			SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96).String(), Tick: 0,
		}),
		typedEvent(3, 0, stablePool, model.EventMint, model.MintEventData{
			Owner: manager.Hex(), TickLower: -10, TickUpper: 10, Amount: "1000",
			Amount0: "1000000000000000000", Amount1: "1000000000000000000",
		}),
		typedEvent(3, 1, manager, model.EventTransfer, model.TransferEventData{
			From: common.Address{}.Hex(), To: owner.Hex(), TokenID: "1",
		}),
		typedEvent(3, 2, manager, model.EventIncreaseLiquidity, model.LiquidityEventData{
			TokenID: "1", Liquidity: "1000", Amount0: "1000000000000000000", Amount1: "1000000000000000000",
		}),
		typedEvent(3, 3, manager, "Approval", map[string]string{"owner": owner.Hex()}),
		typedEvent(4, 0, manager, model.EventIncreaseLiquidity, model.LiquidityEventData{
			TokenID: "not-a-number", Liquidity: "1", Amount0: "0", Amount1: "0",
		}),
		typedEvent(4, 1, manager, model.EventIncreaseLiquidity, model.LiquidityEventData{
			TokenID: "2", Liquidity: "1", Amount0: "0", Amount1: "0",
		}),
	}
}

func writeJSONL(t *testing.T, records []interface{}, extra ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "typed.jsonl")
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	for _, rec := range records {
		line, err := json.Marshal(rec)
		require.NoError(t, err)
		_, err = file.Write(append(line, '\n'))
		require.NoError(t, err)
	}
	for _, line := range extra {
		_, err = file.WriteString(line + "\n")
		require.NoError(t, err)
	}
	return path
}

func TestProcessor_Lifecycle(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	committer := &countingCommitter{MemoryStore: st}
	f := newFixtureOn(t, Config{BatchSize: 3}, st, committer)
	input := writeJSONL(t, lifecycleEvents(), "{not json", "")

	stats, err := f.processor.Run(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 9, Applied: 5, Dropped: 1, Skipped: 1, Failed: 2}, stats)
	assert.Equal(t, 3, committer.commits)

	pos, ok, err := f.store.Position(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, owner, pos.Owner)
	assert.Equal(t, int64(1000), pos.Liquidity.Int64())
	assert.True(t, decimal.NewFromInt(1).Equal(pos.DepositedToken0))
	assert.Equal(t, model.TickID(stablePool, -10), pos.TickLower)
	assert.Equal(t, 2, f.store.SnapshotCount())

	p, ok, err := f.store.Pool(ctx, stablePool)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1000), p.Liquidity.Int64())

	_, ok, err = f.store.Position(ctx, "2")
	require.NoError(t, err)
	assert.False(t, ok)

	cursor, ok, err := st.LoadCursor(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.Cursor{BlockNumber: 4, LogIndex: 1}, cursor)
}

func TestProcessor_ResumesAfterCursor(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	changes := store.NewChanges()
	changes.Cursor = &store.Cursor{BlockNumber: 3, LogIndex: 2}
	require.NoError(t, st.Commit(ctx, changes))

	f := newFixtureOn(t, Config{}, st, st)
	input := writeJSONL(t, lifecycleEvents())

	stats, err := f.processor.Run(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 8, Skipped: 6, Dropped: 1, Failed: 1}, stats)
	assert.Equal(t, 0, f.store.PositionCount())

	cursor, _, err := st.LoadCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Cursor{BlockNumber: 4, LogIndex: 1}, cursor)
}

func TestProcessor_FromBlock(t *testing.T) {
	f := newFixture(t, Config{FromBlock: 4})
	stats, err := f.processor.Run(context.Background(), writeJSONL(t, lifecycleEvents()))
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Skipped)
	assert.Equal(t, 1, stats.Dropped)
}

func TestProcessor_OutOfOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	events := []interface{}{
		typedEvent(5, 0, factory, model.EventFeeAmountEnabled, model.FeeAmountEnabledEventData{Fee: 2500, TickSpacing: 50}),
		typedEvent(4, 9, factory, model.EventFeeAmountEnabled, model.FeeAmountEnabledEventData{Fee: 7000, TickSpacing: 140}),
	}

	_, err := f.processor.Run(ctx, writeJSONL(t, events))
	require.ErrorIs(t, err, ErrOutOfOrder)

	cursor, ok, err := f.store.LoadCursor(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.Cursor{BlockNumber: 5, LogIndex: 0}, cursor)

	spacing, ok, err := f.store.FeeTierTickSpacing(ctx, 2500)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(50), spacing)

	_, ok, err = f.store.FeeTierTickSpacing(ctx, 7000)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessor_HandlerErrorStopsRun(t *testing.T) {
	f := newFixture(t, Config{})
	events := []interface{}{
		typedEvent(1, 0, factory, model.EventPoolCreated, model.PoolCreatedEventData{
			Token0: weth.Hex(), Token1: usdc.Hex(), Fee: 777, TickSpacing: 3, Pool: stablePool.Hex(),
		}),
	}

	stats, err := f.processor.Run(context.Background(), writeJSONL(t, events))
	require.Error(t, err)
	assert.True(t, errors.Is(err, tick.ErrUnexpectedFeeTier))
	assert.Equal(t, 0, stats.Applied)
}

func TestProcessor_CommitError(t *testing.T) {
	st := store.NewMemoryStore()
	f := newFixtureOn(t, Config{BatchSize: 1}, st, &countingCommitter{MemoryStore: st, failures: 1})
	events := []interface{}{
		typedEvent(1, 0, factory, model.EventFeeAmountEnabled, model.FeeAmountEnabledEventData{Fee: 2500, TickSpacing: 50}),
	}

	_, err := f.processor.Run(context.Background(), writeJSONL(t, events))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres down")

	_, ok, err := st.FeeTierTickSpacing(context.Background(), 2500)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessor_FailedCommitIsReplayedOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	first := newFixtureOn(t, Config{}, st, st)
	_, err := first.processor.Run(ctx, writeJSONL(t, lifecycleEvents()[:5]))
	require.NoError(t, err)

	batch := writeJSONL(t, []interface{}{
		typedEvent(5, 0, stablePool, model.EventMint, model.MintEventData{
			Owner: manager.Hex(), TickLower: -10, TickUpper: 10, Amount: "50",
			Amount0: "1000000000000000000", Amount1: "1000000000000000000",
		}),
		typedEvent(5, 1, manager, model.EventIncreaseLiquidity, model.LiquidityEventData{
			TokenID: "1", Liquidity: "50", Amount0: "1000000000000000000", Amount1: "1000000000000000000",
		}),
	})

	failing := newFixtureOn(t, Config{}, st, &countingCommitter{MemoryStore: st, failures: 1})
	_, err = failing.processor.Run(ctx, batch)
	require.Error(t, err)

	pos, _, err := st.Position(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), pos.Liquidity.Int64())
	p, _, err := st.Pool(ctx, stablePool)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), p.Liquidity.Int64())
	assert.Equal(t, 2, st.SnapshotCount())

	restarted := newFixtureOn(t, Config{}, st, st)
	stats, err := restarted.processor.Run(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Applied)

	pos, _, err = st.Position(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(1050), pos.Liquidity.Int64())
	assert.True(t, decimal.NewFromInt(2).Equal(pos.DepositedToken0))
	p, _, err = st.Pool(ctx, stablePool)
	require.NoError(t, err)
	assert.Equal(t, int64(1050), p.Liquidity.Int64())
	assert.Equal(t, 3, st.SnapshotCount())

	cursor, _, err := st.LoadCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Cursor{BlockNumber: 5, LogIndex: 1}, cursor)
}

func TestProcessor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := newFixture(t, Config{})
	_, err := f.processor.Run(ctx, writeJSONL(t, lifecycleEvents()))
	require.ErrorIs(t, err, context.Canceled)
}

func TestApply_PayloadErrors(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	cases := []model.TypedEventRecord{
		{EventName: model.EventSwap, Address: stablePool.Hex()},
		{EventName: model.EventSwap, Address: stablePool.Hex(), Decoded: json.RawMessage(`{"amount0":"x"}`)},
		{EventName: model.EventPoolCreated, Decoded: json.RawMessage(`{"token0":"0x12","token1":"0x12","pool":"0x12"}`)},
		{EventName: model.EventTransfer, Decoded: json.RawMessage(`[1,2]`)},
	}
	for _, record := range cases {
		_, err := f.processor.Apply(ctx, record)
		var payloadErr *PayloadError
		require.ErrorAs(t, err, &payloadErr, record.EventName)
		assert.Equal(t, record.EventName, payloadErr.Event)
	}
}

func TestApply_SkipsUnknownEvents(t *testing.T) {
	f := newFixture(t, Config{})
	outcome, err := f.processor.Apply(context.Background(), model.TypedEventRecord{EventName: "Approval"})
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeSkipped, outcome)
}

func TestProcessor_DropsUnknownPoolEvents(t *testing.T) {
	f := newFixture(t, Config{})
	events := []interface{}{
		typedEvent(5, 0, stablePool, model.EventSwap, model.SwapEventData{
			Sender: owner.Hex(), Recipient: owner.Hex(), Amount0: "10", Amount1: "-10",
			SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96).String(), Liquidity: "1000", Tick: 0,
		}),
	}

	stats, err := f.processor.Run(context.Background(), writeJSONL(t, events))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, 0, stats.Applied)
}
