package store

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"positionScope/internal/model"
)

func TestMemoryStoreMissingKeysAreNotErrors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Position(ctx, "1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Bundle(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.FeeTierTickSpacing(ctx, 2500)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	pos := &model.Position{
		ID:                       "7",
		Liquidity:                big.NewInt(10),
		FeeGrowthInside0LastX128: uint256.NewInt(1),
		FeeGrowthInside1LastX128: uint256.NewInt(2),
	}
	require.NoError(t, s.SavePosition(ctx, pos))
	pos.Liquidity.SetInt64(99)

	loaded, ok, err := s.Position(ctx, "7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), loaded.Liquidity.Int64())

	loaded.FeeGrowthInside0LastX128.SetUint64(50)
	again, _, _ := s.Position(ctx, "7")
	assert.Equal(t, uint64(1), again.FeeGrowthInside0LastX128.Uint64())
}

func TestMustHelpersWrapNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := MustToken(ctx, s, common.HexToAddress("0x1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var missing *MissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "token", missing.Kind)

	_, err = MustBundle(ctx, s)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.SaveBundle(ctx, &model.Bundle{ETHPriceUSD: decimal.NewFromInt(2000)}))
	bundle, err := MustBundle(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, model.BundleID, bundle.ID)
}

type recordingSink struct {
	batches [][]model.PositionSnapshot
	err     error
}

func (r *recordingSink) WriteSnapshots(_ context.Context, snaps []model.PositionSnapshot) error {
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, append([]model.PositionSnapshot(nil), snaps...))
	return nil
}

// flakyCommitter fails the next failures commits, then delegates to MemoryStore.
type flakyCommitter struct {
	*MemoryStore
	failures int
}

func (f *flakyCommitter) Commit(ctx context.Context, changes *Changes) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	return f.MemoryStore.Commit(ctx, changes)
}

func snapshotChanges(ids ...string) *Changes {
	changes := NewChanges()
	for i, id := range ids {
		changes.Snapshots[id] = model.PositionSnapshot{ID: id, BlockNumber: uint64(10 - i), Liquidity: big.NewInt(1)}
	}
	return changes
}

func TestMirrorExportsBeforeCommit(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	primary := NewMemoryStore()
	mirror := NewMirror(primary, sink)

	changes := snapshotChanges("0xa#1", "0xa#2")
	changes.Cursor = &Cursor{BlockNumber: 10, LogIndex: 2}
	require.NoError(t, mirror.Commit(ctx, changes))

	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0], 2)
	assert.Equal(t, "0xa#2", sink.batches[0][0].ID)
	assert.Equal(t, 2, mirror.Exported())
	assert.Equal(t, 2, primary.SnapshotCount())

	cursor, ok, err := mirror.LoadCursor(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Cursor{BlockNumber: 10, LogIndex: 2}, cursor)
}

func TestMirrorSinkErrorSkipsCommit(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryStore()
	mirror := NewMirror(primary, &recordingSink{err: errors.New("clickhouse down")})

	changes := snapshotChanges("0xb#1")
	changes.Cursor = &Cursor{BlockNumber: 1}
	require.Error(t, mirror.Commit(ctx, changes))
	assert.Zero(t, primary.SnapshotCount())
	assert.Zero(t, mirror.Exported())

	_, ok, err := primary.LoadCursor(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreCommitKeepsFirstSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Commit(ctx, snapshotChanges("0xc#1")))
	again := snapshotChanges("0xc#1")
	again.Snapshots["0xc#1"] = model.PositionSnapshot{ID: "0xc#1", BlockNumber: 999}
	require.NoError(t, s.Commit(ctx, again))

	snap, ok, err := s.PositionSnapshot(ctx, "0xc#1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(10), snap.BlockNumber)
}

func TestBatchStoreReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	require.NoError(t, base.SavePosition(ctx, &model.Position{ID: "1", Liquidity: big.NewInt(100)}))
	b := NewBatchStore(base, base)

	pos, ok, err := b.Position(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	pos.Liquidity = big.NewInt(150)
	require.NoError(t, b.SavePosition(ctx, pos))

	staged, _, err := b.Position(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), staged.Liquidity.Int64())
	stored, _, err := base.Position(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), stored.Liquidity.Int64())

	b.KeepEvent()
	require.NoError(t, b.SaveFeeTierTickSpacing(ctx, 2500, 50))
	spacing, ok, err := b.FeeTierTickSpacing(ctx, 2500)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(50), spacing)
	b.DiscardEvent()

	_, ok, err = b.FeeTierTickSpacing(ctx, 2500)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, b.Pending())
}

func TestBatchStoreCommitIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	require.NoError(t, base.SavePosition(ctx, &model.Position{ID: "1", Liquidity: big.NewInt(100)}))
	committer := &flakyCommitter{MemoryStore: base, failures: 1}
	b := NewBatchStore(base, committer)

	require.NoError(t, b.SavePosition(ctx, &model.Position{ID: "1", Liquidity: big.NewInt(150)}))
	require.NoError(t, b.SavePositionSnapshot(ctx, &model.PositionSnapshot{ID: "0xd#1", Position: "1"}))
	require.NoError(t, b.SaveBundle(ctx, &model.Bundle{ETHPriceUSD: decimal.NewFromInt(2500)}))

	require.Error(t, b.Commit(ctx, Cursor{BlockNumber: 5}), "event writes must be kept before commit")
	b.KeepEvent()

	require.Error(t, b.Commit(ctx, Cursor{BlockNumber: 5}))
	stored, _, err := base.Position(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), stored.Liquidity.Int64())
	assert.Zero(t, base.SnapshotCount())
	_, ok, err := base.LoadCursor(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, b.Pending())

	require.NoError(t, b.Commit(ctx, Cursor{BlockNumber: 5}))
	stored, _, err = base.Position(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), stored.Liquidity.Int64())
	assert.Equal(t, 1, base.SnapshotCount())
	bundle, err := MustBundle(ctx, base)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2500).Equal(bundle.ETHPriceUSD))
	cursor, ok, err := b.LoadCursor(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(5), cursor.BlockNumber)
	assert.Zero(t, b.Pending())
}
