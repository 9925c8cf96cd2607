package main

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"positionScope/internal/config"
	"positionScope/internal/model"
	"positionScope/internal/store"
)

func TestOpenEntityStore_MemoryKeepsCursorWithEntities(t *testing.T) {
	ctx := context.Background()
	entities, closeStores, err := openEntityStore(ctx, config.ProcessConfig{StateName: "process"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer closeStores()

	_, ok, err := entities.LoadCursor(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	poolID := common.HexToAddress("0xd0b53d9277642d899df5c87a3966a349a798f224")
	require.NoError(t, entities.SavePool(ctx, &model.Pool{ID: poolID}))
	entities.KeepEvent()
	require.NoError(t, entities.Commit(ctx, store.Cursor{BlockNumber: 12, LogIndex: 3}))

	committer, ok := entities.Committer().(*store.MemoryStore)
	require.True(t, ok)
	_, ok, err = committer.Pool(ctx, poolID)
	require.NoError(t, err)
	assert.True(t, ok)
	cursor, ok, err := entities.LoadCursor(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.Cursor{BlockNumber: 12, LogIndex: 3}, cursor)
}

func TestOpenEntityStore_BadDSN(t *testing.T) {
	_, _, err := openEntityStore(context.Background(), config.ProcessConfig{
		StateName:     "process",
		ClickHouseDSN: "http://localhost:8123",
	}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clickhouse")
}
