package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"positionScope/internal/store"
)

// Checkpoints commits change batches to the Store together with the cursor kept
// in indexer_state under Name.
type Checkpoints struct {
	Store *Store
	Name  string
}

func NewCheckpoints(s *Store, name string) (*Checkpoints, error) {
	if name == "" {
		return nil, fmt.Errorf("state name required")
	}
	return &Checkpoints{Store: s, Name: name}, nil
}

// LoadCursor returns the last committed log coordinates.
func (c *Checkpoints) LoadCursor(ctx context.Context) (store.Cursor, bool, error) {
	var block, logIndex int64
	row := c.Store.pool.QueryRow(ctx, `SELECT last_block, last_log_index FROM indexer_state WHERE name=$1`, c.Name)
	if err := row.Scan(&block, &logIndex); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Cursor{}, false, nil
		}
		return store.Cursor{}, false, fmt.Errorf("load cursor %s: %w", c.Name, err)
	}
	return store.Cursor{BlockNumber: uint64(block), LogIndex: uint64(logIndex)}, true, nil
}

// Commit writes every change and the cursor in one transaction.
func (c *Checkpoints) Commit(ctx context.Context, changes *store.Changes) error {
	batch := &pgx.Batch{}
	for id := range changes.Tokens {
		token := changes.Tokens[id]
		queueToken(batch, &token)
	}
	for id := range changes.Pools {
		pool := changes.Pools[id]
		queuePool(batch, &pool)
	}
	if changes.Bundle != nil {
		queueBundle(batch, changes.Bundle)
	}
	for id := range changes.Positions {
		position := changes.Positions[id]
		queuePosition(batch, &position)
	}
	for _, snapshot := range changes.SnapshotList() {
		snapshot := snapshot
		queueSnapshot(batch, &snapshot)
	}
	for id := range changes.Ticks {
		tick := changes.Ticks[id]
		queueTick(batch, &tick)
	}
	for fee, spacing := range changes.FeeTiers {
		queueFeeTier(batch, fee, spacing)
	}
	if changes.Cursor != nil {
		queueCursor(batch, c.Name, *changes.Cursor)
	}
	if batch.Len() == 0 {
		return nil
	}

	err := pgx.BeginFunc(ctx, c.Store.pool, func(tx pgx.Tx) error {
		return executeBatch(ctx, tx, batch)
	})
	if err != nil {
		return fmt.Errorf("commit %d writes: %w", batch.Len(), err)
	}
	return nil
}

func executeBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return br.Close()
}
