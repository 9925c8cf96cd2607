package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"positionScope/internal/model"
)

// Changes holds entity writes that are not committed yet, keyed by entity id.
type Changes struct {
	Tokens    map[common.Address]model.Token
	Pools     map[common.Address]model.Pool
	Bundle    *model.Bundle
	Positions map[string]model.Position
	Snapshots map[string]model.PositionSnapshot
	Ticks     map[string]model.Tick
	FeeTiers  map[uint32]int32
	// Cursor is written in the same commit as the entities when set.
	Cursor *Cursor
}

func NewChanges() *Changes {
	return &Changes{
		Tokens:    make(map[common.Address]model.Token),
		Pools:     make(map[common.Address]model.Pool),
		Positions: make(map[string]model.Position),
		Snapshots: make(map[string]model.PositionSnapshot),
		Ticks:     make(map[string]model.Tick),
		FeeTiers:  make(map[uint32]int32),
	}
}

// Len returns the number of buffered entity writes.
func (c *Changes) Len() int {
	n := len(c.Tokens) + len(c.Pools) + len(c.Positions) + len(c.Snapshots) + len(c.Ticks) + len(c.FeeTiers)
	if c.Bundle != nil {
		n++
	}
	return n
}

// SnapshotList returns the buffered snapshots ordered by block, then id.
func (c *Changes) SnapshotList() []model.PositionSnapshot {
	out := make([]model.PositionSnapshot, 0, len(c.Snapshots))
	for _, snapshot := range c.Snapshots {
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// merge copies every write of other over c.
func (c *Changes) merge(other *Changes) {
	for id, v := range other.Tokens {
		c.Tokens[id] = v
	}
	for id, v := range other.Pools {
		c.Pools[id] = v
	}
	if other.Bundle != nil {
		c.Bundle = other.Bundle
	}
	for id, v := range other.Positions {
		c.Positions[id] = v
	}
	for id, v := range other.Snapshots {
		c.Snapshots[id] = v
	}
	for id, v := range other.Ticks {
		c.Ticks[id] = v
	}
	for fee, spacing := range other.FeeTiers {
		c.FeeTiers[fee] = spacing
	}
}

// BatchStore buffers entity writes over a Source until Commit. Writes of the event
// in flight stay apart from the batch until KeepEvent, so a failed event can be
// dropped with DiscardEvent. A BatchStore is not safe for concurrent use.
type BatchStore struct {
	base      Source
	committer Committer
	event     *Changes
	batch     *Changes
}

func NewBatchStore(base Source, committer Committer) *BatchStore {
	return &BatchStore{
		base:      base,
		committer: committer,
		event:     NewChanges(),
		batch:     NewChanges(),
	}
}

// Committer returns the committer the batch is written to.
func (b *BatchStore) Committer() Committer {
	return b.committer
}

// KeepEvent moves the writes of the current event into the batch.
func (b *BatchStore) KeepEvent() {
	b.batch.merge(b.event)
	b.event = NewChanges()
}

// DiscardEvent drops the writes of the current event.
func (b *BatchStore) DiscardEvent() {
	b.event = NewChanges()
}

// Pending returns the number of entity writes waiting for Commit.
func (b *BatchStore) Pending() int {
	return b.batch.Len()
}

// LoadCursor returns the cursor of the last commit.
func (b *BatchStore) LoadCursor(ctx context.Context) (Cursor, bool, error) {
	return b.committer.LoadCursor(ctx)
}

// Commit writes the batch together with cursor. On failure the batch is kept.
func (b *BatchStore) Commit(ctx context.Context, cursor Cursor) error {
	if n := b.event.Len(); n > 0 {
		return fmt.Errorf("commit with %d writes of an unfinished event", n)
	}
	b.batch.Cursor = &cursor
	if err := b.committer.Commit(ctx, b.batch); err != nil {
		b.batch.Cursor = nil
		return err
	}
	b.batch = NewChanges()
	return nil
}

func (b *BatchStore) layers() [2]*Changes {
	return [2]*Changes{b.event, b.batch}
}

func (b *BatchStore) Token(ctx context.Context, id common.Address) (*model.Token, bool, error) {
	for _, c := range b.layers() {
		if token, ok := c.Tokens[id]; ok {
			return cloneToken(token), true, nil
		}
	}
	return b.base.Token(ctx, id)
}

func (b *BatchStore) SaveToken(_ context.Context, token *model.Token) error {
	b.event.Tokens[token.ID] = *cloneToken(*token)
	return nil
}

func (b *BatchStore) Pool(ctx context.Context, id common.Address) (*model.Pool, bool, error) {
	for _, c := range b.layers() {
		if pool, ok := c.Pools[id]; ok {
			return clonePool(pool), true, nil
		}
	}
	return b.base.Pool(ctx, id)
}

func (b *BatchStore) SavePool(_ context.Context, pool *model.Pool) error {
	b.event.Pools[pool.ID] = *clonePool(*pool)
	return nil
}

func (b *BatchStore) Bundle(ctx context.Context) (*model.Bundle, bool, error) {
	for _, c := range b.layers() {
		if c.Bundle != nil {
			bundle := *c.Bundle
			return &bundle, true, nil
		}
	}
	return b.base.Bundle(ctx)
}

func (b *BatchStore) SaveBundle(_ context.Context, bundle *model.Bundle) error {
	copied := *bundle
	copied.ID = model.BundleID
	b.event.Bundle = &copied
	return nil
}

func (b *BatchStore) Position(ctx context.Context, id string) (*model.Position, bool, error) {
	for _, c := range b.layers() {
		if pos, ok := c.Positions[id]; ok {
			return clonePosition(pos), true, nil
		}
	}
	return b.base.Position(ctx, id)
}

func (b *BatchStore) SavePosition(_ context.Context, position *model.Position) error {
	b.event.Positions[position.ID] = *clonePosition(*position)
	return nil
}

func (b *BatchStore) PositionSnapshot(ctx context.Context, id string) (*model.PositionSnapshot, bool, error) {
	for _, c := range b.layers() {
		if snap, ok := c.Snapshots[id]; ok {
			return cloneSnapshot(snap), true, nil
		}
	}
	return b.base.PositionSnapshot(ctx, id)
}

func (b *BatchStore) SavePositionSnapshot(_ context.Context, snapshot *model.PositionSnapshot) error {
	b.event.Snapshots[snapshot.ID] = *cloneSnapshot(*snapshot)
	return nil
}

func (b *BatchStore) Tick(ctx context.Context, id string) (*model.Tick, bool, error) {
	for _, c := range b.layers() {
		if tick, ok := c.Ticks[id]; ok {
			return cloneTick(tick), true, nil
		}
	}
	return b.base.Tick(ctx, id)
}

func (b *BatchStore) SaveTick(_ context.Context, tick *model.Tick) error {
	b.event.Ticks[tick.ID] = *cloneTick(*tick)
	return nil
}

func (b *BatchStore) FeeTierTickSpacing(ctx context.Context, feeTier uint32) (int32, bool, error) {
	for _, c := range b.layers() {
		if spacing, ok := c.FeeTiers[feeTier]; ok {
			return spacing, true, nil
		}
	}
	return b.base.FeeTierTickSpacing(ctx, feeTier)
}

func (b *BatchStore) SaveFeeTierTickSpacing(_ context.Context, feeTier uint32, tickSpacing int32) error {
	b.event.FeeTiers[feeTier] = tickSpacing
	return nil
}
