package store

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"positionScope/internal/model"
)

// MemoryStore keeps entities in process memory. Values are copied on the way in
// and out so callers never share mutable state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	tokens      map[common.Address]model.Token
	pools       map[common.Address]model.Pool
	bundle      *model.Bundle
	positions   map[string]model.Position
	snapshots   map[string]model.PositionSnapshot
	ticks       map[string]model.Tick
	tickSpacing map[uint32]int32
	cursor      *Cursor
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:      make(map[common.Address]model.Token),
		pools:       make(map[common.Address]model.Pool),
		positions:   make(map[string]model.Position),
		snapshots:   make(map[string]model.PositionSnapshot),
		ticks:       make(map[string]model.Tick),
		tickSpacing: make(map[uint32]int32),
	}
}

func (s *MemoryStore) Token(_ context.Context, id common.Address) (*model.Token, bool, error) {
	s.mu.RLock()
	token, ok := s.tokens[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return cloneToken(token), true, nil
}

func (s *MemoryStore) SaveToken(_ context.Context, token *model.Token) error {
	copied := cloneToken(*token)
	s.mu.Lock()
	s.tokens[token.ID] = *copied
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Pool(_ context.Context, id common.Address) (*model.Pool, bool, error) {
	s.mu.RLock()
	pool, ok := s.pools[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return clonePool(pool), true, nil
}

func (s *MemoryStore) SavePool(_ context.Context, pool *model.Pool) error {
	copied := clonePool(*pool)
	s.mu.Lock()
	s.pools[pool.ID] = *copied
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Bundle(_ context.Context) (*model.Bundle, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bundle == nil {
		return nil, false, nil
	}
	bundle := *s.bundle
	return &bundle, true, nil
}

func (s *MemoryStore) SaveBundle(_ context.Context, bundle *model.Bundle) error {
	copied := *bundle
	copied.ID = model.BundleID
	s.mu.Lock()
	s.bundle = &copied
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Position(_ context.Context, id string) (*model.Position, bool, error) {
	s.mu.RLock()
	pos, ok := s.positions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return clonePosition(pos), true, nil
}

func (s *MemoryStore) SavePosition(_ context.Context, position *model.Position) error {
	copied := clonePosition(*position)
	s.mu.Lock()
	s.positions[position.ID] = *copied
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) PositionSnapshot(_ context.Context, id string) (*model.PositionSnapshot, bool, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return cloneSnapshot(snap), true, nil
}

func (s *MemoryStore) SavePositionSnapshot(_ context.Context, snapshot *model.PositionSnapshot) error {
	copied := cloneSnapshot(*snapshot)
	s.mu.Lock()
	s.snapshots[snapshot.ID] = *copied
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Tick(_ context.Context, id string) (*model.Tick, bool, error) {
	s.mu.RLock()
	tick, ok := s.ticks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return cloneTick(tick), true, nil
}

func (s *MemoryStore) SaveTick(_ context.Context, tick *model.Tick) error {
	copied := cloneTick(*tick)
	s.mu.Lock()
	s.ticks[tick.ID] = *copied
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) FeeTierTickSpacing(_ context.Context, feeTier uint32) (int32, bool, error) {
	s.mu.RLock()
	spacing, ok := s.tickSpacing[feeTier]
	s.mu.RUnlock()
	return spacing, ok, nil
}

func (s *MemoryStore) SaveFeeTierTickSpacing(_ context.Context, feeTier uint32, tickSpacing int32) error {
	s.mu.Lock()
	s.tickSpacing[feeTier] = tickSpacing
	s.mu.Unlock()
	return nil
}

// LoadCursor returns the cursor of the last Commit.
func (s *MemoryStore) LoadCursor(_ context.Context) (Cursor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cursor == nil {
		return Cursor{}, false, nil
	}
	return *s.cursor, true, nil
}

// Commit applies every change and the cursor under one lock.
func (s *MemoryStore) Commit(_ context.Context, changes *Changes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, token := range changes.Tokens {
		s.tokens[id] = *cloneToken(token)
	}
	for id, pool := range changes.Pools {
		s.pools[id] = *clonePool(pool)
	}
	if changes.Bundle != nil {
		bundle := *changes.Bundle
		s.bundle = &bundle
	}
	for id, pos := range changes.Positions {
		s.positions[id] = *clonePosition(pos)
	}
	for id, snap := range changes.Snapshots {
		if _, ok := s.snapshots[id]; !ok {
			s.snapshots[id] = *cloneSnapshot(snap)
		}
	}
	for id, tick := range changes.Ticks {
		s.ticks[id] = *cloneTick(tick)
	}
	for fee, spacing := range changes.FeeTiers {
		s.tickSpacing[fee] = spacing
	}
	if changes.Cursor != nil {
		cursor := *changes.Cursor
		s.cursor = &cursor
	}
	return nil
}

// SnapshotCount returns the number of stored position snapshots.
func (s *MemoryStore) SnapshotCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// PositionCount returns the number of stored positions.
func (s *MemoryStore) PositionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

func cloneToken(t model.Token) *model.Token {
	t.WhitelistPools = append([]common.Address(nil), t.WhitelistPools...)
	return &t
}

func clonePool(p model.Pool) *model.Pool {
	p.Liquidity = cloneBig(p.Liquidity)
	p.SqrtPrice = cloneBig(p.SqrtPrice)
	if p.Tick != nil {
		tick := *p.Tick
		p.Tick = &tick
	}
	return &p
}

func clonePosition(p model.Position) *model.Position {
	p.Liquidity = cloneBig(p.Liquidity)
	p.FeeGrowthInside0LastX128 = cloneU256(p.FeeGrowthInside0LastX128)
	p.FeeGrowthInside1LastX128 = cloneU256(p.FeeGrowthInside1LastX128)
	return &p
}

func cloneSnapshot(s model.PositionSnapshot) *model.PositionSnapshot {
	s.Liquidity = cloneBig(s.Liquidity)
	s.FeeGrowthInside0LastX128 = cloneU256(s.FeeGrowthInside0LastX128)
	s.FeeGrowthInside1LastX128 = cloneU256(s.FeeGrowthInside1LastX128)
	return &s
}

func cloneTick(t model.Tick) *model.Tick {
	t.LiquidityGross = cloneBig(t.LiquidityGross)
	t.LiquidityNet = cloneBig(t.LiquidityNet)
	t.FeeGrowthOutside0X128 = cloneU256(t.FeeGrowthOutside0X128)
	t.FeeGrowthOutside1X128 = cloneU256(t.FeeGrowthOutside1X128)
	return &t
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func cloneU256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
