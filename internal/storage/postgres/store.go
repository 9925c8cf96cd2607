package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"positionScope/internal/model"
	"positionScope/internal/store"
)

// Store persists the read model in Postgres. Numeric columns travel as text so
// decimals and 256-bit integers keep every digit.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Token(ctx context.Context, id common.Address) (*model.Token, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, symbol, name, decimals, derived_eth::text, whitelist_pools,
			total_value_locked::text, volume_usd::text
		FROM tokens WHERE id = $1
	`, addrKey(id))

	var (
		rawID, symbol, name string
		decimals            int16
		derived, tvl, vol   string
		whitelist           []string
	)
	if err := row.Scan(&rawID, &symbol, &name, &decimals, &derived, &whitelist, &tvl, &vol); err != nil {
		return notFound[model.Token](err)
	}
	token := &model.Token{
		ID:             common.HexToAddress(rawID),
		Symbol:         symbol,
		Name:           name,
		Decimals:       uint8(decimals),
		WhitelistPools: make([]common.Address, 0, len(whitelist)),
	}
	for _, pool := range whitelist {
		token.WhitelistPools = append(token.WhitelistPools, common.HexToAddress(pool))
	}
	var err error
	if token.DerivedETH, err = parseDecimal("derived_eth", derived); err != nil {
		return nil, false, err
	}
	if token.TotalValueLocked, err = parseDecimal("total_value_locked", tvl); err != nil {
		return nil, false, err
	}
	if token.VolumeUSD, err = parseDecimal("volume_usd", vol); err != nil {
		return nil, false, err
	}
	return token, true, nil
}

func queueToken(batch *pgx.Batch, token *model.Token) {
	whitelist := make([]string, 0, len(token.WhitelistPools))
	for _, pool := range token.WhitelistPools {
		whitelist = append(whitelist, addrKey(pool))
	}
	batch.Queue(`
		INSERT INTO tokens (
			id, symbol, name, decimals, derived_eth, whitelist_pools, total_value_locked, volume_usd, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric, $8::numeric, now())
		ON CONFLICT (id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			decimals = EXCLUDED.decimals,
			derived_eth = EXCLUDED.derived_eth,
			whitelist_pools = EXCLUDED.whitelist_pools,
			total_value_locked = EXCLUDED.total_value_locked,
			volume_usd = EXCLUDED.volume_usd,
			updated_at = now()
	`,
		addrKey(token.ID),
		token.Symbol,
		token.Name,
		int16(token.Decimals),
		token.DerivedETH.String(),
		whitelist,
		token.TotalValueLocked.String(),
		token.VolumeUSD.String(),
	)
}

func (s *Store) Pool(ctx context.Context, id common.Address) (*model.Pool, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, token0, token1, fee_tier, tick_spacing, liquidity::text, sqrt_price::text, tick,
			token0_price::text, token1_price::text,
			total_value_locked_token0::text, total_value_locked_token1::text, volume_usd::text,
			created_at_timestamp, created_at_block_number
		FROM pools WHERE id = $1
	`, addrKey(id))

	var (
		rawID, token0, token1      string
		feeTier, tickSpacing       int32
		liquidity, sqrtPrice       string
		tick                       *int32
		price0, price1, tvl0, tvl1 string
		vol                        string
		createdTS, createdBlock    int64
	)
	if err := row.Scan(&rawID, &token0, &token1, &feeTier, &tickSpacing, &liquidity, &sqrtPrice, &tick,
		&price0, &price1, &tvl0, &tvl1, &vol, &createdTS, &createdBlock); err != nil {
		return notFound[model.Pool](err)
	}

	pool := &model.Pool{
		ID:                   common.HexToAddress(rawID),
		Token0:               common.HexToAddress(token0),
		Token1:               common.HexToAddress(token1),
		FeeTier:              uint32(feeTier),
		TickSpacing:          tickSpacing,
		Tick:                 tick,
		CreatedAtTimestamp:   uint64(createdTS),
		CreatedAtBlockNumber: uint64(createdBlock),
	}
	var err error
	if pool.Liquidity, err = parseBig("liquidity", liquidity); err != nil {
		return nil, false, err
	}
	if pool.SqrtPrice, err = parseBig("sqrt_price", sqrtPrice); err != nil {
		return nil, false, err
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"token0_price", price0, &pool.Token0Price},
		{"token1_price", price1, &pool.Token1Price},
		{"total_value_locked_token0", tvl0, &pool.TotalValueLockedToken0},
		{"total_value_locked_token1", tvl1, &pool.TotalValueLockedToken1},
		{"volume_usd", vol, &pool.VolumeUSD},
	} {
		if *f.dst, err = parseDecimal(f.name, f.raw); err != nil {
			return nil, false, err
		}
	}
	return pool, true, nil
}

func queuePool(batch *pgx.Batch, pool *model.Pool) {
	batch.Queue(`
		INSERT INTO pools (
			id, token0, token1, fee_tier, tick_spacing, liquidity, sqrt_price, tick,
			token0_price, token1_price, total_value_locked_token0, total_value_locked_token1, volume_usd,
			created_at_timestamp, created_at_block_number, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8,$9::numeric,$10::numeric,$11::numeric,$12::numeric,$13::numeric,$14,$15,now())
		ON CONFLICT (id) DO UPDATE SET
			liquidity = EXCLUDED.liquidity,
			sqrt_price = EXCLUDED.sqrt_price,
			tick = EXCLUDED.tick,
			token0_price = EXCLUDED.token0_price,
			token1_price = EXCLUDED.token1_price,
			total_value_locked_token0 = EXCLUDED.total_value_locked_token0,
			total_value_locked_token1 = EXCLUDED.total_value_locked_token1,
			volume_usd = EXCLUDED.volume_usd,
			updated_at = now()
	`,
		addrKey(pool.ID),
		addrKey(pool.Token0),
		addrKey(pool.Token1),
		int32(pool.FeeTier),
		pool.TickSpacing,
		bigString(pool.Liquidity),
		bigString(pool.SqrtPrice),
		pool.Tick,
		pool.Token0Price.String(),
		pool.Token1Price.String(),
		pool.TotalValueLockedToken0.String(),
		pool.TotalValueLockedToken1.String(),
		pool.VolumeUSD.String(),
		int64(pool.CreatedAtTimestamp),
		int64(pool.CreatedAtBlockNumber),
	)
}

func (s *Store) Bundle(ctx context.Context) (*model.Bundle, bool, error) {
	var price string
	row := s.pool.QueryRow(ctx, `SELECT eth_price_usd::text FROM bundles WHERE id = $1`, model.BundleID)
	if err := row.Scan(&price); err != nil {
		return notFound[model.Bundle](err)
	}
	value, err := parseDecimal("eth_price_usd", price)
	if err != nil {
		return nil, false, err
	}
	return &model.Bundle{ID: model.BundleID, ETHPriceUSD: value}, true, nil
}

func queueBundle(batch *pgx.Batch, bundle *model.Bundle) {
	batch.Queue(`
		INSERT INTO bundles (id, eth_price_usd, updated_at)
		VALUES ($1, $2::numeric, now())
		ON CONFLICT (id) DO UPDATE
		SET eth_price_usd = EXCLUDED.eth_price_usd, updated_at = now()
	`, model.BundleID, bundle.ETHPriceUSD.String())
}

func (s *Store) Position(ctx context.Context, id string) (*model.Position, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner, pool, token0, token1, tick_lower, tick_upper, liquidity::text,
			deposited_token0::text, deposited_token1::text, withdrawn_token0::text, withdrawn_token1::text,
			collected_token0::text, collected_token1::text, collected_fees_token0::text, collected_fees_token1::text,
			transaction, fee_growth_inside0_last_x128::text, fee_growth_inside1_last_x128::text
		FROM positions WHERE id = $1
	`, id)

	var (
		rawID, owner, pool, token0, token1, lower, upper, tx string
		liquidity, growth0, growth1                          string
		dep0, dep1, wd0, wd1, col0, col1, fee0, fee1         string
	)
	if err := row.Scan(&rawID, &owner, &pool, &token0, &token1, &lower, &upper, &liquidity,
		&dep0, &dep1, &wd0, &wd1, &col0, &col1, &fee0, &fee1, &tx, &growth0, &growth1); err != nil {
		return notFound[model.Position](err)
	}

	position := &model.Position{
		ID:          rawID,
		Owner:       common.HexToAddress(owner),
		Pool:        common.HexToAddress(pool),
		Token0:      common.HexToAddress(token0),
		Token1:      common.HexToAddress(token1),
		TickLower:   lower,
		TickUpper:   upper,
		Transaction: common.HexToHash(tx),
	}
	var err error
	if position.Liquidity, err = parseBig("liquidity", liquidity); err != nil {
		return nil, false, err
	}
	if position.FeeGrowthInside0LastX128, err = parseU256("fee_growth_inside0_last_x128", growth0); err != nil {
		return nil, false, err
	}
	if position.FeeGrowthInside1LastX128, err = parseU256("fee_growth_inside1_last_x128", growth1); err != nil {
		return nil, false, err
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"deposited_token0", dep0, &position.DepositedToken0},
		{"deposited_token1", dep1, &position.DepositedToken1},
		{"withdrawn_token0", wd0, &position.WithdrawnToken0},
		{"withdrawn_token1", wd1, &position.WithdrawnToken1},
		{"collected_token0", col0, &position.CollectedToken0},
		{"collected_token1", col1, &position.CollectedToken1},
		{"collected_fees_token0", fee0, &position.CollectedFeesToken0},
		{"collected_fees_token1", fee1, &position.CollectedFeesToken1},
	} {
		if *f.dst, err = parseDecimal(f.name, f.raw); err != nil {
			return nil, false, err
		}
	}
	return position, true, nil
}

func queuePosition(batch *pgx.Batch, position *model.Position) {
	batch.Queue(`
		INSERT INTO positions (
			id, owner, pool, token0, token1, tick_lower, tick_upper, liquidity,
			deposited_token0, deposited_token1, withdrawn_token0, withdrawn_token1,
			collected_token0, collected_token1, collected_fees_token0, collected_fees_token1,
			transaction, fee_growth_inside0_last_x128, fee_growth_inside1_last_x128, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8::numeric,
			$9::numeric,$10::numeric,$11::numeric,$12::numeric,
			$13::numeric,$14::numeric,$15::numeric,$16::numeric,
			$17,$18::numeric,$19::numeric,now()
		)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			liquidity = EXCLUDED.liquidity,
			deposited_token0 = EXCLUDED.deposited_token0,
			deposited_token1 = EXCLUDED.deposited_token1,
			withdrawn_token0 = EXCLUDED.withdrawn_token0,
			withdrawn_token1 = EXCLUDED.withdrawn_token1,
			collected_token0 = EXCLUDED.collected_token0,
			collected_token1 = EXCLUDED.collected_token1,
			collected_fees_token0 = EXCLUDED.collected_fees_token0,
			collected_fees_token1 = EXCLUDED.collected_fees_token1,
			transaction = EXCLUDED.transaction,
			fee_growth_inside0_last_x128 = EXCLUDED.fee_growth_inside0_last_x128,
			fee_growth_inside1_last_x128 = EXCLUDED.fee_growth_inside1_last_x128,
			updated_at = now()
	`,
		position.ID,
		addrKey(position.Owner),
		addrKey(position.Pool),
		addrKey(position.Token0),
		addrKey(position.Token1),
		position.TickLower,
		position.TickUpper,
		bigString(position.Liquidity),
		position.DepositedToken0.String(),
		position.DepositedToken1.String(),
		position.WithdrawnToken0.String(),
		position.WithdrawnToken1.String(),
		position.CollectedToken0.String(),
		position.CollectedToken1.String(),
		position.CollectedFeesToken0.String(),
		position.CollectedFeesToken1.String(),
		hashKey(position.Transaction),
		u256String(position.FeeGrowthInside0LastX128),
		u256String(position.FeeGrowthInside1LastX128),
	)
}

func (s *Store) PositionSnapshot(ctx context.Context, id string) (*model.PositionSnapshot, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner, pool, position, block_number, timestamp, liquidity::text,
			deposited_token0::text, deposited_token1::text, withdrawn_token0::text, withdrawn_token1::text,
			collected_fees_token0::text, collected_fees_token1::text, transaction,
			fee_growth_inside0_last_x128::text, fee_growth_inside1_last_x128::text
		FROM position_snapshots WHERE id = $1
	`, id)

	var (
		rawID, owner, pool, position, tx string
		block, ts                        int64
		liquidity, growth0, growth1      string
		dep0, dep1, wd0, wd1, fee0, fee1 string
	)
	if err := row.Scan(&rawID, &owner, &pool, &position, &block, &ts, &liquidity,
		&dep0, &dep1, &wd0, &wd1, &fee0, &fee1, &tx, &growth0, &growth1); err != nil {
		return notFound[model.PositionSnapshot](err)
	}

	snapshot := &model.PositionSnapshot{
		ID:          rawID,
		Owner:       common.HexToAddress(owner),
		Pool:        common.HexToAddress(pool),
		Position:    position,
		BlockNumber: uint64(block),
		Timestamp:   uint64(ts),
		Transaction: common.HexToHash(tx),
	}
	var err error
	if snapshot.Liquidity, err = parseBig("liquidity", liquidity); err != nil {
		return nil, false, err
	}
	if snapshot.FeeGrowthInside0LastX128, err = parseU256("fee_growth_inside0_last_x128", growth0); err != nil {
		return nil, false, err
	}
	if snapshot.FeeGrowthInside1LastX128, err = parseU256("fee_growth_inside1_last_x128", growth1); err != nil {
		return nil, false, err
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"deposited_token0", dep0, &snapshot.DepositedToken0},
		{"deposited_token1", dep1, &snapshot.DepositedToken1},
		{"withdrawn_token0", wd0, &snapshot.WithdrawnToken0},
		{"withdrawn_token1", wd1, &snapshot.WithdrawnToken1},
		{"collected_fees_token0", fee0, &snapshot.CollectedFeesToken0},
		{"collected_fees_token1", fee1, &snapshot.CollectedFeesToken1},
	} {
		if *f.dst, err = parseDecimal(f.name, f.raw); err != nil {
			return nil, false, err
		}
	}
	return snapshot, true, nil
}

// queueSnapshot writes a snapshot once. A redelivered snapshot keeps its first value.
func queueSnapshot(batch *pgx.Batch, snapshot *model.PositionSnapshot) {
	batch.Queue(`
		INSERT INTO position_snapshots (
			id, owner, pool, position, block_number, timestamp, liquidity,
			deposited_token0, deposited_token1, withdrawn_token0, withdrawn_token1,
			collected_fees_token0, collected_fees_token1, transaction,
			fee_growth_inside0_last_x128, fee_growth_inside1_last_x128
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7::numeric,
			$8::numeric,$9::numeric,$10::numeric,$11::numeric,
			$12::numeric,$13::numeric,$14,
			$15::numeric,$16::numeric
		)
		ON CONFLICT (id) DO NOTHING
	`,
		snapshot.ID,
		addrKey(snapshot.Owner),
		addrKey(snapshot.Pool),
		snapshot.Position,
		int64(snapshot.BlockNumber),
		int64(snapshot.Timestamp),
		bigString(snapshot.Liquidity),
		snapshot.DepositedToken0.String(),
		snapshot.DepositedToken1.String(),
		snapshot.WithdrawnToken0.String(),
		snapshot.WithdrawnToken1.String(),
		snapshot.CollectedFeesToken0.String(),
		snapshot.CollectedFeesToken1.String(),
		hashKey(snapshot.Transaction),
		u256String(snapshot.FeeGrowthInside0LastX128),
		u256String(snapshot.FeeGrowthInside1LastX128),
	)
}

func (s *Store) Tick(ctx context.Context, id string) (*model.Tick, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, pool, tick_idx, created_at_timestamp, created_at_block_number,
			price0::text, price1::text, liquidity_gross::text, liquidity_net::text, liquidity_provider_count,
			volume_token0::text, volume_token1::text, volume_usd::text, untracked_volume_usd::text, fees_usd::text,
			collected_fees_token0::text, collected_fees_token1::text, collected_fees_usd::text,
			fee_growth_outside0_x128::text, fee_growth_outside1_x128::text
		FROM ticks WHERE id = $1
	`, id)

	var (
		rawID, pool                            string
		tickIdx                                int32
		createdTS, createdBlock, providers     int64
		price0, price1, gross, net             string
		vol0, vol1, volUSD, untracked, feesUSD string
		col0, col1, colUSD, out0, out1         string
	)
	if err := row.Scan(&rawID, &pool, &tickIdx, &createdTS, &createdBlock,
		&price0, &price1, &gross, &net, &providers,
		&vol0, &vol1, &volUSD, &untracked, &feesUSD,
		&col0, &col1, &colUSD, &out0, &out1); err != nil {
		return notFound[model.Tick](err)
	}

	tick := &model.Tick{
		ID:                     rawID,
		Pool:                   common.HexToAddress(pool),
		TickIdx:                tickIdx,
		CreatedAtTimestamp:     uint64(createdTS),
		CreatedAtBlockNumber:   uint64(createdBlock),
		LiquidityProviderCount: uint64(providers),
	}
	var err error
	if tick.LiquidityGross, err = parseBig("liquidity_gross", gross); err != nil {
		return nil, false, err
	}
	if tick.LiquidityNet, err = parseBig("liquidity_net", net); err != nil {
		return nil, false, err
	}
	if tick.FeeGrowthOutside0X128, err = parseU256("fee_growth_outside0_x128", out0); err != nil {
		return nil, false, err
	}
	if tick.FeeGrowthOutside1X128, err = parseU256("fee_growth_outside1_x128", out1); err != nil {
		return nil, false, err
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"price0", price0, &tick.Price0},
		{"price1", price1, &tick.Price1},
		{"volume_token0", vol0, &tick.VolumeToken0},
		{"volume_token1", vol1, &tick.VolumeToken1},
		{"volume_usd", volUSD, &tick.VolumeUSD},
		{"untracked_volume_usd", untracked, &tick.UntrackedVolumeUSD},
		{"fees_usd", feesUSD, &tick.FeesUSD},
		{"collected_fees_token0", col0, &tick.CollectedFeesToken0},
		{"collected_fees_token1", col1, &tick.CollectedFeesToken1},
		{"collected_fees_usd", colUSD, &tick.CollectedFeesUSD},
	} {
		if *f.dst, err = parseDecimal(f.name, f.raw); err != nil {
			return nil, false, err
		}
	}
	return tick, true, nil
}

func queueTick(batch *pgx.Batch, tick *model.Tick) {
	batch.Queue(`
		INSERT INTO ticks (
			id, pool, tick_idx, created_at_timestamp, created_at_block_number,
			price0, price1, liquidity_gross, liquidity_net, liquidity_provider_count,
			volume_token0, volume_token1, volume_usd, untracked_volume_usd, fees_usd,
			collected_fees_token0, collected_fees_token1, collected_fees_usd,
			fee_growth_outside0_x128, fee_growth_outside1_x128
		) VALUES (
			$1,$2,$3,$4,$5,
			$6::numeric,$7::numeric,$8::numeric,$9::numeric,$10,
			$11::numeric,$12::numeric,$13::numeric,$14::numeric,$15::numeric,
			$16::numeric,$17::numeric,$18::numeric,
			$19::numeric,$20::numeric
		)
		ON CONFLICT (id) DO UPDATE SET
			liquidity_gross = EXCLUDED.liquidity_gross,
			liquidity_net = EXCLUDED.liquidity_net,
			liquidity_provider_count = EXCLUDED.liquidity_provider_count,
			volume_token0 = EXCLUDED.volume_token0,
			volume_token1 = EXCLUDED.volume_token1,
			volume_usd = EXCLUDED.volume_usd,
			untracked_volume_usd = EXCLUDED.untracked_volume_usd,
			fees_usd = EXCLUDED.fees_usd,
			collected_fees_token0 = EXCLUDED.collected_fees_token0,
			collected_fees_token1 = EXCLUDED.collected_fees_token1,
			collected_fees_usd = EXCLUDED.collected_fees_usd,
			fee_growth_outside0_x128 = EXCLUDED.fee_growth_outside0_x128,
			fee_growth_outside1_x128 = EXCLUDED.fee_growth_outside1_x128
	`,
		tick.ID,
		addrKey(tick.Pool),
		tick.TickIdx,
		int64(tick.CreatedAtTimestamp),
		int64(tick.CreatedAtBlockNumber),
		tick.Price0.String(),
		tick.Price1.String(),
		bigString(tick.LiquidityGross),
		bigString(tick.LiquidityNet),
		int64(tick.LiquidityProviderCount),
		tick.VolumeToken0.String(),
		tick.VolumeToken1.String(),
		tick.VolumeUSD.String(),
		tick.UntrackedVolumeUSD.String(),
		tick.FeesUSD.String(),
		tick.CollectedFeesToken0.String(),
		tick.CollectedFeesToken1.String(),
		tick.CollectedFeesUSD.String(),
		u256String(tick.FeeGrowthOutside0X128),
		u256String(tick.FeeGrowthOutside1X128),
	)
}

func (s *Store) FeeTierTickSpacing(ctx context.Context, feeTier uint32) (int32, bool, error) {
	var spacing int32
	row := s.pool.QueryRow(ctx, `SELECT tick_spacing FROM fee_tier_tick_spacing WHERE fee_tier = $1`, int32(feeTier))
	if err := row.Scan(&spacing); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return spacing, true, nil
}

func queueFeeTier(batch *pgx.Batch, feeTier uint32, tickSpacing int32) {
	batch.Queue(`
		INSERT INTO fee_tier_tick_spacing (fee_tier, tick_spacing)
		VALUES ($1, $2)
		ON CONFLICT (fee_tier) DO UPDATE SET tick_spacing = EXCLUDED.tick_spacing
	`, int32(feeTier), tickSpacing)
}

func queueCursor(batch *pgx.Batch, name string, cursor store.Cursor) {
	batch.Queue(`
		INSERT INTO indexer_state (name, last_block, last_log_index, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET last_block = EXCLUDED.last_block, last_log_index = EXCLUDED.last_log_index, updated_at = now()
	`, name, int64(cursor.BlockNumber), int64(cursor.LogIndex))
}

func notFound[T any](err error) (*T, bool, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	return nil, false, err
}

func addrKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func hashKey(hash common.Hash) string {
	return strings.ToLower(hash.Hex())
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func u256String(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.ToBig().String()
}

func parseDecimal(column, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", column, raw, err)
	}
	return d, nil
}

func parseBig(column, raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("parse %s %q: invalid integer", column, raw)
	}
	return v, nil
}

func parseU256(column, raw string) (*uint256.Int, error) {
	v, err := parseBig(column, raw)
	if err != nil {
		return nil, err
	}
	out, overflow := uint256.FromBig(v)
	if overflow || v.Sign() < 0 {
		return nil, fmt.Errorf("parse %s %q: out of uint256 range", column, raw)
	}
	return out, nil
}
