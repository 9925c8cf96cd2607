// Package pool folds factory and pool events into Pool, Token, Tick and
// Bundle entities. Prices come from the pricing oracle and ticks from the
// tick factory.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"positionScope/internal/fixedpoint"
	"positionScope/internal/model"
	"positionScope/internal/pricing"
	"positionScope/internal/store"
	"positionScope/internal/tick"
)

// TokenMetaFetcher reads ERC20 metadata for tokens seen for the first time.
type TokenMetaFetcher interface {
	TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error)
}

type Handler struct {
	store   store.Store
	oracle  *pricing.Oracle
	spacing *tick.SpacingTable
	tokens  TokenMetaFetcher
	logger  *zap.Logger
}

func NewHandler(st store.Store, oracle *pricing.Oracle, spacing *tick.SpacingTable, tokens TokenMetaFetcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:   st,
		oracle:  oracle,
		spacing: spacing,
		tokens:  tokens,
		logger:  logger,
	}
}

// HandleFeeAmountEnabled registers the tick spacing of a new fee tier.
func (h *Handler) HandleFeeAmountEnabled(ctx context.Context, ev FeeAmountEnabled) error {
	if tick.Known(ev.Fee) {
		return nil
	}
	h.logger.Info("fee tier enabled", zap.Uint32("fee", ev.Fee), zap.Int32("tick_spacing", ev.TickSpacing))
	return h.spacing.Register(ctx, ev.Fee, ev.TickSpacing)
}

func (h *Handler) HandlePoolCreated(ctx context.Context, ev PoolCreated) error {
	spacing, err := h.spacing.Spacing(ctx, ev.Fee)
	if err != nil {
		return fmt.Errorf("pool %s: %w", ev.Pool.Hex(), err)
	}
	if spacing != ev.TickSpacing {
		h.logger.Warn("tick spacing mismatch",
			zap.String("pool", ev.Pool.Hex()),
			zap.Uint32("fee", ev.Fee),
			zap.Int32("table", spacing),
			zap.Int32("event", ev.TickSpacing),
		)
	}

	if _, ok, err := h.store.Bundle(ctx); err != nil {
		return fmt.Errorf("load bundle: %w", err)
	} else if !ok {
		if err := h.store.SaveBundle(ctx, &model.Bundle{ID: model.BundleID, ETHPriceUSD: fixedpoint.Zero}); err != nil {
			return fmt.Errorf("save bundle: %w", err)
		}
	}

	token0, err := h.loadOrCreateToken(ctx, ev.Token0)
	if err != nil {
		return err
	}
	token1, err := h.loadOrCreateToken(ctx, ev.Token1)
	if err != nil {
		return err
	}

	if h.oracle.IsWhitelisted(token0.ID) {
		token1.WhitelistPools = append(token1.WhitelistPools, ev.Pool)
	}
	if h.oracle.IsWhitelisted(token1.ID) {
		token0.WhitelistPools = append(token0.WhitelistPools, ev.Pool)
	}

	p := &model.Pool{
		ID:                     ev.Pool,
		Token0:                 token0.ID,
		Token1:                 token1.ID,
		FeeTier:                ev.Fee,
		TickSpacing:            spacing,
		Liquidity:              new(big.Int),
		SqrtPrice:              new(big.Int),
		Token0Price:            fixedpoint.Zero,
		Token1Price:            fixedpoint.Zero,
		TotalValueLockedToken0: fixedpoint.Zero,
		TotalValueLockedToken1: fixedpoint.Zero,
		VolumeUSD:              fixedpoint.Zero,
		CreatedAtTimestamp:     ev.Timestamp,
		CreatedAtBlockNumber:   ev.Number,
	}
	if err := h.store.SavePool(ctx, p); err != nil {
		return fmt.Errorf("save pool %s: %w", p.ID.Hex(), err)
	}
	if err := h.saveTokens(ctx, token0, token1); err != nil {
		return err
	}
	h.logger.Debug("pool created", zap.String("pool", p.ID.Hex()), zap.Uint32("fee", p.FeeTier))
	return nil
}

func (h *Handler) HandleInitialize(ctx context.Context, ev Initialize) error {
	p, token0, token1, err := h.loadPool(ctx, ev.Pool)
	if err != nil {
		return err
	}
	idx := ev.Tick
	p.SqrtPrice = new(big.Int).Set(ev.SqrtPriceX96)
	p.Tick = &idx
	p.Token0Price, p.Token1Price = pricing.SqrtPriceToPrices(ev.SqrtPriceX96, token0.Decimals, token1.Decimals)
	if err := h.store.SavePool(ctx, p); err != nil {
		return fmt.Errorf("save pool %s: %w", p.ID.Hex(), err)
	}
	if err := h.refreshPrices(ctx, ev.Number, token0, token1); err != nil {
		return err
	}
	return h.saveTokens(ctx, token0, token1)
}

func (h *Handler) HandleMint(ctx context.Context, ev Mint) error {
	return h.modifyLiquidity(ctx, ev, 1)
}

func (h *Handler) HandleBurn(ctx context.Context, ev Burn) error {
	return h.modifyLiquidity(ctx, ev, -1)
}

// modifyLiquidity applies a mint (sign 1) or burn (sign -1) to the pool, its
// tokens and the two boundary ticks.
func (h *Handler) modifyLiquidity(ctx context.Context, ev Mint, sign int) error {
	p, token0, token1, err := h.loadPool(ctx, ev.Pool)
	if err != nil {
		return err
	}
	amount0 := fixedpoint.ScaleByDecimals(ev.Amount0, token0.Decimals)
	amount1 := fixedpoint.ScaleByDecimals(ev.Amount1, token1.Decimals)
	liquidity := new(big.Int).Set(ev.Amount)
	if sign < 0 {
		amount0 = amount0.Neg()
		amount1 = amount1.Neg()
		liquidity.Neg(liquidity)
	}

	addLocked(p, token0, token1, amount0, amount1)
	if p.Tick != nil && ev.TickLower <= *p.Tick && *p.Tick < ev.TickUpper {
		p.Liquidity = new(big.Int).Add(p.Liquidity, liquidity)
	}

	lower, err := h.loadTick(ctx, p.ID, ev.TickLower, ev.Block, sign > 0)
	if err != nil {
		return err
	}
	upper, err := h.loadTick(ctx, p.ID, ev.TickUpper, ev.Block, sign > 0)
	if err != nil {
		return err
	}
	lower.LiquidityGross = new(big.Int).Add(lower.LiquidityGross, liquidity)
	lower.LiquidityNet = new(big.Int).Add(lower.LiquidityNet, liquidity)
	upper.LiquidityGross = new(big.Int).Add(upper.LiquidityGross, liquidity)
	upper.LiquidityNet = new(big.Int).Sub(upper.LiquidityNet, liquidity)

	for _, t := range []*model.Tick{lower, upper} {
		if err := h.store.SaveTick(ctx, t); err != nil {
			return fmt.Errorf("save tick %s: %w", t.ID, err)
		}
	}
	if err := h.store.SavePool(ctx, p); err != nil {
		return fmt.Errorf("save pool %s: %w", p.ID.Hex(), err)
	}
	return h.saveTokens(ctx, token0, token1)
}

// HandleSwap moves pool state to the post-swap price, reprices the bundle and
// both tokens, and accrues tracked volume.
func (h *Handler) HandleSwap(ctx context.Context, ev Swap) error {
	p, token0, token1, err := h.loadPool(ctx, ev.Pool)
	if err != nil {
		return err
	}
	amount0 := fixedpoint.ScaleByDecimals(ev.Amount0, token0.Decimals)
	amount1 := fixedpoint.ScaleByDecimals(ev.Amount1, token1.Decimals)

	addLocked(p, token0, token1, amount0, amount1)
	idx := ev.Tick
	p.Tick = &idx
	p.Liquidity = new(big.Int).Set(ev.Liquidity)
	p.SqrtPrice = new(big.Int).Set(ev.SqrtPriceX96)
	p.Token0Price, p.Token1Price = pricing.SqrtPriceToPrices(ev.SqrtPriceX96, token0.Decimals, token1.Decimals)
	if err := h.store.SavePool(ctx, p); err != nil {
		return fmt.Errorf("save pool %s: %w", p.ID.Hex(), err)
	}

	if err := h.refreshPrices(ctx, ev.Number, token0, token1); err != nil {
		return err
	}

	tracked, err := h.oracle.TrackedAmountUSD(ctx, amount0.Abs(), token0, amount1.Abs(), token1)
	if err != nil {
		return fmt.Errorf("tracked volume for pool %s: %w", p.ID.Hex(), err)
	}
	volume := fixedpoint.SafeDiv(tracked, two)
	p.VolumeUSD = p.VolumeUSD.Add(volume)
	token0.VolumeUSD = token0.VolumeUSD.Add(volume)
	token1.VolumeUSD = token1.VolumeUSD.Add(volume)

	if err := h.store.SavePool(ctx, p); err != nil {
		return fmt.Errorf("save pool %s: %w", p.ID.Hex(), err)
	}
	return h.saveTokens(ctx, token0, token1)
}

// HandleCollect removes collected amounts from the locked totals.
func (h *Handler) HandleCollect(ctx context.Context, ev Collect) error {
	p, token0, token1, err := h.loadPool(ctx, ev.Pool)
	if err != nil {
		return err
	}
	amount0 := fixedpoint.ScaleByDecimals(ev.Amount0, token0.Decimals)
	amount1 := fixedpoint.ScaleByDecimals(ev.Amount1, token1.Decimals)
	addLocked(p, token0, token1, amount0.Neg(), amount1.Neg())

	if err := h.store.SavePool(ctx, p); err != nil {
		return fmt.Errorf("save pool %s: %w", p.ID.Hex(), err)
	}
	return h.saveTokens(ctx, token0, token1)
}

var two = decimal.NewFromInt(2)

// refreshPrices updates the bundle and then both tokens' derived prices. Both
// tokens are priced against the stored state of their counterparty.
func (h *Handler) refreshPrices(ctx context.Context, blockNumber uint64, token0, token1 *model.Token) error {
	bundle, err := store.MustBundle(ctx, h.store)
	if err != nil {
		return err
	}
	price, err := h.oracle.NumeraireUSDPrice(ctx, blockNumber)
	if err != nil {
		return err
	}
	bundle.ETHPriceUSD = price
	if err := h.store.SaveBundle(ctx, bundle); err != nil {
		return fmt.Errorf("save bundle: %w", err)
	}

	derived0, err := h.oracle.DerivedPriceInNumeraire(ctx, token0, token1)
	if err != nil {
		return fmt.Errorf("price token %s: %w", token0.ID.Hex(), err)
	}
	derived1, err := h.oracle.DerivedPriceInNumeraire(ctx, token1, token0)
	if err != nil {
		return fmt.Errorf("price token %s: %w", token1.ID.Hex(), err)
	}
	token0.DerivedETH = derived0
	token1.DerivedETH = derived1
	return nil
}

// ErrUnknownPool is returned for pool events of a pool the factory never
// created, such as pools of another deployment sharing the event signatures.
var ErrUnknownPool = errors.New("pool not created by the factory")

func (h *Handler) loadPool(ctx context.Context, id common.Address) (*model.Pool, *model.Token, *model.Token, error) {
	p, ok, err := h.store.Pool(ctx, id)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load pool %s: %w", id.Hex(), err)
	}
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrUnknownPool, id.Hex())
	}
	token0, err := store.MustToken(ctx, h.store, p.Token0)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pool %s: %w", id.Hex(), err)
	}
	token1, err := store.MustToken(ctx, h.store, p.Token1)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pool %s: %w", id.Hex(), err)
	}
	return p, token0, token1, nil
}

// loadTick returns the stored tick, creating it when create is set.
func (h *Handler) loadTick(ctx context.Context, poolID common.Address, idx int32, block Block, create bool) (*model.Tick, error) {
	id := model.TickID(poolID, idx)
	t, ok, err := h.store.Tick(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load tick %s: %w", id, err)
	}
	if ok {
		return t, nil
	}
	if !create {
		return nil, &store.MissingError{Kind: "tick", ID: id}
	}
	return tick.CreateTick(id, idx, poolID, block.Timestamp, block.Number), nil
}

func (h *Handler) loadOrCreateToken(ctx context.Context, id common.Address) (*model.Token, error) {
	token, ok, err := h.store.Token(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load token %s: %w", id.Hex(), err)
	}
	if ok {
		return token, nil
	}
	meta, err := h.tokens.TokenMeta(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("token metadata %s: %w", id.Hex(), err)
	}
	token = meta.NewToken()
	token.ID = id
	return token, nil
}

func (h *Handler) saveTokens(ctx context.Context, tokens ...*model.Token) error {
	for _, token := range tokens {
		if err := h.store.SaveToken(ctx, token); err != nil {
			return fmt.Errorf("save token %s: %w", token.ID.Hex(), err)
		}
	}
	return nil
}

func addLocked(p *model.Pool, token0, token1 *model.Token, amount0, amount1 decimal.Decimal) {
	p.TotalValueLockedToken0 = p.TotalValueLockedToken0.Add(amount0)
	p.TotalValueLockedToken1 = p.TotalValueLockedToken1.Add(amount1)
	token0.TotalValueLocked = token0.TotalValueLocked.Add(amount0)
	token1.TotalValueLocked = token1.TotalValueLocked.Add(amount1)
}
