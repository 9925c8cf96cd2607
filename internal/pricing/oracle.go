// Package pricing derives token prices from pool state: square-root price
// decoding, the numeraire USD rate, per-token numeraire prices and USD-tracked
// trade amounts.
package pricing

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"positionScope/internal/fixedpoint"
	"positionScope/internal/model"
	"positionScope/internal/store"
)

var q192 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 192), 0)

// StablePool is the numeraire/USD reference pool in use from FromBlock onward.
// The numeraire must be token0 of the pool.
type StablePool struct {
	Pool      common.Address
	FromBlock uint64
}

// Config describes the pricing universe of a deployment.
type Config struct {
	Numeraire              common.Address
	Whitelist              []common.Address
	StablePools            []StablePool
	MinimumNumeraireLocked decimal.Decimal
}

// Oracle prices tokens against the numeraire using pools in the store.
type Oracle struct {
	numeraire   common.Address
	whitelist   map[common.Address]struct{}
	stablePools []StablePool
	minLocked   decimal.Decimal
	reader      store.Reader
}

func NewOracle(cfg Config, reader store.Reader) *Oracle {
	whitelist := make(map[common.Address]struct{}, len(cfg.Whitelist))
	for _, addr := range cfg.Whitelist {
		whitelist[addr] = struct{}{}
	}
	pools := append([]StablePool(nil), cfg.StablePools...)
	sort.SliceStable(pools, func(i, j int) bool { return pools[i].FromBlock < pools[j].FromBlock })

	return &Oracle{
		numeraire:   cfg.Numeraire,
		whitelist:   whitelist,
		stablePools: pools,
		minLocked:   cfg.MinimumNumeraireLocked,
		reader:      reader,
	}
}

// Numeraire returns the reference asset.
func (o *Oracle) Numeraire() common.Address {
	return o.numeraire
}

// IsWhitelisted reports whether the token is a pricing reference.
func (o *Oracle) IsWhitelisted(token common.Address) bool {
	_, ok := o.whitelist[token]
	return ok
}

// SqrtPriceToPrices converts a Q64.96 square-root price into (price0, price1),
// where price1 is token1 per token0 adjusted for decimals.
func SqrtPriceToPrices(sqrtPriceX96 *big.Int, token0Decimals, token1Decimals uint8) (decimal.Decimal, decimal.Decimal) {
	if sqrtPriceX96 == nil {
		return fixedpoint.Zero, fixedpoint.Zero
	}
	num := decimal.NewFromBigInt(new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96), 0)
	price1 := fixedpoint.SafeDiv(num, q192)
	price1 = fixedpoint.Mul(price1, fixedpoint.ExponentToDecimal(token0Decimals))
	price1 = fixedpoint.SafeDiv(price1, fixedpoint.ExponentToDecimal(token1Decimals))

	price0 := fixedpoint.SafeDiv(fixedpoint.One, price1)
	return price0, price1
}

// StablePoolAt returns the reference pool in use at the given block.
func (o *Oracle) StablePoolAt(blockNumber uint64) (common.Address, bool) {
	var selected common.Address
	found := false
	for _, sp := range o.stablePools {
		if sp.FromBlock > blockNumber {
			break
		}
		selected = sp.Pool
		found = true
	}
	return selected, found
}

// NumeraireUSDPrice returns the numeraire's USD price from the reference pool,
// or zero when that pool holds too little of the numeraire to be trusted.
func (o *Oracle) NumeraireUSDPrice(ctx context.Context, blockNumber uint64) (decimal.Decimal, error) {
	poolID, ok := o.StablePoolAt(blockNumber)
	if !ok {
		return fixedpoint.Zero, nil
	}
	pool, ok, err := o.reader.Pool(ctx, poolID)
	if err != nil {
		return fixedpoint.Zero, fmt.Errorf("load stable pool: %w", err)
	}
	if !ok {
		return fixedpoint.Zero, nil
	}
	if pool.TotalValueLockedToken0.GreaterThan(o.minLocked) {
		return pool.Token1Price, nil
	}
	return fixedpoint.Zero, nil
}

// DerivedPriceInNumeraire prices token in the numeraire from the whitelisted pool
// holding the most numeraire value on the other side.
//
// This is a single hop, greatest-liquidity heuristic rather than a best-rate
// search across the liquidity distribution. Historical derived values depend on
// it, so it is kept as is.
func (o *Oracle) DerivedPriceInNumeraire(ctx context.Context, token, counterparty *model.Token) (decimal.Decimal, error) {
	if token.ID == o.numeraire {
		return fixedpoint.One, nil
	}

	largestLocked := fixedpoint.Zero
	priceSoFar := fixedpoint.Zero
	// Deliberately the priced token's own status, not the other side's, as in
	// deployed subgraph pricing.
	tokenWhitelisted := o.IsWhitelisted(token.ID)

	for _, poolID := range token.WhitelistPools {
		pool, err := store.MustPool(ctx, o.reader, poolID)
		if err != nil {
			return fixedpoint.Zero, err
		}
		if pool.Liquidity == nil || pool.Liquidity.Sign() <= 0 {
			continue
		}

		if pool.Token0 == token.ID && (pool.Token1 != counterparty.ID || !tokenWhitelisted) {
			other, err := store.MustToken(ctx, o.reader, pool.Token1)
			if err != nil {
				return fixedpoint.Zero, err
			}
			locked := fixedpoint.Mul(pool.TotalValueLockedToken1, other.DerivedETH)
			if locked.GreaterThan(largestLocked) && locked.GreaterThan(o.minLocked) {
				largestLocked = locked
				priceSoFar = fixedpoint.Mul(pool.Token1Price, other.DerivedETH)
			}
		}
		if pool.Token1 == token.ID && (pool.Token0 != counterparty.ID || !tokenWhitelisted) {
			other, err := store.MustToken(ctx, o.reader, pool.Token0)
			if err != nil {
				return fixedpoint.Zero, err
			}
			locked := fixedpoint.Mul(pool.TotalValueLockedToken0, other.DerivedETH)
			if locked.GreaterThan(largestLocked) && locked.GreaterThan(o.minLocked) {
				largestLocked = locked
				priceSoFar = fixedpoint.Mul(pool.Token0Price, other.DerivedETH)
			}
		}
	}
	return priceSoFar, nil
}

// TrackedAmountUSD values a trade using only whitelisted legs. With both legs
// whitelisted the two values are summed; with one, that leg is doubled; with
// none the result is zero.
func (o *Oracle) TrackedAmountUSD(ctx context.Context, amount0 decimal.Decimal, token0 *model.Token, amount1 decimal.Decimal, token1 *model.Token) (decimal.Decimal, error) {
	bundle, err := store.MustBundle(ctx, o.reader)
	if err != nil {
		return fixedpoint.Zero, err
	}
	price0USD := fixedpoint.Mul(token0.DerivedETH, bundle.ETHPriceUSD)
	price1USD := fixedpoint.Mul(token1.DerivedETH, bundle.ETHPriceUSD)

	white0 := o.IsWhitelisted(token0.ID)
	white1 := o.IsWhitelisted(token1.ID)

	switch {
	case white0 && white1:
		return fixedpoint.Mul(amount0, price0USD).Add(fixedpoint.Mul(amount1, price1USD)), nil
	case white0:
		return fixedpoint.Mul(fixedpoint.Mul(amount0, price0USD), two), nil
	case white1:
		return fixedpoint.Mul(fixedpoint.Mul(amount1, price1USD), two), nil
	default:
		return fixedpoint.Zero, nil
	}
}

var two = decimal.NewFromInt(2)
