package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Block locates an event in the chain.
type Block struct {
	Number    uint64
	Timestamp uint64
}

type PoolCreated struct {
	Block
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickSpacing int32
	Pool        common.Address
}

type FeeAmountEnabled struct {
	Block
	Fee         uint32
	TickSpacing int32
}

type Initialize struct {
	Block
	Pool         common.Address
	SqrtPriceX96 *big.Int
	Tick         int32
}

// Mint is a pool Mint; Burn uses the same shape.
type Mint struct {
	Block
	Pool      common.Address
	TickLower int32
	TickUpper int32
	Amount    *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

type Burn = Mint

type Swap struct {
	Block
	Pool         common.Address
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
}

type Collect struct {
	Block
	Pool    common.Address
	Amount0 *big.Int
	Amount1 *big.Int
}
