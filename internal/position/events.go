package position

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventMeta locates an event in the chain.
type EventMeta struct {
	BlockNumber uint64
	Timestamp   uint64
	TxHash      common.Hash
	LogIndex    uint64
}

// LiquidityChange is an IncreaseLiquidity or DecreaseLiquidity event.
type LiquidityChange struct {
	EventMeta
	TokenID   *big.Int
	Liquidity *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

// Collect is a position-manager Collect event.
type Collect struct {
	EventMeta
	TokenID *big.Int
	Amount0 *big.Int
	Amount1 *big.Int
}

// Transfer is an NFT transfer of a position.
type Transfer struct {
	EventMeta
	TokenID *big.Int
	From    common.Address
	To      common.Address
}

// Metadata is the answer of the position manager's positions(tokenId) call.
type Metadata struct {
	Nonce                    *big.Int
	Operator                 common.Address
	Token0                   common.Address
	Token1                   common.Address
	Fee                      uint32
	TickLower                int32
	TickUpper                int32
	Liquidity                *big.Int
	FeeGrowthInside0LastX128 *uint256.Int
	FeeGrowthInside1LastX128 *uint256.Int
	TokensOwed0              *big.Int
	TokensOwed1              *big.Int
}

// Outcome reports what a handler did with an event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDenied    Outcome = "denied"
	OutcomeReverted  Outcome = "reverted"
	OutcomeDuplicate Outcome = "duplicate"
)
