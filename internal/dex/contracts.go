package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"positionScope/internal/position"
)

// JSON-RPC error code nodes return for a reverted eth_call.
const revertErrorCode = 3

// revertReason reports whether err is a contract revert rather than a
// transport or node failure, and returns its message.
func revertReason(err error) (string, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode {
		return rpcErr.Error(), true
	}
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "revert") {
		return msg, true
	}
	return "", false
}

// PositionManagerClient reads positions(tokenId) at a block.
type PositionManagerClient struct {
	caller  ContractCaller
	address common.Address
	abi     abi.ABI
	logger  *zap.Logger
}

func NewPositionManagerClient(caller ContractCaller, address common.Address, logger *zap.Logger) (*PositionManagerClient, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PositionManagerClient{caller: caller, address: address, abi: parsed, logger: logger}, nil
}

func (c *PositionManagerClient) Position(ctx context.Context, tokenID *big.Int, blockNumber uint64) (position.Result[position.Metadata], error) {
	block := new(big.Int).SetUint64(blockNumber)
	values, err := callContract(ctx, c.caller, c.address, c.abi, block, "positions", tokenID)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			c.logger.Debug("positions reverted", zap.String("token_id", tokenID.String()), zap.Uint64("block", blockNumber), zap.String("reason", reason))
			return position.Reverted[position.Metadata](reason), nil
		}
		return position.Result[position.Metadata]{}, err
	}
	md, err := metadataFromValues(values)
	if err != nil {
		return position.Result[position.Metadata]{}, fmt.Errorf("positions(%s): %w", tokenID, err)
	}
	return position.Ok(md), nil
}

func metadataFromValues(values []interface{}) (position.Metadata, error) {
	if len(values) != 12 {
		return position.Metadata{}, fmt.Errorf("unexpected positions values: %d", len(values))
	}
	ints := make([]*big.Int, len(values))
	for _, i := range []int{0, 4, 5, 6, 7, 8, 9, 10, 11} {
		v, err := asBigInt(values[i])
		if err != nil {
			return position.Metadata{}, err
		}
		ints[i] = v
	}
	addrs := make([]common.Address, 4)
	for _, i := range []int{1, 2, 3} {
		v, err := asAddress(values[i])
		if err != nil {
			return position.Metadata{}, err
		}
		addrs[i] = v
	}
	tickLower, err := int24FromBig(ints[5])
	if err != nil {
		return position.Metadata{}, err
	}
	tickUpper, err := int24FromBig(ints[6])
	if err != nil {
		return position.Metadata{}, err
	}
	fee0, overflow := uint256.FromBig(ints[8])
	if overflow {
		return position.Metadata{}, fmt.Errorf("feeGrowthInside0LastX128 overflow")
	}
	fee1, overflow := uint256.FromBig(ints[9])
	if overflow {
		return position.Metadata{}, fmt.Errorf("feeGrowthInside1LastX128 overflow")
	}

	return position.Metadata{
		Nonce:                    ints[0],
		Operator:                 addrs[1],
		Token0:                   addrs[2],
		Token1:                   addrs[3],
		Fee:                      uint32(ints[4].Uint64()),
		TickLower:                tickLower,
		TickUpper:                tickUpper,
		Liquidity:                ints[7],
		FeeGrowthInside0LastX128: fee0,
		FeeGrowthInside1LastX128: fee1,
		TokensOwed0:              ints[10],
		TokensOwed1:              ints[11],
	}, nil
}

// FactoryClient resolves pools with getPool(tokenA, tokenB, fee) at a block.
type FactoryClient struct {
	caller  ContractCaller
	address common.Address
	abi     abi.ABI
	logger  *zap.Logger
}

func NewFactoryClient(caller ContractCaller, address common.Address, logger *zap.Logger) (*FactoryClient, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FactoryClient{caller: caller, address: address, abi: parsed, logger: logger}, nil
}

func (c *FactoryClient) Pool(ctx context.Context, token0, token1 common.Address, fee uint32, blockNumber uint64) (position.Result[common.Address], error) {
	block := new(big.Int).SetUint64(blockNumber)
	values, err := callContract(ctx, c.caller, c.address, c.abi, block, "getPool", token0, token1, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		if reason, ok := revertReason(err); ok {
			c.logger.Debug("getPool reverted", zap.Uint32("fee", fee), zap.Uint64("block", blockNumber), zap.String("reason", reason))
			return position.Reverted[common.Address](reason), nil
		}
		return position.Result[common.Address]{}, err
	}
	pool, err := asAddress(values[0])
	if err != nil {
		return position.Result[common.Address]{}, fmt.Errorf("getPool: %w", err)
	}
	return position.Ok(pool), nil
}
