package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"positionScope/internal/model"
)

// ContractCaller performs eth_call. *chain.Client implements it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenMetaClient fetches ERC20 metadata on first use and caches it for the
// life of the client. Only successful lookups are cached.
type TokenMetaClient struct {
	caller ContractCaller
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[common.Address]model.TokenMeta
}

func NewTokenMetaClient(caller ContractCaller, logger *zap.Logger) *TokenMetaClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenMetaClient{
		caller: caller,
		logger: logger,
		cache:  make(map[common.Address]model.TokenMeta),
	}
}

// TokenMeta returns the metadata of token. Decimals are required; symbol and
// name fall back to bytes32 outputs and then to "".
func (c *TokenMetaClient) TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	c.mu.RLock()
	meta, ok := c.cache[token]
	c.mu.RUnlock()
	if ok {
		return meta, nil
	}

	meta, err := c.fetch(ctx, token)
	if err != nil {
		return meta, fmt.Errorf("token %s: %w", token.Hex(), err)
	}

	c.mu.Lock()
	c.cache[token] = meta
	c.mu.Unlock()
	return meta, nil
}

func (c *TokenMetaClient) fetch(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if c.caller == nil {
		return meta, fmt.Errorf("contract caller is nil")
	}

	stringABI, err := erc20StringABI.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}

	values, err := callContract(ctx, c.caller, token, stringABI, nil, "decimals")
	if err != nil {
		return meta, err
	}
	if meta.Decimals, err = asUint8(values[0]); err != nil {
		return meta, fmt.Errorf("decimals: %w", err)
	}

	meta.Symbol = c.optionalString(ctx, token, "symbol")
	meta.Name = c.optionalString(ctx, token, "name")
	return meta, nil
}

// optionalString calls a string getter, retrying with a bytes32 output for
// tokens that predate the string ERC20 metadata.
func (c *TokenMetaClient) optionalString(ctx context.Context, token common.Address, method string) string {
	stringABI, err := erc20StringABI.get()
	if err == nil {
		if values, err := callContract(ctx, c.caller, token, stringABI, nil, method); err == nil {
			if value, ok := values[0].(string); ok {
				return value
			}
		}
	}

	bytes32ABI, err := erc20Bytes32ABI.get()
	if err != nil {
		return ""
	}
	values, err := callContract(ctx, c.caller, token, bytes32ABI, nil, method)
	if err != nil {
		c.logger.Debug("token metadata call failed",
			zap.String("token", token.Hex()),
			zap.String("method", method),
			zap.Error(err),
		)
		return ""
	}
	value, _ := bytes32ToString(values[0])
	return value
}

// callContract packs method with args, performs an eth_call at block (nil for
// latest) and unpacks the outputs.
func callContract(ctx context.Context, caller ContractCaller, to common.Address, parsed abi.ABI, block *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	if v, ok := value.(uint8); ok {
		return v, nil
	}
	n, err := asBigInt(value)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || n.BitLen() > 8 {
		return 0, fmt.Errorf("uint8 overflow: %s", n)
	}
	return uint8(n.Uint64()), nil
}

func int24FromBig(value *big.Int) (int32, error) {
	if value == nil {
		return 0, fmt.Errorf("int24 is nil")
	}
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
