package process

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"positionScope/internal/model"
	"positionScope/internal/pool"
	"positionScope/internal/position"
)

// PayloadError reports a typed event whose decoded payload cannot be converted.
type PayloadError struct {
	Event string
	Field string
	Err   error
}

func (e *PayloadError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s payload: %v", e.Event, e.Err)
	}
	return fmt.Sprintf("%s payload field %s: %v", e.Event, e.Field, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// fieldParser collects the first conversion error of a payload.
type fieldParser struct {
	event string
	err   error
}

func (p *fieldParser) fail(field string, err error) {
	if p.err == nil {
		p.err = &PayloadError{Event: p.event, Field: field, Err: err}
	}
}

func (p *fieldParser) address(field, value string) common.Address {
	if !common.IsHexAddress(value) {
		p.fail(field, fmt.Errorf("invalid address %q", value))
		return common.Address{}
	}
	return common.HexToAddress(value)
}

func (p *fieldParser) bigInt(field, value string) *big.Int {
	v, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		p.fail(field, fmt.Errorf("invalid integer %q", value))
		return new(big.Int)
	}
	return v
}

func unmarshalPayload(record model.TypedEventRecord, dst interface{}) error {
	if len(record.Decoded) == 0 {
		return &PayloadError{Event: record.EventName, Err: fmt.Errorf("empty payload")}
	}
	if err := json.Unmarshal(record.Decoded, dst); err != nil {
		return &PayloadError{Event: record.EventName, Err: err}
	}
	return nil
}

func blockOf(record model.TypedEventRecord) pool.Block {
	return pool.Block{Number: record.BlockNumber, Timestamp: record.Timestamp}
}

func metaOf(record model.TypedEventRecord) position.EventMeta {
	return position.EventMeta{
		BlockNumber: record.BlockNumber,
		Timestamp:   record.Timestamp,
		TxHash:      common.HexToHash(record.TxHash),
		LogIndex:    record.LogIndex,
	}
}

func poolCreated(record model.TypedEventRecord) (pool.PoolCreated, error) {
	var data model.PoolCreatedEventData
	if err := unmarshalPayload(record, &data); err != nil {
		return pool.PoolCreated{}, err
	}
	p := fieldParser{event: record.EventName}
	ev := pool.PoolCreated{
		Block:       blockOf(record),
		Token0:      p.address("token0", data.Token0),
		Token1:      p.address("token1", data.Token1),
		Fee:         data.Fee,
		TickSpacing: data.TickSpacing,
		Pool:        p.address("pool", data.Pool),
	}
	return ev, p.err
}

func feeAmountEnabled(record model.TypedEventRecord) (pool.FeeAmountEnabled, error) {
	var data model.FeeAmountEnabledEventData
	if err := unmarshalPayload(record, &data); err != nil {
		return pool.FeeAmountEnabled{}, err
	}
	return pool.FeeAmountEnabled{Block: blockOf(record), Fee: data.Fee, TickSpacing: data.TickSpacing}, nil
}

func initialize(record model.TypedEventRecord) (pool.Initialize, error) {
	var data model.InitializeEventData
	if err := unmarshalPayload(record, &data); err != nil {
		return pool.Initialize{}, err
	}
	p := fieldParser{event: record.EventName}
	ev := pool.Initialize{
		Block:        blockOf(record),
		Pool:         p.address("address", record.Address),
		SqrtPriceX96: p.bigInt("sqrt_price_x96", data.SqrtPriceX96),
		Tick:         data.Tick,
	}
	return ev, p.err
}

func mint(record model.TypedEventRecord) (pool.Mint, error) {
	var data model.MintEventData
	if err := unmarshalPayload(record, &data); err != nil {
		return pool.Mint{}, err
	}
	return liquidityEvent(record, data.TickLower, data.TickUpper, data.Amount, data.Amount0, data.Amount1)
}

func burn(record model.TypedEventRecord) (pool.Burn, error) {
	var data model.BurnEventData
	if err := unmarshalPayload(record, &data); err != nil {
		return pool.Burn{}, err
	}
	return liquidityEvent(record, data.TickLower, data.TickUpper, data.Amount, data.Amount0, data.Amount1)
}

func liquidityEvent(record model.TypedEventRecord, lower, upper int32, amount, amount0, amount1 string) (pool.Mint, error) {
	p := fieldParser{event: record.EventName}
	ev := pool.Mint{
		Block:     blockOf(record),
		Pool:      p.address("address", record.Address),
		TickLower: lower,
		TickUpper: upper,
		Amount:    p.bigInt("amount", amount),
		Amount0:   p.bigInt("amount0", amount0),
		Amount1:   p.bigInt("amount1", amount1),
	}
	return ev, p.err
}

func swap(record model.TypedEventRecord) (pool.Swap, error) {
	var data model.SwapEventData
	if err := unmarshalPayload(record, &data); err != nil {
		return pool.Swap{}, err
	}
	p := fieldParser{event: record.EventName}
	ev := pool.Swap{
		Block:        blockOf(record),
		Pool:         p.address("address", record.Address),
		Amount0:      p.bigInt("amount0", data.Amount0),
		Amount1:      p.bigInt("amount1", data.Amount1),
		SqrtPriceX96: p.bigInt("sqrt_price_x96", data.SqrtPriceX96),
		Liquidity:    p.bigInt("liquidity", data.Liquidity),
		Tick:         data.Tick,
	}
	return ev, p.err
}

func poolCollect(record model.TypedEventRecord) (pool.Collect, error) {
	var data model.CollectEventData
	if err := unmarshalPayload(record, &data); err != nil {
		return pool.Collect{}, err
	}
	p := fieldParser{event: record.EventName}
	ev := pool.Collect{
		Block:   blockOf(record),
		Pool:    p.address("address", record.Address),
		Amount0: p.bigInt("amount0", data.Amount0),
		Amount1: p.bigInt("amount1", data.Amount1),
	}
	return ev, p.err
}

func liquidityChange(record model.TypedEventRecord) (position.LiquidityChange, error) {
	var data model.LiquidityEventData
	if err := unmarshalPayload(record, &data); err != nil {
		return position.LiquidityChange{}, err
	}
	p := fieldParser{event: record.EventName}
	ev := position.LiquidityChange{
		EventMeta: metaOf(record),
		TokenID:   p.bigInt("token_id", data.TokenID),
		Liquidity: p.bigInt("liquidity", data.Liquidity),
		Amount0:   p.bigInt("amount0", data.Amount0),
		Amount1:   p.bigInt("amount1", data.Amount1),
	}
	return ev, p.err
}

func positionCollect(record model.TypedEventRecord) (position.Collect, error) {
	var data model.PositionCollectEventData
	if err := unmarshalPayload(record, &data); err != nil {
		return position.Collect{}, err
	}
	p := fieldParser{event: record.EventName}
	ev := position.Collect{
		EventMeta: metaOf(record),
		TokenID:   p.bigInt("token_id", data.TokenID),
		Amount0:   p.bigInt("amount0", data.Amount0),
		Amount1:   p.bigInt("amount1", data.Amount1),
	}
	return ev, p.err
}

func transfer(record model.TypedEventRecord) (position.Transfer, error) {
	var data model.TransferEventData
	if err := unmarshalPayload(record, &data); err != nil {
		return position.Transfer{}, err
	}
	p := fieldParser{event: record.EventName}
	ev := position.Transfer{
		EventMeta: metaOf(record),
		TokenID:   p.bigInt("token_id", data.TokenID),
		From:      p.address("from", data.From),
		To:        p.address("to", data.To),
	}
	return ev, p.err
}
