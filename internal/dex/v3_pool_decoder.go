package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"positionScope/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// Topic0Map adds topic0 aliases for forks that emit pool events under
	// different signatures with the same layout.
	Topic0Map map[string]string
}

// V3PoolDecoder decodes concentrated-liquidity pool events.
type V3PoolDecoder struct {
	poolABI     abi.ABI
	topicToName map[string]string
}

// NewV3PoolDecoder builds a pool decoder.
func NewV3PoolDecoder(cfg DecoderConfig) (*V3PoolDecoder, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, err
	}

	topicToName := topicNames(poolABI, map[string]string{
		"Initialize": model.EventInitialize,
		"Swap":       model.EventSwap,
		"Mint":       model.EventMint,
		"Burn":       model.EventBurn,
		"Collect":    model.EventCollect,
	})

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &V3PoolDecoder{
		poolABI:     poolABI,
		topicToName: topicToName,
	}, nil
}

func (d *V3PoolDecoder) Name() string {
	return "pool"
}

// CanDecode checks if the topic0 is supported.
// Topics returns the topic0 hashes decoded from the pool, including topic0 aliases.
func (d *V3PoolDecoder) Topics() []common.Hash {
	return topicHashes(d.topicToName)
}

func (d *V3PoolDecoder) CanDecode(log model.LogRecord) bool {
	_, ok := d.topicToName[log.Topic0()]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *V3PoolDecoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[log.Topic0()]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", log.Address)
	}

	var (
		decoded interface{}
		err     error
	)
	switch name {
	case model.EventInitialize:
		decoded, err = d.decodeInitialize(log)
	case model.EventSwap:
		decoded, err = d.decodeSwap(log)
	case model.EventMint:
		decoded, err = d.decodeMint(log)
	case model.EventBurn:
		decoded, err = d.decodeBurn(log)
	case model.EventCollect:
		decoded, err = d.decodeCollect(log)
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
	if err != nil {
		return nil, err
	}
	return buildTypedEvent(log, name, decoded), nil
}

func normalizeEventName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "initialize":
		return model.EventInitialize
	case "swap":
		return model.EventSwap
	case "mint":
		return model.EventMint
	case "burn":
		return model.EventBurn
	case "collect":
		return model.EventCollect
	default:
		return ""
	}
}

type tickRangeTopics struct {
	Owner     common.Address
	TickLower *big.Int
	TickUpper *big.Int
}

func (t tickRangeTopics) ticks() (int32, int32, error) {
	lower, err := int24FromBig(t.TickLower)
	if err != nil {
		return 0, 0, err
	}
	upper, err := int24FromBig(t.TickUpper)
	if err != nil {
		return 0, 0, err
	}
	return lower, upper, nil
}

func (d *V3PoolDecoder) decodeInitialize(log model.LogRecord) (model.InitializeEventData, error) {
	values, err := unpackLog(d.poolABI.Events["Initialize"], log, nil)
	if err != nil {
		return model.InitializeEventData{}, err
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return model.InitializeEventData{}, err
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return model.InitializeEventData{}, err
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return model.InitializeEventData{}, err
	}
	return model.InitializeEventData{SqrtPriceX96: sqrtPrice.String(), Tick: tick}, nil
}

func (d *V3PoolDecoder) decodeSwap(log model.LogRecord) (model.SwapEventData, error) {
	var indexed struct {
		Sender    common.Address
		Recipient common.Address
	}
	values, err := unpackLog(d.poolABI.Events["Swap"], log, &indexed)
	if err != nil {
		return model.SwapEventData{}, err
	}
	nums, err := bigStrings(values[0], values[1], values[2], values[3])
	if err != nil {
		return model.SwapEventData{}, err
	}
	tickInt, err := asBigInt(values[4])
	if err != nil {
		return model.SwapEventData{}, err
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return model.SwapEventData{}, err
	}

	return model.SwapEventData{
		Sender:       indexed.Sender.Hex(),
		Recipient:    indexed.Recipient.Hex(),
		Amount0:      nums[0],
		Amount1:      nums[1],
		SqrtPriceX96: nums[2],
		Liquidity:    nums[3],
		Tick:         tick,
	}, nil
}

func (d *V3PoolDecoder) decodeMint(log model.LogRecord) (model.MintEventData, error) {
	var indexed tickRangeTopics
	values, err := unpackLog(d.poolABI.Events["Mint"], log, &indexed)
	if err != nil {
		return model.MintEventData{}, err
	}
	sender, err := asAddress(values[0])
	if err != nil {
		return model.MintEventData{}, err
	}
	nums, err := bigStrings(values[1], values[2], values[3])
	if err != nil {
		return model.MintEventData{}, err
	}
	tickLower, tickUpper, err := indexed.ticks()
	if err != nil {
		return model.MintEventData{}, err
	}

	return model.MintEventData{
		Sender:    sender.Hex(),
		Owner:     indexed.Owner.Hex(),
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount:    nums[0],
		Amount0:   nums[1],
		Amount1:   nums[2],
	}, nil
}

func (d *V3PoolDecoder) decodeBurn(log model.LogRecord) (model.BurnEventData, error) {
	var indexed tickRangeTopics
	values, err := unpackLog(d.poolABI.Events["Burn"], log, &indexed)
	if err != nil {
		return model.BurnEventData{}, err
	}
	nums, err := bigStrings(values...)
	if err != nil {
		return model.BurnEventData{}, err
	}
	tickLower, tickUpper, err := indexed.ticks()
	if err != nil {
		return model.BurnEventData{}, err
	}

	return model.BurnEventData{
		Owner:     indexed.Owner.Hex(),
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount:    nums[0],
		Amount0:   nums[1],
		Amount1:   nums[2],
	}, nil
}

func (d *V3PoolDecoder) decodeCollect(log model.LogRecord) (model.CollectEventData, error) {
	var indexed tickRangeTopics
	values, err := unpackLog(d.poolABI.Events["Collect"], log, &indexed)
	if err != nil {
		return model.CollectEventData{}, err
	}
	recipient, err := asAddress(values[0])
	if err != nil {
		return model.CollectEventData{}, err
	}
	nums, err := bigStrings(values[1], values[2])
	if err != nil {
		return model.CollectEventData{}, err
	}
	tickLower, tickUpper, err := indexed.ticks()
	if err != nil {
		return model.CollectEventData{}, err
	}

	return model.CollectEventData{
		Owner:     indexed.Owner.Hex(),
		Recipient: recipient.Hex(),
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount0:   nums[0],
		Amount1:   nums[1],
	}, nil
}
