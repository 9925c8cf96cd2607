package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"positionScope/internal/model"
)

// FactoryDecoder decodes PoolCreated and FeeAmountEnabled from the factory.
type FactoryDecoder struct {
	factoryABI  abi.ABI
	topicToName map[string]string
}

func NewFactoryDecoder() (*FactoryDecoder, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return nil, err
	}
	return &FactoryDecoder{
		factoryABI: parsed,
		topicToName: topicNames(parsed, map[string]string{
			"PoolCreated":      model.EventPoolCreated,
			"FeeAmountEnabled": model.EventFeeAmountEnabled,
		}),
	}, nil
}

func (d *FactoryDecoder) Name() string {
	return "factory"
}

// Topics returns the topic0 hashes decoded from the factory.
func (d *FactoryDecoder) Topics() []common.Hash {
	return topicHashes(d.topicToName)
}

func (d *FactoryDecoder) CanDecode(log model.LogRecord) bool {
	_, ok := d.topicToName[log.Topic0()]
	return ok
}

func (d *FactoryDecoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	name, ok := d.topicToName[log.Topic0()]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topic0())
	}

	switch name {
	case model.EventPoolCreated:
		var indexed struct {
			Token0 common.Address
			Token1 common.Address
			Fee    *big.Int
		}
		values, err := unpackLog(d.factoryABI.Events["PoolCreated"], log, &indexed)
		if err != nil {
			return nil, err
		}
		spacingInt, err := asBigInt(values[0])
		if err != nil {
			return nil, err
		}
		spacing, err := int24FromBig(spacingInt)
		if err != nil {
			return nil, err
		}
		pool, err := asAddress(values[1])
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, model.PoolCreatedEventData{
			Token0:      indexed.Token0.Hex(),
			Token1:      indexed.Token1.Hex(),
			Fee:         uint32(indexed.Fee.Uint64()),
			TickSpacing: spacing,
			Pool:        pool.Hex(),
		}), nil

	case model.EventFeeAmountEnabled:
		var indexed struct {
			Fee         *big.Int
			TickSpacing *big.Int
		}
		if _, err := unpackLog(d.factoryABI.Events["FeeAmountEnabled"], log, &indexed); err != nil {
			return nil, err
		}
		spacing, err := int24FromBig(indexed.TickSpacing)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, model.FeeAmountEnabledEventData{
			Fee:         uint32(indexed.Fee.Uint64()),
			TickSpacing: spacing,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
}
