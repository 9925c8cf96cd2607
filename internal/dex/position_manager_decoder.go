package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"positionScope/internal/model"
)

// PositionManagerDecoder decodes NonfungiblePositionManager events. Its
// Collect is emitted as PositionCollect to keep it apart from pool Collect.
type PositionManagerDecoder struct {
	managerABI  abi.ABI
	topicToName map[string]string
}

func NewPositionManagerDecoder() (*PositionManagerDecoder, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, err
	}
	return &PositionManagerDecoder{
		managerABI: parsed,
		topicToName: topicNames(parsed, map[string]string{
			"IncreaseLiquidity": model.EventIncreaseLiquidity,
			"DecreaseLiquidity": model.EventDecreaseLiquidity,
			"Collect":           model.EventPositionCollect,
			"Transfer":          model.EventTransfer,
		}),
	}, nil
}

func (d *PositionManagerDecoder) Name() string {
	return "position-manager"
}

// Topics returns the topic0 hashes decoded from the position manager.
func (d *PositionManagerDecoder) Topics() []common.Hash {
	return topicHashes(d.topicToName)
}

func (d *PositionManagerDecoder) CanDecode(log model.LogRecord) bool {
	_, ok := d.topicToName[log.Topic0()]
	return ok
}

func (d *PositionManagerDecoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	name, ok := d.topicToName[log.Topic0()]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topic0())
	}

	var tokenTopic struct {
		TokenId *big.Int
	}

	switch name {
	case model.EventIncreaseLiquidity, model.EventDecreaseLiquidity:
		values, err := unpackLog(d.managerABI.Events[name], log, &tokenTopic)
		if err != nil {
			return nil, err
		}
		nums, err := bigStrings(values...)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, model.LiquidityEventData{
			TokenID:   tokenTopic.TokenId.String(),
			Liquidity: nums[0],
			Amount0:   nums[1],
			Amount1:   nums[2],
		}), nil

	case model.EventPositionCollect:
		values, err := unpackLog(d.managerABI.Events["Collect"], log, &tokenTopic)
		if err != nil {
			return nil, err
		}
		recipient, err := asAddress(values[0])
		if err != nil {
			return nil, err
		}
		nums, err := bigStrings(values[1], values[2])
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, model.PositionCollectEventData{
			TokenID:   tokenTopic.TokenId.String(),
			Recipient: recipient.Hex(),
			Amount0:   nums[0],
			Amount1:   nums[1],
		}), nil

	case model.EventTransfer:
		var indexed struct {
			From    common.Address
			To      common.Address
			TokenId *big.Int
		}
		if _, err := unpackLog(d.managerABI.Events["Transfer"], log, &indexed); err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, model.TransferEventData{
			From:    indexed.From.Hex(),
			To:      indexed.To.Hex(),
			TokenID: indexed.TokenId.String(),
		}), nil

	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
}
