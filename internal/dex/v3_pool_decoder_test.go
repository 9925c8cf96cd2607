package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"positionScope/internal/model"
)

func TestV3PoolDecoderSwap(t *testing.T) {
	poolABI, err := V3PoolABI()
	require.NoError(t, err)
	decoder, err := NewV3PoolDecoder(DecoderConfig{})
	require.NoError(t, err)

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")

	data, err := poolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(-1000),
		big.NewInt(2000),
		big.NewInt(123456789),
		big.NewInt(987654321),
		big.NewInt(-15),
	)
	require.NoError(t, err)

	logRecord := buildLogRecord(pool, poolABI.Events["Swap"].ID, data, []common.Hash{
		topicFromAddress(sender),
		topicFromAddress(recipient),
	})
	require.True(t, decoder.CanDecode(logRecord))

	event, err := decoder.Decode(logRecord)
	require.NoError(t, err)
	assert.Equal(t, model.EventSwap, event.EventName)
	assert.Equal(t, uint64(12345), event.BlockNumber)

	swap, ok := event.Decoded.(model.SwapEventData)
	require.True(t, ok, "decoded type %T", event.Decoded)
	assert.Equal(t, "-1000", swap.Amount0)
	assert.Equal(t, "2000", swap.Amount1)
	assert.Equal(t, "123456789", swap.SqrtPriceX96)
	assert.Equal(t, "987654321", swap.Liquidity)
	assert.Equal(t, int32(-15), swap.Tick)
	assert.Equal(t, sender.Hex(), swap.Sender)
	assert.Equal(t, recipient.Hex(), swap.Recipient)
}

func TestV3PoolDecoderInitialize(t *testing.T) {
	poolABI, err := V3PoolABI()
	require.NoError(t, err)
	decoder, err := NewV3PoolDecoder(DecoderConfig{})
	require.NoError(t, err)

	sqrt := new(big.Int).Lsh(big.NewInt(1), 96)
	data, err := poolABI.Events["Initialize"].Inputs.NonIndexed().Pack(sqrt, big.NewInt(-887272))
	require.NoError(t, err)

	event, err := decoder.Decode(buildLogRecord(common.HexToAddress("0x01"), poolABI.Events["Initialize"].ID, data, nil))
	require.NoError(t, err)
	init, ok := event.Decoded.(model.InitializeEventData)
	require.True(t, ok)
	assert.Equal(t, sqrt.String(), init.SqrtPriceX96)
	assert.Equal(t, int32(-887272), init.Tick)
}

func TestV3PoolDecoderMintBurnCollect(t *testing.T) {
	poolABI, err := V3PoolABI()
	require.NoError(t, err)
	decoder, err := NewV3PoolDecoder(DecoderConfig{})
	require.NoError(t, err)

	pool := common.HexToAddress("0x9999999999999999999999999999999999999999")
	sender := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	owner := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	recipient := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	mintData, err := poolABI.Events["Mint"].Inputs.NonIndexed().Pack(sender, big.NewInt(5000), big.NewInt(100), big.NewInt(200))
	require.NoError(t, err)
	mintEvent, err := decoder.Decode(buildLogRecord(pool, poolABI.Events["Mint"].ID, mintData, []common.Hash{
		topicFromAddress(owner),
		topicFromInt24(-120),
		topicFromInt24(120),
	}))
	require.NoError(t, err)
	mint, ok := mintEvent.Decoded.(model.MintEventData)
	require.True(t, ok)
	assert.Equal(t, int32(-120), mint.TickLower)
	assert.Equal(t, int32(120), mint.TickUpper)
	assert.Equal(t, "5000", mint.Amount)
	assert.Equal(t, sender.Hex(), mint.Sender)

	burnData, err := poolABI.Events["Burn"].Inputs.NonIndexed().Pack(big.NewInt(7000), big.NewInt(300), big.NewInt(400))
	require.NoError(t, err)
	burnEvent, err := decoder.Decode(buildLogRecord(pool, poolABI.Events["Burn"].ID, burnData, []common.Hash{
		topicFromAddress(owner),
		topicFromInt24(-60),
		topicFromInt24(60),
	}))
	require.NoError(t, err)
	burn, ok := burnEvent.Decoded.(model.BurnEventData)
	require.True(t, ok)
	assert.Equal(t, "7000", burn.Amount)
	assert.Equal(t, "400", burn.Amount1)
	assert.Equal(t, int32(-60), burn.TickLower)

	collectData, err := poolABI.Events["Collect"].Inputs.NonIndexed().Pack(recipient, big.NewInt(900), big.NewInt(1000))
	require.NoError(t, err)
	collectEvent, err := decoder.Decode(buildLogRecord(pool, poolABI.Events["Collect"].ID, collectData, []common.Hash{
		topicFromAddress(owner),
		topicFromInt24(-10),
		topicFromInt24(10),
	}))
	require.NoError(t, err)
	assert.Equal(t, model.EventCollect, collectEvent.EventName)
	collect, ok := collectEvent.Decoded.(model.CollectEventData)
	require.True(t, ok)
	assert.Equal(t, "900", collect.Amount0)
	assert.Equal(t, "1000", collect.Amount1)
	assert.Equal(t, recipient.Hex(), collect.Recipient)
}

func TestV3PoolDecoderErrors(t *testing.T) {
	poolABI, err := V3PoolABI()
	require.NoError(t, err)
	decoder, err := NewV3PoolDecoder(DecoderConfig{})
	require.NoError(t, err)

	// wrong topic count
	_, err = decoder.Decode(buildLogRecord(common.HexToAddress("0x01"), poolABI.Events["Swap"].ID, nil, nil))
	assert.Error(t, err)

	unknown := buildLogRecord(common.HexToAddress("0x01"), common.HexToHash("0x1234"), nil, nil)
	assert.False(t, decoder.CanDecode(unknown))
	_, err = decoder.Decode(unknown)
	assert.Error(t, err)
}

func TestV3PoolDecoderTopicAlias(t *testing.T) {
	alias := "0x00000000000000000000000000000000000000000000000000000000000000aa"
	decoder, err := NewV3PoolDecoder(DecoderConfig{Topic0Map: map[string]string{alias: " swap "}})
	require.NoError(t, err)
	assert.True(t, decoder.CanDecode(model.LogRecord{Topics: []string{alias}}))

	_, err = NewV3PoolDecoder(DecoderConfig{Topic0Map: map[string]string{alias: "flash"}})
	assert.Error(t, err)
}

func TestDecoderTopics(t *testing.T) {
	poolABI, err := V3PoolABI()
	require.NoError(t, err)
	alias := common.HexToHash("0xaa")

	pools, err := NewV3PoolDecoder(DecoderConfig{Topic0Map: map[string]string{alias.Hex(): "Swap"}})
	require.NoError(t, err)
	topics := pools.Topics()
	assert.Len(t, topics, 6)
	assert.Equal(t, alias, topics[0])
	assert.Contains(t, topics, poolABI.Events["Initialize"].ID)

	factory, err := NewFactoryDecoder()
	require.NoError(t, err)
	assert.Len(t, factory.Topics(), 2)

	manager, err := NewPositionManagerDecoder()
	require.NoError(t, err)
	assert.Len(t, manager.Topics(), 4)
}

func buildLogRecord(address common.Address, topic0 common.Hash, data []byte, indexed []common.Hash) model.LogRecord {
	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, topic0.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     8453,
		BlockNumber: 12345,
		BlockHash:   "0xabc",
		TxHash:      "0xdef",
		LogIndex:    1,
		Address:     address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   1700000000,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func topicFromInt24(value int32) common.Hash {
	bigVal := big.NewInt(int64(value))
	if value < 0 {
		bigVal = new(big.Int).Add(bigVal, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return common.BigToHash(bigVal)
}
