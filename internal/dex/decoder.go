package dex

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"positionScope/internal/model"
)

// Decoder turns raw logs into typed events.
type Decoder interface {
	Name() string
	CanDecode(log model.LogRecord) bool
	Decode(log model.LogRecord) (*model.TypedEvent, error)
}

// Router dispatches logs to a decoder by emitting contract. Logs from
// unrouted addresses go to the fallback, which is normally the pool decoder
// since pools are created at runtime.
type Router struct {
	byAddress map[common.Address]Decoder
	fallback  Decoder
}

func NewRouter(fallback Decoder) *Router {
	return &Router{
		byAddress: make(map[common.Address]Decoder),
		fallback:  fallback,
	}
}

// Route sends every log emitted by address to decoder.
func (r *Router) Route(address common.Address, decoder Decoder) {
	r.byAddress[address] = decoder
}

func (r *Router) Name() string {
	return "router"
}

func (r *Router) decoderFor(log model.LogRecord) (Decoder, bool) {
	if !common.IsHexAddress(log.Address) {
		return nil, false
	}
	if decoder, ok := r.byAddress[common.HexToAddress(log.Address)]; ok {
		return decoder, true
	}
	if r.fallback == nil {
		return nil, false
	}
	return r.fallback, true
}

func (r *Router) CanDecode(log model.LogRecord) bool {
	decoder, ok := r.decoderFor(log)
	return ok && decoder.CanDecode(log)
}

func (r *Router) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	decoder, ok := r.decoderFor(log)
	if !ok {
		return nil, fmt.Errorf("no decoder for address %s", log.Address)
	}
	event, err := decoder.Decode(log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", decoder.Name(), err)
	}
	return event, nil
}

// topicNames maps lowercased topic0 hashes to event names of an ABI.
func topicNames(parsed abi.ABI, names map[string]string) map[string]string {
	out := make(map[string]string, len(names))
	for abiName, eventName := range names {
		out[strings.ToLower(parsed.Events[abiName].ID.Hex())] = eventName
	}
	return out
}

// topicHashes returns the keys of a topicNames map as sorted hashes, for use
// as a log filter.
func topicHashes(topicToName map[string]string) []common.Hash {
	out := make([]common.Hash, 0, len(topicToName))
	for topic := range topicToName {
		out = append(out, common.HexToHash(topic))
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// unpackLog parses the indexed topics of log into indexed (a pointer to a
// struct, or nil when the event has no indexed arguments) and returns the
// non-indexed values.
func unpackLog(event abi.Event, log model.LogRecord, indexed interface{}) ([]interface{}, error) {
	topics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}
	if indexed != nil {
		if err := abi.ParseTopics(indexed, indexedArguments(event.Inputs), topics); err != nil {
			return nil, fmt.Errorf("parse topics: %w", err)
		}
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if want := len(event.Inputs.NonIndexed()); len(values) != want {
		return nil, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}
	return values, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}) *model.TypedEvent {
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		Raw:         &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}
}

// bigStrings converts decoded integer values to decimal strings.
func bigStrings(values ...interface{}) ([]string, error) {
	out := make([]string, len(values))
	for i, value := range values {
		v, err := asBigInt(value)
		if err != nil {
			return nil, err
		}
		out[i] = v.String()
	}
	return out, nil
}
