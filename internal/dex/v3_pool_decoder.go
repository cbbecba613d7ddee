package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"liquidityEngine/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// Topic0Map adds topic0 aliases for forks that rename events, mapping a
	// topic0 hash to one of the event names above.
	Topic0Map map[string]string
}

// V3PoolDecoder decodes V3 pool events.
type V3PoolDecoder struct {
	poolABI     abi.ABI
	topicToName map[string]string
}

func NewV3PoolDecoder(cfg DecoderConfig) (*V3PoolDecoder, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(poolABI.Events)+len(cfg.Topic0Map))
	for _, name := range []string{EventInitialize, EventSwap, EventMint, EventBurn, EventCollect} {
		topicToName[strings.ToLower(poolABI.Events[name].ID.Hex())] = name
	}
	for topic0, name := range cfg.Topic0Map {
		normalized := normalizeEventName(name)
		if normalized == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", name)
		}
		if topic0 != "" {
			topicToName[strings.ToLower(topic0)] = normalized
		}
	}

	return &V3PoolDecoder{poolABI: poolABI, topicToName: topicToName}, nil
}

// Topics returns every topic0 the decoder accepts.
func (d *V3PoolDecoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.topicToName))
	for topic := range d.topicToName {
		out = append(out, common.HexToHash(topic))
	}
	return out
}

func (d *V3PoolDecoder) CanDecode(topic0 string) bool {
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return topic0 != "" && ok
}

// Decode converts a LogRecord into a PoolEvent carrying the pool's metadata.
func (d *V3PoolDecoder) Decode(log model.LogRecord, dc DecodeContext) (*model.PoolEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", log.Address)
	}

	meta, err := poolMeta(dc, common.HexToAddress(log.Address))
	if err != nil {
		return nil, err
	}

	f, err := d.fields(name, log)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	var decoded interface{}
	switch name {
	case EventInitialize:
		decoded = model.InitializeEventData{
			SqrtPriceX96: f.integer("sqrtPriceX96"),
			Tick:         f.int24("tick"),
		}
	case EventSwap:
		decoded = model.SwapEventData{
			Sender:       f.address("sender"),
			Recipient:    f.address("recipient"),
			Amount0:      f.integer("amount0"),
			Amount1:      f.integer("amount1"),
			SqrtPriceX96: f.integer("sqrtPriceX96"),
			Liquidity:    f.integer("liquidity"),
			Tick:         f.int24("tick"),
		}
	case EventMint:
		decoded = model.MintEventData{
			Sender:    f.address("sender"),
			Owner:     f.address("owner"),
			TickLower: f.int24("tickLower"),
			TickUpper: f.int24("tickUpper"),
			Amount:    f.integer("amount"),
			Amount0:   f.integer("amount0"),
			Amount1:   f.integer("amount1"),
		}
	case EventBurn:
		decoded = model.BurnEventData{
			Owner:     f.address("owner"),
			TickLower: f.int24("tickLower"),
			TickUpper: f.int24("tickUpper"),
			Amount:    f.integer("amount"),
			Amount0:   f.integer("amount0"),
			Amount1:   f.integer("amount1"),
		}
	case EventCollect:
		decoded = model.CollectEventData{
			Owner:     f.address("owner"),
			Recipient: f.address("recipient"),
			TickLower: f.int24("tickLower"),
			TickUpper: f.int24("tickUpper"),
			Amount0:   f.integer("amount0"),
			Amount1:   f.integer("amount1"),
		}
	}
	if f.err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, f.err)
	}

	return &model.PoolEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		PoolMeta:    meta,
		Raw:         &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}, nil
}

// fields unpacks both the indexed topics and the data of a log into one map
// keyed by argument name.
func (d *V3PoolDecoder) fields(name string, log model.LogRecord) (*eventFields, error) {
	event := d.poolABI.Events[name]

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(log.Topics) != len(indexed)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(log.Topics))
	}
	topics := make([]common.Hash, 0, len(indexed))
	for _, topic := range log.Topics[1:] {
		raw, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(raw) > common.HashLength {
			return nil, fmt.Errorf("topic length %d", len(raw))
		}
		topics = append(topics, common.BytesToHash(raw))
	}

	values := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(values, indexed, topics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(values, data); err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}
	return &eventFields{values: values}, nil
}

// eventFields reads typed values and keeps the first conversion error.
type eventFields struct {
	values map[string]interface{}
	err    error
}

func (f *eventFields) fail(name string, err error) {
	if f.err == nil {
		f.err = fmt.Errorf("%s: %w", name, err)
	}
}

func (f *eventFields) address(name string) string {
	addr, err := asAddress(f.values[name])
	if err != nil {
		f.fail(name, err)
		return ""
	}
	return addr.Hex()
}

func (f *eventFields) bigInt(name string) *big.Int {
	v, err := asBigInt(f.values[name])
	if err != nil {
		f.fail(name, err)
		return new(big.Int)
	}
	return v
}

// integer renders any integer field in decimal; signed values keep their sign.
func (f *eventFields) integer(name string) string {
	return f.bigInt(name).String()
}

func (f *eventFields) int24(name string) int32 {
	v, err := int24FromBig(f.bigInt(name))
	if err != nil {
		f.fail(name, err)
	}
	return v
}

func normalizeEventName(name string) string {
	for _, known := range []string{EventInitialize, EventSwap, EventMint, EventBurn, EventCollect} {
		if strings.EqualFold(strings.TrimSpace(name), known) {
			return known
		}
	}
	return ""
}
