package events

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"launchpad/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// Topic0Map adds topic0 aliases, e.g. for contracts deployed with renamed events.
	Topic0Map map[string]string
}

// Decoder turns raw launch and registry logs into typed events.
type Decoder struct {
	abi         abi.ABI
	topicToName map[string]string
}

// NewDecoder builds a decoder for every launchpad event.
func NewDecoder(cfg DecoderConfig) (*Decoder, error) {
	parsed, err := LaunchpadABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(parsed.Events))
	for name, event := range parsed.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

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

	return &Decoder{abi: parsed, topicToName: topicToName}, nil
}

// Topic0s returns the event signatures the decoder understands.
func (d *Decoder) Topic0s() []common.Hash {
	out := make([]common.Hash, 0, len(d.topicToName))
	for topic := range d.topicToName {
		out = append(out, common.HexToHash(topic))
	}
	return out
}

// CanDecode checks if the topic0 is supported.
func (d *Decoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *Decoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid contract address: %s", log.Address)
	}

	fields, err := d.fields(name, log)
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	switch name {
	case NameTokenCreated:
		decoded, err = decodeTokenCreated(fields)
	case NamePositionLocked:
		decoded, err = decodePositionLocked(fields)
	case NameFeesCollected:
		decoded, err = decodeFeesCollected(fields)
	case NamePositionWithdrawn:
		decoded, err = decodePositionWithdrawn(fields)
	case NameLockOwnerChanged:
		decoded, err = decodeLockOwnerChanged(fields)
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return buildTypedEvent(log, name, decoded), nil
}

// fields merges the indexed and data arguments of a log into one map keyed by ABI name.
func (d *Decoder) fields(name string, log model.LogRecord) (fieldMap, error) {
	event := d.abi.Events[name]
	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(log.Topics))
	}
	topics, err := parseTopicHashes(log.Topics[1:])
	if err != nil {
		return nil, err
	}

	out := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(out, indexed, topics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if len(event.Inputs.NonIndexed()) > 0 {
		if err := event.Inputs.NonIndexed().UnpackIntoMap(out, data); err != nil {
			return nil, fmt.Errorf("unpack %s: %w", name, err)
		}
	}
	return out, nil
}

func decodeTokenCreated(f fieldMap) (model.TokenCreatedData, error) {
	var out model.TokenCreatedData
	var err error
	if out.Asset, err = f.address("asset"); err != nil {
		return out, err
	}
	if out.PositionID, err = f.u64("positionId"); err != nil {
		return out, err
	}
	if out.Creator, err = f.address("creator"); err != nil {
		return out, err
	}
	if out.Name, err = f.str("name"); err != nil {
		return out, err
	}
	if out.Symbol, err = f.str("symbol"); err != nil {
		return out, err
	}
	if out.Supply, err = f.amount("supply"); err != nil {
		return out, err
	}
	if out.Recipient, err = f.address("recipient"); err != nil {
		return out, err
	}
	out.RecipientAmount, err = f.amount("recipientAmount")
	return out, err
}

func decodePositionLocked(f fieldMap) (model.PositionLockedData, error) {
	var out model.PositionLockedData
	var err error
	if out.PositionID, err = f.u64("positionId"); err != nil {
		return out, err
	}
	if out.Owner, err = f.address("owner"); err != nil {
		return out, err
	}
	if out.UnlockTime, err = f.u64("unlockTime"); err != nil {
		return out, err
	}
	out.FeeCut, err = f.u64("feeCut")
	return out, err
}

func decodeFeesCollected(f fieldMap) (model.FeesCollectedData, error) {
	var out model.FeesCollectedData
	var err error
	if out.PositionID, err = f.u64("positionId"); err != nil {
		return out, err
	}
	if out.Owner, err = f.address("owner"); err != nil {
		return out, err
	}
	if out.Collector, err = f.address("collector"); err != nil {
		return out, err
	}
	if out.Token0, err = f.address("token0"); err != nil {
		return out, err
	}
	if out.Token1, err = f.address("token1"); err != nil {
		return out, err
	}
	if out.Amount0, err = f.amount("amount0"); err != nil {
		return out, err
	}
	if out.Amount1, err = f.amount("amount1"); err != nil {
		return out, err
	}
	if out.CollectorShare0, err = f.amount("collectorShare0"); err != nil {
		return out, err
	}
	out.CollectorShare1, err = f.amount("collectorShare1")
	return out, err
}

func decodePositionWithdrawn(f fieldMap) (model.PositionWithdrawnData, error) {
	var out model.PositionWithdrawnData
	var err error
	if out.PositionID, err = f.u64("positionId"); err != nil {
		return out, err
	}
	out.Owner, err = f.address("owner")
	return out, err
}

func decodeLockOwnerChanged(f fieldMap) (model.LockOwnerChangedData, error) {
	var out model.LockOwnerChangedData
	var err error
	if out.PositionID, err = f.u64("positionId"); err != nil {
		return out, err
	}
	if out.PreviousOwner, err = f.address("previousOwner"); err != nil {
		return out, err
	}
	out.NewOwner, err = f.address("newOwner")
	return out, err
}

func normalizeEventName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tokencreated":
		return NameTokenCreated
	case "positionlocked":
		return NamePositionLocked
	case "feescollected":
		return NameFeesCollected
	case "positionwithdrawn":
		return NamePositionWithdrawn
	case "lockownerchanged":
		return NameLockOwnerChanged
	default:
		return ""
	}
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data}
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
		Raw:         raw,
	}
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

type fieldMap map[string]interface{}

func (f fieldMap) address(key string) (string, error) {
	switch v := f[key].(type) {
	case common.Address:
		return v.Hex(), nil
	case *common.Address:
		return v.Hex(), nil
	default:
		return "", fmt.Errorf("%s: unsupported address type %T", key, f[key])
	}
}

func (f fieldMap) str(key string) (string, error) {
	v, ok := f[key].(string)
	if !ok {
		return "", fmt.Errorf("%s: unsupported string type %T", key, f[key])
	}
	return v, nil
}

func (f fieldMap) bigInt(key string) (*big.Int, error) {
	v, ok := f[key].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("%s: unsupported int type %T", key, f[key])
	}
	return v, nil
}

func (f fieldMap) amount(key string) (string, error) {
	v, err := f.bigInt(key)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func (f fieldMap) u64(key string) (uint64, error) {
	v, err := f.bigInt(key)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%s: %s overflows uint64", key, v)
	}
	return v.Uint64(), nil
}
