package events

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"launchpad/internal/model"
)

var (
	registry = common.HexToAddress("0x9999999999999999999999999999999999999999")
	owner    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	creator  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	asset    = common.HexToAddress("0x0000000aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	weth     = common.HexToAddress("0x4200000000000000000000000000000000000006")
)

func TestDecodeTokenCreated(t *testing.T) {
	supply := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18))
	log, err := TokenCreated{
		Asset:           asset,
		PositionID:      42,
		Creator:         creator,
		Name:            "Launch Token",
		Symbol:          "LCH",
		Supply:          supply,
		Recipient:       owner,
		RecipientAmount: big.NewInt(10_000),
	}.Encode(registry)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	event := decodeOne(t, log)
	created, ok := event.Decoded.(model.TokenCreatedData)
	if !ok {
		t.Fatalf("decoded type mismatch: %T", event.Decoded)
	}
	if created.Asset != asset.Hex() || created.Creator != creator.Hex() || created.PositionID != 42 {
		t.Fatalf("indexed fields mismatch: %+v", created)
	}
	if created.Name != "Launch Token" || created.Symbol != "LCH" {
		t.Fatalf("name/symbol mismatch: %+v", created)
	}
	if created.Supply != supply.String() || created.RecipientAmount != "10000" {
		t.Fatalf("amount mismatch: %+v", created)
	}
	if event.EventName != NameTokenCreated || event.Address != registry.Hex() {
		t.Fatalf("envelope mismatch: %+v", event)
	}
}

func TestDecodeRegistryEvents(t *testing.T) {
	locked, err := PositionLocked{PositionID: 7, Owner: owner, UnlockTime: 1_800_000_000, FeeCut: 60}.Encode(registry)
	if err != nil {
		t.Fatalf("encode locked: %v", err)
	}
	lockedData, ok := decodeOne(t, locked).Decoded.(model.PositionLockedData)
	if !ok || lockedData.UnlockTime != 1_800_000_000 || lockedData.FeeCut != 60 || lockedData.Owner != owner.Hex() {
		t.Fatalf("locked mismatch: %+v", lockedData)
	}

	collected, err := FeesCollected{
		PositionID:      7,
		Owner:           owner,
		Collector:       creator,
		Token0:          asset,
		Token1:          weth,
		Amount0:         big.NewInt(1000),
		Amount1:         big.NewInt(0),
		CollectorShare0: big.NewInt(60),
	}.Encode(registry)
	if err != nil {
		t.Fatalf("encode collected: %v", err)
	}
	fees, ok := decodeOne(t, collected).Decoded.(model.FeesCollectedData)
	if !ok {
		t.Fatalf("collected type mismatch")
	}
	if fees.Amount0 != "1000" || fees.Amount1 != "0" || fees.CollectorShare0 != "60" || fees.CollectorShare1 != "0" {
		t.Fatalf("fee amounts mismatch: %+v", fees)
	}
	if fees.Token1 != weth.Hex() || fees.Collector != creator.Hex() {
		t.Fatalf("fee addresses mismatch: %+v", fees)
	}

	withdrawn, err := PositionWithdrawn{PositionID: 7, Owner: owner}.Encode(registry)
	if err != nil {
		t.Fatalf("encode withdrawn: %v", err)
	}
	if data, ok := decodeOne(t, withdrawn).Decoded.(model.PositionWithdrawnData); !ok || data.PositionID != 7 {
		t.Fatalf("withdrawn mismatch: %+v", data)
	}

	changed, err := LockOwnerChanged{PositionID: 7, PreviousOwner: owner, NewOwner: creator}.Encode(registry)
	if err != nil {
		t.Fatalf("encode owner changed: %v", err)
	}
	if data, ok := decodeOne(t, changed).Decoded.(model.LockOwnerChangedData); !ok || data.NewOwner != creator.Hex() || data.PreviousOwner != owner.Hex() {
		t.Fatalf("owner changed mismatch: %+v", data)
	}
}

func TestDecoderRejectsMalformedLogs(t *testing.T) {
	decoder, err := NewDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	log, err := PositionWithdrawn{PositionID: 1, Owner: owner}.Encode(registry)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	record := toRecord(log)
	record.Topics = record.Topics[:2]
	if _, err := decoder.Decode(record); err == nil {
		t.Fatalf("expected topic count error")
	}

	if decoder.CanDecode("0x" + strings.Repeat("ab", 32)) {
		t.Fatalf("unexpected topic accepted")
	}
	if _, err := decoder.Decode(model.LogRecord{Address: registry.Hex()}); err == nil {
		t.Fatalf("expected missing topics error")
	}
}

func TestDecoderTopic0Alias(t *testing.T) {
	alias := "0x" + strings.Repeat("cd", 32)
	decoder, err := NewDecoder(DecoderConfig{Topic0Map: map[string]string{alias: "positionwithdrawn"}})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if !decoder.CanDecode(alias) {
		t.Fatalf("alias not registered")
	}
	if len(decoder.Topic0s()) != 6 {
		t.Fatalf("expected 6 topics, got %d", len(decoder.Topic0s()))
	}

	if _, err := NewDecoder(DecoderConfig{Topic0Map: map[string]string{alias: "swap"}}); err == nil {
		t.Fatalf("expected unsupported name error")
	}
}

func decodeOne(t *testing.T, log types.Log) *model.TypedEvent {
	t.Helper()
	decoder, err := NewDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	record := toRecord(log)
	if !decoder.CanDecode(record.Topics[0]) {
		t.Fatalf("topic0 not decodable: %s", record.Topics[0])
	}
	event, err := decoder.Decode(record)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return event
}

func toRecord(log types.Log) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}
	return model.LogRecord{
		ChainID:     8453,
		BlockNumber: 12345,
		BlockHash:   "0xabc",
		TxHash:      "0xdef",
		LogIndex:    1,
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Timestamp:   1700000000,
	}
}
