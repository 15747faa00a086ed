package main

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"launchpad/internal/config"
	"launchpad/internal/events"
	"launchpad/internal/model"
)

func TestParseUnits(t *testing.T) {
	got, err := parseUnits("1.5", 18)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if want, _ := new(big.Int).SetString("1500000000000000000", 10); got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if got, err := parseUnits("", 18); err != nil || got.Sign() != 0 {
		t.Fatalf("empty amount: %v err=%v", got, err)
	}
	for _, bad := range []string{"-1", "abc", "0.0000001"} {
		if _, err := parseUnits(bad, 6); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	if got := formatUnits(big.NewInt(2_000_000_000_000), 18); got != "0.000002" {
		t.Fatalf("unexpected format %s", got)
	}
	if got := formatUnits(nil, 18); got != "0" {
		t.Fatalf("nil should format as 0, got %s", got)
	}
}

func TestQuoteTickIsSpaced(t *testing.T) {
	quote, err := quoteTick("30000", "3000", "1000000000", config.DefaultFeeTier)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.ValidTick%200 != 0 {
		t.Fatalf("tick %d not a multiple of 200", quote.ValidTick)
	}
	if _, err := quoteTick("30000", "3000", "1000000000", 123); err == nil {
		t.Fatalf("expected unsupported fee tier error")
	}
}

func TestBuildScenarioDerivesTickAndValue(t *testing.T) {
	cfg := config.SimulateConfig{
		AssetConfig: config.AssetConfig{
			Creator: "0x00000000000000000000000000000000000c0de1",
			Name:    "Token",
			Symbol:  "TKN",
			Supply:  "1000000000",
		},
		StartTime:    "1700000000",
		FeeTier:      config.DefaultFeeTier,
		Tick:         -1,
		MarketCap:    "30000",
		ReservePrice: "3000",
		LaunchFee:    "0.01",
		Buy:          "0.5",
		TradeSize:    "1",
	}
	s, net, err := buildScenario(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if net.StartTime != 1_700_000_000 || net.LaunchFee.String() != "10000000000000000" {
		t.Fatalf("unexpected network config %+v", net)
	}
	if s.Request.Value.String() != "510000000000000000" {
		t.Fatalf("unexpected value %s", s.Request.Value)
	}
	if s.Request.InitialTick == -1 || s.Request.InitialTick%200 != 0 {
		t.Fatalf("tick not derived from market cap: %d", s.Request.InitialTick)
	}
	if s.Request.Recipient != s.Request.Caller {
		t.Fatalf("recipient should default to the creator")
	}

	cfg.Creator = "nope"
	if _, _, err := buildScenario(cfg); err == nil {
		t.Fatalf("expected invalid creator error")
	}
}

type memoryLines struct {
	values []interface{}
}

func (m *memoryLines) Write(value interface{}) error {
	m.values = append(m.values, value)
	return nil
}

func TestDecodeLines(t *testing.T) {
	registry := common.HexToAddress("0x0000000000000000000000000000000000009002")
	owner := common.HexToAddress("0x2222222222222222222222222222222222222222")
	log, err := events.PositionWithdrawn{PositionID: 7, Owner: owner}.Encode(registry)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	topics := make([]string, len(log.Topics))
	for i, topic := range log.Topics {
		topics[i] = topic.Hex()
	}
	record := model.LogRecord{ChainID: 31337, BlockNumber: 4, Address: registry.Hex(), Topics: topics, Data: hexutil.Encode(log.Data)}
	line, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	unknown := `{"chain_id":31337,"topics":["0x000000000000000000000000000000000000000000000000000000000000dead"]}`
	input := strings.Join([]string{string(line), "", "not json", unknown, `{"chain_id":1}`}, "\n")

	decoder, err := events.NewDecoder(events.DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	out, errOut := &memoryLines{}, &memoryLines{}
	stats, err := decodeLines(strings.NewReader(input), decoder, out, errOut)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats != (decodeStats{total: 4, decoded: 1, skipped: 1, failed: 2}) {
		t.Fatalf("unexpected stats %+v", stats)
	}
	event, ok := out.values[0].(*model.TypedEvent)
	if !ok || event.EventName != events.NamePositionWithdrawn {
		t.Fatalf("unexpected event %#v", out.values[0])
	}
	if len(errOut.values) != 2 {
		t.Fatalf("expected 2 decode errors, got %d", len(errOut.values))
	}
}
