package feereport

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"launchpad/internal/model"
)

const eventFeesCollected = "feescollected"

// Accumulator sums the FeesCollected events of one locked position.
type Accumulator struct {
	ChainID         uint64
	Registry        string
	PositionID      uint64
	Token0          string
	Token1          string
	Collections     uint64
	Amount0         *big.Int
	Amount1         *big.Int
	CollectorShare0 *big.Int
	CollectorShare1 *big.Int
	FirstBlock      uint64
	LastBlock       uint64
	LastTS          uint64
}

func NewAccumulator(record model.TypedEventRecord, positionID uint64) *Accumulator {
	return &Accumulator{
		ChainID:         record.ChainID,
		Registry:        record.Address,
		PositionID:      positionID,
		Amount0:         big.NewInt(0),
		Amount1:         big.NewInt(0),
		CollectorShare0: big.NewInt(0),
		CollectorShare1: big.NewInt(0),
		FirstBlock:      record.BlockNumber,
		LastBlock:       record.BlockNumber,
		LastTS:          record.Timestamp,
	}
}

// AddFees folds one decoded FeesCollected payload into the totals.
func (a *Accumulator) AddFees(record model.TypedEventRecord, fees model.FeesCollectedData) error {
	amount0, err := parseBigInt(fees.Amount0)
	if err != nil {
		return err
	}
	amount1, err := parseBigInt(fees.Amount1)
	if err != nil {
		return err
	}
	cut0, err := parseBigInt(fees.CollectorShare0)
	if err != nil {
		return err
	}
	cut1, err := parseBigInt(fees.CollectorShare1)
	if err != nil {
		return err
	}
	if cut0.Cmp(amount0) > 0 || cut1.Cmp(amount1) > 0 {
		return fmt.Errorf("collector share exceeds collected amount")
	}

	if a.Token0 == "" {
		a.Token0, a.Token1 = fees.Token0, fees.Token1
	}
	a.Amount0.Add(a.Amount0, amount0)
	a.Amount1.Add(a.Amount1, amount1)
	a.CollectorShare0.Add(a.CollectorShare0, cut0)
	a.CollectorShare1.Add(a.CollectorShare1, cut1)
	a.Collections++

	if record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
	}
	return nil
}

// Merge adds previously stored totals of the same position.
func (a *Accumulator) Merge(stored model.PositionFeeTotals) error {
	values := []struct {
		target *big.Int
		raw    string
	}{
		{a.Amount0, stored.Amount0},
		{a.Amount1, stored.Amount1},
		{a.CollectorShare0, stored.CollectorShare0},
		{a.CollectorShare1, stored.CollectorShare1},
	}
	for _, v := range values {
		parsed, err := parseBigInt(v.raw)
		if err != nil {
			return fmt.Errorf("stored totals of position %d: %w", a.PositionID, err)
		}
		v.target.Add(v.target, parsed)
	}
	a.Collections += stored.Collections
	if a.Token0 == "" {
		a.Token0, a.Token1 = stored.Token0, stored.Token1
	}
	if stored.FirstBlock != 0 && stored.FirstBlock < a.FirstBlock {
		a.FirstBlock = stored.FirstBlock
	}
	if stored.LastCollectedAt > a.LastTS {
		a.LastTS = stored.LastCollectedAt
		a.LastBlock = stored.LastBlock
	}
	return nil
}

// Totals renders the accumulator as a storable row without human amounts.
func (a *Accumulator) Totals() model.PositionFeeTotals {
	return model.PositionFeeTotals{
		ChainID:         a.ChainID,
		Registry:        a.Registry,
		PositionID:      a.PositionID,
		Token0:          a.Token0,
		Token1:          a.Token1,
		Collections:     a.Collections,
		Amount0:         a.Amount0.String(),
		Amount1:         a.Amount1.String(),
		CollectorShare0: a.CollectorShare0.String(),
		CollectorShare1: a.CollectorShare1.String(),
		OwnerShare0:     new(big.Int).Sub(a.Amount0, a.CollectorShare0).String(),
		OwnerShare1:     new(big.Int).Sub(a.Amount1, a.CollectorShare1).String(),
		FirstBlock:      a.FirstBlock,
		LastBlock:       a.LastBlock,
		LastCollectedAt: a.LastTS,
	}
}

func isFeesCollected(name string) bool {
	return strings.ToLower(name) == eventFeesCollected
}

func decodeFees(record model.TypedEventRecord) (model.FeesCollectedData, error) {
	var fees model.FeesCollectedData
	if err := json.Unmarshal(record.Decoded, &fees); err != nil {
		return fees, fmt.Errorf("decode fees collected: %w", err)
	}
	return fees, nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", value)
	}
	return parsed, nil
}
