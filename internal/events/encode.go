package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TokenCreated is emitted by the launch orchestrator once per completed launch.
type TokenCreated struct {
	Asset           common.Address
	PositionID      uint64
	Creator         common.Address
	Name            string
	Symbol          string
	Supply          *big.Int
	Recipient       common.Address
	RecipientAmount *big.Int
}

// PositionLocked is emitted when the registry takes custody of a position.
type PositionLocked struct {
	PositionID uint64
	Owner      common.Address
	UnlockTime uint64
	FeeCut     uint64
}

// FeesCollected is emitted per collected position. Amounts are the collected totals;
// the owner share is the total minus the collector share.
type FeesCollected struct {
	PositionID      uint64
	Owner           common.Address
	Collector       common.Address
	Token0          common.Address
	Token1          common.Address
	Amount0         *big.Int
	Amount1         *big.Int
	CollectorShare0 *big.Int
	CollectorShare1 *big.Int
}

// PositionWithdrawn is emitted when a position leaves the registry.
type PositionWithdrawn struct {
	PositionID uint64
	Owner      common.Address
}

// LockOwnerChanged is emitted when lock rights move to a new owner.
type LockOwnerChanged struct {
	PositionID    uint64
	PreviousOwner common.Address
	NewOwner      common.Address
}

func (e TokenCreated) Encode(contract common.Address) (types.Log, error) {
	return encode(contract, NameTokenCreated,
		[]interface{}{e.Asset, idWord(e.PositionID), e.Creator},
		e.Name, e.Symbol, orZero(e.Supply), e.Recipient, orZero(e.RecipientAmount),
	)
}

func (e PositionLocked) Encode(contract common.Address) (types.Log, error) {
	return encode(contract, NamePositionLocked,
		[]interface{}{idWord(e.PositionID), e.Owner},
		new(big.Int).SetUint64(e.UnlockTime), new(big.Int).SetUint64(e.FeeCut),
	)
}

func (e FeesCollected) Encode(contract common.Address) (types.Log, error) {
	return encode(contract, NameFeesCollected,
		[]interface{}{idWord(e.PositionID), e.Owner, e.Collector},
		e.Token0, e.Token1,
		orZero(e.Amount0), orZero(e.Amount1),
		orZero(e.CollectorShare0), orZero(e.CollectorShare1),
	)
}

func (e PositionWithdrawn) Encode(contract common.Address) (types.Log, error) {
	return encode(contract, NamePositionWithdrawn, []interface{}{idWord(e.PositionID), e.Owner})
}

func (e LockOwnerChanged) Encode(contract common.Address) (types.Log, error) {
	return encode(contract, NameLockOwnerChanged, []interface{}{idWord(e.PositionID), e.PreviousOwner, e.NewOwner})
}

func encode(contract common.Address, name string, indexed []interface{}, data ...interface{}) (types.Log, error) {
	parsed, err := LaunchpadABI()
	if err != nil {
		return types.Log{}, fmt.Errorf("parse launchpad abi: %w", err)
	}
	event, ok := parsed.Events[name]
	if !ok {
		return types.Log{}, fmt.Errorf("unknown event: %s", name)
	}

	query := make([][]interface{}, 0, len(indexed))
	for _, value := range indexed {
		query = append(query, []interface{}{value})
	}
	topicSets, err := abi.MakeTopics(query...)
	if err != nil {
		return types.Log{}, fmt.Errorf("make %s topics: %w", name, err)
	}
	topics := make([]common.Hash, 0, len(topicSets)+1)
	topics = append(topics, event.ID)
	for _, set := range topicSets {
		topics = append(topics, set[0])
	}

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return types.Log{}, fmt.Errorf("pack %s: %w", name, err)
	}
	return types.Log{Address: contract, Topics: topics, Data: packed}, nil
}

func idWord(id uint64) *big.Int {
	return new(big.Int).SetUint64(id)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
