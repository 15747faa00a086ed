package events

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	NameTokenCreated      = "TokenCreated"
	NamePositionLocked    = "PositionLocked"
	NameFeesCollected     = "FeesCollected"
	NamePositionWithdrawn = "PositionWithdrawn"
	NameLockOwnerChanged  = "LockOwnerChanged"
)

const launchpadABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "asset", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "positionId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "creator", "type": "address"},
      {"indexed": false, "internalType": "string", "name": "name", "type": "string"},
      {"indexed": false, "internalType": "string", "name": "symbol", "type": "string"},
      {"indexed": false, "internalType": "uint256", "name": "supply", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "recipient", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "recipientAmount", "type": "uint256"}
    ],
    "name": "TokenCreated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "positionId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "unlockTime", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "feeCut", "type": "uint256"}
    ],
    "name": "PositionLocked",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "positionId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "collector", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "token0", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "token1", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount0", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount1", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "collectorShare0", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "collectorShare1", "type": "uint256"}
    ],
    "name": "FeesCollected",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "positionId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"}
    ],
    "name": "PositionWithdrawn",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "positionId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "previousOwner", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "newOwner", "type": "address"}
    ],
    "name": "LockOwnerChanged",
    "type": "event"
  }
]`

var (
	launchpadABI     abi.ABI
	launchpadABIOnce sync.Once
	launchpadABIErr  error
)

// LaunchpadABI returns the parsed ABI of the launch and lock registry events.
func LaunchpadABI() (abi.ABI, error) {
	launchpadABIOnce.Do(func() {
		launchpadABI, launchpadABIErr = abi.JSON(strings.NewReader(launchpadABIJSON))
	})
	return launchpadABI, launchpadABIErr
}
