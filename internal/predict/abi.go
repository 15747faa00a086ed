package predict

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Constructor of the launched asset: (name, symbol, supply, creator).
const assetConstructorABIJSON = `[
  {
    "type": "constructor",
    "stateMutability": "nonpayable",
    "inputs": [
      {"internalType": "string", "name": "name_", "type": "string"},
      {"internalType": "string", "name": "symbol_", "type": "string"},
      {"internalType": "uint256", "name": "maxSupply_", "type": "uint256"},
      {"internalType": "address", "name": "deployer_", "type": "address"}
    ]
  }
]`

var (
	assetABI     abi.ABI
	assetABIOnce sync.Once
	assetABIErr  error
)

// AssetConstructorABI returns the parsed asset constructor ABI.
func AssetConstructorABI() (abi.ABI, error) {
	assetABIOnce.Do(func() {
		assetABI, assetABIErr = abi.JSON(strings.NewReader(assetConstructorABIJSON))
	})
	return assetABI, assetABIErr
}
