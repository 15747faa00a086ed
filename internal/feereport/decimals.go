package feereport

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"launchpad/internal/chain"
)

// DecimalsResolver reports how many decimals a token uses.
type DecimalsResolver interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// ChainDecimals resolves decimals through ERC20 calls, caching every answer.
type ChainDecimals struct {
	caller chain.ContractCaller
	cache  *chain.TokenMetaCache
	logger *zap.Logger
}

func NewChainDecimals(caller chain.ContractCaller, logger *zap.Logger) *ChainDecimals {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainDecimals{caller: caller, cache: chain.NewTokenMetaCache(), logger: logger}
}

func (c *ChainDecimals) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if meta, ok := c.cache.Get(token); ok {
		return meta.Decimals, nil
	}
	meta, err := chain.FetchTokenMeta(ctx, c.caller, token, c.logger)
	if err != nil {
		return 0, err
	}
	c.cache.Set(token, meta)
	return meta.Decimals, nil
}

// formatTokenAmount renders a raw amount in whole-token units.
func formatTokenAmount(raw string, decimals uint8) (string, error) {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return "", fmt.Errorf("invalid int: %s", raw)
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String(), nil
}
