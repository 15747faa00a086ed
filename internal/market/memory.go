package market

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/daoleno/uniswap-sdk-core/entities"
	"github.com/daoleno/uniswapv3-sdk/constants"
	"github.com/daoleno/uniswapv3-sdk/utils"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpad/internal/ledger"
	"launchpad/internal/pricing"
)

// Addresses places the in-memory market contracts on the ledger.
type Addresses struct {
	Factory         common.Address
	PositionManager common.Address
	Router          common.Address
}

type poolKey struct {
	token0 common.Address
	token1 common.Address
	fee    uint32
}

type pool struct {
	address      common.Address
	key          poolKey
	spacing      int32
	initialized  bool
	sqrtPriceX96 *big.Int
	tick         int32
	liquidity    *big.Int
}

type position struct {
	Position
	owner common.Address
	owed0 *big.Int
	owed1 *big.Int
}

// Memory is an in-memory concentrated-liquidity market on top of a ledger. It prices
// swaps at the pool's spot price without moving it, which is enough to exercise
// launches, fee accrual and collection. All state reverts with ledger snapshots.
type Memory struct {
	ledger *ledger.Ledger
	addrs  Addresses
	logger *zap.Logger

	pools     map[common.Address]*pool
	poolByKey map[poolKey]common.Address
	positions map[uint64]*position
	nextID    uint64
	receivers map[common.Address]PositionReceiver
}

// NewMemory deploys the market contracts on l.
func NewMemory(l *ledger.Ledger, addrs Addresses, logger *zap.Logger) (*Memory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, addr := range []common.Address{addrs.Factory, addrs.PositionManager, addrs.Router} {
		if err := l.DeployCode(addr); err != nil {
			return nil, fmt.Errorf("deploy market contract: %w", err)
		}
	}
	return &Memory{
		ledger:    l,
		addrs:     addrs,
		logger:    logger,
		pools:     make(map[common.Address]*pool),
		poolByKey: make(map[poolKey]common.Address),
		positions: make(map[uint64]*position),
		nextID:    1,
		receivers: make(map[common.Address]PositionReceiver),
	}, nil
}

// Positions returns the position manager view of the market.
func (m *Memory) Positions() *Positions {
	return &Positions{m: m}
}

// Router returns the swap router view of the market.
func (m *Memory) Router() *Router {
	return &Router{m: m}
}

// RegisterReceiver installs the position receive hook of a contract address.
func (m *Memory) RegisterReceiver(addr common.Address, r PositionReceiver) {
	m.receivers[addr] = r
}

// PoolAddress derives the pool address for an unordered token pair and fee.
func (m *Memory) PoolAddress(tokenA, tokenB common.Address, fee uint32) common.Address {
	key, _ := sortedKey(tokenA, tokenB, fee)
	return computePoolAddress(m.addrs.Factory, key)
}

// CreatePool creates the pool for a token pair and fee tier.
func (m *Memory) CreatePool(_ context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	key, err := sortedKey(tokenA, tokenB, fee)
	if err != nil {
		return common.Address{}, err
	}
	spacing, err := pricing.TickSpacing(fee)
	if err != nil {
		return common.Address{}, err
	}
	if _, ok := m.poolByKey[key]; ok {
		return common.Address{}, fmt.Errorf("%w: %s/%s fee %d", ErrPoolExists, key.token0.Hex(), key.token1.Hex(), fee)
	}

	addr := computePoolAddress(m.addrs.Factory, key)
	if err := m.ledger.DeployCode(addr); err != nil {
		return common.Address{}, err
	}
	m.pools[addr] = &pool{address: addr, key: key, spacing: spacing, liquidity: new(big.Int)}
	m.poolByKey[key] = addr
	m.ledger.OnRevert(func() {
		delete(m.pools, addr)
		delete(m.poolByKey, key)
	})

	m.logger.Debug("pool created", zap.String("pool", addr.Hex()), zap.Uint32("fee", fee))
	return addr, nil
}

// InitializePool sets the starting price of a pool; a pool initializes once.
func (m *Memory) InitializePool(_ context.Context, poolAddr common.Address, sqrtPriceX96 *big.Int) error {
	p, ok := m.pools[poolAddr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, poolAddr.Hex())
	}
	if p.initialized {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, poolAddr.Hex())
	}
	tick, err := utils.GetTickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		return fmt.Errorf("initialize %s: %w", poolAddr.Hex(), err)
	}

	prev := *p
	p.initialized = true
	p.sqrtPriceX96 = new(big.Int).Set(sqrtPriceX96)
	p.tick = int32(tick)
	m.ledger.OnRevert(func() { *p = prev })
	return nil
}

// TickSpacing returns the spacing enabled for a fee tier.
func (m *Memory) TickSpacing(_ context.Context, fee uint32) (int32, error) {
	return pricing.TickSpacing(fee)
}

// PoolState returns the current price and tick of a pool.
func (m *Memory) PoolState(poolAddr common.Address) (sqrtPriceX96 *big.Int, tick int32, ok bool) {
	p, found := m.pools[poolAddr]
	if !found || !p.initialized {
		return nil, 0, false
	}
	return new(big.Int).Set(p.sqrtPriceX96), p.tick, true
}

func (m *Memory) poolFor(tokenA, tokenB common.Address, fee uint32) (*pool, error) {
	key, err := sortedKey(tokenA, tokenB, fee)
	if err != nil {
		return nil, err
	}
	addr, ok := m.poolByKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s fee %d", ErrPoolNotFound, key.token0.Hex(), key.token1.Hex(), fee)
	}
	p := m.pools[addr]
	if !p.initialized {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, addr.Hex())
	}
	return p, nil
}

func (m *Memory) setPoolLiquidity(p *pool, liquidity *big.Int) {
	prev := p.liquidity
	p.liquidity = liquidity
	m.ledger.OnRevert(func() { p.liquidity = prev })
}

func sortedKey(tokenA, tokenB common.Address, fee uint32) (poolKey, error) {
	switch bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) {
	case 0:
		return poolKey{}, ErrIdenticalTokens
	case 1:
		tokenA, tokenB = tokenB, tokenA
	}
	return poolKey{token0: tokenA, token1: tokenB, fee: fee}, nil
}

// computePoolAddress derives the canonical V3 pool address. Chain id and decimals do
// not enter the derivation.
func computePoolAddress(factory common.Address, key poolKey) common.Address {
	addr, err := utils.ComputePoolAddress(factory,
		entities.NewToken(1, key.token0, 18, "", ""),
		entities.NewToken(1, key.token1, 18, "", ""),
		constants.FeeAmount(key.fee), "")
	if err != nil {
		return common.Address{}
	}
	return addr
}
