package devnet

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpad/internal/launch"
	"launchpad/internal/ledger"
	"launchpad/internal/locker"
	"launchpad/internal/market"
)

// Config places every devnet contract. Zero addresses take the defaults below.
type Config struct {
	ChainID         uint64
	StartTime       uint64
	Reserve         common.Address
	Admin           common.Address
	Collector       common.Address
	Orchestrator    common.Address
	Registry        common.Address
	Factory         common.Address
	PositionManager common.Address
	Router          common.Address
	AssetInitCode   []byte
	LockDuration    time.Duration
	FeeCut          uint16
	LaunchFee       *big.Int
}

var (
	defaultReserve         = common.HexToAddress("0x4200000000000000000000000000000000000006")
	defaultAdmin           = common.HexToAddress("0x00000000000000000000000000000000000ad001")
	defaultCollector       = common.HexToAddress("0x00000000000000000000000000000000000c0c01")
	defaultOrchestrator    = common.HexToAddress("0x0000000000000000000000000000000000009001")
	defaultRegistry        = common.HexToAddress("0x0000000000000000000000000000000000009002")
	defaultFactory         = common.HexToAddress("0x0000000000000000000000000000000000009003")
	defaultPositionManager = common.HexToAddress("0x0000000000000000000000000000000000009004")
	defaultRouter          = common.HexToAddress("0x0000000000000000000000000000000000009005")
)

func (c Config) withDefaults() Config {
	pick := func(v *common.Address, def common.Address) {
		if *v == (common.Address{}) {
			*v = def
		}
	}
	pick(&c.Reserve, defaultReserve)
	pick(&c.Admin, defaultAdmin)
	pick(&c.Collector, defaultCollector)
	pick(&c.Orchestrator, defaultOrchestrator)
	pick(&c.Registry, defaultRegistry)
	pick(&c.Factory, defaultFactory)
	pick(&c.PositionManager, defaultPositionManager)
	pick(&c.Router, defaultRouter)
	if c.ChainID == 0 {
		c.ChainID = 31337
	}
	if c.LockDuration == 0 {
		c.LockDuration = 365 * 24 * time.Hour
	}
	return c
}

// Network is a deployed devnet.
type Network struct {
	Ledger       *ledger.Ledger
	Market       *market.Memory
	Registry     *locker.Registry
	Orchestrator *launch.Orchestrator

	cfg    Config
	logger *zap.Logger
}

// New deploys the reserve asset, the market, the registry and the orchestrator, and
// allows the orchestrator to deposit positions into the registry.
func New(cfg Config, logger *zap.Logger) (*Network, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	l := ledger.New(ledger.Options{ChainID: cfg.ChainID, StartTime: cfg.StartTime, Logger: logger})
	n := &Network{Ledger: l, cfg: cfg, logger: logger}

	err := l.Call(func() error {
		if _, err := l.DeployToken(ledger.TokenSpec{
			Address:  cfg.Reserve,
			Name:     "Wrapped Ether",
			Symbol:   "WETH",
			Decimals: 18,
			Mintable: true,
		}); err != nil {
			return fmt.Errorf("deploy reserve: %w", err)
		}

		m, err := market.NewMemory(l, market.Addresses{
			Factory:         cfg.Factory,
			PositionManager: cfg.PositionManager,
			Router:          cfg.Router,
		}, logger)
		if err != nil {
			return err
		}
		reg, err := locker.New(l, m.Positions(), locker.Config{
			Address:    cfg.Registry,
			Admin:      cfg.Admin,
			Collector:  cfg.Collector,
			Depositors: []common.Address{cfg.Orchestrator},
		}, logger)
		if err != nil {
			return err
		}
		m.RegisterReceiver(cfg.Registry, reg)

		orch, err := launch.New(launch.Config{
			Address:       cfg.Orchestrator,
			Admin:         cfg.Admin,
			Reserve:       cfg.Reserve,
			AssetInitCode: cfg.AssetInitCode,
			LockDuration:  cfg.LockDuration,
			FeeCut:        cfg.FeeCut,
			LaunchFee:     cfg.LaunchFee,
		}, launch.Deps{
			Ledger:    l,
			Factory:   m,
			Positions: m.Positions(),
			Router:    m.Router(),
			Locker:    reg,
		}, logger)
		if err != nil {
			return err
		}

		n.Market, n.Registry, n.Orchestrator = m, reg, orch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Network) Config() Config {
	return n.cfg
}

// Fund mints reserve to an account.
func (n *Network) Fund(to common.Address, amount *big.Int) error {
	return n.Ledger.Call(func() error {
		return n.Ledger.Mint(n.cfg.Reserve, to, amount)
	})
}

// Launch submits a launch as one transaction.
func (n *Network) Launch(ctx context.Context, req launch.Request) (launch.Result, error) {
	var res launch.Result
	err := n.Ledger.Call(func() error {
		var err error
		res, err = n.Orchestrator.Launch(ctx, req)
		return err
	})
	return res, err
}

// Trade buys the asset with reserveIn from the trader's reserve balance and sells half
// of what it got back, so fees accrue on both legs of the pool.
func (n *Network) Trade(ctx context.Context, trader, asset common.Address, feeTier uint32, reserveIn *big.Int) error {
	router := n.Market.Router()
	return n.Ledger.Call(func() error {
		if err := n.Ledger.Approve(n.cfg.Reserve, trader, router.Address(), reserveIn); err != nil {
			return err
		}
		bought, err := router.ExactInputSingle(ctx, trader, market.ExactInputSingleParams{
			TokenIn:          n.cfg.Reserve,
			TokenOut:         asset,
			Fee:              feeTier,
			Recipient:        trader,
			AmountIn:         reserveIn,
			AmountOutMinimum: big.NewInt(1),
		})
		if err != nil {
			return fmt.Errorf("buy: %w", err)
		}

		sell := new(big.Int).Rsh(bought, 1)
		if sell.Sign() == 0 {
			return nil
		}
		if err := n.Ledger.Approve(asset, trader, router.Address(), sell); err != nil {
			return err
		}
		if _, err := router.ExactInputSingle(ctx, trader, market.ExactInputSingleParams{
			TokenIn:          asset,
			TokenOut:         n.cfg.Reserve,
			Fee:              feeTier,
			Recipient:        trader,
			AmountIn:         sell,
			AmountOutMinimum: big.NewInt(1),
		}); err != nil {
			return fmt.Errorf("sell: %w", err)
		}
		return nil
	})
}

// Advance moves the clock forward.
func (n *Network) Advance(d time.Duration) {
	n.Ledger.Advance(d)
}

// CollectFees collects the fees of one locked position as a transaction.
func (n *Network) CollectFees(ctx context.Context, caller common.Address, id uint64) (locker.FeeCollection, error) {
	var out locker.FeeCollection
	err := n.Ledger.Call(func() error {
		var err error
		out, err = n.Registry.CollectFees(ctx, caller, id)
		return err
	})
	return out, err
}

// Withdraw releases an unlocked position to its owner as a transaction.
func (n *Network) Withdraw(ctx context.Context, caller common.Address, id uint64) error {
	return n.Ledger.Call(func() error {
		return n.Registry.Withdraw(ctx, caller, id)
	})
}

// ContractAddresses are the addresses whose events the indexer follows.
func (n *Network) ContractAddresses() []common.Address {
	return []common.Address{n.cfg.Orchestrator, n.cfg.Registry}
}
