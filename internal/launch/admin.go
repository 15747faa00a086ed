package launch

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// SetDefaultLockDuration changes the lock duration of future launches.
func (o *Orchestrator) SetDefaultLockDuration(caller common.Address, d time.Duration) error {
	if err := o.onlyAdmin(caller); err != nil {
		return err
	}
	previous := o.cfg.LockDuration
	o.cfg.LockDuration = d
	o.deps.Ledger.OnRevert(func() { o.cfg.LockDuration = previous })
	o.logger.Info("lock duration changed", zap.Duration("lock_duration", d))
	return nil
}

// SetDefaultFeeCut changes the collector cut, in parts per thousand, of future locks.
func (o *Orchestrator) SetDefaultFeeCut(caller common.Address, feeCut uint16) error {
	if err := o.onlyAdmin(caller); err != nil {
		return err
	}
	if feeCut > 1000 {
		return fmt.Errorf("%w: %d", ErrInvalidFeeCut, feeCut)
	}
	previous := o.cfg.FeeCut
	o.cfg.FeeCut = feeCut
	o.deps.Ledger.OnRevert(func() { o.cfg.FeeCut = previous })
	o.logger.Info("fee cut changed", zap.Uint16("fee_cut", feeCut))
	return nil
}

// SetLaunchFee changes the reserve amount a launch must attach.
func (o *Orchestrator) SetLaunchFee(caller common.Address, fee *big.Int) error {
	if err := o.onlyAdmin(caller); err != nil {
		return err
	}
	if fee == nil || fee.Sign() < 0 {
		return fmt.Errorf("%w: negative launch fee", ErrInsufficientPayment)
	}
	previous := o.cfg.LaunchFee
	o.cfg.LaunchFee = new(big.Int).Set(fee)
	o.deps.Ledger.OnRevert(func() { o.cfg.LaunchFee = previous })
	o.logger.Info("launch fee changed", zap.String("launch_fee", fee.String()))
	return nil
}

func (o *Orchestrator) LockDuration() time.Duration { return o.cfg.LockDuration }
func (o *Orchestrator) FeeCut() uint16              { return o.cfg.FeeCut }
func (o *Orchestrator) LaunchFee() *big.Int         { return new(big.Int).Set(o.cfg.LaunchFee) }

func (o *Orchestrator) onlyAdmin(caller common.Address) error {
	if caller != o.cfg.Admin {
		return fmt.Errorf("%w: admin %s", ErrUnauthorized, caller.Hex())
	}
	return nil
}
