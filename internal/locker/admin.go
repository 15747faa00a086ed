package locker

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// SetCollector changes the fee collector. Admin only.
func (r *Registry) SetCollector(caller, collector common.Address) error {
	return r.enter(func() error {
		if caller != r.admin {
			return fmt.Errorf("%w: admin %s", ErrUnauthorized, caller.Hex())
		}
		previous := r.collector
		r.collector = collector
		r.ledger.OnRevert(func() { r.collector = previous })
		r.logger.Info("collector changed", zap.String("collector", collector.Hex()))
		return nil
	})
}

// AddDepositor authorizes addr to lock positions. Admin only.
func (r *Registry) AddDepositor(caller, addr common.Address) error {
	return r.setDepositor(caller, addr, true)
}

// RemoveDepositor revokes addr. Existing locks are unaffected.
func (r *Registry) RemoveDepositor(caller, addr common.Address) error {
	return r.setDepositor(caller, addr, false)
}

func (r *Registry) setDepositor(caller, addr common.Address, allowed bool) error {
	return r.enter(func() error {
		if caller != r.admin {
			return fmt.Errorf("%w: admin %s", ErrUnauthorized, caller.Hex())
		}
		previous, had := r.depositors[addr]
		if allowed {
			r.depositors[addr] = true
		} else {
			delete(r.depositors, addr)
		}
		r.ledger.OnRevert(func() {
			if had {
				r.depositors[addr] = previous
				return
			}
			delete(r.depositors, addr)
		})
		r.logger.Info("depositor updated", zap.String("depositor", addr.Hex()), zap.Bool("allowed", allowed))
		return nil
	})
}
