package locker

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"launchpad/internal/events"
	"launchpad/internal/ledger"
	"launchpad/internal/market"
)

// FeeCutDenominator expresses fee cuts in parts per thousand.
const FeeCutDenominator = 1000

var (
	ErrNotInitialized     = errors.New("position not locked")
	ErrNotOwner           = errors.New("caller is not lock owner")
	ErrStillLocked        = errors.New("position still locked")
	ErrAlreadyInitialized = errors.New("position already initialized")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidFeeCut      = errors.New("fee cut above 1000")
	ErrPositionNotHeld    = errors.New("position not held by registry")
	ErrInvalidOwner       = errors.New("invalid lock owner")
	ErrReentrantCall      = ledger.ErrReentrantCall
)

// Record is the lock state of one position.
type Record struct {
	PositionID uint64
	Owner      common.Address
	UnlockTime uint64
	FeeCut     uint16
}

// Config places the registry on the ledger and names its privileged parties.
type Config struct {
	Address common.Address
	Admin   common.Address
	// Collector receives the fee cut of every collection.
	Collector  common.Address
	Depositors []common.Address
}

// Registry is the position lock registry.
type Registry struct {
	ledger    *ledger.Ledger
	positions market.PositionManager
	logger    *zap.Logger

	addr       common.Address
	admin      common.Address
	collector  common.Address
	depositors map[common.Address]bool

	records map[uint64]*Record
	// initialized keeps every id ever locked, so withdrawn ids stay spent.
	initialized map[uint64]struct{}
	byOwner     map[common.Address]map[uint64]struct{}

	guard ledger.Guard
}

var _ market.PositionReceiver = (*Registry)(nil)

// New deploys a registry at cfg.Address.
func New(l *ledger.Ledger, positions market.PositionManager, cfg Config, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := l.DeployCode(cfg.Address); err != nil {
		return nil, fmt.Errorf("deploy registry: %w", err)
	}
	r := &Registry{
		ledger:      l,
		positions:   positions,
		logger:      logger,
		addr:        cfg.Address,
		admin:       cfg.Admin,
		collector:   cfg.Collector,
		depositors:  make(map[common.Address]bool),
		records:     make(map[uint64]*Record),
		initialized: make(map[uint64]struct{}),
		byOwner:     make(map[common.Address]map[uint64]struct{}),
	}
	for _, d := range cfg.Depositors {
		r.depositors[d] = true
	}
	return r, nil
}

func (r *Registry) Address() common.Address {
	return r.addr
}

func (r *Registry) Collector() common.Address {
	return r.collector
}

// IsDepositor reports whether addr may lock positions.
func (r *Registry) IsDepositor(addr common.Address) bool {
	return r.depositors[addr]
}

// Record returns the lock record of a position.
func (r *Registry) Record(id uint64) (Record, bool) {
	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// PositionsOf lists the locked positions of owner in ascending id order.
func (r *Registry) PositionsOf(owner common.Address) []uint64 {
	ids := make([]uint64, 0, len(r.byOwner[owner]))
	for id := range r.byOwner[owner] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// OnPositionReceived accepts positions delivered by the configured position manager
// on behalf of an authorized depositor.
func (r *Registry) OnPositionReceived(_ context.Context, manager, _, from common.Address, id uint64) error {
	if manager != r.positions.Address() {
		return fmt.Errorf("%w: position manager %s", ErrUnauthorized, manager.Hex())
	}
	if !r.depositors[from] {
		return fmt.Errorf("%w: depositor %s", ErrUnauthorized, from.Hex())
	}
	r.logger.Debug("position received", zap.Uint64("position_id", id), zap.String("from", from.Hex()))
	return nil
}

// InitializePosition locks a position the registry already holds. An id locks at
// most once, even after it has been withdrawn.
func (r *Registry) InitializePosition(ctx context.Context, caller common.Address, id uint64, owner common.Address, unlockTime uint64, feeCut uint16) error {
	return r.enter(func() error {
		if _, ok := r.initialized[id]; ok {
			return fmt.Errorf("%w: %d", ErrAlreadyInitialized, id)
		}
		if !r.depositors[caller] {
			return fmt.Errorf("%w: depositor %s", ErrUnauthorized, caller.Hex())
		}
		if owner == (common.Address{}) {
			return ErrInvalidOwner
		}
		held, err := r.positions.OwnerOf(ctx, id)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPositionNotHeld, err)
		}
		if held != r.addr {
			return fmt.Errorf("%w: %d owned by %s", ErrPositionNotHeld, id, held.Hex())
		}
		if feeCut > FeeCutDenominator {
			return fmt.Errorf("%w: %d", ErrInvalidFeeCut, feeCut)
		}

		rec := &Record{PositionID: id, Owner: owner, UnlockTime: unlockTime, FeeCut: feeCut}
		r.putRecord(rec)
		r.initialized[id] = struct{}{}
		r.ledger.OnRevert(func() { delete(r.initialized, id) })

		if err := r.emit(events.PositionLocked{
			PositionID: id,
			Owner:      owner,
			UnlockTime: unlockTime,
			FeeCut:     uint64(feeCut),
		}); err != nil {
			return err
		}
		r.logger.Info("position locked",
			zap.Uint64("position_id", id),
			zap.String("owner", owner.Hex()),
			zap.Uint64("unlock_time", unlockTime),
			zap.Uint16("fee_cut", feeCut),
		)
		return nil
	})
}

// Withdraw returns an unlocked position to its lock owner. The record is gone before
// the position leaves.
func (r *Registry) Withdraw(ctx context.Context, caller common.Address, id uint64) error {
	return r.enter(func() error {
		rec, err := r.ownedRecord(caller, id)
		if err != nil {
			return err
		}
		if now := r.ledger.Now(); now < rec.UnlockTime {
			return fmt.Errorf("%w: %d until %d, now %d", ErrStillLocked, id, rec.UnlockTime, now)
		}

		r.deleteRecord(rec)
		if err := r.positions.SafeTransferFrom(ctx, r.addr, r.addr, rec.Owner, id); err != nil {
			return fmt.Errorf("return position %d: %w", id, err)
		}
		if err := r.emit(events.PositionWithdrawn{PositionID: id, Owner: rec.Owner}); err != nil {
			return err
		}
		r.logger.Info("position withdrawn", zap.Uint64("position_id", id), zap.String("owner", rec.Owner.Hex()))
		return nil
	})
}

// TransferLockOwnership moves fee and withdrawal rights of a position to newOwner.
func (r *Registry) TransferLockOwnership(_ context.Context, caller common.Address, id uint64, newOwner common.Address) error {
	return r.enter(func() error {
		rec, err := r.ownedRecord(caller, id)
		if err != nil {
			return err
		}
		if newOwner == (common.Address{}) || newOwner == r.addr {
			return fmt.Errorf("%w: %s", ErrInvalidOwner, newOwner.Hex())
		}

		previous := rec.Owner
		r.deleteRecord(rec)
		r.putRecord(&Record{PositionID: id, Owner: newOwner, UnlockTime: rec.UnlockTime, FeeCut: rec.FeeCut})

		return r.emit(events.LockOwnerChanged{PositionID: id, PreviousOwner: previous, NewOwner: newOwner})
	})
}

// enter runs fn under the reentrancy guard as one unit: an error reverts everything
// fn did.
func (r *Registry) enter(fn func() error) error {
	if err := r.guard.Enter(); err != nil {
		return err
	}
	defer r.guard.Exit()

	snap := r.ledger.Snapshot()
	if err := fn(); err != nil {
		if revertErr := r.ledger.RevertToSnapshot(snap); revertErr != nil {
			return errors.Join(err, revertErr)
		}
		return err
	}
	return nil
}

func (r *Registry) ownedRecord(caller common.Address, id uint64) (*Record, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotInitialized, id)
	}
	if rec.Owner != caller {
		return nil, fmt.Errorf("%w: %d", ErrNotOwner, id)
	}
	return rec, nil
}

func (r *Registry) putRecord(rec *Record) {
	r.records[rec.PositionID] = rec
	ids, ok := r.byOwner[rec.Owner]
	if !ok {
		ids = make(map[uint64]struct{})
		r.byOwner[rec.Owner] = ids
	}
	ids[rec.PositionID] = struct{}{}
	r.ledger.OnRevert(func() {
		delete(r.records, rec.PositionID)
		delete(r.byOwner[rec.Owner], rec.PositionID)
		if len(r.byOwner[rec.Owner]) == 0 {
			delete(r.byOwner, rec.Owner)
		}
	})
}

func (r *Registry) deleteRecord(rec *Record) {
	delete(r.records, rec.PositionID)
	delete(r.byOwner[rec.Owner], rec.PositionID)
	if len(r.byOwner[rec.Owner]) == 0 {
		delete(r.byOwner, rec.Owner)
	}
	r.ledger.OnRevert(func() {
		r.records[rec.PositionID] = rec
		ids, ok := r.byOwner[rec.Owner]
		if !ok {
			ids = make(map[uint64]struct{})
			r.byOwner[rec.Owner] = ids
		}
		ids[rec.PositionID] = struct{}{}
	})
}

type encoder interface {
	Encode(contract common.Address) (types.Log, error)
}

func (r *Registry) emit(e encoder) error {
	log, err := e.Encode(r.addr)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	r.ledger.Emit(log)
	return nil
}
