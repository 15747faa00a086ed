package storage

import "launchpad/internal/model"

// ChangeKind says which table row a typed event touches.
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeLaunch
	ChangeLock
	ChangeLockOwner
	ChangeWithdrawn
)

// Change is the row-level effect of one typed event. Lock carries the key fields for
// every lock change; the remaining fields are set as the kind requires.
type Change struct {
	Kind   ChangeKind
	Launch model.LaunchRecord
	Lock   model.LockRecord
}

// Project maps a typed event onto the launches and locks tables. FeesCollected has no
// row of its own here; the fee report aggregates it.
func Project(e model.TypedEvent) Change {
	lockKey := func(id uint64) model.LockRecord {
		return model.LockRecord{ChainID: e.ChainID, Registry: e.Address, PositionID: id, UpdatedAt: e.Timestamp}
	}

	switch d := e.Decoded.(type) {
	case model.TokenCreatedData:
		return Change{Kind: ChangeLaunch, Launch: model.LaunchRecord{
			ChainID:         e.ChainID,
			Asset:           d.Asset,
			PositionID:      d.PositionID,
			Creator:         d.Creator,
			Name:            d.Name,
			Symbol:          d.Symbol,
			Supply:          d.Supply,
			Recipient:       d.Recipient,
			RecipientAmount: d.RecipientAmount,
			BlockNumber:     e.BlockNumber,
			TxHash:          e.TxHash,
			Timestamp:       e.Timestamp,
		}}
	case model.PositionLockedData:
		lock := lockKey(d.PositionID)
		lock.Owner = d.Owner
		lock.UnlockTime = d.UnlockTime
		lock.FeeCut = d.FeeCut
		return Change{Kind: ChangeLock, Lock: lock}
	case model.LockOwnerChangedData:
		lock := lockKey(d.PositionID)
		lock.Owner = d.NewOwner
		return Change{Kind: ChangeLockOwner, Lock: lock}
	case model.PositionWithdrawnData:
		lock := lockKey(d.PositionID)
		lock.Owner = d.Owner
		lock.Withdrawn = true
		return Change{Kind: ChangeWithdrawn, Lock: lock}
	default:
		return Change{}
	}
}
