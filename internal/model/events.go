package model

// TokenCreatedData is the decoded TokenCreated event payload.
type TokenCreatedData struct {
	Asset           string `json:"asset"`
	PositionID      uint64 `json:"position_id"`
	Creator         string `json:"creator"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Supply          string `json:"supply"`
	Recipient       string `json:"recipient"`
	RecipientAmount string `json:"recipient_amount"`
}

// PositionLockedData is the decoded PositionLocked event payload.
type PositionLockedData struct {
	PositionID uint64 `json:"position_id"`
	Owner      string `json:"owner"`
	UnlockTime uint64 `json:"unlock_time"`
	FeeCut     uint64 `json:"fee_cut"`
}

// FeesCollectedData is the decoded FeesCollected event payload. Amounts are decimal
// strings in raw token units.
type FeesCollectedData struct {
	PositionID      uint64 `json:"position_id"`
	Owner           string `json:"owner"`
	Collector       string `json:"collector"`
	Token0          string `json:"token0"`
	Token1          string `json:"token1"`
	Amount0         string `json:"amount0"`
	Amount1         string `json:"amount1"`
	CollectorShare0 string `json:"collector_share0"`
	CollectorShare1 string `json:"collector_share1"`
}

// PositionWithdrawnData is the decoded PositionWithdrawn event payload.
type PositionWithdrawnData struct {
	PositionID uint64 `json:"position_id"`
	Owner      string `json:"owner"`
}

// LockOwnerChangedData is the decoded LockOwnerChanged event payload.
type LockOwnerChangedData struct {
	PositionID    uint64 `json:"position_id"`
	PreviousOwner string `json:"previous_owner"`
	NewOwner      string `json:"new_owner"`
}
