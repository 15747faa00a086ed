package model

// LaunchRecord is the stored form of a completed launch.
type LaunchRecord struct {
	ChainID         uint64 `json:"chain_id"`
	Asset           string `json:"asset"`
	PositionID      uint64 `json:"position_id"`
	Creator         string `json:"creator"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Supply          string `json:"supply"`
	Recipient       string `json:"recipient"`
	RecipientAmount string `json:"recipient_amount"`
	BlockNumber     uint64 `json:"block_number"`
	TxHash          string `json:"tx_hash"`
	Timestamp       uint64 `json:"timestamp"`
}

// LockRecord is the stored form of a position lock.
type LockRecord struct {
	ChainID    uint64 `json:"chain_id"`
	Registry   string `json:"registry"`
	PositionID uint64 `json:"position_id"`
	Owner      string `json:"owner"`
	UnlockTime uint64 `json:"unlock_time"`
	FeeCut     uint64 `json:"fee_cut"`
	Withdrawn  bool   `json:"withdrawn"`
	UpdatedAt  uint64 `json:"updated_at"`
}

// PositionFeeTotals accumulates collected fees of a position across FeesCollected events.
type PositionFeeTotals struct {
	ChainID         uint64
	Registry        string
	PositionID      uint64
	Token0          string
	Token1          string
	Collections     uint64
	Amount0         string
	Amount1         string
	CollectorShare0 string
	CollectorShare1 string
	OwnerShare0     string
	OwnerShare1     string
	Amount0Human    *string
	Amount1Human    *string
	FirstBlock      uint64
	LastBlock       uint64
	LastCollectedAt uint64
}
