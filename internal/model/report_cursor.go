package model

// ReportCursor is the position of the last event folded into fee totals. A zero
// BlockNumber means only the timestamp is known.
type ReportCursor struct {
	Timestamp   uint64 `json:"last_processed_ts"`
	BlockNumber uint64 `json:"last_block"`
	LogIndex    uint64 `json:"last_log_index"`
}

// Covers reports whether an event at the given position was already processed.
// Events are ordered by (block, log index); the timestamp decides only when the
// cursor carries no block.
func (c ReportCursor) Covers(block, logIndex, ts uint64) bool {
	if c.BlockNumber == 0 {
		return ts <= c.Timestamp
	}
	if block != c.BlockNumber {
		return block < c.BlockNumber
	}
	return logIndex <= c.LogIndex
}

// Advance returns the cursor moved to the given event if that event is later.
func (c ReportCursor) Advance(block, logIndex, ts uint64) ReportCursor {
	if c.BlockNumber != 0 && c.Covers(block, logIndex, ts) {
		return c
	}
	return ReportCursor{Timestamp: ts, BlockNumber: block, LogIndex: logIndex}
}
