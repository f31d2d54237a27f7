package model

import "sort"

// LogRecord is the normalized representation of a chain log. Timestamp is zero
// until it has been back-filled from the height cache.
type LogRecord struct {
	Chain       string   `json:"chain"`
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	TxHash      string   `json:"transaction_hash"`
	TxIndex     uint32   `json:"transaction_index"`
	LogIndex    uint32   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed,omitempty"`
	Timestamp   uint64   `json:"block_timestamp,omitempty"`
}

// HasTimestamp reports whether the block timestamp has been resolved.
func (lr LogRecord) HasTimestamp() bool {
	return lr.Timestamp != 0
}

// Topic0 returns the event signature topic or "" when the log is anonymous.
func (lr LogRecord) Topic0() string {
	if len(lr.Topics) == 0 {
		return ""
	}
	return lr.Topics[0]
}

// Key identifies a log uniquely within a chain.
func (lr LogRecord) Key() LogKey {
	return LogKey{TxHash: lr.TxHash, LogIndex: lr.LogIndex}
}

// LogKey identifies a log by transaction hash and log index.
type LogKey struct {
	TxHash   string
	LogIndex uint32
}

// SortLogs orders logs by (block_number, transaction_index, log_index).
func SortLogs(logs []LogRecord) {
	sort.SliceStable(logs, func(i, j int) bool {
		return lessLog(logs[i], logs[j])
	})
}

func lessLog(a, b LogRecord) bool {
	if a.BlockNumber != b.BlockNumber {
		return a.BlockNumber < b.BlockNumber
	}
	if a.TxIndex != b.TxIndex {
		return a.TxIndex < b.TxIndex
	}
	return a.LogIndex < b.LogIndex
}
