package model

// EventKind classifies a decoded log.
type EventKind string

const (
	KindSwap    EventKind = "SWAP"
	KindMint    EventKind = "MINT"
	KindBurn    EventKind = "BURN"
	KindCollect EventKind = "COLLECT"

	KindIncreaseLiquidity EventKind = "INCREASE_LIQUIDITY"
	KindDecreaseLiquidity EventKind = "DECREASE_LIQUIDITY"
	KindProxyCollect      EventKind = "PROXY_COLLECT"
)

// ProxyCounterpart returns the position-manager kind emitted alongside a pool
// liquidity event, or "" for kinds without one.
func (k EventKind) ProxyCounterpart() EventKind {
	switch k {
	case KindMint:
		return KindIncreaseLiquidity
	case KindBurn:
		return KindDecreaseLiquidity
	case KindCollect:
		return KindProxyCollect
	default:
		return ""
	}
}

// TypedEvent is a decoded log enriched with its chain position.
type TypedEvent struct {
	BlockNumber uint64      `json:"block_number"`
	Timestamp   uint64      `json:"block_timestamp"`
	TxHash      string      `json:"transaction_hash"`
	TxIndex     uint32      `json:"transaction_index"`
	LogIndex    uint32      `json:"log_index"`
	Address     string      `json:"address"`
	Kind        EventKind   `json:"kind"`
	Decoded     interface{} `json:"decoded"`
	Raw         *RawLogRef  `json:"raw,omitempty"`
}

// RawLogRef keeps the encoded payload for traceability and reconciliation.
type RawLogRef struct {
	Topics []string `json:"topics"`
	Data   string   `json:"data"`
}
