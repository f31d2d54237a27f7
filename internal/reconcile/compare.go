package reconcile

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"defiFetch/internal/model"
)

const wordSize = 32

// ConsistencyError reports an event that violates the expected payload layout.
type ConsistencyError struct {
	TxHash   string
	LogIndex uint32
	Reason   string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("inconsistent log %s#%d: %s", e.TxHash, e.LogIndex, e.Reason)
}

// payload word counts: pool event, proxy event.
var payloadWords = map[model.EventKind][2]int{
	model.KindMint:    {4, 3},
	model.KindBurn:    {3, 3},
	model.KindCollect: {3, 3},
}

// PayloadsMatch compares a pool liquidity event payload with its position
// manager counterpart. Mint compares everything after the sender word exactly.
// Burn and collect compare the first word exactly and later words within tolerance.
func PayloadsMatch(kind model.EventKind, poolData, proxyData []byte, tolerance int64) (bool, error) {
	words, ok := payloadWords[kind]
	if !ok {
		return false, fmt.Errorf("kind %s has no proxy counterpart", kind)
	}
	if len(poolData) != words[0]*wordSize {
		return false, fmt.Errorf("pool %s payload is %d bytes, want %d", kind, len(poolData), words[0]*wordSize)
	}
	if len(proxyData) != words[1]*wordSize {
		return false, fmt.Errorf("proxy %s payload is %d bytes, want %d", kind, len(proxyData), words[1]*wordSize)
	}

	if kind == model.KindMint {
		return bytes.Equal(poolData[wordSize:], proxyData), nil
	}

	if !bytes.Equal(poolData[:wordSize], proxyData[:wordSize]) {
		return false, nil
	}
	limit := big.NewInt(tolerance)
	diff := new(big.Int)
	for offset := wordSize; offset < len(poolData); offset += wordSize {
		a := new(big.Int).SetBytes(poolData[offset : offset+wordSize])
		b := new(big.Int).SetBytes(proxyData[offset : offset+wordSize])
		if diff.Sub(a, b).Abs(diff).Cmp(limit) > 0 {
			return false, nil
		}
	}
	return true, nil
}

func decodePayload(event model.TypedEvent) ([]byte, error) {
	if event.Raw == nil {
		return nil, &ConsistencyError{TxHash: event.TxHash, LogIndex: event.LogIndex, Reason: "missing raw payload"}
	}
	data, err := hexutil.Decode(event.Raw.Data)
	if err != nil {
		return nil, &ConsistencyError{TxHash: event.TxHash, LogIndex: event.LogIndex, Reason: fmt.Sprintf("invalid payload hex: %v", err)}
	}
	return data, nil
}
