package dex

import (
	"defiFetch/internal/model"
)

// PositionManagerDecoder decodes NonfungiblePositionManager liquidity events.
type PositionManagerDecoder struct {
	table eventTable
}

func NewPositionManagerDecoder() (*PositionManagerDecoder, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, err
	}
	return &PositionManagerDecoder{table: newEventTable(parsed, map[string]model.EventKind{
		"IncreaseLiquidity": model.KindIncreaseLiquidity,
		"DecreaseLiquidity": model.KindDecreaseLiquidity,
		"Collect":           model.KindProxyCollect,
	})}, nil
}

func (d *PositionManagerDecoder) Kind(topic0 string) (model.EventKind, bool) {
	_, kind, ok := d.table.lookup(topic0)
	return kind, ok
}

func (d *PositionManagerDecoder) Topic0(kind model.EventKind) string {
	return d.table.topic0(kind)
}

func (d *PositionManagerDecoder) Decode(log model.LogRecord) (model.TypedEvent, error) {
	_, kind, values, err := d.table.unpack(log)
	if err != nil {
		return model.TypedEvent{}, err
	}

	tokenID, err := values.integer("tokenId")
	if err != nil {
		return model.TypedEvent{}, err
	}

	var decoded interface{}
	switch kind {
	case model.KindProxyCollect:
		recipient, err := values.address("recipient")
		if err != nil {
			return model.TypedEvent{}, err
		}
		amounts, err := values.integers("amount0", "amount1")
		if err != nil {
			return model.TypedEvent{}, err
		}
		decoded = model.PositionCollectEventData{TokenID: tokenID, Recipient: recipient, Amount0: amounts[0], Amount1: amounts[1]}
	default:
		amounts, err := values.integers("liquidity", "amount0", "amount1")
		if err != nil {
			return model.TypedEvent{}, err
		}
		if kind == model.KindIncreaseLiquidity {
			decoded = model.IncreaseLiquidityEventData{TokenID: tokenID, Liquidity: amounts[0], Amount0: amounts[1], Amount1: amounts[2]}
		} else {
			decoded = model.DecreaseLiquidityEventData{TokenID: tokenID, Liquidity: amounts[0], Amount0: amounts[1], Amount1: amounts[2]}
		}
	}
	return typedEvent(log, kind, decoded), nil
}
