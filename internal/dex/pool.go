package dex

import (
	"fmt"

	"defiFetch/internal/model"
)

// PoolDecoder decodes Uniswap V3 pool Swap, Mint, Burn and Collect logs.
type PoolDecoder struct {
	table eventTable
}

func NewPoolDecoder() (*PoolDecoder, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, err
	}
	return &PoolDecoder{table: newEventTable(parsed, map[string]model.EventKind{
		"Swap":    model.KindSwap,
		"Mint":    model.KindMint,
		"Burn":    model.KindBurn,
		"Collect": model.KindCollect,
	})}, nil
}

func (d *PoolDecoder) Kind(topic0 string) (model.EventKind, bool) {
	_, kind, ok := d.table.lookup(topic0)
	return kind, ok
}

// Topic0 returns the signature hash for kind, or "" for a non-pool kind.
func (d *PoolDecoder) Topic0(kind model.EventKind) string {
	return d.table.topic0(kind)
}

func (d *PoolDecoder) Decode(log model.LogRecord) (model.TypedEvent, error) {
	_, kind, values, err := d.table.unpack(log)
	if err != nil {
		return model.TypedEvent{}, err
	}

	var decoded interface{}
	switch kind {
	case model.KindSwap:
		decoded, err = decodeSwap(values)
	case model.KindMint:
		decoded, err = decodeMint(values)
	case model.KindBurn:
		decoded, err = decodeBurn(values)
	case model.KindCollect:
		decoded, err = decodeCollect(values)
	default:
		err = fmt.Errorf("unsupported pool kind: %s", kind)
	}
	if err != nil {
		return model.TypedEvent{}, err
	}
	return typedEvent(log, kind, decoded), nil
}

func decodeSwap(f fields) (model.SwapEventData, error) {
	sender, err := f.address("sender")
	if err != nil {
		return model.SwapEventData{}, err
	}
	recipient, err := f.address("recipient")
	if err != nil {
		return model.SwapEventData{}, err
	}
	amounts, err := f.integers("amount0", "amount1", "sqrtPriceX96", "liquidity")
	if err != nil {
		return model.SwapEventData{}, err
	}
	tick, err := f.tick("tick")
	if err != nil {
		return model.SwapEventData{}, err
	}
	return model.SwapEventData{
		Sender:       sender,
		Recipient:    recipient,
		Amount0:      amounts[0],
		Amount1:      amounts[1],
		SqrtPriceX96: amounts[2],
		Liquidity:    amounts[3],
		Tick:         tick,
	}, nil
}

func decodeMint(f fields) (model.MintEventData, error) {
	sender, err := f.address("sender")
	if err != nil {
		return model.MintEventData{}, err
	}
	owner, err := f.address("owner")
	if err != nil {
		return model.MintEventData{}, err
	}
	lower, upper, err := tickRange(f)
	if err != nil {
		return model.MintEventData{}, err
	}
	amounts, err := f.integers("amount", "amount0", "amount1")
	if err != nil {
		return model.MintEventData{}, err
	}
	return model.MintEventData{
		Sender:    sender,
		Owner:     owner,
		TickLower: lower,
		TickUpper: upper,
		Amount:    amounts[0],
		Amount0:   amounts[1],
		Amount1:   amounts[2],
	}, nil
}

func decodeBurn(f fields) (model.BurnEventData, error) {
	owner, err := f.address("owner")
	if err != nil {
		return model.BurnEventData{}, err
	}
	lower, upper, err := tickRange(f)
	if err != nil {
		return model.BurnEventData{}, err
	}
	amounts, err := f.integers("amount", "amount0", "amount1")
	if err != nil {
		return model.BurnEventData{}, err
	}
	return model.BurnEventData{
		Owner:     owner,
		TickLower: lower,
		TickUpper: upper,
		Amount:    amounts[0],
		Amount0:   amounts[1],
		Amount1:   amounts[2],
	}, nil
}

func decodeCollect(f fields) (model.CollectEventData, error) {
	owner, err := f.address("owner")
	if err != nil {
		return model.CollectEventData{}, err
	}
	recipient, err := f.address("recipient")
	if err != nil {
		return model.CollectEventData{}, err
	}
	lower, upper, err := tickRange(f)
	if err != nil {
		return model.CollectEventData{}, err
	}
	amounts, err := f.integers("amount0", "amount1")
	if err != nil {
		return model.CollectEventData{}, err
	}
	return model.CollectEventData{
		Owner:     owner,
		Recipient: recipient,
		TickLower: lower,
		TickUpper: upper,
		Amount0:   amounts[0],
		Amount1:   amounts[1],
	}, nil
}

func tickRange(f fields) (int32, int32, error) {
	lower, err := f.tick("tickLower")
	if err != nil {
		return 0, 0, err
	}
	upper, err := f.tick("tickUpper")
	if err != nil {
		return 0, 0, err
	}
	return lower, upper, nil
}
