package aggregate

import (
	"fmt"
	"math/big"
	"time"

	"defiFetch/internal/model"
)

// Accumulator holds swap activity for one pool minute.
type Accumulator struct {
	PoolAddress string
	Minute      time.Time
	FeeTier     uint32

	SwapCount    uint64
	Volume0      *big.Int
	Volume1      *big.Int
	Fee0         *big.Int
	Fee1         *big.Int
	OpenTick     int32
	CloseTick    int32
	SqrtPriceX96 string
	Liquidity    string
}

func NewAccumulator(pool string, minute time.Time, feeTier uint32) *Accumulator {
	return &Accumulator{
		PoolAddress: pool,
		Minute:      minute,
		FeeTier:     feeTier,
		Volume0:     big.NewInt(0),
		Volume1:     big.NewInt(0),
		Fee0:        big.NewInt(0),
		Fee1:        big.NewInt(0),
	}
}

// AddSwap folds one swap into the minute. Swaps must arrive in chain order.
func (a *Accumulator) AddSwap(swap model.SwapEventData) error {
	amount0, err := parseBigInt(swap.Amount0)
	if err != nil {
		return err
	}
	amount1, err := parseBigInt(swap.Amount1)
	if err != nil {
		return err
	}

	absAdd(a.Volume0, amount0)
	absAdd(a.Volume1, amount1)

	// The positive side of a swap is the amount paid into the pool.
	if a.FeeTier > 0 {
		if amount0.Sign() < 0 && amount1.Sign() > 0 {
			a.Fee1.Add(a.Fee1, feeFromAmount(amount1, a.FeeTier))
		} else if amount1.Sign() < 0 && amount0.Sign() > 0 {
			a.Fee0.Add(a.Fee0, feeFromAmount(amount0, a.FeeTier))
		}
	}

	if a.SwapCount == 0 {
		a.OpenTick = swap.Tick
	}
	a.CloseTick = swap.Tick
	a.SqrtPriceX96 = swap.SqrtPriceX96
	a.Liquidity = swap.Liquidity
	a.SwapCount++
	return nil
}

// Bar returns the accumulated minute.
func (a *Accumulator) Bar() model.MinuteBar {
	return model.MinuteBar{
		PoolAddress:  a.PoolAddress,
		Minute:       a.Minute,
		SwapCount:    a.SwapCount,
		Volume0:      a.Volume0.String(),
		Volume1:      a.Volume1.String(),
		Fee0:         a.Fee0.String(),
		Fee1:         a.Fee1.String(),
		OpenTick:     a.OpenTick,
		CloseTick:    a.CloseTick,
		SqrtPriceX96: a.SqrtPriceX96,
		Liquidity:    a.Liquidity,
	}
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

func absAdd(target *big.Int, value *big.Int) {
	if value == nil || target == nil {
		return
	}
	target.Add(target, new(big.Int).Abs(value))
}

func feeFromAmount(amountIn *big.Int, feeTier uint32) *big.Int {
	if amountIn == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Abs(amountIn)
	fee.Mul(fee, big.NewInt(int64(feeTier)))
	fee.Div(fee, big.NewInt(1_000_000))
	return fee
}
