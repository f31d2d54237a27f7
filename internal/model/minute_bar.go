package model

import "time"

// MinuteBar stores swap activity aggregated over one minute of a pool.
type MinuteBar struct {
	PoolAddress  string
	Minute       time.Time
	SwapCount    uint64
	Volume0      string
	Volume1      string
	Fee0         string
	Fee1         string
	OpenTick     int32
	CloseTick    int32
	SqrtPriceX96 string
	Liquidity    string
}
