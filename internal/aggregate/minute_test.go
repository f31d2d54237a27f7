package aggregate

import (
	"testing"
	"time"

	"defiFetch/internal/model"
)

func swapEvent(block uint64, idx uint32, ts uint64, amount0, amount1 string, tick int32) model.TypedEvent {
	return model.TypedEvent{
		BlockNumber: block,
		LogIndex:    idx,
		Timestamp:   ts,
		Address:     "0xpool",
		Kind:        model.KindSwap,
		Decoded: model.SwapEventData{
			Amount0:      amount0,
			Amount1:      amount1,
			SqrtPriceX96: "79228162514264337593543950336",
			Liquidity:    "1000",
			Tick:         tick,
		},
	}
}

func TestMinuteBars(t *testing.T) {
	events := []model.TypedEvent{
		swapEvent(2, 0, 1_700_000_010, "-500", "1000000", 11),
		swapEvent(1, 0, 1_700_000_005, "2000000", "-900", 10),
		{BlockNumber: 1, LogIndex: 1, Timestamp: 1_700_000_005, Kind: model.KindMint},
		swapEvent(9, 0, 1_700_000_100, "100", "-100", 12),
	}

	bars, err := MinuteBars(events, 3000)
	if err != nil {
		t.Fatalf("minute bars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}

	first := bars[0]
	if !first.Minute.Equal(time.Unix(1_699_999_980, 0)) {
		t.Fatalf("unexpected minute %s", first.Minute)
	}
	if first.SwapCount != 2 || first.OpenTick != 10 || first.CloseTick != 11 {
		t.Fatalf("unexpected bar %+v", first)
	}
	if first.Volume0 != "2000500" || first.Volume1 != "1000900" {
		t.Fatalf("volume mismatch %+v", first)
	}
	if first.Fee0 != "6000" || first.Fee1 != "3000" {
		t.Fatalf("fee mismatch %+v", first)
	}
	if bars[1].SwapCount != 1 || bars[1].Fee0 != "0" {
		t.Fatalf("unexpected second bar %+v", bars[1])
	}
}

func TestMinuteBarsRequiresTimestamp(t *testing.T) {
	if _, err := MinuteBars([]model.TypedEvent{swapEvent(1, 0, 0, "1", "-1", 0)}, 500); err == nil {
		t.Fatalf("expected error for missing timestamp")
	}
}

func TestMinuteBarsEmpty(t *testing.T) {
	bars, err := MinuteBars(nil, 500)
	if err != nil || len(bars) != 0 {
		t.Fatalf("expected no bars, got %v %v", bars, err)
	}
}
