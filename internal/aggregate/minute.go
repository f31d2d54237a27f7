package aggregate

import (
	"fmt"
	"sort"
	"time"

	"defiFetch/internal/model"
)

// MinuteBars groups swap events into per-minute bars. Non-swap events are
// ignored and minutes without swaps are omitted. Events need timestamps.
func MinuteBars(events []model.TypedEvent, feeTier uint32) ([]model.MinuteBar, error) {
	ordered := append([]model.TypedEvent(nil), events...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].BlockNumber != ordered[j].BlockNumber {
			return ordered[i].BlockNumber < ordered[j].BlockNumber
		}
		return ordered[i].LogIndex < ordered[j].LogIndex
	})

	accumulators := make(map[int64]*Accumulator)
	minutes := make([]int64, 0)
	for _, event := range ordered {
		if event.Kind != model.KindSwap {
			continue
		}
		swap, ok := event.Decoded.(model.SwapEventData)
		if !ok {
			return nil, fmt.Errorf("swap %s#%d: unexpected payload %T", event.TxHash, event.LogIndex, event.Decoded)
		}
		if event.Timestamp == 0 {
			return nil, fmt.Errorf("swap %s#%d: missing block timestamp", event.TxHash, event.LogIndex)
		}

		minute := int64(event.Timestamp) / 60 * 60
		acc, ok := accumulators[minute]
		if !ok {
			acc = NewAccumulator(event.Address, time.Unix(minute, 0).UTC(), feeTier)
			accumulators[minute] = acc
			minutes = append(minutes, minute)
		}
		if err := acc.AddSwap(swap); err != nil {
			return nil, fmt.Errorf("swap %s#%d: %w", event.TxHash, event.LogIndex, err)
		}
	}

	sort.Slice(minutes, func(i, j int) bool { return minutes[i] < minutes[j] })
	bars := make([]model.MinuteBar, 0, len(minutes))
	for _, minute := range minutes {
		bars = append(bars, accumulators[minute].Bar())
	}
	return bars, nil
}
