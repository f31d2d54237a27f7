package indexer

import "fmt"

// BlockRange is an inclusive height range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Blocks returns the number of heights covered.
func (r BlockRange) Blocks() uint64 {
	return r.To - r.From + 1
}

// SplitRange cuts [from, to] into consecutive ranges of at most size heights,
// in ascending order. The last range may be shorter.
func SplitRange(from, to, size uint64) ([]BlockRange, error) {
	if size == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0, (to-from)/size+1)
	for start := from; ; start += size {
		if to-start < size {
			ranges = append(ranges, BlockRange{From: start, To: to})
			return ranges, nil
		}
		ranges = append(ranges, BlockRange{From: start, To: start + size - 1})
	}
}
