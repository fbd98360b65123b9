package indexer

import "fmt"

// BlockRange is an inclusive window of blocks scanned for pool-account
// Transfer logs in one FilterLogs round.
type BlockRange struct {
	From uint64
	To   uint64
}

// Blocks returns the number of blocks in the window.
func (r BlockRange) Blocks() uint64 { return r.To - r.From + 1 }

// SplitRange cuts [from, to] into consecutive windows of at most batchSize
// blocks so each Transfer scan stays under the node's log query limits.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block %d is before from block %d", to, from)
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
		start = end + 1
	}
}
