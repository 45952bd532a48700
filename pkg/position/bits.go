package position

import "math"

// A ledger's entryIds are stored in a roaring.Bitmap, which only holds
// non-negative uint32 values. We shift every entryId up by one so that the
// sentinel NoEntry (-1) maps to bit 0. Bit 0 is never actually set: the
// lowest entryId AddOpenClosed can ever add is loE+1 for some loE >=
// NoEntry, i.e. entryId 0 at the smallest, which maps to bit 1.
const maxEntryID = int64(math.MaxUint32) - 1

func entryToBit(e int64) uint32 {
	return uint32(e + 1)
}

func bitToEntry(b uint32) int64 {
	return int64(b) - 1
}
