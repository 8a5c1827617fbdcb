// Package replay implements sliding-window duplicate suppression for packet
// counters, following the anti-replay algorithm of RFC 6479.
package replay

const (
	// blockBits is the number of counter values tracked per ring block.
	blockBits      = 64
	blockBitShift  = 6
	bitMask        = blockBits - 1
	// DefaultWindow tolerates a few thousand packets of reordering, far
	// beyond what a single link realistically produces.
	DefaultWindow  = 8128
	minBlocks      = 2
)

// Filter rejects replayed packet counters by tracking which values inside a
// sliding window of recently seen counters have already been accepted.
// Counters below the window's lower bound are rejected outright.
//
// Filters are not safe for concurrent use; callers serialize access under
// the owning session's lock.
type Filter struct {
	// highest counter accepted so far
	last uint64
	// bit-field ring buffer, one bit per counter value
	ring []uint64
	// len(ring)-1, valid because len(ring) is a power of two
	blockMask uint64
	// usable window width in counter values
	window uint64
}

// New creates a Filter whose window covers at least the requested number of
// counter values. The ring is sized up to a whole power-of-two block count,
// so the effective window may be somewhat larger than asked for. A window
// smaller than one block is rounded up to the minimum ring size.
func New(window uint64) *Filter {
	blocks := uint64(minBlocks)
	for (blocks-1)*blockBits < window {
		blocks <<= 1
	}
	return &Filter{
		ring:      make([]uint64, blocks),
		blockMask: blocks - 1,
		window:    (blocks - 1) * blockBits,
	}
}

// Check reports whether counter would currently be accepted, without
// mutating the window. Used before the expensive authentication step so a
// replayed packet is rejected cheaply, and so that a forged packet cannot
// advance the window (Update runs only after authentication succeeds).
func (f *Filter) Check(counter, limit uint64) bool {
	if counter >= limit {
		return false
	}
	if counter > f.last {
		return true
	}
	if f.last-counter > f.window {
		return false
	}
	bit := uint64(1) << (counter & bitMask)
	return f.ring[(counter>>blockBitShift)&f.blockMask]&bit == 0
}

// Update marks counter as seen, advancing the window if the counter is ahead
// of everything seen so far. Returns false if the counter is a duplicate or
// below the window — callers that Check first under the same lock will never
// see that happen.
func (f *Filter) Update(counter, limit uint64) bool {
	if counter >= limit {
		return false
	}
	index := counter >> blockBitShift
	if counter > f.last {
		// move window forward, clearing the blocks the jump exposes
		current := f.last >> blockBitShift
		diff := index - current
		if diff > uint64(len(f.ring)) {
			diff = uint64(len(f.ring))
		}
		for i := current + 1; i <= current+diff; i++ {
			f.ring[i&f.blockMask] = 0
		}
		f.last = counter
	} else if f.last-counter > f.window {
		return false
	}
	bit := uint64(1) << (counter & bitMask)
	old := f.ring[index&f.blockMask]
	f.ring[index&f.blockMask] = old | bit
	return old&bit == 0
}

// Last returns the highest counter accepted so far.
func (f *Filter) Last() uint64 {
	return f.last
}

// Window returns the effective window width in counter values.
func (f *Filter) Window() uint64 {
	return f.window
}

// Reset returns the filter to its empty state, e.g. when the session keys it
// guards are replaced.
func (f *Filter) Reset() {
	f.last = 0
	for i := range f.ring {
		f.ring[i] = 0
	}
}
