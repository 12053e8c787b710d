package dirty

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

const wordBits = 64

// Bitmap tracks dirty regions of a device.
type Bitmap struct {
	mu    sync.Mutex
	set   *bitset.BitSet
	size  int64
	gran  int64
	nbits uint
}

// New creates a clean bitmap covering size bytes at the given granularity.
// The granularity must be a power of two.
func New(size, granularity int64) (*Bitmap, error) {
	if granularity <= 0 || bits.OnesCount64(uint64(granularity)) != 1 {
		return nil, fmt.Errorf("dirty: granularity %d is not a power of two", granularity)
	}
	if size < 0 {
		return nil, fmt.Errorf("dirty: negative size %d", size)
	}
	nbits := uint((size + granularity - 1) / granularity)
	return &Bitmap{
		set:   bitset.New(nbits),
		size:  size,
		gran:  granularity,
		nbits: nbits,
	}, nil
}

// Size returns the number of bytes covered.
func (b *Bitmap) Size() int64 { return b.size }

// Granularity returns the number of bytes per bit.
func (b *Bitmap) Granularity() int64 { return b.gran }

// bitRange converts a byte range to a half-open bit range clipped to the map.
func (b *Bitmap) bitRange(off, n int64) (uint, uint) {
	if off < 0 {
		n += off
		off = 0
	}
	if n <= 0 || off >= b.size {
		return 0, 0
	}
	end := off + n
	if end > b.size || end < off {
		end = b.size
	}
	first := uint(off / b.gran)
	last := uint((end + b.gran - 1) / b.gran)
	return first, last
}

// Get reports whether the region containing off is dirty.
func (b *Bitmap) Get(off int64) bool {
	if off < 0 || off >= b.size {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.set.Test(uint(off / b.gran))
}

// Set marks [off, off+n) dirty.
func (b *Bitmap) Set(off, n int64) {
	first, last := b.bitRange(off, n)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fill(first, last, true)
}

// Reset marks [off, off+n) clean.
func (b *Bitmap) Reset(off, n int64) {
	first, last := b.bitRange(off, n)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fill(first, last, false)
}

// fill sets or clears bits [first, last) a word at a time.
func (b *Bitmap) fill(first, last uint, dirty bool) {
	words := b.set.Bytes()
	for first < last {
		w, bit := first/wordBits, first%wordBits
		n := min(wordBits-bit, last-first)
		mask := ^uint64(0)
		if n < wordBits {
			mask = (uint64(1)<<n - 1) << bit
		}
		if dirty {
			words[w] |= mask
		} else {
			words[w] &^= mask
		}
		first += n
	}
}

// SetAll marks the whole device dirty.
func (b *Bitmap) SetAll() {
	b.Set(0, b.size)
}

// Clear marks the whole device clean.
func (b *Bitmap) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set.ClearAll()
}

// NextZero returns the byte offset of the first clean region in [off, off+n),
// or -1 if the whole range is dirty.
func (b *Bitmap) NextZero(off, n int64) int64 {
	first, last := b.bitRange(off, n)
	if first >= last {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.set.NextClear(first)
	if !ok || i >= last {
		return -1
	}
	return b.offsetOf(i, off)
}

// NextDirty returns the byte offset of the first dirty region in [off, off+n),
// or -1 if the whole range is clean.
func (b *Bitmap) NextDirty(off, n int64) int64 {
	first, last := b.bitRange(off, n)
	if first >= last {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.set.NextSet(first)
	if !ok || i >= last {
		return -1
	}
	return b.offsetOf(i, off)
}

// offsetOf converts bit i to a byte offset no smaller than floor.
func (b *Bitmap) offsetOf(i uint, floor int64) int64 {
	o := int64(i) * b.gran
	if o < floor {
		return floor
	}
	return o
}

// Count returns the number of dirty regions.
func (b *Bitmap) Count() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(b.set.Count())
}

// DirtyBytes returns the number of dirty bytes, clipped to Size.
func (b *Bitmap) DirtyBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := int64(b.set.Count()) * b.gran
	if b.nbits > 0 && b.set.Test(b.nbits-1) {
		n -= int64(b.nbits)*b.gran - b.size
	}
	return n
}
