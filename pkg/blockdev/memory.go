package blockdev

import (
	"context"
	"fmt"
	"sync"
)

// DefaultBlockSize is the allocation unit of a MemDevice.
const DefaultBlockSize = 4096

// Faults lets tests make a MemDevice fail or stall. Any hook may be nil.
type Faults struct {
	Read        func(off, n int64) error
	Write       func(off, n int64) error
	WriteZeroes func(off, n int64) error
	CopyRange   func(off, n int64) error
	BlockStatus func(off, n int64) error
}

// MemDevice is a sparse in-memory block device with an optional backing
// layer. Unallocated blocks read through to the backing device, or as
// zeroes when there is none.
type MemDevice struct {
	name        string
	blockSize   int64
	maxTransfer int64
	copyRange   bool

	mu        sync.Mutex
	data      []byte
	allocated []bool
	zero      []bool
	backing   *MemDevice
	faults    Faults

	reads, writes, zeroWrites, copyRanges int
	written                               []int // per-block write count
}

// MemOption configures a MemDevice.
type MemOption interface {
	applyMem(*MemDevice)
}

type memOptionFunc func(*MemDevice)

func (f memOptionFunc) applyMem(d *MemDevice) { f(d) }

// WithBlockSize sets the allocation unit.
func WithBlockSize(n int64) MemOption {
	return memOptionFunc(func(d *MemDevice) { d.blockSize = n })
}

// WithMaxTransfer bounds single requests.
func WithMaxTransfer(n int64) MemOption {
	return memOptionFunc(func(d *MemDevice) { d.maxTransfer = n })
}

// WithCopyRange enables device-to-device offload between MemDevices.
func WithCopyRange(enabled bool) MemOption {
	return memOptionFunc(func(d *MemDevice) { d.copyRange = enabled })
}

// WithBacking sets the backing layer.
func WithBacking(b *MemDevice) MemOption {
	return memOptionFunc(func(d *MemDevice) { d.backing = b })
}

// NewMemDevice creates an empty, fully unallocated device.
func NewMemDevice(name string, size int64, opts ...MemOption) *MemDevice {
	d := &MemDevice{
		name:      name,
		blockSize: DefaultBlockSize,
		copyRange: true,
	}
	for _, opt := range opts {
		opt.applyMem(d)
	}
	nblocks := (size + d.blockSize - 1) / d.blockSize
	d.data = make([]byte, size)
	d.allocated = make([]bool, nblocks)
	d.zero = make([]bool, nblocks)
	d.written = make([]int, nblocks)
	return d
}

// SetFaults installs fault hooks.
func (d *MemDevice) SetFaults(f Faults) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults = f
}

func (d *MemDevice) Name() string       { return d.name }
func (d *MemDevice) Length() int64      { return int64(len(d.data)) }
func (d *MemDevice) MaxTransfer() int64 { return d.maxTransfer }

// Fill writes p at off directly, marking the blocks allocated. It bypasses
// fault hooks and counters and is meant for test setup.
func (d *MemDevice) Fill(p []byte, off int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.data[off:], p)
	d.markLocked(off, int64(len(p)), false, false)
}

// Bytes returns a copy of the device contents as seen by a reader.
func (d *MemDevice) Bytes() []byte {
	out := make([]byte, d.Length())
	_ = d.ReadAt(context.Background(), out, 0)
	return out
}

func (d *MemDevice) markLocked(off, n int64, zero, count bool) {
	if n <= 0 {
		return
	}
	first := off / d.blockSize
	last := (off + n + d.blockSize - 1) / d.blockSize
	for b := first; b < last; b++ {
		d.allocated[b] = true
		d.zero[b] = zero
		if count {
			d.written[b]++
		}
	}
}

func (d *MemDevice) readLocked(p []byte, off int64) {
	for i := int64(0); i < int64(len(p)); {
		pos := off + i
		b := pos / d.blockSize
		end := (b + 1) * d.blockSize
		if end > off+int64(len(p)) {
			end = off + int64(len(p))
		}
		chunk := p[i : i+(end-pos)]
		switch {
		case d.allocated[b] && d.zero[b]:
			clear(chunk)
		case d.allocated[b]:
			copy(chunk, d.data[pos:end])
		case d.backing != nil && pos < d.backing.Length():
			avail := chunk
			if bl := d.backing.Length(); end > bl {
				avail = chunk[:bl-pos]
				clear(chunk[bl-pos:])
			}
			d.backing.mu.Lock()
			d.backing.readLocked(avail, pos)
			d.backing.mu.Unlock()
		default:
			clear(chunk)
		}
		i += end - pos
	}
}

func (d *MemDevice) ReadAt(_ context.Context, p []byte, off int64) error {
	d.mu.Lock()
	hook := d.faults.Read
	d.mu.Unlock()
	if err := checkRange(d.Length(), off, int64(len(p))); err != nil {
		return err
	}
	if hook != nil {
		if err := hook(off, int64(len(p))); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	d.readLocked(p, off)
	return nil
}

func (d *MemDevice) WriteAt(_ context.Context, p []byte, off int64, _ Flags) error {
	d.mu.Lock()
	hook := d.faults.Write
	d.mu.Unlock()
	if err := checkRange(d.Length(), off, int64(len(p))); err != nil {
		return err
	}
	if hook != nil {
		if err := hook(off, int64(len(p))); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++
	copy(d.data[off:], p)
	d.markLocked(off, int64(len(p)), false, true)
	return nil
}

func (d *MemDevice) WriteZeroes(_ context.Context, off, n int64, _ Flags) error {
	d.mu.Lock()
	hook := d.faults.WriteZeroes
	d.mu.Unlock()
	if err := checkRange(d.Length(), off, n); err != nil {
		return err
	}
	if hook != nil {
		if err := hook(off, n); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.zeroWrites++
	clear(d.data[off : off+n])
	d.markLocked(off, n, true, true)
	return nil
}

// CopyRange copies from d to another MemDevice without a caller buffer.
func (d *MemDevice) CopyRange(ctx context.Context, dst Child, srcOff, dstOff, n int64, flags Flags) error {
	target, ok := dst.(*MemDevice)
	if !ok || !d.copyRange || !target.copyRange {
		return ErrNotSupported
	}
	d.mu.Lock()
	hook := d.faults.CopyRange
	d.mu.Unlock()
	if hook != nil {
		if err := hook(srcOff, n); err != nil {
			return err
		}
	}
	if err := checkRange(d.Length(), srcOff, n); err != nil {
		return err
	}
	buf := make([]byte, n)
	d.mu.Lock()
	d.readLocked(buf, srcOff)
	d.mu.Unlock()

	if err := checkRange(target.Length(), dstOff, n); err != nil {
		return err
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	target.copyRanges++
	copy(target.data[dstOff:], buf)
	target.markLocked(dstOff, n, false, true)
	return nil
}

// blockState returns (allocated, zero) for block b.
func (d *MemDevice) blockState(b int64, topOnly bool) (bool, bool) {
	if d.allocated[b] {
		return true, d.zero[b]
	}
	if !topOnly && d.backing != nil {
		pos := b * d.blockSize
		if pos < d.backing.Length() {
			d.backing.mu.Lock()
			defer d.backing.mu.Unlock()
			return d.backing.blockState(pos/d.backing.blockSize, false)
		}
	}
	return false, true
}

func (d *MemDevice) BlockStatus(_ context.Context, off, n int64, topOnly bool) (Status, int64, error) {
	d.mu.Lock()
	hook := d.faults.BlockStatus
	d.mu.Unlock()
	if err := checkRange(d.Length(), off, n); err != nil {
		return 0, 0, err
	}
	if hook != nil {
		if err := hook(off, n); err != nil {
			return 0, 0, err
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	end := off + n
	b := off / d.blockSize
	alloc, zero := d.blockState(b, topOnly)
	pos := (b + 1) * d.blockSize
	for pos < end {
		a, z := d.blockState(pos/d.blockSize, topOnly)
		if a != alloc || z != zero {
			break
		}
		pos += d.blockSize
	}
	if pos > end {
		pos = end
	}

	var st Status
	if alloc {
		st |= StatusAllocated
		if !zero {
			st |= StatusData
		}
	}
	if zero {
		st |= StatusZero
	}
	return st, pos - off, nil
}

func (d *MemDevice) IsAllocated(_ context.Context, off, n int64) (bool, int64, error) {
	if err := checkRange(d.Length(), off, n); err != nil {
		return false, 0, err
	}
	if n == 0 {
		return false, 0, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	end := off + n
	b := off / d.blockSize
	alloc := d.allocated[b]
	pos := (b + 1) * d.blockSize
	for pos < end && d.allocated[pos/d.blockSize] == alloc {
		pos += d.blockSize
	}
	if pos > end {
		pos = end
	}
	return alloc, pos - off, nil
}

// Stats reports operation counters.
type Stats struct {
	Reads, Writes, ZeroWrites, CopyRanges int
}

// Stats returns the operation counters of the device.
func (d *MemDevice) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{Reads: d.reads, Writes: d.writes, ZeroWrites: d.zeroWrites, CopyRanges: d.copyRanges}
}

// WriteCount returns how many times the block containing off was written.
func (d *MemDevice) WriteCount(off int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written[off/d.blockSize]
}

func (d *MemDevice) String() string {
	return fmt.Sprintf("mem:%s(%d)", d.name, d.Length())
}
