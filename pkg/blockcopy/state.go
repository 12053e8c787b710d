package blockcopy

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/johncgriffin/overflow"

	"github.com/jdziat/simple-block-jobs/pkg/blockdev"
	"github.com/jdziat/simple-block-jobs/pkg/dirty"
	"github.com/jdziat/simple-block-jobs/pkg/shres"
)

const (
	// MaxCopyRange is the preferred chunk size once offload has worked.
	MaxCopyRange = 16 << 20
	// MaxBuffer is the preferred chunk size of buffered copies.
	MaxBuffer = 1 << 20
	// MaxMem is the default in-flight memory budget of a State.
	MaxMem = 128 << 20
)

var (
	ErrInvalidCluster = errors.New("blockcopy: cluster size must be a positive power of two")
	ErrInvalidRange   = errors.New("blockcopy: invalid range")
	ErrUnaligned      = errors.New("blockcopy: range is not cluster aligned")
)

// Callbacks report progress. They run synchronously on the copying
// goroutine and must not call back into the State.
type Callbacks struct {
	OnBytesCopied   func(n int64)
	OnProgressReset func()
}

// State is a copy engine between one source and one target device.
type State struct {
	source     blockdev.Child
	target     blockdev.Child
	cluster    int64
	length     int64
	writeFlags blockdev.Flags
	bitmap     *dirty.Bitmap
	mem        *shres.Limiter
	logger     *slog.Logger

	mu              sync.Mutex
	copySize        int64
	useCopyRange    bool
	skipUnallocated bool
	inflight        []*request
	cb              Callbacks

	// onClaim observes every claim; set by tests.
	onClaim func(off, n int64)
}

// New creates a State copying source to target in clusterSize units.
// The bitmap starts clean.
func New(source, target blockdev.Child, clusterSize int64, opts ...Option) (*State, error) {
	if clusterSize <= 0 || clusterSize&(clusterSize-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCluster, clusterSize)
	}
	o := NewOptions()
	for _, opt := range opts {
		opt.Apply(o)
	}

	length := source.Length()
	bm, err := dirty.New(length, clusterSize)
	if err != nil {
		return nil, fmt.Errorf("create copy bitmap: %w", err)
	}
	mem := o.Limiter
	if mem == nil {
		mem = shres.New(o.MemLimit)
	}

	s := &State{
		source:          source,
		target:          target,
		cluster:         clusterSize,
		length:          length,
		writeFlags:      o.WriteFlags,
		bitmap:          bm,
		mem:             mem,
		logger:          o.Logger,
		skipUnallocated: o.SkipUnallocated,
	}

	if blockdev.MaxTransfer(source, target) < clusterSize {
		s.copySize = clusterSize
		s.logger.Debug("copy offload disabled: max transfer below cluster size",
			"source", source.Name(), "cluster", clusterSize)
	} else if o.WriteFlags&blockdev.FlagWriteCompressed != 0 {
		// Compressed writes must be exactly one cluster.
		s.copySize = clusterSize
	} else if o.NoCopyRange {
		s.copySize = max(clusterSize, MaxBuffer)
	} else {
		// Grows to MaxCopyRange after the first successful offload.
		s.useCopyRange = true
		s.copySize = max(clusterSize, MaxBuffer)
	}
	return s, nil
}

// SetCallbacks installs the progress callbacks.
func (s *State) SetCallbacks(cb Callbacks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

// SetSkipUnallocated toggles skipping of runs unallocated in the source.
func (s *State) SetSkipUnallocated(skip bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipUnallocated = skip
}

// Bitmap returns the copy bitmap. A set bit means "not yet copied".
func (s *State) Bitmap() *dirty.Bitmap { return s.bitmap }

// ClusterSize returns the copy granularity.
func (s *State) ClusterSize() int64 { return s.cluster }

// Len returns the source length captured at creation.
func (s *State) Len() int64 { return s.length }

// CopySize returns the current preferred chunk size.
func (s *State) CopySize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copySize
}

// UseCopyRange reports whether offload is still believed to work.
func (s *State) UseCopyRange() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.useCopyRange
}

func (s *State) bytesCopied(n int64) {
	s.mu.Lock()
	fn := s.cb.OnBytesCopied
	s.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

func (s *State) progressReset() {
	s.mu.Lock()
	fn := s.cb.OnProgressReset
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// checkRange validates a cluster-aligned request. A range ending exactly at
// the source length is widened to cover the last partial cluster.
func (s *State) checkRange(off, n int64) (int64, error) {
	if off < 0 || n <= 0 {
		return 0, fmt.Errorf("%w: offset %d bytes %d", ErrInvalidRange, off, n)
	}
	end, ok := overflow.Add64(off, n)
	if !ok {
		return 0, fmt.Errorf("%w: offset %d + bytes %d overflows", ErrInvalidRange, off, n)
	}
	if off%s.cluster != 0 {
		return 0, fmt.Errorf("%w: offset %d", ErrUnaligned, off)
	}
	limit := alignUp(s.length, s.cluster)
	if end == s.length {
		end = limit
	}
	if end%s.cluster != 0 {
		return 0, fmt.Errorf("%w: end %d", ErrUnaligned, end)
	}
	if end > limit {
		return 0, fmt.Errorf("%w: end %d past %d", ErrInvalidRange, end, limit)
	}
	return end - off, nil
}

func alignUp(n, a int64) int64 {
	return (n + a - 1) / a * a
}

func alignDown(n, a int64) int64 {
	return n / a * a
}
