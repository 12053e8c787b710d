// Package blockdev defines the block I/O contract consumed by the copy engine
// and provides in-memory and file-backed implementations of it.
package blockdev

import (
	"context"
	"errors"
	"math"
)

// Flags modify a write request.
type Flags uint

const (
	// FlagWriteCompressed asks the target to store the data compressed.
	// Compressed writes must be cluster sized and exclude copy offload.
	FlagWriteCompressed Flags = 1 << iota
	// FlagMayUnmap lets a zero write deallocate the range.
	FlagMayUnmap
	// FlagNoFallback fails a request instead of emulating it slowly.
	FlagNoFallback
)

// Status describes the allocation state of a run of bytes.
type Status uint

const (
	// StatusData means the run holds data in the queried layer.
	StatusData Status = 1 << iota
	// StatusZero means the run reads as zeroes.
	StatusZero
	// StatusAllocated means the run is allocated in the queried layer.
	StatusAllocated
)

// Allocated reports whether StatusAllocated is set.
func (s Status) Allocated() bool { return s&StatusAllocated != 0 }

// Zero reports whether StatusZero is set.
func (s Status) Zero() bool { return s&StatusZero != 0 }

// ErrNotSupported is returned by devices lacking an optional primitive.
var ErrNotSupported = errors.New("blockdev: operation not supported")

// ErrOutOfRange is returned for requests past the end of the device.
var ErrOutOfRange = errors.New("blockdev: request out of range")

// Child is a handle on a block device as seen by a job.
type Child interface {
	// Name identifies the device in logs.
	Name() string
	// Length returns the logical size in bytes.
	Length() int64
	// MaxTransfer returns the largest single request, or 0 for no limit.
	MaxTransfer() int64

	ReadAt(ctx context.Context, p []byte, off int64) error
	WriteAt(ctx context.Context, p []byte, off int64, flags Flags) error
	WriteZeroes(ctx context.Context, off, n int64, flags Flags) error

	// BlockStatus reports the status of the run starting at off and its
	// length, at most n bytes. With topOnly set, data that only exists in
	// a backing layer is reported as unallocated.
	BlockStatus(ctx context.Context, off, n int64, topOnly bool) (Status, int64, error)

	// IsAllocated reports whether the run at off is allocated in the top
	// layer and the length of the run sharing that answer.
	IsAllocated(ctx context.Context, off, n int64) (bool, int64, error)
}

// RangeCopier is implemented by devices supporting device-to-device offload.
type RangeCopier interface {
	CopyRange(ctx context.Context, dst Child, srcOff, dstOff, n int64, flags Flags) error
}

// CopyRange offloads a copy from src to dst, or returns ErrNotSupported.
func CopyRange(ctx context.Context, src, dst Child, srcOff, dstOff, n int64, flags Flags) error {
	rc, ok := src.(RangeCopier)
	if !ok {
		return ErrNotSupported
	}
	return rc.CopyRange(ctx, dst, srcOff, dstOff, n, flags)
}

// MaxTransfer returns the smaller non-zero max transfer of two devices,
// bounded by math.MaxInt32.
func MaxTransfer(a, b Child) int64 {
	m := int64(math.MaxInt32)
	for _, c := range []Child{a, b} {
		if t := c.MaxTransfer(); t > 0 && t < m {
			m = t
		}
	}
	return m
}

func checkRange(length, off, n int64) error {
	if off < 0 || n < 0 || off > length || n > length-off {
		return ErrOutOfRange
	}
	return nil
}
