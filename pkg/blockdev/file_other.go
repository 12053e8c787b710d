//go:build !linux

package blockdev

import (
	"fmt"
	"runtime"
)

// FileDevice is only available on Linux.
type FileDevice struct {
	MemDevice
}

// OpenFile reports that file devices are not supported on this platform.
func OpenFile(path string, writable, create bool, size int64) (*FileDevice, error) {
	return nil, fmt.Errorf("%w: file devices on %s", ErrNotSupported, runtime.GOOS)
}

// Close is a no-op.
func (d *FileDevice) Close() error { return nil }
