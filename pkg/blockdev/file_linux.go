//go:build linux

package blockdev

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileDevice is a block device backed by a regular file or block special
// file. Holes are reported as zero runs and copy offload uses
// copy_file_range(2).
type FileDevice struct {
	f           *os.File
	fd          int
	length      int64
	maxTransfer int64
}

// OpenFile opens path as a device. With create set, a missing file is created
// and truncated to size; otherwise size is ignored.
func OpenFile(path string, writable, create bool, size int64) (*FileDevice, error) {
	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR
	}
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	if create {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("size device: %w", err)
		}
	}
	length, err := f.Seek(0, 2)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("size device: %w", err)
	}
	return &FileDevice{f: f, fd: int(f.Fd()), length: length}, nil
}

// Close releases the file.
func (d *FileDevice) Close() error { return d.f.Close() }

func (d *FileDevice) Name() string       { return d.f.Name() }
func (d *FileDevice) Length() int64      { return d.length }
func (d *FileDevice) MaxTransfer() int64 { return d.maxTransfer }

// SetMaxTransfer bounds single requests; 0 removes the bound.
func (d *FileDevice) SetMaxTransfer(n int64) { d.maxTransfer = n }

func (d *FileDevice) ReadAt(ctx context.Context, p []byte, off int64) error {
	if err := checkRange(d.length, off, int64(len(p))); err != nil {
		return err
	}
	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Pread(d.fd, p, off)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		if n == 0 {
			clear(p)
			return nil
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

func (d *FileDevice) WriteAt(ctx context.Context, p []byte, off int64, _ Flags) error {
	if err := checkRange(d.length, off, int64(len(p))); err != nil {
		return err
	}
	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Pwrite(d.fd, p, off)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

func (d *FileDevice) WriteZeroes(ctx context.Context, off, n int64, flags Flags) error {
	if err := checkRange(d.length, off, n); err != nil {
		return err
	}
	mode := uint32(unix.FALLOC_FL_ZERO_RANGE | unix.FALLOC_FL_KEEP_SIZE)
	if flags&FlagMayUnmap != 0 {
		mode = unix.FALLOC_FL_PUNCH_HOLE | unix.FALLOC_FL_KEEP_SIZE
	}
	err := unix.Fallocate(d.fd, mode, off, n)
	if err == nil {
		return nil
	}
	if flags&FlagNoFallback != 0 {
		return err
	}
	buf := make([]byte, min(n, 1<<20))
	for n > 0 {
		chunk := min(n, int64(len(buf)))
		if err := d.WriteAt(ctx, buf[:chunk], off, 0); err != nil {
			return err
		}
		off += chunk
		n -= chunk
	}
	return nil
}

// CopyRange offloads to copy_file_range(2) when dst is also a FileDevice.
func (d *FileDevice) CopyRange(ctx context.Context, dst Child, srcOff, dstOff, n int64, _ Flags) error {
	target, ok := dst.(*FileDevice)
	if !ok {
		return ErrNotSupported
	}
	if err := checkRange(d.length, srcOff, n); err != nil {
		return err
	}
	if err := checkRange(target.length, dstOff, n); err != nil {
		return err
	}
	for n > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		copied, err := unix.CopyFileRange(d.fd, &srcOff, target.fd, &dstOff, int(n), 0)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EXDEV) || errors.Is(err, unix.EOPNOTSUPP) {
				return fmt.Errorf("%w: %v", ErrNotSupported, err)
			}
			return err
		}
		if copied == 0 {
			return fmt.Errorf("copy_file_range: short copy with %d bytes left", n)
		}
		n -= int64(copied)
	}
	return nil
}

// BlockStatus uses SEEK_DATA/SEEK_HOLE. A plain file has no backing layer,
// so every run is allocated; holes additionally read as zeroes.
func (d *FileDevice) BlockStatus(_ context.Context, off, n int64, _ bool) (Status, int64, error) {
	if err := checkRange(d.length, off, n); err != nil {
		return 0, 0, err
	}
	if n == 0 {
		return 0, 0, nil
	}
	end := off + n
	data, err := unix.Seek(d.fd, off, unix.SEEK_DATA)
	if errors.Is(err, unix.ENXIO) {
		return StatusAllocated | StatusZero, n, nil
	}
	if err != nil {
		// Filesystem without hole reporting: treat everything as data.
		return StatusAllocated | StatusData, n, nil
	}
	if data > off {
		return StatusAllocated | StatusZero, min(data, end) - off, nil
	}
	hole, err := unix.Seek(d.fd, off, unix.SEEK_HOLE)
	if err != nil || hole > end {
		hole = end
	}
	return StatusAllocated | StatusData, hole - off, nil
}

func (d *FileDevice) IsAllocated(_ context.Context, off, n int64) (bool, int64, error) {
	if err := checkRange(d.length, off, n); err != nil {
		return false, 0, err
	}
	return true, n, nil
}
