package blockcopy

import (
	"context"

	"github.com/jdziat/simple-block-jobs/pkg/blockdev"
	"github.com/jdziat/simple-block-jobs/pkg/core"
)

// Copy copies every dirty cluster in [start, start+bytes) and returns once
// the range is clean and no other caller is still working inside it.
//
// start must be cluster aligned; start+bytes must be cluster aligned or equal
// to the source length. On failure the returned error is a *core.IOError
// unless the context ended, and isRead tells whether the source side failed.
func (s *State) Copy(ctx context.Context, start, bytes int64) (isRead bool, err error) {
	bytes, err = s.checkRange(start, bytes)
	if err != nil {
		return false, err
	}
	for {
		found, isRead, err := s.dirtyClusters(ctx, start, bytes)
		if err != nil {
			return isRead, err
		}
		if found {
			// The pass yielded, so earlier clusters may be dirty again.
			continue
		}
		waited, err := s.waitOne(ctx, start, bytes)
		if err != nil {
			return false, err
		}
		if !waited {
			return false, nil
		}
	}
}

// dirtyClusters makes one pass over the range. It reports whether any dirty
// cluster was found.
func (s *State) dirtyClusters(ctx context.Context, offset, bytes int64) (found, isRead bool, err error) {
	for bytes > 0 {
		s.mu.Lock()
		if !s.bitmap.Get(offset) {
			s.mu.Unlock()
			offset += s.cluster
			bytes -= s.cluster
			continue
		}
		found = true

		cur := min(bytes, s.copySize)
		if next := s.bitmap.NextZero(offset, cur); next >= 0 {
			cur = next - offset
		}
		c, busy := s.claimLocked(offset, cur)
		skip := s.skipUnallocated
		s.mu.Unlock()

		if c == nil {
			// Someone set bits inside a running request; let it finish
			// and scan again.
			if err := wait(ctx, busy); err != nil {
				return found, false, err
			}
			return true, false, nil
		}

		st, statusBytes := s.blockStatus(ctx, offset, cur, skip)
		c.shrink(statusBytes)
		if skip && !st.Allocated() {
			c.commit()
			s.progressReset()
			s.logger.Debug("skipping unallocated range", "offset", offset, "bytes", statusBytes)
			offset += statusBytes
			bytes -= statusBytes
			continue
		}
		cur = min(cur, statusBytes)

		if err := s.mem.Acquire(ctx, cur); err != nil {
			c.rollback()
			return found, false, err
		}
		isRead, err := s.doCopy(ctx, offset, cur, st.Zero())
		s.mem.Release(cur)
		if err != nil {
			c.rollback()
			return found, isRead, err
		}
		c.commit()

		s.bytesCopied(cur)
		offset += cur
		bytes -= cur
	}
	return found, false, nil
}

// blockStatus returns the status of the run at offset rounded to clusters.
// Query failures and sub-cluster runs count as one allocated data cluster.
func (s *State) blockStatus(ctx context.Context, offset, bytes int64, topOnly bool) (blockdev.Status, int64) {
	n := min(offset+bytes, s.length) - offset
	st, num, err := s.source.BlockStatus(ctx, offset, n, topOnly)
	switch {
	case err != nil || num < s.cluster:
		if err != nil {
			s.logger.Debug("block status failed", "offset", offset, "error", err)
		}
		return blockdev.StatusAllocated | blockdev.StatusData, s.cluster
	case offset+num == s.length:
		num = alignUp(num, s.cluster)
	default:
		num = alignDown(num, s.cluster)
	}
	return st, min(num, bytes)
}

// doCopy moves one claimed chunk. Only the part inside the source length is
// transferred.
func (s *State) doCopy(ctx context.Context, offset, bytes int64, zeroes bool) (bool, error) {
	n := min(offset+bytes, s.length) - offset

	if zeroes {
		err := s.target.WriteZeroes(ctx, offset, n, s.writeFlags&^blockdev.FlagWriteCompressed)
		if err != nil {
			s.logger.Error("write zeroes failed", "offset", offset, "bytes", n, "error", err)
			return false, &core.IOError{Op: core.OpZeroWrite, Offset: offset, Bytes: n, Err: err}
		}
		return false, nil
	}

	s.mu.Lock()
	useCopyRange := s.useCopyRange
	s.mu.Unlock()

	if useCopyRange {
		err := blockdev.CopyRange(ctx, s.source, s.target, offset, offset, n, s.writeFlags)
		s.mu.Lock()
		if err != nil {
			s.useCopyRange = false
			s.copySize = max(s.cluster, MaxBuffer)
			s.mu.Unlock()
			s.logger.Warn("copy offload failed, falling back to buffered copy",
				"offset", offset, "bytes", n, "error", err)
		} else {
			// A concurrent failure may have disabled offload meanwhile.
			if s.useCopyRange {
				s.copySize = min(max(s.cluster, MaxCopyRange),
					alignDown(blockdev.MaxTransfer(s.source, s.target), s.cluster))
			}
			s.mu.Unlock()
			return false, nil
		}
	}

	buf := make([]byte, n)
	if err := s.source.ReadAt(ctx, buf, offset); err != nil {
		s.logger.Error("read failed", "offset", offset, "bytes", n, "error", err)
		return true, &core.IOError{Op: core.OpRead, Offset: offset, Bytes: n, Err: err}
	}
	if err := s.target.WriteAt(ctx, buf, offset, s.writeFlags); err != nil {
		s.logger.Error("write failed", "offset", offset, "bytes", n, "error", err)
		return false, &core.IOError{Op: core.OpWrite, Offset: offset, Bytes: n, Err: err}
	}
	return false, nil
}
