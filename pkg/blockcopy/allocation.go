package blockcopy

import (
	"context"
	"fmt"

	"github.com/jdziat/simple-block-jobs/pkg/core"
)

// clusterAllocated reports whether the cluster at offset is allocated in the
// top layer of the source and how many following clusters share the answer.
// A partly allocated cluster counts as allocated, and so does an unallocated
// tail shorter than a cluster.
func (s *State) clusterAllocated(ctx context.Context, offset int64) (bool, int64, error) {
	var total int64
	remaining := s.length - offset
	for {
		alloc, count, err := s.source.IsAllocated(ctx, offset, remaining)
		if err != nil {
			return false, 0, &core.IOError{Op: core.OpAllocation, Offset: offset, Bytes: remaining, Err: err}
		}
		total += count
		if alloc || count == 0 {
			return alloc, (total + s.cluster - 1) / s.cluster, nil
		}
		if total >= s.cluster {
			return false, total / s.cluster, nil
		}
		if count == remaining {
			// Unallocated tail shorter than a cluster.
			return true, 1, nil
		}
		offset += count
		remaining -= count
	}
}

// ResetUnallocated clears the bits of the run of unallocated clusters at
// offset. It returns the run length in bytes and whether the run was
// allocated; allocated runs are left untouched.
func (s *State) ResetUnallocated(ctx context.Context, offset int64) (int64, bool, error) {
	if offset < 0 || offset >= s.length || offset%s.cluster != 0 {
		return 0, false, fmt.Errorf("%w: offset %d", ErrInvalidRange, offset)
	}
	alloc, clusters, err := s.clusterAllocated(ctx, offset)
	if err != nil {
		return 0, false, err
	}
	bytes := clusters * s.cluster
	if !alloc {
		s.bitmap.Reset(offset, bytes)
		s.progressReset()
	}
	return bytes, alloc, nil
}
