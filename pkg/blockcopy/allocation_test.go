package blockcopy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-block-jobs/pkg/blockdev"
	"github.com/jdziat/simple-block-jobs/pkg/core"
)

func TestResetUnallocated(t *testing.T) {
	base := blockdev.NewMemDevice("base", 256*kib)
	src := blockdev.NewMemDevice("top", 256*kib, blockdev.WithBacking(base))
	src.Fill(randomData(t, 64*kib), 128*kib)
	dst := blockdev.NewMemDevice("dst", 256*kib)

	s, err := New(src, dst, cluster)
	require.NoError(t, err)
	var p progress
	s.SetCallbacks(p.callbacks())
	s.Bitmap().SetAll()
	ctx := context.Background()

	n, alloc, err := s.ResetUnallocated(ctx, 0)
	require.NoError(t, err)
	assert.False(t, alloc)
	assert.Equal(t, 128*kib, n)
	assert.Equal(t, int64(2), s.Bitmap().Count())
	assert.Equal(t, int64(1), p.resets.Load())

	n, alloc, err = s.ResetUnallocated(ctx, 128*kib)
	require.NoError(t, err)
	assert.True(t, alloc)
	assert.Equal(t, 64*kib, n)
	assert.True(t, s.Bitmap().Get(128*kib))

	n, alloc, err = s.ResetUnallocated(ctx, 192*kib)
	require.NoError(t, err)
	assert.False(t, alloc)
	assert.Equal(t, 64*kib, n)
	assert.Equal(t, int64(1), s.Bitmap().Count())
}

func TestResetUnallocated_Idempotent(t *testing.T) {
	src := blockdev.NewMemDevice("src", 256*kib)
	dst := blockdev.NewMemDevice("dst", 256*kib)
	s, err := New(src, dst, cluster)
	require.NoError(t, err)
	s.Bitmap().SetAll()
	ctx := context.Background()

	n1, alloc1, err := s.ResetUnallocated(ctx, 0)
	require.NoError(t, err)
	count := s.Bitmap().Count()
	n2, alloc2, err := s.ResetUnallocated(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, n1, n2)
	assert.Equal(t, alloc1, alloc2)
	assert.Equal(t, 256*kib, n1)
	assert.Equal(t, count, s.Bitmap().Count())
	assert.Zero(t, count)
}

func TestResetUnallocated_PartialClusterIsAllocated(t *testing.T) {
	src := blockdev.NewMemDevice("src", 256*kib)
	src.Fill(make([]byte, 4*kib), 60*kib)
	dst := blockdev.NewMemDevice("dst", 256*kib)
	s, err := New(src, dst, cluster)
	require.NoError(t, err)
	s.Bitmap().SetAll()

	n, alloc, err := s.ResetUnallocated(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, alloc)
	assert.Equal(t, cluster, n)
	assert.Equal(t, int64(4), s.Bitmap().Count())
}

func TestResetUnallocated_ShortUnallocatedTail(t *testing.T) {
	src := blockdev.NewMemDevice("src", 100*kib)
	src.Fill(make([]byte, cluster), 0)
	dst := blockdev.NewMemDevice("dst", 100*kib)
	s, err := New(src, dst, cluster)
	require.NoError(t, err)
	s.Bitmap().SetAll()

	n, alloc, err := s.ResetUnallocated(context.Background(), cluster)
	require.NoError(t, err)
	assert.True(t, alloc)
	assert.Equal(t, cluster, n)
	assert.True(t, s.Bitmap().Get(cluster))
}

func TestResetUnallocated_Errors(t *testing.T) {
	src := blockdev.NewMemDevice("src", 256*kib)
	dst := blockdev.NewMemDevice("dst", 256*kib)
	s, err := New(src, dst, cluster)
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = s.ResetUnallocated(ctx, 4*kib)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, _, err = s.ResetUnallocated(ctx, 256*kib)
	assert.ErrorIs(t, err, ErrInvalidRange)

	// Allocation queries are source-side failures.
	failing := &failingAlloc{MemDevice: src}
	s, err = New(failing, dst, cluster)
	require.NoError(t, err)
	_, _, err = s.ResetUnallocated(ctx, 0)
	require.Error(t, err)
	assert.True(t, core.ErrorIsRead(err))
}

type failingAlloc struct {
	*blockdev.MemDevice
}

func (f *failingAlloc) IsAllocated(context.Context, int64, int64) (bool, int64, error) {
	return false, 0, errors.New("allocation map unavailable")
}
