package blockdev

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDevice_ReadWrite(t *testing.T) {
	ctx := context.Background()
	d := NewMemDevice("disk", 64<<10)

	buf := make([]byte, 8192)
	require.NoError(t, d.ReadAt(ctx, buf, 0))
	assert.Equal(t, make([]byte, 8192), buf)

	data := bytes.Repeat([]byte{0xab}, 6000)
	require.NoError(t, d.WriteAt(ctx, data, 1000, 0))

	got := make([]byte, 6000)
	require.NoError(t, d.ReadAt(ctx, got, 1000))
	assert.Equal(t, data, got)
	assert.Equal(t, Stats{Reads: 2, Writes: 1}, d.Stats())
	assert.Equal(t, 1, d.WriteCount(0))
	assert.Equal(t, 1, d.WriteCount(4096))
	assert.Zero(t, d.WriteCount(8192))
}

func TestMemDevice_OutOfRange(t *testing.T) {
	ctx := context.Background()
	d := NewMemDevice("disk", 4096)

	assert.ErrorIs(t, d.ReadAt(ctx, make([]byte, 10), 4090), ErrOutOfRange)
	assert.ErrorIs(t, d.WriteAt(ctx, make([]byte, 1), -1, 0), ErrOutOfRange)
	assert.ErrorIs(t, d.WriteZeroes(ctx, 0, 8192, 0), ErrOutOfRange)
	_, _, err := d.BlockStatus(ctx, 0, 8192, false)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestMemDevice_BlockStatusRuns(t *testing.T) {
	ctx := context.Background()
	d := NewMemDevice("disk", 64<<10)
	d.Fill(bytes.Repeat([]byte{1}, 8192), 0)
	require.NoError(t, d.WriteZeroes(ctx, 8192, 4096, 0))

	st, n, err := d.BlockStatus(ctx, 0, d.Length(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusAllocated|StatusData, st)
	assert.Equal(t, int64(8192), n)

	st, n, err = d.BlockStatus(ctx, 8192, d.Length()-8192, false)
	require.NoError(t, err)
	assert.True(t, st.Allocated())
	assert.True(t, st.Zero())
	assert.Equal(t, int64(4096), n)

	st, n, err = d.BlockStatus(ctx, 12288, d.Length()-12288, false)
	require.NoError(t, err)
	assert.False(t, st.Allocated())
	assert.True(t, st.Zero())
	assert.Equal(t, d.Length()-12288, n)
}

func TestMemDevice_BackingChain(t *testing.T) {
	ctx := context.Background()
	base := NewMemDevice("base", 16384)
	base.Fill(bytes.Repeat([]byte{7}, 16384), 0)
	top := NewMemDevice("top", 16384, WithBacking(base))
	top.Fill(bytes.Repeat([]byte{9}, 4096), 4096)

	got := top.Bytes()
	assert.Equal(t, byte(7), got[0])
	assert.Equal(t, byte(9), got[4096])
	assert.Equal(t, byte(7), got[8192])

	st, n, err := top.BlockStatus(ctx, 0, 16384, false)
	require.NoError(t, err)
	assert.Equal(t, StatusAllocated|StatusData, st)
	assert.Equal(t, int64(16384), n)

	st, n, err = top.BlockStatus(ctx, 0, 16384, true)
	require.NoError(t, err)
	assert.False(t, st.Allocated())
	assert.Equal(t, int64(4096), n)

	alloc, n, err := top.IsAllocated(ctx, 4096, 12288)
	require.NoError(t, err)
	assert.True(t, alloc)
	assert.Equal(t, int64(4096), n)
}

func TestMemDevice_ShortBacking(t *testing.T) {
	base := NewMemDevice("base", 4096)
	base.Fill(bytes.Repeat([]byte{3}, 4096), 0)
	top := NewMemDevice("top", 8192, WithBacking(base), WithBlockSize(8192))

	got := top.Bytes()
	assert.Equal(t, byte(3), got[4095])
	assert.Equal(t, byte(0), got[4096])
}

func TestMemDevice_CopyRange(t *testing.T) {
	ctx := context.Background()
	src := NewMemDevice("src", 8192)
	src.Fill(bytes.Repeat([]byte{5}, 8192), 0)
	dst := NewMemDevice("dst", 8192)

	require.NoError(t, CopyRange(ctx, src, dst, 0, 0, 8192, 0))
	assert.Equal(t, src.Bytes(), dst.Bytes())
	assert.Equal(t, 1, dst.Stats().CopyRanges)

	off := NewMemDevice("off", 8192, WithCopyRange(false))
	assert.ErrorIs(t, CopyRange(ctx, src, off, 0, 0, 8192, 0), ErrNotSupported)
}

func TestMemDevice_Faults(t *testing.T) {
	ctx := context.Background()
	d := NewMemDevice("disk", 8192)
	boom := errors.New("boom")
	d.SetFaults(Faults{
		Write: func(off, n int64) error {
			if off >= 4096 {
				return boom
			}
			return nil
		},
	})

	require.NoError(t, d.WriteAt(ctx, make([]byte, 10), 0, 0))
	assert.ErrorIs(t, d.WriteAt(ctx, make([]byte, 10), 4096, 0), boom)
	assert.Equal(t, 1, d.Stats().Writes)
}

func TestMaxTransfer(t *testing.T) {
	a := NewMemDevice("a", 4096, WithMaxTransfer(1<<20))
	b := NewMemDevice("b", 4096)
	c := NewMemDevice("c", 4096, WithMaxTransfer(64<<10))

	assert.Equal(t, int64(1<<20), MaxTransfer(a, b))
	assert.Equal(t, int64(64<<10), MaxTransfer(a, c))
	assert.Equal(t, int64(1<<31-1), MaxTransfer(b, b))
}
