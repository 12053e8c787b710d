//go:build linux

package blockdev

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDevice_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	src, err := OpenFile(filepath.Join(dir, "src.img"), true, true, 1<<20)
	require.NoError(t, err)
	defer src.Close()
	dst, err := OpenFile(filepath.Join(dir, "dst.img"), true, true, 1<<20)
	require.NoError(t, err)
	defer dst.Close()

	assert.Equal(t, int64(1<<20), src.Length())

	data := bytes.Repeat([]byte("block"), 4096)
	require.NoError(t, src.WriteAt(ctx, data, 65536, 0))

	err = src.CopyRange(ctx, dst, 65536, 65536, int64(len(data)), 0)
	if err != nil {
		require.ErrorIs(t, err, ErrNotSupported)
		t.Skip("copy_file_range not supported here")
	}
	got := make([]byte, len(data))
	require.NoError(t, dst.ReadAt(ctx, got, 65536))
	assert.Equal(t, data, got)

	require.NoError(t, dst.WriteZeroes(ctx, 65536, 4096, 0))
	require.NoError(t, dst.ReadAt(ctx, got[:4096], 65536))
	assert.Equal(t, make([]byte, 4096), got[:4096])
}

func TestFileDevice_BlockStatus(t *testing.T) {
	ctx := context.Background()
	d, err := OpenFile(filepath.Join(t.TempDir(), "sparse.img"), true, true, 1<<20)
	require.NoError(t, err)
	defer d.Close()

	st, n, err := d.BlockStatus(ctx, 0, d.Length(), false)
	require.NoError(t, err)
	assert.True(t, st.Allocated())
	assert.Positive(t, n)

	alloc, n, err := d.IsAllocated(ctx, 0, d.Length())
	require.NoError(t, err)
	assert.True(t, alloc)
	assert.Equal(t, d.Length(), n)

	_, _, err = d.BlockStatus(ctx, 0, 2<<20, false)
	assert.ErrorIs(t, err, ErrOutOfRange)
}
