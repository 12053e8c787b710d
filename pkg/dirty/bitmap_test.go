package dirty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kib = 1024

func newTestBitmap(t *testing.T, size, gran int64) *Bitmap {
	t.Helper()
	b, err := New(size, gran)
	require.NoError(t, err)
	return b
}

func TestNew_RejectsBadGranularity(t *testing.T) {
	_, err := New(1024, 0)
	assert.Error(t, err)
	_, err = New(1024, 3000)
	assert.Error(t, err)
	_, err = New(-1, 512)
	assert.Error(t, err)
}

func TestBitmap_SetGetReset(t *testing.T) {
	b := newTestBitmap(t, 256*kib, 64*kib)
	assert.Equal(t, int64(0), b.Count())

	b.Set(64*kib, 64*kib)
	assert.False(t, b.Get(0))
	assert.True(t, b.Get(64*kib))
	assert.True(t, b.Get(127*kib))
	assert.False(t, b.Get(128*kib))

	b.Reset(64*kib, 1)
	assert.False(t, b.Get(64*kib), "partial reset widens to the whole region")
}

func TestBitmap_RangesAcrossWords(t *testing.T) {
	const gran = 512
	b := newTestBitmap(t, 1000*gran, gran)

	// Bits 3..200 span a partial first word, two full words and a partial last word.
	b.Set(3*gran, 198*gran)
	assert.Equal(t, int64(198), b.Count())
	assert.False(t, b.Get(2*gran))
	assert.True(t, b.Get(3*gran))
	assert.True(t, b.Get(64*gran))
	assert.True(t, b.Get(200*gran))
	assert.False(t, b.Get(201*gran))

	b.Reset(63*gran, 66*gran)
	assert.Equal(t, int64(198-66), b.Count())
	assert.True(t, b.Get(62*gran))
	assert.False(t, b.Get(63*gran))
	assert.False(t, b.Get(128*gran))
	assert.True(t, b.Get(129*gran))
	assert.Equal(t, int64(63*gran), b.NextZero(3*gran, 198*gran))
}

func TestBitmap_SetAllLargeDevice(t *testing.T) {
	b := newTestBitmap(t, 1<<40, 64*kib)
	b.SetAll()
	assert.Equal(t, int64(1<<24), b.Count())
	assert.Equal(t, int64(1<<40), b.DirtyBytes())
	assert.Equal(t, int64(-1), b.NextZero(0, 1<<40))

	b.Reset(1<<39, 64*kib)
	assert.Equal(t, int64(1<<24 - 1), b.Count())
	assert.Equal(t, int64(1<<39), b.NextZero(0, 1<<40))
}

func TestBitmap_PartialRangesWiden(t *testing.T) {
	b := newTestBitmap(t, 256*kib, 64*kib)
	b.Set(60*kib, 8*kib)
	assert.Equal(t, int64(2), b.Count())
}

func TestBitmap_NextZeroAndDirty(t *testing.T) {
	b := newTestBitmap(t, 256*kib, 64*kib)
	b.SetAll()
	b.Reset(128*kib, 64*kib)

	assert.Equal(t, int64(128*kib), b.NextZero(0, 256*kib))
	assert.Equal(t, int64(-1), b.NextZero(0, 128*kib))
	assert.Equal(t, int64(192*kib), b.NextDirty(128*kib, 128*kib))
	assert.Equal(t, int64(-1), b.NextDirty(128*kib, 64*kib))
}

func TestBitmap_OutOfRange(t *testing.T) {
	b := newTestBitmap(t, 128*kib, 64*kib)
	b.Set(512*kib, 64*kib)
	assert.Equal(t, int64(0), b.Count())
	assert.False(t, b.Get(-1))
	assert.Equal(t, int64(-1), b.NextDirty(0, 0))
}

func TestBitmap_DirtyBytesUnalignedTail(t *testing.T) {
	b := newTestBitmap(t, 100*kib, 64*kib)
	b.SetAll()
	assert.Equal(t, int64(2), b.Count())
	assert.Equal(t, int64(100*kib), b.DirtyBytes())

	b.Clear()
	assert.Equal(t, int64(0), b.DirtyBytes())
}
