package core

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerbError(t *testing.T) {
	err := &VerbError{JobID: "job0", Status: StatusRunning, Verb: VerbFinalize}
	assert.Equal(t, "jobs: job 'job0' in state 'running' cannot accept command verb 'finalize'", err.Error())
}

func TestIOError(t *testing.T) {
	wrapped := fmt.Errorf("copy: %w", &IOError{Op: OpRead, Offset: 65536, Bytes: 4096, Err: syscall.EIO})

	var ioErr *IOError
	assert.True(t, errors.As(wrapped, &ioErr))
	assert.True(t, ioErr.IsRead())
	assert.True(t, errors.Is(wrapped, syscall.EIO))
	assert.Contains(t, ioErr.Error(), "read at offset 65536")
	assert.True(t, ErrorIsRead(wrapped))
}

func TestIOError_WriteSide(t *testing.T) {
	for _, op := range []IOOp{OpWrite, OpZeroWrite, OpCopyRange} {
		err := &IOError{Op: op, Err: syscall.ENOSPC}
		assert.False(t, err.IsRead(), string(op))
		assert.False(t, ErrorIsRead(err), string(op))
	}
	assert.False(t, ErrorIsRead(errors.New("plain")))
}

func TestErrorVariables(t *testing.T) {
	assert.Contains(t, ErrDuplicateID.Error(), "already in use")
	assert.Contains(t, ErrMissingID.Error(), "explicit job ID")
	assert.Contains(t, ErrNotPaused.Error(), "not paused")
	assert.Contains(t, ErrCancelled.Error(), "cancelled")
}
