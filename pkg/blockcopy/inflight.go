package blockcopy

import (
	"context"
	"fmt"
)

// request is a claimed byte range being copied.
type request struct {
	offset int64
	bytes  int64
	// changed is closed when the request shrinks or ends.
	changed chan struct{}
}

func (r *request) overlaps(off, n int64) bool {
	return off+n > r.offset && off < r.offset+r.bytes
}

// claim is the result of a successful claim. Exactly one of commit or
// rollback must be called.
type claim struct {
	s    *State
	req  *request
	done bool
}

// findLocked returns the first in-flight request overlapping [off, off+n).
func (s *State) findLocked(off, n int64) *request {
	for _, r := range s.inflight {
		if r.overlaps(off, n) {
			return r
		}
	}
	return nil
}

// claimLocked claims [off, off+n) and clears its bits. If the range overlaps
// a request of another caller, no claim is made and the returned channel is
// closed once that request changes.
func (s *State) claimLocked(off, n int64) (*claim, <-chan struct{}) {
	if r := s.findLocked(off, n); r != nil {
		return nil, r.changed
	}
	s.bitmap.Reset(off, n)
	r := &request{offset: off, bytes: n, changed: make(chan struct{})}
	s.inflight = append(s.inflight, r)
	if s.onClaim != nil {
		s.onClaim(off, n)
	}
	return &claim{s: s, req: r}, nil
}

// shrink gives back the tail of the claim beyond n bytes and wakes waiters.
func (c *claim) shrink(n int64) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	r := c.req
	if n == r.bytes {
		return
	}
	if n <= 0 || n > r.bytes {
		panic(fmt.Sprintf("blockcopy: shrink of request [%d,+%d) to %d", r.offset, r.bytes, n))
	}
	s.bitmap.Set(r.offset+n, r.bytes-n)
	r.bytes = n
	close(r.changed)
	r.changed = make(chan struct{})
}

// commit ends the claim; its bits stay clear.
func (c *claim) commit() { c.end(false) }

// rollback ends the claim and marks its range dirty again.
func (c *claim) rollback() { c.end(true) }

func (c *claim) end(restore bool) {
	if c.done {
		panic("blockcopy: claim ended twice")
	}
	c.done = true
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	r := c.req
	if restore {
		s.bitmap.Set(r.offset, r.bytes)
	}
	for i, x := range s.inflight {
		if x == r {
			s.inflight = append(s.inflight[:i], s.inflight[i+1:]...)
			break
		}
	}
	close(r.changed)
}

// waitOne waits for the first request overlapping [off, off+n) to change.
// It reports false when nothing overlaps.
func (s *State) waitOne(ctx context.Context, off, n int64) (bool, error) {
	s.mu.Lock()
	r := s.findLocked(off, n)
	var ch <-chan struct{}
	if r != nil {
		ch = r.changed
	}
	s.mu.Unlock()
	if ch == nil {
		return false, nil
	}
	return true, wait(ctx, ch)
}

func wait(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight returns the number of requests currently being copied.
func (s *State) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
