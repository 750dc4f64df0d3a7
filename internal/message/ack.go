package message

import (
	"context"
	"sync"
	"sync/atomic"
)

// NackPolicy selects how a fan-out ack handle resolves failure among
// its children.
type NackPolicy uint8

const (
	// NackOnAnyFailure nacks the shared token if any child fails. This
	// is the default.
	NackOnAnyFailure NackPolicy = iota
	// NackOnAllFailures only nacks the shared token when every child
	// has failed; a single success acks it.
	NackOnAllFailures
)

// AckFunc is supplied by an input and invoked exactly once per
// message it produced, with the final ack/nack decision.
type AckFunc func(ctx context.Context, err error) error

// AckHandle is the refcounted, shared ack token described in the
// design notes: a message that fans out into N children carries N
// clones of the same handle, and the underlying input ack/nack fires
// only once all children have reached a terminal state (ack, nack, or
// filter).
type AckHandle struct {
	mu       sync.Mutex
	pending  int64
	failures int64
	total    int64
	policy   NackPolicy
	fn       AckFunc
	done     int32
}

// NewAckHandle wraps an input's AckFunc as a fresh handle with a
// single pending child (the original message before any fan-out).
func NewAckHandle(fn AckFunc, policy NackPolicy) *AckHandle {
	return &AckHandle{pending: 1, total: 1, fn: fn, policy: policy}
}

// Fork increments the pending/total count to account for a fan-out
// producing extra children beyond the first: n is added to both counts
// in one call. The executor calls Fork(len(children)-1) once per
// fan-out.
func (h *AckHandle) Fork(n int) {
	if h == nil || n <= 0 {
		return
	}
	atomic.AddInt64(&h.pending, int64(n))
	atomic.AddInt64(&h.total, int64(n))
}

// Terminate resolves one child. success=true for ack/filter, false for
// a processing or output failure. When the last outstanding child
// resolves, the underlying AckFunc fires with a nil error (ack) or a
// non-nil error (nack) chosen by the configured NackPolicy.
func (h *AckHandle) Terminate(ctx context.Context, success bool) error {
	if h == nil {
		return nil
	}
	if !success {
		atomic.AddInt64(&h.failures, 1)
	}
	remaining := atomic.AddInt64(&h.pending, -1)
	if remaining > 0 {
		return nil
	}
	if atomic.SwapInt32(&h.done, 1) == 1 {
		return nil // already resolved by a racing terminator; shouldn't happen but is harmless
	}

	h.mu.Lock()
	failures := atomic.LoadInt64(&h.failures)
	total := atomic.LoadInt64(&h.total)
	fn := h.fn
	policy := h.policy
	h.mu.Unlock()

	if fn == nil {
		return nil
	}

	var ackErr error
	switch policy {
	case NackOnAllFailures:
		if failures >= total {
			ackErr = errAllChildrenFailed
		}
	default: // NackOnAnyFailure
		if failures > 0 {
			ackErr = errAChildFailed
		}
	}
	return fn(ctx, ackErr)
}

var (
	errAChildFailed      = fanOutError("a fan-out child failed")
	errAllChildrenFailed = fanOutError("all fan-out children failed")
)

type fanOutError string

func (e fanOutError) Error() string { return string(e) }
