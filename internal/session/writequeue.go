// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "math/bits"

// writeBuffer is one entry of a connection's write queue: a byte
// region with a logical length and an offset of bytes already
// transmitted (§3's "connection buffer": off <= len always holds for
// the in-flight buffer, invariant 1).
type writeBuffer struct {
	data []byte
	off  int
}

func (b *writeBuffer) remaining() []byte {
	return b.data[b.off:]
}

func (b *writeBuffer) done() bool {
	return b.off >= len(b.data)
}

// WriteQueue is a connection's private, ordered FIFO of pending write
// buffers plus a free list of recycled ones (§3, §4.2). It is not
// safe for concurrent use — like Frame, a WriteQueue is owned by
// exactly one connection's goroutine.
type WriteQueue struct {
	pending []*writeBuffer
	free    []*writeBuffer
}

// NewWriteQueue returns an empty WriteQueue.
func NewWriteQueue() *WriteQueue {
	return &WriteQueue{}
}

// getFreeBuf returns a buffer with capacity >= needed, preferring
// reuse from the free list, growing the recycled buffer's capacity to
// the next power of two if it's too small (§4.2). Enqueue is the only
// caller; it copies payload into the returned buffer.
func (q *WriteQueue) getFreeBuf(needed int) *writeBuffer {
	if len(q.free) > 0 {
		last := len(q.free) - 1
		buf := q.free[last]
		q.free[last] = nil
		q.free = q.free[:last]

		if cap(buf.data) < needed {
			buf.data = make([]byte, nextPow2(needed))
		}
		buf.data = buf.data[:0]
		buf.off = 0
		return buf
	}

	return &writeBuffer{data: make([]byte, 0, nextPow2(needed))}
}

// Enqueue appends payload as a new buffer at the tail of the write
// queue, preserving FIFO enqueue order (§5's ordering guarantee).
func (q *WriteQueue) Enqueue(payload []byte) {
	buf := q.getFreeBuf(len(payload))
	buf.data = append(buf.data, payload...)
	q.pending = append(q.pending, buf)
}

// Front returns the unsent bytes of the head-of-queue buffer, the one
// invariant 1 designates as "in-flight". Returns nil if the queue is
// empty.
func (q *WriteQueue) Front() []byte {
	if len(q.pending) == 0 {
		return nil
	}
	return q.pending[0].remaining()
}

// Advance records that n bytes of the head-of-queue buffer were
// successfully written. When the head buffer is fully drained, it
// migrates to the free list and the next buffer becomes the head.
func (q *WriteQueue) Advance(n int) {
	if len(q.pending) == 0 {
		return
	}
	head := q.pending[0]
	head.off += n

	if head.done() {
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.free = append(q.free, head)
	}
}

// Empty reports whether the write queue has nothing left to send.
func (q *WriteQueue) Empty() bool {
	return len(q.pending) == 0
}

// Len returns the number of buffers currently queued (sent-in-progress
// plus not-yet-started), for diagnostics and backpressure metrics.
func (q *WriteQueue) Len() int {
	return len(q.pending)
}

func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n))
}
