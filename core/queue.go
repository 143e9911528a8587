package orchestration

import (
	"context"
	"errors"
	"sync"

	"github.com/atempo-ai/atempo-core/core/audio"
)

// ErrQueueClosed is returned from queue operations after Close. Activities
// treat it as the stop signal rather than a failure.
var ErrQueueClosed = errors.New("frame queue closed")

// frameQueue is an ordered FIFO of audio frames with one producer class and
// one consumer class. A capacity of zero means unbounded (playback side);
// a positive capacity makes Put block when full, which is the pipeline's only
// backpressure mechanism (capture side).
//
// Drain atomically discards everything currently queued: a frame enqueued
// after Drain returns is never lost to that drain.
type frameQueue struct {
	mu       sync.Mutex
	frames   []audio.Frame
	capacity int
	closed   bool

	notEmpty chan struct{}
	notFull  chan struct{}
	done     chan struct{}
}

func newFrameQueue(capacity int) *frameQueue {
	return &frameQueue{
		capacity: capacity,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Put appends a frame, suspending while the queue is at capacity. It returns
// ErrQueueClosed once the queue is closed and ctx.Err on cancellation.
func (q *frameQueue) Put(ctx context.Context, frame audio.Frame) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		if q.capacity == 0 || len(q.frames) < q.capacity {
			q.frames = append(q.frames, frame)
			q.mu.Unlock()
			signal(q.notEmpty)
			return nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return ErrQueueClosed
		case <-q.notFull:
		}
	}
}

// Get removes and returns the oldest frame, suspending while empty.
func (q *frameQueue) Get(ctx context.Context) (audio.Frame, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return audio.Frame{}, ErrQueueClosed
		}
		if len(q.frames) > 0 {
			frame := q.frames[0]
			q.frames = q.frames[1:]
			q.mu.Unlock()
			signal(q.notFull)
			return frame, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return audio.Frame{}, ctx.Err()
		case <-q.done:
			return audio.Frame{}, ErrQueueClosed
		case <-q.notEmpty:
		}
	}
}

// Drain discards all currently queued frames without blocking the producer
// and reports how many were dropped. Frames enqueued after Drain returns are
// untouched; FIFO order for them is preserved.
func (q *frameQueue) Drain() int {
	q.mu.Lock()
	dropped := len(q.frames)
	q.frames = nil
	q.mu.Unlock()

	if dropped > 0 {
		signal(q.notFull)
	}
	return dropped
}

// Len reports the number of queued frames.
func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Close unblocks every suspended Put and Get. Idempotent.
func (q *frameQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.frames = nil
	q.mu.Unlock()
	close(q.done)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
