// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package grpcstream

import "github.com/creachadair/mds/queue"

// A pendingWrite is a payload accepted by the stream but not yet delivered
// to the transport.
type pendingWrite struct {
	msg   []byte
	final bool // the last write of a WriteAndFinish
}

// A bufferedWriter holds payloads until the transport is ready for them.
// The transport permits only one write operation in flight per call, so the
// writer issues at most one write at a time and buffers the rest in FIFO
// order. The writer does not track the operations it starts; the stream
// reports each write completion back via dequeueNext.
//
// The caller (the stream) must serialize all access.
type bufferedWriter struct {
	start  func(pendingWrite) // issues a write operation for the payload
	queue  *queue.Queue[pendingWrite]
	active bool
}

func newBufferedWriter(start func(pendingWrite)) *bufferedWriter {
	return &bufferedWriter{start: start, queue: queue.New[pendingWrite]()}
}

// enqueue accepts a payload for delivery. If no write is active, the payload
// is issued immediately and becomes the active write; otherwise it is queued
// behind the writes already accepted.
func (w *bufferedWriter) enqueue(pw pendingWrite) {
	if w.active {
		w.queue.Add(pw)
		return
	}
	w.active = true
	w.start(pw)
}

// dequeueNext reports that the active write has completed, and issues the
// oldest queued payload if there is one. With an empty queue the writer
// becomes idle.
func (w *bufferedWriter) dequeueNext() {
	pw, ok := w.queue.Pop()
	if !ok {
		w.active = false
		return
	}
	w.start(pw)
}

// isIdle reports whether no write is active and nothing is queued.
func (w *bufferedWriter) isIdle() bool { return !w.active && w.queue.IsEmpty() }
