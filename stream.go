// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package grpcstream

import (
	"sync"

	"github.com/creachadair/grpcstream/dispatch"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// A streamState tracks the lifecycle of a stream. States advance in one
// direction only; streamFinished is terminal.
type streamState int

const (
	streamNotStarted streamState = iota
	streamOpen
	streamFinishing
	streamFinished
)

var stateName = map[streamState]string{
	streamNotStarted: "not started",
	streamOpen:       "open",
	streamFinishing:  "finishing",
	streamFinished:   "finished",
}

func (s streamState) String() string { return stateName[s] }

// A Stream is a bidirectional stream of raw byte messages over a Call. The
// stream must be explicitly opened with Start before use, and reports its
// lifecycle to the observer given at construction. Messages written to the
// stream are buffered and delivered to the transport one at a time, in the
// order written.
//
// All state transitions execute on the dispatch queue given at construction.
// The queue must remain open until Finish or WriteAndFinish has returned.
type Stream struct {
	call  Call                 // transport; must outlive all issued operations
	queue *dispatch.Queue      // serializes completions and notifications
	log   func(string, ...any) // write debug logs here

	mu sync.Mutex // protects the fields below

	state        streamState
	started      bool
	clientFinish bool     // the client requested the finish; stay silent
	obs          Observer // nil exactly when the stream has finished
	writer       *bufferedWriter
	ops          map[*operation]struct{} // operations issued and not yet complete
	headers      metadata.MD             // response metadata, set once open
	finalDone    chan bool               // resolves the final write of WriteAndFinish
}

// New constructs an unstarted stream over call that reports to obs on q.
// New panics if any of call, obs, or q is nil.
func New(call Call, obs Observer, q *dispatch.Queue, opts *StreamOptions) *Stream {
	if call == nil {
		panic("nil call")
	} else if obs == nil {
		panic("nil observer")
	} else if q == nil {
		panic("nil dispatch queue")
	}
	s := &Stream{
		call:  call,
		queue: q,
		log:   opts.logger(),
		obs:   obs,
		ops:   make(map[*operation]struct{}),
	}
	s.writer = newBufferedWriter(s.issueWrite)
	return s
}

// Start opens the stream. It returns without waiting; once the stream is
// open the observer receives OnStreamStart and the stream begins listening
// for messages from the server. Start panics if the stream has already been
// started or finished.
func (s *Stream) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.state != streamNotStarted {
		panic("stream has already been started")
	}
	s.started = true
	s.issueLocked(newOperation(s, opStart))
}

// Write accepts msg for delivery to the server. Writes are delivered in the
// order accepted, with at most one write in flight at a time; excess writes
// are buffered. Write does not block and reports no outcome: a failed write
// terminates the stream and surfaces through the observer.
//
// A write on a stream that is not open, or that has begun finishing, is
// dropped.
func (s *Stream) Write(msg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != streamOpen || s.clientFinish {
		s.log("Stream is not accepting writes; %d bytes dropped", len(msg))
		return
	}
	s.writer.enqueue(pendingWrite{msg: msg})
}

// Finish terminates the stream without notifying the observer. It cancels
// the underlying call, blocks until every operation issued against the
// transport has completed, and then detaches the observer. After Finish
// returns the stream cannot be used, and the transport is safe to release.
//
// Finish may be called before the stream has opened. Calling Finish on a
// stream that is already finishing or finished waits for the teardown in
// progress and is otherwise a no-op.
//
// Finish must not be called from an observer callback.
func (s *Stream) Finish() {
	s.mu.Lock()
	switch s.state {
	case streamFinished:
		s.mu.Unlock()
		return
	case streamFinishing:
		// A failure is already tearing the stream down; suppress its
		// terminal notification and wait it out.
		s.clientFinish = true
	default:
		s.state = streamFinishing
		s.clientFinish = true
		s.issueLocked(newOperation(s, opFinish))
	}
	s.mu.Unlock()

	s.drain()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = streamFinished
	s.obs = nil
	s.signalFinalLocked(false)
}

// WriteAndFinish writes msg as the final message of the stream, blocks until
// that write completes or the stream is torn down, and then finishes the
// stream as Finish does. The final write is best-effort: the return value
// reports whether it was observed to succeed, and a failure produces no
// observer notification beyond that.
//
// WriteAndFinish must not be called from an observer callback.
func (s *Stream) WriteAndFinish(msg []byte) bool {
	s.mu.Lock()
	if s.state != streamOpen || s.clientFinish {
		s.mu.Unlock()
		s.log("WriteAndFinish on a %v stream; finishing without writing", s.state)
		s.Finish()
		return false
	}
	done := make(chan bool, 1)
	s.finalDone = done
	s.clientFinish = true // the teardown is client-initiated even if the write fails
	s.writer.enqueue(pendingWrite{msg: msg, final: true})
	s.mu.Unlock()

	ok := <-done
	s.Finish()
	return ok
}

// ResponseHeaders returns the response metadata received from the server.
// It is valid once the stream has opened, and returns nil before then.
func (s *Stream) ResponseHeaders() metadata.MD {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers
}

// IsFinished reports whether the stream has finished and detached its
// observer.
func (s *Stream) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == streamFinished
}

// issueLocked records op as in flight and starts it. The caller must hold
// s.mu.
func (s *Stream) issueLocked(op *operation) {
	s.ops[op] = struct{}{}
	op.execute()
}

// issueWrite starts a write operation for pw on behalf of the buffered
// writer. The caller must hold s.mu.
func (s *Stream) issueWrite(pw pendingWrite) {
	op := newOperation(s, opWrite)
	op.msg = pw.msg
	op.final = pw.final
	s.issueLocked(op)
}

// removeOperation drops op from the tracking set. Each operation calls this
// exactly once, on the dispatch queue, when it completes.
func (s *Stream) removeOperation(op *operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ops, op)
}

// drain blocks until every issued operation has completed. It is safe only
// once the call has failed or been canceled, so that pending operations
// resolve promptly rather than blocking indefinitely.
func (s *Stream) drain() {
	for {
		s.mu.Lock()
		var op *operation
		for o := range s.ops {
			op = o
			break
		}
		s.mu.Unlock()
		if op == nil {
			return
		}
		<-op.done
	}
}

// signalFinalLocked resolves a pending WriteAndFinish, if one is waiting.
// The caller must hold s.mu.
func (s *Stream) signalFinalLocked(ok bool) {
	if s.finalDone != nil {
		s.finalDone <- ok
		s.finalDone = nil
	}
}

// onStart handles the completion of a successful start operation: the stream
// is open, the observer is told, and the listen loop begins.
func (s *Stream) onStart() {
	s.mu.Lock()
	if s.state != streamNotStarted {
		s.mu.Unlock()
		return // the stream was finished before it opened
	}
	s.state = streamOpen
	obs := s.obs
	s.mu.Unlock()

	if md, err := s.call.Header(); err == nil {
		s.mu.Lock()
		s.headers = md
		s.mu.Unlock()
	} else {
		s.log("Response headers unavailable: %v", err)
	}

	if obs != nil {
		obs.OnStreamStart()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == streamOpen {
		s.issueLocked(newOperation(s, opRead))
	}
}

// onRead handles the completion of a successful read: the observer gets the
// message, and unless the stream is on its way down another read is issued
// so the stream keeps listening.
func (s *Stream) onRead(msg []byte) {
	s.mu.Lock()
	if s.state != streamOpen {
		s.mu.Unlock()
		return
	}
	obs := s.obs
	s.mu.Unlock()

	obs.OnStreamRead(msg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == streamOpen {
		s.issueLocked(newOperation(s, opRead))
	}
}

// onWrite handles the completion of a successful write. The next buffered
// payload, if any, becomes the active write. A final write instead resolves
// the WriteAndFinish waiting on it; the stream is about to finish, so no
// further writes are started.
func (s *Stream) onWrite(final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if final {
		s.signalFinalLocked(true)
		return
	}
	if s.state != streamOpen {
		return
	}
	s.writer.dequeueNext()
}

// onOperationFailed handles the failure of a start, read, or write. All such
// failures are unrecoverable: the stream stops issuing work and finishes the
// call to obtain its terminal status, which onFinished delivers to the
// observer. Failures reported while the stream is already finishing are
// expected fallout of the cancellation and are ignored.
func (s *Stream) onOperationFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signalFinalLocked(false)
	if s.state == streamFinishing || s.state == streamFinished {
		return
	}
	s.state = streamFinishing
	s.issueLocked(newOperation(s, opFinish))
}

// onFinished handles the completion of the finish operation, the last
// operation a stream issues. The terminal status reaches the observer only
// when the finish was not requested by the client.
func (s *Stream) onFinished(st *status.Status) {
	s.mu.Lock()
	obs := s.obs
	notify := obs != nil && !s.clientFinish
	s.state = streamFinished
	s.obs = nil
	s.signalFinalLocked(false)
	s.mu.Unlock()

	if notify {
		s.log("Stream finished with status %v", st)
		obs.OnStreamError(st)
	}
}
