// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package grpcstream

import (
	"google.golang.org/grpc/status"
)

// An opKind identifies which transport primitive an operation issues.
type opKind int

const (
	opStart opKind = iota
	opRead
	opWrite
	opFinish
)

var opKindName = map[opKind]string{
	opStart:  "start",
	opRead:   "read",
	opWrite:  "write",
	opFinish: "finish",
}

func (k opKind) String() string { return opKindName[k] }

// An operation is a one-shot unit of work issued against the transport. Its
// primitive runs on a dedicated goroutine and its single completion is posted
// to the stream's dispatch queue, where the operation removes itself from the
// stream's tracking set before invoking the stream callback for its kind.
// The done channel closes when the operation is off the completion path; the
// stream's drain waits on it before releasing the transport.
type operation struct {
	kind  opKind
	s     *Stream
	msg   []byte // payload, for write operations
	final bool   // the payload is the last write of a WriteAndFinish
	done  chan struct{}
}

func newOperation(s *Stream, kind opKind) *operation {
	return &operation{kind: kind, s: s, done: make(chan struct{})}
}

// execute issues the operation's primitive on a new goroutine. The goroutine
// blocks in the transport until the primitive resolves, then posts the
// completion to the dispatch queue.
func (o *operation) execute() {
	go func() {
		var (
			msg []byte
			st  *status.Status
			err error
		)
		switch o.kind {
		case opStart:
			err = o.s.call.Connect()
		case opRead:
			msg, err = o.s.call.Recv()
		case opWrite:
			err = o.s.call.Send(o.msg)
		case opFinish:
			st = o.s.call.Finish()
		}
		o.s.queue.Post(func() { o.complete(msg, st, err) })
	}()
}

// complete runs on the dispatch queue, exactly once per operation.
func (o *operation) complete(msg []byte, st *status.Status, err error) {
	defer close(o.done)

	s := o.s
	s.removeOperation(o)
	switch {
	case o.kind == opFinish:
		s.onFinished(st)
	case err != nil:
		s.log("Operation %v failed: %v", o.kind, err)
		s.onOperationFailed()
	case o.kind == opStart:
		s.onStart()
	case o.kind == opRead:
		s.onRead(msg)
	default:
		s.onWrite(o.final)
	}
}
